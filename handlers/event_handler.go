package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oschwald/geoip2-golang"

	"github.com/capifyhq/capify/models"
	"github.com/capifyhq/capify/services"
	"github.com/capifyhq/capify/utils"
)

// customDataFunc extracts the event-specific custom_data from the decoded
// request body. Each Meta standard event carries a different subset.
type customDataFunc func(receiver models.EventReceiver) map[string]interface{}

func enrichEvent(r *http.Request, geoipDB *geoip2.Reader, fields *models.EventFields) {
	if fields.ClientIPAddress == "" {
		fields.ClientIPAddress = utils.GetIPAddress(r)
	}
	if fields.ClientUserAgent == "" {
		fields.ClientUserAgent = r.UserAgent()
	}

	// Backfill missing geo fields from the client IP so Meta still gets
	// location signals when the page script sends none.
	if fields.City == "" || fields.State == "" || fields.Zip == "" || fields.Country == "" {
		location := utils.GetLocationInfo(geoipDB, fields.ClientIPAddress)
		if fields.City == "" {
			fields.City = location.City
		}
		if fields.State == "" {
			fields.State = location.Region
		}
		if fields.Zip == "" {
			fields.Zip = location.Zip
		}
		if fields.Country == "" {
			fields.Country = location.Country
		}
	}
}

// SendEvent relays a single conversion event to Meta and reports the
// outcome. The response status mirrors the relay result.
func SendEvent(relay *services.Relay, geoipDB *geoip2.Reader, eventName string, customData customDataFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var receiver models.EventReceiver
		if err := json.NewDecoder(r.Body).Decode(&receiver); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}

		enrichEvent(r, geoipDB, &receiver.EventFields)

		result := relay.Send(eventName, receiver.EventFields, customData(receiver))
		utils.WriteJSON(w, result.StatusCode(), result)
	}
}

// SendPageView queues a page view for batched delivery instead of relaying
// it inline. Page views dominate traffic, so they are flushed in batches.
func SendPageView(pool *services.PageViewPool, geoipDB *geoip2.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var receiver models.EventReceiver
		if err := json.NewDecoder(r.Body).Decode(&receiver); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}

		if receiver.GtmContainerID == "" {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("GTM Container ID is required"))
			return
		}

		enrichEvent(r, geoipDB, &receiver.EventFields)

		pool.Enqueue(receiver.EventFields, contentCustomData(receiver))

		utils.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"success": true,
			"msg":     "PageView queued for batch delivery",
			"queued":  pool.Len(),
		})
	}
}

func valueCurrency(receiver models.EventReceiver, data map[string]interface{}) map[string]interface{} {
	if receiver.Value != nil {
		data["value"] = *receiver.Value
	}
	if receiver.Currency != "" {
		data["currency"] = receiver.Currency
	}
	return data
}

func contents(receiver models.EventReceiver, data map[string]interface{}) map[string]interface{} {
	if receiver.ContentIDs != nil {
		data["content_ids"] = receiver.ContentIDs
	}
	if receiver.Contents != nil {
		data["contents"] = receiver.Contents
	} else {
		data["contents"] = []interface{}{}
	}
	return data
}

// PurchaseCustomData carries the order details of a completed purchase.
func PurchaseCustomData(receiver models.EventReceiver) map[string]interface{} {
	data := contents(receiver, valueCurrency(receiver, map[string]interface{}{}))
	if receiver.OrderID != "" {
		data["order_id"] = receiver.OrderID
	}
	return data
}

func LeadCustomData(receiver models.EventReceiver) map[string]interface{} {
	data := map[string]interface{}{}
	if receiver.FormID != "" {
		data["form_id"] = receiver.FormID
	}
	if receiver.LeadType != "" {
		data["lead_type"] = receiver.LeadType
	}
	return data
}

// CartCustomData covers AddToCart, ViewContent, InitiateCheckout,
// AddPaymentInfo and SubmitApplication, which all share the same shape.
func CartCustomData(receiver models.EventReceiver) map[string]interface{} {
	return contents(receiver, valueCurrency(receiver, map[string]interface{}{}))
}

func RegistrationCustomData(receiver models.EventReceiver) map[string]interface{} {
	data := map[string]interface{}{}
	if receiver.RegistrationMethod != "" {
		data["registration_method"] = receiver.RegistrationMethod
	}
	return data
}

func SearchCustomData(receiver models.EventReceiver) map[string]interface{} {
	data := map[string]interface{}{}
	if receiver.SearchString != "" {
		data["search_string"] = receiver.SearchString
	}
	return data
}

func ContactCustomData(receiver models.EventReceiver) map[string]interface{} {
	data := map[string]interface{}{}
	if receiver.ContactMethod != "" {
		data["contact_method"] = receiver.ContactMethod
	}
	return data
}

// SubscriptionCustomData covers Subscribe and StartTrial.
func SubscriptionCustomData(receiver models.EventReceiver) map[string]interface{} {
	data := valueCurrency(receiver, map[string]interface{}{})
	if receiver.PredictedLTV != nil {
		data["predicted_ltv"] = *receiver.PredictedLTV
	}
	return data
}

func contentCustomData(receiver models.EventReceiver) map[string]interface{} {
	return contents(receiver, map[string]interface{}{})
}

// ContentCustomData covers AddToWishlist, CustomizeProduct and PageView.
func ContentCustomData(receiver models.EventReceiver) map[string]interface{} {
	return contentCustomData(receiver)
}

func DonateCustomData(receiver models.EventReceiver) map[string]interface{} {
	return valueCurrency(receiver, map[string]interface{}{})
}

func FindLocationCustomData(receiver models.EventReceiver) map[string]interface{} {
	data := contentCustomData(receiver)
	if receiver.SearchString != "" {
		data["search_string"] = receiver.SearchString
	}
	return data
}

func ScheduleCustomData(receiver models.EventReceiver) map[string]interface{} {
	data := contentCustomData(receiver)
	if receiver.DeliveryCategory != "" {
		data["delivery_category"] = receiver.DeliveryCategory
	}
	return data
}
