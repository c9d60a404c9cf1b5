package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/capifyhq/capify/middleware"
	"github.com/capifyhq/capify/services"
	"github.com/capifyhq/capify/utils"
)

func priceIDForPlan(plan string) string {
	switch plan {
	case "basic":
		return os.Getenv("STRIPE_PRICE_BASIC")
	case "pro":
		return os.Getenv("STRIPE_PRICE_PRO")
	default:
		return ""
	}
}

// CreateCheckoutSession starts a Stripe subscription checkout for the
// authenticated user, creating a Stripe customer on first use.
func CreateCheckoutSession(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		var req struct {
			Plan string `json:"plan"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}

		priceID := priceIDForPlan(req.Plan)
		if priceID == "" {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("unknown plan"))
			return
		}

		user, err := services.GetUserByID(db, userID)
		if err != nil {
			log.Printf("services.GetUserByID: %v", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error getting user"))
			return
		}

		stripeCustomerID := user.StripeCustomerID
		if stripeCustomerID == "" {
			customerParams := &stripe.CustomerParams{
				Email: stripe.String(user.Email),
			}
			customerParams.AddMetadata("userId", strconv.Itoa(user.ID))

			newCustomer, err := customer.New(customerParams)
			if err != nil {
				log.Printf("customer.New: %v", err)
				utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error creating customer"))
				return
			}
			stripeCustomerID = newCustomer.ID

			user.StripeCustomerID = stripeCustomerID
			if err := services.AddStripeCustomerID(db, user); err != nil {
				log.Printf("services.AddStripeCustomerID: %v", err)
				utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error updating user"))
				return
			}
		}

		frontendURL := os.Getenv("FRONTEND_URL")
		if frontendURL == "" {
			frontendURL = "http://localhost:3000"
		}

		params := &stripe.CheckoutSessionParams{
			Customer: &stripeCustomerID,
			LineItems: []*stripe.CheckoutSessionLineItemParams{
				{
					Price:    stripe.String(priceID),
					Quantity: stripe.Int64(1),
				},
			},
			Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
			SuccessURL: stripe.String(frontendURL + "/billing/success"),
			CancelURL:  stripe.String(frontendURL + "/billing/canceled"),
			CustomerUpdate: &stripe.CheckoutSessionCustomerUpdateParams{
				Address: stripe.String("auto"),
			},
		}

		s, err := session.New(params)
		if err != nil {
			log.Printf("session.New: %v", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error creating checkout session"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]string{"url": s.URL})
	}
}

func planFromSubscription(subscription *stripe.Subscription) string {
	if subscription == nil || subscription.Items == nil {
		return ""
	}
	for _, item := range subscription.Items.Data {
		if item.Price != nil {
			switch item.Price.ID {
			case os.Getenv("STRIPE_PRICE_BASIC"):
				return "basic"
			case os.Getenv("STRIPE_PRICE_PRO"):
				return "pro"
			}
		}
	}
	return ""
}

// StripeWebhook keeps subscription status and plan in sync with Stripe.
func StripeWebhook(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const maxBodyBytes = int64(65536)
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			log.Printf("Error reading webhook body: %v", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		endpointSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
		event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), endpointSecret)
		if err != nil {
			log.Printf("Webhook signature verification failed: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch event.Type {
		case "customer.subscription.created", "customer.subscription.updated":
			var subscription stripe.Subscription
			if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
				log.Printf("Error parsing webhook JSON: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			err = services.UpdateSubscriptionStatusAndPlan(db, subscription.Customer.ID,
				string(subscription.Status), planFromSubscription(&subscription))
			if err != nil {
				log.Printf("Error updating subscription: %v", err)
			}

		case "customer.subscription.deleted":
			var subscription stripe.Subscription
			if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
				log.Printf("Error parsing webhook JSON: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			err = services.UpdateSubscriptionStatusAndPlan(db, subscription.Customer.ID, "canceled", "")
			if err != nil {
				log.Printf("Error updating subscription: %v", err)
			}

		default:
			log.Printf("Unhandled Stripe event type: %s", event.Type)
		}

		w.WriteHeader(http.StatusOK)
	}
}
