package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capifyhq/capify/models"
	"github.com/capifyhq/capify/services"
)

type stubTokenStore struct {
	token models.FacebookToken
	err   error
}

func (s *stubTokenStore) TokenByContainerID(containerID string) (models.FacebookToken, error) {
	return s.token, s.err
}

func (s *stubTokenStore) TouchLastUsed(tokenID int) error { return nil }

type stubVerificationStore struct{}

func (s *stubVerificationStore) VerifiedDomain(containerID string) (string, error) { return "", nil }

func floatPtr(f float64) *float64 { return &f }

func TestPurchaseCustomData(t *testing.T) {
	receiver := models.EventReceiver{
		Value:      floatPtr(99.90),
		Currency:   "USD",
		ContentIDs: []string{"sku-1", "sku-2"},
		OrderID:    "order-42",
	}

	data := PurchaseCustomData(receiver)

	assert.Equal(t, 99.90, data["value"])
	assert.Equal(t, "USD", data["currency"])
	assert.Equal(t, []string{"sku-1", "sku-2"}, data["content_ids"])
	assert.Equal(t, "order-42", data["order_id"])
	assert.Equal(t, []interface{}{}, data["contents"])
}

func TestLeadCustomData(t *testing.T) {
	data := LeadCustomData(models.EventReceiver{FormID: "contact-form", LeadType: "newsletter"})

	assert.Equal(t, "contact-form", data["form_id"])
	assert.Equal(t, "newsletter", data["lead_type"])
	_, hasContents := data["contents"]
	assert.False(t, hasContents)
}

func TestSubscriptionCustomData(t *testing.T) {
	data := SubscriptionCustomData(models.EventReceiver{
		Value:        floatPtr(9.99),
		Currency:     "EUR",
		PredictedLTV: floatPtr(120),
	})

	assert.Equal(t, 9.99, data["value"])
	assert.Equal(t, "EUR", data["currency"])
	assert.Equal(t, float64(120), data["predicted_ltv"])
}

func TestScheduleCustomData(t *testing.T) {
	data := ScheduleCustomData(models.EventReceiver{DeliveryCategory: "in_store"})

	assert.Equal(t, "in_store", data["delivery_category"])
	assert.Equal(t, []interface{}{}, data["contents"])
}

func TestFindLocationCustomData(t *testing.T) {
	data := FindLocationCustomData(models.EventReceiver{SearchString: "store near me"})

	assert.Equal(t, "store near me", data["search_string"])
}

func TestEmptyCustomDataOmitsAbsentFields(t *testing.T) {
	data := CartCustomData(models.EventReceiver{})

	_, hasValue := data["value"]
	assert.False(t, hasValue)
	_, hasCurrency := data["currency"]
	assert.False(t, hasCurrency)
	assert.Equal(t, []interface{}{}, data["contents"])
}

func TestEnrichEventFillsClientFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/facebook/events/lead", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.Header.Set("User-Agent", "Mozilla/5.0")

	fields := models.EventFields{GtmContainerID: "GTM-ABC1234"}
	enrichEvent(r, nil, &fields)

	assert.Equal(t, "203.0.113.9", fields.ClientIPAddress)
	assert.Equal(t, "Mozilla/5.0", fields.ClientUserAgent)
}

func TestEnrichEventKeepsProvidedValues(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/facebook/events/lead", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.Header.Set("User-Agent", "Mozilla/5.0")

	fields := models.EventFields{
		GtmContainerID:  "GTM-ABC1234",
		ClientIPAddress: "198.51.100.1",
		ClientUserAgent: "custom-agent",
		City:            "Ankara",
	}
	enrichEvent(r, nil, &fields)

	assert.Equal(t, "198.51.100.1", fields.ClientIPAddress)
	assert.Equal(t, "custom-agent", fields.ClientUserAgent)
	assert.Equal(t, "Ankara", fields.City)
}

func TestSendEventHandlerMapsResultStatus(t *testing.T) {
	relay := services.NewRelay(&stubTokenStore{err: sql.ErrNoRows}, &stubVerificationStore{}, nil, "http://127.0.0.1:1")
	handler := SendEvent(relay, nil, "Lead", LeadCustomData)

	body := bytes.NewBufferString(`{"gtm_container_id": "GTM-ABC1234"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/facebook/events/lead", body)
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, false, result["success"])
	assert.Equal(t, "No Facebook token found for this GTM Container ID", result["msg"])
}

func TestSendEventHandlerRejectsBadBody(t *testing.T) {
	relay := services.NewRelay(&stubTokenStore{}, &stubVerificationStore{}, nil, "http://127.0.0.1:1")
	handler := SendEvent(relay, nil, "Lead", LeadCustomData)

	r := httptest.NewRequest(http.MethodPost, "/api/facebook/events/lead", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendPageViewQueuesWithoutRelaying(t *testing.T) {
	relay := services.NewRelay(&stubTokenStore{}, &stubVerificationStore{}, nil, "http://127.0.0.1:1")
	pool := services.NewPageViewPool(relay, 100)
	handler := SendPageView(pool, nil)

	body := bytes.NewBufferString(`{"gtm_container_id": "GTM-ABC1234", "email": "x@example.com"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/facebook/events/page-view", body)
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, pool.Len())

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, true, response["success"])
	assert.Equal(t, float64(1), response["queued"])
}

func TestSendPageViewRequiresContainerID(t *testing.T) {
	relay := services.NewRelay(&stubTokenStore{}, &stubVerificationStore{}, nil, "http://127.0.0.1:1")
	pool := services.NewPageViewPool(relay, 100)
	handler := SendPageView(pool, nil)

	body := bytes.NewBufferString(`{"email": "x@example.com"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/facebook/events/page-view", body)
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, pool.Len())
}
