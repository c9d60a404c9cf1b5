package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capifyhq/capify/models"
	"github.com/capifyhq/capify/utils"
)

type fakeTokenStore struct {
	token models.FacebookToken
	err   error
}

func (s *fakeTokenStore) TokenByContainerID(containerID string) (models.FacebookToken, error) {
	return s.token, s.err
}

func (s *fakeTokenStore) TouchLastUsed(tokenID int) error { return nil }

type fakeVerificationStore struct {
	domain string
	err    error
}

func (s *fakeVerificationStore) VerifiedDomain(containerID string) (string, error) {
	return s.domain, s.err
}

func activeToken() models.FacebookToken {
	return models.FacebookToken{
		ID:             1,
		UserID:         1,
		GtmContainerID: "GTM-ABC1234",
		DatasetID:      "123456789",
		AccessToken:    "EAAtestaccesstokenvalue1234567890",
		TokenName:      "Token_test",
		IsActive:       true,
	}
}

func newTestRelay(t *testing.T, tokens TokenStore, verifications VerificationStore, handler http.HandlerFunc) (*Relay, *int64) {
	t.Helper()

	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	relay := NewRelay(tokens, verifications, nil, server.URL)
	return relay, &calls
}

func TestSendRequiresContainerID(t *testing.T) {
	relay, calls := newTestRelay(t, &fakeTokenStore{}, &fakeVerificationStore{}, func(w http.ResponseWriter, r *http.Request) {})

	result := relay.Send("Purchase", models.EventFields{}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, FailureMissingContainer, result.Kind)
	assert.Equal(t, http.StatusBadRequest, result.StatusCode())
	assert.Equal(t, "GTM Container ID is required", result.Message)
	assert.Equal(t, int64(0), atomic.LoadInt64(calls))
}

func TestSendTokenNotFound(t *testing.T) {
	relay, calls := newTestRelay(t, &fakeTokenStore{err: sql.ErrNoRows}, &fakeVerificationStore{}, func(w http.ResponseWriter, r *http.Request) {})

	result := relay.Send("Purchase", models.EventFields{GtmContainerID: "GTM-ABC1234"}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, FailureCredentialNotFound, result.Kind)
	assert.Equal(t, http.StatusNotFound, result.StatusCode())
	assert.Equal(t, int64(0), atomic.LoadInt64(calls))
}

func TestSendInactiveToken(t *testing.T) {
	token := activeToken()
	token.IsActive = false
	relay, calls := newTestRelay(t, &fakeTokenStore{token: token}, &fakeVerificationStore{}, func(w http.ResponseWriter, r *http.Request) {})

	result := relay.Send("Purchase", models.EventFields{GtmContainerID: "GTM-ABC1234"}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, FailureCredentialInactive, result.Kind)
	assert.Equal(t, http.StatusForbidden, result.StatusCode())
	assert.Equal(t, int64(0), atomic.LoadInt64(calls))
}

func TestSendSuccess(t *testing.T) {
	var envelope map[string]interface{}
	var path string
	relay, calls := newTestRelay(t, &fakeTokenStore{token: activeToken()}, &fakeVerificationStore{domain: "shop.example.org"},
		func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &envelope))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"events_received": 1}`))
		})

	fields := models.EventFields{
		GtmContainerID:  "GTM-ABC1234",
		Email:           "Buyer@Example.com",
		Phone:           "+1 (555) 123-4567",
		ClientIPAddress: "203.0.113.7",
		ClientUserAgent: "Mozilla/5.0",
		Fbp:             "fb.1.1700000000.1234567890",
	}
	value := 49.99
	result := relay.Send("Purchase", fields, map[string]interface{}{"value": value, "currency": "USD"})

	require.True(t, result.Success)
	assert.Equal(t, "Event sent to Meta", result.Message)
	assert.Equal(t, http.StatusOK, result.StatusCode())
	assert.Equal(t, float64(1), result.MetaResponse["events_received"])
	assert.Equal(t, int64(1), atomic.LoadInt64(calls))

	assert.Equal(t, "/123456789/events", path)
	assert.Equal(t, activeToken().AccessToken, envelope["access_token"])

	data := envelope["data"].([]interface{})
	require.Len(t, data, 1)
	event := data[0].(map[string]interface{})
	assert.Equal(t, "Purchase", event["event_name"])
	assert.Equal(t, "website", event["action_source"])
	assert.Equal(t, "https://www.shop.example.org", event["event_source_url"])

	userData := event["user_data"].(map[string]interface{})
	assert.Equal(t, []interface{}{utils.HashEmail("buyer@example.com")}, userData["em"])
	assert.Equal(t, []interface{}{utils.HashPhone("15551234567")}, userData["ph"])
	assert.Equal(t, "203.0.113.7", userData["client_ip_address"])
	assert.Equal(t, "Mozilla/5.0", userData["client_user_agent"])
	assert.Equal(t, "fb.1.1700000000.1234567890", userData["fbp"])

	// Absent PII fields are omitted, not sent as hashes of "".
	_, hasFn := userData["fn"]
	assert.False(t, hasFn)
	_, hasFbc := userData["fbc"]
	assert.False(t, hasFbc)

	customData := event["custom_data"].(map[string]interface{})
	assert.Equal(t, value, customData["value"])
	assert.Equal(t, "USD", customData["currency"])
}

func TestSendTestEventCode(t *testing.T) {
	var envelope map[string]interface{}
	relay, _ := newTestRelay(t, &fakeTokenStore{token: activeToken()}, &fakeVerificationStore{},
		func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &envelope))
			w.Write([]byte(`{"events_received": 1}`))
		})

	fields := models.EventFields{GtmContainerID: "GTM-ABC1234", TestEventCode: "TEST12345"}
	result := relay.Send("Lead", fields, nil)
	require.True(t, result.Success)

	event := envelope["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "TEST12345", event["test_event_code"])
	assert.Equal(t, map[string]interface{}{}, event["custom_data"])
}

func TestSendUpstreamErrorDoesNotPoisonNextCall(t *testing.T) {
	var fail int32 = 1
	relay, calls := newTestRelay(t, &fakeTokenStore{token: activeToken()}, &fakeVerificationStore{},
		func(w http.ResponseWriter, r *http.Request) {
			if atomic.LoadInt32(&fail) == 1 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error": {"message": "Invalid parameter"}}`))
				return
			}
			w.Write([]byte(`{"events_received": 1}`))
		})

	fields := models.EventFields{GtmContainerID: "GTM-ABC1234"}

	result := relay.Send("Purchase", fields, nil)
	assert.False(t, result.Success)
	assert.Equal(t, FailureUpstreamHTTP, result.Kind)
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode())
	assert.Equal(t, "Meta event error", result.Message)
	assert.Contains(t, result.ErrorDetail, "HTTP 400")

	atomic.StoreInt32(&fail, 0)
	result = relay.Send("Purchase", fields, nil)
	assert.True(t, result.Success)
	assert.Equal(t, int64(2), atomic.LoadInt64(calls))
}

func TestSendTransportError(t *testing.T) {
	relay := NewRelay(&fakeTokenStore{token: activeToken()}, &fakeVerificationStore{}, nil, "http://127.0.0.1:1")

	result := relay.Send("Purchase", models.EventFields{GtmContainerID: "GTM-ABC1234"}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, FailureTransport, result.Kind)
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode())
}

func TestResolveSourceURL(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		want   string
	}{
		{"no verified domain", "", "https://www.example.com"},
		{"bare domain", "example.com", "https://www.example.com"},
		{"www domain", "www.example.com", "https://www.example.com"},
		{"subdomain", "shop.example.org", "https://www.shop.example.org"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := NewRelay(&fakeTokenStore{}, &fakeVerificationStore{domain: tt.domain}, nil, "")
			assert.Equal(t, tt.want, relay.resolveSourceURL("GTM-ABC1234"))
		})
	}
}

func TestResolveSourceURLLookupError(t *testing.T) {
	relay := NewRelay(&fakeTokenStore{}, &fakeVerificationStore{err: sql.ErrConnDone}, nil, "")
	assert.Equal(t, "https://www.example.com", relay.resolveSourceURL("GTM-ABC1234"))
}
