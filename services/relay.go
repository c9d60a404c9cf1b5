package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/capifyhq/capify/logger"
	"github.com/capifyhq/capify/models"
	"github.com/capifyhq/capify/utils"
)

const (
	DefaultMetaAPIBase = "https://graph.facebook.com/v18.0"

	// Used as event_source_url when the container has no verified domain.
	fallbackSourceURL = "https://www.example.com"
)

// TokenStore resolves Conversions API credentials for a container.
type TokenStore interface {
	TokenByContainerID(containerID string) (models.FacebookToken, error)
	TouchLastUsed(tokenID int) error
}

// VerificationStore resolves the verified domain for a container. An empty
// string means no verified domain exists.
type VerificationStore interface {
	VerifiedDomain(containerID string) (string, error)
}

// FailureKind tags every way a relay attempt can fail. None of these are
// retried inside the relay.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureMissingContainer   FailureKind = "MissingContainer"
	FailureCredentialNotFound FailureKind = "CredentialNotFound"
	FailureCredentialInactive FailureKind = "CredentialInactive"
	FailureUpstreamHTTP       FailureKind = "UpstreamHTTPError"
	FailureTransport          FailureKind = "TransportError"
	FailureInternal           FailureKind = "InternalError"
)

// Result is the structured outcome of one relay attempt. Failures are
// reported here, never raised.
type Result struct {
	Success      bool                   `json:"success"`
	Kind         FailureKind            `json:"-"`
	Message      string                 `json:"msg"`
	ErrorDetail  string                 `json:"error,omitempty"`
	MetaResponse map[string]interface{} `json:"meta_response,omitempty"`
}

// StatusCode maps the result onto the HTTP status the event endpoints reply with.
func (r Result) StatusCode() int {
	switch r.Kind {
	case FailureNone:
		return http.StatusOK
	case FailureMissingContainer:
		return http.StatusBadRequest
	case FailureCredentialNotFound:
		return http.StatusNotFound
	case FailureCredentialInactive:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func failure(kind FailureKind, message, detail string) Result {
	return Result{Kind: kind, Message: message, ErrorDetail: detail}
}

// Relay turns one logical conversion event into one outbound Graph API call.
// It holds no mutable state; concurrent Send calls are independent.
type Relay struct {
	Tokens        TokenStore
	Verifications VerificationStore
	Log           *logger.EventLogger
	Client        *http.Client
	BaseURL       string
}

func NewRelay(tokens TokenStore, verifications VerificationStore, eventLog *logger.EventLogger, baseURL string) *Relay {
	if baseURL == "" {
		baseURL = DefaultMetaAPIBase
	}
	return &Relay{
		Tokens:        tokens,
		Verifications: verifications,
		Log:           eventLog,
		Client:        &http.Client{Timeout: 30 * time.Second},
		BaseURL:       baseURL,
	}
}

// Send relays a single event. customData may be nil.
func (r *Relay) Send(eventName string, fields models.EventFields, customData map[string]interface{}) Result {
	start := time.Now()
	containerID := fields.GtmContainerID

	r.Log.EventReceived(eventName, containerID, fields, fields.ClientUserAgent)

	result := r.send(eventName, containerID, fields, customData, start)

	r.Log.EventComplete(eventName, containerID, time.Since(start), result.Success)
	return result
}

func (r *Relay) send(eventName, containerID string, fields models.EventFields, customData map[string]interface{}, start time.Time) Result {
	if containerID == "" {
		return failure(FailureMissingContainer, "GTM Container ID is required", "")
	}

	token, err := r.Tokens.TokenByContainerID(containerID)
	if errors.Is(err, sql.ErrNoRows) {
		return failure(FailureCredentialNotFound, "No Facebook token found for this GTM Container ID", "")
	} else if err != nil {
		return failure(FailureInternal, "Error looking up Facebook token", err.Error())
	}
	if !token.IsActive {
		return failure(FailureCredentialInactive, "Token is inactive. Please activate the token to send events.", "")
	}

	event := map[string]interface{}{
		"event_name":       eventName,
		"event_time":       time.Now().Unix(),
		"action_source":    "website",
		"event_source_url": r.resolveSourceURL(containerID),
		"user_data":        buildUserData(fields),
		"custom_data":      customData,
	}
	if customData == nil {
		event["custom_data"] = map[string]interface{}{}
	}
	if fields.TestEventCode != "" {
		event["test_event_code"] = fields.TestEventCode
	}

	envelope := map[string]interface{}{
		"data":         []interface{}{event},
		"access_token": token.AccessToken,
	}

	r.Log.MetaRequestSent(eventName, containerID, token.DatasetID, token.AccessToken, event)

	metaResponse, err := r.post(token.DatasetID, envelope)
	if err != nil {
		kind := FailureTransport
		var upstreamErr *upstreamError
		if errors.As(err, &upstreamErr) {
			kind = FailureUpstreamHTTP
		}
		r.Log.MetaResponseReceived(eventName, containerID, nil, false, err.Error())
		return failure(kind, "Meta event error", err.Error())
	}

	r.Log.MetaResponseReceived(eventName, containerID, metaResponse, true, "")

	// Best-effort; a failed touch never fails the relay call.
	go func(id int) {
		if err := r.Tokens.TouchLastUsed(id); err != nil {
			log.Println("Error updating token last_used:", err)
		}
	}(token.ID)

	return Result{Success: true, Message: "Event sent to Meta", MetaResponse: metaResponse}
}

// resolveSourceURL returns the verified domain for the container as an
// https:// URL with a www. prefix, or the fixed placeholder when the
// container has no verified domain.
func (r *Relay) resolveSourceURL(containerID string) string {
	domain, err := r.Verifications.VerifiedDomain(containerID)
	if err != nil {
		log.Println("Error looking up verified domain:", err)
		return fallbackSourceURL
	}
	if domain == "" {
		return fallbackSourceURL
	}
	if !strings.HasPrefix(domain, "http") {
		domain = "https://" + domain
	}
	if !strings.Contains(domain, "www.") {
		domain = strings.Replace(domain, "https://", "https://www.", 1)
	}
	return domain
}

// buildUserData hashes the PII fields and passes the Meta identifiers
// through verbatim. Absent fields are omitted entirely, never sent as empty
// hashes. The hashed fields are single-element arrays per the Graph API
// field contract.
func buildUserData(fields models.EventFields) map[string]interface{} {
	userData := make(map[string]interface{})

	hashed := []struct {
		key  string
		hash string
	}{
		{"em", utils.HashEmail(fields.Email)},
		{"ph", utils.HashPhone(fields.Phone)},
		{"fn", utils.HashName(fields.FirstName)},
		{"ln", utils.HashName(fields.LastName)},
		{"ge", utils.HashGender(fields.Gender)},
		{"db", utils.HashBirthday(fields.Birthday)},
		{"ct", utils.HashCity(fields.City)},
		{"st", utils.HashState(fields.State)},
		{"zp", utils.HashZip(fields.Zip)},
		{"country", utils.HashCountry(fields.Country)},
		{"external_id", utils.HashExternalID(fields.ExternalID)},
	}
	for _, f := range hashed {
		if f.hash != "" {
			userData[f.key] = []string{f.hash}
		}
	}

	if fields.ClientIPAddress != "" {
		userData["client_ip_address"] = fields.ClientIPAddress
	}
	if fields.ClientUserAgent != "" {
		userData["client_user_agent"] = fields.ClientUserAgent
	}
	if fields.Fbc != "" {
		userData["fbc"] = fields.Fbc
	}
	if fields.Fbp != "" {
		userData["fbp"] = fields.Fbp
	}

	return userData
}

type upstreamError struct {
	status int
	body   string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

func (r *Relay) post(datasetID string, envelope map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/events", r.BaseURL, datasetID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Capify-EventSender/1.0")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &upstreamError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	var metaResponse map[string]interface{}
	if err := json.Unmarshal(respBody, &metaResponse); err != nil {
		// A 2xx with an unparseable body still counts as delivered.
		metaResponse = map[string]interface{}{"raw": string(respBody)}
	}
	return metaResponse, nil
}
