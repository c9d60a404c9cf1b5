package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capifyhq/capify/models"
)

func TestVerificationURL(t *testing.T) {
	assert.Equal(t, "https://example.com", VerificationURL("example.com"))
	assert.Equal(t, "https://example.com", VerificationURL("https://example.com"))
	assert.Equal(t, "http://example.com", VerificationURL("http://example.com"))
	assert.Equal(t, "https://www.shop.example.org", VerificationURL("www.shop.example.org"))
}

func TestCheckTokenFindsTokenOnHomepage(t *testing.T) {
	token := "CAPIFY_VERIFY_0123456789abcdef"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><meta name="capify-verification" content="%s"></head><body></body></html>`, token)
	}))
	defer server.Close()

	fetcher := NewDomainFetcher()
	found, err := fetcher.CheckToken(server.URL, token)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCheckTokenMissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>nothing to see here</body></html>`)
	}))
	defer server.Close()

	fetcher := NewDomainFetcher()
	found, err := fetcher.CheckToken(server.URL, "CAPIFY_VERIFY_0123456789abcdef")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCheckTokenNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	fetcher := NewDomainFetcher()
	_, err := fetcher.CheckToken(server.URL, "CAPIFY_VERIFY_0123456789abcdef")
	assert.ErrorContains(t, err, "HTTP 403")
}

func TestCheckTokenUnreachableDomain(t *testing.T) {
	fetcher := NewDomainFetcher()
	_, err := fetcher.CheckToken("http://127.0.0.1:1", "CAPIFY_VERIFY_0123456789abcdef")
	assert.ErrorContains(t, err, "failed to access website")
}

func TestVerificationScriptEmbedsTokenAndContainer(t *testing.T) {
	v := models.GtmVerification{
		GtmContainerID:    "GTM-ABC1234",
		DomainName:        "example.com",
		VerificationToken: "CAPIFY_VERIFY_0123456789abcdef",
	}

	script := verificationScript(v)

	assert.Contains(t, script, v.VerificationToken)
	assert.Contains(t, script, v.GtmContainerID)
	assert.Contains(t, script, `name="capify-verification-token"`)
}
