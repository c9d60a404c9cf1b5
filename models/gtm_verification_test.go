package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidContainerID(t *testing.T) {
	assert.True(t, ValidContainerID("GTM-ABC123"))
	assert.True(t, ValidContainerID("GTM-A1B2C3D4E5"))

	assert.False(t, ValidContainerID("GTM-abc123"))
	assert.False(t, ValidContainerID("GTM-ABC"))
	assert.False(t, ValidContainerID("GTM-ABC123456789"))
	assert.False(t, ValidContainerID("ABC123"))
	assert.False(t, ValidContainerID(""))
}

func TestValidDomainName(t *testing.T) {
	assert.True(t, ValidDomainName("example.com"))
	assert.True(t, ValidDomainName("shop.example.co.uk"))
	assert.True(t, ValidDomainName("my-store.example.org"))

	assert.False(t, ValidDomainName("-example.com"))
	assert.False(t, ValidDomainName("example-.com"))
	assert.False(t, ValidDomainName("https://example.com"))
	assert.False(t, ValidDomainName("exa mple.com"))
}

func TestGtmVerificationReceiverValidate(t *testing.T) {
	valid := GtmVerificationReceiver{GtmContainerID: "GTM-ABC123", DomainName: "example.com"}
	assert.NoError(t, valid.Validate())

	missing := GtmVerificationReceiver{}
	assert.Error(t, missing.Validate())

	badContainer := GtmVerificationReceiver{GtmContainerID: "not-a-container", DomainName: "example.com"}
	assert.Error(t, badContainer.Validate())

	badDomain := GtmVerificationReceiver{GtmContainerID: "GTM-ABC123", DomainName: "bad domain"}
	assert.Error(t, badDomain.Validate())
}

func TestGenerateVerificationToken(t *testing.T) {
	token := GenerateVerificationToken()

	assert.True(t, strings.HasPrefix(token, "CAPIFY_VERIFY_"))
	assert.Len(t, token, len("CAPIFY_VERIFY_")+32)
	assert.NotEqual(t, token, GenerateVerificationToken())
}

func TestGenerateTokenName(t *testing.T) {
	name := GenerateTokenName()

	assert.True(t, strings.HasPrefix(name, "Token_"))
	assert.NotEqual(t, name, GenerateTokenName())
}
