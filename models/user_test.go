package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserRegisterValidate(t *testing.T) {
	valid := UserRegister{Email: "user@example.com", Password: "longenough"}
	assert.NoError(t, valid.Validate())

	noEmail := UserRegister{Password: "longenough"}
	assert.EqualError(t, noEmail.Validate(), "email is required")

	badEmail := UserRegister{Email: "not-an-email", Password: "longenough"}
	assert.EqualError(t, badEmail.Validate(), "invalid email format")

	shortPassword := UserRegister{Email: "user@example.com", Password: "short"}
	assert.EqualError(t, shortPassword.Validate(), "password must be at least 8 characters")
}

func TestUserLoginValidate(t *testing.T) {
	valid := UserLogin{Email: "user@example.com", Password: "whatever"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, (&UserLogin{Password: "whatever"}).Validate())
	assert.Error(t, (&UserLogin{Email: "user@example.com"}).Validate())
}

func TestFacebookTokenReceiverValidate(t *testing.T) {
	valid := FacebookTokenReceiver{
		AccessToken:    "EAAtoken",
		DatasetID:      "123456789",
		GtmContainerID: "GTM-ABC123",
	}
	assert.NoError(t, valid.Validate())

	assert.Error(t, (&FacebookTokenReceiver{DatasetID: "1", GtmContainerID: "GTM-ABC123"}).Validate())
	assert.Error(t, (&FacebookTokenReceiver{AccessToken: "x", GtmContainerID: "GTM-ABC123"}).Validate())
	assert.Error(t, (&FacebookTokenReceiver{AccessToken: "x", DatasetID: "1"}).Validate())
}
