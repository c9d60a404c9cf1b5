package models

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// FacebookToken holds the Conversions API credentials for one GTM container.
type FacebookToken struct {
	ID             int        `json:"id"`
	UserID         int        `json:"userId"`
	GtmContainerID string     `json:"gtm_container_id"`
	DatasetID      string     `json:"dataset_id"`
	DatasetName    string     `json:"dataset_name,omitempty"`
	AccessToken    string     `json:"access_token"`
	TokenName      string     `json:"token_name"`
	IsActive       bool       `json:"is_active"`
	LastUsed       *time.Time `json:"last_used"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

type FacebookTokenReceiver struct {
	AccessToken    string `json:"access_token"`
	DatasetID      string `json:"dataset_id"`
	DatasetName    string `json:"dataset_name"`
	GtmContainerID string `json:"gtm_container_id"`
	TokenName      string `json:"token_name"`
}

type FacebookTokenUpdate struct {
	AccessToken    *string `json:"access_token"`
	TokenName      *string `json:"token_name"`
	IsActive       *bool   `json:"is_active"`
	DatasetID      *string `json:"dataset_id"`
	GtmContainerID *string `json:"gtm_container_id"`
}

func (t *FacebookTokenReceiver) Validate() error {
	if t.AccessToken == "" || t.DatasetID == "" || t.GtmContainerID == "" {
		return errors.New("access_token, dataset_id and gtm_container_id are required")
	}
	return nil
}

// GenerateTokenName returns a default name for tokens created without one.
func GenerateTokenName() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "Token_" + hex.EncodeToString(b)
}
