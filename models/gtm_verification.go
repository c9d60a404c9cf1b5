package models

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"regexp"
	"time"
)

var (
	containerIDPattern = regexp.MustCompile(`^GTM-[A-Z0-9]{6,10}$`)
	domainNamePattern  = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)
)

// GtmVerification is the proof-of-ownership record tying a GTM container id
// to a domain. It starts unverified and flips to verified exactly once.
type GtmVerification struct {
	ID                int        `json:"id"`
	UserID            int        `json:"userId"`
	GtmContainerID    string     `json:"gtm_container_id"`
	DomainName        string     `json:"domain_name"`
	VerificationToken string     `json:"verification_token"`
	IsVerified        bool       `json:"is_verified"`
	VerifiedAt        *time.Time `json:"verified_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

type GtmVerificationReceiver struct {
	GtmContainerID string `json:"gtm_container_id"`
	DomainName     string `json:"domain_name"`
}

func (v *GtmVerificationReceiver) Validate() error {
	if v.GtmContainerID == "" || v.DomainName == "" {
		return errors.New("gtm_container_id and domain_name are required")
	}
	if !ValidContainerID(v.GtmContainerID) {
		return errors.New("invalid GTM container ID format, expected GTM-XXXXXX")
	}
	if !ValidDomainName(v.DomainName) {
		return errors.New("invalid domain format")
	}
	return nil
}

func ValidContainerID(id string) bool {
	return containerIDPattern.MatchString(id)
}

func ValidDomainName(domain string) bool {
	return domainNamePattern.MatchString(domain)
}

// GenerateVerificationToken returns the opaque token the user embeds in
// their homepage to prove domain ownership.
func GenerateVerificationToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return "CAPIFY_VERIFY_" + hex.EncodeToString(b)
}
