package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Meta's Conversions API matches user_data fields on unsalted SHA-256
// digests, so every helper here is deterministic and salt-free. Empty input
// returns "" and the caller omits the field from the payload entirely.

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashEmail lower-cases and trims the address before hashing.
func HashEmail(email string) string {
	if email == "" {
		return ""
	}
	return sha256Hex(strings.ToLower(strings.TrimSpace(email)))
}

// HashPhone strips everything but digits. A value with no digits at all is
// treated as absent.
func HashPhone(phone string) string {
	if phone == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return sha256Hex(b.String())
}

// HashName covers both first and last name.
func HashName(name string) string {
	if name == "" {
		return ""
	}
	return sha256Hex(strings.ToLower(strings.TrimSpace(name)))
}

func HashGender(gender string) string {
	if gender == "" {
		return ""
	}
	return sha256Hex(strings.ToLower(strings.TrimSpace(gender)))
}

// HashBirthday hashes the value as given. No date reformatting is applied;
// callers are expected to send YYYYMMDD already.
func HashBirthday(birthday string) string {
	if birthday == "" {
		return ""
	}
	return sha256Hex(birthday)
}

func HashCity(city string) string {
	if city == "" {
		return ""
	}
	return sha256Hex(strings.ToLower(strings.TrimSpace(city)))
}

func HashState(state string) string {
	if state == "" {
		return ""
	}
	return sha256Hex(strings.ToLower(strings.TrimSpace(state)))
}

// HashZip hashes the value as given, digits or not.
func HashZip(zip string) string {
	if zip == "" {
		return ""
	}
	return sha256Hex(zip)
}

func HashCountry(country string) string {
	if country == "" {
		return ""
	}
	return sha256Hex(strings.ToLower(strings.TrimSpace(country)))
}

// HashExternalID hashes the id verbatim, preserving case.
func HashExternalID(externalID string) string {
	if externalID == "" {
		return ""
	}
	return sha256Hex(externalID)
}
