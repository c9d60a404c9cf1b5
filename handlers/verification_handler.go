package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/capifyhq/capify/middleware"
	"github.com/capifyhq/capify/models"
	"github.com/capifyhq/capify/services"
	"github.com/capifyhq/capify/utils"
)

// DomainFetcher fetches the claimed domain's homepage during verification.
type DomainFetcher struct {
	Client *http.Client
}

func NewDomainFetcher() *DomainFetcher {
	return &DomainFetcher{Client: &http.Client{Timeout: 10 * time.Second}}
}

// VerificationURL normalizes the stored domain into the URL that gets
// fetched. Domains stored without a scheme default to https.
func VerificationURL(domain string) string {
	protocol := "https"
	if strings.HasPrefix(domain, "http://") {
		protocol = "http"
	}
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return fmt.Sprintf("%s://%s", protocol, domain)
}

// CheckToken fetches the homepage and reports whether the verification
// token appears in the response body.
func (f *DomainFetcher) CheckToken(domain, token string) (bool, error) {
	url := VerificationURL(domain)

	resp, err := f.Client.Get(url)
	if err != nil {
		return false, fmt.Errorf("failed to access website: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("website not accessible (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return false, fmt.Errorf("failed to read website response: %w", err)
	}

	return strings.Contains(string(body), token), nil
}

const verificationColumns = `id, user_id, gtm_container_id, domain_name, verification_token, is_verified, verified_at, created_at, updated_at`

func scanVerification(scan func(dest ...interface{}) error) (models.GtmVerification, error) {
	var v models.GtmVerification
	var verifiedAt, updatedAt sql.NullTime
	err := scan(&v.ID, &v.UserID, &v.GtmContainerID, &v.DomainName,
		&v.VerificationToken, &v.IsVerified, &verifiedAt, &v.CreatedAt, &updatedAt)
	if err != nil {
		return v, err
	}
	if verifiedAt.Valid {
		v.VerifiedAt = &verifiedAt.Time
	}
	if updatedAt.Valid {
		v.UpdatedAt = &updatedAt.Time
	}
	return v, nil
}

func verificationByID(db *sql.DB, id, userID int) (models.GtmVerification, error) {
	row := db.QueryRow(`SELECT `+verificationColumns+` FROM gtm_verifications WHERE id = $1 AND user_id = $2`, id, userID)
	return scanVerification(row.Scan)
}

func GetGtmVerifications(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		rows, err := db.Query(`SELECT `+verificationColumns+` FROM gtm_verifications WHERE user_id = $1 ORDER BY id`, userID)
		if err != nil {
			log.Println("Error querying verifications:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error retrieving verifications"))
			return
		}
		defer rows.Close()

		verifications := make([]models.GtmVerification, 0)
		for rows.Next() {
			v, err := scanVerification(rows.Scan)
			if err != nil {
				log.Println("Error scanning verification:", err)
				utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error scanning verification"))
				return
			}
			verifications = append(verifications, v)
		}
		if err := rows.Err(); err != nil {
			log.Println("Error iterating verifications:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error iterating verifications"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"verifications": verifications})
	}
}

func CreateGtmVerification(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		var receiver models.GtmVerificationReceiver
		if err := json.NewDecoder(r.Body).Decode(&receiver); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}

		if err := receiver.Validate(); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		// One verification per domain per user
		var existingID int
		err := db.QueryRow(`SELECT id FROM gtm_verifications WHERE user_id = $1 AND domain_name = $2`,
			userID, receiver.DomainName).Scan(&existingID)
		if err == nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("a GTM verification already exists for this domain"))
			return
		} else if err != sql.ErrNoRows {
			log.Println("Error checking for existing verification:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		// Free accounts hold a single container; a paid plan lifts the cap.
		user, err := services.GetUserByID(db, userID)
		if err != nil {
			log.Println("Error retrieving user:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}
		if !services.HasActiveSubscription(user) {
			var count int
			if err := db.QueryRow(`SELECT COUNT(*) FROM gtm_verifications WHERE user_id = $1`, userID).Scan(&count); err != nil {
				log.Println("Error counting verifications:", err)
				utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
				return
			}
			if count >= 1 {
				utils.WriteErrorResponse(w, http.StatusPaymentRequired, errors.New("free plan allows a single GTM container; upgrade to add more"))
				return
			}
		}

		verificationToken := models.GenerateVerificationToken()

		row := db.QueryRow(`
			INSERT INTO gtm_verifications (user_id, gtm_container_id, domain_name, verification_token, is_verified)
			VALUES ($1, $2, $3, $4, FALSE)
			RETURNING `+verificationColumns,
			userID, receiver.GtmContainerID, receiver.DomainName, verificationToken)

		verification, err := scanVerification(row.Scan)
		if err != nil {
			log.Println("Error inserting verification:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error creating verification"))
			return
		}

		utils.WriteJSON(w, http.StatusCreated, verification)
	}
}

func UpdateGtmVerification(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		id, err := utils.ExtractIDFromURL(r)
		if err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		verification, err := verificationByID(db, id, userID)
		if err == sql.ErrNoRows {
			utils.WriteErrorResponse(w, http.StatusNotFound, errors.New("GTM verification not found"))
			return
		} else if err != nil {
			log.Println("Error retrieving verification:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		var body struct {
			GtmContainerID *string `json:"gtm_container_id"`
			DomainName     *string `json:"domain_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}

		if body.GtmContainerID != nil {
			if !models.ValidContainerID(*body.GtmContainerID) {
				utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid GTM container ID format, expected GTM-XXXXXX"))
				return
			}
			verification.GtmContainerID = *body.GtmContainerID
		}
		if body.DomainName != nil {
			if !models.ValidDomainName(*body.DomainName) {
				utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid domain format"))
				return
			}
			verification.DomainName = *body.DomainName
		}

		_, err = db.Exec(`UPDATE gtm_verifications SET gtm_container_id = $1, domain_name = $2, updated_at = NOW() WHERE id = $3`,
			verification.GtmContainerID, verification.DomainName, id)
		if err != nil {
			log.Println("Error updating verification:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error updating verification"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, verification)
	}
}

func DeleteGtmVerification(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		id, err := utils.ExtractIDFromURL(r)
		if err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		verification, err := verificationByID(db, id, userID)
		if err == sql.ErrNoRows {
			utils.WriteErrorResponse(w, http.StatusNotFound, errors.New("GTM verification not found"))
			return
		} else if err != nil {
			log.Println("Error retrieving verification:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		// Tokens for the container die with the verification.
		result, err := db.Exec(`DELETE FROM facebook_tokens WHERE user_id = $1 AND gtm_container_id = $2`,
			userID, verification.GtmContainerID)
		if err != nil {
			log.Println("Error deleting container tokens:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error deleting container tokens"))
			return
		}
		deletedTokens, _ := result.RowsAffected()

		_, err = db.Exec(`DELETE FROM gtm_verifications WHERE id = $1`, id)
		if err != nil {
			log.Println("Error deleting verification:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error deleting verification"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"msg":                  "GTM verification deleted successfully",
			"deleted_tokens_count": deletedTokens,
		})
	}
}

// VerifyGtmVerification fetches the claimed domain's homepage and flips the
// record to verified when the token is found in the body. The transition
// happens at most once; an already-verified record is a 400.
func VerifyGtmVerification(db *sql.DB, fetcher *DomainFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		id, err := utils.ExtractIDFromURL(r)
		if err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		verification, err := verificationByID(db, id, userID)
		if err == sql.ErrNoRows {
			utils.WriteErrorResponse(w, http.StatusNotFound, errors.New("GTM verification not found"))
			return
		} else if err != nil {
			log.Println("Error retrieving verification:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		if verification.IsVerified {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("GTM verification already verified"))
			return
		}

		found, err := fetcher.CheckToken(verification.DomainName, verification.VerificationToken)
		if err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
				"msg":   "Failed to access website",
				"error": err.Error(),
				"url":   VerificationURL(verification.DomainName),
			})
			return
		}

		if !found {
			utils.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
				"msg":                "Verification token not found on website",
				"verification_token": verification.VerificationToken,
				"url":                VerificationURL(verification.DomainName),
			})
			return
		}

		now := time.Now()
		_, err = db.Exec(`UPDATE gtm_verifications SET is_verified = TRUE, verified_at = $1, updated_at = $1 WHERE id = $2`, now, id)
		if err != nil {
			log.Println("Error updating verification:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error updating verification"))
			return
		}

		verification.IsVerified = true
		verification.VerifiedAt = &now

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"msg":          "GTM verification successful",
			"verification": verification,
		})
	}
}

func GetVerificationScript(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		id, err := utils.ExtractIDFromURL(r)
		if err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		verification, err := verificationByID(db, id, userID)
		if err == sql.ErrNoRows {
			utils.WriteErrorResponse(w, http.StatusNotFound, errors.New("GTM verification not found"))
			return
		} else if err != nil {
			log.Println("Error retrieving verification:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]string{
			"verification_token":  verification.VerificationToken,
			"verification_script": verificationScript(verification),
		})
	}
}

func verificationScript(v models.GtmVerification) string {
	return fmt.Sprintf(`<!-- CAPIFY GTM Verification Script -->
<meta name="capify-verification-token" content="%[1]s">
<div id="capify-verification" style="display:none">%[1]s</div>
<script>
(function() {
    'use strict';
    window.CAPIFY_VERIFICATION_TOKEN = '%[1]s';
    if (typeof window.dataLayer !== 'undefined') {
        window.dataLayer.push({
            'event': 'capify_verification',
            'capify_verification_token': '%[1]s',
            'gtm_container_id': '%[2]s',
            'domain': '%[3]s'
        });
    }
})();
</script>
`, v.VerificationToken, v.GtmContainerID, v.DomainName)
}
