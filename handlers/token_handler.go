package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/capifyhq/capify/logger"
	"github.com/capifyhq/capify/middleware"
	"github.com/capifyhq/capify/models"
	"github.com/capifyhq/capify/services"
	"github.com/capifyhq/capify/utils"
)

func tokenByID(db *sql.DB, id, userID int) (models.FacebookToken, error) {
	var token models.FacebookToken
	var datasetName sql.NullString
	var lastUsed, updatedAt sql.NullTime
	err := db.QueryRow(`
		SELECT id, user_id, gtm_container_id, dataset_id, dataset_name, access_token, token_name, is_active, last_used, created_at, updated_at
		FROM facebook_tokens WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&token.ID, &token.UserID, &token.GtmContainerID, &token.DatasetID,
		&datasetName, &token.AccessToken, &token.TokenName, &token.IsActive,
		&lastUsed, &token.CreatedAt, &updatedAt)
	if err != nil {
		return token, err
	}
	token.DatasetName = datasetName.String
	if lastUsed.Valid {
		token.LastUsed = &lastUsed.Time
	}
	if updatedAt.Valid {
		token.UpdatedAt = &updatedAt.Time
	}
	return token, nil
}

func GetFacebookTokens(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		rows, err := db.Query(`
			SELECT id, user_id, gtm_container_id, dataset_id, dataset_name, access_token, token_name, is_active, last_used, created_at, updated_at
			FROM facebook_tokens WHERE user_id = $1 ORDER BY id`, userID)
		if err != nil {
			log.Println("Error querying tokens:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error retrieving tokens"))
			return
		}
		defer rows.Close()

		tokens := make([]models.FacebookToken, 0)
		for rows.Next() {
			var token models.FacebookToken
			var datasetName sql.NullString
			var lastUsed, updatedAt sql.NullTime
			err := rows.Scan(&token.ID, &token.UserID, &token.GtmContainerID, &token.DatasetID,
				&datasetName, &token.AccessToken, &token.TokenName, &token.IsActive,
				&lastUsed, &token.CreatedAt, &updatedAt)
			if err != nil {
				log.Println("Error scanning token:", err)
				utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error scanning token"))
				return
			}
			token.DatasetName = datasetName.String
			if lastUsed.Valid {
				token.LastUsed = &lastUsed.Time
			}
			if updatedAt.Valid {
				token.UpdatedAt = &updatedAt.Time
			}
			tokens = append(tokens, token)
		}
		if err := rows.Err(); err != nil {
			log.Println("Error iterating tokens:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error iterating tokens"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"tokens": tokens})
	}
}

// CreateFacebookToken stores Conversions API credentials for a container.
// The container must have a verified domain, and each container holds at
// most one token.
func CreateFacebookToken(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		var receiver models.FacebookTokenReceiver
		if err := json.NewDecoder(r.Body).Decode(&receiver); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}

		if err := receiver.Validate(); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		var verifiedID int
		err := db.QueryRow(`
			SELECT id FROM gtm_verifications
			WHERE user_id = $1 AND gtm_container_id = $2 AND is_verified = TRUE`,
			userID, receiver.GtmContainerID).Scan(&verifiedID)
		if err == sql.ErrNoRows {
			utils.WriteErrorResponse(w, http.StatusBadRequest,
				errors.New("this GTM container ID is not verified; complete the GTM verification first"))
			return
		} else if err != nil {
			log.Println("Error checking verification:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		var existingID int
		err = db.QueryRow(`SELECT id FROM facebook_tokens WHERE user_id = $1 AND gtm_container_id = $2`,
			userID, receiver.GtmContainerID).Scan(&existingID)
		if err == nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest,
				fmt.Errorf("a token already exists for GTM container %s; each verification holds a single token", receiver.GtmContainerID))
			return
		} else if err != sql.ErrNoRows {
			log.Println("Error checking for existing token:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		tokenName := receiver.TokenName
		if tokenName == "" {
			tokenName = models.GenerateTokenName()
		}

		token := models.FacebookToken{
			UserID:         userID,
			GtmContainerID: receiver.GtmContainerID,
			DatasetID:      receiver.DatasetID,
			DatasetName:    receiver.DatasetName,
			AccessToken:    receiver.AccessToken,
			TokenName:      tokenName,
			IsActive:       true,
		}

		err = db.QueryRow(`
			INSERT INTO facebook_tokens (user_id, gtm_container_id, dataset_id, dataset_name, access_token, token_name, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			RETURNING id, created_at`,
			token.UserID, token.GtmContainerID, token.DatasetID,
			sql.NullString{String: token.DatasetName, Valid: token.DatasetName != ""},
			token.AccessToken, token.TokenName,
		).Scan(&token.ID, &token.CreatedAt)
		if err != nil {
			log.Println("Error inserting token:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error creating token"))
			return
		}

		utils.WriteJSON(w, http.StatusCreated, token)
	}
}

func UpdateFacebookToken(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		id, err := utils.ExtractIDFromURL(r)
		if err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		token, err := tokenByID(db, id, userID)
		if err == sql.ErrNoRows {
			utils.WriteErrorResponse(w, http.StatusNotFound, errors.New("token not found"))
			return
		} else if err != nil {
			log.Println("Error retrieving token:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		var update models.FacebookTokenUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}

		if update.AccessToken != nil {
			token.AccessToken = *update.AccessToken
		}
		if update.TokenName != nil {
			token.TokenName = *update.TokenName
		}
		if update.IsActive != nil {
			token.IsActive = *update.IsActive
		}
		if update.DatasetID != nil {
			token.DatasetID = *update.DatasetID
		}
		if update.GtmContainerID != nil {
			token.GtmContainerID = *update.GtmContainerID
		}

		_, err = db.Exec(`
			UPDATE facebook_tokens
			SET access_token = $1, token_name = $2, is_active = $3, dataset_id = $4, gtm_container_id = $5, updated_at = NOW()
			WHERE id = $6`,
			token.AccessToken, token.TokenName, token.IsActive, token.DatasetID, token.GtmContainerID, id)
		if err != nil {
			log.Println("Error updating token:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error updating token"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, token)
	}
}

func DeleteFacebookToken(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		id, err := utils.ExtractIDFromURL(r)
		if err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		result, err := db.Exec(`DELETE FROM facebook_tokens WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			log.Println("Error deleting token:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("error deleting token"))
			return
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}
		if rowsAffected == 0 {
			utils.WriteErrorResponse(w, http.StatusNotFound, errors.New("token not found"))
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]string{"msg": "Token deleted successfully"})
	}
}

// GetTokenInfo returns the dataset id and access token for a container, for
// the client-side GTM scripts. No auth: the scripts run on public pages.
// Only active tokens are served and every request lands in the event log.
func GetTokenInfo(tokens *services.SQLTokenStore, eventLog *logger.EventLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		containerID, err := utils.ExtractContainerIDFromURL(r)
		if err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		sourceIP := utils.GetIPAddress(r)

		token, err := tokens.ActiveTokenByContainerID(containerID)
		if err == sql.ErrNoRows {
			eventLog.TokenInfoRequest(containerID, sourceIP, false, "Token not found or inactive")
			utils.WriteErrorResponse(w, http.StatusNotFound, errors.New("token not found or inactive"))
			return
		} else if err != nil {
			log.Println("Error looking up token info:", err)
			eventLog.TokenInfoRequest(containerID, sourceIP, false, err.Error())
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		eventLog.TokenInfoRequest(containerID, sourceIP, true, "")

		utils.WriteJSON(w, http.StatusOK, map[string]string{
			"pixel_id":     token.DatasetID, // dataset_id doubles as pixel_id
			"access_token": token.AccessToken,
			"dataset_id":   token.DatasetID,
		})
	}
}

// GetTokenScript renders the GTM custom-HTML snippet that wires a page's
// dataLayer to the event endpoints of this server.
func GetTokenScript(db *sql.DB, eventLog *logger.EventLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.UserID(r.Context())

		id, err := utils.ExtractIDFromURL(r)
		if err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		token, err := tokenByID(db, id, userID)
		if err == sql.ErrNoRows {
			utils.WriteErrorResponse(w, http.StatusNotFound, errors.New("token not found"))
			return
		} else if err != nil {
			log.Println("Error retrieving token:", err)
			utils.WriteErrorResponse(w, http.StatusInternalServerError, errors.New("internal server error"))
			return
		}

		eventLog.ScriptGenerated(token.ID, token.GtmContainerID, userID)

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"script_template": tokenScript(r, token),
			"token":           token,
		})
	}
}

func tokenScript(r *http.Request, token models.FacebookToken) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	apiURL := fmt.Sprintf("%s://%s/api/facebook", scheme, r.Host)

	return fmt.Sprintf(`// Capify Facebook CAPI Script
// Generated for Pixel ID: %[1]s
// GTM Container ID: %[2]s

(function() {
    'use strict';

    const CAPIFY_API_URL = '%[3]s';
    const GTM_CONTAINER_ID = '%[2]s';

    function send(path, payload) {
        payload.gtm_container_id = GTM_CONTAINER_ID;
        payload.client_user_agent = navigator.userAgent;
        fetch(CAPIFY_API_URL + '/events/' + path, {
            method: 'POST',
            headers: { 'Content-Type': 'application/json' },
            body: JSON.stringify(payload)
        }).catch(function(err) {
            console.error('Capify: event send failed:', err);
        });
    }

    const EVENT_PATHS = {
        'purchase': 'purchase',
        'lead': 'lead',
        'add_to_cart': 'add-to-cart',
        'view_item': 'view-content',
        'begin_checkout': 'initiate-checkout',
        'page_view': 'page-view'
    };

    if (window.dataLayer) {
        const originalPush = window.dataLayer.push;
        window.dataLayer.push = function() {
            const event = arguments[0];
            if (event && EVENT_PATHS[event.event]) {
                send(EVENT_PATHS[event.event], Object.assign({}, event));
            }
            return originalPush.apply(this, arguments);
        };
    }

    window.capifySendEvent = send;

    console.log('Capify CAPI script loaded');
})();
`, token.DatasetID, token.GtmContainerID, apiURL)
}
