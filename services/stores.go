package services

import (
	"database/sql"
	"time"

	"github.com/capifyhq/capify/models"
)

// SQLTokenStore is the Postgres-backed TokenStore.
type SQLTokenStore struct {
	DB *sql.DB
}

const tokenColumns = `id, user_id, gtm_container_id, dataset_id, dataset_name, access_token, token_name, is_active, last_used, created_at, updated_at`

func scanToken(row *sql.Row) (models.FacebookToken, error) {
	var token models.FacebookToken
	var datasetName sql.NullString
	var lastUsed, updatedAt sql.NullTime
	err := row.Scan(
		&token.ID, &token.UserID, &token.GtmContainerID, &token.DatasetID,
		&datasetName, &token.AccessToken, &token.TokenName, &token.IsActive,
		&lastUsed, &token.CreatedAt, &updatedAt,
	)
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

// TokenByContainerID returns the first token registered for a container.
// Returns sql.ErrNoRows when none exists.
func (s *SQLTokenStore) TokenByContainerID(containerID string) (models.FacebookToken, error) {
	row := s.DB.QueryRow(
		`SELECT `+tokenColumns+` FROM facebook_tokens WHERE gtm_container_id = $1 ORDER BY id LIMIT 1`,
		containerID,
	)
	return scanToken(row)
}

// ActiveTokenByContainerID is the token-info lookup used by client-side GTM
// scripts; inactive tokens are invisible to it.
func (s *SQLTokenStore) ActiveTokenByContainerID(containerID string) (models.FacebookToken, error) {
	row := s.DB.QueryRow(
		`SELECT `+tokenColumns+` FROM facebook_tokens WHERE gtm_container_id = $1 AND is_active = TRUE ORDER BY id LIMIT 1`,
		containerID,
	)
	return scanToken(row)
}

func (s *SQLTokenStore) TouchLastUsed(tokenID int) error {
	_, err := s.DB.Exec(`UPDATE facebook_tokens SET last_used = $1 WHERE id = $2`, time.Now(), tokenID)
	return err
}

// SQLVerificationStore is the Postgres-backed VerificationStore.
type SQLVerificationStore struct {
	DB *sql.DB
}

// VerifiedDomain returns the domain of the verified record for the
// container, or "" when no verified record exists.
func (s *SQLVerificationStore) VerifiedDomain(containerID string) (string, error) {
	var domain string
	err := s.DB.QueryRow(
		`SELECT domain_name FROM gtm_verifications WHERE gtm_container_id = $1 AND is_verified = TRUE ORDER BY id LIMIT 1`,
		containerID,
	).Scan(&domain)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return domain, nil
}
