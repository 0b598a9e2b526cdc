package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/userhub-io/userhub-api/internal/models"
	appErrors "github.com/userhub-io/userhub-api/pkg/errors"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint hits.
const pgUniqueViolation = "23505"

// TokenRepository provides database access for refresh token records.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create persists a refresh token entry. A token-string collision surfaces
// as ErrDuplicateToken so callers can mint a fresh string and retry.
func (r *TokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at, issued_by, device_info) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :issued_by, :device_info)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return appErrors.Wrap(err, appErrors.ErrDuplicateToken.Code, appErrors.ErrDuplicateToken.Status, "refresh token collision")
		}
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindByToken returns a refresh token by token string. Absence is reported
// as sql.ErrNoRows; the caller decides how to surface it.
func (r *TokenRepository) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, issued_by, device_info FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// Revoke marks a token as revoked. The conditional update is the atomicity
// guarantee for rotation: of two concurrent redemptions of the same record,
// exactly one observes revoked=true here. Returns true when this call
// performed the transition; false means the record was already revoked,
// which is a no-op, never an error, and leaves revoked_at untouched.
func (r *TokenRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) (bool, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, revokedAt)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token rows: %w", err)
	}
	return affected == 1, nil
}

// RevokeAllForUser revokes every not-yet-revoked token for a user and
// returns how many records were transitioned.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, userID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens rows: %w", err)
	}
	return affected, nil
}

// PurgeExpired deletes records whose expiry predates the cutoff, regardless
// of revoked state. Housekeeping only; revocation is the security control.
func (r *TokenRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens rows: %w", err)
	}
	return affected, nil
}

// ListActiveForUser returns the user's currently valid sessions.
func (r *TokenRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, issued_by, device_info FROM refresh_tokens WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2 ORDER BY created_at DESC`
	var tokens []models.RefreshToken
	if err := r.db.SelectContext(ctx, &tokens, query, userID, now); err != nil {
		return nil, fmt.Errorf("list active refresh tokens: %w", err)
	}
	return tokens, nil
}
