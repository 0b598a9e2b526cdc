package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/userhub-io/userhub-api/internal/models"
	appErrors "github.com/userhub-io/userhub-api/pkg/errors"
)

func newTokenRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTokenRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	token := &models.RefreshToken{
		UserID:    "u1",
		Token:     "opaque-token-string",
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), token))
	require.NotEmpty(t, token.ID)

	rows := sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "issued_by", "device_info"}).
		AddRow(token.ID, token.UserID, token.Token, token.ExpiresAt, time.Now(), false, nil, "", "")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token")).
		WithArgs(token.Token).
		WillReturnRows(rows)

	found, err := repo.FindByToken(context.Background(), token.Token)
	require.NoError(t, err)
	require.Equal(t, token.ID, found.ID)
	require.False(t, found.Revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnError(&pq.Error{Code: pgUniqueViolation})

	err := repo.Create(context.Background(), &models.RefreshToken{
		UserID:    "u1",
		Token:     "colliding-token",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrDuplicateToken))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryFindUnknown(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByToken(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryRevokeTransition(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE")).
		WithArgs("rt-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.Revoke(context.Background(), "rt-1", now)
	require.NoError(t, err)
	require.True(t, won)

	// Second revoke matches no row: already revoked, not an error.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE")).
		WithArgs("rt-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err = repo.Revoke(context.Background(), "rt-1", now)
	require.NoError(t, err)
	require.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryRevokeAllForUser(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE")).
		WithArgs("u1", now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.RevokeAllForUser(context.Background(), "u1", now)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryPurgeExpired(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	cutoff := time.Now().UTC().Add(-720 * time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE expires_at <")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	count, err := repo.PurgeExpired(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(12), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepositoryListActiveForUser(t *testing.T) {
	db, mock, cleanup := newTokenRepoMock(t)
	defer cleanup()

	repo := NewTokenRepository(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "issued_by", "device_info"}).
		AddRow("rt-1", "u1", "token-1", now.Add(time.Hour), now.Add(-time.Hour), false, nil, "10.0.0.1", "curl/8").
		AddRow("rt-2", "u1", "token-2", now.Add(2*time.Hour), now.Add(-2*time.Hour), false, nil, "", "")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token")).
		WithArgs("u1", now).
		WillReturnRows(rows)

	sessions, err := repo.ListActiveForUser(context.Background(), "u1", now)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "rt-1", sessions[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
