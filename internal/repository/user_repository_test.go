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

func newUserRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func userRows(users ...*models.User) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "full_name", "bio", "avatar_url", "location", "website", "role", "active", "last_login", "created_at", "updated_at"})
	for _, u := range users {
		rows.AddRow(u.ID, u.Username, u.Email, u.PasswordHash, u.FullName, u.Bio, u.AvatarURL, u.Location, u.Website, u.Role, u.Active, u.LastLogin, u.CreatedAt, u.UpdatedAt)
	}
	return rows
}

func TestUserRepositoryFindByUsername(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	expected := &models.User{ID: "u1", Username: "alice", Email: "alice@example.com", Role: models.RoleAdmin, Active: true}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, email")).
		WithArgs("alice").
		WillReturnRows(userRows(expected))

	user, err := repo.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
	require.Equal(t, models.RoleAdmin, user.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByUsernameAbsent(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, email")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUsername(context.Background(), "ghost")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateConflict(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: pgUniqueViolation})

	err := repo.Create(context.Background(), &models.User{Username: "alice", Email: "alice@example.com"})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Username: "bob", Email: "bob@example.com", Role: models.RoleUser}
	require.NoError(t, repo.Create(context.Background(), user))
	require.NotEmpty(t, user.ID)
	require.False(t, user.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	role := models.RoleModerator
	active := true

	mod := &models.User{ID: "u2", Username: "mallory", Email: "mallory@example.com", Role: role, Active: true}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, email")).
		WithArgs(role, active, "%mal%").
		WillReturnRows(userRows(mod))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(role, active, "%mal%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{
		Role:   &role,
		Active: &active,
		Search: "Mal",
	})
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpdateLastLogin(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	ts := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login")).
		WithArgs("u1", ts, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateLastLogin(context.Background(), "u1", ts))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET active = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "u1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryStats(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	rows := sqlmock.NewRows([]string{"total", "active", "admins", "moderators", "recent"}).
		AddRow(25, 20, 2, 3, 5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WillReturnRows(rows)

	stats, err := repo.Stats(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 25, stats.TotalUsers)
	require.Equal(t, 20, stats.ActiveUsers)
	require.Equal(t, 2, stats.AdminUsers)
	require.Equal(t, 3, stats.ModeratorUsers)
	require.Equal(t, 5, stats.RecentRegistrations)
	require.False(t, stats.GeneratedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryAuditLogRoundTrip(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	actor := "u1"
	entry := &models.AuditLog{
		UserID:   &actor,
		Action:   models.AuditActionLogin,
		Resource: "auth",
	}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	require.NotEmpty(t, entry.ID)

	rows := sqlmock.NewRows([]string{"id", "user_id", "action", "resource", "resource_id", "new_values", "ip_address", "user_agent", "created_at"}).
		AddRow(entry.ID, actor, entry.Action, entry.Resource, nil, nil, "", "", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, action")).
		WithArgs(50).
		WillReturnRows(rows)

	logs, err := repo.ListAuditLogs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, models.AuditActionLogin, logs[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}
