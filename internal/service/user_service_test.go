package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/userhub-io/userhub-api/internal/models"
	appErrors "github.com/userhub-io/userhub-api/pkg/errors"
)

type mockUserStore struct {
	users     map[string]*models.User
	auditLogs []*models.AuditLog
	deleted   []string
}

func newMockUserStore(users ...*models.User) *mockUserStore {
	store := &mockUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		store.users[u.ID] = u
	}
	return store
}

func (m *mockUserStore) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockUserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserStore) Create(ctx context.Context, user *models.User) error {
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return appErrors.Clone(appErrors.ErrConflict, "")
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserStore) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserStore) Delete(ctx context.Context, id string) error {
	if u, ok := m.users[id]; ok {
		u.Active = false
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockUserStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func (m *mockUserStore) ListAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error) {
	var out []models.AuditLog
	for _, l := range m.auditLogs {
		out = append(out, *l)
	}
	return out, nil
}

type mockRevoker struct {
	revokedUsers []string
}

func (m *mockRevoker) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error) {
	m.revokedUsers = append(m.revokedUsers, userID)
	return 2, nil
}

func TestRegisterDefaultsToUserRole(t *testing.T) {
	store := newMockUserStore()
	svc := NewUserService(store, nil, nil, nil, bcrypt.MinCost)

	user, err := svc.Register(context.Background(), RegisterUserRequest{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	assert.Equal(t, models.RoleUser, user.Role)
	assert.True(t, user.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	store := newMockUserStore()
	svc := NewUserService(store, nil, nil, nil, bcrypt.MinCost)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Username: "dave",
		Email:    "dave@example.com",
		Password: "password123",
		Role:     "superadmin",
		Active:   true,
	}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.users)
}

func TestCreateDuplicateConflict(t *testing.T) {
	existing := &models.User{ID: "u1", Username: "carol", Email: "carol@example.com", Active: true}
	store := newMockUserStore(existing)
	svc := NewUserService(store, nil, nil, nil, bcrypt.MinCost)

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Username: "carol",
		Email:    "other@example.com",
		Password: "password123",
		Role:     "user",
		Active:   true,
	}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUpdateRejectsUnknownRole(t *testing.T) {
	existing := &models.User{ID: "u1", Username: "carol", Email: "carol@example.com", Role: models.RoleUser, Active: true}
	store := newMockUserStore(existing)
	svc := NewUserService(store, nil, nil, nil, bcrypt.MinCost)

	bad := "root"
	_, err := svc.Update(context.Background(), "u1", UpdateUserRequest{Role: &bad}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.RoleUser, store.users["u1"].Role)
}

func TestUpdateRoleChange(t *testing.T) {
	existing := &models.User{ID: "u1", Username: "carol", Email: "carol@example.com", Role: models.RoleUser, Active: true}
	store := newMockUserStore(existing)
	svc := NewUserService(store, nil, nil, nil, bcrypt.MinCost)

	role := "moderator"
	updated, err := svc.Update(context.Background(), "u1", UpdateUserRequest{Role: &role}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, updated.Role)
}

func TestDeleteRevokesSessions(t *testing.T) {
	existing := &models.User{ID: "u1", Username: "carol", Email: "carol@example.com", Role: models.RoleUser, Active: true}
	store := newMockUserStore(existing)
	revoker := &mockRevoker{}
	svc := NewUserService(store, revoker, nil, nil, bcrypt.MinCost)

	require.NoError(t, svc.Delete(context.Background(), "u1", nil))

	assert.False(t, store.users["u1"].Active)
	assert.Equal(t, []string{"u1"}, revoker.revokedUsers)
}

func TestDeleteUnknownUser(t *testing.T) {
	store := newMockUserStore()
	svc := NewUserService(store, nil, nil, nil, bcrypt.MinCost)

	err := svc.Delete(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCreateWritesAuditLog(t *testing.T) {
	store := newMockUserStore()
	svc := NewUserService(store, nil, nil, nil, bcrypt.MinCost)
	actor := &models.User{ID: "admin-1", Username: "root-admin", Role: models.RoleAdmin}

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Username: "erin",
		Email:    "erin@example.com",
		Password: "password123",
		Role:     "moderator",
		Active:   true,
	}, actor)
	require.NoError(t, err)

	require.Len(t, store.auditLogs, 1)
	entry := store.auditLogs[0]
	assert.Equal(t, models.AuditActionUserCreate, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, actor.ID, *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, user.ID, *entry.ResourceID)

	var values map[string]string
	require.NoError(t, json.Unmarshal(entry.NewValues, &values))
	assert.Equal(t, "erin", values["username"])
	assert.Equal(t, "moderator", values["role"])
}
