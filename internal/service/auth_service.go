package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/userhub-io/userhub-api/internal/models"
	appErrors "github.com/userhub-io/userhub-api/pkg/errors"
	"github.com/userhub-io/userhub-api/pkg/jobs"
)

// Job types handled by the auth service's background queue.
const (
	JobTypeLastLogin = "auth.last_login"
	JobTypeAuditLog  = "auth.audit_log"
)

// mintRetries bounds retries on refresh-token uniqueness collisions.
const mintRetries = 3

type authUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type refreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByToken(ctx context.Context, token string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string, revokedAt time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error)
	ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]models.RefreshToken, error)
}

type taskQueue interface {
	Enqueue(job jobs.Job) error
}

type lastLoginPayload struct {
	UserID string
	At     time.Time
}

// AuthService owns the credential lifecycle: login, refresh rotation,
// revocation and the per-request authorization guard.
type AuthService struct {
	users     authUserRepository
	tokens    refreshTokenStore
	codec     *TokenCodec
	queue     taskQueue
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	bcryptCost int
	now        func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, tokens refreshTokenStore, codec *TokenCodec, queue taskQueue, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, bcryptCost int) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		codec:      codec,
		queue:      queue,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// RegisterJobs binds the async side-effect handlers onto the queue.
func (s *AuthService) RegisterJobs(q *jobs.Queue) {
	q.Register(JobTypeLastLogin, func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(lastLoginPayload)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return s.users.UpdateLastLogin(ctx, payload.UserID, payload.At)
	})
	q.Register(JobTypeAuditLog, func(ctx context.Context, job jobs.Job) error {
		log, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return s.users.CreateAuditLog(ctx, log)
	})
}

// Login authenticates username/password and issues a token pair. Unknown
// usernames and wrong passwords produce the same failure so responses do
// not reveal which accounts exist.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordLogin(false)
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.RecordLogin(false)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if !user.Active {
		s.metrics.RecordLogin(false)
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	pair, err := s.issuePair(ctx, user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	// Fire-and-forget: a failure to record last_login must not fail login.
	s.enqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeLastLogin, Payload: lastLoginPayload{UserID: user.ID, At: s.now().UTC()}})
	s.audit(user.ID, models.AuditActionLogin, req.IP, req.UserAgent, map[string]string{"status": "success"})
	s.metrics.RecordLogin(true)

	return &models.LoginResponse{
		TokenPair: *pair,
		User: models.UserInfo{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
		},
	}, nil
}

// Refresh redeems a refresh token for a new pair, rotating the presented
// token. Rotation is single-use: the conditional revoke in the store
// guarantees exactly one of any concurrent redemptions succeeds.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	stored, err := s.tokens.FindByToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Unknown or already purged: distinct from a known dead record.
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	now := s.now().UTC()
	if !stored.Valid(now) {
		// Close out a token that reached expiry without explicit revocation.
		if !stored.Revoked {
			if _, err := s.tokens.Revoke(ctx, stored.ID, now); err != nil {
				s.logger.Warn("failed to revoke expired refresh token", zap.Error(err))
			}
		}
		return nil, appErrors.Clone(appErrors.ErrTokenExpiredOrRevoked, "")
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	// Compare-and-set on the revoked flag. Losing the race means another
	// redemption of the same string already went through.
	won, err := s.tokens.Revoke(ctx, stored.ID, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate refresh token")
	}
	if !won {
		return nil, appErrors.Clone(appErrors.ErrTokenExpiredOrRevoked, "")
	}

	pair, err := s.issuePair(ctx, user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	s.audit(user.ID, models.AuditActionRefresh, req.IP, req.UserAgent, map[string]string{"refresh": "rotated"})
	s.metrics.RecordRotation()

	return pair, nil
}

// Revoke invalidates a refresh token owned by the requester. An unknown
// token and a token owned by someone else yield the same failure.
func (s *AuthService) Revoke(ctx context.Context, tokenString string, requester *models.User) error {
	stored, err := s.tokens.FindByToken(ctx, tokenString)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "refresh token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	if stored.UserID != requester.ID {
		return appErrors.Clone(appErrors.ErrNotFound, "refresh token not found")
	}

	// Idempotent at the store: revoking an already-revoked record is a no-op.
	if _, err := s.tokens.Revoke(ctx, stored.ID, s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}

	s.audit(requester.ID, models.AuditActionRevoke, "", "", map[string]string{"token_id": stored.ID})
	s.metrics.RecordRevocation(1)
	return nil
}

// RevokeAll revokes every valid session of the requester and returns the
// number of records transitioned.
func (s *AuthService) RevokeAll(ctx context.Context, requester *models.User) (int64, error) {
	count, err := s.tokens.RevokeAllForUser(ctx, requester.ID, s.now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh tokens")
	}

	s.audit(requester.ID, models.AuditActionRevokeAll, "", "", map[string]int64{"revoked": count})
	s.metrics.RecordRevocation(count)
	return count, nil
}

// ListSessions returns the requester's currently valid refresh sessions.
func (s *AuthService) ListSessions(ctx context.Context, requester *models.User) ([]models.RefreshToken, error) {
	sessions, err := s.tokens.ListActiveForUser(ctx, requester.ID, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Authorize is the per-request guard: decode the access token, resolve the
// identity and verify the required scopes. Effective scopes are always
// recomputed from the user's current role; the scope list embedded in the
// token is ignored so role downgrades apply to already-issued tokens.
func (s *AuthService) Authorize(ctx context.Context, tokenString string, required ...models.Scope) (*models.User, error) {
	claims, err := s.codec.DecodeAccess(tokenString)
	if err != nil {
		s.metrics.RecordAuthDenied("unauthenticated")
		s.logger.Debug("access token rejected", zap.Error(err))
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "could not validate credentials")
	}

	user, err := s.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordAuthDenied("unauthenticated")
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "could not validate credentials")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if !user.Active {
		s.metrics.RecordAuthDenied("inactive")
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	effective := models.ScopesForRole(user.Role)
	for _, scope := range required {
		if !effective.Has(scope) {
			s.metrics.RecordAuthDenied("missing_scope")
			return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("missing required scope: %s", scope))
		}
	}

	return user, nil
}

// ChangePassword verifies the old password, stores a new hash and revokes
// every existing session for the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.users.UpdatePassword(ctx, userID, string(newHash), s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if _, err := s.tokens.RevokeAllForUser(ctx, userID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password change", zap.Error(err))
	}

	s.audit(userID, models.AuditActionPasswordChange, "", "", map[string]string{"status": "changed"})
	return nil
}

// issuePair mints and persists a fresh access/refresh pair for the user.
// A refresh-token collision is retried with a newly minted string.
func (s *AuthService) issuePair(ctx context.Context, user *models.User, ip, userAgent string) (*models.TokenPair, error) {
	accessToken, _, err := s.codec.MintAccess(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	var record *models.RefreshToken
	for attempt := 0; attempt < mintRetries; attempt++ {
		value, expiresAt, err := s.codec.MintRefresh()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
		}

		candidate := &models.RefreshToken{
			ID:         uuid.NewString(),
			UserID:     user.ID,
			Token:      value,
			ExpiresAt:  expiresAt,
			CreatedAt:  s.now().UTC(),
			IssuedBy:   ip,
			DeviceInfo: userAgent,
		}

		err = s.tokens.Create(ctx, candidate)
		if err == nil {
			record = candidate
			break
		}
		if appErrors.Is(err, appErrors.ErrDuplicateToken) {
			s.logger.Warn("refresh token collision, reminting", zap.Int("attempt", attempt+1))
			continue
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}
	if record == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateToken, "could not allocate a unique refresh token")
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: record.Token,
		TokenType:    models.TokenTypeBearer,
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
		IssuedAt:     s.now().UTC(),
	}, nil
}

// audit records an audit entry asynchronously, best effort.
func (s *AuthService) audit(userID, action, ip, userAgent string, details interface{}) {
	values, err := json.Marshal(details)
	if err != nil {
		values = nil
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  values,
		IPAddress:  ip,
		UserAgent:  userAgent,
		CreatedAt:  s.now().UTC(),
	}
	s.enqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeAuditLog, Payload: log})
}

func (s *AuthService) enqueue(job jobs.Job) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue background job", zap.String("type", job.Type), zap.Error(err))
	}
}
