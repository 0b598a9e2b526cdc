package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/userhub-io/userhub-api/internal/models"
	appErrors "github.com/userhub-io/userhub-api/pkg/errors"
)

const dashboardStatsCacheKey = "dashboard:user_stats"

// Window for the "recent registrations" figure.
const registrationWindow = 7 * 24 * time.Hour

type statsRepository interface {
	Stats(ctx context.Context, registrationWindow time.Duration) (*models.UserStats, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// DashboardService serves admin dashboard aggregates with a Redis cache in
// front of the count queries.
type DashboardService struct {
	repo   statsRepository
	cache  statsCache
	logger *zap.Logger
	ttl    time.Duration
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(repo statsRepository, cache statsCache, logger *zap.Logger, ttl time.Duration) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{repo: repo, cache: cache, logger: logger, ttl: ttl}
}

// UserStats returns dashboard aggregates, served from cache when fresh.
func (s *DashboardService) UserStats(ctx context.Context) (*models.UserStats, error) {
	if s.cache != nil {
		var cached models.UserStats
		err := s.cache.Get(ctx, dashboardStatsCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	stats, err := s.repo.Stats(ctx, registrationWindow)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute user stats")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardStatsCacheKey, stats, s.ttl); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// Invalidate drops the cached aggregates after a user mutation.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, dashboardStatsCacheKey); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
