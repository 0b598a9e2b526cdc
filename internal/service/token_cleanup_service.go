package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type tokenPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenCleanupService deletes refresh token records whose expiry predates
// the retention window. It is housekeeping for table size only: revocation,
// not purging, is the security control, and validity checks never depend on
// the sweep having run.
type TokenCleanupService struct {
	tokens    tokenPurger
	metrics   *MetricsService
	logger    *zap.Logger
	retention time.Duration
	interval  time.Duration

	now func() time.Time
}

// NewTokenCleanupService constructs the cleanup service.
func NewTokenCleanupService(tokens tokenPurger, metrics *MetricsService, logger *zap.Logger, retention, interval time.Duration) *TokenCleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCleanupService{
		tokens:    tokens,
		metrics:   metrics,
		logger:    logger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// Start boots a goroutine that purges expired tokens periodically until the
// context is cancelled. The sweep runs off the request path entirely.
func (s *TokenCleanupService) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single purge sweep and returns the number of deleted
// records.
func (s *TokenCleanupService) RunOnce(ctx context.Context) int64 {
	cutoff := s.now().UTC().Add(-s.retention)
	count, err := s.tokens.PurgeExpired(ctx, cutoff)
	if err != nil {
		s.logger.Warn("token purge sweep failed", zap.Error(err))
		return 0
	}
	if count > 0 {
		s.logger.Info("token purge sweep completed", zap.Int64("deleted", count), zap.Time("cutoff", cutoff))
	}
	s.metrics.RecordPurgedTokens(count)
	return count
}
