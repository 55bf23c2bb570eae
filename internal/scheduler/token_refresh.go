package scheduler

import (
	"context"
	"fmt"
	"log"

	"dtfquotes-go/internal/auth"
	"dtfquotes-go/internal/storage"
)

// TokenRefreshJobType names the recurring access-token refresh job.
const TokenRefreshJobType = "token_refresh"

// DefaultRefreshSchedule refreshes the token at the top of every hour.
const DefaultRefreshSchedule = "0 * * * *"

// TokenRefreshService keeps the shared access token fresh on a schedule so
// request paths rarely pay the refresh round-trip themselves.
type TokenRefreshService struct {
	scheduler *Scheduler
	manager   *auth.Manager
	logger    *log.Logger
}

// NewTokenRefreshService creates the service and registers its job handler.
func NewTokenRefreshService(scheduler *Scheduler, manager *auth.Manager, logger *log.Logger) *TokenRefreshService {
	if scheduler == nil {
		panic("scheduler cannot be nil")
	}
	if manager == nil {
		panic("manager cannot be nil")
	}
	if logger == nil {
		logger = log.Default()
	}

	service := &TokenRefreshService{
		scheduler: scheduler,
		manager:   manager,
		logger:    logger,
	}

	scheduler.RegisterHandler(TokenRefreshJobType, service.HandleTokenRefresh)
	return service
}

// Schedule schedules the recurring refresh job. An empty schedule uses the
// hourly default.
func (s *TokenRefreshService) Schedule(schedule string) error {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	if _, err := s.scheduler.ScheduleJob(TokenRefreshJobType, schedule); err != nil {
		return fmt.Errorf("scheduling token refresh: %w", err)
	}
	return nil
}

// HandleTokenRefresh runs one refresh pass. A still-valid token makes this
// a no-op; an unconfigured credential set is logged and not treated as a
// job failure.
func (s *TokenRefreshService) HandleTokenRefresh(ctx context.Context, _ *storage.Job) error {
	if !s.manager.Configured() {
		s.logger.Printf("scheduler: skipping token refresh, credentials not configured")
		return nil
	}
	if err := s.manager.EnsureFresh(ctx); err != nil {
		return fmt.Errorf("token refresh job: %w", err)
	}
	return nil
}
