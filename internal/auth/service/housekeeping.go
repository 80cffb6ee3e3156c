package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
)

// HousekeepingService periodically deletes expired sessions and dead reset
// tokens so neither table grows without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	Clock    Clock

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop() to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// SweepResult counts what one pass removed.
type SweepResult struct {
	Sessions       int64
	PasswordResets int64
}

// Sweep performs one cleanup pass. Each deletion is independent; a failure
// in one is logged and does not stop the other.
func (s *HousekeepingService) Sweep(ctx context.Context) SweepResult {
	now := s.Clock.now()
	var res SweepResult

	n, err := s.Store.Sessions().DeleteExpiredSessions(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired sessions", "error", err)
	} else {
		res.Sessions = n
	}

	n, err = s.Store.PasswordResets().DeleteDeadPasswordResets(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete dead password resets", "error", err)
	} else {
		res.PasswordResets = n
	}

	s.Logger.Info("housekeeping cleanup completed",
		"sessions_deleted", res.Sessions,
		"password_resets_deleted", res.PasswordResets,
	)
	return res
}
