package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically finalizes attempts nobody submitted: timed attempts
// past their deadline and untimed attempts whose quiz window closed.
type Sweeper struct {
	attempts AttemptService
	logger   *slog.Logger
	schedule string

	mu   sync.Mutex
	cron *cron.Cron
}

func NewSweeper(attempts AttemptService, logger *slog.Logger, schedule string) *Sweeper {
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &Sweeper{
		attempts: attempts,
		logger:   logger,
		schedule: schedule,
	}
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweeper %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("Attempt sweeper started", "schedule", s.schedule)
	return nil
}

// RunOnce performs one sweep and reports how many attempts it closed.
func (s *Sweeper) RunOnce(ctx context.Context) (expired, orphaned int) {
	var err error

	expired, err = s.attempts.ExpireOverdue(ctx)
	if err != nil {
		s.logger.Error("Failed to expire overdue attempts", "error", err)
	}

	orphaned, err = s.attempts.CloseOrphaned(ctx)
	if err != nil {
		s.logger.Error("Failed to close orphaned attempts", "error", err)
	}

	if expired > 0 || orphaned > 0 {
		s.logger.Info("Attempt sweep finished", "expired", expired, "orphaned", orphaned)
	}
	return expired, orphaned
}

// Stop waits for a running sweep to finish or for ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
		s.logger.Info("Attempt sweeper stopped")
	case <-ctx.Done():
		s.logger.Warn("Attempt sweeper stop timed out")
	}
}
