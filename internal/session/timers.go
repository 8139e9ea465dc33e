package session

import (
	"context"
	"errors"
	"time"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/services"
)

// Level grades how urgent the remaining time is.
type Level string

const (
	LevelNominal  Level = "nominal"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// TimeLevel is nominal above five minutes, warning from one to five minutes
// inclusive and critical below one minute.
func TimeLevel(remaining time.Duration) Level {
	switch {
	case remaining > 5*time.Minute:
		return LevelNominal
	case remaining >= time.Minute:
		return LevelWarning
	default:
		return LevelCritical
	}
}

func (r *Runner) countdownLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := r.cfg.Clock.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	var retry submitRetry
	if r.tick(ctx, &retry) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if r.tick(ctx, &retry) {
				return
			}
		}
	}
}

// submitRetry spaces out auto-submits after a failure. It is owned by the
// countdown goroutine.
type submitRetry struct {
	next    time.Time
	backoff time.Duration
}

func (s *submitRetry) failed(now time.Time, base time.Duration) {
	if s.backoff == 0 {
		s.backoff = base
	} else {
		s.backoff = min(2*s.backoff, MaxRetryBackoff)
	}
	s.next = now.Add(s.backoff)
}

// tick reports whether the countdown is finished. Remaining time is read from
// the clock on every tick, never accumulated.
func (r *Runner) tick(ctx context.Context, retry *submitRetry) bool {
	r.mu.Lock()
	if r.state != StateInProgress {
		r.mu.Unlock()
		return true
	}
	remaining, _ := r.remainingLocked()
	r.mu.Unlock()

	if r.cfg.OnTick != nil {
		r.cfg.OnTick(remaining, TimeLevel(remaining))
	}
	if remaining > 0 {
		return false
	}

	now := r.cfg.Clock.Now()
	if now.Before(retry.next) {
		return false
	}

	r.logger.Info("Time is up, submitting attempt")
	result, err := r.Submit(ctx)
	if r.cfg.OnAutoSubmit != nil {
		r.cfg.OnAutoSubmit(result, err)
	}
	if err == nil || r.State() != StateInProgress {
		return true
	}
	retry.failed(now, r.cfg.RetryBackoff)
	r.logger.Warn("Auto-submit failed, retrying", "error", err, "backoff", retry.backoff)
	return false
}

func (r *Runner) autosaveLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := r.cfg.Clock.NewTicker(r.cfg.AutosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			switch r.autosave(ctx) {
			case autosaveStop:
				return
			case autosaveClosed:
				r.settle(ctx)
				if r.State() != StateInProgress {
					return
				}
			}
		}
	}
}

type autosaveOutcome int

const (
	autosaveContinue autosaveOutcome = iota
	autosaveStop
	autosaveClosed
)

// autosave pushes the current answers. Failures are logged and dropped; the
// next tick or the final submit carries the same answers. The server
// rejecting the save because the attempt is no longer active is reported as
// autosaveClosed.
func (r *Runner) autosave(ctx context.Context) autosaveOutcome {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	if r.state != StateInProgress {
		r.mu.Unlock()
		return autosaveStop
	}
	if len(r.answers) == 0 {
		r.mu.Unlock()
		return autosaveContinue
	}
	attemptID := r.attemptID
	answers := r.snapshotLocked()
	r.mu.Unlock()

	err := r.backend.SaveAnswers(ctx, attemptID, answers)
	switch {
	case errors.Is(err, services.ErrAttemptNotActive):
		r.logger.Info("Attempt no longer active on the server")
		return autosaveClosed
	case err != nil:
		r.logger.Warn("Autosave failed", "error", err, "answered", len(answers))
		return autosaveContinue
	}
	r.logger.Debug("Answers autosaved", "answered", len(answers))
	return autosaveContinue
}

// settle finds out how the server closed the attempt. Submitting an attempt
// the server already completed returns its stored result; an abandoned one
// moves the runner to abandoned.
func (r *Runner) settle(ctx context.Context) {
	result, err := r.Submit(ctx)
	if r.cfg.OnAutoSubmit != nil {
		r.cfg.OnAutoSubmit(result, err)
	}
}
