// Package session runs one learner's attempt on the client: the answer
// buffer, the countdown, periodic autosave and the single final submit.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/grading"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/services"
)

const (
	DefaultTickInterval     = time.Second
	DefaultAutosaveInterval = 30 * time.Second
	DefaultRetryBackoff     = 2 * time.Second
	MaxRetryBackoff         = 30 * time.Second
)

var (
	ErrNotStarted       = errors.New("attempt has not started")
	ErrNotInProgress    = errors.New("attempt is not in progress")
	ErrAlreadyStarted   = errors.New("attempt already started")
	ErrAlreadyCompleted = errors.New("attempt already completed")
	ErrUnknownQuestion  = errors.New("question is not part of this quiz")
)

// Backend is the server side of an attempt.
type Backend interface {
	CreateAttempt(ctx context.Context, quizID uint) (*services.StartAttemptResponse, error)
	SaveAnswers(ctx context.Context, attemptID uint, answers models.AnswerMap) error
	Submit(ctx context.Context, attemptID uint, answers models.AnswerMap) (*services.SubmitResponse, error)
	Abandon(ctx context.Context, attemptID uint) error
}

type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateAbandoned  State = "abandoned"
)

type Config struct {
	Clock            clockwork.Clock
	TickInterval     time.Duration
	AutosaveInterval time.Duration
	Logger           *slog.Logger

	// RetryBackoff is the wait before retrying a failed auto-submit. It
	// doubles on every failure up to MaxRetryBackoff.
	RetryBackoff time.Duration

	// OnTick receives the countdown once per tick. It runs on the timer
	// goroutine and must not call back into the runner's Submit.
	OnTick func(remaining time.Duration, level Level)
	// OnAutoSubmit reports the outcome of every submit the runner fires on
	// its own: when time runs out, or when the server has closed the attempt.
	OnAutoSubmit func(result *services.SubmitResponse, err error)
}

func (c *Config) applyDefaults() {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = DefaultAutosaveInterval
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Runner drives one attempt: NotStarted -> InProgress -> Completed | Abandoned.
type Runner struct {
	backend Backend
	quizID  uint
	cfg     Config
	logger  *slog.Logger

	// serverAutosave lets the start response pick the autosave interval
	serverAutosave bool

	mu        sync.Mutex
	state     State
	starting  bool
	attemptID uint
	questions map[uint]models.QuestionView
	answers   models.AnswerMap
	deadline  *time.Time // local clock
	result    *services.SubmitResponse
	start     *services.StartAttemptResponse

	// writeMu serializes autosave and submit
	writeMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(backend Backend, quizID uint, cfg Config) *Runner {
	serverAutosave := cfg.AutosaveInterval <= 0
	cfg.applyDefaults()
	return &Runner{
		backend:        backend,
		quizID:         quizID,
		cfg:            cfg,
		logger:         cfg.Logger.With("quiz_id", quizID),
		serverAutosave: serverAutosave,
		state:          StateNotStarted,
		answers:        models.AnswerMap{},
	}
}

// Start creates or resumes the attempt and starts the timers. A resumed
// attempt restores its saved answers and the time left on the server.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateNotStarted || r.starting {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.starting = true
	r.mu.Unlock()

	resp, err := r.backend.CreateAttempt(ctx, r.quizID)
	if err == nil && (resp == nil || resp.Attempt == nil) {
		err = errors.New("empty response")
	}

	r.mu.Lock()
	r.starting = false
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to start attempt: %w", err)
	}
	r.start = resp
	r.attemptID = resp.Attempt.ID
	r.logger = r.logger.With("attempt_id", resp.Attempt.ID)
	r.questions = make(map[uint]models.QuestionView, len(resp.Questions))
	for _, q := range resp.Questions {
		r.questions[q.ID] = q
	}
	for k, v := range resp.Attempt.Answers {
		r.answers[k] = v
	}
	if resp.Attempt.DeadlineAt != nil {
		// Re-anchor the server deadline on the local clock so skew between
		// the two clocks never shows in the countdown
		left := resp.Attempt.DeadlineAt.Sub(resp.ServerTime)
		deadline := r.cfg.Clock.Now().Add(left)
		r.deadline = &deadline
	}
	if r.serverAutosave && resp.AutosaveSeconds > 0 {
		r.cfg.AutosaveInterval = time.Duration(resp.AutosaveSeconds) * time.Second
	}
	r.state = StateInProgress

	timerCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	timed := r.deadline != nil
	r.mu.Unlock()

	r.logger.Info("Attempt in progress", "resumed", resp.Resumed, "timed", timed)

	r.wg.Add(1)
	go r.autosaveLoop(timerCtx)
	if timed {
		r.wg.Add(1)
		go r.countdownLoop(timerCtx)
	}
	return nil
}

// ===== ANSWERS =====

// Answer overwrites the answer to a question. An empty value clears it.
func (r *Runner) Answer(questionID uint, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateInProgress {
		return ErrNotInProgress
	}
	if _, ok := r.questions[questionID]; !ok {
		return ErrUnknownQuestion
	}

	key := models.AnswerKey(questionID)
	if strings.TrimSpace(value) == "" {
		delete(r.answers, key)
		return nil
	}
	r.answers[key] = value
	return nil
}

// AnswerMulti stores the selected options of a multi-choice question.
func (r *Runner) AnswerMulti(questionID uint, options []string) error {
	return r.Answer(questionID, grading.EncodeMulti(options))
}

func (r *Runner) Answered(questionID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answers[models.AnswerKey(questionID)] != ""
}

func (r *Runner) Answers() models.AnswerMap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Runner) snapshotLocked() models.AnswerMap {
	out := make(models.AnswerMap, len(r.answers))
	for k, v := range r.answers {
		out[k] = v
	}
	return out
}

// ===== STATE =====

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) AttemptID() uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attemptID
}

// Questions returns the quiz questions in their stored order.
func (r *Runner) Questions() []models.QuestionView {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.start == nil {
		return nil
	}
	return append([]models.QuestionView(nil), r.start.Questions...)
}

// Remaining reports the time left. ok is false for untimed attempts.
func (r *Runner) Remaining() (remaining time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remainingLocked()
}

func (r *Runner) remainingLocked() (time.Duration, bool) {
	if r.deadline == nil {
		return 0, false
	}
	left := r.deadline.Sub(r.cfg.Clock.Now())
	if left < 0 {
		left = 0
	}
	return left, true
}

// Result is the graded outcome once the attempt completed.
func (r *Runner) Result() *services.SubmitResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// ===== TRANSITIONS =====

// Submit sends the answers for grading. Only the first successful submit
// reaches the server; later calls return the stored result. A failed submit
// keeps the attempt in progress with its timers running, unless the server
// reports the attempt is no longer active: the runner is then abandoned.
func (r *Runner) Submit(ctx context.Context) (*services.SubmitResponse, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	switch r.state {
	case StateCompleted:
		result := r.result
		r.mu.Unlock()
		return result, nil
	case StateNotStarted:
		r.mu.Unlock()
		return nil, ErrNotStarted
	case StateAbandoned:
		r.mu.Unlock()
		return nil, ErrNotInProgress
	}
	attemptID := r.attemptID
	answers := r.snapshotLocked()
	r.mu.Unlock()

	result, err := r.backend.Submit(ctx, attemptID, answers)
	if errors.Is(err, services.ErrAttemptNotActive) {
		// The server grades a completed attempt again as already completed,
		// so not active here means it was abandoned server side
		r.mu.Lock()
		r.state = StateAbandoned
		r.mu.Unlock()
		r.stopTimers()
		r.logger.Warn("Attempt was closed on the server", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNotInProgress, err)
	}
	if err != nil {
		r.logger.Warn("Submit failed, attempt stays open", "error", err)
		return nil, fmt.Errorf("failed to submit attempt: %w", err)
	}

	r.mu.Lock()
	r.state = StateCompleted
	r.result = result
	r.mu.Unlock()
	r.stopTimers()

	r.logger.Info("Attempt completed",
		"score", result.Score,
		"percentage", result.Percentage,
		"already_completed", result.AlreadyCompleted)
	return result, nil
}

// Abandon ends the attempt without grading.
func (r *Runner) Abandon(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	switch r.state {
	case StateAbandoned:
		r.mu.Unlock()
		return nil
	case StateCompleted:
		r.mu.Unlock()
		return ErrAlreadyCompleted
	case StateNotStarted:
		r.mu.Unlock()
		return ErrNotStarted
	}
	attemptID := r.attemptID
	r.mu.Unlock()

	if err := r.backend.Abandon(ctx, attemptID); err != nil {
		return fmt.Errorf("failed to abandon attempt: %w", err)
	}

	r.mu.Lock()
	r.state = StateAbandoned
	r.mu.Unlock()
	r.stopTimers()

	r.logger.Info("Attempt abandoned")
	return nil
}

// Close stops both timers and waits for them. The attempt itself is left
// untouched and can be resumed later.
func (r *Runner) Close() {
	r.stopTimers()
	r.wg.Wait()
}

func (r *Runner) stopTimers() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
