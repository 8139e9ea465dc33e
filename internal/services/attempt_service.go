package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/events"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
)

// AttemptConfig tunes deadline enforcement.
type AttemptConfig struct {
	// Grace is how long past the deadline answers are still accepted.
	Grace time.Duration
	// SweepBatch caps how many attempts one sweeper pass finalizes.
	SweepBatch int
	// AutosaveInterval is advertised to clients in the start response.
	AutosaveInterval time.Duration
}

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	grader    GradingService
	events    events.Publisher
	clock     clockwork.Clock
	config    AttemptConfig
}

func NewAttemptService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	grader GradingService,
	publisher events.Publisher,
	clock clockwork.Clock,
	config AttemptConfig,
) AttemptService {
	if config.SweepBatch <= 0 {
		config.SweepBatch = 100
	}
	if config.AutosaveInterval <= 0 {
		config.AutosaveInterval = 30 * time.Second
	}
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		grader:    grader,
		events:    publisher,
		clock:     clock,
		config:    config,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

// Start resumes the learner's in-progress attempt or creates a new one.
func (s *attemptService) Start(ctx context.Context, quizID uint, identity *models.Identity) (*StartAttemptResponse, error) {
	if identity == nil {
		return nil, ErrUnauthorized
	}
	if !identity.IsStudent() {
		return nil, NewPermissionError(identity.UserID, quizID, "quiz", "attempt", "only students take quizzes")
	}

	s.logger.Info("Starting quiz attempt",
		"quiz_id", quizID,
		"student_id", identity.UserID)

	quiz, err := s.loadQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var attempt *models.QuizAttempt
	resumed := false

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.Attempt().GetInProgress(ctx, tx, quizID, identity.UserID)
		if err == nil {
			attempt = existing
			resumed = true
			return nil
		}
		if !repositories.IsNotFoundError(err) {
			return err
		}

		// Preconditions are checked against the rows inside the transaction
		fresh, err := s.repo.Quiz().GetByID(ctx, tx, quizID)
		if err != nil {
			return err
		}
		enrolled, err := s.repo.Enrollment().IsEnrolled(ctx, tx, fresh.CourseID, identity.UserID)
		if err != nil {
			return err
		}
		completed, err := s.repo.Attempt().CountByStatus(ctx, tx, quizID, identity.UserID, models.AttemptCompleted)
		if err != nil {
			return err
		}
		if verrs := s.validator.Business().ValidateAttemptStart(fresh, now, enrolled, completed); len(verrs) > 0 {
			return startError(verrs)
		}

		number, err := s.repo.Attempt().NextAttemptNumber(ctx, tx, quizID, identity.UserID)
		if err != nil {
			return err
		}

		attempt = &models.QuizAttempt{
			QuizID:        quizID,
			StudentID:     identity.UserID,
			AttemptNumber: number,
			Status:        models.AttemptInProgress,
			Answers:       datatypes.NewJSONType(models.AnswerMap{}),
			Version:       1,
			StartedAt:     now,
		}
		if fresh.HasTimeLimit() {
			deadline := now.Add(fresh.TimeLimitDuration())
			attempt.DeadlineAt = &deadline
		}

		return s.repo.Attempt().Create(ctx, tx, attempt)
	})

	if err != nil {
		if !repositories.IsUniqueViolation(err) {
			return nil, s.mapStartError(err)
		}
		// A concurrent start won the race; hand back its attempt
		winner, gerr := s.repo.Attempt().GetInProgress(ctx, nil, quizID, identity.UserID)
		if gerr != nil {
			s.logger.Warn("Concurrent attempt start could not be resolved",
				"quiz_id", quizID,
				"student_id", identity.UserID,
				"error", gerr)
			return nil, fmt.Errorf("%w: concurrent attempt start", ErrConflict)
		}
		attempt = winner
		resumed = true
	}

	if resumed {
		s.logger.Info("Resuming existing attempt",
			"attempt_id", attempt.ID,
			"quiz_id", quizID)
	} else {
		s.logger.Info("Quiz attempt started successfully",
			"attempt_id", attempt.ID,
			"attempt_number", attempt.AttemptNumber,
			"quiz_id", quizID,
			"student_id", identity.UserID)
		s.publish(ctx, events.TypeAttemptStarted, attempt)
	}

	return &StartAttemptResponse{
		Attempt:         toAttemptResponse(attempt, now),
		Resumed:         resumed,
		Quiz:            toQuizSummary(quiz, now),
		Questions:       questionViews(quiz.Questions),
		ServerTime:      now,
		AutosaveSeconds: int(s.config.AutosaveInterval / time.Second),
	}, nil
}

// SaveAnswer overwrites a single answer. An empty answer clears the entry.
func (s *attemptService) SaveAnswer(ctx context.Context, attemptID, questionID uint, answer string, identity *models.Identity) (*AutosaveResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, identity, "answer", true)
	if err != nil {
		return nil, err
	}

	quiz, err := s.loadQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	if err := s.checkWritable(attempt); err != nil {
		return nil, err
	}

	normalized, err := normalizeAnswers(quiz.Questions, models.AnswerMap{models.AnswerKey(questionID): answer})
	if err != nil {
		return nil, err
	}

	answers := attempt.AnswerMap().Clone()
	key := models.AnswerKey(questionID)
	if value, ok := normalized[key]; ok {
		answers[key] = value
	} else {
		delete(answers, key)
	}

	return s.persist(ctx, attempt, answers)
}

// Autosave replaces every stored answer of an in-progress attempt.
func (s *attemptService) Autosave(ctx context.Context, attemptID uint, answers models.AnswerMap, identity *models.Identity) (*AutosaveResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, identity, "autosave", true)
	if err != nil {
		return nil, err
	}

	quiz, err := s.loadQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	if err := s.checkWritable(attempt); err != nil {
		return nil, err
	}

	normalized, err := normalizeAnswers(quiz.Questions, answers)
	if err != nil {
		return nil, err
	}

	return s.persist(ctx, attempt, normalized)
}

// Submit grades and completes the attempt. Only the first call writes; later
// calls return the stored result.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, answers models.AnswerMap, identity *models.Identity) (*SubmitResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, identity, "submit", true)
	if err != nil {
		return nil, err
	}

	quiz, err := s.loadQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch attempt.Status {
	case models.AttemptCompleted:
		return s.storedResult(attempt, quiz, now), nil
	case models.AttemptAbandoned:
		return nil, ErrAttemptNotActive
	}

	final := attempt.AnswerMap()
	reason := models.EndReasonSubmitted
	if attempt.DeadlineAt != nil && !now.Before(*attempt.DeadlineAt) {
		reason = models.EndReasonTimeExpired
	}

	// Answers arriving after the grace period are ignored; the autosaved set is graded
	if answers != nil && !s.pastGrace(attempt, now) {
		normalized, err := normalizeAnswers(quiz.Questions, answers)
		if err != nil {
			return nil, err
		}
		final = normalized
	} else if answers != nil {
		s.logger.Warn("Ignoring answers submitted after the deadline",
			"attempt_id", attempt.ID,
			"deadline_at", attempt.DeadlineAt)
	}

	result, err := s.finalize(ctx, attempt, quiz, final, reason, now)
	if errors.Is(err, repositories.ErrStaleWrite) {
		// Another submit or the sweeper got there first
		latest, gerr := s.repo.Attempt().GetByID(ctx, nil, attempt.ID)
		if gerr != nil {
			return nil, fmt.Errorf("failed to reload attempt: %w", gerr)
		}
		if latest.Status != models.AttemptCompleted {
			return nil, ErrAttemptNotActive
		}
		return s.storedResult(latest, quiz, now), nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Abandon ends the attempt without grading. Abandoned attempts do not count
// toward the attempt limit.
func (s *attemptService) Abandon(ctx context.Context, attemptID uint, identity *models.Identity) (*AttemptResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, identity, "abandon", true)
	if err != nil {
		return nil, err
	}
	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptNotActive
	}

	now := s.now()
	if err := s.repo.Attempt().Abandon(ctx, nil, attempt.ID, models.EndReasonAbandoned, now); err != nil {
		if errors.Is(err, repositories.ErrStaleWrite) {
			return nil, ErrAttemptNotActive
		}
		return nil, fmt.Errorf("failed to abandon attempt: %w", err)
	}

	reason := models.EndReasonAbandoned
	attempt.Status = models.AttemptAbandoned
	attempt.CompletedAt = &now
	attempt.EndReason = &reason

	s.logger.Info("Quiz attempt abandoned",
		"attempt_id", attempt.ID,
		"student_id", attempt.StudentID)
	s.publish(ctx, events.TypeAttemptAbandoned, attempt)

	return toAttemptResponse(attempt, now), nil
}

// ===== GET OPERATIONS =====

func (s *attemptService) Get(ctx context.Context, attemptID uint, identity *models.Identity) (*AttemptResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, identity, "view", false)
	if err != nil {
		return nil, err
	}
	return toAttemptResponse(attempt, s.now()), nil
}

func (s *attemptService) GetCurrent(ctx context.Context, quizID uint, identity *models.Identity) (*AttemptResponse, error) {
	if identity == nil {
		return nil, ErrUnauthorized
	}
	attempt, err := s.repo.Attempt().GetInProgress(ctx, nil, quizID, identity.UserID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get current attempt: %w", err)
	}
	return toAttemptResponse(attempt, s.now()), nil
}

// List returns the caller's attempts. Lecturers and admins may list any learner's.
func (s *attemptService) List(ctx context.Context, filters repositories.AttemptFilters, identity *models.Identity) (*AttemptListResponse, error) {
	if identity == nil {
		return nil, ErrUnauthorized
	}
	if !identity.CanManageQuizzes() {
		filters.StudentID = &identity.UserID
	}

	attempts, total, err := s.repo.Attempt().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	now := s.now()
	out := make([]*AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, toAttemptResponse(a, now))
	}

	return &AttemptListResponse{
		Attempts: out,
		Total:    total,
		Limit:    filters.Limit,
		Offset:   filters.Offset,
	}, nil
}

func (s *attemptService) GetTimeRemaining(ctx context.Context, attemptID uint, identity *models.Identity) (*TimeRemainingResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, identity, "view", false)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resp := &TimeRemainingResponse{
		AttemptID:  attempt.ID,
		Timed:      attempt.DeadlineAt != nil,
		DeadlineAt: attempt.DeadlineAt,
		ServerTime: now,
	}
	if attempt.Status == models.AttemptInProgress {
		resp.RemainingSeconds = remainingSeconds(attempt, now)
	}
	return resp, nil
}

// ===== SWEEPER OPERATIONS =====

// ExpireOverdue completes timed attempts left running past deadline plus grace,
// grading whatever was autosaved.
func (s *attemptService) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.repo.Attempt().ListOverdue(ctx, nil, now.Add(-s.config.Grace), s.config.SweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, attempt := range overdue {
		quiz, err := s.loadQuiz(ctx, attempt.QuizID)
		if err != nil {
			s.logger.Error("Failed to load quiz for overdue attempt", "attempt_id", attempt.ID, "error", err)
			continue
		}

		_, err = s.finalize(ctx, attempt, quiz, attempt.AnswerMap(), models.EndReasonTimeExpired, now)
		if errors.Is(err, repositories.ErrStaleWrite) {
			continue
		}
		if err != nil {
			s.logger.Error("Failed to expire attempt", "attempt_id", attempt.ID, "error", err)
			continue
		}
		expired++
	}

	return expired, nil
}

// CloseOrphaned abandons untimed attempts whose quiz window has closed.
func (s *attemptService) CloseOrphaned(ctx context.Context) (int, error) {
	now := s.now()
	orphaned, err := s.repo.Attempt().ListOrphaned(ctx, nil, now.Add(-s.config.Grace), s.config.SweepBatch)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, attempt := range orphaned {
		err := s.repo.Attempt().Abandon(ctx, nil, attempt.ID, models.EndReasonWindowClosed, now)
		if errors.Is(err, repositories.ErrStaleWrite) {
			continue
		}
		if err != nil {
			s.logger.Error("Failed to close orphaned attempt", "attempt_id", attempt.ID, "error", err)
			continue
		}

		reason := models.EndReasonWindowClosed
		attempt.Status = models.AttemptAbandoned
		attempt.CompletedAt = &now
		attempt.EndReason = &reason
		s.publish(ctx, events.TypeAttemptAbandoned, attempt)
		closed++
	}

	return closed, nil
}
