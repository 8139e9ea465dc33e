package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
)

type catalogService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	clock     clockwork.Clock
}

func NewCatalogService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, clock clockwork.Clock) CatalogService {
	return &catalogService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		clock:     clock,
	}
}

// ListAvailable returns the learner's active quizzes that have not closed yet.
// An empty catalog is an empty slice, never an error.
func (s *catalogService) ListAvailable(ctx context.Context, identity *models.Identity) ([]QuizSummary, error) {
	if identity == nil {
		return nil, ErrUnauthorized
	}

	now := s.clock.Now().UTC()
	quizzes, err := s.repo.Quiz().ListAvailableForStudent(ctx, nil, identity.UserID, now)
	if err != nil {
		s.logger.Error("Failed to load quiz catalog", "student_id", identity.UserID, "error", err)
		return nil, fmt.Errorf("failed to list available quizzes: %w", err)
	}

	out := make([]QuizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, toQuizSummary(q, now))
	}
	return out, nil
}

// GetQuizForAttempt loads a quiz for the pre-start screen after checking the
// learner could start it now.
func (s *catalogService) GetQuizForAttempt(ctx context.Context, quizID uint, identity *models.Identity) (*QuizWithQuestions, error) {
	if identity == nil {
		return nil, ErrUnauthorized
	}

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	enrolled, err := s.repo.Enrollment().IsEnrolled(ctx, nil, quiz.CourseID, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}
	used, err := s.repo.Attempt().CountByStatus(ctx, nil, quizID, identity.UserID, models.AttemptCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	// An in-progress attempt can always be resumed, so the limit check is skipped for it
	var currentID *uint
	current, err := s.repo.Attempt().GetInProgress(ctx, nil, quizID, identity.UserID)
	switch {
	case err == nil:
		currentID = &current.ID
	case !repositories.IsNotFoundError(err):
		return nil, fmt.Errorf("failed to get current attempt: %w", err)
	}

	now := s.clock.Now().UTC()
	if currentID == nil {
		if verrs := s.validator.Business().ValidateAttemptStart(quiz, now, enrolled, used); len(verrs) > 0 {
			return nil, startError(verrs)
		}
	} else if !enrolled {
		return nil, ErrQuizNotEnrolled
	}

	var remaining *int
	if quiz.MaxAttempts != nil {
		left := *quiz.MaxAttempts - int(used)
		if left < 0 {
			left = 0
		}
		remaining = &left
	}

	return &QuizWithQuestions{
		Quiz:              toQuizSummary(quiz, now),
		Questions:         questionViews(quiz.Questions),
		AttemptsUsed:      used,
		AttemptsRemaining: remaining,
		CurrentAttemptID:  currentID,
	}, nil
}
