package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gorm.io/gorm"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/grading"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
)

type gradingService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewGradingService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) GradingService {
	return &gradingService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

func (s *gradingService) Grade(quiz *models.Quiz, answers models.AnswerMap) grading.Result {
	result := grading.Evaluate(quiz.Questions, answers, quiz.TotalMarks)
	s.logger.Debug("Graded answers",
		"quiz_id", quiz.ID,
		"score", result.Score,
		"total_marks", result.TotalMarks)
	return result
}

func (s *gradingService) RegradeQuiz(ctx context.Context, quizID uint, identity *models.Identity) (int, error) {
	if identity == nil {
		return 0, ErrUnauthorized
	}
	if !identity.CanManageQuizzes() {
		return 0, NewPermissionError(identity.UserID, quizID, "quiz", "regrade", "only lecturers and admins can regrade")
	}

	s.logger.Info("Regrading quiz", "quiz_id", quizID, "user_id", identity.UserID)

	changed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, tx, quizID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrQuizNotFound
			}
			return err
		}
		if !identity.IsAdmin() && quiz.CreatedBy != identity.UserID {
			return NewPermissionError(identity.UserID, quizID, "quiz", "regrade", "not the quiz owner")
		}

		attempts, err := s.repo.Attempt().ListCompletedByQuiz(ctx, tx, quizID)
		if err != nil {
			return err
		}

		for _, attempt := range attempts {
			result := grading.Evaluate(quiz.Questions, attempt.AnswerMap(), quiz.TotalMarks)
			if attempt.Score != nil && sameScore(*attempt.Score, result.Score) &&
				attempt.Percentage != nil && sameScore(*attempt.Percentage, result.Percentage) {
				continue
			}
			if err := s.repo.Attempt().UpdateScore(ctx, tx, attempt.ID, result.Score, result.Percentage); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to regrade quiz: %w", err)
	}

	s.logger.Info("Quiz regraded", "quiz_id", quizID, "changed", changed)
	return changed, nil
}

func sameScore(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
