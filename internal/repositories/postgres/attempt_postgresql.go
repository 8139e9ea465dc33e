package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
)

// AttemptPostgreSQL stores quiz attempts. Attempts are never cached: every
// status guard must read the row as it is now.
type AttemptPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(),
	}
}

// ===== BASIC CRUD OPERATIONS =====

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error {
	if err := getDB(a.db, tx).WithContext(ctx).Omit("Quiz").Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := getDB(a.db, tx).WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetInProgress(ctx context.Context, tx *gorm.DB, quizID uint, studentID string) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	err := getDB(a.db, tx).WithContext(ctx).
		Where("quiz_id = ? AND student_id = ? AND status = ?", quizID, studentID, models.AttemptInProgress).
		First(&attempt).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get in-progress attempt: %w", err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.QuizAttempt, int64, error) {
	db := getDB(a.db, tx).WithContext(ctx)

	query := a.helpers.ApplyAttemptFilters(db.Model(&models.QuizAttempt{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	if filters.SortBy == "" {
		filters.SortBy = "started_at"
	}
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var attempts []*models.QuizAttempt
	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}

	return attempts, total, nil
}

// ===== COUNTERS =====

func (a *AttemptPostgreSQL) NextAttemptNumber(ctx context.Context, tx *gorm.DB, quizID uint, studentID string) (int, error) {
	var maxNumber int
	err := getDB(a.db, tx).WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&maxNumber).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get max attempt number: %w", err)
	}
	return maxNumber + 1, nil
}

func (a *AttemptPostgreSQL) CountByStatus(ctx context.Context, tx *gorm.DB, quizID uint, studentID string, status models.AttemptStatus) (int64, error) {
	var count int64
	err := getDB(a.db, tx).WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("quiz_id = ? AND student_id = ? AND status = ?", quizID, studentID, status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

// ===== CONDITIONAL WRITES =====

// SaveAnswers replaces the stored answers of an in-progress attempt and
// returns the new version.
func (a *AttemptPostgreSQL) SaveAnswers(ctx context.Context, tx *gorm.DB, id uint, answers models.AnswerMap) (int, error) {
	db := getDB(a.db, tx).WithContext(ctx)

	res := db.Model(&models.QuizAttempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"answers":    datatypes.NewJSONType(answers),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to save answers: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, a.missedWrite(ctx, db, id)
	}

	var version int
	err := db.Model(&models.QuizAttempt{}).Where("id = ?", id).Select("version").Scan(&version).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read attempt version: %w", err)
	}
	return version, nil
}

func (a *AttemptPostgreSQL) Complete(ctx context.Context, tx *gorm.DB, id uint, fields repositories.CompletionFields) error {
	db := getDB(a.db, tx).WithContext(ctx)

	updates := map[string]interface{}{
		"status":       models.AttemptCompleted,
		"completed_at": fields.CompletedAt,
		"score":        fields.Score,
		"percentage":   fields.Percentage,
		"time_taken":   fields.TimeTaken,
		"end_reason":   fields.EndReason,
		"updated_at":   time.Now().UTC(),
	}
	if fields.Answers != nil {
		updates["answers"] = datatypes.NewJSONType(fields.Answers)
		updates["version"] = gorm.Expr("version + 1")
	}

	res := db.Model(&models.QuizAttempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to complete attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return a.missedWrite(ctx, db, id)
	}
	return nil
}

func (a *AttemptPostgreSQL) Abandon(ctx context.Context, tx *gorm.DB, id uint, reason string, at time.Time) error {
	db := getDB(a.db, tx).WithContext(ctx)

	res := db.Model(&models.QuizAttempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":       models.AttemptAbandoned,
			"completed_at": at,
			"end_reason":   reason,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to abandon attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return a.missedWrite(ctx, db, id)
	}
	return nil
}

// missedWrite tells a missing attempt apart from one that already left
// the in-progress state.
func (a *AttemptPostgreSQL) missedWrite(ctx context.Context, db *gorm.DB, id uint) error {
	var count int64
	if err := db.Model(&models.QuizAttempt{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check attempt: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("attempt %d: %w", id, repositories.ErrNotFound)
	}
	return repositories.ErrStaleWrite
}

// ===== RESULTS =====

func (a *AttemptPostgreSQL) ListCompletedByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.QuizAttempt, error) {
	var attempts []*models.QuizAttempt
	err := getDB(a.db, tx).WithContext(ctx).
		Where("quiz_id = ? AND status = ?", quizID, models.AttemptCompleted).
		Order("student_id ASC, attempt_number ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list completed attempts: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) UpdateScore(ctx context.Context, tx *gorm.DB, id uint, score, percentage float64) error {
	res := getDB(a.db, tx).WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("id = ? AND status = ?", id, models.AttemptCompleted).
		Updates(map[string]interface{}{
			"score":      score,
			"percentage": percentage,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update attempt score: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("completed attempt %d: %w", id, repositories.ErrNotFound)
	}
	return nil
}

// ===== SWEEPER QUERIES =====

func (a *AttemptPostgreSQL) ListOverdue(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*models.QuizAttempt, error) {
	var attempts []*models.QuizAttempt
	err := getDB(a.db, tx).WithContext(ctx).
		Where("status = ? AND deadline_at IS NOT NULL AND deadline_at < ?", models.AttemptInProgress, cutoff).
		Order("deadline_at ASC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue attempts: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) ListOrphaned(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.QuizAttempt, error) {
	var attempts []*models.QuizAttempt
	err := getDB(a.db, tx).WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Select("quiz_attempts.*").
		Joins("JOIN quizzes ON quizzes.id = quiz_attempts.quiz_id").
		Where("quiz_attempts.status = ? AND quiz_attempts.deadline_at IS NULL AND quizzes.end_time < ?", models.AttemptInProgress, now).
		Order("quiz_attempts.id ASC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orphaned attempts: %w", err)
	}
	return attempts, nil
}
