package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/cache"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
)

type QuizPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
	helpers      *SharedHelpers
}

func NewQuizPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuizRepository {
	return &QuizPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
		helpers:      NewSharedHelpers(),
	}
}

// ===== BASIC CRUD OPERATIONS =====

func (q *QuizPostgreSQL) Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	if err := getDB(q.db, tx).WithContext(ctx).Omit("Course").Create(quiz).Error; err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

func (q *QuizPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	var quiz models.Quiz
	if err := getDB(q.db, tx).WithContext(ctx).First(&quiz, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return &quiz, nil
}

func (q *QuizPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error) {
	load := func() (interface{}, error) {
		var quiz models.Quiz
		err := getDB(q.db, tx).WithContext(ctx).
			Preload("Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("order_number ASC")
			}).
			First(&quiz, id).Error
		if err != nil {
			return nil, err
		}
		return &quiz, nil
	}

	// Transactions always see the database
	if tx != nil {
		v, err := load()
		if err != nil {
			return nil, fmt.Errorf("failed to get quiz with questions: %w", err)
		}
		return v.(*models.Quiz), nil
	}

	var quiz models.Quiz
	err := q.cacheManager.Quiz.CacheOrExecute(ctx, cache.QuizKey(id), &quiz, cache.QuizCacheConfig.TTL, load)
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz with questions: %w", err)
	}
	return &quiz, nil
}

func (q *QuizPostgreSQL) Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error {
	err := getDB(q.db, tx).WithContext(ctx).
		Omit("Questions", "Course", "created_at", "created_by").
		Save(quiz).Error
	if err != nil {
		return fmt.Errorf("failed to update quiz: %w", err)
	}
	return nil
}

func (q *QuizPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	res := getDB(q.db, tx).WithContext(ctx).Delete(&models.Quiz{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete quiz: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("quiz %d: %w", id, repositories.ErrNotFound)
	}
	return nil
}

func (q *QuizPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.QuizFilters) ([]*models.Quiz, int64, error) {
	db := getDB(q.db, tx).WithContext(ctx)

	query := q.helpers.ApplyQuizFilters(db.Model(&models.Quiz{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count quizzes: %w", err)
	}

	var quizzes []*models.Quiz
	query = q.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&quizzes).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list quizzes: %w", err)
	}

	return quizzes, total, nil
}

// ===== LEARNER CATALOG =====

func (q *QuizPostgreSQL) ListAvailableForStudent(ctx context.Context, tx *gorm.DB, studentID string, now time.Time) ([]*models.Quiz, error) {
	load := func() (interface{}, error) {
		var quizzes []*models.Quiz
		err := getDB(q.db, tx).WithContext(ctx).
			Model(&models.Quiz{}).
			Select("quizzes.*").
			Joins("JOIN enrollments ON enrollments.course_id = quizzes.course_id").
			Where("enrollments.student_id = ? AND quizzes.is_active = ? AND quizzes.end_time >= ?", studentID, true, now).
			Order("quizzes.end_time ASC, quizzes.id ASC").
			Find(&quizzes).Error
		if err != nil {
			return nil, err
		}
		return quizzes, nil
	}

	var quizzes []*models.Quiz
	if tx != nil {
		v, err := load()
		if err != nil {
			return nil, fmt.Errorf("failed to list available quizzes: %w", err)
		}
		quizzes = v.([]*models.Quiz)
	} else {
		err := q.cacheManager.Catalog.CacheOrExecute(ctx, cache.CatalogKey(studentID), &quizzes, cache.CatalogCacheConfig.TTL, load)
		if err != nil {
			return nil, fmt.Errorf("failed to list available quizzes: %w", err)
		}
	}

	// A cached catalog may hold quizzes that closed since it was stored
	open := quizzes[:0]
	for _, quiz := range quizzes {
		if !now.After(quiz.EndTime) {
			open = append(open, quiz)
		}
	}
	return open, nil
}

// RecomputeTotalMarks stores the sum of question marks on the quiz row
func (q *QuizPostgreSQL) RecomputeTotalMarks(ctx context.Context, tx *gorm.DB, quizID uint) (float64, error) {
	db := getDB(q.db, tx).WithContext(ctx)

	var total float64
	err := db.Model(&models.Question{}).
		Where("quiz_id = ?", quizID).
		Select("COALESCE(SUM(marks), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum question marks: %w", err)
	}

	if err := db.Model(&models.Quiz{}).Where("id = ?", quizID).Update("total_marks", total).Error; err != nil {
		return 0, fmt.Errorf("failed to update total marks: %w", err)
	}
	return total, nil
}

func (q *QuizPostgreSQL) InvalidateCache(ctx context.Context, quizID uint) {
	cache.InvalidateQuizCache(ctx, q.cacheManager, quizID)
}

func (q *QuizPostgreSQL) InvalidateCatalog(ctx context.Context, studentIDs ...string) {
	for _, id := range studentIDs {
		cache.InvalidateCatalogCache(ctx, q.cacheManager, id)
	}
}
