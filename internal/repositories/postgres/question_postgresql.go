package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
)

type QuestionPostgreSQL struct {
	db *gorm.DB
}

func NewQuestionPostgreSQL(db *gorm.DB) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db}
}

func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if err := getDB(q.db, tx).WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	var question models.Question
	if err := getDB(q.db, tx).WithContext(ctx).First(&question, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return &question, nil
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if err := getDB(q.db, tx).WithContext(ctx).Omit("created_at").Save(question).Error; err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}
	return nil
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	res := getDB(q.db, tx).WithContext(ctx).Delete(&models.Question{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete question: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("question %d: %w", id, repositories.ErrNotFound)
	}
	return nil
}

func (q *QuestionPostgreSQL) GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]models.Question, error) {
	var questions []models.Question
	err := getDB(q.db, tx).WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Order("order_number ASC").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) NextOrderNumber(ctx context.Context, tx *gorm.DB, quizID uint) (int, error) {
	var maxOrder int
	err := getDB(q.db, tx).WithContext(ctx).
		Model(&models.Question{}).
		Where("quiz_id = ?", quizID).
		Select("COALESCE(MAX(order_number), 0)").
		Scan(&maxOrder).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get max order number: %w", err)
	}
	return maxOrder + 1, nil
}

// Reorder rewrites order numbers in two passes so the (quiz_id, order_number)
// unique index never sees a duplicate. Callers run it inside a transaction.
func (q *QuestionPostgreSQL) Reorder(ctx context.Context, tx *gorm.DB, quizID uint, orderedIDs []uint) error {
	db := getDB(q.db, tx).WithContext(ctx)

	err := db.Model(&models.Question{}).
		Where("quiz_id = ?", quizID).
		Update("order_number", gorm.Expr("-order_number")).Error
	if err != nil {
		return fmt.Errorf("failed to park order numbers: %w", err)
	}

	for i, id := range orderedIDs {
		res := db.Model(&models.Question{}).
			Where("id = ? AND quiz_id = ?", id, quizID).
			Update("order_number", i+1)
		if res.Error != nil {
			return fmt.Errorf("failed to reorder question %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("question %d: %w", id, repositories.ErrNotFound)
		}
	}
	return nil
}
