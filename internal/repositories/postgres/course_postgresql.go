package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
)

type CoursePostgreSQL struct {
	db *gorm.DB
}

func NewCoursePostgreSQL(db *gorm.DB) repositories.CourseRepository {
	return &CoursePostgreSQL{db: db}
}

func (c *CoursePostgreSQL) Create(ctx context.Context, tx *gorm.DB, course *models.Course) error {
	if err := getDB(c.db, tx).WithContext(ctx).Create(course).Error; err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}
	return nil
}

func (c *CoursePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	var course models.Course
	if err := getDB(c.db, tx).WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &course, nil
}

// ===== ENROLLMENTS =====

type EnrollmentPostgreSQL struct {
	db *gorm.DB
}

func NewEnrollmentPostgreSQL(db *gorm.DB) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{db: db}
}

func (e *EnrollmentPostgreSQL) IsEnrolled(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) (bool, error) {
	var count int64
	err := getDB(e.db, tx).WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ? AND student_id = ?", courseID, studentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return count > 0, nil
}

func (e *EnrollmentPostgreSQL) Enroll(ctx context.Context, tx *gorm.DB, courseID uint, studentIDs []string) (int64, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([]models.Enrollment, 0, len(studentIDs))
	for _, id := range studentIDs {
		rows = append(rows, models.Enrollment{CourseID: courseID, StudentID: id, EnrolledAt: now})
	}

	res := getDB(e.db, tx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to enroll students: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (e *EnrollmentPostgreSQL) Unenroll(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) error {
	res := getDB(e.db, tx).WithContext(ctx).
		Where("course_id = ? AND student_id = ?", courseID, studentID).
		Delete(&models.Enrollment{})
	if res.Error != nil {
		return fmt.Errorf("failed to unenroll student: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("enrollment: %w", repositories.ErrNotFound)
	}
	return nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func getDB(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}
