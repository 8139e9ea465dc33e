// Package testutil builds throwaway databases and fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/pkg"
)

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps every statement on the same memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := pkg.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Fixture holds the rows most attempt tests start from.
type Fixture struct {
	Course    *models.Course
	Quiz      *models.Quiz
	Questions []models.Question
	StudentID string
}

// QuizOptions tweak the seeded quiz.
type QuizOptions struct {
	TimeLimit   *int
	MaxAttempts *int
	StartTime   time.Time
	EndTime     time.Time
	Inactive    bool
	NotEnrolled bool
}

// SeedQuiz creates a course, an enrolled learner and a three-question quiz
// worth 6 marks: single choice (2), multi choice (3) and free text (1).
func SeedQuiz(t testing.TB, db *gorm.DB, opts QuizOptions) *Fixture {
	t.Helper()

	now := time.Now().UTC()
	if opts.StartTime.IsZero() {
		opts.StartTime = now.Add(-time.Hour)
	}
	if opts.EndTime.IsZero() {
		opts.EndTime = now.Add(24 * time.Hour)
	}

	course := &models.Course{Code: fmt.Sprintf("C%d", now.UnixNano()%1_000_000_000), Title: "Statistics", OwnerID: "lecturer-1"}
	must(t, db.Create(course).Error)

	studentID := "student-1"
	if !opts.NotEnrolled {
		must(t, db.Create(&models.Enrollment{CourseID: course.ID, StudentID: studentID, EnrolledAt: now}).Error)
	}

	quiz := &models.Quiz{
		CourseID:    course.ID,
		Title:       "Week 3 check",
		TimeLimit:   opts.TimeLimit,
		MaxAttempts: opts.MaxAttempts,
		TotalMarks:  6,
		StartTime:   opts.StartTime,
		EndTime:     opts.EndTime,
		IsActive:    !opts.Inactive,
		CreatedBy:   "lecturer-1",
	}
	must(t, db.Omit("Course").Create(quiz).Error)

	questions := []models.Question{
		{QuizID: quiz.ID, Type: models.SingleChoice, Text: "Mean of 2 and 4?", Options: []string{"2", "3", "4"}, CorrectAnswer: "3", Marks: 2, OrderNumber: 1},
		{QuizID: quiz.ID, Type: models.MultiChoice, Text: "Pick the primes", Options: []string{"2", "3", "4"}, CorrectAnswer: "2|3", Marks: 3, OrderNumber: 2},
		{QuizID: quiz.ID, Type: models.FreeText, Text: "Name the median", CorrectAnswer: "Middle", Marks: 1, OrderNumber: 3},
	}
	must(t, db.Create(&questions).Error)

	return &Fixture{Course: course, Quiz: quiz, Questions: questions, StudentID: studentID}
}

func IntPtr(v int) *int {
	return &v
}

func must(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}
