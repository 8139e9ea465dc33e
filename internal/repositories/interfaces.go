package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type QuizFilters struct {
	CourseID  *uint   `json:"course_id"`
	CreatedBy *string `json:"created_by"`
	IsActive  *bool   `json:"is_active"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
	SortBy    string  `json:"sort_by"`    // "created_at", "title", "start_time", "end_time"
	SortOrder string  `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	QuizID    *uint                 `json:"quiz_id"`
	Status    *models.AttemptStatus `json:"status"`
	StudentID *string               `json:"student_id"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "started_at", "completed_at", "attempt_number", "score"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

// CompletionFields are written by the single transition into Completed.
// A non-nil Answers replaces the stored answers in the same write.
type CompletionFields struct {
	CompletedAt time.Time
	Score       float64
	Percentage  float64
	TimeTaken   int
	EndReason   string
	Answers     models.AnswerMap
}

// ===== REPOSITORY INTERFACES =====

type CourseRepository interface {
	Create(ctx context.Context, tx *gorm.DB, course *models.Course) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error)
}

type EnrollmentRepository interface {
	IsEnrolled(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) (bool, error)
	// Enroll adds the learners and returns how many were newly enrolled.
	Enroll(ctx context.Context, tx *gorm.DB, courseID uint, studentIDs []string) (int64, error)
	Unenroll(ctx context.Context, tx *gorm.DB, courseID uint, studentID string) error
}

type QuizRepository interface {
	Create(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	// GetByIDWithQuestions loads the quiz with questions ordered by order_number.
	// Reads outside a transaction are cached.
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Quiz, error)
	Update(ctx context.Context, tx *gorm.DB, quiz *models.Quiz) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	List(ctx context.Context, tx *gorm.DB, filters QuizFilters) ([]*models.Quiz, int64, error)

	// ListAvailableForStudent returns active quizzes of the learner's courses
	// whose window has not closed at now.
	ListAvailableForStudent(ctx context.Context, tx *gorm.DB, studentID string, now time.Time) ([]*models.Quiz, error)
	// RecomputeTotalMarks stores and returns the sum of the quiz's question marks.
	RecomputeTotalMarks(ctx context.Context, tx *gorm.DB, quizID uint) (float64, error)
	// InvalidateCache drops cached copies of the quiz and learner catalogs.
	InvalidateCache(ctx context.Context, quizID uint)
	// InvalidateCatalog drops the cached catalogs of the given learners.
	InvalidateCatalog(ctx context.Context, studentIDs ...string)
}

type QuestionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	GetByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]models.Question, error)
	NextOrderNumber(ctx context.Context, tx *gorm.DB, quizID uint) (int, error)
	// Reorder assigns order numbers 1..n following orderedIDs, which must list
	// every question of the quiz.
	Reorder(ctx context.Context, tx *gorm.DB, quizID uint, orderedIDs []uint) error
}

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.QuizAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuizAttempt, error)
	GetInProgress(ctx context.Context, tx *gorm.DB, quizID uint, studentID string) (*models.QuizAttempt, error)
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.QuizAttempt, int64, error)

	NextAttemptNumber(ctx context.Context, tx *gorm.DB, quizID uint, studentID string) (int, error)
	CountByStatus(ctx context.Context, tx *gorm.DB, quizID uint, studentID string, status models.AttemptStatus) (int64, error)

	// The writes below only touch in-progress attempts and return ErrStaleWrite
	// when the attempt has already left that state.
	SaveAnswers(ctx context.Context, tx *gorm.DB, id uint, answers models.AnswerMap) (int, error)
	Complete(ctx context.Context, tx *gorm.DB, id uint, fields CompletionFields) error
	Abandon(ctx context.Context, tx *gorm.DB, id uint, reason string, at time.Time) error

	// ListCompletedByQuiz returns every completed attempt of the quiz ordered by student and attempt number.
	ListCompletedByQuiz(ctx context.Context, tx *gorm.DB, quizID uint) ([]*models.QuizAttempt, error)
	// UpdateScore rewrites the score of a completed attempt.
	UpdateScore(ctx context.Context, tx *gorm.DB, id uint, score, percentage float64) error

	// ListOverdue returns in-progress attempts whose deadline is before cutoff.
	ListOverdue(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*models.QuizAttempt, error)
	// ListOrphaned returns untimed in-progress attempts whose quiz window closed before now.
	ListOrphaned(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.QuizAttempt, error)
}

// UserRepository interface for user operations (read-only; users live in the identity provider)
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
}
