package services

import (
	"context"
	"io"
	"time"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/grading"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
)

// ===== SERVICE INTERFACES =====

// CatalogService answers what a learner can take right now.
type CatalogService interface {
	ListAvailable(ctx context.Context, identity *models.Identity) ([]QuizSummary, error)
	GetQuizForAttempt(ctx context.Context, quizID uint, identity *models.Identity) (*QuizWithQuestions, error)
}

type AttemptService interface {
	// Core attempt operations
	Start(ctx context.Context, quizID uint, identity *models.Identity) (*StartAttemptResponse, error)
	SaveAnswer(ctx context.Context, attemptID, questionID uint, answer string, identity *models.Identity) (*AutosaveResponse, error)
	Autosave(ctx context.Context, attemptID uint, answers models.AnswerMap, identity *models.Identity) (*AutosaveResponse, error)
	Submit(ctx context.Context, attemptID uint, answers models.AnswerMap, identity *models.Identity) (*SubmitResponse, error)
	Abandon(ctx context.Context, attemptID uint, identity *models.Identity) (*AttemptResponse, error)

	// Get operations
	Get(ctx context.Context, attemptID uint, identity *models.Identity) (*AttemptResponse, error)
	GetCurrent(ctx context.Context, quizID uint, identity *models.Identity) (*AttemptResponse, error)
	List(ctx context.Context, filters repositories.AttemptFilters, identity *models.Identity) (*AttemptListResponse, error)
	GetTimeRemaining(ctx context.Context, attemptID uint, identity *models.Identity) (*TimeRemainingResponse, error)

	// Sweeper operations
	ExpireOverdue(ctx context.Context) (int, error)
	CloseOrphaned(ctx context.Context) (int, error)
}

type GradingService interface {
	// Grade scores answers against the quiz's questions. Pure apart from logging.
	Grade(quiz *models.Quiz, answers models.AnswerMap) grading.Result
	// RegradeQuiz recomputes the score of every completed attempt, e.g. after a
	// correct answer was fixed. Returns how many attempts changed.
	RegradeQuiz(ctx context.Context, quizID uint, identity *models.Identity) (int, error)
}

// QuizService covers authoring: quizzes, questions and course enrollment.
type QuizService interface {
	CreateCourse(ctx context.Context, req *CourseCreateRequest, identity *models.Identity) (*models.Course, error)
	Enroll(ctx context.Context, courseID uint, req *validator.EnrollRequest, identity *models.Identity) (*EnrollResponse, error)
	Unenroll(ctx context.Context, courseID uint, studentID string, identity *models.Identity) error

	Create(ctx context.Context, req *validator.QuizCreateRequest, identity *models.Identity) (*QuizDetail, error)
	Get(ctx context.Context, quizID uint, identity *models.Identity) (*QuizDetail, error)
	Update(ctx context.Context, quizID uint, req *validator.QuizUpdateRequest, identity *models.Identity) (*QuizDetail, error)
	Delete(ctx context.Context, quizID uint, identity *models.Identity) error
	List(ctx context.Context, filters repositories.QuizFilters, identity *models.Identity) (*QuizListResponse, error)

	AddQuestion(ctx context.Context, quizID uint, req *validator.QuestionCreateRequest, identity *models.Identity) (*models.Question, error)
	UpdateQuestion(ctx context.Context, questionID uint, req *validator.QuestionUpdateRequest, identity *models.Identity) (*models.Question, error)
	DeleteQuestion(ctx context.Context, questionID uint, identity *models.Identity) error
	ReorderQuestions(ctx context.Context, quizID uint, req *validator.ReorderQuestionsRequest, identity *models.Identity) ([]models.Question, error)
}

type ExportService interface {
	// ExportResults writes an XLSX workbook of completed attempts to w.
	ExportResults(ctx context.Context, quizID uint, identity *models.Identity, w io.Writer) (filename string, err error)
}

// ServiceManager wires services together and owns their lifecycle.
type ServiceManager interface {
	Catalog() CatalogService
	Attempt() AttemptService
	Grading() GradingService
	Quiz() QuizService
	Export() ExportService
	Sweeper() *Sweeper

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ===== REQUEST / RESPONSE TYPES =====

type CourseCreateRequest struct {
	Code  string `json:"code" validate:"required,min=2,max=32"`
	Title string `json:"title" validate:"required,min=1,max=200"`
}

type EnrollResponse struct {
	CourseID  uint  `json:"course_id"`
	Requested int   `json:"requested"`
	Added     int64 `json:"added"`
}

// QuizSummary is a quiz as listed to learners.
type QuizSummary struct {
	ID          uint      `json:"id"`
	CourseID    uint      `json:"course_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	TimeLimit   *int      `json:"time_limit"`
	MaxAttempts *int      `json:"max_attempts"`
	TotalMarks  float64   `json:"total_marks"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsOpen      bool      `json:"is_open"`
}

// QuizWithQuestions is everything a learner needs before starting an attempt.
// Questions never carry correct answers.
type QuizWithQuestions struct {
	Quiz              QuizSummary           `json:"quiz"`
	Questions         []models.QuestionView `json:"questions"`
	AttemptsUsed      int64                 `json:"attempts_used"`
	AttemptsRemaining *int                  `json:"attempts_remaining"`
	CurrentAttemptID  *uint                 `json:"current_attempt_id,omitempty"`
}

// QuizDetail is the authoring view of a quiz, correct answers included.
type QuizDetail struct {
	*models.Quiz
	AttemptCount int64 `json:"attempt_count"`
}

type QuizListResponse struct {
	Quizzes []*models.Quiz `json:"quizzes"`
	Total   int64          `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

type AttemptResponse struct {
	ID            uint                 `json:"id"`
	QuizID        uint                 `json:"quiz_id"`
	StudentID     string               `json:"student_id"`
	AttemptNumber int                  `json:"attempt_number"`
	Status        models.AttemptStatus `json:"status"`
	Answers       models.AnswerMap     `json:"answers"`
	Version       int                  `json:"version"`
	StartedAt     time.Time            `json:"started_at"`
	DeadlineAt    *time.Time           `json:"deadline_at"`
	CompletedAt   *time.Time           `json:"completed_at"`
	TimeTaken     *int                 `json:"time_taken"`
	Score         *float64             `json:"score"`
	Percentage    *float64             `json:"percentage"`
	EndReason     *string              `json:"end_reason"`
	// RemainingSeconds is nil for untimed or finished attempts.
	RemainingSeconds *int `json:"remaining_seconds"`
}

type StartAttemptResponse struct {
	Attempt    *AttemptResponse      `json:"attempt"`
	Resumed    bool                  `json:"resumed"`
	Quiz       QuizSummary           `json:"quiz"`
	Questions  []models.QuestionView `json:"questions"`
	ServerTime time.Time             `json:"server_time"`

	// AutosaveSeconds is how often clients should push their answers.
	AutosaveSeconds int `json:"autosave_seconds"`
}

type AutosaveResponse struct {
	AttemptID uint      `json:"attempt_id"`
	Version   int       `json:"version"`
	Answered  int       `json:"answered"`
	SavedAt   time.Time `json:"saved_at"`
}

type SubmitResponse struct {
	Attempt          *AttemptResponse         `json:"attempt"`
	Score            float64                  `json:"score"`
	TotalMarks       float64                  `json:"total_marks"`
	Percentage       float64                  `json:"percentage"`
	Breakdown        []grading.QuestionResult `json:"breakdown"`
	AlreadyCompleted bool                     `json:"already_completed"`
}

type AttemptListResponse struct {
	Attempts []*AttemptResponse `json:"attempts"`
	Total    int64              `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

type TimeRemainingResponse struct {
	AttemptID        uint       `json:"attempt_id"`
	Timed            bool       `json:"timed"`
	RemainingSeconds *int       `json:"remaining_seconds"`
	DeadlineAt       *time.Time `json:"deadline_at"`
	ServerTime       time.Time  `json:"server_time"`
}
