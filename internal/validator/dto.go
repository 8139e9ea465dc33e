package validator

import (
	"time"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
)

// QuizCreateRequest represents the request structure for creating quizzes
type QuizCreateRequest struct {
	CourseID    uint                    `json:"course_id" validate:"required"`
	Title       string                  `json:"title" validate:"required,min=1,max=200"`
	Description *string                 `json:"description" validate:"omitempty,max=2000"`
	TimeLimit   *int                    `json:"time_limit" validate:"omitempty,time_limit"`
	MaxAttempts *int                    `json:"max_attempts" validate:"omitempty,max_attempts"`
	StartTime   time.Time               `json:"start_time" validate:"required"`
	EndTime     time.Time               `json:"end_time" validate:"required,gtfield=StartTime"`
	IsActive    bool                    `json:"is_active"`
	Questions   []QuestionCreateRequest `json:"questions" validate:"omitempty,max=200,dive"`
}

// QuizUpdateRequest represents the request structure for updating quizzes.
// ClearTimeLimit and ClearMaxAttempts switch a limit back to unlimited.
type QuizUpdateRequest struct {
	Title            *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description      *string    `json:"description" validate:"omitempty,max=2000"`
	TimeLimit        *int       `json:"time_limit" validate:"omitempty,time_limit"`
	ClearTimeLimit   bool       `json:"clear_time_limit"`
	MaxAttempts      *int       `json:"max_attempts" validate:"omitempty,max_attempts"`
	ClearMaxAttempts bool       `json:"clear_max_attempts"`
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	IsActive         *bool      `json:"is_active"`
}

// QuestionCreateRequest represents the request structure for creating questions.
// For multi-choice questions CorrectAnswer uses the "|" delimited encoding.
type QuestionCreateRequest struct {
	Type          models.QuestionType `json:"type" validate:"required,question_type"`
	Text          string              `json:"text" validate:"required,min=1,max=2000"`
	Options       []string            `json:"options" validate:"omitempty,max=20,dive,required,max=500"`
	CorrectAnswer string              `json:"correct_answer" validate:"required,max=2000"`
	Marks         float64             `json:"marks" validate:"required,question_marks"`
	OrderNumber   *int                `json:"order_number" validate:"omitempty,min=1"`
}

// QuestionUpdateRequest represents the request structure for updating questions
type QuestionUpdateRequest struct {
	Type          *models.QuestionType `json:"type" validate:"omitempty,question_type"`
	Text          *string              `json:"text" validate:"omitempty,min=1,max=2000"`
	Options       []string             `json:"options" validate:"omitempty,max=20,dive,required,max=500"`
	CorrectAnswer *string              `json:"correct_answer" validate:"omitempty,max=2000"`
	Marks         *float64             `json:"marks" validate:"omitempty,question_marks"`
}

// ReorderQuestionsRequest lists every question of a quiz in its new order.
type ReorderQuestionsRequest struct {
	QuestionIDs []uint `json:"question_ids" validate:"required,min=1,dive,required"`
}

type EnrollRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,max=500,dive,required,max=255"`
}

// AutosaveRequest replaces every stored answer of an attempt.
type AutosaveRequest struct {
	Answers models.AnswerMap `json:"answers" validate:"max=200"`
}

// AnswerRequest sets one answer; an empty answer clears it.
type AnswerRequest struct {
	Answer string `json:"answer" validate:"max=2000"`
}

// SubmitRequest carries the final answers. Without answers the autosaved set is graded.
type SubmitRequest struct {
	Answers models.AnswerMap `json:"answers" validate:"omitempty,max=200"`
}
