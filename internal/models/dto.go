package models

import "time"

// ===== ERROR RESPONSES =====

// Error codes let clients react to attempt state without parsing messages.
const (
	ErrorCodeAttemptNotActive   = "attempt_not_active"
	ErrorCodeAttemptTimeExpired = "attempt_time_expired"
)

type ErrorResponse struct {
	Message   string      `json:"message"`
	Code      string      `json:"code,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== RESULT EXPORT =====

// AttemptResultRow is one line of a quiz results export.
type AttemptResultRow struct {
	AttemptID     uint       `json:"attempt_id"`
	StudentID     string     `json:"student_id"`
	StudentName   string     `json:"student_name"`
	AttemptNumber int        `json:"attempt_number"`
	Status        string     `json:"status"`
	Score         float64    `json:"score"`
	Percentage    float64    `json:"percentage"`
	TimeTaken     int        `json:"time_taken"`
	CompletedAt   *time.Time `json:"completed_at"`
}
