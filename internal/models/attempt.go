package models

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptCompleted || s == AttemptAbandoned
}

const (
	EndReasonSubmitted    = "submitted"
	EndReasonTimeExpired  = "time_expired"
	EndReasonAbandoned    = "abandoned"
	EndReasonWindowClosed = "window_closed"
)

// AnswerMap maps a question id (decimal string) to the learner's encoded answer.
type AnswerMap map[string]string

// AnswerKey returns the AnswerMap key for a question id.
func AnswerKey(questionID uint) string {
	return strconv.FormatUint(uint64(questionID), 10)
}

// Clone returns a copy safe to hand to another goroutine.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AnsweredCount counts entries with a non-empty answer.
func (m AnswerMap) AnsweredCount() int {
	n := 0
	for _, v := range m {
		if v != "" {
			n++
		}
	}
	return n
}

type QuizAttempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	QuizID        uint          `json:"quiz_id" gorm:"not null;index;uniqueIndex:idx_attempt_quiz_student_number"`
	StudentID     string        `json:"student_id" gorm:"not null;size:255;index;uniqueIndex:idx_attempt_quiz_student_number"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;uniqueIndex:idx_attempt_quiz_student_number"`
	Status        AttemptStatus `json:"status" gorm:"not null;size:20;default:in_progress;index"`

	Answers datatypes.JSONType[AnswerMap] `json:"answers"`
	// Version increases on every answers write.
	Version int `json:"version" gorm:"not null;default:1"`

	// Timing
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	DeadlineAt  *time.Time `json:"deadline_at" gorm:"index"`
	CompletedAt *time.Time `json:"completed_at"`
	TimeTaken   *int       `json:"time_taken"` // seconds

	// Scoring
	Score      *float64 `json:"score"`
	Percentage *float64 `json:"percentage"`
	EndReason  *string  `json:"end_reason" gorm:"size:20"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Quiz Quiz `json:"-" gorm:"foreignKey:QuizID"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// AnswerMap returns the stored answers, never nil.
func (a *QuizAttempt) AnswerMap() AnswerMap {
	m := a.Answers.Data()
	if m == nil {
		return AnswerMap{}
	}
	return m
}

// TimeRemaining returns the time left before the deadline at now, clamped at
// zero. ok is false for untimed attempts.
func (a *QuizAttempt) TimeRemaining(now time.Time) (remaining time.Duration, ok bool) {
	if a.DeadlineAt == nil {
		return 0, false
	}
	remaining = a.DeadlineAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
