package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	MultiChoice  QuestionType = "multi_choice"
	FreeText     QuestionType = "free_text"
)

// MinQuestionMarks is the smallest weight a question may carry.
const MinQuestionMarks = 0.5

func (t QuestionType) IsChoice() bool {
	return t == SingleChoice || t == MultiChoice
}

func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultiChoice, FreeText:
		return true
	}
	return false
}

type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	QuizID uint         `json:"quiz_id" gorm:"not null;index;uniqueIndex:idx_question_quiz_order"`
	Type   QuestionType `json:"type" gorm:"not null;size:20"`
	Text   string       `json:"text" gorm:"type:text;not null"`

	// Options is the ordered option list for choice questions.
	Options datatypes.JSONSlice[string] `json:"options"`
	// CorrectAnswer uses the answer encoding: multi-choice answers are the
	// sorted option set joined by "|".
	CorrectAnswer string  `json:"correct_answer" gorm:"type:text;not null"`
	Marks         float64 `json:"marks" gorm:"not null"`
	OrderNumber   int     `json:"order_number" gorm:"not null;uniqueIndex:idx_question_quiz_order"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Question) TableName() string {
	return "questions"
}

// QuestionView is a question as shown to a learner; it never carries the correct answer.
type QuestionView struct {
	ID          uint         `json:"id"`
	Type        QuestionType `json:"type"`
	Text        string       `json:"text"`
	Options     []string     `json:"options,omitempty"`
	Marks       float64      `json:"marks"`
	OrderNumber int          `json:"order_number"`
}

func (q *Question) View() QuestionView {
	return QuestionView{
		ID:          q.ID,
		Type:        q.Type,
		Text:        q.Text,
		Options:     []string(q.Options),
		Marks:       q.Marks,
		OrderNumber: q.OrderNumber,
	}
}
