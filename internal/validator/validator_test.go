package validator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
)

func intPtr(v int) *int { return &v }

func TestValidator_QuestionCreateRequest(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		req      QuestionCreateRequest
		wantRule string
	}{
		{
			name: "valid single choice",
			req:  QuestionCreateRequest{Type: models.SingleChoice, Text: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: "4", Marks: 1},
		},
		{
			name:     "marks below minimum",
			req:      QuestionCreateRequest{Type: models.FreeText, Text: "Capital?", CorrectAnswer: "Paris", Marks: 0.25},
			wantRule: "question_marks",
		},
		{
			name:     "unknown type",
			req:      QuestionCreateRequest{Type: "essay", Text: "Discuss", CorrectAnswer: "x", Marks: 1},
			wantRule: "question_type",
		},
		{
			name:     "missing text",
			req:      QuestionCreateRequest{Type: models.FreeText, CorrectAnswer: "x", Marks: 1},
			wantRule: "required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&tt.req)
			if tt.wantRule == "" {
				assert.NoError(t, err)
				return
			}
			var ve ValidationErrors
			require.True(t, errors.As(err, &ve))
			assert.True(t, ve.HasRule(tt.wantRule), "rules: %v", ve)
		})
	}
}

func TestValidator_QuizCreateRequest_Window(t *testing.T) {
	v := New()
	start := time.Now()

	err := v.Validate(&QuizCreateRequest{
		CourseID:  1,
		Title:     "Midterm",
		StartTime: start,
		EndTime:   start.Add(-time.Hour),
		TimeLimit: intPtr(30),
	})

	var ve ValidationErrors
	require.True(t, errors.As(err, &ve))
	assert.True(t, ve.HasRule("gtfield"))
	assert.Equal(t, "end_time", ve[0].Field)
}

func TestBusinessValidator_ValidateAttemptStart(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	open := &models.Quiz{
		ID:          1,
		IsActive:    true,
		StartTime:   now.Add(-time.Hour),
		EndTime:     now.Add(time.Hour),
		MaxAttempts: intPtr(2),
	}

	tests := []struct {
		name      string
		quiz      func() *models.Quiz
		enrolled  bool
		completed int64
		wantRules []string
	}{
		{name: "all preconditions hold", quiz: func() *models.Quiz { return open }, enrolled: true, completed: 1},
		{name: "not enrolled", quiz: func() *models.Quiz { return open }, enrolled: false, wantRules: []string{RuleNotEnrolled}},
		{name: "attempts exhausted", quiz: func() *models.Quiz { return open }, enrolled: true, completed: 2, wantRules: []string{RuleAttemptLimit}},
		{
			name: "unlimited attempts",
			quiz: func() *models.Quiz {
				q := *open
				q.MaxAttempts = nil
				return &q
			},
			enrolled:  true,
			completed: 50,
		},
		{
			name: "window closed and inactive",
			quiz: func() *models.Quiz {
				q := *open
				q.IsActive = false
				q.EndTime = now.Add(-time.Minute)
				return &q
			},
			enrolled:  true,
			wantRules: []string{RuleQuizInactive, RuleWindowClosed},
		},
		{
			name: "window boundary is inclusive",
			quiz: func() *models.Quiz {
				q := *open
				q.EndTime = now
				return &q
			},
			enrolled: true,
		},
	}

	bv := New().Business()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := bv.ValidateAttemptStart(tt.quiz(), now, tt.enrolled, tt.completed)
			assert.Len(t, errs, len(tt.wantRules))
			for _, rule := range tt.wantRules {
				assert.True(t, errs.HasRule(rule), "missing rule %s in %v", rule, errs)
			}
		})
	}
}

func TestBusinessValidator_ValidateQuestionContent(t *testing.T) {
	bv := New().Business()

	tests := []struct {
		name    string
		qType   models.QuestionType
		options []string
		correct string
		wantErr bool
	}{
		{"single in options", models.SingleChoice, []string{"a", "b"}, "a", false},
		{"single not in options", models.SingleChoice, []string{"a", "b"}, "c", true},
		{"multi subset of options", models.MultiChoice, []string{"a", "b", "c"}, "a|c", false},
		{"multi with foreign option", models.MultiChoice, []string{"a", "b"}, "a|z", true},
		{"choice needs two options", models.SingleChoice, []string{"a"}, "a", true},
		{"duplicate options", models.MultiChoice, []string{"a", "a"}, "a", true},
		{"delimiter inside option", models.MultiChoice, []string{"a|b", "c"}, "c", true},
		{"free text with options", models.FreeText, []string{"a"}, "a", true},
		{"free text ok", models.FreeText, nil, "Paris", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := bv.ValidateQuestionContent(tt.qType, tt.options, tt.correct)
			assert.Equal(t, tt.wantErr, len(errs) > 0, "errors: %v", errs)
		})
	}
}

func TestBusinessValidator_ValidateOrderNumbers(t *testing.T) {
	bv := New().Business()

	assert.Empty(t, bv.ValidateOrderNumbers([]models.Question{{ID: 1, OrderNumber: 1}, {ID: 2, OrderNumber: 2}}))
	errs := bv.ValidateOrderNumbers([]models.Question{{ID: 1, OrderNumber: 1}, {ID: 2, OrderNumber: 1}, {ID: 3, OrderNumber: 0}})
	assert.Len(t, errs, 2)
	assert.True(t, errs.HasRule(RuleOrderNumber))
}
