package services

import (
	"slices"
	"strings"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/grading"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
)

func applyQuizUpdate(quiz *models.Quiz, req *validator.QuizUpdateRequest) {
	if req.Title != nil {
		quiz.Title = *req.Title
	}
	if req.Description != nil {
		quiz.Description = req.Description
	}
	switch {
	case req.ClearTimeLimit:
		quiz.TimeLimit = nil
	case req.TimeLimit != nil:
		quiz.TimeLimit = req.TimeLimit
	}
	switch {
	case req.ClearMaxAttempts:
		quiz.MaxAttempts = nil
	case req.MaxAttempts != nil:
		quiz.MaxAttempts = req.MaxAttempts
	}
	if req.StartTime != nil {
		quiz.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		quiz.EndTime = req.EndTime.UTC()
	}
	if req.IsActive != nil {
		quiz.IsActive = *req.IsActive
	}
}

func applyQuestionUpdate(q *models.Question, req *validator.QuestionUpdateRequest) {
	if req.Type != nil {
		q.Type = *req.Type
	}
	if req.Text != nil {
		q.Text = *req.Text
	}
	if req.Options != nil {
		q.Options = slices.Clone(req.Options)
	}
	if req.CorrectAnswer != nil {
		q.CorrectAnswer = *req.CorrectAnswer
	}
	if !q.Type.IsChoice() {
		q.Options = nil
	}
	q.Options, q.CorrectAnswer = normalizeChoices(q.Type, q.Options, q.CorrectAnswer)
	if req.Marks != nil {
		q.Marks = *req.Marks
	}
}

// normalizeChoices trims choice options and the correct answer so that a
// submitted option always compares equal to the stored one. Multi-choice
// answers are stored in their canonical encoding.
func normalizeChoices(qType models.QuestionType, options []string, correct string) ([]string, string) {
	switch qType {
	case models.SingleChoice:
		return trimAll(options), strings.TrimSpace(correct)
	case models.MultiChoice:
		return trimAll(options), grading.EncodeMulti(grading.SplitMulti(correct))
	default:
		return options, correct
	}
}

func trimAll(values []string) []string {
	for i, v := range values {
		values[i] = strings.TrimSpace(v)
	}
	return values
}

// sameQuestionSet reports whether ids names each question exactly once.
func sameQuestionSet(questions []models.Question, ids []uint) bool {
	if len(questions) != len(ids) {
		return false
	}
	want := make(map[uint]bool, len(questions))
	for _, q := range questions {
		want[q.ID] = true
	}
	for _, id := range ids {
		if !want[id] {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}
