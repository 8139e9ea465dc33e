// Package grading scores a set of submitted answers against a quiz's questions.
// Everything here is pure: no I/O, no clock, no logging.
package grading

import (
	"math"
	"slices"
	"strings"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
)

// MultiDelimiter separates options in an encoded multi-choice answer.
const MultiDelimiter = "|"

// QuestionResult is the outcome for a single question.
type QuestionResult struct {
	QuestionID uint    `json:"question_id"`
	Answered   bool    `json:"answered"`
	Correct    bool    `json:"correct"`
	Awarded    float64 `json:"awarded"`
	Marks      float64 `json:"marks"`
}

// Result is the outcome of grading one attempt.
type Result struct {
	Score      float64          `json:"score"`
	TotalMarks float64          `json:"total_marks"`
	Percentage float64          `json:"percentage"`
	Breakdown  []QuestionResult `json:"breakdown"`
}

// Evaluate grades answers against questions. totalMarks is the quiz's stored
// total; the percentage is 0 when it is not positive.
func Evaluate(questions []models.Question, answers models.AnswerMap, totalMarks float64) Result {
	res := Result{
		TotalMarks: totalMarks,
		Breakdown:  make([]QuestionResult, 0, len(questions)),
	}

	for i := range questions {
		q := &questions[i]
		submitted, answered := answers[models.AnswerKey(q.ID)]
		answered = answered && submitted != ""

		qr := QuestionResult{QuestionID: q.ID, Answered: answered, Marks: q.Marks}
		if answered && q.CorrectAnswer != "" && IsCorrect(q.Type, submitted, q.CorrectAnswer) {
			qr.Correct = true
			qr.Awarded = q.Marks
			res.Score += q.Marks
		}
		res.Breakdown = append(res.Breakdown, qr)
	}

	res.Percentage = Percentage(res.Score, totalMarks)
	return res
}

// Percentage returns score/total*100, or 0 when total is not positive.
func Percentage(score, total float64) float64 {
	if total <= 0 || math.IsNaN(total) {
		return 0
	}
	return score / total * 100
}

// IsCorrect applies the comparison policy for a question type.
func IsCorrect(qType models.QuestionType, submitted, correct string) bool {
	switch qType {
	case models.SingleChoice:
		return submitted == correct
	case models.MultiChoice:
		return slices.Equal(SplitMulti(submitted), SplitMulti(correct))
	case models.FreeText:
		return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(correct))
	default:
		return false
	}
}

// SplitMulti decodes a multi-choice answer into its sorted option list.
// Duplicates are kept so that comparison stays cardinality-sensitive.
func SplitMulti(encoded string) []string {
	if encoded == "" {
		return nil
	}
	parts := strings.Split(encoded, MultiDelimiter)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// EncodeMulti encodes selected options as the sorted set joined by MultiDelimiter.
func EncodeMulti(options []string) string {
	sorted := make([]string, 0, len(options))
	for _, o := range options {
		if o = strings.TrimSpace(o); o != "" {
			sorted = append(sorted, o)
		}
	}
	slices.Sort(sorted)
	return strings.Join(sorted, MultiDelimiter)
}

// TotalMarks sums question marks.
func TotalMarks(questions []models.Question) float64 {
	var total float64
	for i := range questions {
		total += questions[i].Marks
	}
	return total
}
