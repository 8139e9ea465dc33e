package validator

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/grading"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
)

// Rule codes raised by the business validator.
const (
	RuleQuizInactive    = "quiz_inactive"
	RuleWindowClosed    = "window_closed"
	RuleNotEnrolled     = "not_enrolled"
	RuleAttemptLimit    = "attempt_limit"
	RuleOptions         = "options"
	RuleCorrectAnswer   = "correct_answer"
	RuleOrderNumber     = "order_number"
	RuleScheduleInvalid = "schedule"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct{}

// ValidateAttemptStart checks that a learner may start a new attempt at now.
// completedCount counts the learner's completed attempts at this quiz.
func (bv *BusinessValidator) ValidateAttemptStart(quiz *models.Quiz, now time.Time, enrolled bool, completedCount int64) ValidationErrors {
	var errors ValidationErrors

	if !quiz.IsActive {
		errors = append(errors, ValidationError{
			Field:   "quiz",
			Message: "quiz is not active",
			Value:   quiz.ID,
			Rule:    RuleQuizInactive,
		})
	}

	if !quiz.WindowOpen(now) {
		errors = append(errors, ValidationError{
			Field:   "activation_window",
			Message: fmt.Sprintf("quiz is open from %s to %s", quiz.StartTime.Format(time.RFC3339), quiz.EndTime.Format(time.RFC3339)),
			Value:   now,
			Rule:    RuleWindowClosed,
		})
	}

	if !enrolled {
		errors = append(errors, ValidationError{
			Field:   "course_id",
			Message: "learner is not enrolled in the quiz's course",
			Value:   quiz.CourseID,
			Rule:    RuleNotEnrolled,
		})
	}

	if quiz.MaxAttempts != nil && completedCount >= int64(*quiz.MaxAttempts) {
		errors = append(errors, ValidationError{
			Field:   "attempts",
			Message: "maximum attempts reached",
			Value:   completedCount,
			Rule:    RuleAttemptLimit,
		})
	}

	return errors
}

// ValidateQuestionContent checks the options and correct answer of one question.
// correct must already be in its stored encoding.
func (bv *BusinessValidator) ValidateQuestionContent(qType models.QuestionType, options []string, correct string) ValidationErrors {
	var errors ValidationErrors

	if !qType.IsChoice() {
		if len(options) > 0 {
			errors = append(errors, ValidationError{
				Field:   "options",
				Message: "free text questions take no options",
				Rule:    RuleOptions,
			})
		}
		if strings.TrimSpace(correct) == "" {
			errors = append(errors, ValidationError{
				Field:   "correct_answer",
				Message: "is required",
				Rule:    RuleCorrectAnswer,
			})
		}
		return errors
	}

	if len(options) < 2 {
		errors = append(errors, ValidationError{
			Field:   "options",
			Message: "choice questions need at least 2 options",
			Value:   len(options),
			Rule:    RuleOptions,
		})
	}

	seen := make(map[string]bool, len(options))
	for i, opt := range options {
		if strings.Contains(opt, "|") {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("options[%d]", i),
				Message: "must not contain '|'",
				Value:   opt,
				Rule:    RuleOptions,
			})
		}
		if seen[opt] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("options[%d]", i),
				Message: "duplicate option",
				Value:   opt,
				Rule:    RuleOptions,
			})
		}
		seen[opt] = true
	}

	answers := []string{correct}
	if qType == models.MultiChoice {
		answers = grading.SplitMulti(correct)
	}
	if len(answers) == 0 || (len(answers) == 1 && answers[0] == "") {
		errors = append(errors, ValidationError{
			Field:   "correct_answer",
			Message: "is required",
			Rule:    RuleCorrectAnswer,
		})
		return errors
	}

	for _, a := range answers {
		if !slices.Contains(options, a) {
			errors = append(errors, ValidationError{
				Field:   "correct_answer",
				Message: "must be one of the options",
				Value:   a,
				Rule:    RuleCorrectAnswer,
			})
		}
	}

	return errors
}

// ValidateOrderNumbers checks that order numbers are positive and unique.
func (bv *BusinessValidator) ValidateOrderNumbers(questions []models.Question) ValidationErrors {
	var errors ValidationErrors
	seen := make(map[int]uint, len(questions))
	for _, q := range questions {
		if q.OrderNumber < 1 {
			errors = append(errors, ValidationError{
				Field:   "order_number",
				Message: "must be at least 1",
				Value:   q.OrderNumber,
				Rule:    RuleOrderNumber,
			})
			continue
		}
		if other, dup := seen[q.OrderNumber]; dup {
			errors = append(errors, ValidationError{
				Field:   "order_number",
				Message: fmt.Sprintf("already used by question %d", other),
				Value:   q.OrderNumber,
				Rule:    RuleOrderNumber,
			})
		}
		seen[q.OrderNumber] = q.ID
	}
	return errors
}

// ValidateSchedule checks a quiz activation window.
func (bv *BusinessValidator) ValidateSchedule(start, end time.Time) ValidationErrors {
	if end.After(start) {
		return nil
	}
	return ValidationErrors{{
		Field:   "end_time",
		Message: "must be after start_time",
		Value:   end,
		Rule:    RuleScheduleInvalid,
	}}
}
