package services

import (
	"errors"
	"fmt"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
)

// ===== SENTINEL ERRORS =====

var (
	// Quiz errors
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizInactive     = errors.New("quiz is not active")
	ErrQuizWindowClosed = errors.New("quiz is outside its activation window")
	ErrQuizNotEnrolled  = errors.New("learner is not enrolled in the quiz's course")
	ErrQuizHasAttempts  = errors.New("quiz already has attempts")

	// Question errors
	ErrQuestionNotFound = errors.New("question not found")

	// Course errors
	ErrCourseNotFound     = errors.New("course not found")
	ErrEnrollmentNotFound = errors.New("learner is not enrolled in the course")

	// Attempt errors
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptNotActive     = errors.New("attempt is not in progress")
	ErrAttemptLimitExceeded = errors.New("maximum attempts exceeded")
	ErrAttemptTimeExpired   = errors.New("attempt time has expired")

	// Generic errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("resource conflict")
)

// ValidationErrors is re-exported so handlers only need this package.
type ValidationErrors = validator.ValidationErrors

// ===== TYPED ERRORS =====

// PermissionError reports that the caller may not perform an action.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

// BusinessRuleError reports a violated domain rule that is not a simple field problem.
type BusinessRuleError struct {
	Rule    string
	Message string
	Context map[string]interface{}
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message, Context: context}
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Message)
}

// startError turns failed start preconditions into the most specific sentinel,
// keeping the full list reachable through errors.As.
func startError(verrs validator.ValidationErrors) error {
	switch {
	case verrs.HasRule(validator.RuleNotEnrolled):
		return fmt.Errorf("%w: %w", ErrQuizNotEnrolled, verrs)
	case verrs.HasRule(validator.RuleQuizInactive):
		return fmt.Errorf("%w: %w", ErrQuizInactive, verrs)
	case verrs.HasRule(validator.RuleWindowClosed):
		return fmt.Errorf("%w: %w", ErrQuizWindowClosed, verrs)
	case verrs.HasRule(validator.RuleAttemptLimit):
		return fmt.Errorf("%w: %w", ErrAttemptLimitExceeded, verrs)
	default:
		return verrs
	}
}
