package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/events"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/grading"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
)

func (s *attemptService) now() time.Time {
	return s.clock.Now().UTC()
}

// loadQuiz returns the quiz with its ordered questions
func (s *attemptService) loadQuiz(ctx context.Context, quizID uint) (*models.Quiz, error) {
	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return quiz, nil
}

// loadOwnedAttempt loads an attempt and checks the caller may act on it.
// Writes are reserved to the owning learner; reads are also open to quiz managers.
func (s *attemptService) loadOwnedAttempt(ctx context.Context, attemptID uint, identity *models.Identity, action string, write bool) (*models.QuizAttempt, error) {
	if identity == nil {
		return nil, ErrUnauthorized
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID == identity.UserID {
		return attempt, nil
	}
	if !write && identity.CanManageQuizzes() {
		return attempt, nil
	}
	return nil, NewPermissionError(identity.UserID, attemptID, "attempt", action, "not owned by student")
}

// checkWritable rejects answer writes to finished or expired attempts
func (s *attemptService) checkWritable(attempt *models.QuizAttempt) error {
	if attempt.Status != models.AttemptInProgress {
		return ErrAttemptNotActive
	}
	if s.pastGrace(attempt, s.now()) {
		return ErrAttemptTimeExpired
	}
	return nil
}

func (s *attemptService) pastGrace(attempt *models.QuizAttempt, now time.Time) bool {
	return attempt.DeadlineAt != nil && now.After(attempt.DeadlineAt.Add(s.config.Grace))
}

// persist stores answers with the status-conditional write
func (s *attemptService) persist(ctx context.Context, attempt *models.QuizAttempt, answers models.AnswerMap) (*AutosaveResponse, error) {
	version, err := s.repo.Attempt().SaveAnswers(ctx, nil, attempt.ID, answers)
	if err != nil {
		if errors.Is(err, repositories.ErrStaleWrite) {
			return nil, ErrAttemptNotActive
		}
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to save answers: %w", err)
	}

	s.logger.Debug("Attempt answers saved",
		"attempt_id", attempt.ID,
		"version", version,
		"answered", answers.AnsweredCount())

	attempt.Version = version
	s.publish(ctx, events.TypeAttemptAutosaved, attempt)

	return &AutosaveResponse{
		AttemptID: attempt.ID,
		Version:   version,
		Answered:  answers.AnsweredCount(),
		SavedAt:   s.now(),
	}, nil
}

// finalize grades answers and performs the single transition into Completed.
// It returns repositories.ErrStaleWrite when the attempt already left in_progress.
func (s *attemptService) finalize(ctx context.Context, attempt *models.QuizAttempt, quiz *models.Quiz, answers models.AnswerMap, reason string, now time.Time) (*SubmitResponse, error) {
	result := s.grader.Grade(quiz, answers)

	end := now
	if attempt.DeadlineAt != nil && end.After(*attempt.DeadlineAt) {
		end = *attempt.DeadlineAt
	}
	timeTaken := int(math.Round(end.Sub(attempt.StartedAt).Seconds()))
	if timeTaken < 0 {
		timeTaken = 0
	}

	fields := repositories.CompletionFields{
		CompletedAt: now,
		Score:       result.Score,
		Percentage:  result.Percentage,
		TimeTaken:   timeTaken,
		EndReason:   reason,
		Answers:     answers,
	}
	if err := s.repo.Attempt().Complete(ctx, nil, attempt.ID, fields); err != nil {
		if errors.Is(err, repositories.ErrStaleWrite) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to complete attempt: %w", err)
	}

	attempt.Status = models.AttemptCompleted
	attempt.CompletedAt = &now
	attempt.TimeTaken = &timeTaken
	attempt.Score = &result.Score
	attempt.Percentage = &result.Percentage
	attempt.EndReason = &reason
	attempt.Answers = datatypes.NewJSONType(answers)
	attempt.Version++

	s.logger.Info("Quiz attempt completed",
		"attempt_id", attempt.ID,
		"quiz_id", attempt.QuizID,
		"student_id", attempt.StudentID,
		"score", result.Score,
		"percentage", result.Percentage,
		"end_reason", reason)
	s.publish(ctx, events.TypeAttemptCompleted, attempt)

	return &SubmitResponse{
		Attempt:    toAttemptResponse(attempt, now),
		Score:      result.Score,
		TotalMarks: result.TotalMarks,
		Percentage: result.Percentage,
		Breakdown:  result.Breakdown,
	}, nil
}

// storedResult reports an already completed attempt without writing anything
func (s *attemptService) storedResult(attempt *models.QuizAttempt, quiz *models.Quiz, now time.Time) *SubmitResponse {
	result := s.grader.Grade(quiz, attempt.AnswerMap())
	resp := &SubmitResponse{
		Attempt:          toAttemptResponse(attempt, now),
		TotalMarks:       quiz.TotalMarks,
		Breakdown:        result.Breakdown,
		AlreadyCompleted: true,
	}
	if attempt.Score != nil {
		resp.Score = *attempt.Score
	}
	if attempt.Percentage != nil {
		resp.Percentage = *attempt.Percentage
	}
	return resp
}

// publish sends a lifecycle event. Delivery failures never fail the operation.
func (s *attemptService) publish(ctx context.Context, eventType string, attempt *models.QuizAttempt) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, events.NewAttemptEvent(eventType, attempt)); err != nil {
		s.logger.Warn("Failed to publish attempt event",
			"type", eventType,
			"attempt_id", attempt.ID,
			"error", err)
	}
}

func (s *attemptService) mapStartError(err error) error {
	switch {
	case errors.Is(err, ErrQuizNotEnrolled),
		errors.Is(err, ErrQuizInactive),
		errors.Is(err, ErrQuizWindowClosed),
		errors.Is(err, ErrAttemptLimitExceeded):
		return err
	case repositories.IsNotFoundError(err):
		return ErrQuizNotFound
	default:
		return fmt.Errorf("failed to start attempt transaction: %w", err)
	}
}

// ===== ANSWER NORMALIZATION =====

// normalizeAnswers checks every answer against its question and rewrites it in
// the stored encoding. Empty answers are dropped.
func normalizeAnswers(questions []models.Question, answers models.AnswerMap) (models.AnswerMap, error) {
	byKey := make(map[string]*models.Question, len(questions))
	for i := range questions {
		byKey[models.AnswerKey(questions[i].ID)] = &questions[i]
	}

	out := make(models.AnswerMap, len(answers))
	var verrs validator.ValidationErrors

	for key, value := range answers {
		q, ok := byKey[key]
		if !ok {
			verrs = append(verrs, validator.ValidationError{
				Field:   "answers." + key,
				Message: "question does not belong to this quiz",
				Value:   key,
				Rule:    "question",
			})
			continue
		}
		if strings.TrimSpace(value) == "" {
			continue
		}

		switch q.Type {
		case models.SingleChoice:
			option, ok := matchOption(q.Options, value)
			if !ok {
				verrs = append(verrs, invalidOption(key, value))
				continue
			}
			out[key] = option
		case models.MultiChoice:
			parts := grading.SplitMulti(value)
			valid := true
			for _, p := range parts {
				if _, ok := matchOption(q.Options, p); !ok {
					verrs = append(verrs, invalidOption(key, p))
					valid = false
				}
			}
			if valid {
				out[key] = strings.Join(parts, grading.MultiDelimiter)
			}
		default:
			out[key] = value
		}
	}

	if len(verrs) > 0 {
		return nil, verrs
	}
	return out, nil
}

// matchOption returns the stored option equal to value once both are trimmed.
func matchOption(options []string, value string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, o := range options {
		if strings.TrimSpace(o) == value {
			return o, true
		}
	}
	return "", false
}

func invalidOption(key, value string) validator.ValidationError {
	return validator.ValidationError{
		Field:   "answers." + key,
		Message: "is not one of the question's options",
		Value:   value,
		Rule:    "option",
	}
}

// ===== CONVERSIONS =====

func toAttemptResponse(a *models.QuizAttempt, now time.Time) *AttemptResponse {
	resp := &AttemptResponse{
		ID:            a.ID,
		QuizID:        a.QuizID,
		StudentID:     a.StudentID,
		AttemptNumber: a.AttemptNumber,
		Status:        a.Status,
		Answers:       a.AnswerMap(),
		Version:       a.Version,
		StartedAt:     a.StartedAt,
		DeadlineAt:    a.DeadlineAt,
		CompletedAt:   a.CompletedAt,
		TimeTaken:     a.TimeTaken,
		Score:         a.Score,
		Percentage:    a.Percentage,
		EndReason:     a.EndReason,
	}
	if a.Status == models.AttemptInProgress {
		resp.RemainingSeconds = remainingSeconds(a, now)
	}
	return resp
}

func remainingSeconds(a *models.QuizAttempt, now time.Time) *int {
	remaining, ok := a.TimeRemaining(now)
	if !ok {
		return nil
	}
	secs := int(math.Ceil(remaining.Seconds()))
	return &secs
}

func toQuizSummary(q *models.Quiz, now time.Time) QuizSummary {
	return QuizSummary{
		ID:          q.ID,
		CourseID:    q.CourseID,
		Title:       q.Title,
		Description: q.Description,
		TimeLimit:   q.TimeLimit,
		MaxAttempts: q.MaxAttempts,
		TotalMarks:  q.TotalMarks,
		StartTime:   q.StartTime,
		EndTime:     q.EndTime,
		IsOpen:      q.IsActive && q.WindowOpen(now),
	}
}

func questionViews(questions []models.Question) []models.QuestionView {
	views := make([]models.QuestionView, 0, len(questions))
	for i := range questions {
		views = append(views, questions[i].View())
	}
	return views
}
