package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"gorm.io/gorm"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
)

type quizService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewQuizService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) QuizService {
	return &quizService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

// ===== COURSES & ENROLLMENT =====

func (s *quizService) CreateCourse(ctx context.Context, req *CourseCreateRequest, identity *models.Identity) (*models.Course, error) {
	if err := s.requireManager(identity, 0, "course", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	course := &models.Course{Code: req.Code, Title: req.Title, OwnerID: identity.UserID}
	if err := s.repo.Course().Create(ctx, nil, course); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ValidationErrors{{Field: "code", Message: "is already used", Value: req.Code, Rule: "unique"}}
		}
		return nil, fmt.Errorf("failed to create course: %w", err)
	}

	s.logger.Info("Course created", "course_id", course.ID, "code", course.Code, "owner_id", course.OwnerID)
	return course, nil
}

func (s *quizService) Enroll(ctx context.Context, courseID uint, req *validator.EnrollRequest, identity *models.Identity) (*EnrollResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.authorizeCourse(ctx, courseID, identity, "enroll"); err != nil {
		return nil, err
	}

	added, err := s.repo.Enrollment().Enroll(ctx, nil, courseID, req.StudentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to enroll students: %w", err)
	}
	s.repo.Quiz().InvalidateCatalog(ctx, req.StudentIDs...)

	s.logger.Info("Students enrolled",
		"course_id", courseID,
		"requested", len(req.StudentIDs),
		"added", added)

	return &EnrollResponse{CourseID: courseID, Requested: len(req.StudentIDs), Added: added}, nil
}

func (s *quizService) Unenroll(ctx context.Context, courseID uint, studentID string, identity *models.Identity) error {
	if _, err := s.authorizeCourse(ctx, courseID, identity, "unenroll"); err != nil {
		return err
	}

	if err := s.repo.Enrollment().Unenroll(ctx, nil, courseID, studentID); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrEnrollmentNotFound
		}
		return fmt.Errorf("failed to unenroll student: %w", err)
	}
	s.repo.Quiz().InvalidateCatalog(ctx, studentID)

	s.logger.Info("Student unenrolled", "course_id", courseID, "student_id", studentID)
	return nil
}

// ===== QUIZ OPERATIONS =====

func (s *quizService) Create(ctx context.Context, req *validator.QuizCreateRequest, identity *models.Identity) (*QuizDetail, error) {
	s.logger.Info("Creating quiz", "course_id", req.CourseID, "user_id", identity.UserID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.authorizeCourse(ctx, req.CourseID, identity, "create quiz"); err != nil {
		return nil, err
	}

	questions, err := s.buildQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	quiz := &models.Quiz{
		CourseID:    req.CourseID,
		Title:       req.Title,
		Description: req.Description,
		TimeLimit:   req.TimeLimit,
		MaxAttempts: req.MaxAttempts,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		IsActive:    req.IsActive,
		CreatedBy:   identity.UserID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Quiz().Create(ctx, tx, quiz); err != nil {
			return err
		}
		for i := range questions {
			questions[i].QuizID = quiz.ID
			if err := s.repo.Question().Create(ctx, tx, &questions[i]); err != nil {
				return err
			}
		}
		total, err := s.repo.Quiz().RecomputeTotalMarks(ctx, tx, quiz.ID)
		if err != nil {
			return err
		}
		quiz.TotalMarks = total
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}
	s.repo.Quiz().InvalidateCache(ctx, quiz.ID)

	quiz.Questions = questions
	s.logger.Info("Quiz created successfully",
		"quiz_id", quiz.ID,
		"questions", len(questions),
		"total_marks", quiz.TotalMarks)

	return &QuizDetail{Quiz: quiz}, nil
}

func (s *quizService) Get(ctx context.Context, quizID uint, identity *models.Identity) (*QuizDetail, error) {
	quiz, err := s.authorizeQuiz(ctx, quizID, identity, "view")
	if err != nil {
		return nil, err
	}

	_, total, err := s.repo.Attempt().List(ctx, nil, repositories.AttemptFilters{QuizID: &quizID, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	return &QuizDetail{Quiz: quiz, AttemptCount: total}, nil
}

func (s *quizService) Update(ctx context.Context, quizID uint, req *validator.QuizUpdateRequest, identity *models.Identity) (*QuizDetail, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	quiz, err := s.authorizeQuiz(ctx, quizID, identity, "update")
	if err != nil {
		return nil, err
	}

	applyQuizUpdate(quiz, req)
	if verrs := s.validator.Business().ValidateSchedule(quiz.StartTime, quiz.EndTime); len(verrs) > 0 {
		return nil, verrs
	}

	questions := quiz.Questions
	if err := s.repo.Quiz().Update(ctx, nil, quiz); err != nil {
		return nil, fmt.Errorf("failed to update quiz: %w", err)
	}
	s.repo.Quiz().InvalidateCache(ctx, quizID)
	quiz.Questions = questions

	s.logger.Info("Quiz updated", "quiz_id", quizID, "user_id", identity.UserID)
	return &QuizDetail{Quiz: quiz}, nil
}

// Delete soft-deletes the quiz. Quizzes with attempts still running cannot be deleted.
func (s *quizService) Delete(ctx context.Context, quizID uint, identity *models.Identity) error {
	if _, err := s.authorizeQuiz(ctx, quizID, identity, "delete"); err != nil {
		return err
	}

	status := models.AttemptInProgress
	_, running, err := s.repo.Attempt().List(ctx, nil, repositories.AttemptFilters{QuizID: &quizID, Status: &status, Limit: 1})
	if err != nil {
		return fmt.Errorf("failed to count running attempts: %w", err)
	}
	if running > 0 {
		return fmt.Errorf("%w: %d in progress", ErrQuizHasAttempts, running)
	}

	if err := s.repo.Quiz().Delete(ctx, nil, quizID); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("failed to delete quiz: %w", err)
	}
	s.repo.Quiz().InvalidateCache(ctx, quizID)

	s.logger.Info("Quiz deleted", "quiz_id", quizID, "user_id", identity.UserID)
	return nil
}

// List returns quizzes; lecturers only see their own.
func (s *quizService) List(ctx context.Context, filters repositories.QuizFilters, identity *models.Identity) (*QuizListResponse, error) {
	if err := s.requireManager(identity, 0, "quiz", "list"); err != nil {
		return nil, err
	}
	if !identity.IsAdmin() {
		filters.CreatedBy = &identity.UserID
	}

	quizzes, total, err := s.repo.Quiz().List(ctx, nil, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	return &QuizListResponse{Quizzes: quizzes, Total: total, Limit: filters.Limit, Offset: filters.Offset}, nil
}

// ===== QUESTION OPERATIONS =====

func (s *quizService) AddQuestion(ctx context.Context, quizID uint, req *validator.QuestionCreateRequest, identity *models.Identity) (*models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.authorizeQuiz(ctx, quizID, identity, "add question"); err != nil {
		return nil, err
	}

	question, err := s.buildQuestion(*req)
	if err != nil {
		return nil, err
	}
	question.QuizID = quizID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if question.OrderNumber == 0 {
			next, err := s.repo.Question().NextOrderNumber(ctx, tx, quizID)
			if err != nil {
				return err
			}
			question.OrderNumber = next
		}
		if err := s.repo.Question().Create(ctx, tx, question); err != nil {
			return err
		}
		_, err := s.repo.Quiz().RecomputeTotalMarks(ctx, tx, quizID)
		return err
	})
	if err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ValidationErrors{{
				Field:   "order_number",
				Message: "is already used in this quiz",
				Value:   question.OrderNumber,
				Rule:    validator.RuleOrderNumber,
			}}
		}
		return nil, fmt.Errorf("failed to add question: %w", err)
	}
	s.repo.Quiz().InvalidateCache(ctx, quizID)

	s.logger.Info("Question added", "quiz_id", quizID, "question_id", question.ID, "order_number", question.OrderNumber)
	return question, nil
}

func (s *quizService) UpdateQuestion(ctx context.Context, questionID uint, req *validator.QuestionUpdateRequest, identity *models.Identity) (*models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	question, err := s.repo.Question().GetByID(ctx, nil, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if _, err := s.authorizeQuiz(ctx, question.QuizID, identity, "update question"); err != nil {
		return nil, err
	}

	applyQuestionUpdate(question, req)
	if verrs := s.validator.Business().ValidateQuestionContent(question.Type, question.Options, question.CorrectAnswer); len(verrs) > 0 {
		return nil, verrs
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Question().Update(ctx, tx, question); err != nil {
			return err
		}
		_, err := s.repo.Quiz().RecomputeTotalMarks(ctx, tx, question.QuizID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}
	s.repo.Quiz().InvalidateCache(ctx, question.QuizID)

	s.logger.Info("Question updated", "question_id", questionID, "quiz_id", question.QuizID)
	return question, nil
}

func (s *quizService) DeleteQuestion(ctx context.Context, questionID uint, identity *models.Identity) error {
	question, err := s.repo.Question().GetByID(ctx, nil, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to get question: %w", err)
	}
	if _, err := s.authorizeQuiz(ctx, question.QuizID, identity, "delete question"); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Question().Delete(ctx, tx, questionID); err != nil {
			return err
		}
		_, err := s.repo.Quiz().RecomputeTotalMarks(ctx, tx, question.QuizID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	s.repo.Quiz().InvalidateCache(ctx, question.QuizID)

	s.logger.Info("Question deleted", "question_id", questionID, "quiz_id", question.QuizID)
	return nil
}

// ReorderQuestions assigns order numbers 1..n in the requested order. The
// request must list every question of the quiz exactly once.
func (s *quizService) ReorderQuestions(ctx context.Context, quizID uint, req *validator.ReorderQuestionsRequest, identity *models.Identity) ([]models.Question, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.authorizeQuiz(ctx, quizID, identity, "reorder questions"); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.Question().GetByQuiz(ctx, tx, quizID)
		if err != nil {
			return err
		}
		if !sameQuestionSet(current, req.QuestionIDs) {
			return ValidationErrors{{
				Field:   "question_ids",
				Message: "must list every question of the quiz exactly once",
				Value:   req.QuestionIDs,
				Rule:    validator.RuleOrderNumber,
			}}
		}
		return s.repo.Question().Reorder(ctx, tx, quizID, req.QuestionIDs)
	})
	if err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			return nil, verrs
		}
		return nil, fmt.Errorf("failed to reorder questions: %w", err)
	}
	s.repo.Quiz().InvalidateCache(ctx, quizID)

	s.logger.Info("Questions reordered", "quiz_id", quizID, "count", len(req.QuestionIDs))
	return s.repo.Question().GetByQuiz(ctx, nil, quizID)
}

// ===== HELPERS =====

func (s *quizService) requireManager(identity *models.Identity, resourceID uint, resource, action string) error {
	if identity == nil {
		return ErrUnauthorized
	}
	if !identity.CanManageQuizzes() {
		return NewPermissionError(identity.UserID, resourceID, resource, action, "only lecturers and admins manage quizzes")
	}
	return nil
}

func (s *quizService) authorizeCourse(ctx context.Context, courseID uint, identity *models.Identity, action string) (*models.Course, error) {
	if err := s.requireManager(identity, courseID, "course", action); err != nil {
		return nil, err
	}

	course, err := s.repo.Course().GetByID(ctx, nil, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	if !identity.IsAdmin() && course.OwnerID != identity.UserID {
		return nil, NewPermissionError(identity.UserID, courseID, "course", action, "not the course owner")
	}
	return course, nil
}

// authorizeQuiz loads the quiz for its creator or an admin
func (s *quizService) authorizeQuiz(ctx context.Context, quizID uint, identity *models.Identity, action string) (*models.Quiz, error) {
	if err := s.requireManager(identity, quizID, "quiz", action); err != nil {
		return nil, err
	}

	quiz, err := s.repo.Quiz().GetByIDWithQuestions(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if !identity.IsAdmin() && quiz.CreatedBy != identity.UserID {
		return nil, NewPermissionError(identity.UserID, quizID, "quiz", action, "not the quiz creator")
	}
	return quiz, nil
}

// buildQuestions validates a full question set and fills missing order numbers
func (s *quizService) buildQuestions(reqs []validator.QuestionCreateRequest) ([]models.Question, error) {
	questions := make([]models.Question, 0, len(reqs))
	var verrs ValidationErrors

	for i, req := range reqs {
		q, err := s.buildQuestion(req)
		if err != nil {
			var qerrs ValidationErrors
			if errors.As(err, &qerrs) {
				for _, e := range qerrs {
					e.Field = fmt.Sprintf("questions[%d].%s", i, e.Field)
					verrs = append(verrs, e)
				}
				continue
			}
			return nil, err
		}
		if q.OrderNumber == 0 {
			q.OrderNumber = i + 1
		}
		questions = append(questions, *q)
	}

	verrs = append(verrs, s.validator.Business().ValidateOrderNumbers(questions)...)
	if len(verrs) > 0 {
		return nil, verrs
	}
	return questions, nil
}

func (s *quizService) buildQuestion(req validator.QuestionCreateRequest) (*models.Question, error) {
	options, correct := normalizeChoices(req.Type, slices.Clone(req.Options), req.CorrectAnswer)
	if verrs := s.validator.Business().ValidateQuestionContent(req.Type, options, correct); len(verrs) > 0 {
		return nil, verrs
	}

	q := &models.Question{
		Type:          req.Type,
		Text:          req.Text,
		Options:       options,
		CorrectAnswer: correct,
		Marks:         req.Marks,
	}
	if req.OrderNumber != nil {
		q.OrderNumber = *req.OrderNumber
	}
	return q, nil
}
