package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/grading"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/testutil"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
)

func quizRequest(courseID uint) *validator.QuizCreateRequest {
	now := time.Now().UTC()
	return &validator.QuizCreateRequest{
		CourseID:    courseID,
		Title:       "Probability basics",
		TimeLimit:   testutil.IntPtr(20),
		MaxAttempts: testutil.IntPtr(3),
		StartTime:   now.Add(-time.Minute),
		EndTime:     now.Add(time.Hour),
		IsActive:    true,
		Questions: []validator.QuestionCreateRequest{
			{Type: models.SingleChoice, Text: "P(heads)?", Options: []string{"0.25", "0.5"}, CorrectAnswer: "0.5", Marks: 1},
			{Type: models.MultiChoice, Text: "Valid probabilities", Options: []string{"0", "0.5", "2"}, CorrectAnswer: "0.5|0", Marks: 2},
			{Type: models.FreeText, Text: "Name of P(A|B)", CorrectAnswer: "conditional", Marks: 1.5},
		},
	}
}

func TestQuizCreate(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()

	detail, err := h.quizzes.Create(ctx, quizRequest(h.fx.Course.ID), h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, 4.5, detail.TotalMarks)
	require.Len(t, detail.Questions, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{detail.Questions[0].OrderNumber, detail.Questions[1].OrderNumber, detail.Questions[2].OrderNumber})
	assert.Equal(t, "0|0.5", detail.Questions[1].CorrectAnswer)

	got, err := h.quizzes.Get(ctx, detail.ID, h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, "Probability basics", got.Title)
	assert.EqualValues(t, 0, got.AttemptCount)
}

func TestQuizCreate_Validation(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()

	req := quizRequest(h.fx.Course.ID)
	req.Questions[0].CorrectAnswer = "0.75"
	_, err := h.quizzes.Create(ctx, req, h.lecturer())
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "questions[0].correct_answer", verrs[0].Field)

	req = quizRequest(h.fx.Course.ID)
	req.EndTime = req.StartTime.Add(-time.Minute)
	_, err = h.quizzes.Create(ctx, req, h.lecturer())
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "end_time", verrs[0].Field)
}

func TestQuizCreate_Permissions(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	var perr *PermissionError

	_, err := h.quizzes.Create(ctx, quizRequest(h.fx.Course.ID), h.student())
	assert.ErrorAs(t, err, &perr)

	otherLecturer := models.NewIdentity("lecturer-2", models.RoleLecturer)
	_, err = h.quizzes.Create(ctx, quizRequest(h.fx.Course.ID), otherLecturer)
	assert.ErrorAs(t, err, &perr)

	admin := models.NewIdentity("admin-1", models.RoleAdmin)
	_, err = h.quizzes.Create(ctx, quizRequest(h.fx.Course.ID), admin)
	assert.NoError(t, err)

	_, err = h.quizzes.Create(ctx, quizRequest(9999), h.lecturer())
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestQuizUpdate(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{TimeLimit: testutil.IntPtr(15)})
	ctx := context.Background()

	title := "Week 3 check (revised)"
	inactive := false
	detail, err := h.quizzes.Update(ctx, h.fx.Quiz.ID, &validator.QuizUpdateRequest{
		Title:          &title,
		ClearTimeLimit: true,
		IsActive:       &inactive,
	}, h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, title, detail.Title)
	assert.Nil(t, detail.TimeLimit)
	assert.False(t, detail.IsActive)
	assert.Len(t, detail.Questions, 3)

	quizzes, err := h.catalog.ListAvailable(ctx, h.student())
	require.NoError(t, err)
	assert.Empty(t, quizzes, "inactive quizzes leave the catalog")

	end := h.fx.Quiz.StartTime.Add(-time.Hour)
	_, err = h.quizzes.Update(ctx, h.fx.Quiz.ID, &validator.QuizUpdateRequest{EndTime: &end}, h.lecturer())
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.HasRule(validator.RuleScheduleInvalid))
}

func TestQuizDelete(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	resp := h.start(t)

	err := h.quizzes.Delete(ctx, h.fx.Quiz.ID, h.lecturer())
	assert.ErrorIs(t, err, ErrQuizHasAttempts)

	_, err = h.attempts.Submit(ctx, resp.Attempt.ID, nil, h.student())
	require.NoError(t, err)

	require.NoError(t, h.quizzes.Delete(ctx, h.fx.Quiz.ID, h.lecturer()))
	_, err = h.quizzes.Get(ctx, h.fx.Quiz.ID, h.lecturer())
	assert.ErrorIs(t, err, ErrQuizNotFound)
}

func TestQuizList_LecturersSeeTheirOwn(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()

	mine, err := h.quizzes.List(ctx, repositories.QuizFilters{}, h.lecturer())
	require.NoError(t, err)
	assert.EqualValues(t, 1, mine.Total)

	other, err := h.quizzes.List(ctx, repositories.QuizFilters{}, models.NewIdentity("lecturer-2", models.RoleLecturer))
	require.NoError(t, err)
	assert.EqualValues(t, 0, other.Total)

	all, err := h.quizzes.List(ctx, repositories.QuizFilters{}, models.NewIdentity("admin-1", models.RoleAdmin))
	require.NoError(t, err)
	assert.EqualValues(t, 1, all.Total)
}

func TestQuestionLifecycle(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()

	added, err := h.quizzes.AddQuestion(ctx, h.fx.Quiz.ID, &validator.QuestionCreateRequest{
		Type: models.FreeText, Text: "Name the mode", CorrectAnswer: "most frequent", Marks: 2,
	}, h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, 4, added.OrderNumber)

	got, err := h.quizzes.Get(ctx, h.fx.Quiz.ID, h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, 8.0, got.TotalMarks)

	marks := 0.5
	updated, err := h.quizzes.UpdateQuestion(ctx, added.ID, &validator.QuestionUpdateRequest{Marks: &marks}, h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, 0.5, updated.Marks)

	got, err = h.quizzes.Get(ctx, h.fx.Quiz.ID, h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, 6.5, got.TotalMarks)

	require.NoError(t, h.quizzes.DeleteQuestion(ctx, added.ID, h.lecturer()))
	got, err = h.quizzes.Get(ctx, h.fx.Quiz.ID, h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, 6.0, got.TotalMarks)

	assert.ErrorIs(t, h.quizzes.DeleteQuestion(ctx, added.ID, h.lecturer()), ErrQuestionNotFound)
}

func TestAddQuestion_TrimsChoiceOptions(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()

	added, err := h.quizzes.AddQuestion(ctx, h.fx.Quiz.ID, &validator.QuestionCreateRequest{
		Type: models.SingleChoice, Text: "Capital of France", Options: []string{"Paris ", " Rome"}, CorrectAnswer: "Paris ", Marks: 1,
	}, h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris", "Rome"}, []string(added.Options))
	assert.Equal(t, "Paris", added.CorrectAnswer)

	resp := h.start(t)
	key := models.AnswerKey(added.ID)
	result, err := h.attempts.Submit(ctx, resp.Attempt.ID, models.AnswerMap{key: "Paris "}, h.student())
	require.NoError(t, err)
	assert.Equal(t, "Paris", result.Attempt.Answers[key])
	assert.Equal(t, 1.0, result.Score)
}

func TestNormalizeAnswers_KeepsStoredOption(t *testing.T) {
	questions := []models.Question{{
		ID: 7, Type: models.SingleChoice, Options: []string{"Paris ", "Rome"}, CorrectAnswer: "Paris ", Marks: 1,
	}}
	key := models.AnswerKey(7)

	out, err := normalizeAnswers(questions, models.AnswerMap{key: "Paris"})
	require.NoError(t, err)
	assert.Equal(t, "Paris ", out[key])
	assert.True(t, grading.IsCorrect(models.SingleChoice, out[key], questions[0].CorrectAnswer))
}

func TestAddQuestion_DuplicateOrderNumber(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})

	_, err := h.quizzes.AddQuestion(context.Background(), h.fx.Quiz.ID, &validator.QuestionCreateRequest{
		Type: models.FreeText, Text: "Duplicate slot", CorrectAnswer: "x", Marks: 1, OrderNumber: testutil.IntPtr(2),
	}, h.lecturer())

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.HasRule(validator.RuleOrderNumber))
}

func TestReorderQuestions(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	q := h.fx.Questions

	reordered, err := h.quizzes.ReorderQuestions(ctx, h.fx.Quiz.ID, &validator.ReorderQuestionsRequest{
		QuestionIDs: []uint{q[2].ID, q[0].ID, q[1].ID},
	}, h.lecturer())
	require.NoError(t, err)
	require.Len(t, reordered, 3)
	assert.Equal(t, q[2].ID, reordered[0].ID)
	assert.Equal(t, 1, reordered[0].OrderNumber)
	assert.Equal(t, q[1].ID, reordered[2].ID)

	_, err = h.quizzes.ReorderQuestions(ctx, h.fx.Quiz.ID, &validator.ReorderQuestionsRequest{
		QuestionIDs: []uint{q[0].ID, q[0].ID, q[1].ID},
	}, h.lecturer())
	var verrs ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestEnrollment(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()

	course, err := h.quizzes.CreateCourse(ctx, &CourseCreateRequest{Code: "STAT201", Title: "Inference"}, h.lecturer())
	require.NoError(t, err)

	_, err = h.quizzes.CreateCourse(ctx, &CourseCreateRequest{Code: "STAT201", Title: "Again"}, h.lecturer())
	var verrs ValidationErrors
	assert.ErrorAs(t, err, &verrs)

	resp, err := h.quizzes.Enroll(ctx, course.ID, &validator.EnrollRequest{StudentIDs: []string{"student-1", "student-2"}}, h.lecturer())
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Added)

	resp, err = h.quizzes.Enroll(ctx, course.ID, &validator.EnrollRequest{StudentIDs: []string{"student-2", "student-3"}}, h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Requested)
	assert.EqualValues(t, 1, resp.Added)

	require.NoError(t, h.quizzes.Unenroll(ctx, course.ID, "student-3", h.lecturer()))
	assert.ErrorIs(t, h.quizzes.Unenroll(ctx, course.ID, "student-3", h.lecturer()), ErrEnrollmentNotFound)
}

func TestRegradeQuiz(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	resp := h.start(t)

	answers := h.fullMarks()
	answers[h.answerKey(2)] = "mean"
	result, err := h.attempts.Submit(ctx, resp.Attempt.ID, answers, h.student())
	require.NoError(t, err)
	assert.Equal(t, 5.0, result.Score)

	correct := "Mean"
	_, err = h.quizzes.UpdateQuestion(ctx, h.fx.Questions[2].ID, &validator.QuestionUpdateRequest{CorrectAnswer: &correct}, h.lecturer())
	require.NoError(t, err)

	changed, err := h.grading.RegradeQuiz(ctx, h.fx.Quiz.ID, h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	got, err := h.attempts.Get(ctx, resp.Attempt.ID, h.student())
	require.NoError(t, err)
	assert.Equal(t, 6.0, *got.Score)

	changed, err = h.grading.RegradeQuiz(ctx, h.fx.Quiz.ID, h.lecturer())
	require.NoError(t, err)
	assert.Zero(t, changed)

	_, err = h.grading.RegradeQuiz(ctx, h.fx.Quiz.ID, h.student())
	var perr *PermissionError
	assert.ErrorAs(t, err, &perr)
}
