package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/events"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/testutil"
)

func TestStart_CreatesThenResumes(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})

	first := h.start(t)
	assert.False(t, first.Resumed)
	assert.Equal(t, 1, first.Attempt.AttemptNumber)
	assert.Equal(t, models.AttemptInProgress, first.Attempt.Status)
	assert.Nil(t, first.Attempt.DeadlineAt)
	assert.Nil(t, first.Attempt.RemainingSeconds)
	assert.Len(t, first.Questions, 3)

	second := h.start(t)
	assert.True(t, second.Resumed)
	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)

	assert.Equal(t, []string{events.TypeAttemptStarted}, h.recorder.Types())
}

func TestStart_TimedAttemptGetsDeadline(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{TimeLimit: testutil.IntPtr(10)})

	resp := h.start(t)
	require.NotNil(t, resp.Attempt.DeadlineAt)
	assert.WithinDuration(t, h.clock.Now().Add(10*time.Minute), *resp.Attempt.DeadlineAt, time.Second)
	require.NotNil(t, resp.Attempt.RemainingSeconds)
	assert.Equal(t, 600, *resp.Attempt.RemainingSeconds)
}

func TestStart_Preconditions(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name string
		opts testutil.QuizOptions
		want error
	}{
		{"not enrolled", testutil.QuizOptions{NotEnrolled: true}, ErrQuizNotEnrolled},
		{"inactive", testutil.QuizOptions{Inactive: true}, ErrQuizInactive},
		{"window closed", testutil.QuizOptions{StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Hour)}, ErrQuizWindowClosed},
		{"window not open yet", testutil.QuizOptions{StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour)}, ErrQuizWindowClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opts)

			_, err := h.attempts.Start(context.Background(), h.fx.Quiz.ID, h.student())
			require.ErrorIs(t, err, tt.want)

			var verrs ValidationErrors
			assert.ErrorAs(t, err, &verrs)
			assert.Empty(t, h.recorder.Events())
		})
	}
}

func TestStart_RejectsNonStudents(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})

	_, err := h.attempts.Start(context.Background(), h.fx.Quiz.ID, h.lecturer())
	var perr *PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "attempt", perr.Action)
}

func TestStart_UnknownQuiz(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})

	_, err := h.attempts.Start(context.Background(), 9999, h.student())
	assert.ErrorIs(t, err, ErrQuizNotFound)
}

func TestStart_AttemptLimit(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{MaxAttempts: testutil.IntPtr(1)})
	ctx := context.Background()

	resp := h.start(t)
	_, err := h.attempts.Submit(ctx, resp.Attempt.ID, h.fullMarks(), h.student())
	require.NoError(t, err)

	_, err = h.attempts.Start(ctx, h.fx.Quiz.ID, h.student())
	assert.ErrorIs(t, err, ErrAttemptLimitExceeded)
}

func TestStart_AbandonedAttemptsDoNotCount(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{MaxAttempts: testutil.IntPtr(1)})
	ctx := context.Background()

	first := h.start(t)
	abandoned, err := h.attempts.Abandon(ctx, first.Attempt.ID, h.student())
	require.NoError(t, err)
	assert.Equal(t, models.AttemptAbandoned, abandoned.Status)
	require.NotNil(t, abandoned.EndReason)
	assert.Equal(t, models.EndReasonAbandoned, *abandoned.EndReason)

	second := h.start(t)
	assert.False(t, second.Resumed)
	assert.Equal(t, 2, second.Attempt.AttemptNumber)
}

func TestStart_ConcurrentStartsShareOneAttempt(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})

	const n = 4
	ids := make([]uint, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := h.attempts.Start(context.Background(), h.fx.Quiz.ID, h.student())
			errs[i] = err
			if err == nil {
				ids[i] = resp.Attempt.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, []string{events.TypeAttemptStarted}, h.recorder.Types())
}

func TestSubmit_GradesOnce(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	resp := h.start(t)

	h.clock.Advance(90 * time.Second)
	result, err := h.attempts.Submit(ctx, resp.Attempt.ID, h.fullMarks(), h.student())
	require.NoError(t, err)

	assert.False(t, result.AlreadyCompleted)
	assert.Equal(t, 6.0, result.Score)
	assert.Equal(t, 6.0, result.TotalMarks)
	assert.InDelta(t, 100.0, result.Percentage, 1e-9)
	assert.Len(t, result.Breakdown, 3)
	assert.Equal(t, models.AttemptCompleted, result.Attempt.Status)
	require.NotNil(t, result.Attempt.TimeTaken)
	assert.Equal(t, 90, *result.Attempt.TimeTaken)
	require.NotNil(t, result.Attempt.EndReason)
	assert.Equal(t, models.EndReasonSubmitted, *result.Attempt.EndReason)
	assert.Equal(t, "2|3", result.Attempt.Answers[h.answerKey(1)])

	again, err := h.attempts.Submit(ctx, resp.Attempt.ID, models.AnswerMap{h.answerKey(0): "2"}, h.student())
	require.NoError(t, err)
	assert.True(t, again.AlreadyCompleted)
	assert.Equal(t, 6.0, again.Score)
	assert.Equal(t, result.Attempt.CompletedAt.Unix(), again.Attempt.CompletedAt.Unix())

	assert.Equal(t, []string{events.TypeAttemptStarted, events.TypeAttemptCompleted}, h.recorder.Types())
}

func TestSubmit_WithoutAnswersGradesAutosavedSet(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	resp := h.start(t)

	saved, err := h.attempts.Autosave(ctx, resp.Attempt.ID, models.AnswerMap{h.answerKey(0): "3"}, h.student())
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)
	assert.Equal(t, 1, saved.Answered)

	result, err := h.attempts.Submit(ctx, resp.Attempt.ID, nil, h.student())
	require.NoError(t, err)
	assert.Equal(t, 2.0, result.Score)
}

func TestSubmit_AbandonedAttempt(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	resp := h.start(t)

	_, err := h.attempts.Abandon(ctx, resp.Attempt.ID, h.student())
	require.NoError(t, err)

	_, err = h.attempts.Submit(ctx, resp.Attempt.ID, h.fullMarks(), h.student())
	assert.ErrorIs(t, err, ErrAttemptNotActive)

	_, err = h.attempts.Abandon(ctx, resp.Attempt.ID, h.student())
	assert.ErrorIs(t, err, ErrAttemptNotActive)
}

func TestSubmit_WithinGraceAfterDeadline(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{TimeLimit: testutil.IntPtr(1)})
	ctx := context.Background()
	resp := h.start(t)

	h.clock.Advance(61 * time.Second)

	_, err := h.attempts.Autosave(ctx, resp.Attempt.ID, models.AnswerMap{h.answerKey(0): "2"}, h.student())
	require.NoError(t, err, "writes inside the grace period are accepted")

	result, err := h.attempts.Submit(ctx, resp.Attempt.ID, h.fullMarks(), h.student())
	require.NoError(t, err)
	assert.Equal(t, 6.0, result.Score)
	assert.Equal(t, models.EndReasonTimeExpired, *result.Attempt.EndReason)
	assert.Equal(t, 60, *result.Attempt.TimeTaken, "time taken is capped at the deadline")
}

func TestSubmit_LateAnswersIgnored(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{TimeLimit: testutil.IntPtr(1)})
	ctx := context.Background()
	resp := h.start(t)

	_, err := h.attempts.SaveAnswer(ctx, resp.Attempt.ID, h.fx.Questions[0].ID, "3", h.student())
	require.NoError(t, err)

	h.clock.Advance(time.Minute + testGrace + time.Second)

	_, err = h.attempts.Autosave(ctx, resp.Attempt.ID, h.fullMarks(), h.student())
	assert.ErrorIs(t, err, ErrAttemptTimeExpired)

	result, err := h.attempts.Submit(ctx, resp.Attempt.ID, h.fullMarks(), h.student())
	require.NoError(t, err)
	assert.Equal(t, 2.0, result.Score, "only the autosaved answer is graded")
	assert.Equal(t, models.EndReasonTimeExpired, *result.Attempt.EndReason)
}

func TestSaveAnswer_OverwritesAndClears(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	resp := h.start(t)
	qid := h.fx.Questions[1].ID

	_, err := h.attempts.SaveAnswer(ctx, resp.Attempt.ID, qid, "3|2", h.student())
	require.NoError(t, err)

	got, err := h.attempts.Get(ctx, resp.Attempt.ID, h.student())
	require.NoError(t, err)
	assert.Equal(t, "2|3", got.Answers[models.AnswerKey(qid)])

	saved, err := h.attempts.SaveAnswer(ctx, resp.Attempt.ID, qid, "", h.student())
	require.NoError(t, err)
	assert.Equal(t, 0, saved.Answered)
	assert.Equal(t, 3, saved.Version)
}

func TestAutosave_RejectsInvalidAnswers(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	resp := h.start(t)

	_, err := h.attempts.Autosave(ctx, resp.Attempt.ID, models.AnswerMap{h.answerKey(0): "7"}, h.student())
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.HasRule("option"))

	_, err = h.attempts.Autosave(ctx, resp.Attempt.ID, models.AnswerMap{"424242": "x"}, h.student())
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.HasRule("question"))
}

func TestAutosave_AfterCompletion(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	resp := h.start(t)

	_, err := h.attempts.Submit(ctx, resp.Attempt.ID, nil, h.student())
	require.NoError(t, err)

	_, err = h.attempts.Autosave(ctx, resp.Attempt.ID, h.fullMarks(), h.student())
	assert.ErrorIs(t, err, ErrAttemptNotActive)
}

func TestAttemptOwnership(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	resp := h.start(t)
	other := models.NewIdentity("student-2", models.RoleStudent)

	_, err := h.attempts.Autosave(ctx, resp.Attempt.ID, h.fullMarks(), other)
	var perr *PermissionError
	assert.ErrorAs(t, err, &perr)

	_, err = h.attempts.Get(ctx, resp.Attempt.ID, other)
	assert.ErrorAs(t, err, &perr)

	_, err = h.attempts.Submit(ctx, resp.Attempt.ID, nil, h.lecturer())
	assert.ErrorAs(t, err, &perr, "managers may read attempts but never write them")

	got, err := h.attempts.Get(ctx, resp.Attempt.ID, h.lecturer())
	require.NoError(t, err)
	assert.Equal(t, resp.Attempt.ID, got.ID)

	_, err = h.attempts.Get(ctx, 9999, h.student())
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestGetCurrentAndTimeRemaining(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{TimeLimit: testutil.IntPtr(5)})
	ctx := context.Background()

	_, err := h.attempts.GetCurrent(ctx, h.fx.Quiz.ID, h.student())
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	resp := h.start(t)
	current, err := h.attempts.GetCurrent(ctx, h.fx.Quiz.ID, h.student())
	require.NoError(t, err)
	assert.Equal(t, resp.Attempt.ID, current.ID)

	h.clock.Advance(90*time.Second + 500*time.Millisecond)
	remaining, err := h.attempts.GetTimeRemaining(ctx, resp.Attempt.ID, h.student())
	require.NoError(t, err)
	assert.True(t, remaining.Timed)
	require.NotNil(t, remaining.RemainingSeconds)
	assert.Equal(t, 210, *remaining.RemainingSeconds)

	h.clock.Advance(10 * time.Minute)
	remaining, err = h.attempts.GetTimeRemaining(ctx, resp.Attempt.ID, h.student())
	require.NoError(t, err)
	assert.Equal(t, 0, *remaining.RemainingSeconds)
}

func TestList_StudentsOnlySeeTheirOwn(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()
	h.start(t)

	require.NoError(t, h.db.Create(&models.Enrollment{CourseID: h.fx.Course.ID, StudentID: "student-2", EnrolledAt: time.Now()}).Error)
	other := models.NewIdentity("student-2", models.RoleStudent)
	_, err := h.attempts.Start(ctx, h.fx.Quiz.ID, other)
	require.NoError(t, err)

	mine, err := h.attempts.List(ctx, repositories.AttemptFilters{}, h.student())
	require.NoError(t, err)
	assert.EqualValues(t, 1, mine.Total)
	assert.Equal(t, h.fx.StudentID, mine.Attempts[0].StudentID)

	all, err := h.attempts.List(ctx, repositories.AttemptFilters{QuizID: &h.fx.Quiz.ID}, h.lecturer())
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Total)
}
