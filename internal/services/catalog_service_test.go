package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/testutil"
)

func TestListAvailable(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{})
	ctx := context.Background()

	quizzes, err := h.catalog.ListAvailable(ctx, h.student())
	require.NoError(t, err)
	require.Len(t, quizzes, 1)
	assert.Equal(t, h.fx.Quiz.ID, quizzes[0].ID)
	assert.True(t, quizzes[0].IsOpen)

	stranger := models.NewIdentity("student-9", models.RoleStudent)
	quizzes, err = h.catalog.ListAvailable(ctx, stranger)
	require.NoError(t, err)
	assert.NotNil(t, quizzes)
	assert.Empty(t, quizzes)
}

func TestGetQuizForAttempt(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{MaxAttempts: testutil.IntPtr(2)})
	ctx := context.Background()

	view, err := h.catalog.GetQuizForAttempt(ctx, h.fx.Quiz.ID, h.student())
	require.NoError(t, err)
	assert.Len(t, view.Questions, 3)
	assert.EqualValues(t, 0, view.AttemptsUsed)
	require.NotNil(t, view.AttemptsRemaining)
	assert.Equal(t, 2, *view.AttemptsRemaining)
	assert.Nil(t, view.CurrentAttemptID)

	resp := h.start(t)
	_, err = h.attempts.Submit(ctx, resp.Attempt.ID, nil, h.student())
	require.NoError(t, err)
	second := h.start(t)

	view, err = h.catalog.GetQuizForAttempt(ctx, h.fx.Quiz.ID, h.student())
	require.NoError(t, err)
	assert.EqualValues(t, 1, view.AttemptsUsed)
	assert.Equal(t, 1, *view.AttemptsRemaining)
	require.NotNil(t, view.CurrentAttemptID)
	assert.Equal(t, second.Attempt.ID, *view.CurrentAttemptID)
}

func TestGetQuizForAttempt_LimitReachedButResumable(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{MaxAttempts: testutil.IntPtr(1)})
	ctx := context.Background()

	resp := h.start(t)
	view, err := h.catalog.GetQuizForAttempt(ctx, h.fx.Quiz.ID, h.student())
	require.NoError(t, err, "an in-progress attempt can always be resumed")
	assert.Equal(t, resp.Attempt.ID, *view.CurrentAttemptID)

	_, err = h.attempts.Submit(ctx, resp.Attempt.ID, nil, h.student())
	require.NoError(t, err)

	_, err = h.catalog.GetQuizForAttempt(ctx, h.fx.Quiz.ID, h.student())
	assert.ErrorIs(t, err, ErrAttemptLimitExceeded)
}

func TestGetQuizForAttempt_NotEnrolled(t *testing.T) {
	h := newHarness(t, testutil.QuizOptions{NotEnrolled: true})

	_, err := h.catalog.GetQuizForAttempt(context.Background(), h.fx.Quiz.ID, h.student())
	assert.ErrorIs(t, err, ErrQuizNotEnrolled)
}
