package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/testutil"
)

func newAttempt(fx *testutil.Fixture, number int, deadline *time.Time) *models.QuizAttempt {
	return &models.QuizAttempt{
		QuizID:        fx.Quiz.ID,
		StudentID:     fx.StudentID,
		AttemptNumber: number,
		Status:        models.AttemptInProgress,
		Answers:       datatypes.NewJSONType(models.AnswerMap{}),
		Version:       1,
		StartedAt:     time.Now().UTC(),
		DeadlineAt:    deadline,
	}
}

func TestAttemptPostgreSQL_SaveAnswersBumpsVersion(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.SeedQuiz(t, db, testutil.QuizOptions{})
	repo := NewAttemptPostgreSQL(db)
	ctx := context.Background()

	attempt := newAttempt(fx, 1, nil)
	require.NoError(t, repo.Create(ctx, nil, attempt))

	version, err := repo.SaveAnswers(ctx, nil, attempt.ID, models.AnswerMap{"1": "3"})
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	version, err = repo.SaveAnswers(ctx, nil, attempt.ID, models.AnswerMap{"1": "2"})
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	stored, err := repo.GetByID(ctx, nil, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", stored.AnswerMap()["1"])
}

func TestAttemptPostgreSQL_WritesAfterCompletionAreStale(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.SeedQuiz(t, db, testutil.QuizOptions{})
	repo := NewAttemptPostgreSQL(db)
	ctx := context.Background()

	attempt := newAttempt(fx, 1, nil)
	require.NoError(t, repo.Create(ctx, nil, attempt))

	done := repositories.CompletionFields{
		CompletedAt: time.Now().UTC(),
		Score:       4,
		Percentage:  66.67,
		TimeTaken:   120,
		EndReason:   models.EndReasonSubmitted,
	}
	require.NoError(t, repo.Complete(ctx, nil, attempt.ID, done))

	_, err := repo.SaveAnswers(ctx, nil, attempt.ID, models.AnswerMap{"1": "4"})
	assert.ErrorIs(t, err, repositories.ErrStaleWrite)

	err = repo.Complete(ctx, nil, attempt.ID, done)
	assert.ErrorIs(t, err, repositories.ErrStaleWrite)

	err = repo.Abandon(ctx, nil, attempt.ID, models.EndReasonAbandoned, time.Now().UTC())
	assert.ErrorIs(t, err, repositories.ErrStaleWrite)

	stored, err := repo.GetByID(ctx, nil, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptCompleted, stored.Status)
	require.NotNil(t, stored.Score)
	assert.InDelta(t, 4, *stored.Score, 0.001)
	assert.Empty(t, stored.AnswerMap())
}

func TestAttemptPostgreSQL_MissingAttemptIsNotFound(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewAttemptPostgreSQL(db)

	_, err := repo.SaveAnswers(context.Background(), nil, 999, models.AnswerMap{})
	assert.True(t, repositories.IsNotFoundError(err))
	assert.NotErrorIs(t, err, repositories.ErrStaleWrite)
}

func TestAttemptPostgreSQL_OneInProgressPerLearner(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.SeedQuiz(t, db, testutil.QuizOptions{})
	repo := NewAttemptPostgreSQL(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, newAttempt(fx, 1, nil)))

	err := repo.Create(ctx, nil, newAttempt(fx, 2, nil))
	require.Error(t, err)
	assert.True(t, repositories.IsUniqueViolation(err))
}

func TestAttemptPostgreSQL_NextAttemptNumberAndCounts(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.SeedQuiz(t, db, testutil.QuizOptions{})
	repo := NewAttemptPostgreSQL(db)
	ctx := context.Background()

	next, err := repo.NextAttemptNumber(ctx, nil, fx.Quiz.ID, fx.StudentID)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	first := newAttempt(fx, 1, nil)
	require.NoError(t, repo.Create(ctx, nil, first))
	require.NoError(t, repo.Abandon(ctx, nil, first.ID, models.EndReasonAbandoned, time.Now().UTC()))

	second := newAttempt(fx, 2, nil)
	require.NoError(t, repo.Create(ctx, nil, second))
	require.NoError(t, repo.Complete(ctx, nil, second.ID, repositories.CompletionFields{
		CompletedAt: time.Now().UTC(),
		EndReason:   models.EndReasonSubmitted,
	}))

	next, err = repo.NextAttemptNumber(ctx, nil, fx.Quiz.ID, fx.StudentID)
	require.NoError(t, err)
	assert.Equal(t, 3, next)

	completed, err := repo.CountByStatus(ctx, nil, fx.Quiz.ID, fx.StudentID, models.AttemptCompleted)
	require.NoError(t, err)
	assert.EqualValues(t, 1, completed)

	abandoned, err := repo.CountByStatus(ctx, nil, fx.Quiz.ID, fx.StudentID, models.AttemptAbandoned)
	require.NoError(t, err)
	assert.EqualValues(t, 1, abandoned)
}

func TestAttemptPostgreSQL_SweeperQueries(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Now().UTC()
	ctx := context.Background()
	repo := NewAttemptPostgreSQL(db)

	timed := testutil.SeedQuiz(t, db, testutil.QuizOptions{TimeLimit: testutil.IntPtr(10)})
	past := now.Add(-5 * time.Minute)
	overdue := newAttempt(timed, 1, &past)
	require.NoError(t, repo.Create(ctx, nil, overdue))

	closed := testutil.SeedQuiz(t, db, testutil.QuizOptions{StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Minute)})
	closed.StudentID = "student-2"
	orphan := newAttempt(closed, 1, nil)
	require.NoError(t, repo.Create(ctx, nil, orphan))

	list, err := repo.ListOverdue(ctx, nil, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, overdue.ID, list[0].ID)

	list, err = repo.ListOverdue(ctx, nil, now.Add(-10*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = repo.ListOrphaned(ctx, nil, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, orphan.ID, list[0].ID)
}

func TestAttemptPostgreSQL_ListFilters(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.SeedQuiz(t, db, testutil.QuizOptions{})
	repo := NewAttemptPostgreSQL(db)
	ctx := context.Background()

	first := newAttempt(fx, 1, nil)
	require.NoError(t, repo.Create(ctx, nil, first))
	require.NoError(t, repo.Abandon(ctx, nil, first.ID, models.EndReasonAbandoned, time.Now().UTC()))
	require.NoError(t, repo.Create(ctx, nil, newAttempt(fx, 2, nil)))

	status := models.AttemptInProgress
	list, total, err := repo.List(ctx, nil, repositories.AttemptFilters{QuizID: &fx.Quiz.ID, Status: &status})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].AttemptNumber)

	list, total, err = repo.List(ctx, nil, repositories.AttemptFilters{StudentID: &fx.StudentID, SortBy: "attempt_number", SortOrder: "asc"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].AttemptNumber)
}
