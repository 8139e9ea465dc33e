package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/testutil"
)

func TestQuizPostgreSQL_ListAvailableForStudent(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Now().UTC()
	ctx := context.Background()

	open := testutil.SeedQuiz(t, db, testutil.QuizOptions{})
	upcoming := testutil.SeedQuiz(t, db, testutil.QuizOptions{StartTime: now.Add(time.Hour), EndTime: now.Add(2 * time.Hour)})
	testutil.SeedQuiz(t, db, testutil.QuizOptions{StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Hour)})
	testutil.SeedQuiz(t, db, testutil.QuizOptions{Inactive: true})
	testutil.SeedQuiz(t, db, testutil.QuizOptions{NotEnrolled: true})

	repo := NewQuizPostgreSQL(db, nil)
	quizzes, err := repo.ListAvailableForStudent(ctx, nil, open.StudentID, now)
	require.NoError(t, err)

	ids := make([]uint, 0, len(quizzes))
	for _, q := range quizzes {
		ids = append(ids, q.ID)
	}
	assert.ElementsMatch(t, []uint{open.Quiz.ID, upcoming.Quiz.ID}, ids)

	none, err := repo.ListAvailableForStudent(ctx, nil, "someone-else", now)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQuizPostgreSQL_CachedCatalogDropsClosedQuizzes(t *testing.T) {
	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Now().UTC()
	ctx := context.Background()
	fx := testutil.SeedQuiz(t, db, testutil.QuizOptions{EndTime: now.Add(time.Minute)})

	repo := NewQuizPostgreSQL(db, client)
	quizzes, err := repo.ListAvailableForStudent(ctx, nil, fx.StudentID, now)
	require.NoError(t, err)
	require.Len(t, quizzes, 1)
	assert.True(t, mr.Exists("catalog:student:"+fx.StudentID))

	later, err := repo.ListAvailableForStudent(ctx, nil, fx.StudentID, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, later)

	repo.InvalidateCache(ctx, fx.Quiz.ID)
	assert.False(t, mr.Exists("catalog:student:"+fx.StudentID))
}

func TestQuizPostgreSQL_GetByIDWithQuestionsOrdersQuestions(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.SeedQuiz(t, db, testutil.QuizOptions{})
	repo := NewQuizPostgreSQL(db, nil)

	quiz, err := repo.GetByIDWithQuestions(context.Background(), nil, fx.Quiz.ID)
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 3)
	for i, q := range quiz.Questions {
		assert.Equal(t, i+1, q.OrderNumber)
	}
	assert.Equal(t, []string{"2", "3", "4"}, []string(quiz.Questions[0].Options))

	_, err = repo.GetByIDWithQuestions(context.Background(), nil, 4242)
	assert.True(t, repositories.IsNotFoundError(err))
}

func TestQuizPostgreSQL_RecomputeTotalMarks(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.SeedQuiz(t, db, testutil.QuizOptions{})
	ctx := context.Background()

	questions := NewQuestionPostgreSQL(db)
	require.NoError(t, questions.Create(ctx, nil, &models.Question{
		QuizID: fx.Quiz.ID, Type: models.FreeText, Text: "Extra", CorrectAnswer: "x", Marks: 1.5, OrderNumber: 4,
	}))

	repo := NewQuizPostgreSQL(db, nil)
	total, err := repo.RecomputeTotalMarks(ctx, nil, fx.Quiz.ID)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, total, 0.001)

	quiz, err := repo.GetByID(ctx, nil, fx.Quiz.ID)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, quiz.TotalMarks, 0.001)
}

func TestQuestionPostgreSQL_Reorder(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.SeedQuiz(t, db, testutil.QuizOptions{})
	ctx := context.Background()
	repo := NewQuestionPostgreSQL(db)

	ids := []uint{fx.Questions[2].ID, fx.Questions[0].ID, fx.Questions[1].ID}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.Reorder(ctx, tx, fx.Quiz.ID, ids)
	}))

	questions, err := repo.GetByQuiz(ctx, nil, fx.Quiz.ID)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	for i, q := range questions {
		assert.Equal(t, ids[i], q.ID)
		assert.Equal(t, i+1, q.OrderNumber)
	}

	next, err := repo.NextOrderNumber(ctx, nil, fx.Quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, next)
}

func TestEnrollmentPostgreSQL_EnrollSkipsExisting(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.SeedQuiz(t, db, testutil.QuizOptions{})
	ctx := context.Background()
	repo := NewEnrollmentPostgreSQL(db)

	added, err := repo.Enroll(ctx, nil, fx.Course.ID, []string{fx.StudentID, "student-9"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, added)

	ok, err := repo.IsEnrolled(ctx, nil, fx.Course.ID, "student-9")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Unenroll(ctx, nil, fx.Course.ID, "student-9"))
	err = repo.Unenroll(ctx, nil, fx.Course.ID, "student-9")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
