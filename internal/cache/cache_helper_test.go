package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedQuiz struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func newTestManager(t *testing.T) (*CacheManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCacheManager(client), mr
}

func TestCacheOrExecute_FillsThenHits(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return &cachedQuiz{ID: 7, Title: "Midterm"}, nil
	}

	var first cachedQuiz
	require.NoError(t, cm.Quiz.CacheOrExecute(ctx, QuizKey(7), &first, time.Minute, fetch))
	assert.Equal(t, "Midterm", first.Title)
	assert.True(t, mr.Exists("quiz:id:7"))

	var second cachedQuiz
	require.NoError(t, cm.Quiz.CacheOrExecute(ctx, QuizKey(7), &second, time.Minute, fetch))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestCacheOrExecute_FetchErrorIsReturned(t *testing.T) {
	cm, mr := newTestManager(t)
	boom := errors.New("db down")

	var dest cachedQuiz
	err := cm.Catalog.CacheOrExecute(context.Background(), CatalogKey("s1"), &dest, time.Minute, func() (interface{}, error) {
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("catalog:student:s1"))
}

func TestCacheManager_WithoutRedis(t *testing.T) {
	cm := NewCacheManager(nil)
	ctx := context.Background()

	assert.False(t, cm.Available())
	assert.ErrorIs(t, cm.HealthCheck(ctx), ErrCacheNotAvailable)
	assert.NoError(t, cm.Quiz.Set(ctx, "k", 1, time.Minute))

	var dest cachedQuiz
	assert.ErrorIs(t, cm.Quiz.Get(ctx, "k", &dest), ErrCacheNotAvailable)

	calls := 0
	for i := 0; i < 2; i++ {
		require.NoError(t, cm.Quiz.CacheOrExecute(ctx, "k", &dest, time.Minute, func() (interface{}, error) {
			calls++
			return cachedQuiz{ID: 1}, nil
		}))
	}
	assert.Equal(t, 2, calls)
}

func TestInvalidateQuizCache(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, cm.Quiz.Set(ctx, QuizKey(3), cachedQuiz{ID: 3}, time.Minute))
	require.NoError(t, cm.Catalog.Set(ctx, CatalogKey("a"), []cachedQuiz{{ID: 3}}, time.Minute))
	require.NoError(t, cm.Catalog.Set(ctx, CatalogKey("b"), []cachedQuiz{{ID: 3}}, time.Minute))
	require.NoError(t, cm.User.Set(ctx, "id:a", struct{}{}, time.Minute))

	InvalidateQuizCache(ctx, cm, 3)

	assert.False(t, mr.Exists("quiz:id:3"))
	assert.False(t, mr.Exists("catalog:student:a"))
	assert.False(t, mr.Exists("catalog:student:b"))
	assert.True(t, mr.Exists("user:id:a"))
}

func TestInvalidateCatalogCache(t *testing.T) {
	cm, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, cm.Catalog.Set(ctx, CatalogKey("a"), []int{1}, time.Minute))
	require.NoError(t, cm.Catalog.Set(ctx, CatalogKey("b"), []int{1}, time.Minute))

	InvalidateCatalogCache(ctx, cm, "a")

	assert.False(t, mr.Exists("catalog:student:a"))
	assert.True(t, mr.Exists("catalog:student:b"))

	var got []int
	require.NoError(t, cm.Catalog.Get(ctx, CatalogKey("b"), &got))
	assert.Equal(t, []int{1}, got)
}
