package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateQuizCache drops a quiz definition and every learner catalog, since
// any quiz edit can change which quizzes are available.
func InvalidateQuizCache(ctx context.Context, cm *CacheManager, quizID uint) {
	SafeDelete(ctx, cm.Quiz, QuizKey(quizID))
	SafeInvalidatePattern(ctx, cm.Catalog, "student:*")
}

// InvalidateCatalogCache drops one learner's catalog, e.g. after an enrollment change.
func InvalidateCatalogCache(ctx context.Context, cm *CacheManager, studentID string) {
	SafeDelete(ctx, cm.Catalog, CatalogKey(studentID))
}

func QuizKey(quizID uint) string {
	return fmt.Sprintf("id:%d", quizID)
}

func CatalogKey(studentID string) string {
	return fmt.Sprintf("student:%s", studentID)
}
