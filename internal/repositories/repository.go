package repositories

import "context"

// Repository aggregates all repository interfaces
type Repository interface {
	Course() CourseRepository
	Enrollment() EnrollmentRepository
	Quiz() QuizRepository
	Question() QuestionRepository
	Attempt() AttemptRepository

	// User domain (read-only, backed by the identity provider)
	User() UserRepository

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize repositories with database connections
	Initialize() error

	// Get repository instance
	GetRepository() Repository

	// Health check for all repositories
	HealthCheck(ctx context.Context) error

	// Graceful shutdown
	Shutdown(ctx context.Context) error
}
