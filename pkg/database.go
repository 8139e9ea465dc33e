package pkg

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/config"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
)

// InitDatabase opens the PostgreSQL connection pool and, when configured,
// migrates the schema.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if !cfg.IsProduction() {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if cfg.Database.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// Migrate creates or updates every table and the indexes gorm tags cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Course{},
		&models.Enrollment{},
		&models.Quiz{},
		&models.Question{},
		&models.QuizAttempt{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// At most one in-progress attempt per learner and quiz.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempt_one_in_progress
		ON quiz_attempts (quiz_id, student_id) WHERE status = 'in_progress'`).Error; err != nil {
		return fmt.Errorf("failed to create in-progress attempt index: %w", err)
	}

	return nil
}
