package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
)

const resultsSheet = "Results"

var resultsHeader = []interface{}{
	"Student ID", "Student", "Attempt", "Score", "Total Marks", "Percentage", "Time Taken (s)", "Completed At",
}

type exportService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

// ExportResults writes an xlsx workbook with one row per completed attempt.
func (s *exportService) ExportResults(ctx context.Context, quizID uint, identity *models.Identity, w io.Writer) (string, error) {
	if identity == nil {
		return "", ErrUnauthorized
	}
	if !identity.CanManageQuizzes() {
		return "", NewPermissionError(identity.UserID, quizID, "quiz", "export results", "only lecturers and admins can export results")
	}

	quiz, err := s.repo.Quiz().GetByID(ctx, nil, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return "", ErrQuizNotFound
		}
		return "", fmt.Errorf("failed to get quiz: %w", err)
	}
	if !identity.IsAdmin() && quiz.CreatedBy != identity.UserID {
		return "", NewPermissionError(identity.UserID, quizID, "quiz", "export results", "not the quiz owner")
	}

	attempts, err := s.repo.Attempt().ListCompletedByQuiz(ctx, nil, quizID)
	if err != nil {
		return "", fmt.Errorf("failed to list completed attempts: %w", err)
	}

	rows := s.resultRows(ctx, attempts)

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	if err := writeResultsSheet(f, quiz, rows); err != nil {
		return "", fmt.Errorf("failed to build workbook: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return "", fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Results exported", "quiz_id", quizID, "rows", len(rows), "user_id", identity.UserID)
	return fmt.Sprintf("quiz-%d-results.xlsx", quizID), nil
}

// resultRows resolves display names; learners the identity provider cannot
// resolve keep an empty name.
func (s *exportService) resultRows(ctx context.Context, attempts []*models.QuizAttempt) []models.AttemptResultRow {
	ids := make([]string, 0, len(attempts))
	seen := make(map[string]bool, len(attempts))
	for _, a := range attempts {
		if !seen[a.StudentID] {
			seen[a.StudentID] = true
			ids = append(ids, a.StudentID)
		}
	}

	names := make(map[string]string, len(ids))
	if users := s.repo.User(); users != nil && len(ids) > 0 {
		resolved, err := users.GetByIDs(ctx, ids)
		if err != nil {
			s.logger.Warn("Failed to resolve learner names", "error", err)
		}
		for _, u := range resolved {
			names[u.ID] = u.FullName
		}
	}

	rows := make([]models.AttemptResultRow, 0, len(attempts))
	for _, a := range attempts {
		row := models.AttemptResultRow{
			AttemptID:     a.ID,
			StudentID:     a.StudentID,
			StudentName:   names[a.StudentID],
			AttemptNumber: a.AttemptNumber,
			Status:        string(a.Status),
			CompletedAt:   a.CompletedAt,
		}
		if a.Score != nil {
			row.Score = *a.Score
		}
		if a.Percentage != nil {
			row.Percentage = *a.Percentage
		}
		if a.TimeTaken != nil {
			row.TimeTaken = *a.TimeTaken
		}
		rows = append(rows, row)
	}
	return rows
}

func writeResultsSheet(f *excelize.File, quiz *models.Quiz, rows []models.AttemptResultRow) error {
	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &resultsHeader); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(resultsSheet, 1, 1, bold); err != nil {
		return err
	}

	for i, r := range rows {
		completed := ""
		if r.CompletedAt != nil {
			completed = r.CompletedAt.UTC().Format(time.RFC3339)
		}
		values := []interface{}{
			r.StudentID, r.StudentName, r.AttemptNumber, r.Score, quiz.TotalMarks, r.Percentage, r.TimeTaken, completed,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return err
		}
	}

	return f.SetColWidth(resultsSheet, "A", "H", 18)
}
