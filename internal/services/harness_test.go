package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/events"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories/postgres"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/testutil"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
)

const testGrace = 30 * time.Second

type fakeUsers map[string]string

func (f fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	name, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	return &models.User{ID: id, FullName: name, Role: models.RoleStudent}, nil
}

func (f fakeUsers) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, err := f.GetByID(ctx, id); err == nil {
			out = append(out, u)
		}
	}
	return out, nil
}

type harness struct {
	db       *gorm.DB
	repo     repositories.Repository
	clock    *clockwork.FakeClock
	recorder *events.Recorder
	fx       *testutil.Fixture

	attempts AttemptService
	catalog  CatalogService
	quizzes  QuizService
	grading  GradingService
	export   ExportService
	sweeper  *Sweeper
}

func newHarness(t *testing.T, opts testutil.QuizOptions) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	fx := testutil.SeedQuiz(t, db, opts)

	repo := postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{
		DB:             db,
		UserRepository: fakeUsers{"student-1": "Ada Lovelace", "student-2": "Alan Turing"},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := validator.New()
	clock := clockwork.NewFakeClockAt(time.Now().UTC())
	recorder := &events.Recorder{}

	grader := NewGradingService(repo, db, logger)
	attempts := NewAttemptService(repo, db, logger, v, grader, recorder, clock, AttemptConfig{Grace: testGrace})

	return &harness{
		db:       db,
		repo:     repo,
		clock:    clock,
		recorder: recorder,
		fx:       fx,
		attempts: attempts,
		catalog:  NewCatalogService(repo, db, logger, v, clock),
		quizzes:  NewQuizService(repo, db, logger, v),
		grading:  grader,
		export:   NewExportService(repo, db, logger),
		sweeper:  NewSweeper(attempts, logger, "@every 1m"),
	}
}

func (h *harness) student() *models.Identity {
	return models.NewIdentity(h.fx.StudentID, models.RoleStudent)
}

func (h *harness) lecturer() *models.Identity {
	return models.NewIdentity("lecturer-1", models.RoleLecturer)
}

// answerKey returns the answer map key of the i-th seeded question.
func (h *harness) answerKey(i int) string {
	return models.AnswerKey(h.fx.Questions[i].ID)
}

// fullMarks answers every seeded question correctly.
func (h *harness) fullMarks() models.AnswerMap {
	return models.AnswerMap{
		h.answerKey(0): "3",
		h.answerKey(1): "3|2",
		h.answerKey(2): "middle",
	}
}

func (h *harness) start(t *testing.T) *StartAttemptResponse {
	t.Helper()
	resp, err := h.attempts.Start(context.Background(), h.fx.Quiz.ID, h.student())
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	return resp
}
