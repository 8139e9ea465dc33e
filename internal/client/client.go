// Package client talks to the quiz attempt API on behalf of one learner.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/services"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/session"
)

var _ session.Backend = (*Client)(nil)

// Identity is who the client acts for. The token is sent as a bearer token.
type Identity struct {
	Token     string
	StudentID string
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Is matches the attempt state errors of the services package by error code.
func (e *APIError) Is(target error) bool {
	switch target {
	case services.ErrAttemptNotActive:
		return e.Code == models.ErrorCodeAttemptNotActive
	case services.ErrAttemptTimeExpired:
		return e.Code == models.ErrorCodeAttemptTimeExpired
	default:
		return false
	}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type Client struct {
	http     *resty.Client
	identity Identity
	logger   *slog.Logger
}

// New builds a client. Every attempt endpoint is idempotent on the server
// (start resumes, autosave replaces, submit returns the stored result), so
// server errors and transport failures are retried.
func New(cfg Config, identity Identity, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL+"/api/v1").
		SetAuthToken(identity.Token).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		http:     httpClient,
		identity: identity,
		logger:   logger.With("student_id", identity.StudentID),
	}
}

// ===== CATALOG =====

func (c *Client) ListAvailable(ctx context.Context) ([]services.QuizSummary, error) {
	var out []services.QuizSummary
	if err := c.do(ctx, http.MethodGet, "/quizzes/available", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list available quizzes: %w", err)
	}
	return out, nil
}

func (c *Client) GetQuizForAttempt(ctx context.Context, quizID uint) (*services.QuizWithQuestions, error) {
	var out services.QuizWithQuestions
	if err := c.do(ctx, http.MethodGet, "/quizzes/"+id(quizID)+"/attempt-view", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	return &out, nil
}

// ===== ATTEMPTS =====

// CreateAttempt starts a new attempt or resumes the running one.
func (c *Client) CreateAttempt(ctx context.Context, quizID uint) (*services.StartAttemptResponse, error) {
	var out services.StartAttemptResponse
	if err := c.do(ctx, http.MethodPost, "/quizzes/"+id(quizID)+"/attempts", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}
	return &out, nil
}

func (c *Client) SaveAnswers(ctx context.Context, attemptID uint, answers models.AnswerMap) error {
	body := map[string]models.AnswerMap{"answers": answers}
	if err := c.do(ctx, http.MethodPut, "/attempts/"+id(attemptID)+"/answers", body, nil); err != nil {
		return fmt.Errorf("failed to save answers: %w", err)
	}
	return nil
}

func (c *Client) Submit(ctx context.Context, attemptID uint, answers models.AnswerMap) (*services.SubmitResponse, error) {
	var out services.SubmitResponse
	body := map[string]models.AnswerMap{"answers": answers}
	if err := c.do(ctx, http.MethodPost, "/attempts/"+id(attemptID)+"/submit", body, &out); err != nil {
		return nil, fmt.Errorf("failed to submit attempt: %w", err)
	}
	return &out, nil
}

func (c *Client) Abandon(ctx context.Context, attemptID uint) error {
	if err := c.do(ctx, http.MethodPost, "/attempts/"+id(attemptID)+"/abandon", nil, nil); err != nil {
		return fmt.Errorf("failed to abandon attempt: %w", err)
	}
	return nil
}

func (c *Client) TimeRemaining(ctx context.Context, attemptID uint) (*services.TimeRemainingResponse, error) {
	var out services.TimeRemainingResponse
	if err := c.do(ctx, http.MethodGet, "/attempts/"+id(attemptID)+"/time-remaining", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get time remaining: %w", err)
	}
	return &out, nil
}

// ===== HELPERS =====

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	apiErr := &APIError{}
	req := c.http.R().
		SetContext(ctx).
		SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode())
		}
		c.logger.Debug("API call failed", "method", method, "path", path, "status", apiErr.Status)
		return apiErr
	}
	return nil
}

func id(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
