package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/services"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/utils"
)

type (
	ErrorResponse   = models.ErrorResponse
	SuccessResponse = models.SuccessResponse
)

// BaseHandler carries what every handler shares: logging, parameter parsing
// and the mapping from service errors to HTTP responses.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.FromContext(c, h.logger).Info(msg, append(args, "user_id", c.GetString(contextUserID))...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	utils.FromContext(c, h.logger).Error(msg, append(args, "error", err)...)
}

// identity returns the caller set by the auth middleware. It writes a 401 and
// returns nil when there is none.
func (h *BaseHandler) identity(c *gin.Context) *models.Identity {
	if v, ok := c.Get(contextIdentity); ok {
		if id, ok := v.(*models.Identity); ok && id != nil {
			return id
		}
	}
	c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
	return nil
}

// parseIDParam returns 0 after writing a 400 when the parameter is not a positive id.
func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		details := "must be a positive integer"
		if err != nil {
			details = err.Error()
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: details,
		})
		return 0
	}
	return uint(id)
}

func (h *BaseHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// bindJSON writes a 400 and returns false when the body cannot be decoded.
func (h *BaseHandler) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return false
	}
	return true
}

func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	// Start preconditions wrap both a sentinel and the full ValidationErrors,
	// so sentinels are matched before the typed errors.
	switch {
	case errors.Is(err, services.ErrQuizNotEnrolled):
		h.writeError(c, http.StatusForbidden, "Not enrolled in the quiz's course", err)
		return
	case errors.Is(err, services.ErrQuizInactive):
		h.writeError(c, http.StatusForbidden, "Quiz is not active", err)
		return
	case errors.Is(err, services.ErrQuizWindowClosed):
		h.writeError(c, http.StatusConflict, "Quiz is outside its activation window", err)
		return
	case errors.Is(err, services.ErrAttemptLimitExceeded):
		h.writeError(c, http.StatusConflict, "Maximum attempts exceeded", err)
		return
	}

	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule":    businessRuleError.Rule,
				"context": businessRuleError.Context,
			},
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Attempt not found"})
	case errors.Is(err, services.ErrAttemptNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Attempt is not active", Code: models.ErrorCodeAttemptNotActive})
	case errors.Is(err, services.ErrAttemptTimeExpired):
		c.JSON(http.StatusGone, ErrorResponse{Message: "Attempt time has expired", Code: models.ErrorCodeAttemptTimeExpired})
	case errors.Is(err, services.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Quiz not found"})
	case errors.Is(err, services.ErrQuizHasAttempts):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Quiz has attempts in progress"})
	case errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Question not found"})
	case errors.Is(err, services.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Course not found"})
	case errors.Is(err, services.ErrEnrollmentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Enrollment not found"})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Unauthorized access"})
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Message: "Resource conflict"})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}

func (h *BaseHandler) writeError(c *gin.Context, status int, msg string, err error) {
	resp := ErrorResponse{Message: msg}
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		resp.Details = validationErrors
	}
	c.JSON(status, resp)
}
