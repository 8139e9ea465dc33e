package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/repositories"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/services"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/utils"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type QuizHandler struct {
	BaseHandler
	catalogService services.CatalogService
	quizService    services.QuizService
	gradingService services.GradingService
	exportService  services.ExportService
	validator      *validator.Validator
}

func NewQuizHandler(
	catalogService services.CatalogService,
	quizService services.QuizService,
	gradingService services.GradingService,
	exportService services.ExportService,
	validator *validator.Validator,
	logger utils.Logger,
) *QuizHandler {
	return &QuizHandler{
		BaseHandler:    NewBaseHandler(logger),
		catalogService: catalogService,
		quizService:    quizService,
		gradingService: gradingService,
		exportService:  exportService,
		validator:      validator,
	}
}

// ===== CATALOG =====

// ListAvailableQuizzes lists the quizzes the caller can take now
// @Summary List available quizzes
// @Description Active quizzes of the learner's enrolled courses whose window has not closed
// @Tags catalog
// @Produce json
// @Success 200 {array} services.QuizSummary
// @Failure 401 {object} ErrorResponse
// @Router /quizzes/available [get]
func (h *QuizHandler) ListAvailableQuizzes(c *gin.Context) {
	identity := h.identity(c)
	if identity == nil {
		return
	}

	quizzes, err := h.catalogService.ListAvailable(c.Request.Context(), identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quizzes)
}

// GetQuizForAttempt returns the pre-start view of a quiz
// @Summary Get quiz for attempt
// @Description Quiz metadata, questions without correct answers and the caller's attempt budget
// @Tags catalog
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 200 {object} services.QuizWithQuestions
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /quizzes/{id}/attempt-view [get]
func (h *QuizHandler) GetQuizForAttempt(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	view, err := h.catalogService.GetQuizForAttempt(c.Request.Context(), quizID, identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// ===== QUIZ AUTHORING =====

// CreateQuiz creates a quiz with its questions
// @Summary Create quiz
// @Tags quizzes
// @Accept json
// @Produce json
// @Param quiz body validator.QuizCreateRequest true "Quiz data"
// @Success 201 {object} services.QuizDetail
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /quizzes [post]
func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	identity := h.identity(c)
	if identity == nil {
		return
	}

	var req validator.QuizCreateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Creating quiz", "course_id", req.CourseID, "questions", len(req.Questions))

	quiz, err := h.quizService.Create(c.Request.Context(), &req, identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, quiz)
}

// GetQuiz retrieves a quiz with correct answers
// @Summary Get quiz
// @Tags quizzes
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 200 {object} services.QuizDetail
// @Failure 404 {object} ErrorResponse
// @Router /quizzes/{id} [get]
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	quiz, err := h.quizService.Get(c.Request.Context(), quizID, identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

// UpdateQuiz applies a partial update
// @Summary Update quiz
// @Tags quizzes
// @Accept json
// @Produce json
// @Param id path uint true "Quiz ID"
// @Param quiz body validator.QuizUpdateRequest true "Fields to change"
// @Success 200 {object} services.QuizDetail
// @Failure 400 {object} ErrorResponse
// @Router /quizzes/{id} [put]
func (h *QuizHandler) UpdateQuiz(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	var req validator.QuizUpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Updating quiz", "quiz_id", quizID)

	quiz, err := h.quizService.Update(c.Request.Context(), quizID, &req, identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

// DeleteQuiz deletes a quiz without running attempts
// @Summary Delete quiz
// @Tags quizzes
// @Param id path uint true "Quiz ID"
// @Success 204
// @Failure 409 {object} ErrorResponse
// @Router /quizzes/{id} [delete]
func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	h.LogRequest(c, "Deleting quiz", "quiz_id", quizID)

	if err := h.quizService.Delete(c.Request.Context(), quizID, identity); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListQuizzes lists quizzes for authoring
// @Summary List quizzes
// @Description Lecturers see their own quizzes, admins see all
// @Tags quizzes
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(20)
// @Param course_id query int false "Course ID"
// @Param is_active query bool false "Active flag"
// @Success 200 {object} services.QuizListResponse
// @Router /quizzes [get]
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	identity := h.identity(c)
	if identity == nil {
		return
	}

	resp, err := h.quizService.List(c.Request.Context(), h.parseQuizFilters(c), identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ===== QUESTIONS =====

// AddQuestion appends a question to a quiz
// @Summary Add question
// @Tags questions
// @Accept json
// @Produce json
// @Param id path uint true "Quiz ID"
// @Param question body validator.QuestionCreateRequest true "Question"
// @Success 201 {object} models.Question
// @Failure 400 {object} ErrorResponse
// @Router /quizzes/{id}/questions [post]
func (h *QuizHandler) AddQuestion(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	var req validator.QuestionCreateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	question, err := h.quizService.AddQuestion(c.Request.Context(), quizID, &req, identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, question)
}

// UpdateQuestion changes a question
// @Summary Update question
// @Tags questions
// @Accept json
// @Produce json
// @Param id path uint true "Question ID"
// @Param question body validator.QuestionUpdateRequest true "Fields to change"
// @Success 200 {object} models.Question
// @Failure 404 {object} ErrorResponse
// @Router /questions/{id} [put]
func (h *QuizHandler) UpdateQuestion(c *gin.Context) {
	questionID := h.parseIDParam(c, "id")
	if questionID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	var req validator.QuestionUpdateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	question, err := h.quizService.UpdateQuestion(c.Request.Context(), questionID, &req, identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// DeleteQuestion removes a question
// @Summary Delete question
// @Tags questions
// @Param id path uint true "Question ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /questions/{id} [delete]
func (h *QuizHandler) DeleteQuestion(c *gin.Context) {
	questionID := h.parseIDParam(c, "id")
	if questionID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	if err := h.quizService.DeleteQuestion(c.Request.Context(), questionID, identity); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ReorderQuestions sets a new question order
// @Summary Reorder questions
// @Tags questions
// @Accept json
// @Produce json
// @Param id path uint true "Quiz ID"
// @Param order body validator.ReorderQuestionsRequest true "Every question ID in the new order"
// @Success 200 {array} models.Question
// @Failure 400 {object} ErrorResponse
// @Router /quizzes/{id}/questions/reorder [put]
func (h *QuizHandler) ReorderQuestions(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	var req validator.ReorderQuestionsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	questions, err := h.quizService.ReorderQuestions(c.Request.Context(), quizID, &req, identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, questions)
}

// ===== RESULTS =====

// RegradeQuiz recomputes the scores of completed attempts
// @Summary Regrade quiz
// @Tags results
// @Produce json
// @Param id path uint true "Quiz ID"
// @Success 200 {object} SuccessResponse
// @Router /quizzes/{id}/regrade [post]
func (h *QuizHandler) RegradeQuiz(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	h.LogRequest(c, "Regrading quiz", "quiz_id", quizID)

	changed, err := h.gradingService.RegradeQuiz(c.Request.Context(), quizID, identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Quiz regraded",
		Data:    gin.H{"quiz_id": quizID, "changed": changed},
	})
}

// ExportResults downloads completed attempts as a spreadsheet
// @Summary Export quiz results
// @Tags results
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Quiz ID"
// @Success 200 {file} file
// @Failure 403 {object} ErrorResponse
// @Router /quizzes/{id}/results/export [get]
func (h *QuizHandler) ExportResults(c *gin.Context) {
	quizID := h.parseIDParam(c, "id")
	if quizID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	h.LogRequest(c, "Exporting quiz results", "quiz_id", quizID)

	// Buffered so a failed export can still answer with a JSON error
	var buf bytes.Buffer
	filename, err := h.exportService.ExportResults(c.Request.Context(), quizID, identity, &buf)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ===== HELPER METHODS =====

func (h *QuizHandler) parseQuizFilters(c *gin.Context) repositories.QuizFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 20)
	if page < 1 {
		page = 1
	}

	filters := repositories.QuizFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if courseID := h.parseIntQuery(c, "course_id", 0); courseID > 0 {
		id := uint(courseID)
		filters.CourseID = &id
	}

	switch c.Query("is_active") {
	case "true":
		active := true
		filters.IsActive = &active
	case "false":
		active := false
		filters.IsActive = &active
	}

	return filters
}
