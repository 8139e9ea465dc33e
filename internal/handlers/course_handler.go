package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/services"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/utils"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
)

type CourseHandler struct {
	BaseHandler
	quizService services.QuizService
}

func NewCourseHandler(quizService services.QuizService, logger utils.Logger) *CourseHandler {
	return &CourseHandler{
		BaseHandler: NewBaseHandler(logger),
		quizService: quizService,
	}
}

// CreateCourse creates a course owned by the caller
// @Summary Create course
// @Tags courses
// @Accept json
// @Produce json
// @Param course body services.CourseCreateRequest true "Course"
// @Success 201 {object} models.Course
// @Failure 400 {object} ErrorResponse
// @Router /courses [post]
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	identity := h.identity(c)
	if identity == nil {
		return
	}

	var req services.CourseCreateRequest
	if !h.bindJSON(c, &req) {
		return
	}

	course, err := h.quizService.CreateCourse(c.Request.Context(), &req, identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, course)
}

// EnrollStudents enrolls learners in a course
// @Summary Enroll students
// @Tags courses
// @Accept json
// @Produce json
// @Param id path uint true "Course ID"
// @Param students body validator.EnrollRequest true "Student IDs"
// @Success 200 {object} services.EnrollResponse
// @Router /courses/{id}/enrollments [post]
func (h *CourseHandler) EnrollStudents(c *gin.Context) {
	courseID := h.parseIDParam(c, "id")
	if courseID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	var req validator.EnrollRequest
	if !h.bindJSON(c, &req) {
		return
	}

	h.LogRequest(c, "Enrolling students", "course_id", courseID, "count", len(req.StudentIDs))

	resp, err := h.quizService.Enroll(c.Request.Context(), courseID, &req, identity)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UnenrollStudent removes a learner from a course
// @Summary Unenroll student
// @Tags courses
// @Param id path uint true "Course ID"
// @Param student_id path string true "Student ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /courses/{id}/enrollments/{student_id} [delete]
func (h *CourseHandler) UnenrollStudent(c *gin.Context) {
	courseID := h.parseIDParam(c, "id")
	if courseID == 0 {
		return
	}
	identity := h.identity(c)
	if identity == nil {
		return
	}

	studentID := strings.TrimSpace(c.Param("student_id"))
	if studentID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "student_id is required"})
		return
	}

	if err := h.quizService.Unenroll(c.Request.Context(), courseID, studentID, identity); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
