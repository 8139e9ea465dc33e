package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/models"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/services"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/utils"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/validator"
	"github.com/CyrusMaboshe/SMC-final-prototype-sub002/internal/ws"
)

type HandlerManager struct {
	quizHandler    *QuizHandler
	attemptHandler *AttemptHandler
	courseHandler  *CourseHandler
	wsHandler      *WSHandler
	authMiddleware *CasdoorAuthMiddleware
	serviceManager services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	authMiddleware *CasdoorAuthMiddleware,
	hub *ws.Hub,
	origins *OriginPolicy,
) *HandlerManager {
	return &HandlerManager{
		quizHandler: NewQuizHandler(
			serviceManager.Catalog(),
			serviceManager.Quiz(),
			serviceManager.Grading(),
			serviceManager.Export(),
			validator,
			logger,
		),
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		courseHandler:  NewCourseHandler(serviceManager.Quiz(), logger),
		wsHandler:      NewWSHandler(serviceManager.Attempt(), hub, origins, logger),
		authMiddleware: authMiddleware,
		serviceManager: serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	managers := hm.authMiddleware.RequireRoleMiddleware(models.RoleLecturer, models.RoleAdmin)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		quizzes := v1.Group("/quizzes")
		{
			// Catalog - any authenticated user, enrollment is checked by the service
			quizzes.GET("/available", hm.quizHandler.ListAvailableQuizzes)
			quizzes.GET("/:id/attempt-view", hm.quizHandler.GetQuizForAttempt)

			// Attempts
			quizzes.POST("/:id/attempts", hm.attemptHandler.StartAttempt)
			quizzes.GET("/:id/attempts/current", hm.attemptHandler.GetCurrentAttempt)

			// Authoring - Lecturers and Admins only
			quizzes.POST("", managers, hm.quizHandler.CreateQuiz)
			quizzes.GET("", managers, hm.quizHandler.ListQuizzes)
			quizzes.GET("/:id", managers, hm.quizHandler.GetQuiz)
			quizzes.PUT("/:id", managers, hm.quizHandler.UpdateQuiz)
			quizzes.DELETE("/:id", managers, hm.quizHandler.DeleteQuiz)
			quizzes.POST("/:id/questions", managers, hm.quizHandler.AddQuestion)
			quizzes.PUT("/:id/questions/reorder", managers, hm.quizHandler.ReorderQuestions)

			// Results
			quizzes.POST("/:id/regrade", managers, hm.quizHandler.RegradeQuiz)
			quizzes.GET("/:id/results/export", managers, hm.quizHandler.ExportResults)
		}

		questions := v1.Group("/questions")
		questions.Use(managers)
		{
			questions.PUT("/:id", hm.quizHandler.UpdateQuestion)
			questions.DELETE("/:id", hm.quizHandler.DeleteQuestion)
		}

		courses := v1.Group("/courses")
		courses.Use(managers)
		{
			courses.POST("", hm.courseHandler.CreateCourse)
			courses.POST("/:id/enrollments", hm.courseHandler.EnrollStudents)
			courses.DELETE("/:id/enrollments/:student_id", hm.courseHandler.UnenrollStudent)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.GET("", hm.attemptHandler.ListAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)
			attempts.PUT("/:id/answers", hm.attemptHandler.Autosave)
			attempts.PUT("/:id/answers/:question_id", hm.attemptHandler.SaveAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.POST("/:id/abandon", hm.attemptHandler.AbandonAttempt)
			attempts.GET("/:id/ws", hm.wsHandler.StreamAttempt)
		}
	}

	router.GET("/health", hm.HealthCheck)
}

// HealthCheck reports database and cache reachability
func (hm *HandlerManager) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := hm.serviceManager.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "quiz-attempt-service",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "quiz-attempt-service",
	})
}
