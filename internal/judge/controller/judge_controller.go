package controller

import (
	"context"
	"strconv"

	"coderush/internal/judge/exercise"
	"coderush/internal/judge/model"
	"coderush/internal/judge/sandbox/result"
	"coderush/internal/judge/service"
	appErr "coderush/pkg/errors"
	"coderush/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// JudgeService is the subset of the judge service used by the handlers.
type JudgeService interface {
	GetExercise(ctx context.Context, id int) (exercise.Exercise, error)
	SubmitAnswer(ctx context.Context, req service.SubmitRequest) (result.ValidationReport, error)
	GetStatus(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error)
	Health() service.Health
	Recover(ctx context.Context)
}

// JudgeController handles task and submission requests.
type JudgeController struct {
	svc            JudgeService
	exposeWarnings bool
}

// NewJudgeController creates a new controller.
func NewJudgeController(svc JudgeService, exposeWarnings bool) *JudgeController {
	return &JudgeController{svc: svc, exposeWarnings: exposeWarnings}
}

// Register mounts the public routes on r.
func (h *JudgeController) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	api := r.Group("/api/v1")
	api.GET("/task/:id", h.GetTask)
	api.POST("/task/submit-answer", h.SubmitAnswer)
	api.GET("/judge/submissions/:id", h.GetStatus)
}

// RegisterAdmin mounts operator routes. r must not be reachable by clients.
func (h *JudgeController) RegisterAdmin(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	r.POST("/api/v1/judge/recover", h.Recover)
}

// GetTask returns the public description of one exercise.
func (h *JudgeController) GetTask(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid task id")
		return
	}
	ex, err := h.svc.GetExercise(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ex)
}

// SubmitAnswer grades the posted code against the exercise's hidden cases.
func (h *JudgeController) SubmitAnswer(c *gin.Context) {
	var req model.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	report, err := h.svc.SubmitAnswer(c.Request.Context(), service.SubmitRequest{
		ExerciseID: req.TaskID,
		Language:   req.Language,
		Code:       req.Code,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	msg, data := model.NewSubmitAnswerResponse(report, h.exposeWarnings)
	response.SuccessWithMessage(c, msg, data)
}

// GetStatus returns status for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.svc.GetStatus(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// Health reports readiness; a degraded judge answers 503.
func (h *JudgeController) Health(c *gin.Context) {
	health := h.svc.Health()
	if !health.Healthy {
		response.ErrorWithDetails(c, appErr.New(appErr.ServiceUnavailable), health)
		return
	}
	response.Success(c, health)
}

// Recover clears the degraded state.
func (h *JudgeController) Recover(c *gin.Context) {
	h.svc.Recover(c.Request.Context())
	response.Success(c, h.svc.Health())
}
