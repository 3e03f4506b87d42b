package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-records-api/internal/dto"
	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/internal/service"
	"github.com/noah-isme/sma-records-api/pkg/response"
)

type taskService interface {
	Schedule(ctx context.Context, req service.TaskRequest) (*models.ScheduledTask, bool, error)
	Get(ctx context.Context, id string) (*models.ScheduledTask, error)
	List(ctx context.Context, filter models.TaskFilter) ([]models.ScheduledTask, *models.Pagination, error)
}

// dueRunner runs the due queue under the process-wide run lock.
type dueRunner interface {
	RunDue(ctx context.Context, now time.Time) (*service.RunReport, error)
}

// TaskHandler exposes scheduled task administration.
type TaskHandler struct {
	tasks  taskService
	runner dueRunner
}

// NewTaskHandler constructs handler.
func NewTaskHandler(tasks taskService, runner dueRunner) *TaskHandler {
	return &TaskHandler{tasks: tasks, runner: runner}
}

// Schedule godoc
// @Summary Schedule a deferred task
// @Description Returns the existing task when one already targets the same kind and tuple.
// @Tags Tasks
// @Accept json
// @Produce json
// @Param payload body dto.ScheduleTaskRequest true "Task"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Router /tasks [post]
func (h *TaskHandler) Schedule(c *gin.Context) {
	_, year, err := requestScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ScheduleTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	taskReq := service.TaskRequest{
		Kind:           req.Kind,
		ClassID:        req.ClassID,
		TermID:         req.TermID,
		SessionID:      req.SessionID,
		AcademicYearID: year.ID,
	}
	if req.RunAt != nil {
		taskReq.RunAt = *req.RunAt
	}
	task, created, err := h.tasks.Schedule(c.Request.Context(), taskReq)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.JSON(c, status, dto.ScheduleTaskResponse{Task: task, Created: created}, nil)
}

// List godoc
// @Summary List scheduled tasks
// @Tags Tasks
// @Produce json
// @Param kind query string false "Task kind"
// @Param status query string false "Task status"
// @Param classId query string false "Class"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	filter := models.TaskFilter{
		Kind:    models.TaskKind(c.Query("kind")),
		Status:  models.TaskStatus(c.Query("status")),
		ClassID: c.Query("classId"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	tasks, pagination, err := h.tasks.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, pagination)
}

// Get godoc
// @Summary Get scheduled task
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// RunDue godoc
// @Summary Run every due task now
// @Description Fails with 409 while an automation tick or another run holds the run lock.
// @Tags Tasks
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /tasks/run-due [post]
func (h *TaskHandler) RunDue(c *gin.Context) {
	report, err := h.runner.RunDue(c.Request.Context(), time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
