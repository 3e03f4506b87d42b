package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-records-api/internal/dto"
	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/internal/service"
	"github.com/noah-isme/sma-records-api/pkg/response"
)

type assessmentService interface {
	Create(ctx context.Context, year models.AcademicYear, req service.CreateAssessmentRequest) (*models.Assessment, error)
	Get(ctx context.Context, id string) (*models.Assessment, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error)
}

type deadlineService interface {
	ExtendDeadline(ctx context.Context, year models.AcademicYear, assessmentID string, extraDays int, actor string) (*models.Assessment, error)
	AuthorizeLateModification(ctx context.Context, year models.AcademicYear, assessmentID string, allowed bool, actor string) (*models.Assessment, error)
}

// AssessmentHandler exposes assessment and deadline endpoints.
type AssessmentHandler struct {
	assessments assessmentService
	deadlines   deadlineService
}

// NewAssessmentHandler constructs handler.
func NewAssessmentHandler(assessments assessmentService, deadlines deadlineService) *AssessmentHandler {
	return &AssessmentHandler{assessments: assessments, deadlines: deadlines}
}

// Create godoc
// @Summary Declare an assessment
// @Tags Assessments
// @Accept json
// @Produce json
// @Param payload body service.CreateAssessmentRequest true "Assessment payload"
// @Success 201 {object} response.Envelope
// @Router /assessments [post]
func (h *AssessmentHandler) Create(c *gin.Context) {
	_, year, err := requestScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.CreateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	assessment, err := h.assessments.Create(c.Request.Context(), year, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assessment)
}

// List godoc
// @Summary List assessments
// @Tags Assessments
// @Produce json
// @Param classId query string false "Filter by class"
// @Param componentId query string false "Filter by component"
// @Param sessionId query string false "Filter by session"
// @Param teacherId query string false "Filter by grader"
// @Success 200 {object} response.Envelope
// @Router /assessments [get]
func (h *AssessmentHandler) List(c *gin.Context) {
	filter := models.AssessmentFilter{
		ClassID:     c.Query("classId"),
		ComponentID: c.Query("componentId"),
		SessionID:   c.Query("sessionId"),
		TeacherID:   c.Query("teacherId"),
	}
	items, err := h.assessments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get assessment
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) Get(c *gin.Context) {
	assessment, err := h.assessments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// ExtendDeadline godoc
// @Summary Extend the submission deadline
// @Tags Assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.ExtendDeadlineRequest true "Extension"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/extend-deadline [post]
func (h *AssessmentHandler) ExtendDeadline(c *gin.Context) {
	actor, year, err := requestScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ExtendDeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	assessment, err := h.deadlines.ExtendDeadline(c.Request.Context(), year, c.Param("id"), req.ExtraDays, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// AuthorizeModification godoc
// @Summary Allow or forbid post-completion score changes
// @Tags Assessments
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body dto.AuthorizeModificationRequest true "Authorization"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/authorize-modification [post]
func (h *AssessmentHandler) AuthorizeModification(c *gin.Context) {
	actor, year, err := requestScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.AuthorizeModificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	assessment, err := h.deadlines.AuthorizeLateModification(c.Request.Context(), year, c.Param("id"), *req.Allowed, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}
