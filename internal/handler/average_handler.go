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

type averageService interface {
	ComputeComponentAverage(ctx context.Context, year models.AcademicYear, studentID, componentID, sessionID string) (*models.ComponentAverage, error)
	ComputeUnitAverage(ctx context.Context, year models.AcademicYear, studentID, unitID, sessionID string) (*models.UnitAverage, error)
	ComputeTermAverage(ctx context.Context, year models.AcademicYear, studentID, classID, termID, sessionID string) (*models.TermAverage, error)
	RecomputeClass(ctx context.Context, year models.AcademicYear, classID, termID, sessionID string) (*service.RecomputeResult, error)
}

// AverageHandler exposes on-demand average computation.
type AverageHandler struct {
	engine averageService
}

// NewAverageHandler constructs handler.
func NewAverageHandler(engine averageService) *AverageHandler {
	return &AverageHandler{engine: engine}
}

// Component godoc
// @Summary Compute a component average
// @Tags Averages
// @Accept json
// @Produce json
// @Param payload body dto.ComponentAverageRequest true "Target"
// @Success 200 {object} response.Envelope
// @Router /averages/component [post]
func (h *AverageHandler) Component(c *gin.Context) {
	_, year, err := requestScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ComponentAverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	avg, err := h.engine.ComputeComponentAverage(c.Request.Context(), year, req.StudentID, req.ComponentID, req.SessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if avg == nil {
		response.JSON(c, http.StatusOK, dto.AverageResponse{}, nil)
		return
	}
	response.JSON(c, http.StatusOK, dto.AverageResponse{Computable: true, Average: avg}, nil)
}

// Unit godoc
// @Summary Compute a course unit average
// @Tags Averages
// @Accept json
// @Produce json
// @Param payload body dto.UnitAverageRequest true "Target"
// @Success 200 {object} response.Envelope
// @Router /averages/unit [post]
func (h *AverageHandler) Unit(c *gin.Context) {
	_, year, err := requestScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UnitAverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	avg, err := h.engine.ComputeUnitAverage(c.Request.Context(), year, req.StudentID, req.UnitID, req.SessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if avg == nil {
		response.JSON(c, http.StatusOK, dto.AverageResponse{}, nil)
		return
	}
	response.JSON(c, http.StatusOK, dto.AverageResponse{Computable: true, Average: avg}, nil)
}

// Term godoc
// @Summary Compute a term average
// @Tags Averages
// @Accept json
// @Produce json
// @Param payload body dto.TermAverageRequest true "Target"
// @Success 200 {object} response.Envelope
// @Router /averages/term [post]
func (h *AverageHandler) Term(c *gin.Context) {
	_, year, err := requestScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.TermAverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	avg, err := h.engine.ComputeTermAverage(c.Request.Context(), year, req.StudentID, req.ClassID, req.TermID, req.SessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if avg == nil {
		response.JSON(c, http.StatusOK, dto.AverageResponse{}, nil)
		return
	}
	response.JSON(c, http.StatusOK, dto.AverageResponse{Computable: true, Average: avg}, nil)
}

// RecomputeClass godoc
// @Summary Recompute every average of a class
// @Tags Averages
// @Accept json
// @Produce json
// @Param payload body dto.RecomputeClassRequest true "Target"
// @Success 200 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Router /averages/recompute [post]
func (h *AverageHandler) RecomputeClass(c *gin.Context) {
	_, year, err := requestScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RecomputeClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	result, err := h.engine.RecomputeClass(c.Request.Context(), year, req.ClassID, req.TermID, req.SessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Batch(c, result, len(result.Errors))
}
