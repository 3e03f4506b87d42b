package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/internal/service"
	"github.com/noah-isme/sma-records-api/pkg/response"
)

type scoreService interface {
	SubmitScores(ctx context.Context, year models.AcademicYear, assessmentID string, req service.BulkScoreRequest, actor string) (*service.BulkScoreResult, error)
	UpdateScore(ctx context.Context, year models.AcademicYear, scoreID string, req service.UpdateScoreRequest, actor string) (*models.Score, error)
	ListByAssessment(ctx context.Context, assessmentID string) ([]models.Score, error)
}

// ScoreHandler exposes grade entry endpoints.
type ScoreHandler struct {
	scores scoreService
}

// NewScoreHandler constructs handler.
func NewScoreHandler(scores scoreService) *ScoreHandler {
	return &ScoreHandler{scores: scores}
}

// List godoc
// @Summary List scores of an assessment
// @Tags Scores
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/scores [get]
func (h *ScoreHandler) List(c *gin.Context) {
	scores, err := h.scores.ListByAssessment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scores, nil)
}

// Submit godoc
// @Summary Submit scores for an assessment
// @Description Lines that fail validation are reported individually; the assessment is marked complete only when every line is stored.
// @Tags Scores
// @Accept json
// @Produce json
// @Param id path string true "Assessment ID"
// @Param payload body service.BulkScoreRequest true "Scores"
// @Success 200 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Router /assessments/{id}/scores [post]
func (h *ScoreHandler) Submit(c *gin.Context) {
	actor, year, err := requestScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.BulkScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	result, err := h.scores.SubmitScores(c.Request.Context(), year, c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Batch(c, result, len(result.Failures))
}

// Update godoc
// @Summary Change a single score
// @Tags Scores
// @Accept json
// @Produce json
// @Param id path string true "Score ID"
// @Param payload body service.UpdateScoreRequest true "New value"
// @Success 200 {object} response.Envelope
// @Router /scores/{id} [put]
func (h *ScoreHandler) Update(c *gin.Context) {
	actor, year, err := requestScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	score, err := h.scores.UpdateScore(c.Request.Context(), year, c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, score, nil)
}
