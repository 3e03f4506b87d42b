package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-records-api/internal/dto"
	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/internal/service"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
	"github.com/noah-isme/sma-records-api/pkg/response"
)

type summaryService interface {
	Generate(ctx context.Context, year models.AcademicYear, classID, termID, sessionID string) (*models.TermSummary, error)
	Get(ctx context.Context, id string) (*models.TermSummary, error)
	ListByClass(ctx context.Context, classID string) ([]models.TermSummary, error)
}

type artifactService interface {
	Links(summary *models.TermSummary) ([]service.ArtifactLink, error)
	ResolveDownload(token string) (*service.ArtifactDownload, error)
}

// SummaryHandler exposes term summaries and their artifacts.
type SummaryHandler struct {
	summaries summaryService
	artifacts artifactService
}

// NewSummaryHandler constructs handler.
func NewSummaryHandler(summaries summaryService, artifacts artifactService) *SummaryHandler {
	return &SummaryHandler{summaries: summaries, artifacts: artifacts}
}

// Generate godoc
// @Summary Generate a class term summary
// @Description Returns the stored summary when it was already generated.
// @Tags Summaries
// @Accept json
// @Produce json
// @Param payload body dto.GenerateSummaryRequest true "Target"
// @Success 200 {object} response.Envelope
// @Router /summaries [post]
func (h *SummaryHandler) Generate(c *gin.Context) {
	_, year, err := requestScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.GenerateSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	summary, err := h.summaries.Generate(c.Request.Context(), year, req.ClassID, req.TermID, req.SessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewSummaryResponse(*summary), nil)
}

// Get godoc
// @Summary Get a summary with its student detail
// @Tags Summaries
// @Produce json
// @Param id path string true "Summary ID"
// @Success 200 {object} response.Envelope
// @Router /summaries/{id} [get]
func (h *SummaryHandler) Get(c *gin.Context) {
	summary, err := h.summaries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ListByClass godoc
// @Summary List summaries of a class
// @Tags Summaries
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/summaries [get]
func (h *SummaryHandler) ListByClass(c *gin.Context) {
	summaries, err := h.summaries.ListByClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]dto.SummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, dto.NewSummaryResponse(s))
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Links godoc
// @Summary Signed download links for a generated summary
// @Tags Summaries
// @Produce json
// @Param id path string true "Summary ID"
// @Success 200 {object} response.Envelope
// @Router /summaries/{id}/links [get]
func (h *SummaryHandler) Links(c *gin.Context) {
	summary, err := h.summaries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	links, err := h.artifacts.Links(summary)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, links, nil)
}

// Download godoc
// @Summary Download a summary artifact via signed token
// @Tags Summaries
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /summaries/artifacts/{token} [get]
func (h *SummaryHandler) Download(c *gin.Context) {
	token := c.Param("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.artifacts.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck
	size := int64(-1)
	if info, err := download.File.Stat(); err == nil {
		size = info.Size()
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, size, download.ContentType, download.File, nil)
}
