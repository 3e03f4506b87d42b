package dto

import "github.com/noah-isme/sma-records-api/internal/models"

// GenerateSummaryRequest captures POST /summaries payload.
type GenerateSummaryRequest struct {
	ClassID   string `json:"classId" binding:"required"`
	TermID    string `json:"termId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

// SummaryResponse is a summary without its embedded artifact document.
type SummaryResponse struct {
	ID           string               `json:"id"`
	ClassID      string               `json:"classId"`
	TermID       string               `json:"termId"`
	SessionID    string               `json:"sessionId"`
	Status       models.SummaryStatus `json:"status"`
	StudentCount int                  `json:"studentCount"`
	ClassAverage *float64             `json:"classAverage,omitempty"`
	PassRate     *float64             `json:"passRate,omitempty"`
	Error        *string              `json:"error,omitempty"`
}

// NewSummaryResponse flattens a summary row.
func NewSummaryResponse(s models.TermSummary) SummaryResponse {
	return SummaryResponse{
		ID:           s.ID,
		ClassID:      s.ClassID,
		TermID:       s.TermID,
		SessionID:    s.SessionID,
		Status:       s.Status,
		StudentCount: s.StudentCount,
		ClassAverage: s.ClassAverage,
		PassRate:     s.PassRate,
		Error:        s.ErrorMessage,
	}
}
