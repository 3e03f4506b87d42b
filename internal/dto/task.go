package dto

import (
	"time"

	"github.com/noah-isme/sma-records-api/internal/models"
)

// ScheduleTaskRequest captures POST /tasks payload.
type ScheduleTaskRequest struct {
	Kind      models.TaskKind `json:"kind" binding:"required"`
	ClassID   string          `json:"classId" binding:"required"`
	TermID    string          `json:"termId" binding:"required"`
	SessionID string          `json:"sessionId" binding:"required"`
	RunAt     *time.Time      `json:"runAt,omitempty"`
}

// ScheduleTaskResponse reports whether the task was newly created.
type ScheduleTaskResponse struct {
	Task    *models.ScheduledTask `json:"task"`
	Created bool                  `json:"created"`
}
