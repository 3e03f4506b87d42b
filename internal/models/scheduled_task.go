package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TaskKind is the closed set of deferred jobs the scheduler knows how to run.
type TaskKind string

const (
	TaskKindTermSummary     TaskKind = "recap_semestriel"
	TaskKindComponentEnroll TaskKind = "inscription_ec"
	TaskKindRecomputeClass  TaskKind = "recompute_class"
)

// TaskKinds lists every known kind.
var TaskKinds = []TaskKind{TaskKindTermSummary, TaskKindComponentEnroll, TaskKindRecomputeClass}

// Valid reports whether k is a known kind.
func (k TaskKind) Valid() bool {
	for _, known := range TaskKinds {
		if k == known {
			return true
		}
	}
	return false
}

// TaskStatus captures the scheduled task lifecycle: queued -> running -> done|failed.
type TaskStatus string

const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// ScheduledTask is a deduplicated deferred job, unique per kind and target tuple.
type ScheduledTask struct {
	ID             string      `db:"id" json:"id"`
	Kind           TaskKind    `db:"kind" json:"kind"`
	ClassID        string      `db:"class_id" json:"class_id"`
	TermID         string      `db:"term_id" json:"term_id"`
	SessionID      string      `db:"session_id" json:"session_id"`
	AcademicYearID string      `db:"academic_year_id" json:"academic_year_id"`
	Status         TaskStatus  `db:"status" json:"status"`
	ScheduledAt    time.Time   `db:"scheduled_at" json:"scheduled_at"`
	StartedAt      *time.Time  `db:"started_at" json:"started_at,omitempty"`
	FinishedAt     *time.Time  `db:"finished_at" json:"finished_at,omitempty"`
	Result         TaskPayload `db:"result" json:"result,omitempty"`
	ErrorMessage   *string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// TaskFilter scopes task listings.
type TaskFilter struct {
	Kind     TaskKind
	Status   TaskStatus
	ClassID  string
	Page     int
	PageSize int
}

// TaskPayload is the handler result persisted as JSONB.
type TaskPayload map[string]interface{}

// Value marshals the payload to JSON for persistence.
func (p TaskPayload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(map[string]interface{}(p))
	if err != nil {
		return nil, fmt.Errorf("marshal task payload: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB into the payload.
func (p *TaskPayload) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for TaskPayload", value)
	}
	if len(data) == 0 {
		*p = nil
		return nil
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal task payload: %w", err)
	}
	*p = out
	return nil
}
