package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SummaryStatus is the term summary lifecycle: running -> done|failed.
type SummaryStatus string

const (
	SummaryStatusRunning SummaryStatus = "running"
	SummaryStatusDone    SummaryStatus = "done"
	SummaryStatusFailed  SummaryStatus = "failed"
)

// Terminal reports whether generation has finished.
func (s SummaryStatus) Terminal() bool {
	return s == SummaryStatusDone || s == SummaryStatusFailed
}

// TermSummary holds class statistics for a (class, term, session, year) tuple.
type TermSummary struct {
	ID             string           `db:"id" json:"id"`
	ClassID        string           `db:"class_id" json:"class_id"`
	TermID         string           `db:"term_id" json:"term_id"`
	SessionID      string           `db:"session_id" json:"session_id"`
	AcademicYearID string           `db:"academic_year_id" json:"academic_year_id"`
	Status         SummaryStatus    `db:"status" json:"status"`
	StudentCount   int              `db:"student_count" json:"student_count"`
	ClassAverage   *float64         `db:"class_average" json:"class_average,omitempty"`
	PassRate       *float64         `db:"pass_rate" json:"pass_rate,omitempty"`
	ArtifactPath   *string          `db:"artifact_path" json:"artifact_path,omitempty"`
	Artifact       *SummaryArtifact `db:"artifact" json:"artifact,omitempty"`
	ErrorMessage   *string          `db:"error_message" json:"error_message,omitempty"`
	GeneratedAt    *time.Time       `db:"generated_at" json:"generated_at,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// ClassTermFlag is the one-way marker that a class term summary was generated.
type ClassTermFlag struct {
	ClassID          string     `db:"class_id" json:"class_id"`
	TermID           string     `db:"term_id" json:"term_id"`
	SessionID        string     `db:"session_id" json:"session_id"`
	AcademicYearID   string     `db:"academic_year_id" json:"academic_year_id"`
	SummaryGenerated bool       `db:"summary_generated" json:"summary_generated"`
	GeneratedAt      *time.Time `db:"generated_at" json:"generated_at,omitempty"`
}

// SummaryArtifact is the per-student detail document handed to exporters.
type SummaryArtifact struct {
	Class       ArtifactRef         `json:"class"`
	Term        ArtifactRef         `json:"term"`
	Session     ArtifactRef         `json:"session"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Students    []StudentSummaryRow `json:"students"`
}

// ArtifactRef names an entity inside the artifact.
type ArtifactRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StudentSummaryRow is one student line of the artifact.
type StudentSummaryRow struct {
	Matricule       string             `json:"matricule"`
	FullName        string             `json:"fullName"`
	UnitAverages    []UnitAverageEntry `json:"unitAverages"`
	TermAverage     *float64           `json:"termAverage"`
	CreditsEarned   float64            `json:"creditsEarned"`
	CreditsRequired float64            `json:"creditsRequired"`
	Mention         string             `json:"mention"`
	Decision        string             `json:"decision"`
}

// UnitAverageEntry is a unit result inside a student row.
type UnitAverageEntry struct {
	UnitCode      string  `json:"unitCode"`
	UnitName      string  `json:"unitName"`
	Average       float64 `json:"average"`
	CreditsEarned float64 `json:"creditsEarned"`
}

// Value marshals the artifact to JSON for persistence.
func (a SummaryArtifact) Value() (driver.Value, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal summary artifact: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSONB into the artifact.
func (a *SummaryArtifact) Scan(value interface{}) error {
	if value == nil {
		*a = SummaryArtifact{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for SummaryArtifact", value)
	}
	if len(data) == 0 {
		*a = SummaryArtifact{}
		return nil
	}
	if err := json.Unmarshal(data, a); err != nil {
		return fmt.Errorf("unmarshal summary artifact: %w", err)
	}
	return nil
}
