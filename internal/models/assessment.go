package models

import "time"

// Assessment is a single graded event of a component for one class.
type Assessment struct {
	ID                     string     `db:"id" json:"id"`
	ComponentID            string     `db:"component_id" json:"component_id"`
	ClassID                string     `db:"class_id" json:"class_id"`
	TeacherID              string     `db:"teacher_id" json:"teacher_id"`
	KindCode               string     `db:"kind_code" json:"kind_code"`
	SessionID              string     `db:"session_id" json:"session_id"`
	AcademicYearID         string     `db:"academic_year_id" json:"academic_year_id"`
	Title                  string     `db:"title" json:"title"`
	AssessmentDate         time.Time  `db:"assessment_date" json:"assessment_date"`
	SubmissionDeadline     time.Time  `db:"submission_deadline" json:"submission_deadline"`
	SubmissionLocked       bool       `db:"submission_locked" json:"submission_locked"`
	SubmissionComplete     bool       `db:"submission_complete" json:"submission_complete"`
	ModificationAuthorized bool       `db:"modification_authorized" json:"modification_authorized"`
	ModificationCount      int        `db:"modification_count" json:"modification_count"`
	MaxModifications       int        `db:"max_modifications" json:"max_modifications"`
	LastNotifiedAt         *time.Time `db:"last_notified_at" json:"last_notified_at,omitempty"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// AssessmentFilter scopes assessment listings.
type AssessmentFilter struct {
	ClassID     string
	ComponentID string
	SessionID   string
	TeacherID   string
}

// Score is one student's result on one assessment. Value is nil when the student was absent.
type Score struct {
	ID               string     `db:"id" json:"id"`
	StudentID        string     `db:"student_id" json:"student_id"`
	AssessmentID     string     `db:"assessment_id" json:"assessment_id"`
	Value            *float64   `db:"value" json:"value,omitempty"`
	Absent           bool       `db:"absent" json:"absent"`
	AbsenceJustified bool       `db:"absence_justified" json:"absence_justified"`
	PreviousValue    *float64   `db:"previous_value" json:"previous_value,omitempty"`
	ModifiedAt       *time.Time `db:"modified_at" json:"modified_at,omitempty"`
	ModifiedBy       *string    `db:"modified_by" json:"modified_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// KindScore is a non-absent score tagged with its assessment kind, the engine's input row.
type KindScore struct {
	KindCode string  `db:"kind_code"`
	Value    float64 `db:"value"`
}

// ScoreAudit is an append-only record of a score change.
type ScoreAudit struct {
	ID        string    `db:"id" json:"id"`
	ScoreID   string    `db:"score_id" json:"score_id"`
	OldValue  *float64  `db:"old_value" json:"old_value,omitempty"`
	NewValue  *float64  `db:"new_value" json:"new_value,omitempty"`
	OldAbsent bool      `db:"old_absent" json:"old_absent"`
	NewAbsent bool      `db:"new_absent" json:"new_absent"`
	Actor     string    `db:"actor" json:"actor"`
	ChangedAt time.Time `db:"changed_at" json:"changed_at"`
}
