package models

import "time"

// AcademicYear carries the per-year grading policy. It is loaded once at the edge and passed
// explicitly to every service call that depends on it.
type AcademicYear struct {
	ID                    string    `db:"id" json:"id"`
	Label                 string    `db:"label" json:"label"`
	StartDate             time.Time `db:"start_date" json:"start_date"`
	EndDate               time.Time `db:"end_date" json:"end_date"`
	DefaultDelayDays      *int      `db:"default_delay_days" json:"default_delay_days,omitempty"`
	AllowLateModification bool      `db:"allow_late_modification" json:"allow_late_modification"`
	IsActive              bool      `db:"is_active" json:"is_active"`
}

// Term is a half-year teaching period.
type Term struct {
	ID      string `db:"id" json:"id"`
	Code    string `db:"code" json:"code"`
	Name    string `db:"name" json:"name"`
	Ordinal int    `db:"ordinal" json:"ordinal"`
}

// SessionKind distinguishes the regular grading pass from the makeup pass.
type SessionKind string

const (
	SessionKindNormal SessionKind = "NORMAL"
	SessionKindMakeup SessionKind = "MAKEUP"
)

// ExamSession is a grading pass over a term within an academic year.
type ExamSession struct {
	ID             string      `db:"id" json:"id"`
	TermID         string      `db:"term_id" json:"term_id"`
	AcademicYearID string      `db:"academic_year_id" json:"academic_year_id"`
	Kind           SessionKind `db:"kind" json:"kind"`
	StartDate      time.Time   `db:"start_date" json:"start_date"`
	EndDate        time.Time   `db:"end_date" json:"end_date"`
}

// SummaryCandidate is a (class, term, session) whose session has ended but has no summary yet.
type SummaryCandidate struct {
	ClassID   string `db:"class_id" json:"class_id"`
	TermID    string `db:"term_id" json:"term_id"`
	SessionID string `db:"session_id" json:"session_id"`
}
