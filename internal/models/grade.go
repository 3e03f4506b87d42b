package models

import "time"

// ComponentAverage is the derived average of one student in one component.
type ComponentAverage struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	ComponentID    string    `db:"component_id" json:"component_id"`
	SessionID      string    `db:"session_id" json:"session_id"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	Average        float64   `db:"average" json:"average"`
	Passed         bool      `db:"passed" json:"passed"`
	CalculatedAt   time.Time `db:"calculated_at" json:"calculated_at"`
}

// UnitAverage is the derived average of one student in one course unit.
type UnitAverage struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	UnitID         string    `db:"unit_id" json:"unit_id"`
	SessionID      string    `db:"session_id" json:"session_id"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	Average        float64   `db:"average" json:"average"`
	CreditsEarned  float64   `db:"credits_earned" json:"credits_earned"`
	Passed         bool      `db:"passed" json:"passed"`
	CalculatedAt   time.Time `db:"calculated_at" json:"calculated_at"`
}

// TermAverage is the overall average of one student for a class term.
type TermAverage struct {
	ID              string    `db:"id" json:"id"`
	StudentID       string    `db:"student_id" json:"student_id"`
	ClassID         string    `db:"class_id" json:"class_id"`
	TermID          string    `db:"term_id" json:"term_id"`
	SessionID       string    `db:"session_id" json:"session_id"`
	AcademicYearID  string    `db:"academic_year_id" json:"academic_year_id"`
	Average         float64   `db:"average" json:"average"`
	CreditsEarned   float64   `db:"credits_earned" json:"credits_earned"`
	CreditsRequired float64   `db:"credits_required" json:"credits_required"`
	CalculatedAt    time.Time `db:"calculated_at" json:"calculated_at"`
}

// AverageKey locates a derived average row for a student in a session and year.
type AverageKey struct {
	StudentID      string
	SessionID      string
	AcademicYearID string
}
