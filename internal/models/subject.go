package models

// CourseUnit groups components into a credit-bearing unit for a level and term.
type CourseUnit struct {
	ID          string  `db:"id" json:"id"`
	Code        string  `db:"code" json:"code"`
	Name        string  `db:"name" json:"name"`
	Level       string  `db:"level" json:"level"`
	TermID      string  `db:"term_id" json:"term_id"`
	Credits     float64 `db:"credits" json:"credits"`
	Coefficient float64 `db:"coefficient" json:"coefficient"`
}

// Component is the smallest gradable teaching unit. WeightInUnit is a percentage of the unit.
type Component struct {
	ID           string  `db:"id" json:"id"`
	UnitID       string  `db:"unit_id" json:"unit_id"`
	Code         string  `db:"code" json:"code"`
	Name         string  `db:"name" json:"name"`
	WeightInUnit float64 `db:"weight_in_unit" json:"weight_in_unit"`
}

// AssessmentKind is a category of graded event, e.g. continuous assessment or final exam.
type AssessmentKind struct {
	Code             string `db:"code" json:"code"`
	Name             string `db:"name" json:"name"`
	DefaultDelayDays *int   `db:"default_delay_days" json:"default_delay_days,omitempty"`
}

// AssessmentWeight maps an assessment kind to its percentage within a component.
type AssessmentWeight struct {
	ID          string  `db:"id" json:"id"`
	ComponentID string  `db:"component_id" json:"component_id"`
	KindCode    string  `db:"kind_code" json:"kind_code"`
	Percentage  float64 `db:"percentage" json:"percentage"`
}

// ComponentRegistration records that a student follows a component in a year.
type ComponentRegistration struct {
	ID             string `db:"id" json:"id"`
	StudentID      string `db:"student_id" json:"student_id"`
	ComponentID    string `db:"component_id" json:"component_id"`
	AcademicYearID string `db:"academic_year_id" json:"academic_year_id"`
}
