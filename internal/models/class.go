package models

// Class is a cohort of students following the same level curriculum.
type Class struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Level string `db:"level" json:"level"`
}
