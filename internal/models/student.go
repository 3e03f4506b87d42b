package models

// Student represents a learner registered in the institution.
type Student struct {
	ID        string `db:"id" json:"id"`
	Matricule string `db:"matricule" json:"matricule"`
	FullName  string `db:"full_name" json:"full_name"`
}
