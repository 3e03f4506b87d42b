package models

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Only ACTIVE enrollments take part in grading.
const (
	EnrollmentStatusActive      EnrollmentStatus = "ACTIVE"
	EnrollmentStatusTransferred EnrollmentStatus = "TRANSFERRED"
	EnrollmentStatusLeft        EnrollmentStatus = "LEFT"
)

// Enrollment captures a student's registration to a class within an academic year.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	ClassID        string           `db:"class_id" json:"class_id"`
	AcademicYearID string           `db:"academic_year_id" json:"academic_year_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
}

// EnrolledStudent joins an active enrollment with the student identity.
type EnrolledStudent struct {
	StudentID string `db:"student_id" json:"student_id"`
	Matricule string `db:"matricule" json:"matricule"`
	FullName  string `db:"full_name" json:"full_name"`
}
