package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/pkg/database"
)

// EnrollmentRepository reads class membership.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new repository instance.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListActiveStudents returns the students actively enrolled in the class for the year, ordered by name.
func (r *EnrollmentRepository) ListActiveStudents(ctx context.Context, classID, yearID string) ([]models.EnrolledStudent, error) {
	const query = `SELECT s.id AS student_id, s.matricule, s.full_name
FROM enrollments e JOIN students s ON s.id = e.student_id
WHERE e.class_id = $1 AND e.academic_year_id = $2 AND e.status = $3
ORDER BY s.full_name ASC, s.matricule ASC`
	var students []models.EnrolledStudent
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &students, query, classID, yearID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}

// FindActive returns the active enrollment of a student in a class for the year.
func (r *EnrollmentRepository) FindActive(ctx context.Context, studentID, classID, yearID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, academic_year_id, status FROM enrollments
WHERE student_id = $1 AND class_id = $2 AND academic_year_id = $3 AND status = $4`
	var enrollment models.Enrollment
	if err := database.Conn(ctx, r.db).GetContext(ctx, &enrollment, query, studentID, classID, yearID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("get active enrollment: %w", err)
	}
	return &enrollment, nil
}
