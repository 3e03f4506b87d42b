package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/pkg/database"
)

// AcademicRepository reads the academic calendar: years, terms, exam sessions and classes.
type AcademicRepository struct {
	db *sqlx.DB
}

// NewAcademicRepository constructs the repository.
func NewAcademicRepository(db *sqlx.DB) *AcademicRepository {
	return &AcademicRepository{db: db}
}

const academicYearColumns = `id, label, start_date, end_date, default_delay_days, allow_late_modification, is_active`

// FindYear returns an academic year by id.
func (r *AcademicRepository) FindYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	query := `SELECT ` + academicYearColumns + ` FROM academic_years WHERE id = $1`
	var year models.AcademicYear
	if err := database.Conn(ctx, r.db).GetContext(ctx, &year, query, id); err != nil {
		return nil, fmt.Errorf("get academic year: %w", err)
	}
	return &year, nil
}

// ActiveYear returns the academic year flagged active.
func (r *AcademicRepository) ActiveYear(ctx context.Context) (*models.AcademicYear, error) {
	query := `SELECT ` + academicYearColumns + ` FROM academic_years WHERE is_active = TRUE ORDER BY start_date DESC LIMIT 1`
	var year models.AcademicYear
	if err := database.Conn(ctx, r.db).GetContext(ctx, &year, query); err != nil {
		return nil, fmt.Errorf("get active academic year: %w", err)
	}
	return &year, nil
}

// FindTerm returns a term by id.
func (r *AcademicRepository) FindTerm(ctx context.Context, id string) (*models.Term, error) {
	const query = `SELECT id, code, name, ordinal FROM terms WHERE id = $1`
	var term models.Term
	if err := database.Conn(ctx, r.db).GetContext(ctx, &term, query, id); err != nil {
		return nil, fmt.Errorf("get term: %w", err)
	}
	return &term, nil
}

// FindSession returns an exam session by id.
func (r *AcademicRepository) FindSession(ctx context.Context, id string) (*models.ExamSession, error) {
	const query = `SELECT id, term_id, academic_year_id, kind, start_date, end_date FROM exam_sessions WHERE id = $1`
	var session models.ExamSession
	if err := database.Conn(ctx, r.db).GetContext(ctx, &session, query, id); err != nil {
		return nil, fmt.Errorf("get exam session: %w", err)
	}
	return &session, nil
}

// FindClass returns a class by id.
func (r *AcademicRepository) FindClass(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, level FROM classes WHERE id = $1`
	var class models.Class
	if err := database.Conn(ctx, r.db).GetContext(ctx, &class, query, id); err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	return &class, nil
}

// ListSummaryCandidates returns every (class, term, session) of the year whose session ended
// before now and whose summary flag is not set. Only classes with active enrollments count.
func (r *AcademicRepository) ListSummaryCandidates(ctx context.Context, yearID string, now time.Time) ([]models.SummaryCandidate, error) {
	const query = `SELECT DISTINCT e.class_id, s.term_id, s.id AS session_id
FROM exam_sessions s
JOIN enrollments e ON e.academic_year_id = s.academic_year_id AND e.status = 'ACTIVE'
LEFT JOIN class_term_flags f ON f.class_id = e.class_id AND f.term_id = s.term_id
	AND f.session_id = s.id AND f.academic_year_id = s.academic_year_id
WHERE s.academic_year_id = $1 AND s.end_date < $2 AND COALESCE(f.summary_generated, FALSE) = FALSE
ORDER BY e.class_id, s.term_id, session_id`
	var candidates []models.SummaryCandidate
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &candidates, query, yearID, now); err != nil {
		return nil, fmt.Errorf("list summary candidates: %w", err)
	}
	return candidates, nil
}
