package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/pkg/database"
)

// AssessmentRepository persists assessments and their submission state.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

const assessmentColumns = `id, component_id, class_id, teacher_id, kind_code, session_id, academic_year_id, title,
assessment_date, submission_deadline, submission_locked, submission_complete, modification_authorized,
modification_count, max_modifications, last_notified_at, created_at, updated_at`

// Create inserts a new assessment.
func (r *AssessmentRepository) Create(ctx context.Context, a *models.Assessment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	const query = `INSERT INTO assessments (id, component_id, class_id, teacher_id, kind_code, session_id, academic_year_id, title,
assessment_date, submission_deadline, submission_locked, submission_complete, modification_authorized,
modification_count, max_modifications, last_notified_at, created_at, updated_at)
VALUES (:id, :component_id, :class_id, :teacher_id, :kind_code, :session_id, :academic_year_id, :title,
:assessment_date, :submission_deadline, :submission_locked, :submission_complete, :modification_authorized,
:modification_count, :max_modifications, :last_notified_at, :created_at, :updated_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("create assessment: %w", err)
	}
	return nil
}

// FindByID returns an assessment by id.
func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`
	var a models.Assessment
	if err := database.Conn(ctx, r.db).GetContext(ctx, &a, query, id); err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return &a, nil
}

// List returns assessments matching the filter ordered by date.
func (r *AssessmentRepository) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("class_id", filter.ClassID)
	add("component_id", filter.ComponentID)
	add("session_id", filter.SessionID)
	add("teacher_id", filter.TeacherID)

	query := fmt.Sprintf("SELECT %s FROM assessments WHERE %s ORDER BY assessment_date ASC, id ASC", assessmentColumns, strings.Join(conditions, " AND "))
	var assessments []models.Assessment
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &assessments, query, args...); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return assessments, nil
}

// ListPending returns the year's assessments still awaiting submission, oldest deadline first.
func (r *AssessmentRepository) ListPending(ctx context.Context, yearID string) ([]models.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments
WHERE academic_year_id = $1 AND submission_complete = FALSE
ORDER BY submission_deadline ASC, id ASC`
	var assessments []models.Assessment
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &assessments, query, yearID); err != nil {
		return nil, fmt.Errorf("list pending assessments: %w", err)
	}
	return assessments, nil
}

// Lock sets the submission lock. It reports false when the row was already locked.
func (r *AssessmentRepository) Lock(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE assessments SET submission_locked = TRUE, updated_at = $2 WHERE id = $1 AND submission_locked = FALSE`
	return r.execAffected(ctx, "lock assessment", query, id, at)
}

// MarkNotified stamps the last deadline notification time.
func (r *AssessmentRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE assessments SET last_notified_at = $2 WHERE id = $1`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark assessment notified: %w", err)
	}
	return nil
}

// ExtendDeadline moves the deadline and reopens submission.
func (r *AssessmentRepository) ExtendDeadline(ctx context.Context, id string, deadline, at time.Time) error {
	const query = `UPDATE assessments SET submission_deadline = $2, submission_locked = FALSE, last_notified_at = NULL, updated_at = $3 WHERE id = $1`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, deadline, at); err != nil {
		return fmt.Errorf("extend assessment deadline: %w", err)
	}
	return nil
}

// SetModificationAuthorized toggles the per-assessment late modification flag.
func (r *AssessmentRepository) SetModificationAuthorized(ctx context.Context, id string, allowed bool, at time.Time) error {
	const query = `UPDATE assessments SET modification_authorized = $2, updated_at = $3 WHERE id = $1`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, allowed, at); err != nil {
		return fmt.Errorf("set modification authorized: %w", err)
	}
	return nil
}

// IncrementModifications bumps the post-completion edit counter while it stays within max (0 = unlimited).
// It reports false when the bound is already reached.
func (r *AssessmentRepository) IncrementModifications(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE assessments SET modification_count = modification_count + 1, updated_at = $2
WHERE id = $1 AND (max_modifications = 0 OR modification_count < max_modifications)`
	return r.execAffected(ctx, "increment modifications", query, id, at)
}

// MarkComplete flags the submission as complete.
func (r *AssessmentRepository) MarkComplete(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE assessments SET submission_complete = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark assessment complete: %w", err)
	}
	return nil
}

func (r *AssessmentRepository) execAffected(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows: %w", op, err)
	}
	return affected > 0, nil
}
