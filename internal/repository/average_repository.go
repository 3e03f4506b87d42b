package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/pkg/database"
)

// AverageRepository persists the three levels of derived averages. Every write is an upsert on the
// natural key so recomputation never duplicates rows.
type AverageRepository struct {
	db *sqlx.DB
}

// NewAverageRepository constructs the repository.
func NewAverageRepository(db *sqlx.DB) *AverageRepository {
	return &AverageRepository{db: db}
}

// UpsertComponent writes a component average.
func (r *AverageRepository) UpsertComponent(ctx context.Context, avg *models.ComponentAverage) error {
	if avg.ID == "" {
		avg.ID = uuid.NewString()
	}
	if avg.CalculatedAt.IsZero() {
		avg.CalculatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO component_averages (id, student_id, component_id, session_id, academic_year_id, average, passed, calculated_at)
VALUES (:id, :student_id, :component_id, :session_id, :academic_year_id, :average, :passed, :calculated_at)
ON CONFLICT (student_id, component_id, session_id, academic_year_id)
DO UPDATE SET average = EXCLUDED.average, passed = EXCLUDED.passed, calculated_at = EXCLUDED.calculated_at`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, avg); err != nil {
		return fmt.Errorf("upsert component average: %w", err)
	}
	return nil
}

// UpsertUnit writes a course unit average.
func (r *AverageRepository) UpsertUnit(ctx context.Context, avg *models.UnitAverage) error {
	if avg.ID == "" {
		avg.ID = uuid.NewString()
	}
	if avg.CalculatedAt.IsZero() {
		avg.CalculatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO unit_averages (id, student_id, unit_id, session_id, academic_year_id, average, credits_earned, passed, calculated_at)
VALUES (:id, :student_id, :unit_id, :session_id, :academic_year_id, :average, :credits_earned, :passed, :calculated_at)
ON CONFLICT (student_id, unit_id, session_id, academic_year_id)
DO UPDATE SET average = EXCLUDED.average, credits_earned = EXCLUDED.credits_earned, passed = EXCLUDED.passed, calculated_at = EXCLUDED.calculated_at`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, avg); err != nil {
		return fmt.Errorf("upsert unit average: %w", err)
	}
	return nil
}

// UpsertTerm writes a term average.
func (r *AverageRepository) UpsertTerm(ctx context.Context, avg *models.TermAverage) error {
	if avg.ID == "" {
		avg.ID = uuid.NewString()
	}
	if avg.CalculatedAt.IsZero() {
		avg.CalculatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO term_averages (id, student_id, class_id, term_id, session_id, academic_year_id, average, credits_earned, credits_required, calculated_at)
VALUES (:id, :student_id, :class_id, :term_id, :session_id, :academic_year_id, :average, :credits_earned, :credits_required, :calculated_at)
ON CONFLICT (student_id, class_id, term_id, session_id, academic_year_id)
DO UPDATE SET average = EXCLUDED.average, credits_earned = EXCLUDED.credits_earned, credits_required = EXCLUDED.credits_required, calculated_at = EXCLUDED.calculated_at`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, avg); err != nil {
		return fmt.Errorf("upsert term average: %w", err)
	}
	return nil
}

// FindComponent returns a stored component average. sql.ErrNoRows is passed through wrapped.
func (r *AverageRepository) FindComponent(ctx context.Context, key models.AverageKey, componentID string) (*models.ComponentAverage, error) {
	const query = `SELECT id, student_id, component_id, session_id, academic_year_id, average, passed, calculated_at
FROM component_averages WHERE student_id = $1 AND component_id = $2 AND session_id = $3 AND academic_year_id = $4`
	var avg models.ComponentAverage
	if err := database.Conn(ctx, r.db).GetContext(ctx, &avg, query, key.StudentID, componentID, key.SessionID, key.AcademicYearID); err != nil {
		return nil, fmt.Errorf("get component average: %w", err)
	}
	return &avg, nil
}

// FindUnit returns a stored unit average.
func (r *AverageRepository) FindUnit(ctx context.Context, key models.AverageKey, unitID string) (*models.UnitAverage, error) {
	const query = `SELECT id, student_id, unit_id, session_id, academic_year_id, average, credits_earned, passed, calculated_at
FROM unit_averages WHERE student_id = $1 AND unit_id = $2 AND session_id = $3 AND academic_year_id = $4`
	var avg models.UnitAverage
	if err := database.Conn(ctx, r.db).GetContext(ctx, &avg, query, key.StudentID, unitID, key.SessionID, key.AcademicYearID); err != nil {
		return nil, fmt.Errorf("get unit average: %w", err)
	}
	return &avg, nil
}

// FindTerm returns a stored term average.
func (r *AverageRepository) FindTerm(ctx context.Context, key models.AverageKey, classID, termID string) (*models.TermAverage, error) {
	const query = `SELECT id, student_id, class_id, term_id, session_id, academic_year_id, average, credits_earned, credits_required, calculated_at
FROM term_averages WHERE student_id = $1 AND class_id = $2 AND term_id = $3 AND session_id = $4 AND academic_year_id = $5`
	var avg models.TermAverage
	if err := database.Conn(ctx, r.db).GetContext(ctx, &avg, query, key.StudentID, classID, termID, key.SessionID, key.AcademicYearID); err != nil {
		return nil, fmt.Errorf("get term average: %w", err)
	}
	return &avg, nil
}

// DeleteComponent removes the stored component average, if any.
func (r *AverageRepository) DeleteComponent(ctx context.Context, key models.AverageKey, componentID string) error {
	const query = `DELETE FROM component_averages WHERE student_id = $1 AND component_id = $2 AND session_id = $3 AND academic_year_id = $4`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, key.StudentID, componentID, key.SessionID, key.AcademicYearID); err != nil {
		return fmt.Errorf("delete component average: %w", err)
	}
	return nil
}

// DeleteUnit removes the stored unit average, if any.
func (r *AverageRepository) DeleteUnit(ctx context.Context, key models.AverageKey, unitID string) error {
	const query = `DELETE FROM unit_averages WHERE student_id = $1 AND unit_id = $2 AND session_id = $3 AND academic_year_id = $4`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, key.StudentID, unitID, key.SessionID, key.AcademicYearID); err != nil {
		return fmt.Errorf("delete unit average: %w", err)
	}
	return nil
}

// DeleteTerm removes the stored term average, if any.
func (r *AverageRepository) DeleteTerm(ctx context.Context, key models.AverageKey, classID, termID string) error {
	const query = `DELETE FROM term_averages WHERE student_id = $1 AND class_id = $2 AND term_id = $3 AND session_id = $4 AND academic_year_id = $5`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, key.StudentID, classID, termID, key.SessionID, key.AcademicYearID); err != nil {
		return fmt.Errorf("delete term average: %w", err)
	}
	return nil
}

// ListTermAverages returns every stored term average for a class term tuple.
func (r *AverageRepository) ListTermAverages(ctx context.Context, classID, termID, sessionID, yearID string) ([]models.TermAverage, error) {
	const query = `SELECT id, student_id, class_id, term_id, session_id, academic_year_id, average, credits_earned, credits_required, calculated_at
FROM term_averages WHERE class_id = $1 AND term_id = $2 AND session_id = $3 AND academic_year_id = $4 ORDER BY student_id`
	var avgs []models.TermAverage
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &avgs, query, classID, termID, sessionID, yearID); err != nil {
		return nil, fmt.Errorf("list term averages: %w", err)
	}
	return avgs, nil
}
