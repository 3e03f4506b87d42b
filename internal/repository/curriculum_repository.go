package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/pkg/database"
)

// CurriculumRepository reads course units, components, kinds and weight configurations.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository constructs the repository.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// GetComponent returns a component by id.
func (r *CurriculumRepository) GetComponent(ctx context.Context, id string) (*models.Component, error) {
	const query = `SELECT id, unit_id, code, name, weight_in_unit FROM components WHERE id = $1`
	var component models.Component
	if err := database.Conn(ctx, r.db).GetContext(ctx, &component, query, id); err != nil {
		return nil, fmt.Errorf("get component: %w", err)
	}
	return &component, nil
}

// GetUnit returns a course unit by id.
func (r *CurriculumRepository) GetUnit(ctx context.Context, id string) (*models.CourseUnit, error) {
	const query = `SELECT id, code, name, level, term_id, credits, coefficient FROM course_units WHERE id = $1`
	var unit models.CourseUnit
	if err := database.Conn(ctx, r.db).GetContext(ctx, &unit, query, id); err != nil {
		return nil, fmt.Errorf("get course unit: %w", err)
	}
	return &unit, nil
}

// ListWeights returns the kind percentages configured for a component.
func (r *CurriculumRepository) ListWeights(ctx context.Context, componentID string) ([]models.AssessmentWeight, error) {
	const query = `SELECT id, component_id, kind_code, percentage FROM assessment_weights WHERE component_id = $1 ORDER BY kind_code`
	var weights []models.AssessmentWeight
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &weights, query, componentID); err != nil {
		return nil, fmt.Errorf("list assessment weights: %w", err)
	}
	return weights, nil
}

// ListComponents returns the components of a unit.
func (r *CurriculumRepository) ListComponents(ctx context.Context, unitID string) ([]models.Component, error) {
	const query = `SELECT id, unit_id, code, name, weight_in_unit FROM components WHERE unit_id = $1 ORDER BY code`
	var components []models.Component
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &components, query, unitID); err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	return components, nil
}

// ListUnits returns the course units of a level for a term.
func (r *CurriculumRepository) ListUnits(ctx context.Context, level, termID string) ([]models.CourseUnit, error) {
	const query = `SELECT id, code, name, level, term_id, credits, coefficient FROM course_units
WHERE level = $1 AND term_id = $2 ORDER BY code`
	var units []models.CourseUnit
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &units, query, level, termID); err != nil {
		return nil, fmt.Errorf("list course units: %w", err)
	}
	return units, nil
}

// GetKind returns an assessment kind by code.
func (r *CurriculumRepository) GetKind(ctx context.Context, code string) (*models.AssessmentKind, error) {
	const query = `SELECT code, name, default_delay_days FROM assessment_kinds WHERE code = $1`
	var kind models.AssessmentKind
	if err := database.Conn(ctx, r.db).GetContext(ctx, &kind, query, code); err != nil {
		return nil, fmt.Errorf("get assessment kind: %w", err)
	}
	return &kind, nil
}

// RegisterComponent links a student to a component for the year. It reports whether a new row was written.
func (r *CurriculumRepository) RegisterComponent(ctx context.Context, reg *models.ComponentRegistration) (bool, error) {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	const query = `INSERT INTO component_registrations (id, student_id, component_id, academic_year_id)
VALUES (:id, :student_id, :component_id, :academic_year_id)
ON CONFLICT (student_id, component_id, academic_year_id) DO NOTHING`
	res, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, reg)
	if err != nil {
		return false, fmt.Errorf("register component: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("register component rows: %w", err)
	}
	return affected > 0, nil
}
