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

// ScoreRepository persists raw scores and their audit trail.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository constructs the repository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

const scoreColumns = `id, student_id, assessment_id, value, absent, absence_justified, previous_value, modified_at, modified_by, created_at`

// Upsert writes a score for (student, assessment). An existing row keeps its id and creation time,
// moves its value into previous_value and gets a modified timestamp.
func (r *ScoreRepository) Upsert(ctx context.Context, score *models.Score) error {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO scores (id, student_id, assessment_id, value, absent, absence_justified, modified_at, modified_by, created_at)
VALUES (:id, :student_id, :assessment_id, :value, :absent, :absence_justified, :modified_at, :modified_by, :created_at)
ON CONFLICT (student_id, assessment_id)
DO UPDATE SET previous_value = scores.value, value = EXCLUDED.value, absent = EXCLUDED.absent,
absence_justified = EXCLUDED.absence_justified, modified_at = COALESCE(EXCLUDED.modified_at, NOW()),
modified_by = EXCLUDED.modified_by
RETURNING ` + scoreColumns
	rows, err := sqlx.NamedQueryContext(ctx, database.Conn(ctx, r.db), query, score)
	if err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	if rows.Next() {
		if err := rows.StructScan(score); err != nil {
			return fmt.Errorf("scan upserted score: %w", err)
		}
	}
	return rows.Err()
}

// FindByID returns a score by id.
func (r *ScoreRepository) FindByID(ctx context.Context, id string) (*models.Score, error) {
	query := `SELECT ` + scoreColumns + ` FROM scores WHERE id = $1`
	var score models.Score
	if err := database.Conn(ctx, r.db).GetContext(ctx, &score, query, id); err != nil {
		return nil, fmt.Errorf("get score: %w", err)
	}
	return &score, nil
}

// ListByAssessment returns all scores of an assessment.
func (r *ScoreRepository) ListByAssessment(ctx context.Context, assessmentID string) ([]models.Score, error) {
	query := `SELECT ` + scoreColumns + ` FROM scores WHERE assessment_id = $1 ORDER BY student_id`
	var scores []models.Score
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &scores, query, assessmentID); err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	return scores, nil
}

// Update stores the new value, keeping the prior one in previous_value.
func (r *ScoreRepository) Update(ctx context.Context, score *models.Score) error {
	const query = `UPDATE scores SET value = :value, absent = :absent, absence_justified = :absence_justified,
previous_value = :previous_value, modified_at = :modified_at, modified_by = :modified_by WHERE id = :id`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, score); err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	return nil
}

// AppendAudit records a score change.
func (r *ScoreRepository) AppendAudit(ctx context.Context, audit *models.ScoreAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.ChangedAt.IsZero() {
		audit.ChangedAt = time.Now().UTC()
	}
	const query = `INSERT INTO score_audits (id, score_id, old_value, new_value, old_absent, new_absent, actor, changed_at)
VALUES (:id, :score_id, :old_value, :new_value, :old_absent, :new_absent, :actor, :changed_at)`
	if _, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, audit); err != nil {
		return fmt.Errorf("append score audit: %w", err)
	}
	return nil
}

// ListAudits returns the audit trail of a score, newest first.
func (r *ScoreRepository) ListAudits(ctx context.Context, scoreID string) ([]models.ScoreAudit, error) {
	const query = `SELECT id, score_id, old_value, new_value, old_absent, new_absent, actor, changed_at
FROM score_audits WHERE score_id = $1 ORDER BY changed_at DESC`
	var audits []models.ScoreAudit
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &audits, query, scoreID); err != nil {
		return nil, fmt.Errorf("list score audits: %w", err)
	}
	return audits, nil
}

// ListKindScores returns the student's non-absent scores for a component in a session, tagged by kind.
func (r *ScoreRepository) ListKindScores(ctx context.Context, key models.AverageKey, componentID string) ([]models.KindScore, error) {
	const query = `SELECT a.kind_code, s.value
FROM scores s JOIN assessments a ON a.id = s.assessment_id
WHERE s.student_id = $1 AND a.component_id = $2 AND a.session_id = $3 AND a.academic_year_id = $4
	AND s.absent = FALSE AND s.value IS NOT NULL
ORDER BY a.kind_code, a.assessment_date`
	var scores []models.KindScore
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &scores, query, key.StudentID, componentID, key.SessionID, key.AcademicYearID); err != nil {
		return nil, fmt.Errorf("list kind scores: %w", err)
	}
	return scores, nil
}
