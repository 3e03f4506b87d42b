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

// SummaryRepository persists term summaries and the class "summary generated" flag.
type SummaryRepository struct {
	db *sqlx.DB
}

// NewSummaryRepository constructs the repository.
func NewSummaryRepository(db *sqlx.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

const summaryColumns = `id, class_id, term_id, session_id, academic_year_id, status, student_count, class_average, pass_rate,
artifact_path, artifact, error_message, generated_at, created_at`

// GetOrCreate returns the summary for the tuple, inserting a running row when none exists.
// The boolean reports whether the row was created by this call.
func (r *SummaryRepository) GetOrCreate(ctx context.Context, classID, termID, sessionID, yearID string) (*models.TermSummary, bool, error) {
	row := &models.TermSummary{
		ID:             uuid.NewString(),
		ClassID:        classID,
		TermID:         termID,
		SessionID:      sessionID,
		AcademicYearID: yearID,
		Status:         models.SummaryStatusRunning,
		CreatedAt:      time.Now().UTC(),
	}
	const insert = `INSERT INTO term_summaries (id, class_id, term_id, session_id, academic_year_id, status, student_count, created_at)
VALUES (:id, :class_id, :term_id, :session_id, :academic_year_id, :status, :student_count, :created_at)
ON CONFLICT (class_id, term_id, session_id, academic_year_id) DO NOTHING`
	res, err := database.Conn(ctx, r.db).NamedExecContext(ctx, insert, row)
	if err != nil {
		return nil, false, fmt.Errorf("create term summary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create term summary rows: %w", err)
	}
	if affected > 0 {
		return row, true, nil
	}
	existing, err := r.FindByTuple(ctx, classID, termID, sessionID, yearID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindByTuple returns the summary for a (class, term, session, year) tuple.
func (r *SummaryRepository) FindByTuple(ctx context.Context, classID, termID, sessionID, yearID string) (*models.TermSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM term_summaries
WHERE class_id = $1 AND term_id = $2 AND session_id = $3 AND academic_year_id = $4`
	var summary models.TermSummary
	if err := database.Conn(ctx, r.db).GetContext(ctx, &summary, query, classID, termID, sessionID, yearID); err != nil {
		return nil, fmt.Errorf("get term summary: %w", err)
	}
	return &summary, nil
}

// GetByID returns a summary by id.
func (r *SummaryRepository) GetByID(ctx context.Context, id string) (*models.TermSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM term_summaries WHERE id = $1`
	var summary models.TermSummary
	if err := database.Conn(ctx, r.db).GetContext(ctx, &summary, query, id); err != nil {
		return nil, fmt.Errorf("get term summary: %w", err)
	}
	return &summary, nil
}

// ListByClass returns the summaries of a class, newest first.
func (r *SummaryRepository) ListByClass(ctx context.Context, classID string) ([]models.TermSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM term_summaries WHERE class_id = $1 ORDER BY created_at DESC`
	var summaries []models.TermSummary
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &summaries, query, classID); err != nil {
		return nil, fmt.Errorf("list term summaries: %w", err)
	}
	return summaries, nil
}

// UpdateSummaryParams defines the mutable fields.
type UpdateSummaryParams struct {
	Status       *models.SummaryStatus
	StudentCount *int
	ClassAverage *float64
	PassRate     *float64
	ArtifactPath *string
	Artifact     *models.SummaryArtifact
	ErrorMessage *string
	GeneratedAt  *time.Time
}

// Update persists the provided changes for a summary row.
func (r *SummaryRepository) Update(ctx context.Context, id string, params UpdateSummaryParams) error {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.StudentCount != nil {
		add("student_count", *params.StudentCount)
	}
	if params.ClassAverage != nil {
		add("class_average", *params.ClassAverage)
	}
	if params.PassRate != nil {
		add("pass_rate", *params.PassRate)
	}
	if params.ArtifactPath != nil {
		add("artifact_path", *params.ArtifactPath)
	}
	if params.Artifact != nil {
		add("artifact", *params.Artifact)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.GeneratedAt != nil {
		add("generated_at", *params.GeneratedAt)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE term_summaries SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update term summary: %w", err)
	}
	return nil
}

// MarkGenerated sets the one-way summary flag for the tuple.
func (r *SummaryRepository) MarkGenerated(ctx context.Context, classID, termID, sessionID, yearID string, at time.Time) error {
	const query = `INSERT INTO class_term_flags (class_id, term_id, session_id, academic_year_id, summary_generated, generated_at)
VALUES ($1, $2, $3, $4, TRUE, $5)
ON CONFLICT (class_id, term_id, session_id, academic_year_id)
DO UPDATE SET summary_generated = TRUE, generated_at = COALESCE(class_term_flags.generated_at, EXCLUDED.generated_at)`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, classID, termID, sessionID, yearID, at); err != nil {
		return fmt.Errorf("mark class term summary generated: %w", err)
	}
	return nil
}
