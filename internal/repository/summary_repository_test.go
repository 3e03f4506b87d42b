package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-records-api/internal/models"
)

func newSummaryRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var summaryRowColumns = []string{"id", "class_id", "term_id", "session_id", "academic_year_id", "status", "student_count", "class_average",
	"pass_rate", "artifact_path", "artifact", "error_message", "generated_at", "created_at"}

func TestSummaryRepositoryGetOrCreate(t *testing.T) {
	db, mock, cleanup := newSummaryRepoMock(t)
	defer cleanup()
	repo := NewSummaryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO term_summaries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	created, fresh, err := repo.GetOrCreate(context.Background(), "class-1", "T1", "sess-1", "year-1")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, models.SummaryStatusRunning, created.Status)
	assert.NotEmpty(t, created.ID)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO term_summaries")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows(summaryRowColumns).
		AddRow("sum-1", "class-1", "T1", "sess-1", "year-1", "done", 24, 11.5, 75.0, "summaries/sum-1", nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM term_summaries\nWHERE class_id = $1 AND term_id = $2 AND session_id = $3 AND academic_year_id = $4")).
		WithArgs("class-1", "T1", "sess-1", "year-1").
		WillReturnRows(rows)
	existing, fresh, err := repo.GetOrCreate(context.Background(), "class-1", "T1", "sess-1", "year-1")
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, "sum-1", existing.ID)
	assert.Equal(t, models.SummaryStatusDone, existing.Status)
	require.NotNil(t, existing.ClassAverage)
	assert.Equal(t, 11.5, *existing.ClassAverage)
	assert.Nil(t, existing.Artifact)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryRepositoryUpdateBuildsSetClause(t *testing.T) {
	db, mock, cleanup := newSummaryRepoMock(t)
	defer cleanup()
	repo := NewSummaryRepository(db)

	require.NoError(t, repo.Update(context.Background(), "sum-1", UpdateSummaryParams{}))

	status := models.SummaryStatusFailed
	message := "boom"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE term_summaries SET status = $1, error_message = $2 WHERE id = $3")).
		WithArgs("failed", "boom", "sum-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), "sum-1", UpdateSummaryParams{Status: &status, ErrorMessage: &message}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryRepositoryMarkGenerated(t *testing.T) {
	db, mock, cleanup := newSummaryRepoMock(t)
	defer cleanup()
	repo := NewSummaryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_term_flags")).
		WithArgs("class-1", "T1", "sess-1", "year-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkGenerated(context.Background(), "class-1", "T1", "sess-1", "year-1", time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}
