package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-records-api/internal/models"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

func TestPropagateRegistersMissingComponents(t *testing.T) {
	curriculum, classes := gradingFixture()
	enrollments := &memEnrollments{students: map[string][]models.EnrolledStudent{
		"class-1": {{StudentID: "stu-1"}, {StudentID: "stu-2"}},
	}}
	tx := &stubTx{}
	propagator := NewEnrollmentPropagator(classes, enrollments, curriculum, tx, nil)

	payload, err := propagator.Propagate(context.Background(), testYear(), "class-1", "T1")
	require.NoError(t, err)
	assert.Equal(t, 2, payload["students"])
	assert.Equal(t, 3, payload["components"])
	assert.Equal(t, 6, payload["registrations"])
	assert.Len(t, curriculum.registered, 6)
	assert.Equal(t, 1, tx.calls)

	enrollments.students["class-1"] = append(enrollments.students["class-1"], models.EnrolledStudent{StudentID: "stu-3"})
	payload, err = propagator.Propagate(context.Background(), testYear(), "class-1", "T1")
	require.NoError(t, err)
	assert.Equal(t, 3, payload["registrations"])
	assert.Len(t, curriculum.registered, 9)
}

func TestPropagateUnknownClass(t *testing.T) {
	curriculum, classes := gradingFixture()
	propagator := NewEnrollmentPropagator(classes, &memEnrollments{}, curriculum, &stubTx{}, nil)

	_, err := propagator.Propagate(context.Background(), testYear(), "class-9", "T1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestPropagateEnrollmentFailure(t *testing.T) {
	curriculum, classes := gradingFixture()
	propagator := NewEnrollmentPropagator(classes, &memEnrollments{err: errBoom}, curriculum, &stubTx{}, nil)

	_, err := propagator.Propagate(context.Background(), testYear(), "class-1", "T1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, curriculum.registered)
}

type stubSummaryRunner struct {
	summary *models.TermSummary
	err     error
}

func (s *stubSummaryRunner) Generate(ctx context.Context, year models.AcademicYear, classID, termID, sessionID string) (*models.TermSummary, error) {
	return s.summary, s.err
}

type stubRecomputer struct{}

func (stubRecomputer) RecomputeClass(ctx context.Context, year models.AcademicYear, classID, termID, sessionID string) (*RecomputeResult, error) {
	return &RecomputeResult{Processed: 3, Computed: 2, Errors: []ItemError{{ID: "stu-3", Message: "boom"}}}, nil
}

func TestBuildTaskHandlersPayloads(t *testing.T) {
	average := 12.5
	curriculum, classes := gradingFixture()
	propagator := NewEnrollmentPropagator(classes, &memEnrollments{}, curriculum, &stubTx{}, nil)
	summaries := &stubSummaryRunner{summary: &models.TermSummary{ID: "sum-1", StudentCount: 25, ClassAverage: &average}}
	handlers := BuildTaskHandlers(summaries, propagator, stubRecomputer{})
	task := models.ScheduledTask{ClassID: "class-1", TermID: "T1", SessionID: "sess-1"}

	payload, err := handlers.TermSummary(context.Background(), testYear(), task)
	require.NoError(t, err)
	assert.Equal(t, "sum-1", payload["summary_id"])
	assert.Equal(t, 25, payload["student_count"])
	assert.Equal(t, 12.5, payload["class_average"])
	assert.NotContains(t, payload, "pass_rate")

	payload, err = handlers.RecomputeClass(context.Background(), testYear(), task)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPayload{"processed": 3, "computed": 2, "errors": 1}, payload)

	payload, err = handlers.ComponentEnroll(context.Background(), testYear(), task)
	require.NoError(t, err)
	assert.Equal(t, 0, payload["students"])

	summaries.err = errBoom
	_, err = handlers.TermSummary(context.Background(), testYear(), task)
	assert.ErrorIs(t, err, errBoom)
}
