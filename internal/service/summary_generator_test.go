package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/internal/repository"
	"github.com/noah-isme/sma-records-api/pkg/config"
)

type memSummaries struct {
	mu        sync.Mutex
	summaries map[string]*models.TermSummary
	flags     []models.ClassTermFlag
}

func newMemSummaries() *memSummaries {
	return &memSummaries{summaries: make(map[string]*models.TermSummary)}
}

func (m *memSummaries) GetOrCreate(ctx context.Context, classID, termID, sessionID, yearID string) (*models.TermSummary, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, summary := range m.summaries {
		if summary.ClassID == classID && summary.TermID == termID && summary.SessionID == sessionID && summary.AcademicYearID == yearID {
			copied := *summary
			return &copied, false, nil
		}
	}
	summary := &models.TermSummary{ID: "sum-" + classID, ClassID: classID, TermID: termID, SessionID: sessionID, AcademicYearID: yearID, Status: models.SummaryStatusRunning}
	m.summaries[summary.ID] = summary
	copied := *summary
	return &copied, true, nil
}

func (m *memSummaries) GetByID(ctx context.Context, id string) (*models.TermSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary, ok := m.summaries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *summary
	return &copied, nil
}

func (m *memSummaries) ListByClass(ctx context.Context, classID string) ([]models.TermSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TermSummary
	for _, summary := range m.summaries {
		if summary.ClassID == classID {
			out = append(out, *summary)
		}
	}
	return out, nil
}

func (m *memSummaries) Update(ctx context.Context, id string, params repository.UpdateSummaryParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := m.summaries[id]
	if params.Status != nil {
		summary.Status = *params.Status
	}
	if params.StudentCount != nil {
		summary.StudentCount = *params.StudentCount
	}
	if params.ClassAverage != nil {
		summary.ClassAverage = params.ClassAverage
	}
	if params.PassRate != nil {
		summary.PassRate = params.PassRate
	}
	if params.ArtifactPath != nil {
		summary.ArtifactPath = params.ArtifactPath
	}
	if params.Artifact != nil {
		summary.Artifact = params.Artifact
	}
	if params.ErrorMessage != nil {
		if *params.ErrorMessage == "" {
			summary.ErrorMessage = nil
		} else {
			msg := *params.ErrorMessage
			summary.ErrorMessage = &msg
		}
	}
	if params.GeneratedAt != nil {
		summary.GeneratedAt = params.GeneratedAt
	}
	return nil
}

func (m *memSummaries) MarkGenerated(ctx context.Context, classID, termID, sessionID, yearID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = append(m.flags, models.ClassTermFlag{ClassID: classID, TermID: termID, SessionID: sessionID, AcademicYearID: yearID, SummaryGenerated: true, GeneratedAt: &at})
	return nil
}

type captureArtifacts struct {
	stored map[string]models.SummaryArtifact
	err    error
}

func (c *captureArtifacts) Store(ctx context.Context, summaryID string, artifact models.SummaryArtifact) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if c.stored == nil {
		c.stored = make(map[string]models.SummaryArtifact)
	}
	c.stored[summaryID] = artifact
	return "summaries/" + summaryID + "/summary.json", nil
}

type summaryFixture struct {
	generator *SummaryGenerator
	summaries *memSummaries
	artifacts *captureArtifacts
	averages  *memAverageStore
	scores    *memKindScores
	classes   *memClasses
	tx        *stubTx
}

func newSummaryFixture() *summaryFixture {
	curriculum, classes := gradingFixture()
	store := newMemAverageStore()
	scores := &memKindScores{}
	enrollments := &memEnrollments{students: map[string][]models.EnrolledStudent{
		"class-1": {
			{StudentID: "stu-1", Matricule: "M001", FullName: "Ada Lovelace"},
			{StudentID: "stu-2", Matricule: "M002", FullName: "Alan Turing"},
		},
	}}
	tx := &stubTx{}
	engine := NewAverageEngine(store, curriculum, scores, classes, enrollments, tx, NewGradingPolicy(config.GradingConfig{}), nil, nil)
	summaries := newMemSummaries()
	artifacts := &captureArtifacts{}
	generator := NewSummaryGenerator(summaries, classes, enrollments, engine, store, curriculum, artifacts, nil, tx, nil, nil)
	return &summaryFixture{generator: generator, summaries: summaries, artifacts: artifacts, averages: store, scores: scores, classes: classes, tx: tx}
}

func (f *summaryFixture) seedPassingStudent() {
	f.scores.set("stu-1", "C1", models.KindScore{KindCode: "CC", Value: 14}, models.KindScore{KindCode: "EX", Value: 14})
	f.scores.set("stu-1", "C2", models.KindScore{KindCode: "CC", Value: 14}, models.KindScore{KindCode: "EX", Value: 14})
	f.scores.set("stu-1", "C3", models.KindScore{KindCode: "CC", Value: 11}, models.KindScore{KindCode: "EX", Value: 11})
}

func TestGenerateBuildsSummary(t *testing.T) {
	f := newSummaryFixture()
	f.seedPassingStudent()

	summary, err := f.generator.Generate(context.Background(), testYear(), "class-1", "T1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SummaryStatusDone, summary.Status)
	assert.Equal(t, 1, summary.StudentCount)
	require.NotNil(t, summary.ClassAverage)
	assert.Equal(t, 13.0, *summary.ClassAverage)
	require.NotNil(t, summary.PassRate)
	assert.Equal(t, 100.0, *summary.PassRate)
	require.NotNil(t, summary.ArtifactPath)
	assert.Equal(t, "summaries/sum-class-1/summary.json", *summary.ArtifactPath)
	require.Len(t, f.summaries.flags, 1)
	assert.True(t, f.summaries.flags[0].SummaryGenerated)

	artifact := f.artifacts.stored["sum-class-1"]
	assert.Equal(t, "L1 A", artifact.Class.Name)
	assert.Equal(t, string(models.SessionKindNormal), artifact.Session.Name)
	require.Len(t, artifact.Students, 2)

	ada := artifact.Students[0]
	require.NotNil(t, ada.TermAverage)
	assert.Equal(t, 13.0, *ada.TermAverage)
	assert.Equal(t, MentionFairlyGood, ada.Mention)
	assert.Equal(t, DecisionAdmitted, ada.Decision)
	assert.Equal(t, 10.0, ada.CreditsEarned)
	assert.Equal(t, 10.0, ada.CreditsRequired)
	require.Len(t, ada.UnitAverages, 2)
	assert.Equal(t, "MATH", ada.UnitAverages[0].UnitCode)
	assert.Equal(t, 14.0, ada.UnitAverages[0].Average)

	alan := artifact.Students[1]
	assert.Nil(t, alan.TermAverage)
	assert.Equal(t, resultIncomplete, alan.Mention)
	assert.Equal(t, resultIncomplete, alan.Decision)
	assert.Empty(t, alan.UnitAverages)
	assert.Equal(t, 10.0, alan.CreditsRequired)
}

func TestGenerateShortCircuitsWhenDone(t *testing.T) {
	f := newSummaryFixture()
	f.seedPassingStudent()

	first, err := f.generator.Generate(context.Background(), testYear(), "class-1", "T1", "sess-1")
	require.NoError(t, err)
	calls := f.tx.calls

	f.scores.set("stu-1", "C3", models.KindScore{KindCode: "CC", Value: 2}, models.KindScore{KindCode: "EX", Value: 2})
	second, err := f.generator.Generate(context.Background(), testYear(), "class-1", "T1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, *first.ClassAverage, *second.ClassAverage)
	assert.Equal(t, calls, f.tx.calls)
	assert.Len(t, f.summaries.flags, 1)
}

func TestGenerateMarksFailure(t *testing.T) {
	f := newSummaryFixture()
	f.seedPassingStudent()
	delete(f.classes.terms, "T1")

	summary, err := f.generator.Generate(context.Background(), testYear(), "class-1", "T1", "sess-1")
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, models.SummaryStatusFailed, summary.Status)
	require.NotNil(t, summary.ErrorMessage)
	assert.Contains(t, *summary.ErrorMessage, "load term")

	stored, err := f.summaries.GetByID(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SummaryStatusFailed, stored.Status)
	assert.Empty(t, f.summaries.flags)

	f.classes.terms["T1"] = models.Term{ID: "T1", Code: "S1", Name: "Semester 1", Ordinal: 1}
	retried, err := f.generator.Generate(context.Background(), testYear(), "class-1", "T1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SummaryStatusDone, retried.Status)
	assert.Nil(t, retried.ErrorMessage)
}

func TestGenerateArtifactFailureKeepsAverages(t *testing.T) {
	f := newSummaryFixture()
	f.seedPassingStudent()
	f.artifacts.err = errBoom

	summary, err := f.generator.Generate(context.Background(), testYear(), "class-1", "T1", "sess-1")
	require.Error(t, err)
	assert.Equal(t, models.SummaryStatusFailed, summary.Status)
	assert.Contains(t, *summary.ErrorMessage, "store artifact")

	key := models.AverageKey{StudentID: "stu-1", SessionID: "sess-1", AcademicYearID: "year-1"}
	term, err := f.averages.FindTerm(context.Background(), key, "class-1", "T1")
	require.NoError(t, err)
	assert.Equal(t, 13.0, term.Average)
}

func TestClassStatistics(t *testing.T) {
	policy := NewGradingPolicy(config.GradingConfig{})
	count, mean, rate := classStatistics(nil, policy)
	assert.Equal(t, 0, count)
	assert.Nil(t, mean)
	assert.Nil(t, rate)

	count, mean, rate = classStatistics([]models.TermAverage{{Average: 12}, {Average: 8}, {Average: 10}}, policy)
	assert.Equal(t, 3, count)
	assert.Equal(t, 10.0, *mean)
	assert.Equal(t, 66.67, *rate)
}

func TestSummaryGetAndList(t *testing.T) {
	f := newSummaryFixture()
	f.seedPassingStudent()
	summary, err := f.generator.Generate(context.Background(), testYear(), "class-1", "T1", "sess-1")
	require.NoError(t, err)

	got, err := f.generator.Get(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.Equal(t, summary.ID, got.ID)

	list, err := f.generator.ListByClass(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.generator.Get(context.Background(), "missing")
	require.Error(t, err)
}
