package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-records-api/internal/middleware"
	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/internal/service"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

func newTestContext(method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withScope(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.Claims{UserID: "teacher-1", Role: models.RoleTeacher})
	c.Set(middleware.ContextYearKey, &models.AcademicYear{ID: "year-1", IsActive: true})
}

type taskServiceMock struct {
	created bool
	err     error
	lastReq service.TaskRequest
	called  bool
}

func (m *taskServiceMock) Schedule(ctx context.Context, req service.TaskRequest) (*models.ScheduledTask, bool, error) {
	m.called = true
	m.lastReq = req
	if m.err != nil {
		return nil, false, m.err
	}
	return &models.ScheduledTask{ID: "task-1", Kind: req.Kind, Status: models.TaskStatusQueued}, m.created, nil
}

func (m *taskServiceMock) Get(ctx context.Context, id string) (*models.ScheduledTask, error) {
	return nil, appErrors.ErrNotFound
}

func (m *taskServiceMock) List(ctx context.Context, filter models.TaskFilter) ([]models.ScheduledTask, *models.Pagination, error) {
	return nil, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func TestTaskHandlerSchedule(t *testing.T) {
	payload := map[string]string{"kind": "recap_semestriel", "classId": "class-1", "termId": "T1", "sessionId": "sess-1"}

	svc := &taskServiceMock{created: true}
	c, w := newTestContext(http.MethodPost, "/tasks", payload)
	withScope(c)
	NewTaskHandler(svc, nil).Schedule(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "year-1", svc.lastReq.AcademicYearID)
	assert.True(t, svc.lastReq.RunAt.IsZero())

	svc = &taskServiceMock{}
	c, w = newTestContext(http.MethodPost, "/tasks", payload)
	withScope(c)
	NewTaskHandler(svc, nil).Schedule(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTaskHandlerScheduleRejectsRequests(t *testing.T) {
	svc := &taskServiceMock{}
	c, w := newTestContext(http.MethodPost, "/tasks", map[string]string{"kind": "recap_semestriel"})
	withScope(c)
	NewTaskHandler(svc, nil).Schedule(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, svc.called)

	c, w = newTestContext(http.MethodPost, "/tasks", map[string]string{"kind": "recap_semestriel"})
	NewTaskHandler(svc, nil).Schedule(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type dueRunnerMock struct {
	report *service.RunReport
	err    error
	calls  int
}

func (m *dueRunnerMock) RunDue(ctx context.Context, now time.Time) (*service.RunReport, error) {
	m.calls++
	return m.report, m.err
}

func TestTaskHandlerRunDue(t *testing.T) {
	runner := &dueRunnerMock{report: &service.RunReport{Succeeded: 2, Tasks: []service.TaskOutcome{}}}
	c, w := newTestContext(http.MethodPost, "/tasks/run-due", nil)
	withScope(c)
	NewTaskHandler(&taskServiceMock{}, runner).RunDue(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, runner.calls)
	assert.Contains(t, w.Body.String(), `"succeeded":2`)
}

func TestTaskHandlerRunDueWhileLocked(t *testing.T) {
	runner := &dueRunnerMock{err: appErrors.Clone(appErrors.ErrLockNotAcquired, "task run already in progress")}
	c, w := newTestContext(http.MethodPost, "/tasks/run-due", nil)
	withScope(c)
	NewTaskHandler(&taskServiceMock{}, runner).RunDue(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "LOCK_NOT_ACQUIRED")
}

type scoreServiceMock struct {
	result *service.BulkScoreResult
	err    error
}

func (m *scoreServiceMock) SubmitScores(ctx context.Context, year models.AcademicYear, assessmentID string, req service.BulkScoreRequest, actor string) (*service.BulkScoreResult, error) {
	return m.result, m.err
}

func (m *scoreServiceMock) UpdateScore(ctx context.Context, year models.AcademicYear, scoreID string, req service.UpdateScoreRequest, actor string) (*models.Score, error) {
	return nil, m.err
}

func (m *scoreServiceMock) ListByAssessment(ctx context.Context, assessmentID string) ([]models.Score, error) {
	return nil, m.err
}

func TestScoreHandlerSubmitStatus(t *testing.T) {
	value := 12.0
	body := service.BulkScoreRequest{Items: []service.ScoreItem{{StudentID: "stu-1", Value: &value}}}

	svc := &scoreServiceMock{result: &service.BulkScoreResult{SuccessCount: 1, Completed: true}}
	c, w := newTestContext(http.MethodPost, "/assessments/as-1/scores", body)
	withScope(c)
	NewScoreHandler(svc).Submit(c)
	assert.Equal(t, http.StatusOK, w.Code)

	svc.result = &service.BulkScoreResult{Failures: []service.ScoreFailure{{StudentID: "stu-2", Reason: "student not enrolled in class"}}}
	c, w = newTestContext(http.MethodPost, "/assessments/as-1/scores", body)
	withScope(c)
	NewScoreHandler(svc).Submit(c)
	assert.Equal(t, http.StatusMultiStatus, w.Code)
	assert.Contains(t, w.Body.String(), `"failed_items":1`)

	svc.err = appErrors.ErrSubmissionClosed
	c, w = newTestContext(http.MethodPost, "/assessments/as-1/scores", body)
	withScope(c)
	NewScoreHandler(svc).Submit(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

type artifactServiceMock struct {
	download *service.ArtifactDownload
	err      error
}

func (m *artifactServiceMock) Links(summary *models.TermSummary) ([]service.ArtifactLink, error) {
	return nil, m.err
}

func (m *artifactServiceMock) ResolveDownload(token string) (*service.ArtifactDownload, error) {
	return m.download, m.err
}

func TestSummaryHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	require.NoError(t, os.WriteFile(path, []byte("Matricule,Full name\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	artifacts := &artifactServiceMock{download: &service.ArtifactDownload{File: file, Filename: "summary-sum-1.csv", ContentType: "text/csv"}}
	c, w := newTestContext(http.MethodGet, "/summaries/artifacts/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	NewSummaryHandler(nil, artifacts).Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="summary-sum-1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Matricule,Full name\n", w.Body.String())

	artifacts = &artifactServiceMock{err: appErrors.ErrForbidden}
	c, w = newTestContext(http.MethodGet, "/summaries/artifacts/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	NewSummaryHandler(nil, artifacts).Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newTestContext(http.MethodGet, "/summaries/artifacts/", nil)
	NewSummaryHandler(nil, artifacts).Download(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
