package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/internal/repository"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

type memTasks struct {
	mu    sync.Mutex
	seq   int
	tasks map[string]*models.ScheduledTask
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[string]*models.ScheduledTask)}
}

func (m *memTasks) Create(ctx context.Context, task *models.ScheduledTask) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tasks {
		if existing.Kind == task.Kind && existing.ClassID == task.ClassID && existing.TermID == task.TermID &&
			existing.SessionID == task.SessionID && existing.AcademicYearID == task.AcademicYearID {
			return false, nil
		}
	}
	m.seq++
	task.ID = fmt.Sprintf("task-%d", m.seq)
	task.CreatedAt = time.Unix(int64(m.seq), 0).UTC()
	copied := *task
	m.tasks[task.ID] = &copied
	return true, nil
}

func (m *memTasks) FindByKey(ctx context.Context, kind models.TaskKind, classID, termID, sessionID, yearID string) (*models.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.tasks {
		if task.Kind == kind && task.ClassID == classID && task.TermID == termID && task.SessionID == sessionID && task.AcademicYearID == yearID {
			copied := *task
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memTasks) GetByID(ctx context.Context, id string) (*models.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *task
	return &copied, nil
}

func (m *memTasks) ListDue(ctx context.Context, now time.Time) ([]models.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.ScheduledTask
	for _, task := range m.tasks {
		if task.Status == models.TaskStatusQueued && !task.ScheduledAt.After(now) {
			due = append(due, *task)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	return due, nil
}

func (m *memTasks) MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[id]
	if task.Status != models.TaskStatusQueued {
		return false, nil
	}
	task.Status = models.TaskStatusRunning
	task.StartedAt = &startedAt
	return true, nil
}

func (m *memTasks) Finish(ctx context.Context, id string, params repository.FinishTaskParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[id]
	task.Status = params.Status
	task.Result = params.Result
	task.ErrorMessage = params.ErrorMessage
	finished := params.FinishedAt
	task.FinishedAt = &finished
	return nil
}

func (m *memTasks) FailStale(ctx context.Context, cutoff, at time.Time, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, task := range m.tasks {
		if task.Status == models.TaskStatusRunning && task.StartedAt != nil && task.StartedAt.Before(cutoff) {
			msg := reason
			task.Status = models.TaskStatusFailed
			task.ErrorMessage = &msg
			task.FinishedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memTasks) List(ctx context.Context, filter models.TaskFilter) ([]models.ScheduledTask, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScheduledTask
	for _, task := range m.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		out = append(out, *task)
	}
	return out, len(out), nil
}

type memYears map[string]models.AcademicYear

func (y memYears) FindYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, ok := y[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &year, nil
}

func (y memYears) ActiveYear(ctx context.Context) (*models.AcademicYear, error) {
	for _, year := range y {
		if year.IsActive {
			return &year, nil
		}
	}
	return nil, sql.ErrNoRows
}

func newScheduler(store *memTasks, handlers TaskHandlers, cfg TaskSchedulerConfig) *TaskScheduler {
	return NewTaskScheduler(store, memYears{"year-1": testYear()}, handlers, cfg, nil, nil, nil)
}

func taskRequest(kind models.TaskKind, classID string, runAt time.Time) TaskRequest {
	return TaskRequest{Kind: kind, ClassID: classID, TermID: "T1", SessionID: "sess-1", AcademicYearID: "year-1", RunAt: runAt}
}

func TestScheduleDeduplicates(t *testing.T) {
	store := newMemTasks()
	scheduler := newScheduler(store, TaskHandlers{}, TaskSchedulerConfig{})
	runAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	first, created, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindTermSummary, "class-1", runAt))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.TaskStatusQueued, first.Status)

	second, created, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindTermSummary, "class-1", runAt.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.tasks, 1)

	_, created, err = scheduler.Schedule(context.Background(), taskRequest(models.TaskKindRecomputeClass, "class-1", runAt))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestScheduleValidation(t *testing.T) {
	scheduler := newScheduler(newMemTasks(), TaskHandlers{}, TaskSchedulerConfig{})

	_, _, err := scheduler.Schedule(context.Background(), TaskRequest{Kind: models.TaskKindTermSummary})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, _, err = scheduler.Schedule(context.Background(), taskRequest("bogus", "class-1", time.Time{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestRunDueRunsOldestFirst(t *testing.T) {
	store := newMemTasks()
	var order []string
	handler := func(ctx context.Context, year models.AcademicYear, task models.ScheduledTask) (models.TaskPayload, error) {
		order = append(order, task.ClassID)
		return models.TaskPayload{"year": year.ID}, nil
	}
	scheduler := newScheduler(store, TaskHandlers{RecomputeClass: handler}, TaskSchedulerConfig{})
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for _, req := range []TaskRequest{
		taskRequest(models.TaskKindRecomputeClass, "late", now.Add(-time.Minute)),
		taskRequest(models.TaskKindRecomputeClass, "early", now.Add(-time.Hour)),
		taskRequest(models.TaskKindRecomputeClass, "future", now.Add(time.Hour)),
	} {
		_, _, err := scheduler.Schedule(context.Background(), req)
		require.NoError(t, err)
	}

	report, err := scheduler.RunDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, order)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Tasks, 2)
	assert.Equal(t, "year-1", report.Tasks[0].Result["year"])

	future, err := store.FindByKey(context.Background(), models.TaskKindRecomputeClass, "future", "T1", "sess-1", "year-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusQueued, future.Status)
}

func TestRunDueRecordsFailures(t *testing.T) {
	store := newMemTasks()
	scheduler := newScheduler(store, TaskHandlers{
		TermSummary: func(ctx context.Context, year models.AcademicYear, task models.ScheduledTask) (models.TaskPayload, error) {
			return nil, errors.New("class has no students")
		},
		RecomputeClass: func(ctx context.Context, year models.AcademicYear, task models.ScheduledTask) (models.TaskPayload, error) {
			panic("nil map")
		},
	}, TaskSchedulerConfig{})
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	failing, _, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindTermSummary, "class-1", now.Add(-2*time.Minute)))
	require.NoError(t, err)
	panicking, _, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindRecomputeClass, "class-1", now.Add(-time.Minute)))
	require.NoError(t, err)
	orphan, _, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindComponentEnroll, "class-1", now))
	require.NoError(t, err)

	report, err := scheduler.RunDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 3, report.Failed)

	stored, err := store.GetByID(context.Background(), failing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "class has no students", *stored.ErrorMessage)

	stored, err = store.GetByID(context.Background(), panicking.ID)
	require.NoError(t, err)
	assert.Contains(t, *stored.ErrorMessage, "task panicked: nil map")

	stored, err = store.GetByID(context.Background(), orphan.ID)
	require.NoError(t, err)
	assert.Contains(t, *stored.ErrorMessage, "no handler registered")
}

func TestRunDueTimesOutBlockedHandler(t *testing.T) {
	store := newMemTasks()
	scheduler := newScheduler(store, TaskHandlers{
		RecomputeClass: func(ctx context.Context, year models.AcademicYear, task models.ScheduledTask) (models.TaskPayload, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}, TaskSchedulerConfig{TaskTimeout: 20 * time.Millisecond})
	now := time.Now().UTC()

	task, _, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindRecomputeClass, "class-1", now.Add(-time.Second)))
	require.NoError(t, err)

	report, err := scheduler.RunDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	stored, err := store.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, stored.Status)
	assert.Contains(t, *stored.ErrorMessage, "timed out")
}

// overlapRecorder tracks how many handlers run at once.
type overlapRecorder struct {
	mu      sync.Mutex
	running int
	peak    int
	calls   int
}

func (r *overlapRecorder) handler(hold time.Duration) TaskHandler {
	return func(ctx context.Context, year models.AcademicYear, task models.ScheduledTask) (models.TaskPayload, error) {
		r.mu.Lock()
		r.running++
		r.calls++
		if r.running > r.peak {
			r.peak = r.running
		}
		r.mu.Unlock()

		time.Sleep(hold)

		r.mu.Lock()
		r.running--
		r.mu.Unlock()
		return models.TaskPayload{"class_id": task.ClassID}, nil
	}
}

func TestRunDueWaitsForTimedOutHandlerBeforeNextTask(t *testing.T) {
	store := newMemTasks()
	recorder := &overlapRecorder{}
	scheduler := newScheduler(store, TaskHandlers{RecomputeClass: recorder.handler(100 * time.Millisecond)}, TaskSchedulerConfig{TaskTimeout: 20 * time.Millisecond})
	now := time.Now().UTC()

	for _, classID := range []string{"class-1", "class-2"} {
		_, _, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindRecomputeClass, classID, now.Add(-time.Second)))
		require.NoError(t, err)
	}

	report, err := scheduler.RunDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	for _, outcome := range report.Tasks {
		assert.Contains(t, outcome.Error, "timed out")
	}
	assert.Equal(t, 2, recorder.calls)
	assert.Equal(t, 1, recorder.peak)
}

func TestConcurrentRunDueCallsDoNotOverlap(t *testing.T) {
	store := newMemTasks()
	recorder := &overlapRecorder{}
	scheduler := newScheduler(store, TaskHandlers{RecomputeClass: recorder.handler(30 * time.Millisecond)}, TaskSchedulerConfig{})
	now := time.Now().UTC()

	for _, classID := range []string{"class-1", "class-2", "class-3", "class-4"} {
		_, _, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindRecomputeClass, classID, now.Add(-time.Second)))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := scheduler.RunDue(context.Background(), now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, recorder.calls)
	assert.Equal(t, 1, recorder.peak)
}

func TestRunDueFailsStaleTasks(t *testing.T) {
	store := newMemTasks()
	scheduler := newScheduler(store, TaskHandlers{}, TaskSchedulerConfig{StaleAfter: time.Hour})
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	task, _, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindTermSummary, "class-1", now.Add(-3*time.Hour)))
	require.NoError(t, err)
	claimed, err := store.MarkRunning(context.Background(), task.ID, now.Add(-2*time.Hour))
	require.NoError(t, err)
	require.True(t, claimed)

	report, err := scheduler.RunDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Stale)
	assert.Empty(t, report.Tasks)

	stored, err := store.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, stored.Status)
	assert.Equal(t, StaleTaskReason, *stored.ErrorMessage)
}

func TestFailedTaskIsTerminal(t *testing.T) {
	store := newMemTasks()
	calls := 0
	scheduler := newScheduler(store, TaskHandlers{
		TermSummary: func(ctx context.Context, year models.AcademicYear, task models.ScheduledTask) (models.TaskPayload, error) {
			calls++
			return nil, errBoom
		},
	}, TaskSchedulerConfig{StaleAfter: time.Hour})
	now := time.Now().UTC()

	task, _, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindTermSummary, "class-1", now.Add(-time.Minute)))
	require.NoError(t, err)

	report, err := scheduler.RunDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	again, created, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindTermSummary, "class-1", now))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, task.ID, again.ID)
	assert.Equal(t, models.TaskStatusFailed, again.Status)

	report, err = scheduler.RunDue(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, report.Tasks)
	assert.Equal(t, int64(0), report.Stale)
	assert.Equal(t, 1, calls)

	stored, err := scheduler.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, stored.Status)
	assert.Equal(t, errBoom.Error(), *stored.ErrorMessage)

	_, err = scheduler.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestListAppliesPagingDefaults(t *testing.T) {
	store := newMemTasks()
	scheduler := newScheduler(store, TaskHandlers{}, TaskSchedulerConfig{})
	_, _, err := scheduler.Schedule(context.Background(), taskRequest(models.TaskKindTermSummary, "class-1", time.Time{}))
	require.NoError(t, err)

	tasks, pagination, err := scheduler.List(context.Background(), models.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
