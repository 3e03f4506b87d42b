package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/internal/repository"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

// StaleTaskReason is recorded on tasks found running past the stale threshold.
const StaleTaskReason = "stale: no heartbeat"

type taskStore interface {
	Create(ctx context.Context, task *models.ScheduledTask) (bool, error)
	FindByKey(ctx context.Context, kind models.TaskKind, classID, termID, sessionID, yearID string) (*models.ScheduledTask, error)
	GetByID(ctx context.Context, id string) (*models.ScheduledTask, error)
	ListDue(ctx context.Context, now time.Time) ([]models.ScheduledTask, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error)
	Finish(ctx context.Context, id string, params repository.FinishTaskParams) error
	FailStale(ctx context.Context, cutoff, at time.Time, reason string) (int64, error)
	List(ctx context.Context, filter models.TaskFilter) ([]models.ScheduledTask, int, error)
}

type academicYearFinder interface {
	FindYear(ctx context.Context, id string) (*models.AcademicYear, error)
}

// TaskHandler executes one task and returns the payload stored on success.
type TaskHandler func(ctx context.Context, year models.AcademicYear, task models.ScheduledTask) (models.TaskPayload, error)

// TaskHandlers is the dispatch table, one field per task kind.
type TaskHandlers struct {
	TermSummary     TaskHandler
	ComponentEnroll TaskHandler
	RecomputeClass  TaskHandler
}

func (h TaskHandlers) table() map[models.TaskKind]TaskHandler {
	return map[models.TaskKind]TaskHandler{
		models.TaskKindTermSummary:     h.TermSummary,
		models.TaskKindComponentEnroll: h.ComponentEnroll,
		models.TaskKindRecomputeClass:  h.RecomputeClass,
	}
}

// TaskSchedulerConfig bounds task execution.
type TaskSchedulerConfig struct {
	TaskTimeout time.Duration
	StaleAfter  time.Duration
}

// TaskRequest asks for a task on a (class, term, session, year) target.
type TaskRequest struct {
	Kind           models.TaskKind `json:"kind" validate:"required"`
	ClassID        string          `json:"class_id" validate:"required"`
	TermID         string          `json:"term_id" validate:"required"`
	SessionID      string          `json:"session_id" validate:"required"`
	AcademicYearID string          `json:"academic_year_id" validate:"required"`
	RunAt          time.Time       `json:"run_at"`
}

// TaskOutcome is the per-task detail of a batch run.
type TaskOutcome struct {
	TaskID   string             `json:"task_id"`
	Kind     models.TaskKind    `json:"kind"`
	Status   models.TaskStatus  `json:"status"`
	Error    string             `json:"error,omitempty"`
	Result   models.TaskPayload `json:"result,omitempty"`
	Duration time.Duration      `json:"duration"`
}

// RunReport aggregates a RunDue batch.
type RunReport struct {
	Stale     int64         `json:"stale"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Tasks     []TaskOutcome `json:"tasks"`
}

// TaskScheduler deduplicates deferred jobs and runs due ones strictly one after another.
// Handler failures are recorded on the task row, never returned to the caller.
type TaskScheduler struct {
	runMu     sync.Mutex
	tasks     taskStore
	years     academicYearFinder
	handlers  map[models.TaskKind]TaskHandler
	cfg       TaskSchedulerConfig
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewTaskScheduler constructs the scheduler with its dispatch table.
func NewTaskScheduler(tasks taskStore, years academicYearFinder, handlers TaskHandlers, cfg TaskSchedulerConfig, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *TaskScheduler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	table := handlers.table()
	for kind, handler := range table {
		if handler == nil {
			logger.Sugar().Warnw("no handler registered for task kind", "kind", kind)
			delete(table, kind)
		}
	}
	return &TaskScheduler{
		tasks:     tasks,
		years:     years,
		handlers:  table,
		cfg:       cfg,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Schedule creates the task unless one exists for the same kind and target. The boolean reports creation.
func (s *TaskScheduler) Schedule(ctx context.Context, req TaskRequest) (*models.ScheduledTask, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task request")
	}
	if !req.Kind.Valid() {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown task kind %q", req.Kind))
	}
	runAt := req.RunAt
	if runAt.IsZero() {
		runAt = s.now()
	}
	task := &models.ScheduledTask{
		Kind:           req.Kind,
		ClassID:        req.ClassID,
		TermID:         req.TermID,
		SessionID:      req.SessionID,
		AcademicYearID: req.AcademicYearID,
		Status:         models.TaskStatusQueued,
		ScheduledAt:    runAt.UTC(),
	}
	created, err := s.tasks.Create(ctx, task)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to schedule task")
	}
	if created {
		s.logger.Sugar().Infow("task scheduled", "task_id", task.ID, "kind", task.Kind, "class_id", task.ClassID, "term_id", task.TermID, "session_id", task.SessionID, "scheduled_at", task.ScheduledAt)
		return task, true, nil
	}
	existing, err := s.tasks.FindByKey(ctx, req.Kind, req.ClassID, req.TermID, req.SessionID, req.AcademicYearID)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to load existing task")
	}
	return existing, false, nil
}

// RunDue fails stale running tasks, then executes queued tasks due at now, oldest first.
// Concurrent calls in one process run one batch at a time.
func (s *TaskScheduler) RunDue(ctx context.Context, now time.Time) (*RunReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	report := &RunReport{Tasks: []TaskOutcome{}}
	if s.cfg.StaleAfter > 0 {
		stale, err := s.tasks.FailStale(ctx, now.Add(-s.cfg.StaleAfter), now, StaleTaskReason)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to recover stale tasks")
		}
		if stale > 0 {
			s.logger.Sugar().Warnw("stale running tasks marked failed", "count", stale, "stale_after", s.cfg.StaleAfter)
		}
		report.Stale = stale
	}

	due, err := s.tasks.ListDue(ctx, now)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list due tasks")
	}

	years := make(map[string]*models.AcademicYear)
	for _, task := range due {
		if ctx.Err() != nil {
			s.logger.Sugar().Warnw("task batch interrupted", "remaining", len(due)-len(report.Tasks), "error", ctx.Err())
			break
		}
		outcome, ran := s.run(ctx, task, years)
		if !ran {
			continue
		}
		report.Tasks = append(report.Tasks, outcome)
		if outcome.Status == models.TaskStatusDone {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	s.logger.Sugar().Infow("due tasks processed", "due", len(due), "succeeded", report.Succeeded, "failed", report.Failed, "stale", report.Stale)
	return report, nil
}

// run executes one task. It reports false when the task could not be claimed.
func (s *TaskScheduler) run(ctx context.Context, task models.ScheduledTask, years map[string]*models.AcademicYear) (TaskOutcome, bool) {
	started := s.now()
	claimed, err := s.tasks.MarkRunning(ctx, task.ID, started)
	if err != nil {
		s.logger.Sugar().Errorw("failed to claim task", "task_id", task.ID, "error", err)
		return TaskOutcome{}, false
	}
	if !claimed {
		return TaskOutcome{}, false
	}

	result, runErr := s.execute(ctx, task, years)

	outcome := TaskOutcome{TaskID: task.ID, Kind: task.Kind, Status: models.TaskStatusDone, Result: result}
	params := repository.FinishTaskParams{Status: models.TaskStatusDone, Result: result}
	if runErr != nil {
		msg := runErr.Error()
		outcome.Status = models.TaskStatusFailed
		outcome.Error = msg
		outcome.Result = nil
		params = repository.FinishTaskParams{Status: models.TaskStatusFailed, ErrorMessage: &msg}
	}
	params.FinishedAt = s.now()
	outcome.Duration = params.FinishedAt.Sub(started)

	if err := s.tasks.Finish(context.WithoutCancel(ctx), task.ID, params); err != nil {
		s.logger.Sugar().Errorw("failed to record task outcome", "task_id", task.ID, "status", params.Status, "error", err)
	}
	s.metrics.RecordTask(string(task.Kind), string(outcome.Status), outcome.Duration)
	if runErr != nil {
		s.logger.Sugar().Warnw("task failed", "task_id", task.ID, "kind", task.Kind, "class_id", task.ClassID, "error", runErr)
	} else {
		s.logger.Sugar().Infow("task done", "task_id", task.ID, "kind", task.Kind, "class_id", task.ClassID, "duration", outcome.Duration)
	}
	return outcome, true
}

func (s *TaskScheduler) execute(ctx context.Context, task models.ScheduledTask, years map[string]*models.AcademicYear) (models.TaskPayload, error) {
	handler, ok := s.handlers[task.Kind]
	if !ok {
		return nil, fmt.Errorf("no handler registered for task kind %q", task.Kind)
	}
	year, ok := years[task.AcademicYearID]
	if !ok {
		loaded, err := s.years.FindYear(ctx, task.AcademicYearID)
		if err != nil {
			return nil, fmt.Errorf("load academic year %s: %w", task.AcademicYearID, err)
		}
		years[task.AcademicYearID] = loaded
		year = loaded
	}

	runCtx := ctx
	if s.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.TaskTimeout)
		defer cancel()
	}

	type handlerResult struct {
		payload models.TaskPayload
		err     error
	}
	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- handlerResult{err: fmt.Errorf("task panicked: %v", p)}
			}
		}()
		payload, err := handler(runCtx, *year, task)
		done <- handlerResult{payload: payload, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("task timed out after %s: %w", s.cfg.TaskTimeout, res.err)
		}
		return res.payload, res.err
	case <-runCtx.Done():
	}

	// The next task starts only once this handler has returned, even past its deadline.
	s.logger.Sugar().Warnw("waiting for cancelled task handler to return", "task_id", task.ID, "kind", task.Kind, "error", runCtx.Err())
	res := <-done
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		if res.err != nil {
			return nil, fmt.Errorf("task timed out after %s: %w", s.cfg.TaskTimeout, res.err)
		}
		return nil, fmt.Errorf("task timed out after %s", s.cfg.TaskTimeout)
	}
	return nil, fmt.Errorf("task interrupted: %w", runCtx.Err())
}

// Get returns a task by id.
func (s *TaskScheduler) Get(ctx context.Context, id string) (*models.ScheduledTask, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "task not found", "failed to load task")
	}
	return task, nil
}

// List returns a page of tasks.
func (s *TaskScheduler) List(ctx context.Context, filter models.TaskFilter) ([]models.ScheduledTask, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	tasks, total, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list tasks")
	}
	return tasks, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}
