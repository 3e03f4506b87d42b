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

// TaskRepository persists scheduled tasks. Status transitions are conditional updates so a row
// only moves queued -> running -> done|failed.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs the repository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, kind, class_id, term_id, session_id, academic_year_id, status, scheduled_at, started_at, finished_at, result, error_message, created_at`

// Create inserts the task unless one already exists for the same kind and target tuple.
// It reports whether a row was inserted.
func (r *TaskRepository) Create(ctx context.Context, task *models.ScheduledTask) (bool, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusQueued
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO scheduled_tasks (id, kind, class_id, term_id, session_id, academic_year_id, status, scheduled_at, created_at)
VALUES (:id, :kind, :class_id, :term_id, :session_id, :academic_year_id, :status, :scheduled_at, :created_at)
ON CONFLICT (kind, class_id, term_id, session_id, academic_year_id) DO NOTHING`
	res, err := database.Conn(ctx, r.db).NamedExecContext(ctx, query, task)
	if err != nil {
		return false, fmt.Errorf("create scheduled task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create scheduled task rows: %w", err)
	}
	return affected > 0, nil
}

// FindByKey returns the task for a kind and target tuple.
func (r *TaskRepository) FindByKey(ctx context.Context, kind models.TaskKind, classID, termID, sessionID, yearID string) (*models.ScheduledTask, error) {
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks
WHERE kind = $1 AND class_id = $2 AND term_id = $3 AND session_id = $4 AND academic_year_id = $5`
	var task models.ScheduledTask
	if err := database.Conn(ctx, r.db).GetContext(ctx, &task, query, kind, classID, termID, sessionID, yearID); err != nil {
		return nil, fmt.Errorf("get scheduled task by key: %w", err)
	}
	return &task, nil
}

// GetByID returns a task row by its identifier.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.ScheduledTask, error) {
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks WHERE id = $1`
	var task models.ScheduledTask
	if err := database.Conn(ctx, r.db).GetContext(ctx, &task, query, id); err != nil {
		return nil, fmt.Errorf("get scheduled task: %w", err)
	}
	return &task, nil
}

// ListDue returns queued tasks scheduled at or before now, oldest first.
func (r *TaskRepository) ListDue(ctx context.Context, now time.Time) ([]models.ScheduledTask, error) {
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks
WHERE status = 'queued' AND scheduled_at <= $1 ORDER BY scheduled_at ASC, created_at ASC`
	var tasks []models.ScheduledTask
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &tasks, query, now); err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	return tasks, nil
}

// MarkRunning claims a queued task. It reports false when the task was not queued anymore.
func (r *TaskRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	const query = `UPDATE scheduled_tasks SET status = 'running', started_at = $2 WHERE id = $1 AND status = 'queued'`
	return r.execAffected(ctx, "mark task running", query, id, startedAt)
}

// FinishTaskParams describes the terminal state written for a running task.
type FinishTaskParams struct {
	Status       models.TaskStatus
	Result       models.TaskPayload
	ErrorMessage *string
	FinishedAt   time.Time
}

// Finish moves a running task to done or failed.
func (r *TaskRepository) Finish(ctx context.Context, id string, params FinishTaskParams) error {
	if !params.Status.Terminal() {
		return fmt.Errorf("finish task: status %q is not terminal", params.Status)
	}
	const query = `UPDATE scheduled_tasks SET status = $2, result = $3, error_message = $4, finished_at = $5
WHERE id = $1 AND status = 'running'`
	ok, err := r.execAffected(ctx, "finish task", query, id, params.Status, params.Result, params.ErrorMessage, params.FinishedAt)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("finish task %s: not running", id)
	}
	return nil
}

// FailStale fails tasks left running since before cutoff and returns how many were touched.
func (r *TaskRepository) FailStale(ctx context.Context, cutoff, at time.Time, reason string) (int64, error) {
	const query = `UPDATE scheduled_tasks SET status = 'failed', error_message = $3, finished_at = $2
WHERE status = 'running' AND started_at < $1`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, cutoff, at, reason)
	if err != nil {
		return 0, fmt.Errorf("fail stale tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail stale tasks rows: %w", err)
	}
	return affected, nil
}

// List returns a page of tasks with the total count.
func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) ([]models.ScheduledTask, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM scheduled_tasks WHERE %s", where)
	if err := database.Conn(ctx, r.db).GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count scheduled tasks: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf("SELECT %s FROM scheduled_tasks WHERE %s ORDER BY scheduled_at DESC, id ASC LIMIT $%d OFFSET $%d",
		taskColumns, where, len(args)-1, len(args))
	var tasks []models.ScheduledTask
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list scheduled tasks: %w", err)
	}
	return tasks, total, nil
}

func (r *TaskRepository) execAffected(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows: %w", op, err)
	}
	return affected > 0, nil
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 20
	}
	return page, size
}
