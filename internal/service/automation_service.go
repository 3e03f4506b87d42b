package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
	"github.com/noah-isme/sma-records-api/pkg/jobs"
)

const (
	automationLockName = "automation-tick"
	automationJobType  = "automation.tick"
	partialArtifactTTL = time.Hour
)

type activeYearSource interface {
	ActiveYear(ctx context.Context) (*models.AcademicYear, error)
	ListSummaryCandidates(ctx context.Context, yearID string, now time.Time) ([]models.SummaryCandidate, error)
}

type deadlineSweeper interface {
	Sweep(ctx context.Context, year models.AcademicYear, now time.Time) (*SweepResult, error)
}

type taskRunner interface {
	Schedule(ctx context.Context, req TaskRequest) (*models.ScheduledTask, bool, error)
	RunDue(ctx context.Context, now time.Time) (*RunReport, error)
}

type runLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (cache.ReleaseFunc, error)
}

type partialArtifactCleaner interface {
	CleanupPartial(ttl time.Duration) (int, error)
}

type tickDispatcher interface {
	TryEnqueue(job jobs.Job) (bool, error)
}

// AutomationConfig sets the tick cadence and the run lock lifetime.
type AutomationConfig struct {
	TickInterval time.Duration
	LockTTL      time.Duration
}

// TickReport describes what one automation tick did.
type TickReport struct {
	Skipped        bool         `json:"skipped"`
	AcademicYearID string       `json:"academic_year_id,omitempty"`
	Sweep          *SweepResult `json:"sweep,omitempty"`
	Planned        int          `json:"planned"`
	Run            *RunReport   `json:"run,omitempty"`
	Errors         []string     `json:"errors,omitempty"`
}

// AutomationService runs the periodic chain: deadline sweep, summary planning, due task execution.
type AutomationService struct {
	academic  activeYearSource
	deadlines deadlineSweeper
	tasks     taskRunner
	locker    runLocker
	artifacts partialArtifactCleaner
	cfg       AutomationConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewAutomationService constructs the automation loop.
func NewAutomationService(academic activeYearSource, deadlines deadlineSweeper, tasks taskRunner, locker runLocker, artifacts partialArtifactCleaner, cfg AutomationConfig, logger *zap.Logger) *AutomationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 15 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &AutomationService{
		academic:  academic,
		deadlines: deadlines,
		tasks:     tasks,
		locker:    locker,
		artifacts: artifacts,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Tick runs one pass. It is skipped when another process holds the run lock. Step failures are
// collected in the report; the following steps still run.
func (s *AutomationService) Tick(ctx context.Context, now time.Time) (*TickReport, error) {
	release, err := s.locker.Acquire(ctx, automationLockName, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, appErrors.ErrLockNotAcquired) {
			s.logger.Sugar().Infow("automation tick skipped, lock held elsewhere")
			return &TickReport{Skipped: true}, nil
		}
		return nil, err
	}
	defer s.release(ctx, release)

	report := &TickReport{}
	year, err := s.academic.ActiveYear(ctx)
	if err != nil {
		return nil, notFoundOr(err, "no active academic year", "failed to load active academic year")
	}
	report.AcademicYearID = year.ID

	sweep, err := s.deadlines.Sweep(ctx, *year, now)
	if err != nil {
		report.Errors = append(report.Errors, "sweep: "+err.Error())
	}
	report.Sweep = sweep

	planned, err := s.planSummaries(ctx, *year, now)
	report.Planned = planned
	if err != nil {
		report.Errors = append(report.Errors, "plan: "+err.Error())
	}

	run, err := s.tasks.RunDue(ctx, now)
	if err != nil {
		report.Errors = append(report.Errors, "run: "+err.Error())
	}
	report.Run = run

	if s.artifacts != nil {
		if _, err := s.artifacts.CleanupPartial(partialArtifactTTL); err != nil {
			s.logger.Sugar().Warnw("partial artifact cleanup failed", "error", err)
		}
	}

	s.logger.Sugar().Infow("automation tick finished", "academic_year_id", year.ID, "planned", planned, "errors", len(report.Errors))
	return report, nil
}

// RunDue executes due tasks on demand under the run lock shared with Tick. A held lock is returned as
// a conflict instead of being skipped.
func (s *AutomationService) RunDue(ctx context.Context, now time.Time) (*RunReport, error) {
	release, err := s.locker.Acquire(ctx, automationLockName, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, appErrors.ErrLockNotAcquired) {
			return nil, appErrors.Clone(appErrors.ErrLockNotAcquired, "task run already in progress")
		}
		return nil, err
	}
	defer s.release(ctx, release)
	return s.tasks.RunDue(ctx, now)
}

func (s *AutomationService) release(ctx context.Context, release cache.ReleaseFunc) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Sugar().Warnw("failed to release automation lock", "error", err)
	}
}

// planSummaries schedules a term summary for every ended session whose class has no summary yet.
func (s *AutomationService) planSummaries(ctx context.Context, year models.AcademicYear, now time.Time) (int, error) {
	candidates, err := s.academic.ListSummaryCandidates(ctx, year.ID, now)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list summary candidates")
	}
	planned := 0
	var firstErr error
	for _, c := range candidates {
		_, created, err := s.tasks.Schedule(ctx, TaskRequest{
			Kind:           models.TaskKindTermSummary,
			ClassID:        c.ClassID,
			TermID:         c.TermID,
			SessionID:      c.SessionID,
			AcademicYearID: year.ID,
			RunAt:          now,
		})
		if err != nil {
			s.logger.Sugar().Warnw("failed to plan term summary", "class_id", c.ClassID, "term_id", c.TermID, "session_id", c.SessionID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if created {
			planned++
		}
	}
	return planned, firstErr
}

// Handle is the queue handler executing one tick.
func (s *AutomationService) Handle(ctx context.Context, job jobs.Job) error {
	_, err := s.Tick(ctx, s.now())
	return err
}

// Start pushes a tick onto queue immediately and then every TickInterval until ctx ends. A tick is
// dropped when the previous one is still waiting in the queue.
func (s *AutomationService) Start(ctx context.Context, queue tickDispatcher) {
	enqueue := func() {
		ok, err := queue.TryEnqueue(jobs.Job{ID: s.now().Format(time.RFC3339), Type: automationJobType})
		if err != nil {
			s.logger.Sugar().Warnw("failed to enqueue automation tick", "error", err)
			return
		}
		if !ok {
			s.logger.Sugar().Debugw("automation tick already pending")
		}
	}
	ticker := time.NewTicker(s.cfg.TickInterval)
	go func() {
		defer ticker.Stop()
		enqueue()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				enqueue()
			}
		}
	}()
}
