package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-records-api/internal/models"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

// EventDeadlineWarning is the event type of deadline notifications.
const EventDeadlineWarning = "assessment.deadline_warning"

const defaultDelayDays = 14

type assessmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	ListPending(ctx context.Context, yearID string) ([]models.Assessment, error)
	Lock(ctx context.Context, id string, at time.Time) (bool, error)
	MarkNotified(ctx context.Context, id string, at time.Time) error
	ExtendDeadline(ctx context.Context, id string, deadline, at time.Time) error
	SetModificationAuthorized(ctx context.Context, id string, allowed bool, at time.Time) error
	IncrementModifications(ctx context.Context, id string, at time.Time) (bool, error)
}

type assessmentKindReader interface {
	GetKind(ctx context.Context, code string) (*models.AssessmentKind, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, topic, eventType string, payload interface{}) error
}

// DeadlineTrackerConfig tunes deadline resolution and notifications.
type DeadlineTrackerConfig struct {
	DefaultDelayDays int
	UrgentWindow     time.Duration
	Topic            string
	AdminRecipients  []string
}

// DeadlineEvent is a structured warning handed to the notification transport.
type DeadlineEvent struct {
	ID            string            `json:"id"`
	AssessmentID  string            `json:"assessment_id"`
	Recipient     string            `json:"recipient"`
	RecipientRole models.UserRole   `json:"recipient_role"`
	Subject       string            `json:"subject"`
	Fields        map[string]string `json:"fields"`
}

// SweepResult reports what one deadline sweep changed.
type SweepResult struct {
	Locked   int         `json:"locked"`
	Notified int         `json:"notified"`
	Errors   []ItemError `json:"errors,omitempty"`
}

// DeadlineTracker decides whether grade entry is allowed and enforces submission deadlines.
type DeadlineTracker struct {
	assessments assessmentStore
	kinds       assessmentKindReader
	publisher   eventPublisher
	cfg         DeadlineTrackerConfig
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewDeadlineTracker constructs the tracker.
func NewDeadlineTracker(assessments assessmentStore, kinds assessmentKindReader, publisher eventPublisher, cfg DeadlineTrackerConfig, metrics *MetricsService, logger *zap.Logger) *DeadlineTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultDelayDays <= 0 {
		cfg.DefaultDelayDays = defaultDelayDays
	}
	if cfg.UrgentWindow <= 0 {
		cfg.UrgentWindow = 72 * time.Hour
	}
	if cfg.Topic == "" {
		cfg.Topic = "records.deadline-notifications"
	}
	return &DeadlineTracker{
		assessments: assessments,
		kinds:       kinds,
		publisher:   publisher,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ResolveDeadline returns assessmentDate plus the delay of the kind, else of the year, else the global fallback.
func (t *DeadlineTracker) ResolveDeadline(year models.AcademicYear, kind *models.AssessmentKind, assessmentDate time.Time) time.Time {
	days := t.cfg.DefaultDelayDays
	switch {
	case kind != nil && kind.DefaultDelayDays != nil:
		days = *kind.DefaultDelayDays
	case year.DefaultDelayDays != nil:
		days = *year.DefaultDelayDays
	}
	return assessmentDate.AddDate(0, 0, days)
}

// PrepareAssessment sets the submission deadline of a new assessment.
func (t *DeadlineTracker) PrepareAssessment(ctx context.Context, year models.AcademicYear, a *models.Assessment) error {
	kind, err := t.kinds.GetKind(ctx, a.KindCode)
	if err != nil {
		return notFoundOr(err, fmt.Sprintf("assessment kind %s not found", a.KindCode), "failed to load assessment kind")
	}
	a.AcademicYearID = year.ID
	a.SubmissionDeadline = t.ResolveDeadline(year, kind, a.AssessmentDate)
	a.SubmissionLocked = false
	return nil
}

// CanSubmit reports whether scores may be entered now.
func (t *DeadlineTracker) CanSubmit(year models.AcademicYear, a *models.Assessment, now time.Time) bool {
	if a.SubmissionLocked {
		return false
	}
	if now.After(a.SubmissionDeadline) {
		return year.AllowLateModification
	}
	return true
}

// CanModify reports whether scores may be changed now. Once submission is complete both the year
// and the assessment must authorize late modification.
func (t *DeadlineTracker) CanModify(year models.AcademicYear, a *models.Assessment, now time.Time) bool {
	if !a.SubmissionComplete {
		return t.CanSubmit(year, a, now)
	}
	return year.AllowLateModification && a.ModificationAuthorized
}

// Sweep locks overdue incomplete assessments when the year disallows late modification and warns
// graders and administrators about deadlines inside the urgent window, at most once per UTC day.
func (t *DeadlineTracker) Sweep(ctx context.Context, year models.AcademicYear, now time.Time) (*SweepResult, error) {
	pending, err := t.assessments.ListPending(ctx, year.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list pending assessments")
	}

	result := &SweepResult{}
	for i := range pending {
		a := &pending[i]
		if now.After(a.SubmissionDeadline) {
			if year.AllowLateModification || a.SubmissionLocked {
				continue
			}
			locked, err := t.assessments.Lock(ctx, a.ID, now)
			if err != nil {
				result.Errors = append(result.Errors, ItemError{ID: a.ID, Message: err.Error()})
				continue
			}
			if locked {
				result.Locked++
			}
			continue
		}
		if a.SubmissionLocked || a.SubmissionDeadline.Sub(now) > t.cfg.UrgentWindow || notifiedOn(a.LastNotifiedAt, now) {
			continue
		}
		sent, err := t.notify(ctx, a, now)
		result.Notified += sent
		if err != nil {
			result.Errors = append(result.Errors, ItemError{ID: a.ID, Message: err.Error()})
		}
	}

	t.metrics.RecordDeadlineLocks(result.Locked)
	t.metrics.RecordNotifications(result.Notified)
	t.logger.Sugar().Infow("deadline sweep finished", "academic_year_id", year.ID, "pending", len(pending), "locked", result.Locked, "notified", result.Notified, "errors", len(result.Errors))
	return result, nil
}

// notify publishes one event per grader and administrator then stamps the assessment.
// The stamp is only written when every event went out so a partial failure is retried next sweep.
func (t *DeadlineTracker) notify(ctx context.Context, a *models.Assessment, now time.Time) (int, error) {
	if t.publisher == nil {
		return 0, nil
	}
	recipients := make([]DeadlineEvent, 0, 1+len(t.cfg.AdminRecipients))
	if a.TeacherID != "" {
		recipients = append(recipients, t.event(a, a.TeacherID, models.RoleTeacher, now))
	}
	for _, admin := range t.cfg.AdminRecipients {
		recipients = append(recipients, t.event(a, admin, models.RoleAdmin, now))
	}

	sent := 0
	for _, event := range recipients {
		if err := t.publisher.Publish(ctx, t.cfg.Topic, EventDeadlineWarning, event); err != nil {
			return sent, fmt.Errorf("publish deadline warning to %s: %w", event.Recipient, err)
		}
		sent++
	}
	if err := t.assessments.MarkNotified(ctx, a.ID, now); err != nil {
		return sent, err
	}
	a.LastNotifiedAt = &now
	return sent, nil
}

func (t *DeadlineTracker) event(a *models.Assessment, recipient string, role models.UserRole, now time.Time) DeadlineEvent {
	remaining := a.SubmissionDeadline.Sub(now).Round(time.Hour)
	return DeadlineEvent{
		ID:            uuid.NewString(),
		AssessmentID:  a.ID,
		Recipient:     recipient,
		RecipientRole: role,
		Subject:       fmt.Sprintf("Grade submission due soon: %s", a.Title),
		Fields: map[string]string{
			"assessment_id": a.ID,
			"title":         a.Title,
			"class_id":      a.ClassID,
			"component_id":  a.ComponentID,
			"deadline":      a.SubmissionDeadline.UTC().Format(time.RFC3339),
			"remaining":     remaining.String(),
		},
	}
}

// ExtendDeadline pushes the deadline extraDays past the later of the current deadline and now, and reopens submission.
func (t *DeadlineTracker) ExtendDeadline(ctx context.Context, year models.AcademicYear, assessmentID string, extraDays int, actor string) (*models.Assessment, error) {
	if extraDays <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "extra days must be positive")
	}
	a, err := t.load(ctx, year, assessmentID)
	if err != nil {
		return nil, err
	}
	now := t.now()
	base := a.SubmissionDeadline
	if now.After(base) {
		base = now
	}
	deadline := base.AddDate(0, 0, extraDays)
	if err := t.assessments.ExtendDeadline(ctx, a.ID, deadline, now); err != nil {
		return nil, appErrors.Internal(err, "failed to extend deadline")
	}
	t.logger.Sugar().Infow("assessment deadline extended", "assessment_id", a.ID, "previous_deadline", a.SubmissionDeadline, "deadline", deadline, "actor", actor)
	a.SubmissionDeadline = deadline
	a.SubmissionLocked = false
	a.LastNotifiedAt = nil
	a.UpdatedAt = now
	return a, nil
}

// AuthorizeLateModification toggles the per-assessment modification flag.
func (t *DeadlineTracker) AuthorizeLateModification(ctx context.Context, year models.AcademicYear, assessmentID string, allowed bool, actor string) (*models.Assessment, error) {
	a, err := t.load(ctx, year, assessmentID)
	if err != nil {
		return nil, err
	}
	now := t.now()
	if err := t.assessments.SetModificationAuthorized(ctx, a.ID, allowed, now); err != nil {
		return nil, appErrors.Internal(err, "failed to update modification authorization")
	}
	t.logger.Sugar().Infow("late modification authorization changed", "assessment_id", a.ID, "allowed", allowed, "actor", actor)
	a.ModificationAuthorized = allowed
	a.UpdatedAt = now
	return a, nil
}

// RecordModification counts one post-completion edit, refusing edits past MaxModifications (0 = unlimited).
func (t *DeadlineTracker) RecordModification(ctx context.Context, a *models.Assessment) error {
	ok, err := t.assessments.IncrementModifications(ctx, a.ID, t.now())
	if err != nil {
		return appErrors.Internal(err, "failed to record modification")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrModificationDenied, fmt.Sprintf("modification limit of %d reached", a.MaxModifications))
	}
	a.ModificationCount++
	return nil
}

func (t *DeadlineTracker) load(ctx context.Context, year models.AcademicYear, assessmentID string) (*models.Assessment, error) {
	a, err := t.assessments.FindByID(ctx, assessmentID)
	if err != nil {
		return nil, notFoundOr(err, "assessment not found", "failed to load assessment")
	}
	if a.AcademicYearID != year.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assessment does not belong to the academic year")
	}
	return a, nil
}

// notifiedOn reports whether last falls on the same UTC calendar day as now.
func notifiedOn(last *time.Time, now time.Time) bool {
	if last == nil {
		return false
	}
	ly, lm, ld := last.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	return ly == ny && lm == nm && ld == nd
}
