package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-records-api/internal/models"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

type scoreStore interface {
	Upsert(ctx context.Context, score *models.Score) error
	FindByID(ctx context.Context, id string) (*models.Score, error)
	ListByAssessment(ctx context.Context, assessmentID string) ([]models.Score, error)
	Update(ctx context.Context, score *models.Score) error
	AppendAudit(ctx context.Context, audit *models.ScoreAudit) error
}

type scoreAssessmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	MarkComplete(ctx context.Context, id string, at time.Time) error
}

type enrollmentChecker interface {
	FindActive(ctx context.Context, studentID, classID, yearID string) (*models.Enrollment, error)
	ListActiveStudents(ctx context.Context, classID, yearID string) ([]models.EnrolledStudent, error)
}

type submissionGate interface {
	CanSubmit(year models.AcademicYear, a *models.Assessment, now time.Time) bool
	CanModify(year models.AcademicYear, a *models.Assessment, now time.Time) bool
	RecordModification(ctx context.Context, a *models.Assessment) error
}

type componentAverager interface {
	ComputeComponentAverage(ctx context.Context, year models.AcademicYear, studentID, componentID, sessionID string) (*models.ComponentAverage, error)
}

// ScoreItem is one student line of a bulk submission. Value may be omitted for an absent student.
type ScoreItem struct {
	StudentID        string   `json:"student_id" validate:"required"`
	Value            *float64 `json:"value"`
	Absent           bool     `json:"absent"`
	AbsenceJustified bool     `json:"absence_justified"`
}

// BulkScoreRequest carries the scores of one assessment.
type BulkScoreRequest struct {
	Items []ScoreItem `json:"items" validate:"required,min=1,dive"`
}

// ScoreFailure reports a rejected line.
type ScoreFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// BulkScoreResult summarises a bulk submission.
type BulkScoreResult struct {
	SuccessCount  int                       `json:"success_count"`
	Failures      []ScoreFailure            `json:"failures,omitempty"`
	Completed     bool                      `json:"completed"`
	Averages      []models.ComponentAverage `json:"averages,omitempty"`
	AverageErrors []ItemError               `json:"average_errors,omitempty"`
}

// UpdateScoreRequest changes a single score after entry.
type UpdateScoreRequest struct {
	Value            *float64 `json:"value"`
	Absent           bool     `json:"absent"`
	AbsenceJustified bool     `json:"absence_justified"`
}

// ScoreService handles grade entry against an assessment.
type ScoreService struct {
	scores      scoreStore
	assessments scoreAssessmentStore
	enrollments enrollmentChecker
	gate        submissionGate
	engine      componentAverager
	tx          transactor
	policy      GradingPolicy
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewScoreService constructs ScoreService.
func NewScoreService(scores scoreStore, assessments scoreAssessmentStore, enrollments enrollmentChecker, gate submissionGate, engine componentAverager, tx transactor, policy GradingPolicy, validate *validator.Validate, logger *zap.Logger) *ScoreService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.ScaleMax <= 0 {
		policy.ScaleMax = defaultScaleMax
	}
	return &ScoreService{
		scores:      scores,
		assessments: assessments,
		enrollments: enrollments,
		gate:        gate,
		engine:      engine,
		tx:          tx,
		policy:      policy,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ListByAssessment returns the scores entered for an assessment.
func (s *ScoreService) ListByAssessment(ctx context.Context, assessmentID string) ([]models.Score, error) {
	scores, err := s.scores.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list scores")
	}
	return scores, nil
}

// SubmitScores stores every valid line. When no line fails the assessment is marked complete and the
// component averages of the class are refreshed. A resubmission on a complete assessment is applied as
// one counted modification.
func (s *ScoreService) SubmitScores(ctx context.Context, year models.AcademicYear, assessmentID string, req BulkScoreRequest, actor string) (*BulkScoreResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload")
	}
	assessment, err := s.loadAssessment(ctx, year, assessmentID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.checkGate(year, assessment, now); err != nil {
		return nil, err
	}
	stored, err := s.storedScores(ctx, assessment.ID)
	if err != nil {
		return nil, err
	}
	if assessment.SubmissionComplete {
		return s.resubmit(ctx, year, assessment, req, stored, actor, now)
	}

	result := &BulkScoreResult{}
	for _, item := range req.Items {
		if reason := s.rejectItem(ctx, year, assessment, item); reason != "" {
			result.Failures = append(result.Failures, ScoreFailure{StudentID: item.StudentID, Reason: reason})
			continue
		}
		if err := s.storeScore(ctx, assessment, item, stored, actor, now); err != nil {
			s.logger.Sugar().Errorw("score upsert failed", "assessment_id", assessment.ID, "student_id", item.StudentID, "error", err)
			result.Failures = append(result.Failures, ScoreFailure{StudentID: item.StudentID, Reason: "failed to store score"})
			continue
		}
		result.SuccessCount++
	}

	if len(result.Failures) > 0 {
		s.logger.Sugar().Warnw("score submission partially rejected", "assessment_id", assessment.ID, "stored", result.SuccessCount, "rejected", len(result.Failures), "actor", actor)
		return result, nil
	}

	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.assessments.MarkComplete(txCtx, assessment.ID, now); err != nil {
			return appErrors.Internal(err, "failed to mark submission complete")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	assessment.SubmissionComplete = true
	result.Completed = true

	s.refreshAverages(ctx, year, assessment, result)
	s.logger.Sugar().Infow("scores submitted", "assessment_id", assessment.ID, "stored", result.SuccessCount, "averages", len(result.Averages), "actor", actor)
	return result, nil
}

// resubmit applies a bulk edit to a complete assessment. Every line must be valid; the modification is
// counted before any score is written and the whole edit shares one transaction.
func (s *ScoreService) resubmit(ctx context.Context, year models.AcademicYear, a *models.Assessment, req BulkScoreRequest, stored map[string]*models.Score, actor string, now time.Time) (*BulkScoreResult, error) {
	result := &BulkScoreResult{Completed: true}
	for _, item := range req.Items {
		if reason := s.rejectItem(ctx, year, a, item); reason != "" {
			result.Failures = append(result.Failures, ScoreFailure{StudentID: item.StudentID, Reason: reason})
		}
	}
	if len(result.Failures) > 0 {
		s.logger.Sugar().Warnw("score resubmission rejected", "assessment_id", a.ID, "rejected", len(result.Failures), "actor", actor)
		return result, nil
	}

	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.gate.RecordModification(txCtx, a); err != nil {
			return err
		}
		for _, item := range req.Items {
			if err := s.storeScore(txCtx, a, item, stored, actor, now); err != nil {
				return appErrors.Internal(err, "failed to store score")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.SuccessCount = len(req.Items)

	s.refreshAverages(ctx, year, a, result)
	s.logger.Sugar().Infow("scores resubmitted", "assessment_id", a.ID, "stored", result.SuccessCount, "modifications", a.ModificationCount, "actor", actor)
	return result, nil
}

// storeScore writes one line. Overwriting a stored score keeps the prior value and appends an audit
// record in the same transaction; an unchanged line is not rewritten.
func (s *ScoreService) storeScore(ctx context.Context, a *models.Assessment, item ScoreItem, stored map[string]*models.Score, actor string, now time.Time) error {
	score := &models.Score{
		StudentID:        item.StudentID,
		AssessmentID:     a.ID,
		Value:            scoreValue(item.Value, item.Absent),
		Absent:           item.Absent,
		AbsenceJustified: item.Absent && item.AbsenceJustified,
	}
	prev, ok := stored[item.StudentID]
	if !ok {
		if err := s.scores.Upsert(ctx, score); err != nil {
			return err
		}
		stored[item.StudentID] = score
		return nil
	}
	if sameScore(prev, score) {
		return nil
	}

	score.ID = prev.ID
	score.CreatedAt = prev.CreatedAt
	score.PreviousValue = prev.Value
	score.ModifiedAt = &now
	score.ModifiedBy = &actor
	audit := &models.ScoreAudit{
		ScoreID:   prev.ID,
		OldValue:  prev.Value,
		NewValue:  score.Value,
		OldAbsent: prev.Absent,
		NewAbsent: score.Absent,
		Actor:     actor,
		ChangedAt: now,
	}
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.scores.Upsert(txCtx, score); err != nil {
			return err
		}
		audit.ScoreID = score.ID
		return s.scores.AppendAudit(txCtx, audit)
	})
	if err != nil {
		return err
	}
	stored[item.StudentID] = score
	return nil
}

func (s *ScoreService) storedScores(ctx context.Context, assessmentID string) (map[string]*models.Score, error) {
	scores, err := s.scores.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load stored scores")
	}
	stored := make(map[string]*models.Score, len(scores))
	for i := range scores {
		stored[scores[i].StudentID] = &scores[i]
	}
	return stored, nil
}

// UpdateScore changes one score and appends an audit record in the same transaction.
func (s *ScoreService) UpdateScore(ctx context.Context, year models.AcademicYear, scoreID string, req UpdateScoreRequest, actor string) (*models.Score, error) {
	score, err := s.scores.FindByID(ctx, scoreID)
	if err != nil {
		return nil, notFoundOr(err, "score not found", "failed to load score")
	}
	assessment, err := s.loadAssessment(ctx, year, score.AssessmentID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !s.gate.CanModify(year, assessment, now) {
		return nil, appErrors.Clone(appErrors.ErrModificationDenied, "score modification not allowed for this assessment")
	}
	if reason := s.validateValue(req.Value, req.Absent); reason != "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, reason)
	}

	audit := &models.ScoreAudit{
		ScoreID:   score.ID,
		OldValue:  score.Value,
		NewValue:  scoreValue(req.Value, req.Absent),
		OldAbsent: score.Absent,
		NewAbsent: req.Absent,
		Actor:     actor,
		ChangedAt: now,
	}
	updated := *score
	updated.PreviousValue = score.Value
	updated.Value = audit.NewValue
	updated.Absent = req.Absent
	updated.AbsenceJustified = req.Absent && req.AbsenceJustified
	updated.ModifiedAt = &now
	updated.ModifiedBy = &actor

	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if assessment.SubmissionComplete {
			if err := s.gate.RecordModification(txCtx, assessment); err != nil {
				return err
			}
		}
		if err := s.scores.Update(txCtx, &updated); err != nil {
			return appErrors.Internal(err, "failed to update score")
		}
		if err := s.scores.AppendAudit(txCtx, audit); err != nil {
			return appErrors.Internal(err, "failed to record score audit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.engine.ComputeComponentAverage(ctx, year, updated.StudentID, assessment.ComponentID, assessment.SessionID); err != nil {
		s.logger.Sugar().Warnw("component average refresh failed", "student_id", updated.StudentID, "component_id", assessment.ComponentID, "error", err)
	}
	s.logger.Sugar().Infow("score updated", "score_id", updated.ID, "assessment_id", assessment.ID, "actor", actor)
	return &updated, nil
}

func (s *ScoreService) loadAssessment(ctx context.Context, year models.AcademicYear, id string) (*models.Assessment, error) {
	assessment, err := s.assessments.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "assessment not found", "failed to load assessment")
	}
	if assessment.AcademicYearID != year.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assessment does not belong to the academic year")
	}
	return assessment, nil
}

func (s *ScoreService) checkGate(year models.AcademicYear, a *models.Assessment, now time.Time) error {
	if a.SubmissionComplete {
		if !s.gate.CanModify(year, a, now) {
			return appErrors.Clone(appErrors.ErrModificationDenied, "submission already complete and modification not authorized")
		}
		return nil
	}
	if !s.gate.CanSubmit(year, a, now) {
		return appErrors.Clone(appErrors.ErrSubmissionClosed, fmt.Sprintf("submission closed since %s", a.SubmissionDeadline.UTC().Format(time.RFC3339)))
	}
	return nil
}

// rejectItem returns a non-empty reason when the line cannot be stored.
func (s *ScoreService) rejectItem(ctx context.Context, year models.AcademicYear, a *models.Assessment, item ScoreItem) string {
	if reason := s.validateValue(item.Value, item.Absent); reason != "" {
		return reason
	}
	if _, err := s.enrollments.FindActive(ctx, item.StudentID, a.ClassID, year.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "student not enrolled in class"
		}
		s.logger.Sugar().Errorw("enrollment lookup failed", "student_id", item.StudentID, "class_id", a.ClassID, "error", err)
		return "failed to verify enrollment"
	}
	return ""
}

func (s *ScoreService) validateValue(value *float64, absent bool) string {
	if absent {
		return ""
	}
	if value == nil {
		return "value required unless absent"
	}
	if *value < 0 || *value > s.policy.ScaleMax {
		return fmt.Sprintf("value must be between 0 and %s", formatNumber(s.policy.ScaleMax))
	}
	return ""
}

// refreshAverages recomputes the component average of every enrolled student. Failures are reported
// per student and never undo the stored scores.
func (s *ScoreService) refreshAverages(ctx context.Context, year models.AcademicYear, a *models.Assessment, result *BulkScoreResult) {
	students, err := s.enrollments.ListActiveStudents(ctx, a.ClassID, year.ID)
	if err != nil {
		result.AverageErrors = append(result.AverageErrors, ItemError{ID: a.ClassID, Message: "failed to list enrolled students"})
		return
	}
	for _, student := range students {
		avg, err := s.engine.ComputeComponentAverage(ctx, year, student.StudentID, a.ComponentID, a.SessionID)
		if err != nil {
			result.AverageErrors = append(result.AverageErrors, ItemError{ID: student.StudentID, Message: err.Error()})
			continue
		}
		if avg != nil {
			result.Averages = append(result.Averages, *avg)
		}
	}
}

func sameScore(a, b *models.Score) bool {
	if a.Absent != b.Absent || a.AbsenceJustified != b.AbsenceJustified {
		return false
	}
	if a.Value == nil || b.Value == nil {
		return a.Value == nil && b.Value == nil
	}
	return *a.Value == *b.Value
}

func scoreValue(value *float64, absent bool) *float64 {
	if absent || value == nil {
		return nil
	}
	v := *value
	return &v
}
