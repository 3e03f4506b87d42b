package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-records-api/internal/models"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

const (
	levelComponent = "component"
	levelUnit      = "unit"
	levelTerm      = "term"
)

type averageStore interface {
	UpsertComponent(ctx context.Context, avg *models.ComponentAverage) error
	UpsertUnit(ctx context.Context, avg *models.UnitAverage) error
	UpsertTerm(ctx context.Context, avg *models.TermAverage) error
	FindComponent(ctx context.Context, key models.AverageKey, componentID string) (*models.ComponentAverage, error)
	FindUnit(ctx context.Context, key models.AverageKey, unitID string) (*models.UnitAverage, error)
	FindTerm(ctx context.Context, key models.AverageKey, classID, termID string) (*models.TermAverage, error)
	DeleteComponent(ctx context.Context, key models.AverageKey, componentID string) error
	DeleteUnit(ctx context.Context, key models.AverageKey, unitID string) error
	DeleteTerm(ctx context.Context, key models.AverageKey, classID, termID string) error
}

type curriculumReader interface {
	GetComponent(ctx context.Context, id string) (*models.Component, error)
	GetUnit(ctx context.Context, id string) (*models.CourseUnit, error)
	ListWeights(ctx context.Context, componentID string) ([]models.AssessmentWeight, error)
	ListComponents(ctx context.Context, unitID string) ([]models.Component, error)
	ListUnits(ctx context.Context, level, termID string) ([]models.CourseUnit, error)
}

type kindScoreReader interface {
	ListKindScores(ctx context.Context, key models.AverageKey, componentID string) ([]models.KindScore, error)
}

type classFinder interface {
	FindClass(ctx context.Context, id string) (*models.Class, error)
}

type activeStudentLister interface {
	ListActiveStudents(ctx context.Context, classID, yearID string) ([]models.EnrolledStudent, error)
}

// transactor runs fn in one all-or-nothing transaction.
type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ItemError reports a per-item failure inside a batch.
type ItemError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// RecomputeResult summarises a class re-aggregation.
type RecomputeResult struct {
	Processed int         `json:"processed"`
	Computed  int         `json:"computed"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// AverageEngine computes component, unit and term averages. A nil average with a nil error means
// the value is not computable from the current configuration and data; a previously stored value
// for that level is then removed.
type AverageEngine struct {
	averages    averageStore
	curriculum  curriculumReader
	scores      kindScoreReader
	classes     classFinder
	enrollments activeStudentLister
	tx          transactor
	policy      GradingPolicy
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewAverageEngine constructs the engine.
func NewAverageEngine(averages averageStore, curriculum curriculumReader, scores kindScoreReader, classes classFinder, enrollments activeStudentLister, tx transactor, policy GradingPolicy, metrics *MetricsService, logger *zap.Logger) *AverageEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.PassThreshold <= 0 {
		policy.PassThreshold = defaultPassThreshold
	}
	return &AverageEngine{
		averages:    averages,
		curriculum:  curriculum,
		scores:      scores,
		classes:     classes,
		enrollments: enrollments,
		tx:          tx,
		policy:      policy,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Policy exposes the grading policy in use.
func (e *AverageEngine) Policy() GradingPolicy {
	return e.policy
}

// ComputeComponentAverage recomputes and stores the student's average for a component.
func (e *AverageEngine) ComputeComponentAverage(ctx context.Context, year models.AcademicYear, studentID, componentID, sessionID string) (*models.ComponentAverage, error) {
	if _, err := e.curriculum.GetComponent(ctx, componentID); err != nil {
		return nil, notFoundOr(err, "component not found", "failed to load component")
	}
	r := e.newResolver(year, studentID, sessionID, false)
	var result *models.ComponentAverage
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = r.component(ctx, componentID, true)
		return err
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to compute component average")
	}
	return result, nil
}

// ComputeUnitAverage recomputes the student's unit average, computing missing component averages on demand.
func (e *AverageEngine) ComputeUnitAverage(ctx context.Context, year models.AcademicYear, studentID, unitID, sessionID string) (*models.UnitAverage, error) {
	unit, err := e.curriculum.GetUnit(ctx, unitID)
	if err != nil {
		return nil, notFoundOr(err, "course unit not found", "failed to load course unit")
	}
	r := e.newResolver(year, studentID, sessionID, false)
	var result *models.UnitAverage
	err = e.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = r.unit(ctx, *unit, true)
		return err
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to compute unit average")
	}
	return result, nil
}

// ComputeTermAverage recomputes the student's term average over the units of the class level and term,
// computing missing unit averages on demand.
func (e *AverageEngine) ComputeTermAverage(ctx context.Context, year models.AcademicYear, studentID, classID, termID, sessionID string) (*models.TermAverage, error) {
	class, err := e.classes.FindClass(ctx, classID)
	if err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}
	return e.computeTerm(ctx, year, studentID, *class, termID, sessionID, false)
}

// EnsureTermAverage returns the stored term average, computing it only when absent.
func (e *AverageEngine) EnsureTermAverage(ctx context.Context, year models.AcademicYear, studentID string, class models.Class, termID, sessionID string) (*models.TermAverage, error) {
	key := models.AverageKey{StudentID: studentID, SessionID: sessionID, AcademicYearID: year.ID}
	stored, err := e.averages.FindTerm(ctx, key, class.ID, termID)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load term average")
	}
	return e.computeTerm(ctx, year, studentID, class, termID, sessionID, false)
}

// RecomputeClass forces recomputation of every level for each active student of the class.
// Per-student failures are collected; one student's failure does not roll back another's.
func (e *AverageEngine) RecomputeClass(ctx context.Context, year models.AcademicYear, classID, termID, sessionID string) (*RecomputeResult, error) {
	class, err := e.classes.FindClass(ctx, classID)
	if err != nil {
		return nil, notFoundOr(err, "class not found", "failed to load class")
	}
	students, err := e.enrollments.ListActiveStudents(ctx, classID, year.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list enrolled students")
	}

	result := &RecomputeResult{}
	for _, student := range students {
		result.Processed++
		avg, err := e.computeTerm(ctx, year, student.StudentID, *class, termID, sessionID, true)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{ID: student.StudentID, Message: err.Error()})
			continue
		}
		if avg != nil {
			result.Computed++
		}
	}
	e.logger.Sugar().Infow("class averages recomputed", "class_id", classID, "term_id", termID, "session_id", sessionID, "processed", result.Processed, "computed", result.Computed, "errors", len(result.Errors))
	return result, nil
}

func (e *AverageEngine) computeTerm(ctx context.Context, year models.AcademicYear, studentID string, class models.Class, termID, sessionID string, force bool) (*models.TermAverage, error) {
	r := e.newResolver(year, studentID, sessionID, force)
	var result *models.TermAverage
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = r.term(ctx, class, termID)
		return err
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to compute term average")
	}
	return result, nil
}

func (e *AverageEngine) newResolver(year models.AcademicYear, studentID, sessionID string, force bool) *averageResolver {
	return &averageResolver{
		engine:     e,
		key:        models.AverageKey{StudentID: studentID, SessionID: sessionID, AcademicYearID: year.ID},
		force:      force,
		components: make(map[string]*models.ComponentAverage),
		units:      make(map[string]*models.UnitAverage),
	}
}

// averageResolver resolves the dependencies of one top-level computation. Lower levels are taken
// from storage when present unless force is set, otherwise computed once and memoized.
// A memoized nil marks a level as not computable.
type averageResolver struct {
	engine     *AverageEngine
	key        models.AverageKey
	force      bool
	components map[string]*models.ComponentAverage
	units      map[string]*models.UnitAverage
}

func (r *averageResolver) component(ctx context.Context, componentID string, top bool) (*models.ComponentAverage, error) {
	if avg, ok := r.components[componentID]; ok {
		return avg, nil
	}
	if !top && !r.force {
		stored, err := r.engine.averages.FindComponent(ctx, r.key, componentID)
		switch {
		case err == nil:
			r.components[componentID] = stored
			return stored, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}
	}

	weights, err := r.engine.curriculum.ListWeights(ctx, componentID)
	if err != nil {
		return nil, err
	}
	scores, err := r.engine.scores.ListKindScores(ctx, r.key, componentID)
	if err != nil {
		return nil, err
	}
	value, ok := weightedComponentAverage(weights, scores)
	if !ok {
		if err := r.engine.averages.DeleteComponent(ctx, r.key, componentID); err != nil {
			return nil, err
		}
		r.components[componentID] = nil
		r.engine.metrics.RecordAverage(levelComponent, outcomeNotComputable)
		return nil, nil
	}

	avg := &models.ComponentAverage{
		StudentID:      r.key.StudentID,
		ComponentID:    componentID,
		SessionID:      r.key.SessionID,
		AcademicYearID: r.key.AcademicYearID,
		Average:        value,
		Passed:         r.engine.policy.Passed(value),
		CalculatedAt:   r.engine.now(),
	}
	if err := r.engine.averages.UpsertComponent(ctx, avg); err != nil {
		r.engine.metrics.RecordAverage(levelComponent, outcomeError)
		return nil, err
	}
	r.components[componentID] = avg
	r.engine.metrics.RecordAverage(levelComponent, outcomeComputed)
	return avg, nil
}

func (r *averageResolver) unit(ctx context.Context, unit models.CourseUnit, top bool) (*models.UnitAverage, error) {
	if avg, ok := r.units[unit.ID]; ok {
		return avg, nil
	}
	if !top && !r.force {
		stored, err := r.engine.averages.FindUnit(ctx, r.key, unit.ID)
		switch {
		case err == nil:
			r.units[unit.ID] = stored
			return stored, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}
	}

	components, err := r.engine.curriculum.ListComponents(ctx, unit.ID)
	if err != nil {
		return nil, err
	}
	parts := make([]weightedPart, 0, len(components))
	for _, component := range components {
		avg, err := r.component(ctx, component.ID, false)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", component.Code, err)
		}
		if avg == nil {
			continue
		}
		parts = append(parts, weightedPart{percentage: component.WeightInUnit, value: avg.Average})
	}
	value, ok := normalizedAverage(parts)
	if !ok {
		if err := r.engine.averages.DeleteUnit(ctx, r.key, unit.ID); err != nil {
			return nil, err
		}
		r.units[unit.ID] = nil
		r.engine.metrics.RecordAverage(levelUnit, outcomeNotComputable)
		return nil, nil
	}

	avg := &models.UnitAverage{
		StudentID:      r.key.StudentID,
		UnitID:         unit.ID,
		SessionID:      r.key.SessionID,
		AcademicYearID: r.key.AcademicYearID,
		Average:        value,
		CreditsEarned:  r.engine.policy.creditsFor(value, unit.Credits),
		Passed:         r.engine.policy.Passed(value),
		CalculatedAt:   r.engine.now(),
	}
	if err := r.engine.averages.UpsertUnit(ctx, avg); err != nil {
		r.engine.metrics.RecordAverage(levelUnit, outcomeError)
		return nil, err
	}
	r.units[unit.ID] = avg
	r.engine.metrics.RecordAverage(levelUnit, outcomeComputed)
	return avg, nil
}

func (r *averageResolver) term(ctx context.Context, class models.Class, termID string) (*models.TermAverage, error) {
	units, err := r.engine.curriculum.ListUnits(ctx, class.Level, termID)
	if err != nil {
		return nil, err
	}
	var creditsEarned, creditsRequired float64
	parts := make([]weightedPart, 0, len(units))
	for _, unit := range units {
		creditsRequired += unit.Credits
		avg, err := r.unit(ctx, unit, false)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", unit.Code, err)
		}
		if avg == nil {
			continue
		}
		creditsEarned += avg.CreditsEarned
		parts = append(parts, weightedPart{percentage: unit.Coefficient, value: avg.Average})
	}
	value, ok := coefficientAverage(parts)
	if !ok {
		if err := r.engine.averages.DeleteTerm(ctx, r.key, class.ID, termID); err != nil {
			return nil, err
		}
		r.engine.metrics.RecordAverage(levelTerm, outcomeNotComputable)
		return nil, nil
	}

	avg := &models.TermAverage{
		StudentID:       r.key.StudentID,
		ClassID:         class.ID,
		TermID:          termID,
		SessionID:       r.key.SessionID,
		AcademicYearID:  r.key.AcademicYearID,
		Average:         value,
		CreditsEarned:   creditsEarned,
		CreditsRequired: creditsRequired,
		CalculatedAt:    r.engine.now(),
	}
	if err := r.engine.averages.UpsertTerm(ctx, avg); err != nil {
		r.engine.metrics.RecordAverage(levelTerm, outcomeError)
		return nil, err
	}
	r.engine.metrics.RecordAverage(levelTerm, outcomeComputed)
	return avg, nil
}

// notFoundOr maps sql.ErrNoRows to ErrNotFound and anything else to an internal error.
func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Internal(err, internal)
}
