package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/internal/repository"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

// Mention and decision of a student without a computable term average.
const resultIncomplete = "Incomplete"

const summaryCacheTTL = 10 * time.Minute

type summaryStore interface {
	GetOrCreate(ctx context.Context, classID, termID, sessionID, yearID string) (*models.TermSummary, bool, error)
	GetByID(ctx context.Context, id string) (*models.TermSummary, error)
	ListByClass(ctx context.Context, classID string) ([]models.TermSummary, error)
	Update(ctx context.Context, id string, params repository.UpdateSummaryParams) error
	MarkGenerated(ctx context.Context, classID, termID, sessionID, yearID string, at time.Time) error
}

type summaryAcademicReader interface {
	FindClass(ctx context.Context, id string) (*models.Class, error)
	FindTerm(ctx context.Context, id string) (*models.Term, error)
	FindSession(ctx context.Context, id string) (*models.ExamSession, error)
}

type termAverageSource interface {
	EnsureTermAverage(ctx context.Context, year models.AcademicYear, studentID string, class models.Class, termID, sessionID string) (*models.TermAverage, error)
	Policy() GradingPolicy
}

type storedAverageReader interface {
	FindUnit(ctx context.Context, key models.AverageKey, unitID string) (*models.UnitAverage, error)
	ListTermAverages(ctx context.Context, classID, termID, sessionID, yearID string) ([]models.TermAverage, error)
}

type unitLister interface {
	ListUnits(ctx context.Context, level, termID string) ([]models.CourseUnit, error)
}

type artifactWriter interface {
	Store(ctx context.Context, summaryID string, artifact models.SummaryArtifact) (string, error)
}

type jsonCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SummaryGenerator produces one term summary per (class, term, session, year).
type SummaryGenerator struct {
	summaries   summaryStore
	academic    summaryAcademicReader
	enrollments activeStudentLister
	engine      termAverageSource
	averages    storedAverageReader
	units       unitLister
	artifacts   artifactWriter
	cache       jsonCache
	tx          transactor
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
}

// NewSummaryGenerator constructs the generator. artifacts and cache may be nil.
func NewSummaryGenerator(summaries summaryStore, academic summaryAcademicReader, enrollments activeStudentLister, engine termAverageSource, averages storedAverageReader, units unitLister, artifacts artifactWriter, cache jsonCache, tx transactor, metrics *MetricsService, logger *zap.Logger) *SummaryGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryGenerator{
		summaries:   summaries,
		academic:    academic,
		enrollments: enrollments,
		engine:      engine,
		averages:    averages,
		units:       units,
		artifacts:   artifacts,
		cache:       cache,
		tx:          tx,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds the summary of a class term. A summary already done is returned untouched.
// On failure the row is marked failed and returned together with the error; averages computed
// on the way stay stored.
func (g *SummaryGenerator) Generate(ctx context.Context, year models.AcademicYear, classID, termID, sessionID string) (*models.TermSummary, error) {
	summary, created, err := g.summaries.GetOrCreate(ctx, classID, termID, sessionID, year.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load term summary")
	}
	if summary.Status == models.SummaryStatusDone {
		g.logger.Sugar().Infow("term summary already generated", "summary_id", summary.ID, "class_id", classID, "term_id", termID, "session_id", sessionID)
		return summary, nil
	}
	if !created {
		running := models.SummaryStatusRunning
		empty := ""
		if err := g.summaries.Update(ctx, summary.ID, repository.UpdateSummaryParams{Status: &running, ErrorMessage: &empty}); err != nil {
			return nil, appErrors.Internal(err, "failed to restart term summary")
		}
		summary.Status = running
		summary.ErrorMessage = nil
	}

	if err := g.generate(ctx, year, summary); err != nil {
		g.fail(ctx, summary, err)
		return summary, err
	}
	g.invalidate(ctx, summary)
	g.logger.Sugar().Infow("term summary generated", "summary_id", summary.ID, "class_id", classID, "term_id", termID, "session_id", sessionID, "students", summary.StudentCount)
	return summary, nil
}

func (g *SummaryGenerator) generate(ctx context.Context, year models.AcademicYear, summary *models.TermSummary) error {
	class, err := g.academic.FindClass(ctx, summary.ClassID)
	if err != nil {
		return fmt.Errorf("load class: %w", err)
	}
	term, err := g.academic.FindTerm(ctx, summary.TermID)
	if err != nil {
		return fmt.Errorf("load term: %w", err)
	}
	session, err := g.academic.FindSession(ctx, summary.SessionID)
	if err != nil {
		return fmt.Errorf("load exam session: %w", err)
	}
	students, err := g.enrollments.ListActiveStudents(ctx, class.ID, year.ID)
	if err != nil {
		return fmt.Errorf("list enrolled students: %w", err)
	}
	units, err := g.units.ListUnits(ctx, class.Level, term.ID)
	if err != nil {
		return fmt.Errorf("list course units: %w", err)
	}

	generatedAt := g.now()
	artifact := models.SummaryArtifact{
		Class:       models.ArtifactRef{ID: class.ID, Name: class.Name},
		Term:        models.ArtifactRef{ID: term.ID, Name: term.Name},
		Session:     models.ArtifactRef{ID: session.ID, Name: string(session.Kind)},
		GeneratedAt: generatedAt,
		Students:    make([]models.StudentSummaryRow, 0, len(students)),
	}
	for _, student := range students {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := g.studentRow(ctx, year, *class, term.ID, session.ID, student, units)
		if err != nil {
			return fmt.Errorf("student %s: %w", student.Matricule, err)
		}
		artifact.Students = append(artifact.Students, row)
	}

	termAverages, err := g.averages.ListTermAverages(ctx, class.ID, term.ID, session.ID, year.ID)
	if err != nil {
		return fmt.Errorf("list term averages: %w", err)
	}
	count, classAverage, passRate := classStatistics(termAverages, g.engine.Policy())

	var artifactPath *string
	if g.artifacts != nil {
		path, err := g.artifacts.Store(ctx, summary.ID, artifact)
		if err != nil {
			return fmt.Errorf("store artifact: %w", err)
		}
		artifactPath = &path
	}

	done := models.SummaryStatusDone
	err = g.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := g.summaries.Update(ctx, summary.ID, repository.UpdateSummaryParams{
			Status:       &done,
			StudentCount: &count,
			ClassAverage: classAverage,
			PassRate:     passRate,
			ArtifactPath: artifactPath,
			Artifact:     &artifact,
			GeneratedAt:  &generatedAt,
		}); err != nil {
			return err
		}
		return g.summaries.MarkGenerated(ctx, class.ID, term.ID, session.ID, year.ID, generatedAt)
	})
	if err != nil {
		return fmt.Errorf("persist summary: %w", err)
	}

	summary.Status = done
	summary.StudentCount = count
	summary.ClassAverage = classAverage
	summary.PassRate = passRate
	summary.ArtifactPath = artifactPath
	summary.Artifact = &artifact
	summary.GeneratedAt = &generatedAt
	return nil
}

func (g *SummaryGenerator) studentRow(ctx context.Context, year models.AcademicYear, class models.Class, termID, sessionID string, student models.EnrolledStudent, units []models.CourseUnit) (models.StudentSummaryRow, error) {
	row := models.StudentSummaryRow{
		Matricule:    student.Matricule,
		FullName:     student.FullName,
		UnitAverages: []models.UnitAverageEntry{},
		Mention:      resultIncomplete,
		Decision:     resultIncomplete,
	}
	termAvg, err := g.engine.EnsureTermAverage(ctx, year, student.StudentID, class, termID, sessionID)
	if err != nil {
		return row, err
	}

	key := models.AverageKey{StudentID: student.StudentID, SessionID: sessionID, AcademicYearID: year.ID}
	for _, unit := range units {
		row.CreditsRequired += unit.Credits
		unitAvg, err := g.averages.FindUnit(ctx, key, unit.ID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return row, err
		}
		row.UnitAverages = append(row.UnitAverages, models.UnitAverageEntry{
			UnitCode:      unit.Code,
			UnitName:      unit.Name,
			Average:       unitAvg.Average,
			CreditsEarned: unitAvg.CreditsEarned,
		})
	}
	if termAvg == nil {
		return row, nil
	}

	average := termAvg.Average
	row.TermAverage = &average
	row.CreditsEarned = termAvg.CreditsEarned
	row.CreditsRequired = termAvg.CreditsRequired
	row.Mention = Mention(average)
	row.Decision = Decision(average, termAvg.CreditsEarned, termAvg.CreditsRequired)
	return row, nil
}

// classStatistics returns the count, mean and pass rate (percent) of the term averages.
func classStatistics(averages []models.TermAverage, policy GradingPolicy) (int, *float64, *float64) {
	if len(averages) == 0 {
		return 0, nil, nil
	}
	var sum float64
	passed := 0
	for _, avg := range averages {
		sum += avg.Average
		if policy.Passed(avg.Average) {
			passed++
		}
	}
	mean := round2(sum / float64(len(averages)))
	rate := round2(float64(passed) / float64(len(averages)) * 100)
	return len(averages), &mean, &rate
}

func (g *SummaryGenerator) fail(ctx context.Context, summary *models.TermSummary, cause error) {
	failed := models.SummaryStatusFailed
	msg := cause.Error()
	if err := g.summaries.Update(context.WithoutCancel(ctx), summary.ID, repository.UpdateSummaryParams{Status: &failed, ErrorMessage: &msg}); err != nil {
		g.logger.Sugar().Errorw("failed to record summary failure", "summary_id", summary.ID, "error", err)
	}
	summary.Status = failed
	summary.ErrorMessage = &msg
	g.invalidate(ctx, summary)
	g.logger.Sugar().Warnw("term summary failed", "summary_id", summary.ID, "class_id", summary.ClassID, "error", cause)
}

func (g *SummaryGenerator) invalidate(ctx context.Context, summary *models.TermSummary) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Delete(context.WithoutCancel(ctx), repository.SummaryCacheKey(summary.ID), repository.ClassSummariesCacheKey(summary.ClassID)); err != nil {
		g.logger.Sugar().Warnw("failed to invalidate summary cache", "summary_id", summary.ID, "error", err)
	}
}

// Get returns a summary, served from the read cache when possible.
func (g *SummaryGenerator) Get(ctx context.Context, id string) (*models.TermSummary, error) {
	key := repository.SummaryCacheKey(id)
	if g.cache != nil {
		var cached models.TermSummary
		if err := g.cache.Get(ctx, key, &cached); err == nil {
			g.metrics.RecordCacheOperation(true)
			return &cached, nil
		}
		g.metrics.RecordCacheOperation(false)
	}
	summary, err := g.summaries.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "term summary not found", "failed to load term summary")
	}
	if g.cache != nil && summary.Status.Terminal() {
		if err := g.cache.Set(ctx, key, summary, summaryCacheTTL); err != nil {
			g.logger.Sugar().Warnw("failed to cache summary", "summary_id", id, "error", err)
		}
	}
	return summary, nil
}

// ListByClass returns the summaries of a class.
func (g *SummaryGenerator) ListByClass(ctx context.Context, classID string) ([]models.TermSummary, error) {
	key := repository.ClassSummariesCacheKey(classID)
	if g.cache != nil {
		var cached []models.TermSummary
		if err := g.cache.Get(ctx, key, &cached); err == nil {
			g.metrics.RecordCacheOperation(true)
			return cached, nil
		}
		g.metrics.RecordCacheOperation(false)
	}
	summaries, err := g.summaries.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list term summaries")
	}
	if g.cache != nil {
		if err := g.cache.Set(ctx, key, summaries, summaryCacheTTL); err != nil {
			g.logger.Sugar().Warnw("failed to cache summaries", "class_id", classID, "error", err)
		}
	}
	return summaries, nil
}
