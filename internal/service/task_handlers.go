package service

import (
	"context"

	"github.com/noah-isme/sma-records-api/internal/models"
)

type summaryGeneratorRunner interface {
	Generate(ctx context.Context, year models.AcademicYear, classID, termID, sessionID string) (*models.TermSummary, error)
}

type enrollmentRunner interface {
	Propagate(ctx context.Context, year models.AcademicYear, classID, termID string) (models.TaskPayload, error)
}

type classRecomputer interface {
	RecomputeClass(ctx context.Context, year models.AcademicYear, classID, termID, sessionID string) (*RecomputeResult, error)
}

// BuildTaskHandlers binds every task kind to the service that performs it.
func BuildTaskHandlers(summaries summaryGeneratorRunner, enrollments enrollmentRunner, averages classRecomputer) TaskHandlers {
	return TaskHandlers{
		TermSummary: func(ctx context.Context, year models.AcademicYear, task models.ScheduledTask) (models.TaskPayload, error) {
			summary, err := summaries.Generate(ctx, year, task.ClassID, task.TermID, task.SessionID)
			if err != nil {
				return nil, err
			}
			result := models.TaskPayload{
				"summary_id":    summary.ID,
				"student_count": summary.StudentCount,
			}
			if summary.ClassAverage != nil {
				result["class_average"] = *summary.ClassAverage
			}
			if summary.PassRate != nil {
				result["pass_rate"] = *summary.PassRate
			}
			return result, nil
		},
		ComponentEnroll: func(ctx context.Context, year models.AcademicYear, task models.ScheduledTask) (models.TaskPayload, error) {
			return enrollments.Propagate(ctx, year, task.ClassID, task.TermID)
		},
		RecomputeClass: func(ctx context.Context, year models.AcademicYear, task models.ScheduledTask) (models.TaskPayload, error) {
			res, err := averages.RecomputeClass(ctx, year, task.ClassID, task.TermID, task.SessionID)
			if err != nil {
				return nil, err
			}
			return models.TaskPayload{
				"processed": res.Processed,
				"computed":  res.Computed,
				"errors":    len(res.Errors),
			}, nil
		},
	}
}
