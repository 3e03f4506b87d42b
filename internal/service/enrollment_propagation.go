package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-records-api/internal/models"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

type componentRegistrar interface {
	ListUnits(ctx context.Context, level, termID string) ([]models.CourseUnit, error)
	ListComponents(ctx context.Context, unitID string) ([]models.Component, error)
	RegisterComponent(ctx context.Context, reg *models.ComponentRegistration) (bool, error)
}

// EnrollmentPropagator registers every active student of a class in every component of a term.
type EnrollmentPropagator struct {
	classes     classFinder
	enrollments activeStudentLister
	curriculum  componentRegistrar
	tx          transactor
	logger      *zap.Logger
}

// NewEnrollmentPropagator constructs the propagator.
func NewEnrollmentPropagator(classes classFinder, enrollments activeStudentLister, curriculum componentRegistrar, tx transactor, logger *zap.Logger) *EnrollmentPropagator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentPropagator{classes: classes, enrollments: enrollments, curriculum: curriculum, tx: tx, logger: logger}
}

// Propagate creates the missing registrations in one transaction. Existing ones are left untouched,
// so re-running after new enrollments only adds what is missing.
func (p *EnrollmentPropagator) Propagate(ctx context.Context, year models.AcademicYear, classID, termID string) (models.TaskPayload, error) {
	class, err := p.classes.FindClass(ctx, classID)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("class %s not found", classID), "failed to load class")
	}

	var students, components, created int
	err = p.tx.WithinTx(ctx, func(txCtx context.Context) error {
		roster, err := p.enrollments.ListActiveStudents(txCtx, class.ID, year.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to list enrolled students")
		}
		students = len(roster)

		units, err := p.curriculum.ListUnits(txCtx, class.Level, termID)
		if err != nil {
			return appErrors.Internal(err, "failed to list course units")
		}
		var all []models.Component
		for _, unit := range units {
			items, err := p.curriculum.ListComponents(txCtx, unit.ID)
			if err != nil {
				return appErrors.Internal(err, "failed to list components")
			}
			all = append(all, items...)
		}
		components = len(all)

		for _, student := range roster {
			for _, component := range all {
				inserted, err := p.curriculum.RegisterComponent(txCtx, &models.ComponentRegistration{
					StudentID:      student.StudentID,
					ComponentID:    component.ID,
					AcademicYearID: year.ID,
				})
				if err != nil {
					return appErrors.Internal(err, "failed to register component")
				}
				if inserted {
					created++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Sugar().Infow("component registrations propagated", "class_id", class.ID, "term_id", termID, "students", students, "components", components, "created", created)
	return models.TaskPayload{
		"students":      students,
		"components":    components,
		"registrations": created,
	}, nil
}
