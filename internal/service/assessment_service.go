package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-records-api/internal/models"
	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

type assessmentRepo interface {
	Create(ctx context.Context, a *models.Assessment) error
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error)
}

type componentLoader interface {
	GetComponent(ctx context.Context, id string) (*models.Component, error)
}

type sessionFinder interface {
	FindSession(ctx context.Context, id string) (*models.ExamSession, error)
	FindClass(ctx context.Context, id string) (*models.Class, error)
}

type assessmentPreparer interface {
	PrepareAssessment(ctx context.Context, year models.AcademicYear, a *models.Assessment) error
}

// CreateAssessmentRequest declares a graded event.
type CreateAssessmentRequest struct {
	ComponentID      string    `json:"component_id" validate:"required"`
	ClassID          string    `json:"class_id" validate:"required"`
	TeacherID        string    `json:"teacher_id" validate:"required"`
	KindCode         string    `json:"kind_code" validate:"required"`
	SessionID        string    `json:"session_id" validate:"required"`
	Title            string    `json:"title" validate:"required,max=200"`
	AssessmentDate   time.Time `json:"assessment_date" validate:"required"`
	MaxModifications int       `json:"max_modifications" validate:"gte=0"`
}

// AssessmentService manages assessment declarations.
type AssessmentService struct {
	assessments assessmentRepo
	components  componentLoader
	academic    sessionFinder
	deadlines   assessmentPreparer
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssessmentService constructs AssessmentService.
func NewAssessmentService(assessments assessmentRepo, components componentLoader, academic sessionFinder, deadlines assessmentPreparer, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentService{
		assessments: assessments,
		components:  components,
		academic:    academic,
		deadlines:   deadlines,
		validator:   validate,
		logger:      logger,
	}
}

// Create validates the references, resolves the submission deadline and stores the assessment.
func (s *AssessmentService) Create(ctx context.Context, year models.AcademicYear, req CreateAssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	if _, err := s.components.GetComponent(ctx, req.ComponentID); err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("component %s not found", req.ComponentID), "failed to load component")
	}
	if _, err := s.academic.FindClass(ctx, req.ClassID); err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("class %s not found", req.ClassID), "failed to load class")
	}
	session, err := s.academic.FindSession(ctx, req.SessionID)
	if err != nil {
		return nil, notFoundOr(err, fmt.Sprintf("session %s not found", req.SessionID), "failed to load session")
	}
	if session.AcademicYearID != year.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session does not belong to the academic year")
	}

	assessment := &models.Assessment{
		ComponentID:      req.ComponentID,
		ClassID:          req.ClassID,
		TeacherID:        req.TeacherID,
		KindCode:         req.KindCode,
		SessionID:        req.SessionID,
		Title:            req.Title,
		AssessmentDate:   req.AssessmentDate.UTC(),
		MaxModifications: req.MaxModifications,
	}
	if err := s.deadlines.PrepareAssessment(ctx, year, assessment); err != nil {
		return nil, err
	}
	if err := s.assessments.Create(ctx, assessment); err != nil {
		return nil, appErrors.Internal(err, "failed to create assessment")
	}
	s.logger.Sugar().Infow("assessment created", "assessment_id", assessment.ID, "kind", assessment.KindCode, "deadline", assessment.SubmissionDeadline)
	return assessment, nil
}

// Get returns an assessment by id.
func (s *AssessmentService) Get(ctx context.Context, id string) (*models.Assessment, error) {
	a, err := s.assessments.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "assessment not found", "failed to load assessment")
	}
	return a, nil
}

// List returns assessments matching filter.
func (s *AssessmentService) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error) {
	items, err := s.assessments.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assessments")
	}
	return items, nil
}
