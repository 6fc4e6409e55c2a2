package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type crossRefRepository interface {
	List(ctx context.Context, filter models.CrossRefFilter) ([]models.CrossRefDetail, error)
	FindDetail(ctx context.Context, id string) (*models.CrossRefDetail, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.CrossRef, error)
	ExistsPair(ctx context.Context, exec sqlx.ExtContext, subjectID string, instructorID *string, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, ref *models.CrossRef) error
	Update(ctx context.Context, ref *models.CrossRef) error
}

type subjectLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error)
}

type instructorLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Instructor, error)
}

// CrossRefRequest pairs a subject with an optional instructor. Hue defaults to
// a value derived from the pairing.
type CrossRefRequest struct {
	SubjectID    string  `json:"subject_id" validate:"required"`
	InstructorID *string `json:"instructor_id"`
	Hue          *int    `json:"hue" validate:"omitempty,min=0,max=359"`
}

// CrossRefService manages schedule entries.
type CrossRefService struct {
	repo        crossRefRepository
	subjects    subjectLookup
	instructors instructorLookup
	validator   *validator.Validate
	feed        changeFeed
	logger      *zap.Logger
}

// NewCrossRefService constructs a CrossRefService.
func NewCrossRefService(repo crossRefRepository, subjects subjectLookup, instructors instructorLookup, validate *validator.Validate, logger *zap.Logger, opts ...FeedOption) *CrossRefService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrossRefService{
		repo:        repo,
		subjects:    subjects,
		instructors: instructors,
		validator:   validate,
		feed:        newChangeFeed(logger, opts),
		logger:      logger,
	}
}

// List returns schedule entries with their subject and instructor.
func (s *CrossRefService) List(ctx context.Context, filter models.CrossRefFilter) ([]models.CrossRefDetail, error) {
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule entries")
	}
	return entries, nil
}

// Get returns one resolved schedule entry.
func (s *CrossRefService) Get(ctx context.Context, id string) (*models.CrossRefDetail, error) {
	entry, err := s.repo.FindDetail(ctx, id)
	if err != nil {
		return nil, lookupError(err, appErrors.ErrNotFound, "schedule entry not found", "failed to load schedule entry")
	}
	return entry, nil
}

// Create adds a schedule entry.
func (s *CrossRefService) Create(ctx context.Context, req CrossRefRequest) (*models.CrossRefDetail, error) {
	ref := &models.CrossRef{}
	if err := s.apply(ctx, ref, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, nil, ref); err != nil {
		return nil, storageError(err, "schedule entry already exists", "failed to create schedule entry")
	}
	s.feed.publish(ctx, TopicCrossRefs)
	return s.Get(ctx, ref.ID)
}

// Update re-pairs an entry or changes its hue. Sessions keep pointing at it.
func (s *CrossRefService) Update(ctx context.Context, id string, req CrossRefRequest) (*models.CrossRefDetail, error) {
	ref, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, appErrors.ErrNotFound, "schedule entry not found", "failed to load schedule entry")
	}
	if req.Hue == nil {
		hue := ref.Hue
		req.Hue = &hue
	}
	if err := s.apply(ctx, ref, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, ref); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
		}
		return nil, storageError(err, "schedule entry already exists", "failed to update schedule entry")
	}
	s.feed.publish(ctx, TopicCrossRefs)
	return s.Get(ctx, id)
}

func (s *CrossRefService) apply(ctx context.Context, ref *models.CrossRef, req CrossRefRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule entry payload")
	}
	if req.InstructorID != nil && strings.TrimSpace(*req.InstructorID) == "" {
		req.InstructorID = nil
	}

	if _, err := s.subjects.FindByID(ctx, nil, req.SubjectID); err != nil {
		return lookupError(err, appErrors.ErrValidation, "subject does not exist", "failed to load subject")
	}
	if req.InstructorID != nil {
		if _, err := s.instructors.FindByID(ctx, nil, *req.InstructorID); err != nil {
			return lookupError(err, appErrors.ErrValidation, "instructor does not exist", "failed to load instructor")
		}
	}

	exists, err := s.repo.ExistsPair(ctx, nil, req.SubjectID, req.InstructorID, ref.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedule entry")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "schedule entry already exists")
	}

	ref.SubjectID = req.SubjectID
	ref.InstructorID = req.InstructorID
	if req.Hue != nil {
		ref.Hue = *req.Hue
	} else {
		ref.Hue = defaultHue(req.SubjectID, req.InstructorID)
	}
	return nil
}
