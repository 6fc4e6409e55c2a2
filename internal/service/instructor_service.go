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

type instructorRepository interface {
	List(ctx context.Context, filter models.InstructorFilter) ([]models.Instructor, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Instructor, error)
	ExistsByName(ctx context.Context, exec sqlx.ExtContext, name, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, instructor *models.Instructor) error
	Update(ctx context.Context, instructor *models.Instructor) error
}

// InstructorRequest is the payload for creating or renaming an instructor.
type InstructorRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

// InstructorService manages instructors.
type InstructorService struct {
	repo      instructorRepository
	validator *validator.Validate
	feed      changeFeed
	logger    *zap.Logger
}

// NewInstructorService constructs an InstructorService.
func NewInstructorService(repo instructorRepository, validate *validator.Validate, logger *zap.Logger, opts ...FeedOption) *InstructorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstructorService{repo: repo, validator: validate, feed: newChangeFeed(logger, opts), logger: logger}
}

// List returns instructors plus pagination data.
func (s *InstructorService) List(ctx context.Context, filter models.InstructorFilter) ([]models.Instructor, *models.Pagination, error) {
	instructors, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructors")
	}
	return instructors, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns an instructor by id.
func (s *InstructorService) Get(ctx context.Context, id string) (*models.Instructor, error) {
	instructor, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, appErrors.ErrNotFound, "instructor not found", "failed to load instructor")
	}
	return instructor, nil
}

// Create registers an instructor with a unique name.
func (s *InstructorService) Create(ctx context.Context, req InstructorRequest) (*models.Instructor, error) {
	name, err := s.validName(ctx, req, "")
	if err != nil {
		return nil, err
	}
	instructor := &models.Instructor{Name: name}
	if err := s.repo.Create(ctx, nil, instructor); err != nil {
		return nil, storageError(err, "instructor name already exists", "failed to create instructor")
	}
	s.feed.publish(ctx, TopicInstructors)
	return instructor, nil
}

// Update renames an instructor.
func (s *InstructorService) Update(ctx context.Context, id string, req InstructorRequest) (*models.Instructor, error) {
	instructor, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	name, err := s.validName(ctx, req, id)
	if err != nil {
		return nil, err
	}
	instructor.Name = name
	if err := s.repo.Update(ctx, instructor); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, storageError(err, "instructor name already exists", "failed to update instructor")
	}
	s.feed.publish(ctx, TopicInstructors)
	return instructor, nil
}

func (s *InstructorService) validName(ctx context.Context, req InstructorRequest, excludeID string) (string, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instructor payload")
	}
	exists, err := s.repo.ExistsByName(ctx, nil, req.Name, excludeID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check instructor name")
	}
	if exists {
		return "", appErrors.Clone(appErrors.ErrConflict, "instructor name already exists")
	}
	return req.Name, nil
}
