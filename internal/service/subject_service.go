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

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error)
	ExistsByCodeDescription(ctx context.Context, exec sqlx.ExtContext, code, description, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
}

// CreateSubjectRequest captures fields for creating subjects.
type CreateSubjectRequest struct {
	Code        string `json:"code" validate:"required,max=32"`
	Description string `json:"description" validate:"required,max=255"`
}

// UpdateSubjectRequest modifies subject fields.
type UpdateSubjectRequest struct {
	Code        string `json:"code" validate:"required,max=32"`
	Description string `json:"description" validate:"required,max=255"`
}

// SubjectService handles subject domain workflows. Deletes go through the
// MutationService so they can be undone.
type SubjectService struct {
	repo      subjectRepository
	validator *validator.Validate
	feed      changeFeed
	logger    *zap.Logger
}

// NewSubjectService creates a new subject service.
func NewSubjectService(repo subjectRepository, validate *validator.Validate, logger *zap.Logger, opts ...FeedOption) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, validator: validate, feed: newChangeFeed(logger, opts), logger: logger}
}

// List returns paginated subjects.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns subject by identifier.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, appErrors.ErrNotFound, "subject not found", "failed to load subject")
	}
	return subject, nil
}

// Create adds a new subject ensuring (code, description) uniqueness.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject := &models.Subject{
		Code:        strings.TrimSpace(req.Code),
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.ensureUnique(ctx, subject, ""); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, nil, subject); err != nil {
		return nil, storageError(err, "subject already exists", "failed to create subject")
	}
	s.feed.publish(ctx, TopicSubjects)
	return subject, nil
}

// Update modifies an existing subject.
func (s *SubjectService) Update(ctx context.Context, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	subject, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	subject.Code = strings.TrimSpace(req.Code)
	subject.Description = strings.TrimSpace(req.Description)
	if err := s.ensureUnique(ctx, subject, id); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, storageError(err, "subject already exists", "failed to update subject")
	}
	s.feed.publish(ctx, TopicSubjects)
	return subject, nil
}

func (s *SubjectService) ensureUnique(ctx context.Context, subject *models.Subject, excludeID string) error {
	exists, err := s.repo.ExistsByCodeDescription(ctx, nil, subject.Code, subject.Description, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "subject already exists")
	}
	return nil
}

// paginationFor echoes the effective page the repositories applied.
func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
