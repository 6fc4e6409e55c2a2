package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type sessionContentRepository interface {
	SetContent(ctx context.Context, exec sqlx.ExtContext, timetableID string, day models.DayOfWeek, from, to models.HourOfDay, content models.SessionContent) (int64, error)
}

type timetableLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Timetable, error)
}

type crossRefLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.CrossRef, error)
}

// SetSessionsRequest fills PeriodSpan consecutive periods of one day,
// starting at StartTime, with the same content.
type SetSessionsRequest struct {
	DayOfWeek  models.DayOfWeek          `json:"day_of_week" validate:"required"`
	StartTime  models.HourOfDay          `json:"start_time" validate:"min=0,max=23"`
	PeriodSpan int                       `json:"period_span" validate:"required,min=1,max=24"`
	Content    models.SessionContentJSON `json:"content"`
}

// SessionService edits grid cells.
type SessionService struct {
	sessions   sessionContentRepository
	timetables timetableLookup
	crossRefs  crossRefLookup
	tx         txProvider
	validator  *validator.Validate
	feed       changeFeed
	logger     *zap.Logger
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions sessionContentRepository, timetables timetableLookup, crossRefs crossRefLookup, tx txProvider, validate *validator.Validate, logger *zap.Logger, opts ...FeedOption) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:   sessions,
		timetables: timetables,
		crossRefs:  crossRefs,
		tx:         tx,
		validator:  validate,
		feed:       newChangeFeed(logger, opts),
		logger:     logger,
	}
}

// SetContent writes content into a span of cells. The whole span must lie
// inside the grid and a subject must reference an existing schedule entry.
func (s *SessionService) SetContent(ctx context.Context, timetableID string, req SetSessionsRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	content, err := req.Content.Content()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	from := req.StartTime
	to := req.StartTime + models.HourOfDay(req.PeriodSpan)

	err = inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		timetable, err := s.timetables.FindByID(ctx, tx, timetableID)
		if err != nil {
			return lookupError(err, appErrors.ErrNotFound, "timetable not found", "failed to load timetable")
		}
		if !timetable.Contains(req.DayOfWeek, from) || to > timetable.EndTime {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s %s+%d is outside the timetable", req.DayOfWeek, from, req.PeriodSpan))
		}
		if id, ok := (models.Session{Content: content}).CrossRefID(); ok {
			if _, err := s.crossRefs.FindByID(ctx, tx, id); err != nil {
				return lookupError(err, appErrors.ErrValidation, "schedule entry does not exist", "failed to load schedule entry")
			}
		}

		n, err := s.sessions.SetContent(ctx, tx, timetableID, req.DayOfWeek, from, to, content)
		if err != nil {
			return storageError(err, "", "failed to update sessions")
		}
		if n != int64(req.PeriodSpan) {
			return appErrors.Clone(appErrors.ErrReferential, fmt.Sprintf("expected %d cells, updated %d", req.PeriodSpan, n))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.feed.publish(ctx, TopicSessions)
	return nil
}
