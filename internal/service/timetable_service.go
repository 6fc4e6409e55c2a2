package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/watch"
)

type timetableRepository interface {
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Timetable, error)
	Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	Update(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
}

type timetableSessionRepository interface {
	ListByTimetable(ctx context.Context, exec sqlx.ExtContext, timetableID string) ([]models.Session, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, sessions []models.Session) error
	DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error)
}

type crossRefDetailLookup interface {
	ListDetailsByIDs(ctx context.Context, ids []string) ([]models.CrossRefDetail, error)
}

// TimetableRequest describes a timetable layout.
type TimetableRequest struct {
	Name         string           `json:"name" validate:"required,max=120"`
	NumberOfDays int              `json:"number_of_days" validate:"required,min=1,max=7"`
	StartingDay  models.DayOfWeek `json:"starting_day" validate:"required"`
	StartTime    models.HourOfDay `json:"start_time" validate:"min=0,max=23"`
	EndTime      models.HourOfDay `json:"end_time" validate:"min=0,max=23"`
}

// TimetableService manages timetable layouts and their consolidated views.
type TimetableService struct {
	timetables timetableRepository
	sessions   timetableSessionRepository
	entries    crossRefDetailLookup
	tx         txProvider
	validator  *validator.Validate
	feed       changeFeed
	views      singleflight.Group
	logger     *zap.Logger
}

// NewTimetableService constructs a TimetableService.
func NewTimetableService(timetables timetableRepository, sessions timetableSessionRepository, entries crossRefDetailLookup, tx txProvider, validate *validator.Validate, logger *zap.Logger, opts ...FeedOption) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	feed := newChangeFeed(logger, opts)
	if feed.notifier == nil {
		feed.notifier = watch.NewNotifier()
	}
	if feed.cache == nil {
		feed.cache = NewViewCache(nil, nil, 0, logger, false)
	}
	return &TimetableService{
		timetables: timetables,
		sessions:   sessions,
		entries:    entries,
		tx:         tx,
		validator:  validate,
		feed:       feed,
		logger:     logger,
	}
}

// List returns paginated timetables.
func (s *TimetableService) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, *models.Pagination, error) {
	timetables, total, err := s.timetables.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	return timetables, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a timetable header.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.Timetable, error) {
	timetable, err := s.timetables.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupError(err, appErrors.ErrNotFound, "timetable not found", "failed to load timetable")
	}
	return timetable, nil
}

// Create stores a timetable with a full grid of empty cells.
func (s *TimetableService) Create(ctx context.Context, req TimetableRequest) (*models.Timetable, error) {
	timetable := &models.Timetable{}
	if err := s.apply(timetable, req); err != nil {
		return nil, err
	}

	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.timetables.Create(ctx, tx, timetable); err != nil {
			return storageError(err, "timetable already exists", "failed to create timetable")
		}
		if err := s.sessions.InsertBatch(ctx, tx, emptyGrid(*timetable)); err != nil {
			return storageError(err, "timetable cells already exist", "failed to create timetable cells")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.feed.publish(ctx, TopicTimetables, TopicSessions)
	s.logger.Info("timetable created", zap.String("timetable_id", timetable.ID), zap.Int("sessions", timetable.SessionCount()))
	return timetable, nil
}

// UpdateLayout changes the name or grid shape. Cells present in both the old
// and the new grid keep their content; the rest are dropped or added empty.
func (s *TimetableService) UpdateLayout(ctx context.Context, id string, req TimetableRequest) (*models.Timetable, error) {
	var updated *models.Timetable
	var added, removed int
	err := inTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		timetable, err := s.timetables.FindByID(ctx, tx, id)
		if err != nil {
			return lookupError(err, appErrors.ErrNotFound, "timetable not found", "failed to load timetable")
		}
		if err := s.apply(timetable, req); err != nil {
			return err
		}

		existing, err := s.sessions.ListByTimetable(ctx, tx, id)
		if err != nil {
			return storageError(err, "", "failed to load sessions")
		}
		kept := make(map[cell]struct{}, len(existing))
		var stale []string
		for _, session := range existing {
			if timetable.Contains(session.DayOfWeek, session.StartTime) {
				kept[cell{session.DayOfWeek, session.StartTime}] = struct{}{}
				continue
			}
			stale = append(stale, session.ID)
		}
		var fresh []models.Session
		for _, session := range emptyGrid(*timetable) {
			if _, ok := kept[cell{session.DayOfWeek, session.StartTime}]; !ok {
				fresh = append(fresh, session)
			}
		}

		if _, err := s.sessions.DeleteByIDs(ctx, tx, stale); err != nil {
			return storageError(err, "", "failed to drop cells outside the layout")
		}
		if err := s.sessions.InsertBatch(ctx, tx, fresh); err != nil {
			return storageError(err, "timetable cells already exist", "failed to add cells")
		}
		if err := s.timetables.Update(ctx, tx, timetable); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
			}
			return storageError(err, "", "failed to update timetable")
		}
		updated, added, removed = timetable, len(fresh), len(stale)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.feed.publish(ctx, TopicTimetables, TopicSessions)
	s.logger.Info("timetable layout updated", zap.String("timetable_id", id), zap.Int("added", added), zap.Int("removed", removed))
	return updated, nil
}

// View returns the consolidated grid of a timetable, served from the view
// cache when possible. Concurrent misses under the same generation share one
// load, and a load overtaken by a write is returned but not cached.
func (s *TimetableService) View(ctx context.Context, id string) (*models.TimetableView, error) {
	generation := s.feed.cache.Generation()
	if view, ok := s.feed.cache.Get(ctx, id); ok {
		return view, nil
	}

	key := fmt.Sprintf("%s@%d", id, generation)
	v, err, _ := s.views.Do(key, func() (interface{}, error) {
		view, err := s.loadView(ctx, id)
		if err != nil {
			return nil, err
		}
		if !s.feed.cache.Set(ctx, id, generation, view) && s.feed.cache.Enabled() {
			s.logger.Debug("timetable view not cached", zap.String("timetable_id", id), zap.Uint64("generation", generation))
		}
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.TimetableView), nil
}

// Watch streams the view of a timetable, re-emitting it after every committed
// change that may affect it. The stream ends when ctx is done.
func (s *TimetableService) Watch(ctx context.Context, id string, onErr func(error)) <-chan *models.TimetableView {
	return watch.Observe(ctx, s.feed.notifier, func(ctx context.Context) (*models.TimetableView, error) {
		return s.View(ctx, id)
	}, onErr, TopicTimetables, TopicSessions, TopicSubjects, TopicInstructors, TopicCrossRefs)
}

func (s *TimetableService) loadView(ctx context.Context, id string) (*models.TimetableView, error) {
	start := time.Now()
	defer func() { s.feed.metrics.ObserveDBQuery("timetable_view", time.Since(start)) }()

	var (
		timetable *models.Timetable
		sessions  []models.Session
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.timetables.FindByID(gctx, nil, id)
		if err != nil {
			return lookupError(err, appErrors.ErrNotFound, "timetable not found", "failed to load timetable")
		}
		timetable = t
		return nil
	})
	g.Go(func() error {
		loaded, err := s.sessions.ListByTimetable(gctx, nil, id)
		if err != nil {
			return storageError(err, "", "failed to load sessions")
		}
		sessions = loaded
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make(map[string]models.CrossRefDetail)
	if ids := crossRefIDs(sessions); len(ids) > 0 {
		details, err := s.entries.ListDetailsByIDs(ctx, ids)
		if err != nil {
			return nil, storageError(err, "", "failed to load schedule entries")
		}
		for _, detail := range details {
			entries[detail.ID] = detail
		}
	}

	return &models.TimetableView{
		Timetable:    *timetable,
		Days:         timetable.Days(),
		PeriodStarts: timetable.PeriodStarts(),
		Schedules:    Resolve(ConsolidateGrid(*timetable, sessions), entries),
	}, nil
}

func (s *TimetableService) apply(timetable *models.Timetable, req TimetableRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	timetable.Name = req.Name
	timetable.NumberOfDays = req.NumberOfDays
	timetable.StartingDay = req.StartingDay
	timetable.StartTime = req.StartTime
	timetable.EndTime = req.EndTime
	if err := timetable.Validate(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return nil
}

type cell struct {
	day  models.DayOfWeek
	hour models.HourOfDay
}

// emptyGrid lists every cell of the timetable with Empty content.
func emptyGrid(t models.Timetable) []models.Session {
	sessions := make([]models.Session, 0, t.SessionCount())
	for _, day := range t.Days() {
		for _, hour := range t.PeriodStarts() {
			sessions = append(sessions, models.Session{
				TimetableID: t.ID,
				DayOfWeek:   day,
				StartTime:   hour,
				Content:     models.EmptyContent{},
			})
		}
	}
	return sessions
}
