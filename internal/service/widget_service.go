package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/widget"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/events"
	"github.com/noah-isme/timetable-api/pkg/jobs"
	"github.com/noah-isme/timetable-api/pkg/watch"
)

// Widget slot keys.
const (
	WidgetTimetableKey = "widget:timetable_id"
	WidgetLegacyKey    = "widget:legacy"
	WidgetSnapshotKey  = "widget:snapshot"

	widgetRefreshJob = "widget.refresh"
)

type widgetSlotStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type timetableViewSource interface {
	View(ctx context.Context, id string) (*models.TimetableView, error)
}

// WidgetConfig tunes the background refresh of the widget snapshot.
type WidgetConfig struct {
	Subject         string
	RefreshDebounce time.Duration
	WorkerRetries   int
}

// WidgetService keeps the home-screen widget snapshot in sync with the
// selected timetable.
type WidgetService struct {
	slots     widgetSlotStore
	views     timetableViewSource
	publisher events.Publisher
	metrics   *MetricsService
	cfg       WidgetConfig
	logger    *zap.Logger

	migrateOnce sync.Once

	mu        sync.Mutex
	queue     *jobs.Queue
	debouncer *watch.Debouncer
}

// NewWidgetService constructs a WidgetService.
func NewWidgetService(slots widgetSlotStore, views timetableViewSource, publisher events.Publisher, metrics *MetricsService, cfg WidgetConfig, logger *zap.Logger) *WidgetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &WidgetService{slots: slots, views: views, publisher: publisher, metrics: metrics, cfg: cfg, logger: logger}
}

// CurrentTimetableID returns the selected timetable. The first call in the
// process migrates a selection stored by older releases.
func (s *WidgetService) CurrentTimetableID(ctx context.Context) (string, bool, error) {
	s.migrateOnce.Do(func() { s.migrateLegacy(ctx) })

	id, ok, err := s.slots.Get(ctx, WidgetTimetableKey)
	if err != nil {
		return "", false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read widget selection")
	}
	return id, ok && id != "", nil
}

// migrateLegacy moves the legacy selection to the compact key. A malformed
// legacy document is logged and left in place for a later attempt.
func (s *WidgetService) migrateLegacy(ctx context.Context) {
	if _, ok, err := s.slots.Get(ctx, WidgetTimetableKey); err != nil || ok {
		if err != nil {
			s.logger.Warn("widget migration skipped", zap.Error(err))
		}
		return
	}
	legacy, ok, err := s.slots.Get(ctx, WidgetLegacyKey)
	if err != nil {
		s.logger.Warn("widget migration skipped", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	id, err := widget.LegacyTimetableID(legacy)
	if err != nil {
		s.metrics.RecordWidgetMigration("malformed")
		s.logger.Warn("legacy widget selection unreadable", zap.Error(err))
		return
	}
	if err := s.slots.Set(ctx, WidgetTimetableKey, id); err != nil {
		s.metrics.RecordWidgetMigration("failed")
		s.logger.Warn("failed to store migrated widget selection", zap.Error(err))
		return
	}
	if err := s.slots.Delete(ctx, WidgetLegacyKey); err != nil {
		s.logger.Warn("failed to delete legacy widget selection", zap.Error(err))
	}
	s.metrics.RecordWidgetMigration("migrated")
	s.logger.Info("legacy widget selection migrated", zap.String("timetable_id", id))
}

// Select points the widget at a timetable, or clears it when id is empty, and
// returns the fresh snapshot.
func (s *WidgetService) Select(ctx context.Context, id string) (*models.WidgetSnapshot, error) {
	if id == "" {
		for _, key := range []string{WidgetTimetableKey, WidgetSnapshotKey} {
			if err := s.slots.Delete(ctx, key); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear widget")
			}
		}
		return nil, nil
	}

	if _, err := s.views.View(ctx, id); err != nil {
		return nil, err
	}
	if err := s.slots.Set(ctx, WidgetTimetableKey, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store widget selection")
	}
	return s.Refresh(ctx)
}

// Snapshot returns the stored snapshot of the selected timetable, rebuilding
// it when it is missing, unreadable or for another timetable. It returns nil
// when nothing is selected.
func (s *WidgetService) Snapshot(ctx context.Context) (*models.WidgetSnapshot, error) {
	id, ok, err := s.CurrentTimetableID(ctx)
	if err != nil || !ok {
		return nil, err
	}

	text, found, err := s.slots.Get(ctx, WidgetSnapshotKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read widget snapshot")
	}
	if found {
		snapshot, err := widget.Decode(text)
		if err == nil && snapshot.TimetableID == id {
			return &snapshot, nil
		}
		if err != nil {
			s.logger.Warn("stored widget snapshot unreadable, rebuilding", zap.Error(err))
		}
	}
	return s.Refresh(ctx)
}

// Refresh rebuilds and stores the snapshot of the selected timetable and
// broadcasts it. A selection whose timetable is gone yields no snapshot; the
// selection is kept so an undo brings the widget back.
func (s *WidgetService) Refresh(ctx context.Context) (*models.WidgetSnapshot, error) {
	id, ok, err := s.CurrentTimetableID(ctx)
	if err != nil || !ok {
		return nil, err
	}

	view, err := s.views.View(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			s.metrics.RecordWidgetRefresh("missing")
			if derr := s.slots.Delete(ctx, WidgetSnapshotKey); derr != nil {
				s.logger.Warn("failed to drop widget snapshot", zap.Error(derr))
			}
			return nil, nil
		}
		s.metrics.RecordWidgetRefresh("failed")
		return nil, err
	}

	snapshot := widget.FromView(*view)
	text, err := widget.Encode(snapshot)
	if err != nil {
		s.metrics.RecordWidgetRefresh("failed")
		return nil, err
	}
	if err := s.slots.Set(ctx, WidgetSnapshotKey, text); err != nil {
		s.metrics.RecordWidgetRefresh("failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store widget snapshot")
	}
	if s.cfg.Subject != "" {
		if err := s.publisher.Publish(ctx, s.cfg.Subject, []byte(text)); err != nil {
			s.logger.Warn("failed to broadcast widget snapshot", zap.Error(err))
		}
	}
	s.metrics.RecordWidgetRefresh("ok")
	return &snapshot, nil
}

// Start regenerates the snapshot in the background whenever a committed write
// settles for the configured quiet period.
func (s *WidgetService) Start(ctx context.Context, notifier *watch.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}

	s.queue = jobs.NewQueue("widget-refresh", s.handleRefresh, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 1,
		MaxRetries: s.cfg.WorkerRetries,
		Logger:     s.logger,
	})
	s.queue.Start(ctx)
	queue := s.queue
	s.debouncer = watch.NewDebouncer(s.cfg.RefreshDebounce, func() {
		if err := queue.Enqueue(jobs.Job{ID: widgetRefreshJob, Type: widgetRefreshJob}); err != nil {
			s.logger.Warn("failed to schedule widget refresh", zap.Error(err))
		}
	})
	debouncer := s.debouncer

	signals, cancel := notifier.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				debouncer.Trigger()
			}
		}
	}()
}

// Stop cancels pending refreshes and waits for the worker to exit.
func (s *WidgetService) Stop() {
	s.mu.Lock()
	queue, debouncer := s.queue, s.debouncer
	s.queue, s.debouncer = nil, nil
	s.mu.Unlock()

	if debouncer != nil {
		debouncer.Stop()
	}
	if queue != nil {
		queue.Stop()
	}
}

func (s *WidgetService) handleRefresh(ctx context.Context, _ jobs.Job) error {
	_, err := s.Refresh(ctx)
	return err
}
