package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/handler"
	"github.com/noah-isme/timetable-api/internal/repository"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/cache"
	"github.com/noah-isme/timetable-api/pkg/config"
	"github.com/noah-isme/timetable-api/pkg/database"
	"github.com/noah-isme/timetable-api/pkg/events"
	"github.com/noah-isme/timetable-api/pkg/watch"
)

// app holds the wired dependencies of the server.
type app struct {
	db        *sqlx.DB
	redis     *redis.Client
	cacheRepo *repository.CacheRepository
	publisher events.Publisher
	notifier  *watch.Notifier
	widget    *service.WidgetService
	router    *gin.Engine
}

type widgetSlots interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

func newApp(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*app, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{db: db, notifier: watch.NewNotifier()}

	if cfg.Redis.Host != "" {
		client, err := cache.NewRedis(ctx, cfg.Redis, cfg.Database.ConnectRetries)
		if err != nil {
			logr.Warn("redis unavailable, falling back to in-process storage", zap.Error(err))
		} else {
			a.redis = client
		}
	}

	publisher, err := events.NewPublisher(ctx, cfg.NATS, cfg.Database.ConnectRetries, logr)
	if err != nil {
		logr.Warn("nats unavailable, widget snapshots stay local", zap.Error(err))
		publisher = events.NopPublisher{}
	}
	a.publisher = publisher

	validate := validator.New()
	metrics := service.NewMetricsService()

	a.cacheRepo = repository.NewCacheRepository(a.redis, cfg.Cache.TTL, logr)
	viewCache := service.NewViewCache(a.cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	subjectRepo := repository.NewSubjectRepository(db)
	instructorRepo := repository.NewInstructorRepository(db)
	crossRefRepo := repository.NewCrossRefRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	feed := []service.FeedOption{service.WithNotifier(a.notifier), service.WithViewCache(viewCache), service.WithQueryMetrics(metrics)}
	subjects := service.NewSubjectService(subjectRepo, validate, logr, feed...)
	instructors := service.NewInstructorService(instructorRepo, validate, logr, feed...)
	entries := service.NewCrossRefService(crossRefRepo, subjectRepo, instructorRepo, validate, logr, feed...)
	timetables := service.NewTimetableService(timetableRepo, sessionRepo, crossRefRepo, db, validate, logr, feed...)
	sessions := service.NewSessionService(sessionRepo, timetableRepo, crossRefRepo, db, validate, logr, feed...)
	mutations := service.NewMutationService(service.MutationStores{
		Subjects:    subjectRepo,
		Instructors: instructorRepo,
		CrossRefs:   crossRefRepo,
		Timetables:  timetableRepo,
		Sessions:    sessionRepo,
	}, db, logr,
		service.WithMutationNotifier(a.notifier),
		service.WithMutationCache(viewCache),
		service.WithMutationMetrics(metrics),
	)
	exports := service.NewExportService(timetables, logr, nil, nil, nil)

	var slots widgetSlots = repository.NewMemoryWidgetSlotRepository()
	if a.redis != nil {
		slots = repository.NewWidgetSlotRepository(a.redis)
	}
	a.widget = service.NewWidgetService(slots, timetables, a.publisher, metrics, service.WidgetConfig{
		Subject:         cfg.NATS.Subject,
		RefreshDebounce: cfg.Widget.RefreshDebounce,
		WorkerRetries:   cfg.Widget.WorkerRetries,
	}, logr)

	auth := service.NewAuthService(validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		OwnerPasswordHash: cfg.Auth.OwnerPasswordHash,
		Issuer:            "timetable-api",
	})

	checks := map[string]handler.Pinger{"database": db}
	if a.redis != nil {
		checks["redis"] = redisPinger{a.redis}
	}

	a.router = newRouter(cfg, logr, routes{
		auth:        handler.NewAuthHandler(auth),
		authService: auth,
		timetables:  handler.NewTimetableHandler(timetables, sessions, mutations, exports, logr),
		subjects:    handler.NewSubjectHandler(subjects, mutations),
		instructors: handler.NewInstructorHandler(instructors, mutations),
		entries:     handler.NewEntryHandler(entries, mutations),
		undo:        handler.NewUndoHandler(mutations),
		widget:      handler.NewWidgetHandler(a.widget),
		ops:         handler.NewMetricsHandler(metrics, checks),
		metrics:     metrics,
	})
	return a, nil
}

// Close releases every external resource, reporting all failures.
func (a *app) Close() error {
	if a.widget != nil {
		a.widget.Stop()
	}
	if a.publisher != nil {
		a.publisher.Close()
	}
	var err error
	if a.cacheRepo != nil {
		err = multierr.Append(err, a.cacheRepo.Close())
	}
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
	}
	return err
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
