package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

const viewCachePattern = "timetable:view:*"

func viewCacheKey(timetableID string) string {
	return "timetable:view:" + timetableID
}

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ViewCache keeps consolidated timetable views between writes. Every
// invalidation starts a new generation, and a view loaded under an older
// generation is never stored. Services that write and services that read
// must share one instance.
type ViewCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool

	// mu orders stores against invalidations: Set holds it shared, Invalidate
	// exclusively.
	mu         sync.RWMutex
	generation uint64
}

// NewViewCache constructs a view cache. A disabled cache still tracks
// generations.
func NewViewCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *ViewCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether views are stored.
func (c *ViewCache) Enabled() bool {
	return c != nil && c.enabled && c.repo != nil
}

// Generation identifies the set of committed writes a load started under.
func (c *ViewCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Get returns the cached view of a timetable.
func (c *ViewCache) Get(ctx context.Context, timetableID string) (*models.TimetableView, bool) {
	if !c.Enabled() {
		return nil, false
	}
	start := time.Now()
	var view models.TimetableView
	err := c.repo.Get(ctx, viewCacheKey(timetableID), &view)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("view cache get failed", zap.String("timetable_id", timetableID), zap.Error(err))
		}
		return nil, false
	}
	return &view, true
}

// Set stores a view loaded under generation. It reports whether the view was
// stored; a view that a write has overtaken since is dropped.
func (c *ViewCache) Set(ctx context.Context, timetableID string, generation uint64, view *models.TimetableView) bool {
	if !c.Enabled() || view == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if generation != c.generation {
		return false
	}
	start := time.Now()
	err := c.repo.Set(ctx, viewCacheKey(timetableID), view, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("view cache set failed", zap.String("timetable_id", timetableID), zap.Error(err))
		return false
	}
	return true
}

// Invalidate starts a new generation and drops every cached view.
func (c *ViewCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if !c.Enabled() {
		return nil
	}
	if err := c.repo.DeleteByPattern(ctx, viewCachePattern); err != nil {
		c.logger.Warn("view cache invalidate failed", zap.Error(err))
		return err
	}
	return nil
}
