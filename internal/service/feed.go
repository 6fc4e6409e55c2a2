package service

import (
	"context"
	"hash/fnv"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/pkg/watch"
)

// changeFeed tells readers that a write has committed: cached views are
// dropped first, then live observers are signalled.
type changeFeed struct {
	notifier *watch.Notifier
	cache    *ViewCache
	metrics  *MetricsService
	logger   *zap.Logger
}

// FeedOption wires a service into the change feed.
type FeedOption func(*changeFeed)

// WithNotifier signals live observers after each commit.
func WithNotifier(n *watch.Notifier) FeedOption {
	return func(f *changeFeed) { f.notifier = n }
}

// WithViewCache drops cached timetable views after each commit.
func WithViewCache(cache *ViewCache) FeedOption {
	return func(f *changeFeed) { f.cache = cache }
}

// WithQueryMetrics times the storage reads behind timetable views.
func WithQueryMetrics(metrics *MetricsService) FeedOption {
	return func(f *changeFeed) { f.metrics = metrics }
}

func newChangeFeed(logger *zap.Logger, opts []FeedOption) changeFeed {
	feed := changeFeed{logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(&feed)
		}
	}
	return feed
}

func (f changeFeed) publish(ctx context.Context, topics ...string) {
	if err := f.cache.Invalidate(ctx); err != nil && f.logger != nil {
		f.logger.Warn("failed to invalidate timetable views", zap.Error(err))
	}
	f.notifier.Notify(topics...)
}

// defaultHue spreads entries around the colour wheel deterministically.
func defaultHue(subjectID string, instructorID *string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subjectID))
	if instructorID != nil {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(*instructorID))
	}
	return int(h.Sum32() % 360)
}
