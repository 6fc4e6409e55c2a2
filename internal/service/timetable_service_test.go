package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/repository"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/watch"
)

type timetableFixture struct {
	*storeFixture
	notifier   *watch.Notifier
	cache      *ViewCache
	metrics    *MetricsService
	timetables *TimetableService
	sessionSvc *SessionService
}

func newTimetableFixture(t *testing.T) *timetableFixture {
	t.Helper()
	store := newStoreFixture(t)
	notifier := watch.NewNotifier()
	metrics := NewMetricsService()
	cache := NewViewCache(repository.NewCacheRepository(nil, time.Minute, zap.NewNop()), metrics, time.Minute, zap.NewNop(), true)
	f := &timetableFixture{storeFixture: store, notifier: notifier, cache: cache, metrics: metrics}
	f.timetables = f.timetableService(store.sessions)
	f.sessionSvc = NewSessionService(store.sessions, store.timetables, store.crossRefs, store.db, nil, zap.NewNop(), f.feed()...)
	return f
}

func (f *timetableFixture) feed() []FeedOption {
	return []FeedOption{WithNotifier(f.notifier), WithViewCache(f.cache), WithQueryMetrics(f.metrics)}
}

func (f *timetableFixture) timetableService(sessions timetableSessionRepository) *TimetableService {
	return NewTimetableService(f.storeFixture.timetables, sessions, f.crossRefs, f.db, nil, zap.NewNop(), f.feed()...)
}

// pausedSessions holds the first grid read after it has hit the database
// until release is closed.
type pausedSessions struct {
	*repository.SessionRepository
	paused  atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func newPausedSessions(repo *repository.SessionRepository) *pausedSessions {
	return &pausedSessions{SessionRepository: repo, loaded: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausedSessions) ListByTimetable(ctx context.Context, exec sqlx.ExtContext, timetableID string) ([]models.Session, error) {
	sessions, err := p.SessionRepository.ListByTimetable(ctx, exec, timetableID)
	if p.paused.CompareAndSwap(false, true) {
		close(p.loaded)
		<-p.release
	}
	return sessions, err
}

func layout(name string, days int, start models.DayOfWeek, from, to models.HourOfDay) TimetableRequest {
	return TimetableRequest{Name: name, NumberOfDays: days, StartingDay: start, StartTime: from, EndTime: to}
}

func TestTimetableServiceCreateFillsGrid(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()

	created, err := f.timetables.Create(ctx, layout("Week", 3, models.Saturday, 9, 12))
	require.NoError(t, err)

	grid := f.grid(t, created.ID)
	assert.Len(t, grid, 9)
	for _, day := range []models.DayOfWeek{models.Saturday, models.Sunday, models.Monday} {
		for h := models.HourOfDay(9); h < 12; h++ {
			assert.Equal(t, models.EmptyContent{}, grid[cellKey{day, h}])
		}
	}

	_, err = f.timetables.Create(ctx, layout("Bad", 8, models.Monday, 9, 12))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = f.timetables.Create(ctx, layout("Bad", 1, models.Monday, 12, 12))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = f.timetables.Create(ctx, layout("Bad", 1, "FUNDAY", 8, 12))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestTimetableServiceUpdateLayoutKeepsOverlap(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	f.addSubject(t, "math", "MATH", "Algebra")
	f.addCrossRef(t, "ref", "math", nil, 10)
	f.addTimetable(t, weekTimetable("tt"), map[cellKey]models.SessionContent{
		{models.Monday, 9}:   models.SubjectContent{CrossRefID: "ref"},
		{models.Tuesday, 10}: models.VacantContent{},
	})

	updated, err := f.timetables.UpdateLayout(ctx, "tt", layout("Renamed", 1, models.Monday, 9, 13))
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	grid := f.grid(t, "tt")
	assert.Len(t, grid, 4)
	assert.Equal(t, models.SubjectContent{CrossRefID: "ref"}, grid[cellKey{models.Monday, 9}])
	assert.Equal(t, models.EmptyContent{}, grid[cellKey{models.Monday, 12}])
	_, stillThere := grid[cellKey{models.Tuesday, 10}]
	assert.False(t, stillThere)

	_, err = f.timetables.UpdateLayout(ctx, "missing", layout("X", 1, models.Monday, 9, 10))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTimetableServiceViewConsolidates(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	f.addSubject(t, "math", "MATH", "Algebra")
	f.addInstructor(t, "ana", "Ana")
	f.addCrossRef(t, "ref", "math", strPtr("ana"), 10)
	f.addTimetable(t, weekTimetable("tt"), map[cellKey]models.SessionContent{
		{models.Monday, 8}: models.SubjectContent{CrossRefID: "ref"},
		{models.Monday, 9}: models.SubjectContent{CrossRefID: "ref"},
	})

	view, err := f.timetables.View(ctx, "tt")
	require.NoError(t, err)
	assert.Equal(t, []models.DayOfWeek{models.Monday, models.Tuesday}, view.Days)
	assert.Equal(t, []models.HourOfDay{8, 9, 10}, view.PeriodStarts)
	require.Len(t, view.Schedules, 2)

	monday := view.Schedules[0]
	require.Len(t, monday, 2)
	assert.Equal(t, 2, monday[0].PeriodSpan)
	require.NotNil(t, monday[0].Entry)
	assert.Equal(t, "Ana", monday[0].Entry.Instructor.Name)
	assert.Equal(t, models.EmptyContent{}, monday[1].Content)
	assert.Len(t, view.Schedules[1], 3, "empty cells are never merged")

	_, err = f.timetables.View(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSessionServiceSetContent(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	f.addSubject(t, "math", "MATH", "Algebra")
	f.addCrossRef(t, "ref", "math", nil, 10)
	f.addTimetable(t, weekTimetable("tt"), nil)

	err := f.sessionSvc.SetContent(ctx, "tt", SetSessionsRequest{
		DayOfWeek:  models.Tuesday,
		StartTime:  8,
		PeriodSpan: 3,
		Content:    models.ContentToJSON(models.SubjectContent{CrossRefID: "ref"}),
	})
	require.NoError(t, err)
	grid := f.grid(t, "tt")
	for h := models.HourOfDay(8); h < 11; h++ {
		assert.Equal(t, models.SubjectContent{CrossRefID: "ref"}, grid[cellKey{models.Tuesday, h}])
	}
	assert.Equal(t, models.EmptyContent{}, grid[cellKey{models.Monday, 8}])

	lunch := "Lunch"
	require.NoError(t, f.sessionSvc.SetContent(ctx, "tt", SetSessionsRequest{
		DayOfWeek: models.Tuesday, StartTime: 9, PeriodSpan: 1,
		Content: models.ContentToJSON(models.BreakContent{Description: &lunch}),
	}))
	assert.Equal(t, models.BreakContent{Description: &lunch}, f.grid(t, "tt")[cellKey{models.Tuesday, 9}])

	cases := []struct {
		name string
		req  SetSessionsRequest
		want error
	}{
		{"past the end", SetSessionsRequest{DayOfWeek: models.Monday, StartTime: 10, PeriodSpan: 2, Content: models.ContentToJSON(models.VacantContent{})}, appErrors.ErrValidation},
		{"day outside", SetSessionsRequest{DayOfWeek: models.Friday, StartTime: 8, PeriodSpan: 1, Content: models.ContentToJSON(models.VacantContent{})}, appErrors.ErrValidation},
		{"unknown entry", SetSessionsRequest{DayOfWeek: models.Monday, StartTime: 8, PeriodSpan: 1, Content: models.ContentToJSON(models.SubjectContent{CrossRefID: "ghost"})}, appErrors.ErrValidation},
		{"bad content", SetSessionsRequest{DayOfWeek: models.Monday, StartTime: 8, PeriodSpan: 1, Content: models.SessionContentJSON{Kind: models.SessionKindSubject}}, appErrors.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, f.sessionSvc.SetContent(ctx, "tt", tc.req), tc.want)
		})
	}

	err = f.sessionSvc.SetContent(ctx, "missing", SetSessionsRequest{DayOfWeek: models.Monday, StartTime: 8, PeriodSpan: 1, Content: models.ContentToJSON(models.VacantContent{})})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTimetableServiceWatchReemitsAfterEdits(t *testing.T) {
	f := newTimetableFixture(t)
	f.addTimetable(t, weekTimetable("tt"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	views := f.timetables.Watch(ctx, "tt", func(err error) { t.Errorf("unexpected watch error: %v", err) })
	first := receiveView(t, views)
	assert.Len(t, first.Schedules[0], 3)

	require.NoError(t, f.sessionSvc.SetContent(context.Background(), "tt", SetSessionsRequest{
		DayOfWeek: models.Monday, StartTime: 8, PeriodSpan: 3,
		Content: models.ContentToJSON(models.VacantContent{}),
	}))
	second := receiveView(t, views)
	require.Len(t, second.Schedules[0], 1)
	assert.Equal(t, 3, second.Schedules[0][0].PeriodSpan)
}

func TestTimetableServiceViewIgnoresReadsOvertakenByWrites(t *testing.T) {
	f := newTimetableFixture(t)
	f.addTimetable(t, weekTimetable("tt"), nil)
	ctx := context.Background()

	paused := newPausedSessions(f.sessions)
	reader := f.timetableService(paused)

	inFlight := make(chan *models.TimetableView, 1)
	go func() {
		view, err := reader.View(ctx, "tt")
		assert.NoError(t, err)
		inFlight <- view
	}()
	select {
	case <-paused.loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("grid read did not start")
	}

	require.NoError(t, f.sessionSvc.SetContent(ctx, "tt", SetSessionsRequest{
		DayOfWeek: models.Monday, StartTime: 8, PeriodSpan: 3,
		Content: models.ContentToJSON(models.VacantContent{}),
	}))

	// A read after the commit must not join the load still in flight.
	fresh, err := reader.View(ctx, "tt")
	require.NoError(t, err)
	require.Len(t, fresh.Schedules[0], 1)
	assert.Equal(t, models.VacantContent{}, fresh.Schedules[0][0].Content)
	assert.Equal(t, 3, fresh.Schedules[0][0].PeriodSpan)

	close(paused.release)
	var stale *models.TimetableView
	select {
	case stale = <-inFlight:
	case <-time.After(2 * time.Second):
		t.Fatal("paused read did not finish")
	}
	require.NotNil(t, stale)
	assert.Equal(t, models.EmptyContent{}, stale.Schedules[0][0].Content)

	again, err := reader.View(ctx, "tt")
	require.NoError(t, err)
	require.Len(t, again.Schedules[0], 1)
	assert.Equal(t, models.VacantContent{}, again.Schedules[0][0].Content)
}

func TestViewCacheDropsLoadsFromOlderGenerations(t *testing.T) {
	f := newTimetableFixture(t)
	ctx := context.Background()
	view := &models.TimetableView{Timetable: weekTimetable("tt")}

	generation := f.cache.Generation()
	require.NoError(t, f.cache.Invalidate(ctx))
	assert.False(t, f.cache.Set(ctx, "tt", generation, view))
	_, ok := f.cache.Get(ctx, "tt")
	assert.False(t, ok)

	assert.True(t, f.cache.Set(ctx, "tt", f.cache.Generation(), view))
	cached, ok := f.cache.Get(ctx, "tt")
	require.True(t, ok)
	assert.Equal(t, "Semester tt", cached.Timetable.Name)

	var disabled *ViewCache
	assert.Zero(t, disabled.Generation())
	assert.NoError(t, disabled.Invalidate(ctx))
}

func TestTimetableServiceViewRecordsQueriesAndCacheHits(t *testing.T) {
	f := newTimetableFixture(t)
	f.addTimetable(t, weekTimetable("tt"), nil)
	ctx := context.Background()

	_, err := f.timetables.View(ctx, "tt")
	require.NoError(t, err)
	_, err = f.timetables.View(ctx, "tt")
	require.NoError(t, err)

	summary := f.metrics.Snapshot()
	assert.EqualValues(t, 1, summary.DBQueryCount)
	assert.EqualValues(t, 1, summary.CacheHits)
	assert.EqualValues(t, 1, summary.CacheMisses)
}

func receiveView(t *testing.T, ch <-chan *models.TimetableView) *models.TimetableView {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok)
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for view")
		return nil
	}
}
