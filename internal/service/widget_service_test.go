package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/repository"
	"github.com/noah-isme/timetable-api/internal/widget"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/watch"
)

type viewSourceStub struct {
	mu    sync.Mutex
	views map[string]*models.TimetableView
	calls int
}

func (s *viewSourceStub) View(ctx context.Context, id string) (*models.TimetableView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	view, ok := s.views[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	return view, nil
}

func (s *viewSourceStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type publisherStub struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *publisherStub) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *publisherStub) Close() {}

func (p *publisherStub) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

func sampleView(id string) *models.TimetableView {
	timetable := models.Timetable{ID: id, Name: "Week " + id, NumberOfDays: 1, StartingDay: models.Friday, StartTime: 8, EndTime: 10}
	return &models.TimetableView{
		Timetable:    timetable,
		Days:         timetable.Days(),
		PeriodStarts: timetable.PeriodStarts(),
		Schedules: [][]models.Schedule{{
			{DayOfWeek: models.Friday, StartTime: 8, PeriodSpan: 2, Content: models.VacantContent{}},
		}},
	}
}

func newWidgetFixture(t *testing.T) (*WidgetService, *repository.MemoryWidgetSlotRepository, *viewSourceStub, *publisherStub) {
	t.Helper()
	slots := repository.NewMemoryWidgetSlotRepository()
	views := &viewSourceStub{views: map[string]*models.TimetableView{"42": sampleView("42"), "abc-123": sampleView("abc-123")}}
	publisher := &publisherStub{}
	svc := NewWidgetService(slots, views, publisher, NewMetricsService(), WidgetConfig{Subject: "timetable.widget.snapshot"}, zap.NewNop())
	return svc, slots, views, publisher
}

func TestWidgetServiceMigratesLegacySelection(t *testing.T) {
	svc, slots, _, _ := newWidgetFixture(t)
	ctx := context.Background()
	require.NoError(t, slots.Set(ctx, WidgetLegacyKey, `{"Timetable":{"ID":"ABC-123","Name":"Old"}}`))

	id, ok, err := svc.CurrentTimetableID(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc-123", id)

	_, found, err := slots.Get(ctx, WidgetLegacyKey)
	require.NoError(t, err)
	assert.False(t, found, "legacy key is removed after migration")
}

func TestWidgetServiceMigratesNumericLegacyID(t *testing.T) {
	svc, slots, _, _ := newWidgetFixture(t)
	ctx := context.Background()
	require.NoError(t, slots.Set(ctx, WidgetLegacyKey, `{"timetable":{"id":42}}`))

	snapshot, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "42", snapshot.TimetableID)
}

func TestWidgetServiceKeepsMalformedLegacyDocument(t *testing.T) {
	svc, slots, _, _ := newWidgetFixture(t)
	ctx := context.Background()
	require.NoError(t, slots.Set(ctx, WidgetLegacyKey, `{"timetable": {`))

	id, ok, err := svc.CurrentTimetableID(ctx)
	require.NoError(t, err, "codec errors never reach the caller")
	assert.False(t, ok)
	assert.Empty(t, id)

	legacy, found, err := slots.Get(ctx, WidgetLegacyKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"timetable": {`, legacy)
}

func TestWidgetServiceMigrationRunsOncePerProcess(t *testing.T) {
	svc, slots, _, _ := newWidgetFixture(t)
	ctx := context.Background()

	_, ok, err := svc.CurrentTimetableID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, slots.Set(ctx, WidgetLegacyKey, `{"timetable":{"id":"late"}}`))
	_, ok, err = svc.CurrentTimetableID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWidgetServiceCurrentKeyWins(t *testing.T) {
	svc, slots, _, _ := newWidgetFixture(t)
	ctx := context.Background()
	require.NoError(t, slots.Set(ctx, WidgetTimetableKey, "42"))
	require.NoError(t, slots.Set(ctx, WidgetLegacyKey, `{"timetable":{"id":"abc-123"}}`))

	id, _, err := svc.CurrentTimetableID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	_, found, _ := slots.Get(ctx, WidgetLegacyKey)
	assert.True(t, found)
}

func TestWidgetServiceSelectStoresAndBroadcasts(t *testing.T) {
	svc, slots, _, publisher := newWidgetFixture(t)
	ctx := context.Background()

	snapshot, err := svc.Select(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "Week 42", snapshot.Name)

	text, found, err := slots.Get(ctx, WidgetSnapshotKey)
	require.NoError(t, err)
	require.True(t, found)
	decoded, err := widget.Decode(text)
	require.NoError(t, err)
	assert.Equal(t, *snapshot, decoded)

	require.Equal(t, 1, publisher.count())
	assert.Equal(t, "timetable.widget.snapshot", publisher.subjects[0])
	assert.Equal(t, text, string(publisher.payloads[0]))
}

func TestWidgetServiceSelectUnknownTimetable(t *testing.T) {
	svc, _, _, _ := newWidgetFixture(t)

	_, err := svc.Select(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestWidgetServiceSelectEmptyClears(t *testing.T) {
	svc, slots, _, _ := newWidgetFixture(t)
	ctx := context.Background()
	_, err := svc.Select(ctx, "42")
	require.NoError(t, err)

	snapshot, err := svc.Select(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
	_, found, _ := slots.Get(ctx, WidgetTimetableKey)
	assert.False(t, found)
}

func TestWidgetServiceSnapshotServesStoredText(t *testing.T) {
	svc, _, views, _ := newWidgetFixture(t)
	ctx := context.Background()
	_, err := svc.Select(ctx, "42")
	require.NoError(t, err)
	calls := views.callCount()

	snapshot, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", snapshot.TimetableID)
	assert.Equal(t, calls, views.callCount(), "a stored snapshot is decoded, not rebuilt")
}

func TestWidgetServiceSnapshotRebuildsCorruptText(t *testing.T) {
	svc, slots, _, _ := newWidgetFixture(t)
	ctx := context.Background()
	require.NoError(t, slots.Set(ctx, WidgetTimetableKey, "42"))
	require.NoError(t, slots.Set(ctx, WidgetSnapshotKey, "not json"))

	snapshot, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "42", snapshot.TimetableID)
}

func TestWidgetServiceRefreshDropsSnapshotOfDeletedTimetable(t *testing.T) {
	svc, slots, views, _ := newWidgetFixture(t)
	ctx := context.Background()
	_, err := svc.Select(ctx, "42")
	require.NoError(t, err)

	views.mu.Lock()
	delete(views.views, "42")
	views.mu.Unlock()

	snapshot, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, snapshot)
	_, found, _ := slots.Get(ctx, WidgetSnapshotKey)
	assert.False(t, found)
	id, _, _ := svc.CurrentTimetableID(ctx)
	assert.Equal(t, "42", id, "selection survives so an undo restores the widget")
}

func TestWidgetServiceBackgroundRefreshIsDebounced(t *testing.T) {
	svc, slots, _, publisher := newWidgetFixture(t)
	svc.cfg.RefreshDebounce = 60 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, slots.Set(ctx, WidgetTimetableKey, "42"))

	notifier := watch.NewNotifier()
	svc.Start(ctx, notifier)
	defer svc.Stop()
	require.Eventually(t, func() bool { return notifier.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 10; i++ {
		notifier.Notify(TopicSessions)
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return publisher.count() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, publisher.count(), "a burst of changes yields one refresh")
}
