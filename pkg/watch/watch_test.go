package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierFiltersTopicsAndCoalesces(t *testing.T) {
	n := NewNotifier()
	sessions, cancel := n.Subscribe("sessions")
	defer cancel()

	n.Notify("subjects")
	select {
	case <-sessions:
		t.Fatal("unexpected signal for other topic")
	default:
	}

	n.Notify("sessions")
	n.Notify("sessions", "timetables")
	<-sessions
	select {
	case <-sessions:
		t.Fatal("signals should coalesce")
	default:
	}

	cancel()
	cancel()
	assert.Equal(t, 0, n.Subscribers())
}

func TestObserveReplaysAndReemits(t *testing.T) {
	n := NewNotifier()
	var version atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := Observe(ctx, n, func(context.Context) (int32, error) {
		return version.Load(), nil
	}, nil, "sessions")

	assert.Equal(t, int32(0), receive(t, stream))

	version.Store(7)
	n.Notify("sessions")
	assert.Equal(t, int32(7), receive(t, stream))
}

func TestObserveReportsErrorsAndKeepsStreaming(t *testing.T) {
	n := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 1)
	var calls atomic.Int32
	stream := Observe(ctx, n, func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("locked")
		}
		return "ok", nil
	}, func(err error) { errs <- err }, "sessions")

	require.Error(t, <-errs)
	n.Notify("sessions")
	assert.Equal(t, "ok", receive(t, stream))
}

func TestObserveClosesOnCancel(t *testing.T) {
	n := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	stream := Observe(ctx, n, func(context.Context) (int, error) { return 1, nil }, nil)

	receive(t, stream)
	cancel()

	select {
	case _, ok := <-stream:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
	require.Eventually(t, func() bool { return n.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { runs.Add(1) })

	for i := 0; i < 5; i++ {
		d.Trigger()
	}
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestDebouncerFlushAndStop(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(time.Hour, func() { runs.Add(1) })

	d.Trigger()
	d.Flush()
	assert.Equal(t, int32(1), runs.Load())

	d.Trigger()
	d.Stop()
	d.Flush()
	d.Trigger()
	assert.Equal(t, int32(1), runs.Load())
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "stream closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}
