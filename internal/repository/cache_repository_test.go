package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

func TestCacheRepositoryLocalFallback(t *testing.T) {
	repo := NewCacheRepository(nil, time.Minute, nil)
	ctx := context.Background()

	var out map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "timetable:view:tt-1", &out), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "timetable:view:tt-1", map[string]int{"blocks": 3}, time.Minute))
	require.NoError(t, repo.Set(ctx, "timetable:view:tt-2", map[string]int{"blocks": 1}, time.Minute))
	require.NoError(t, repo.Get(ctx, "timetable:view:tt-1", &out))
	assert.Equal(t, 3, out["blocks"])

	require.NoError(t, repo.DeleteByPattern(ctx, "timetable:view:tt-1*"))
	assert.ErrorIs(t, repo.Get(ctx, "timetable:view:tt-1", &out), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Get(ctx, "timetable:view:tt-2", &out))

	require.NoError(t, repo.DeleteByPattern(ctx, "timetable:view:*"))
	assert.ErrorIs(t, repo.Get(ctx, "timetable:view:tt-2", &out), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Close())
}

func TestMemoryWidgetSlotRepository(t *testing.T) {
	repo := NewMemoryWidgetSlotRepository()
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, "widget:timetable_id")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "widget:timetable_id", "tt-1"))
	v, ok, err := repo.Get(ctx, "widget:timetable_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tt-1", v)

	require.NoError(t, repo.Delete(ctx, "widget:timetable_id"))
	_, ok, _ = repo.Get(ctx, "widget:timetable_id")
	assert.False(t, ok)
}
