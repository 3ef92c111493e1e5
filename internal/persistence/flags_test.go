package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFlagStoreSetOnce(t *testing.T) {
	store := NewMemoryFlagStore()
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	ctx := context.Background()

	first, err := store.SetOnce(ctx, "digest:daily:2026-01-05", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := store.SetOnce(ctx, "digest:daily:2026-01-05", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := store.SetOnce(ctx, "digest:daily:2026-01-06", time.Hour)
	require.NoError(t, err)
	assert.True(t, other)

	now = now.Add(2 * time.Hour)
	expired, err := store.SetOnce(ctx, "digest:daily:2026-01-05", time.Hour)
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestNewFlagStoreFallsBackToMemory(t *testing.T) {
	store := NewFlagStore(&Redis{}, "helpdesk:")
	_, ok := store.(*MemoryFlagStore)
	assert.True(t, ok)
}
