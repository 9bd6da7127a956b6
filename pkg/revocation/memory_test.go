package revocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_MarkAndExpire(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.MarkRevoked(ctx, "jti-1", 5*time.Minute))

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(5 * time.Minute)
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryStore_CleanupOnMark(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, store.MarkRevoked(ctx, "jti-1", time.Minute))
	require.NoError(t, store.MarkRevoked(ctx, "jti-2", time.Hour))
	assert.Equal(t, 2, store.Len())

	now = now.Add(2 * time.Minute)
	require.NoError(t, store.MarkRevoked(ctx, "jti-3", time.Hour))
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.MarkRevoked(ctx, "jti", time.Minute))
	_, err := store.IsRevoked(ctx, "jti")
	assert.Error(t, err)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.MarkRevoked(ctx, "shared", time.Minute)
		}()
		go func() {
			defer wg.Done()
			_, _ = store.IsRevoked(ctx, "shared")
		}()
	}
	wg.Wait()

	revoked, err := store.IsRevoked(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, revoked)
}
