package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })

	ok, err := store.SetNX(ctx, "k", "true", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Minute, store.TTL("k"))

	ok, err = store.SetNX(ctx, "k", "true", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	now = now.Add(time.Minute)
	exists, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, exists)
	require.Zero(t, store.Len())
}

func TestMemoryStoreIncr(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })

	for i := int64(1); i <= 3; i++ {
		n, err := store.Incr(ctx, "c", 30*time.Second)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}

	now = now.Add(31 * time.Second)
	n, err := store.Incr(ctx, "c", 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.NoError(t, store.Delete(ctx, "c"))
	require.Zero(t, store.Len())
}

func TestMemoryStoreFailure(t *testing.T) {
	store := NewMemoryStore(nil)
	store.FailWith(errors.New("connection refused"))

	_, err := store.Incr(context.Background(), "c", time.Second)
	require.ErrorIs(t, err, domain.ErrRegistryUnavailable)
	require.ErrorIs(t, store.Ping(context.Background()), domain.ErrRegistryUnavailable)

	store.FailWith(nil)
	require.NoError(t, store.Ping(context.Background()))
}
