package runtime

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisStateStore(t *testing.T) *RedisStateStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStateStore(client, "")
}

func TestRedisStateStoreSaveAndLoad(t *testing.T) {
	store := newTestRedisStateStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, "mod-1", []byte("payload")))

	state, ok, err := store.LoadState(ctx, "mod-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), state)
}

func TestRedisStateStoreLoadMissingReturnsNotFound(t *testing.T) {
	store := newTestRedisStateStore(t)

	_, ok, err := store.LoadState(context.Background(), "unknown")
	require.NoError(t, err)
	require.False(t, ok)
}
