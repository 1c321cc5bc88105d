package lease

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return clock }

	release, ok, err := l.Acquire(ctx, "tx-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "tx-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held lease must not be granted twice")

	_, ok, _ = l.Acquire(ctx, "tx-2", time.Minute)
	assert.True(t, ok, "other keys are independent")

	release()
	release2, ok, _ := l.Acquire(ctx, "tx-1", time.Minute)
	assert.True(t, ok)

	// An expired lease can be taken over, and the stale holder's release
	// must leave the new holder alone.
	clock = clock.Add(2 * time.Minute)
	_, ok, _ = l.Acquire(ctx, "tx-1", time.Minute)
	require.True(t, ok)
	release2()
	_, ok, _ = l.Acquire(ctx, "tx-1", time.Minute)
	assert.False(t, ok)
}

// Runs against a real Redis when REDIS_TEST_ADDR is set.
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	l := NewRedisLocker(client, "test:lease:")
	key := "tx-" + time.Now().Format("150405.000000000")

	release, ok, err := l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release, ok, err = l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}
