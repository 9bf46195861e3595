package stagingstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

func startRedisContainer(ctx context.Context, t *testing.T) (string, func()) {
	t.Helper()

	container, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	return connStr, func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	}
}

func TestClientIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	connStr, cleanup := startRedisContainer(ctx, t)
	defer cleanup()

	cfg := &Config{
		url:          connStr,
		PoolSize:     defaultPoolSize,
		MinIdleConns: defaultMinIdleConns,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		RetryBase:    10 * time.Millisecond,
		RetryCount:   3,
	}

	client, err := NewClient(cfg, testLogger())
	require.NoError(t, err)
	defer client.Close()

	t.Run("hash increment buffer shape", func(t *testing.T) {
		n, err := client.HIncrBy(ctx, "buffer:test_iv", "key-a", 1)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		n, err = client.HIncrBy(ctx, "buffer:test_iv", "key-a", 1)
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		length, err := client.HLen(ctx, "buffer:test_iv")
		require.NoError(t, err)
		require.Equal(t, int64(1), length)
	})

	t.Run("list append buffer shape", func(t *testing.T) {
		_, err := client.RPush(ctx, "buffer:test_raid", "line-1")
		require.NoError(t, err)
		_, err = client.RPush(ctx, "buffer:test_raid", "line-2")
		require.NoError(t, err)

		length, err := client.LLen(ctx, "buffer:test_raid")
		require.NoError(t, err)
		require.Equal(t, int64(2), length)

		lines, err := client.LRange(ctx, "buffer:test_raid", 0, -1)
		require.NoError(t, err)
		require.Equal(t, []string{"line-1", "line-2"}, lines)
	})

	t.Run("drain rename protocol", func(t *testing.T) {
		_, err := client.HIncrBy(ctx, "buffer:test_drain", "key-a", 1)
		require.NoError(t, err)

		require.NoError(t, client.Rename(ctx, "buffer:test_drain", "buffer:test_drain:flushing"))

		exists, err := client.Exists(ctx, "buffer:test_drain")
		require.NoError(t, err)
		require.False(t, exists)

		err = client.Rename(ctx, "buffer:test_drain", "buffer:test_drain:flushing")
		require.ErrorIs(t, err, ErrNoSuchKey)

		require.NoError(t, client.Del(ctx, "buffer:test_drain:flushing"))
	})
}

func TestEnsureClientReconnectsOnDeadConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	connStr, cleanup := startRedisContainer(ctx, t)
	defer cleanup()

	cfg := &Config{
		url: connStr, PoolSize: defaultPoolSize, MinIdleConns: defaultMinIdleConns,
		DialTimeout: defaultDialTimeout, ReadTimeout: defaultReadTimeout, WriteTimeout: defaultWriteTimeout,
		RetryBase: 10 * time.Millisecond, RetryCount: 3,
	}

	client, err := NewClient(cfg, testLogger())
	require.NoError(t, err)
	defer client.Close()

	healthy, err := EnsureClient(ctx, client, testLogger())
	require.NoError(t, err)
	require.NotNil(t, healthy)
}
