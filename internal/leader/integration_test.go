package leader

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

func newTestClient(ctx context.Context, t *testing.T) *stagingstore.Client {
	t.Helper()

	container, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := stagingstore.NewClient(stagingstore.TestConfig(connStr), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	t.Cleanup(func() { client.Close() })

	return client
}

func TestElectionTryAcquireAndRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client := newTestClient(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e1 := New(client, logger, "test:leader", 2*time.Second)
	e2 := New(client, logger, "test:leader", 2*time.Second)

	acquired, err := e1.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = e2.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "a second worker must not acquire a held lock")

	require.NoError(t, e1.Release(ctx))

	acquired, err = e2.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "lock must be acquirable once released")

	require.NoError(t, e2.Release(ctx))
}

type recordingResumer struct {
	resumed []string
}

func (r *recordingResumer) ResumeDrain(ctx context.Context, staleKey string) error {
	r.resumed = append(r.resumed, staleKey)
	return nil
}

func TestRecoverStaleStagingKeys(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client := newTestClient(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, client.Set(ctx, "buffer:agg_pokemon_iv:flushing", "1", 0))
	require.NoError(t, client.Set(ctx, "buffer:raid_events:force_flushing", "1", 0))

	e := New(client, logger, "test:leader", time.Second)

	resumer := &recordingResumer{}
	require.NoError(t, e.RecoverStaleStagingKeys(ctx, resumer))

	assert.ElementsMatch(t, []string{
		"buffer:agg_pokemon_iv:flushing",
		"buffer:raid_events:force_flushing",
	}, resumer.resumed)
}
