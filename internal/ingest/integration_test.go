package ingest

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

	"github.com/hugodataanalyst/ingestpipe/internal/buffer"
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

type fakeIVApplier struct{ rows []buffer.IVRow }

func (f *fakeIVApplier) BulkUpsertPokemonIV(_ context.Context, rows []buffer.IVRow) (int, error) {
	f.rows = append(f.rows, rows...)

	return len(rows), nil
}

func TestDispatchPokemonIncrementsIVBuffer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client := newTestClient(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	applier := &fakeIVApplier{}
	ivBuf := buffer.NewIVBuffer(client, logger, applier, 1000)

	deps := Dependencies{
		Client:     client,
		TimeSeries: NopTimeSeriesUpdater{},
		IVBuffer:   ivBuf,
		Config:     &Config{StoreSQLPokemonAggregation: true},
		Logger:     logger,
	}

	dispatcher := NewDispatcher(deps)

	raw := map[string]any{
		"type":       "pokemon",
		"spawnpoint": "abcdef",
		"latitude":   37.7749,
		"longitude":  -122.4194,
		"pokemon_id": float64(25),
		"form":       "0",
		"iv":         float64(96),
		"area_id":    float64(3),
		"first_seen": float64(time.Date(2025, time.September, 10, 0, 0, 0, 0, time.UTC).Unix()),
	}

	summary := dispatcher.ParseEvent(ctx, raw)
	assert.Equal(t, "success", summary.Status)

	count, err := client.HLen(ctx, "buffer:agg_pokemon_iv")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDispatchUnknownTypeIgnored(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client := newTestClient(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dispatcher := NewDispatcher(Dependencies{Client: client, Config: &Config{}, Logger: logger})

	summary := dispatcher.ParseEvent(ctx, map[string]any{"type": "weather"})
	assert.Equal(t, "ignored", summary.Status)
}

func TestDispatchMissingTypeErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client := newTestClient(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dispatcher := NewDispatcher(Dependencies{Client: client, Config: &Config{}, Logger: logger})

	summary := dispatcher.ParseEvent(ctx, map[string]any{})
	assert.Equal(t, "error", summary.Status)
}
