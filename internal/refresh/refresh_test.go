package refresh

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPolygonWKT(t *testing.T) {
	wkt, ok := polygonWKT([][]float64{{1, 2}, {3, 4}, {1, 2}})
	require.True(t, ok)
	assert.Equal(t, "POLYGON((1 2, 3 4, 1 2))", wkt)

	_, ok = polygonWKT(nil)
	assert.False(t, ok)

	_, ok = polygonWKT([][]float64{{1}})
	assert.False(t, ok)
}

func TestGeofenceRefresherFetch(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		body := map[string]any{
			"data": map[string]any{
				"features": []map[string]any{
					{
						"id":         1,
						"properties": map[string]any{"name": "AreaOne"},
						"geometry": map[string]any{
							"type":        "Polygon",
							"coordinates": [][][]float64{{{1, 2}, {3, 4}, {1, 2}}},
						},
					},
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	defer srv.Close()

	cfg := &Config{
		KojiAPIURL:              srv.URL,
		KojiBearerToken:         "test-token",
		GeofenceRetries:         2,
		GeofenceRateLimitPerSec: 1000,
	}

	r := NewGeofenceRefresher(cfg, nil, testLogger())

	geofences, err := r.fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, geofences, 1)
	assert.Equal(t, "AreaOne", geofences[0].Name)
	assert.Equal(t, 1, geofences[0].ID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeofenceRefresherFetchSkipsFeatureWithoutCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"data": map[string]any{
				"features": []map[string]any{
					{"id": 1, "properties": map[string]any{"name": "Empty"}, "geometry": map[string]any{"coordinates": [][][]float64{}}},
				},
			},
		}

		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	defer srv.Close()

	cfg := &Config{KojiAPIURL: srv.URL, GeofenceRetries: 1, GeofenceRateLimitPerSec: 1000}
	r := NewGeofenceRefresher(cfg, nil, testLogger())

	geofences, err := r.fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, geofences)
}

func TestGeofenceRefresherFetchRetriesOnNon200(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"features": []map[string]any{}}}))
	}))
	defer srv.Close()

	cfg := &Config{KojiAPIURL: srv.URL, GeofenceRetries: 5, GeofenceRateLimitPerSec: 1000}
	r := NewGeofenceRefresher(cfg, nil, testLogger())
	r.client.Timeout = 2 * time.Second

	geofences, err := r.fetchWithRetry(context.Background())
	require.NoError(t, err)
	assert.Empty(t, geofences)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}
