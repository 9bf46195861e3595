package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/hugodataanalyst/ingestpipe/internal/sharedstate"
)

type geofenceResponse struct {
	Data struct {
		Features []geofenceFeature `json:"features"`
	} `json:"data"`
}

type geofenceFeature struct {
	ID         int `json:"id"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
	Geometry struct {
		Type        string        `json:"type"`
		Coordinates [][][]float64 `json:"coordinates"`
	} `json:"geometry"`
}

// GeofenceRefresher periodically pulls the current geofence set from a
// Koji-compatible API and caches it in the shared state layer, grounded on
// utils/koji_geofences.py's get_koji_geofences/cache_koji_geofences.
type GeofenceRefresher struct {
	cfg     *Config
	state   *sharedstate.SharedState
	logger  *slog.Logger
	client  *http.Client
	limiter *rate.Limiter
}

func NewGeofenceRefresher(cfg *Config, state *sharedstate.SharedState, logger *slog.Logger) *GeofenceRefresher {
	limit := cfg.GeofenceRateLimitPerSec
	if limit <= 0 {
		limit = defaultGeofenceRateLimitPerSec
	}

	return &GeofenceRefresher{
		cfg:     cfg,
		state:   state,
		logger:  logger,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(limit), 1),
	}
}

// RefreshOnce fetches the current geofences and writes them into shared
// state. Retries transport/non-200 failures with exponential backoff, up to
// cfg.GeofenceRetries retries after the first attempt.
func (r *GeofenceRefresher) RefreshOnce(ctx context.Context) error {
	geofences, err := r.fetchWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("fetch geofences: %w", err)
	}

	if err := r.state.SetGeofences(ctx, geofences, r.cfg.GeofenceExpireSeconds); err != nil {
		return fmt.Errorf("cache geofences: %w", err)
	}

	r.logger.Info("geofences refreshed", "count", len(geofences))

	return nil
}

// fetchWithRetry rate-limits and retries fetch with exponential backoff, up
// to cfg.GeofenceRetries retries after the first attempt.
func (r *GeofenceRefresher) fetchWithRetry(ctx context.Context) ([]sharedstate.Geofence, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.cfg.GeofenceRetries)), ctx)

	var geofences []sharedstate.Geofence

	err := backoff.Retry(func() error {
		fetched, err := r.fetch(ctx)
		if err != nil {
			r.logger.Warn("geofence fetch failed, retrying", "error", err)
			return err
		}

		geofences = fetched

		return nil
	}, policy)
	if err != nil {
		return nil, err
	}

	return geofences, nil
}

func (r *GeofenceRefresher) fetch(ctx context.Context) ([]sharedstate.Geofence, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.KojiAPIURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+r.cfg.KojiBearerToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("koji geofence api returned status %d", resp.StatusCode)
	}

	var parsed geofenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]sharedstate.Geofence, 0, len(parsed.Data.Features))

	for _, f := range parsed.Data.Features {
		if len(f.Geometry.Coordinates) == 0 {
			r.logger.Warn("geofence feature has no coordinates, skipping", "name", f.Properties.Name)
			continue
		}

		out = append(out, sharedstate.Geofence{
			ID:   f.ID,
			Name: f.Properties.Name,
			Ring: f.Geometry.Coordinates[0],
		})
	}

	return out, nil
}

// RunLoop refreshes on every interval tick until ctx is cancelled, logging
// (not aborting) any single refresh failure.
func (r *GeofenceRefresher) RunLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = r.cfg.GeofenceRefreshInterval
	}

	if err := r.RefreshOnce(ctx); err != nil {
		r.logger.Error("initial geofence refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil {
				r.logger.Error("geofence refresh failed", "error", err)
			}
		}
	}
}
