// Package sharedstate holds geofence, pokestop-count, and timezone data
// refreshed by leader-only background jobs and read by every process via a
// small TTL cache backed by the staging store.
package sharedstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

const (
	// KeyGeofences is kept byte-for-byte from the original so existing
	// dashboards reading the staging store directly keep working.
	KeyGeofences = "koji_geofences"
	// KeyPokestops mirrors the original's cached pokestop-count key.
	KeyPokestops = "cached_pokestops"
	// KeyTimezone mirrors the original's user-timezone state key.
	KeyTimezone = "psyduckv2:state:user_timezone"
)

// Geofence is a single named polygon area used to bucket telemetry by area_id.
type Geofence struct {
	ID   int         `json:"id"`
	Name string      `json:"name"`
	Ring [][]float64 `json:"ring"` // [[lon, lat], ...] closed ring
}

// PokestopCounts holds the per-area and grand-total pokestop counts produced
// by the pokestop-count refresher.
type PokestopCounts struct {
	Areas      map[string]int `json:"areas"`
	GrandTotal int            `json:"grand_total"`
}

// cachedValue is a generic TTL cache cell. Fallback-on-stale-read is a
// property of the cell itself, not a separate legacy variable, so a caller
// that tolerates staleness and one that doesn't can share the same state.
type cachedValue[T any] struct {
	mu        sync.RWMutex
	value     T
	fetchedAt time.Time
	ttl       time.Duration
	hasValue  bool
}

func (c *cachedValue[T]) set(v T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = v
	c.fetchedAt = time.Now()
	c.ttl = ttl
	c.hasValue = true
}

// get returns the cached value, whether it exists, and whether it is stale
// (older than its TTL). A stale value is still returned — the caller decides
// whether staleness is acceptable.
func (c *cachedValue[T]) get() (value T, ok bool, stale bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hasValue {
		return value, false, false
	}

	stale = c.ttl > 0 && time.Since(c.fetchedAt) > c.ttl

	return c.value, true, stale
}

// SharedState holds the process-local TTL caches for data refreshed by the
// leader-only jobs in internal/refresh, backed by the staging store so every
// process (leader or follower) observes the same snapshot.
type SharedState struct {
	client *stagingstore.Client

	geofences *cachedValue[[]Geofence]
	pokestops *cachedValue[PokestopCounts]
	timezone  *cachedValue[string]
}

// New constructs a SharedState bound to client.
func New(client *stagingstore.Client) *SharedState {
	return &SharedState{
		client:    client,
		geofences: &cachedValue[[]Geofence]{},
		pokestops: &cachedValue[PokestopCounts]{},
		timezone:  &cachedValue[string]{},
	}
}

// SetGeofences writes geofences to the staging store and the local cache
// with the given TTL.
func (s *SharedState) SetGeofences(ctx context.Context, geofences []Geofence, ttl time.Duration) error {
	payload, err := json.Marshal(geofences)
	if err != nil {
		return fmt.Errorf("marshal geofences: %w", err)
	}

	if err := s.client.Set(ctx, KeyGeofences, string(payload), ttl); err != nil {
		return fmt.Errorf("write geofences: %w", err)
	}

	s.geofences.set(geofences, ttl)

	return nil
}

// GetGeofences returns the cached geofences. If the local cache is stale or
// empty it falls back to reading the staging store directly.
func (s *SharedState) GetGeofences(ctx context.Context) ([]Geofence, error) {
	if v, ok, stale := s.geofences.get(); ok && !stale {
		return v, nil
	}

	raw, err := s.client.Get(ctx, KeyGeofences)
	if err != nil {
		if v, ok, _ := s.geofences.get(); ok {
			return v, nil
		}

		return nil, fmt.Errorf("read geofences: %w", err)
	}

	var geofences []Geofence
	if err := json.Unmarshal([]byte(raw), &geofences); err != nil {
		return nil, fmt.Errorf("unmarshal geofences: %w", err)
	}

	s.geofences.set(geofences, s.geofences.ttl)

	return geofences, nil
}

// SetPokestops writes pokestop counts to the staging store and local cache.
func (s *SharedState) SetPokestops(ctx context.Context, counts PokestopCounts, ttl time.Duration) error {
	payload, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal pokestop counts: %w", err)
	}

	if err := s.client.Set(ctx, KeyPokestops, string(payload), ttl); err != nil {
		return fmt.Errorf("write pokestop counts: %w", err)
	}

	s.pokestops.set(counts, ttl)

	return nil
}

// GetPokestops returns the cached pokestop counts, falling back to the
// staging store (and finally the last-known local value) on a stale/missing
// cache.
func (s *SharedState) GetPokestops(ctx context.Context) (PokestopCounts, error) {
	if v, ok, stale := s.pokestops.get(); ok && !stale {
		return v, nil
	}

	raw, err := s.client.Get(ctx, KeyPokestops)
	if err != nil {
		if v, ok, _ := s.pokestops.get(); ok {
			return v, nil
		}

		return PokestopCounts{}, fmt.Errorf("read pokestop counts: %w", err)
	}

	var counts PokestopCounts
	if err := json.Unmarshal([]byte(raw), &counts); err != nil {
		return PokestopCounts{}, fmt.Errorf("unmarshal pokestop counts: %w", err)
	}

	s.pokestops.set(counts, s.pokestops.ttl)

	return counts, nil
}

// SetTimezone writes the configured timezone name to the staging store and
// local cache.
func (s *SharedState) SetTimezone(ctx context.Context, tz string, ttl time.Duration) error {
	if err := s.client.Set(ctx, KeyTimezone, tz, ttl); err != nil {
		return fmt.Errorf("write timezone: %w", err)
	}

	s.timezone.set(tz, ttl)

	return nil
}

// GetTimezone returns the cached timezone name, falling back to the staging
// store on a stale/missing cache.
func (s *SharedState) GetTimezone(ctx context.Context) (string, error) {
	if v, ok, stale := s.timezone.get(); ok && !stale {
		return v, nil
	}

	tz, err := s.client.Get(ctx, KeyTimezone)
	if err != nil {
		if v, ok, _ := s.timezone.get(); ok {
			return v, nil
		}

		return "", fmt.Errorf("read timezone: %w", err)
	}

	s.timezone.set(tz, s.timezone.ttl)

	return tz, nil
}

// WaitForState polls GetGeofences until it returns data or timeout elapses.
// Followers call this to block until the leader has populated shared state.
func (s *SharedState) WaitForState(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if _, err := s.GetGeofences(ctx); err == nil {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("shared state not populated within %s", timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// GeofenceSnapshot is the read-only view SyncToLegacy's adapter hands to fn.
type GeofenceSnapshot struct {
	Geofences []Geofence
	FetchedAt time.Time
}

// SyncToLegacy returns an adapter that wraps a geofence slice in a
// GeofenceSnapshot stamped with the current time and passes it to fn.
// SharedState does not keep fn and does not call the adapter on refresh;
// the caller invokes it with the geofences to mirror. SharedState itself never depends on whatever structure fn mirrors into —
// the dependency runs adapter-to-SharedState, not the other way around,
// unlike the original's global_state module.
func (s *SharedState) SyncToLegacy(fn func(GeofenceSnapshot)) func([]Geofence) {
	return func(geofences []Geofence) {
		fn(GeofenceSnapshot{Geofences: geofences, FetchedAt: time.Now()})
	}
}
