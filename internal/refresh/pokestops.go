package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/relstore"
	"github.com/hugodataanalyst/ingestpipe/internal/sharedstate"
)

// PokestopCountRefresher counts pokestops per cached geofence by asking MySQL
// whether each pokestop's point lies inside the geofence's polygon, grounded
// on sql/tasks/golbat_pokestops.py's GolbatSQLPokestops.refresh_pokestops.
type PokestopCountRefresher struct {
	cfg    *Config
	conn   *relstore.Connection
	state  *sharedstate.SharedState
	logger *slog.Logger
}

func NewPokestopCountRefresher(cfg *Config, conn *relstore.Connection, state *sharedstate.SharedState, logger *slog.Logger) *PokestopCountRefresher {
	return &PokestopCountRefresher{cfg: cfg, conn: conn, state: state, logger: logger}
}

const pokestopCountQuery = `SELECT COUNT(*) FROM pokestops WHERE ST_CONTAINS(ST_GeomFromText(?), POINT(longitude, latitude))`

// RefreshOnce counts pokestops inside every currently cached geofence and
// writes the per-area and grand-total counts into shared state. A geofence
// with no usable ring is skipped rather than failing the whole refresh.
func (r *PokestopCountRefresher) RefreshOnce(ctx context.Context) error {
	geofences, err := r.state.GetGeofences(ctx)
	if err != nil {
		return fmt.Errorf("load cached geofences: %w", err)
	}

	if len(geofences) == 0 {
		r.logger.Warn("no geofences cached, skipping pokestop refresh")
		return nil
	}

	areas := make(map[string]int, len(geofences))
	grandTotal := 0

	for _, gf := range geofences {
		wkt, ok := polygonWKT(gf.Ring)
		if !ok {
			r.logger.Warn("geofence has no usable ring, skipping", "name", gf.Name)
			continue
		}

		count, err := r.countWithRetry(ctx, gf.Name, wkt)
		if err != nil {
			r.logger.Error("pokestop count failed after retries, skipping area", "name", gf.Name, "error", err)
			continue
		}

		areas[gf.Name] = count
		grandTotal += count
	}

	counts := sharedstate.PokestopCounts{Areas: areas, GrandTotal: grandTotal}

	if err := r.state.SetPokestops(ctx, counts, r.cfg.PokestopCacheExpiry); err != nil {
		return fmt.Errorf("cache pokestop counts: %w", err)
	}

	r.logger.Info("pokestop counts refreshed", "areas", len(areas), "grand_total", grandTotal)

	return nil
}

func (r *PokestopCountRefresher) countWithRetry(ctx context.Context, area, wkt string) (int, error) {
	maxRetries := r.cfg.PokestopMaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultPokestopMaxRetries
	}

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var count int

		err := r.conn.QueryRowContext(ctx, pokestopCountQuery, wkt).Scan(&count)
		if err == nil {
			return count, nil
		}

		lastErr = err

		r.logger.Warn("pokestop count query failed, retrying", "area", area, "attempt", attempt, "max_retries", maxRetries, "error", err)

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return 0, fmt.Errorf("area %s: %w", area, lastErr)
}

// polygonWKT renders a closed lon/lat ring as a MySQL-compatible
// POLYGON((lon lat, lon lat, ...)) literal.
func polygonWKT(ring [][]float64) (string, bool) {
	if len(ring) == 0 {
		return "", false
	}

	points := make([]string, 0, len(ring))

	for _, pt := range ring {
		if len(pt) < 2 {
			return "", false
		}

		points = append(points, strconv.FormatFloat(pt[0], 'f', -1, 64)+" "+strconv.FormatFloat(pt[1], 'f', -1, 64))
	}

	return "POLYGON((" + strings.Join(points, ", ") + "))", true
}

// RunLoop refreshes on every interval tick until ctx is cancelled.
func (r *PokestopCountRefresher) RunLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = r.cfg.PokestopRefreshInterval
	}

	if err := r.RefreshOnce(ctx); err != nil {
		r.logger.Error("initial pokestop refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil {
				r.logger.Error("pokestop refresh failed", "error", err)
			}
		}
	}
}
