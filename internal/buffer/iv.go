package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

const (
	ivKey       = "buffer:agg_pokemon_iv"
	ivCoordsKey = "buffer:agg_pokemon_iv:coords"
)

// IVRow is one aggregated Pokemon-IV bucket ready for upsert into
// aggregated_pokemon_iv_monthly: a spawnpoint/pokemon/form/bucket/area/month
// combination plus how many times it was seen this cycle.
type IVRow struct {
	Spawnpoint string
	Latitude   *float64
	Longitude  *float64
	PokemonID  int
	Form       string
	IVBucket   int
	AreaID     int
	MonthYear  time.Time
	Increment  int64
}

// IVApplier upserts a batch of aggregated IV rows, returning the number of
// input rows accepted (not the number of rows the SQL layer affected).
type IVApplier interface {
	BulkUpsertPokemonIV(ctx context.Context, rows []IVRow) (int, error)
}

// IVBuffer accumulates per-(spawnpoint,pokemon,form,bucket,area,month) sighting
// counts in a Redis hash, with a companion hash caching each spawnpoint's
// coordinates the first time it's seen.
type IVBuffer struct {
	client    *stagingstore.Client
	logger    *slog.Logger
	applier   IVApplier
	threshold int64
}

func NewIVBuffer(client *stagingstore.Client, logger *slog.Logger, applier IVApplier, threshold int64) *IVBuffer {
	return &IVBuffer{client: client, logger: logger, applier: applier, threshold: threshold}
}

// IncrementEvent records one Pokemon sighting, caching its spawnpoint's
// coordinates and flushing the buffer once the unique-key threshold is hit.
func (b *IVBuffer) IncrementEvent(ctx context.Context, spawnpoint string, lat, lon *float64, pokemonID int, form string, rawIV int, areaID int, firstSeen time.Time) error {
	bucket := GetIVBucket(rawIV)
	monthYear := firstSeen.UTC().Format("0601")
	uniqueKey := fmt.Sprintf("%s_%d_%s_%d_%d_%s", spawnpoint, pokemonID, form, bucket, areaID, monthYear)

	if lat != nil && lon != nil {
		if _, err := b.client.HSetNX(ctx, ivCoordsKey, spawnpoint, fmt.Sprintf("%v,%v", *lat, *lon)); err != nil {
			b.logger.Warn("failed to cache spawnpoint coords", "spawnpoint", spawnpoint, "error", err)
		}
	}

	if _, err := b.client.HIncrBy(ctx, ivKey, uniqueKey, 1); err != nil {
		return fmt.Errorf("increment iv buffer: %w", err)
	}

	count, err := b.client.HLen(ctx, ivKey)
	if err != nil {
		return fmt.Errorf("check iv buffer size: %w", err)
	}

	if count >= b.threshold {
		if _, err := b.FlushIfReady(ctx); err != nil {
			b.logger.Error("iv buffer threshold flush failed", "error", err)
		}
	}

	return nil
}

func (b *IVBuffer) FlushIfReady(ctx context.Context) (DrainResult, error) {
	return b.flush(ctx, SuffixFlushing)
}

func (b *IVBuffer) ForceFlush(ctx context.Context) (DrainResult, error) {
	return b.flush(ctx, SuffixForceFlushing)
}

func (b *IVBuffer) flush(ctx context.Context, suffix string) (DrainResult, error) {
	coordsTemp := ivCoordsKey + suffix
	coordsExist, err := b.client.Exists(ctx, ivCoordsKey)
	if err != nil {
		return DrainResult{}, fmt.Errorf("check coords buffer existence: %w", err)
	}

	haveCoords := false
	if coordsExist {
		if err := b.client.Rename(ctx, ivCoordsKey, coordsTemp); err == nil {
			haveCoords = true
		} else if !isNoSuchKey(err) {
			return DrainResult{}, fmt.Errorf("rename coords buffer: %w", err)
		}
	}

	result, err := drain(ctx, b.client, b.logger, ivKey, ivKey+suffix,
		func(ctx context.Context, tempKey string) (int, []IVRow, int, error) {
			return b.readRows(ctx, tempKey, coordsTemp, haveCoords)
		},
		func(ctx context.Context, rows []IVRow) (int, error) {
			return b.applier.BulkUpsertPokemonIV(ctx, rows)
		},
	)

	if haveCoords {
		if delErr := b.client.Del(ctx, coordsTemp); delErr != nil {
			b.logger.Warn("failed to clean up coords buffer key", "key", coordsTemp, "error", delErr)
		}
	}

	if err == errBufferEmpty {
		return DrainResult{}, nil
	}

	return result, err
}

func (b *IVBuffer) readRows(ctx context.Context, tempKey, coordsTemp string, haveCoords bool) (int, []IVRow, int, error) {
	fields, err := b.client.HGetAll(ctx, tempKey)
	if err != nil {
		return 0, nil, 0, err
	}

	coordsMap := map[string][2]float64{}
	if haveCoords {
		coordFields, err := b.client.HGetAll(ctx, coordsTemp)
		if err != nil {
			b.logger.Warn("failed to read coords buffer", "error", err)
		}

		for spawnpoint, raw := range coordFields {
			lat, lon, ok := parseCoordPair(raw)
			if ok {
				coordsMap[spawnpoint] = [2]float64{lat, lon}
			}
		}
	}

	rows := make([]IVRow, 0, len(fields))
	malformed := 0

	for compositeKey, countStr := range fields {
		row, ok := parseIVKey(compositeKey)
		if !ok {
			malformed++
			continue
		}

		count, err := parseInt64(countStr)
		if err != nil {
			malformed++
			continue
		}

		if pair, ok := coordsMap[row.Spawnpoint]; ok {
			lat, lon := pair[0], pair[1]
			row.Latitude, row.Longitude = &lat, &lon
		}

		row.Increment = count
		rows = append(rows, row)
	}

	return len(fields), rows, malformed, nil
}

// parseIVKey parses spawnpoint_pokemonId_form_bucket_area_YYMM.
func parseIVKey(key string) (IVRow, bool) {
	parts := strings.Split(key, "_")
	if len(parts) != 6 {
		return IVRow{}, false
	}

	pokemonID, err := parseInt(parts[1])
	if err != nil {
		return IVRow{}, false
	}

	bucket, err := parseInt(parts[3])
	if err != nil {
		return IVRow{}, false
	}

	areaID, err := parseInt(parts[4])
	if err != nil {
		return IVRow{}, false
	}

	monthYear, err := time.Parse("0601", parts[5])
	if err != nil {
		return IVRow{}, false
	}

	return IVRow{
		Spawnpoint: parts[0],
		PokemonID:  pokemonID,
		Form:       parts[2],
		IVBucket:   bucket,
		AreaID:     areaID,
		MonthYear:  monthYear,
	}, true
}

func parseCoordPair(raw string) (float64, float64, bool) {
	lat, lon, found := strings.Cut(raw, ",")
	if !found {
		return 0, 0, false
	}

	latVal, err := parseFloat(lat)
	if err != nil {
		return 0, 0, false
	}

	lonVal, err := parseFloat(lon)
	if err != nil {
		return 0, 0, false
	}

	return latVal, lonVal, true
}

func isNoSuchKey(err error) bool {
	return err == stagingstore.ErrNoSuchKey
}

// ResumeDrain finishes a drain a crashed leader left mid-flight: staleKey is
// already the renamed (":flushing"/":force_flushing") key.
func (b *IVBuffer) ResumeDrain(ctx context.Context, staleKey string) error {
	coordsTemp := ivCoordsKey + strings.TrimPrefix(staleKey, ivKey)
	haveCoords, err := b.client.Exists(ctx, coordsTemp)
	if err != nil {
		haveCoords = false
	}

	_, err = resumeDrain(ctx, staleKey,
		func(ctx context.Context, tempKey string) (int, []IVRow, int, error) {
			return b.readRows(ctx, tempKey, coordsTemp, haveCoords)
		},
		func(ctx context.Context, rows []IVRow) (int, error) {
			return b.applier.BulkUpsertPokemonIV(ctx, rows)
		},
	)

	if delErr := b.client.Del(ctx, staleKey); delErr != nil {
		b.logger.Warn("failed to clean up resumed buffer key", "key", staleKey, "error", delErr)
	}

	if haveCoords {
		if delErr := b.client.Del(ctx, coordsTemp); delErr != nil {
			b.logger.Warn("failed to clean up resumed coords key", "key", coordsTemp, "error", delErr)
		}
	}

	return err
}
