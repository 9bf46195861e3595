package buffer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

const shinyKey = "buffer:agg_shiny_rates_hash"

// ShinyRow is one aggregated shiny-rate bucket ready for upsert into
// shiny_username_rates.
type ShinyRow struct {
	Username  string
	PokemonID int
	Form      string
	Shiny     int
	AreaID    int
	MonthYear time.Time
	Increment int64
}

type ShinyApplier interface {
	BulkUpsertShinyRates(ctx context.Context, rows []ShinyRow) (int, error)
}

// ShinyBuffer accumulates per-(username,pokemon,form,shiny,area,month) sighting
// counts in a Redis hash.
type ShinyBuffer struct {
	client    *stagingstore.Client
	logger    *slog.Logger
	applier   ShinyApplier
	threshold int64
}

func NewShinyBuffer(client *stagingstore.Client, logger *slog.Logger, applier ShinyApplier, threshold int64) *ShinyBuffer {
	return &ShinyBuffer{client: client, logger: logger, applier: applier, threshold: threshold}
}

func (b *ShinyBuffer) IncrementEvent(ctx context.Context, username string, pokemonID int, form string, shiny int, areaID int, firstSeen time.Time) error {
	monthYear := firstSeen.UTC().Format("0601")
	uniqueKey := fmt.Sprintf("%s|%d|%s|%d|%d|%s", username, pokemonID, form, shiny, areaID, monthYear)

	if _, err := b.client.HIncrBy(ctx, shinyKey, uniqueKey, 1); err != nil {
		return fmt.Errorf("increment shiny buffer: %w", err)
	}

	count, err := b.client.HLen(ctx, shinyKey)
	if err != nil {
		return fmt.Errorf("check shiny buffer size: %w", err)
	}

	if count >= b.threshold {
		if _, err := b.FlushIfReady(ctx); err != nil {
			b.logger.Error("shiny buffer threshold flush failed", "error", err)
		}
	}

	return nil
}

func (b *ShinyBuffer) FlushIfReady(ctx context.Context) (DrainResult, error) {
	return b.flush(ctx, SuffixFlushing)
}

func (b *ShinyBuffer) ForceFlush(ctx context.Context) (DrainResult, error) {
	return b.flush(ctx, SuffixForceFlushing)
}

func (b *ShinyBuffer) flush(ctx context.Context, suffix string) (DrainResult, error) {
	result, err := drain(ctx, b.client, b.logger, shinyKey, shinyKey+suffix, b.readRows,
		func(ctx context.Context, rows []ShinyRow) (int, error) {
			return b.applier.BulkUpsertShinyRates(ctx, rows)
		},
	)

	if err == errBufferEmpty {
		return DrainResult{}, nil
	}

	return result, err
}

func (b *ShinyBuffer) readRows(ctx context.Context, tempKey string) (int, []ShinyRow, int, error) {
	fields, err := b.client.HGetAll(ctx, tempKey)
	if err != nil {
		return 0, nil, 0, err
	}

	rows := make([]ShinyRow, 0, len(fields))
	malformed := 0

	for compositeKey, countStr := range fields {
		row, ok := parseShinyKey(compositeKey)
		if !ok {
			malformed++
			continue
		}

		count, err := parseInt64(countStr)
		if err != nil {
			malformed++
			continue
		}

		row.Increment = count
		rows = append(rows, row)
	}

	return len(fields), rows, malformed, nil
}

// parseShinyKey parses username|pokemon_id|form|shiny|area_id|YYMM.
func parseShinyKey(key string) (ShinyRow, bool) {
	parts := strings.Split(key, "|")
	if len(parts) != 6 {
		return ShinyRow{}, false
	}

	pokemonID, err := parseInt(parts[1])
	if err != nil {
		return ShinyRow{}, false
	}

	shiny, err := parseInt(parts[3])
	if err != nil {
		return ShinyRow{}, false
	}

	areaID, err := parseInt(parts[4])
	if err != nil {
		return ShinyRow{}, false
	}

	monthYear, err := time.Parse("0601", parts[5])
	if err != nil {
		return ShinyRow{}, false
	}

	return ShinyRow{
		Username:  parts[0],
		PokemonID: pokemonID,
		Form:      parts[2],
		Shiny:     shiny,
		AreaID:    areaID,
		MonthYear: monthYear,
	}, true
}

func (b *ShinyBuffer) ResumeDrain(ctx context.Context, staleKey string) error {
	_, err := resumeDrain(ctx, staleKey, b.readRows,
		func(ctx context.Context, rows []ShinyRow) (int, error) {
			return b.applier.BulkUpsertShinyRates(ctx, rows)
		},
	)

	if delErr := b.client.Del(ctx, staleKey); delErr != nil {
		b.logger.Warn("failed to clean up resumed buffer key", "key", staleKey, "error", delErr)
	}

	return err
}
