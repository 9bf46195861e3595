package buffer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

const invasionKey = "buffer:invasion_events"

// InvasionRow is one raw invasion sighting ready for insert into
// invasions_daily_events.
type InvasionRow struct {
	Pokestop     string
	PokestopName string
	Latitude     float64
	Longitude    float64
	DisplayType  int
	Character    int
	Grunt        int
	Confirmed    int
	AreaID       int
	FirstSeen    int64
}

type InvasionApplier interface {
	BulkInsertInvasionDailyEvents(ctx context.Context, rows []InvasionRow) (int, error)
}

// InvasionBuffer accumulates raw invasion sightings as pipe-delimited lines
// in a Redis list.
type InvasionBuffer struct {
	client    *stagingstore.Client
	logger    *slog.Logger
	applier   InvasionApplier
	threshold int64
}

func NewInvasionBuffer(client *stagingstore.Client, logger *slog.Logger, applier InvasionApplier, threshold int64) *InvasionBuffer {
	return &InvasionBuffer{client: client, logger: logger, applier: applier, threshold: threshold}
}

func (b *InvasionBuffer) Append(ctx context.Context, row InvasionRow) error {
	if !ValidCoords(&row.Latitude, &row.Longitude) {
		return nil
	}

	line := fmt.Sprintf("%s|%s|%v|%v|%d|%d|%d|%d|%d|%d",
		row.Pokestop, row.PokestopName, row.Latitude, row.Longitude,
		row.DisplayType, row.Character, row.Grunt, row.Confirmed, row.AreaID, row.FirstSeen)

	queued, err := appendToList(ctx, b.client, invasionKey, line)
	if err != nil {
		return fmt.Errorf("append invasion event: %w", err)
	}

	if queued >= b.threshold {
		if _, err := b.FlushIfReady(ctx); err != nil {
			b.logger.Error("invasion buffer threshold flush failed", "error", err)
		}
	}

	return nil
}

func (b *InvasionBuffer) FlushIfReady(ctx context.Context) (DrainResult, error) {
	return b.flush(ctx, SuffixFlushing)
}

func (b *InvasionBuffer) ForceFlush(ctx context.Context) (DrainResult, error) {
	return b.flush(ctx, SuffixForceFlushing)
}

func (b *InvasionBuffer) flush(ctx context.Context, suffix string) (DrainResult, error) {
	result, err := drain(ctx, b.client, b.logger, invasionKey, invasionKey+suffix, b.readRows,
		func(ctx context.Context, rows []InvasionRow) (int, error) {
			return b.applier.BulkInsertInvasionDailyEvents(ctx, rows)
		},
	)

	if err == errBufferEmpty {
		return DrainResult{}, nil
	}

	return result, err
}

func (b *InvasionBuffer) readRows(ctx context.Context, tempKey string) (int, []InvasionRow, int, error) {
	return readListRows(ctx, b.client, tempKey, parseInvasionLine)
}

// parseInvasionLine parses
// pokestop|pokestop_name|lat|lon|display_type|character|grunt|confirmed|area_id|first_seen
func parseInvasionLine(line string) (InvasionRow, bool) {
	parts, ok := splitPipe(line, 10)
	if !ok {
		return InvasionRow{}, false
	}

	lat, err := parseFloat(parts[2])
	if err != nil {
		return InvasionRow{}, false
	}

	lon, err := parseFloat(parts[3])
	if err != nil {
		return InvasionRow{}, false
	}

	displayType, err := parseInt(parts[4])
	if err != nil {
		return InvasionRow{}, false
	}

	character, err := parseInt(parts[5])
	if err != nil {
		return InvasionRow{}, false
	}

	grunt, err := parseInt(parts[6])
	if err != nil {
		return InvasionRow{}, false
	}

	confirmed, err := parseInt(parts[7])
	if err != nil {
		return InvasionRow{}, false
	}

	areaID, err := parseInt(parts[8])
	if err != nil {
		return InvasionRow{}, false
	}

	firstSeen, err := parseInt64(parts[9])
	if err != nil {
		return InvasionRow{}, false
	}

	return InvasionRow{
		Pokestop:     parts[0],
		PokestopName: parts[1],
		Latitude:     lat,
		Longitude:    lon,
		DisplayType:  displayType,
		Character:    character,
		Grunt:        grunt,
		Confirmed:    confirmed,
		AreaID:       areaID,
		FirstSeen:    firstSeen,
	}, true
}

func (b *InvasionBuffer) ResumeDrain(ctx context.Context, staleKey string) error {
	_, err := resumeDrain(ctx, staleKey, b.readRows,
		func(ctx context.Context, rows []InvasionRow) (int, error) {
			return b.applier.BulkInsertInvasionDailyEvents(ctx, rows)
		},
	)

	if delErr := b.client.Del(ctx, staleKey); delErr != nil {
		b.logger.Warn("failed to clean up resumed buffer key", "key", staleKey, "error", delErr)
	}

	return err
}
