package buffer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

const raidKey = "buffer:raid_events"

// RaidRow is one raw raid sighting ready for insert into
// raids_daily_events.
type RaidRow struct {
	Gym             string
	GymName         string
	Latitude        float64
	Longitude       float64
	RaidPokemon     int
	RaidForm        string
	RaidLevel       int
	RaidTeam        int
	RaidCostume     string
	RaidIsExclusive int
	RaidExEligible  int
	AreaID          int
	FirstSeen       int64
}

type RaidApplier interface {
	BulkInsertRaidDailyEvents(ctx context.Context, rows []RaidRow) (int, error)
}

// RaidBuffer accumulates raw raid sightings as pipe-delimited lines in a
// Redis list.
type RaidBuffer struct {
	client    *stagingstore.Client
	logger    *slog.Logger
	applier   RaidApplier
	threshold int64
}

func NewRaidBuffer(client *stagingstore.Client, logger *slog.Logger, applier RaidApplier, threshold int64) *RaidBuffer {
	return &RaidBuffer{client: client, logger: logger, applier: applier, threshold: threshold}
}

func (b *RaidBuffer) Append(ctx context.Context, row RaidRow) error {
	if !ValidCoords(&row.Latitude, &row.Longitude) {
		return nil
	}

	line := fmt.Sprintf("%s|%s|%v|%v|%d|%s|%d|%d|%s|%d|%d|%d|%d",
		row.Gym, row.GymName, row.Latitude, row.Longitude, row.RaidPokemon, row.RaidForm,
		row.RaidLevel, row.RaidTeam, row.RaidCostume, row.RaidIsExclusive, row.RaidExEligible,
		row.AreaID, row.FirstSeen)

	queued, err := appendToList(ctx, b.client, raidKey, line)
	if err != nil {
		return fmt.Errorf("append raid event: %w", err)
	}

	if queued >= b.threshold {
		if _, err := b.FlushIfReady(ctx); err != nil {
			b.logger.Error("raid buffer threshold flush failed", "error", err)
		}
	}

	return nil
}

func (b *RaidBuffer) FlushIfReady(ctx context.Context) (DrainResult, error) {
	return b.flush(ctx, SuffixFlushing)
}

func (b *RaidBuffer) ForceFlush(ctx context.Context) (DrainResult, error) {
	return b.flush(ctx, SuffixForceFlushing)
}

func (b *RaidBuffer) flush(ctx context.Context, suffix string) (DrainResult, error) {
	result, err := drain(ctx, b.client, b.logger, raidKey, raidKey+suffix, b.readRows,
		func(ctx context.Context, rows []RaidRow) (int, error) {
			return b.applier.BulkInsertRaidDailyEvents(ctx, rows)
		},
	)

	if err == errBufferEmpty {
		return DrainResult{}, nil
	}

	return result, err
}

func (b *RaidBuffer) readRows(ctx context.Context, tempKey string) (int, []RaidRow, int, error) {
	return readListRows(ctx, b.client, tempKey, parseRaidLine)
}

// parseRaidLine parses
// gym|gym_name|lat|lon|raid_pokemon|raid_form|raid_level|raid_team|raid_costume|raid_is_exclusive|raid_ex_raid_eligible|area_id|first_seen
func parseRaidLine(line string) (RaidRow, bool) {
	parts, ok := splitPipe(line, 13)
	if !ok {
		return RaidRow{}, false
	}

	lat, err := parseFloat(parts[2])
	if err != nil {
		return RaidRow{}, false
	}

	lon, err := parseFloat(parts[3])
	if err != nil {
		return RaidRow{}, false
	}

	raidPokemon, err := parseInt(parts[4])
	if err != nil {
		return RaidRow{}, false
	}

	raidLevel, err := parseInt(parts[6])
	if err != nil {
		return RaidRow{}, false
	}

	raidTeam, err := parseInt(parts[7])
	if err != nil {
		return RaidRow{}, false
	}

	raidIsExclusive, err := parseInt(parts[9])
	if err != nil {
		return RaidRow{}, false
	}

	raidExEligible, err := parseInt(parts[10])
	if err != nil {
		return RaidRow{}, false
	}

	areaID, err := parseInt(parts[11])
	if err != nil {
		return RaidRow{}, false
	}

	firstSeen, err := parseInt64(parts[12])
	if err != nil {
		return RaidRow{}, false
	}

	return RaidRow{
		Gym:             parts[0],
		GymName:         parts[1],
		Latitude:        lat,
		Longitude:       lon,
		RaidPokemon:     raidPokemon,
		RaidForm:        parts[5],
		RaidLevel:       raidLevel,
		RaidTeam:        raidTeam,
		RaidCostume:     parts[8],
		RaidIsExclusive: raidIsExclusive,
		RaidExEligible:  raidExEligible,
		AreaID:          areaID,
		FirstSeen:       firstSeen,
	}, true
}

func (b *RaidBuffer) ResumeDrain(ctx context.Context, staleKey string) error {
	_, err := resumeDrain(ctx, staleKey, b.readRows,
		func(ctx context.Context, rows []RaidRow) (int, error) {
			return b.applier.BulkInsertRaidDailyEvents(ctx, rows)
		},
	)

	if delErr := b.client.Del(ctx, staleKey); delErr != nil {
		b.logger.Warn("failed to clean up resumed buffer key", "key", staleKey, "error", delErr)
	}

	return err
}
