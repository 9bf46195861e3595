package buffer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
)

const questKey = "buffer:quest_events"

// QuestRow is one raw quest sighting ready for insert into either
// quests_item_daily_events or quests_pokemon_daily_events, chosen by Kind.
type QuestRow struct {
	Pokestop       string
	PokestopName   string
	Latitude       float64
	Longitude      float64
	Mode           int
	TaskType       int
	AreaID         int
	FirstSeen      int64
	Kind           int // 0 = item reward, 1 = pokemon reward
	ItemID         int
	ItemAmount     int
	RewardPokeID   int
	RewardPokeForm string
}

type QuestApplier interface {
	BulkInsertQuestDailyEvents(ctx context.Context, rows []QuestRow) (int, error)
}

// QuestBuffer accumulates raw quest sightings as pipe-delimited lines in a
// Redis list.
type QuestBuffer struct {
	client    *stagingstore.Client
	logger    *slog.Logger
	applier   QuestApplier
	threshold int64
}

func NewQuestBuffer(client *stagingstore.Client, logger *slog.Logger, applier QuestApplier, threshold int64) *QuestBuffer {
	return &QuestBuffer{client: client, logger: logger, applier: applier, threshold: threshold}
}

func (b *QuestBuffer) Append(ctx context.Context, row QuestRow) error {
	if !ValidCoords(&row.Latitude, &row.Longitude) {
		return nil
	}

	line := fmt.Sprintf("%s|%s|%v|%v|%d|%d|%d|%d|%d|%d|%d|%d|%s",
		row.Pokestop, row.PokestopName, row.Latitude, row.Longitude, row.Mode, row.TaskType,
		row.AreaID, row.FirstSeen, row.Kind, row.ItemID, row.ItemAmount, row.RewardPokeID, row.RewardPokeForm)

	queued, err := appendToList(ctx, b.client, questKey, line)
	if err != nil {
		return fmt.Errorf("append quest event: %w", err)
	}

	if queued >= b.threshold {
		if _, err := b.FlushIfReady(ctx); err != nil {
			b.logger.Error("quest buffer threshold flush failed", "error", err)
		}
	}

	return nil
}

func (b *QuestBuffer) FlushIfReady(ctx context.Context) (DrainResult, error) {
	return b.flush(ctx, SuffixFlushing)
}

func (b *QuestBuffer) ForceFlush(ctx context.Context) (DrainResult, error) {
	return b.flush(ctx, SuffixForceFlushing)
}

func (b *QuestBuffer) flush(ctx context.Context, suffix string) (DrainResult, error) {
	result, err := drain(ctx, b.client, b.logger, questKey, questKey+suffix, b.readRows,
		func(ctx context.Context, rows []QuestRow) (int, error) {
			return b.applier.BulkInsertQuestDailyEvents(ctx, rows)
		},
	)

	if err == errBufferEmpty {
		return DrainResult{}, nil
	}

	return result, err
}

func (b *QuestBuffer) readRows(ctx context.Context, tempKey string) (int, []QuestRow, int, error) {
	return readListRows(ctx, b.client, tempKey, parseQuestLine)
}

// parseQuestLine parses
// pokestop|name|lat|lon|mode|task_type|area_id|first_seen|kind|item_id|item_amount|poke_id|poke_form
func parseQuestLine(line string) (QuestRow, bool) {
	parts, ok := splitPipe(line, 13)
	if !ok {
		return QuestRow{}, false
	}

	lat, err := parseFloat(parts[2])
	if err != nil {
		return QuestRow{}, false
	}

	lon, err := parseFloat(parts[3])
	if err != nil {
		return QuestRow{}, false
	}

	mode, err := parseInt(parts[4])
	if err != nil {
		return QuestRow{}, false
	}

	taskType, err := parseInt(parts[5])
	if err != nil {
		return QuestRow{}, false
	}

	areaID, err := parseInt(parts[6])
	if err != nil {
		return QuestRow{}, false
	}

	firstSeen, err := parseInt64(parts[7])
	if err != nil {
		return QuestRow{}, false
	}

	kind, err := parseInt(parts[8])
	if err != nil {
		return QuestRow{}, false
	}

	itemID, err := parseInt(parts[9])
	if err != nil {
		return QuestRow{}, false
	}

	itemAmount, err := parseInt(parts[10])
	if err != nil {
		return QuestRow{}, false
	}

	pokeID, err := parseInt(parts[11])
	if err != nil {
		return QuestRow{}, false
	}

	return QuestRow{
		Pokestop:       parts[0],
		PokestopName:   parts[1],
		Latitude:       lat,
		Longitude:      lon,
		Mode:           mode,
		TaskType:       taskType,
		AreaID:         areaID,
		FirstSeen:      firstSeen,
		Kind:           kind,
		ItemID:         itemID,
		ItemAmount:     itemAmount,
		RewardPokeID:   pokeID,
		RewardPokeForm: parts[12],
	}, true
}

func (b *QuestBuffer) ResumeDrain(ctx context.Context, staleKey string) error {
	_, err := resumeDrain(ctx, staleKey, b.readRows,
		func(ctx context.Context, rows []QuestRow) (int, error) {
			return b.applier.BulkInsertQuestDailyEvents(ctx, rows)
		},
	)

	if delErr := b.client.Del(ctx, staleKey); delErr != nil {
		b.logger.Warn("failed to clean up resumed buffer key", "key", staleKey, "error", delErr)
	}

	return err
}
