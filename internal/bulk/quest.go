package bulk

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/buffer"
	"github.com/hugodataanalyst/ingestpipe/internal/relstore"
)

// QuestProcessor splits drained quest sightings into item-reward and
// pokemon-reward rows, inserting each into its own daily-events table while
// keeping the pokestops dimension table current. Grounded on
// quests_processor.py's dual-temp-table shape.
type QuestProcessor struct {
	conn   *relstore.Connection
	logger *slog.Logger
}

func NewQuestProcessor(conn *relstore.Connection, logger *slog.Logger) *QuestProcessor {
	return &QuestProcessor{conn: conn, logger: logger}
}

// BulkInsertQuestDailyEvents implements buffer.QuestApplier.
func (p *QuestProcessor) BulkInsertQuestDailyEvents(ctx context.Context, rows []buffer.QuestRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var items, pokemon []buffer.QuestRow
	for _, r := range rows {
		if r.Kind == 0 {
			items = append(items, r)
		} else {
			pokemon = append(pokemon, r)
		}
	}

	var applied int

	err := runBulk(ctx, p.conn, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			CREATE TEMPORARY TABLE IF NOT EXISTS tmp_quest_item (
				pokestop      VARCHAR(50)  NOT NULL,
				pokestop_name VARCHAR(255) NOT NULL,
				latitude      DOUBLE NOT NULL,
				longitude     DOUBLE NOT NULL,
				area_id       SMALLINT UNSIGNED NOT NULL,
				mode          TINYINT UNSIGNED NOT NULL,
				task_type     SMALLINT UNSIGNED NOT NULL,
				item_id       SMALLINT UNSIGNED NOT NULL,
				item_amount   SMALLINT UNSIGNED NOT NULL,
				seen_at       DATETIME NOT NULL,
				day_date      DATE NOT NULL,
				INDEX idx_tmp_quest_item_p (pokestop)
			) ENGINE=InnoDB
		`); err != nil {
			return fmt.Errorf("create item temp table: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			CREATE TEMPORARY TABLE IF NOT EXISTS tmp_quest_pokemon (
				pokestop          VARCHAR(50)  NOT NULL,
				pokestop_name     VARCHAR(255) NOT NULL,
				latitude          DOUBLE NOT NULL,
				longitude         DOUBLE NOT NULL,
				area_id           SMALLINT UNSIGNED NOT NULL,
				mode              TINYINT UNSIGNED NOT NULL,
				task_type         SMALLINT UNSIGNED NOT NULL,
				reward_pokemon_id SMALLINT UNSIGNED NOT NULL,
				reward_form       VARCHAR(15) NOT NULL,
				seen_at           DATETIME NOT NULL,
				day_date          DATE NOT NULL,
				INDEX idx_tmp_quest_poke_p (pokestop)
			) ENGINE=InnoDB
		`); err != nil {
			return fmt.Errorf("create pokemon temp table: %w", err)
		}

		if err := insertChunked(ctx, tx, "tmp_quest_item", 11, len(items), func(start, end int) ([]interface{}, int) {
			args := make([]interface{}, 0, (end-start)*11)
			for _, r := range items[start:end] {
				seenAt := time.Unix(r.FirstSeen, 0).UTC()
				args = append(args, r.Pokestop, r.PokestopName, r.Latitude, r.Longitude, r.AreaID,
					r.Mode, r.TaskType, r.ItemID, r.ItemAmount, seenAt, seenAt.Format("2006-01-02"))
			}

			return args, end - start
		}); err != nil {
			return err
		}

		if err := insertChunked(ctx, tx, "tmp_quest_pokemon", 11, len(pokemon), func(start, end int) ([]interface{}, int) {
			args := make([]interface{}, 0, (end-start)*11)
			for _, r := range pokemon[start:end] {
				seenAt := time.Unix(r.FirstSeen, 0).UTC()
				args = append(args, r.Pokestop, r.PokestopName, r.Latitude, r.Longitude, r.AreaID,
					r.Mode, r.TaskType, r.RewardPokeID, r.RewardPokeForm, seenAt, seenAt.Format("2006-01-02"))
			}

			return args, end - start
		}); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT IGNORE INTO pokestops (pokestop, pokestop_name, latitude, longitude)
			SELECT pokestop, ANY_VALUE(pokestop_name), ANY_VALUE(latitude), ANY_VALUE(longitude)
			FROM (
				SELECT pokestop, pokestop_name, latitude, longitude FROM tmp_quest_item
				UNION ALL
				SELECT pokestop, pokestop_name, latitude, longitude FROM tmp_quest_pokemon
			) u
			GROUP BY pokestop
		`); err != nil {
			return fmt.Errorf("upsert new pokestops: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE pokestops p
			JOIN (
				SELECT pokestop,
				       ANY_VALUE(pokestop_name) AS pokestop_name,
				       ANY_VALUE(latitude) AS latitude,
				       ANY_VALUE(longitude) AS longitude
				FROM (
					SELECT pokestop, pokestop_name, latitude, longitude FROM tmp_quest_item
					UNION ALL
					SELECT pokestop, pokestop_name, latitude, longitude FROM tmp_quest_pokemon
				) u
				GROUP BY pokestop
			) x ON x.pokestop = p.pokestop
			SET p.pokestop_name = x.pokestop_name, p.latitude = x.latitude, p.longitude = x.longitude
			WHERE p.pokestop_name <> x.pokestop_name OR p.latitude <> x.latitude OR p.longitude <> x.longitude
		`); err != nil {
			return fmt.Errorf("refresh pokestop details: %w", err)
		}

		var itemApplied, pokemonApplied int64

		if len(items) > 0 {
			result, err := tx.ExecContext(ctx, `
				INSERT IGNORE INTO quests_item_daily_events
					(day_date, pokestop, mode, task_type, item_id, item_amount, seen_at, area_id)
				SELECT t.day_date, t.pokestop, t.mode, t.task_type, t.item_id, t.item_amount, t.seen_at, t.area_id
				FROM tmp_quest_item t
			`)
			if err != nil {
				return fmt.Errorf("insert quests_item_daily_events: %w", err)
			}

			itemApplied, _ = result.RowsAffected()
		}

		if len(pokemon) > 0 {
			result, err := tx.ExecContext(ctx, `
				INSERT IGNORE INTO quests_pokemon_daily_events
					(day_date, pokestop, mode, task_type, reward_pokemon_id, reward_form, seen_at, area_id)
				SELECT t.day_date, t.pokestop, t.mode, t.task_type, t.reward_pokemon_id, t.reward_form, t.seen_at, t.area_id
				FROM tmp_quest_pokemon t
			`)
			if err != nil {
				return fmt.Errorf("insert quests_pokemon_daily_events: %w", err)
			}

			pokemonApplied, _ = result.RowsAffected()
		}

		applied = int(itemApplied + pokemonApplied)

		if _, err := tx.ExecContext(ctx, "DROP TEMPORARY TABLE IF EXISTS tmp_quest_item"); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, "DROP TEMPORARY TABLE IF EXISTS tmp_quest_pokemon")

		return err
	})

	if err != nil {
		return 0, err
	}

	return applied, nil
}
