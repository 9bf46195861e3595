package bulk

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/buffer"
	"github.com/hugodataanalyst/ingestpipe/internal/relstore"
)

// RaidProcessor inserts drained raid sightings into raids_daily_events,
// keeping the gyms dimension table current. Grounded on raids_processor.py's
// temp-table + dimension-upsert shape, adapted from its monthly-aggregate
// target to the daily-events fact table.
type RaidProcessor struct {
	conn   *relstore.Connection
	logger *slog.Logger
}

func NewRaidProcessor(conn *relstore.Connection, logger *slog.Logger) *RaidProcessor {
	return &RaidProcessor{conn: conn, logger: logger}
}

// BulkInsertRaidDailyEvents implements buffer.RaidApplier.
func (p *RaidProcessor) BulkInsertRaidDailyEvents(ctx context.Context, rows []buffer.RaidRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	sorted := make([]buffer.RaidRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Gym != sorted[j].Gym {
			return sorted[i].Gym < sorted[j].Gym
		}

		return sorted[i].FirstSeen < sorted[j].FirstSeen
	})

	var applied int

	err := runBulk(ctx, p.conn, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			CREATE TEMPORARY TABLE IF NOT EXISTS tmp_raid_events (
				gym                   VARCHAR(50)  NOT NULL,
				gym_name              VARCHAR(255) NOT NULL,
				latitude              DOUBLE NOT NULL,
				longitude             DOUBLE NOT NULL,
				raid_pokemon          SMALLINT UNSIGNED NOT NULL,
				raid_form             VARCHAR(15) NOT NULL,
				raid_level            TINYINT UNSIGNED NOT NULL,
				raid_team             TINYINT UNSIGNED NOT NULL,
				raid_costume          VARCHAR(15) NOT NULL,
				raid_is_exclusive     TINYINT UNSIGNED NOT NULL,
				raid_ex_raid_eligible TINYINT UNSIGNED NOT NULL,
				area_id               SMALLINT UNSIGNED NOT NULL,
				seen_at               DATETIME NOT NULL,
				day_date              DATE NOT NULL,
				INDEX idx_tmp_raid_gym (gym)
			) ENGINE=InnoDB
		`); err != nil {
			return fmt.Errorf("create temp table: %w", err)
		}

		if err := insertChunked(ctx, tx, "tmp_raid_events", 14, len(sorted), func(start, end int) ([]interface{}, int) {
			args := make([]interface{}, 0, (end-start)*14)
			for _, r := range sorted[start:end] {
				seenAt := time.Unix(r.FirstSeen, 0).UTC()
				args = append(args,
					r.Gym, r.GymName, r.Latitude, r.Longitude,
					r.RaidPokemon, r.RaidForm, r.RaidLevel, r.RaidTeam,
					r.RaidCostume, r.RaidIsExclusive, r.RaidExEligible,
					r.AreaID, seenAt, seenAt.Format("2006-01-02"))
			}

			return args, end - start
		}); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT IGNORE INTO gyms (gym, gym_name, latitude, longitude)
			SELECT t.gym, ANY_VALUE(t.gym_name), ANY_VALUE(t.latitude), ANY_VALUE(t.longitude)
			FROM tmp_raid_events t
			GROUP BY t.gym
		`); err != nil {
			return fmt.Errorf("upsert new gyms: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE gyms g
			JOIN (
				SELECT t.gym, ANY_VALUE(t.gym_name) AS gym_name,
				       ANY_VALUE(t.latitude) AS latitude, ANY_VALUE(t.longitude) AS longitude
				FROM tmp_raid_events t
				GROUP BY t.gym
			) x ON x.gym = g.gym
			SET g.gym_name = x.gym_name, g.latitude = x.latitude, g.longitude = x.longitude
			WHERE g.gym_name <> x.gym_name OR g.latitude <> x.latitude OR g.longitude <> x.longitude
		`); err != nil {
			return fmt.Errorf("refresh gym details: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT IGNORE INTO raids_daily_events (
				day_date, gym, raid_pokemon, raid_level, raid_form, raid_team,
				raid_costume, raid_is_exclusive, raid_ex_raid_eligible, seen_at, area_id
			)
			SELECT t.day_date, t.gym, t.raid_pokemon, t.raid_level, t.raid_form, t.raid_team,
			       t.raid_costume, t.raid_is_exclusive, t.raid_ex_raid_eligible, t.seen_at, t.area_id
			FROM tmp_raid_events t
		`)
		if err != nil {
			return fmt.Errorf("insert raids_daily_events: %w", err)
		}

		affected, _ := result.RowsAffected()
		applied = int(affected)

		_, err = tx.ExecContext(ctx, "DROP TEMPORARY TABLE IF EXISTS tmp_raid_events")

		return err
	})

	if err != nil {
		return 0, err
	}

	return applied, nil
}
