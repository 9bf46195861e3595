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

// InvasionProcessor inserts drained invasion sightings into
// invasions_daily_events, keeping the pokestops dimension table current.
// Grounded on invasions_processor.py's temp-table + dimension-upsert shape.
type InvasionProcessor struct {
	conn   *relstore.Connection
	logger *slog.Logger
}

func NewInvasionProcessor(conn *relstore.Connection, logger *slog.Logger) *InvasionProcessor {
	return &InvasionProcessor{conn: conn, logger: logger}
}

// BulkInsertInvasionDailyEvents implements buffer.InvasionApplier.
func (p *InvasionProcessor) BulkInsertInvasionDailyEvents(ctx context.Context, rows []buffer.InvasionRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	sorted := make([]buffer.InvasionRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Pokestop != sorted[j].Pokestop {
			return sorted[i].Pokestop < sorted[j].Pokestop
		}

		return sorted[i].FirstSeen < sorted[j].FirstSeen
	})

	var applied int

	err := runBulk(ctx, p.conn, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			CREATE TEMPORARY TABLE IF NOT EXISTS tmp_invasion_events (
				pokestop      VARCHAR(50)  NOT NULL,
				pokestop_name VARCHAR(255) NOT NULL,
				latitude      DOUBLE NOT NULL,
				longitude     DOUBLE NOT NULL,
				display_type  SMALLINT UNSIGNED NOT NULL,
				character     SMALLINT UNSIGNED NOT NULL,
				grunt         SMALLINT UNSIGNED NOT NULL,
				confirmed     TINYINT UNSIGNED NOT NULL,
				area_id       SMALLINT UNSIGNED NOT NULL,
				seen_at       DATETIME NOT NULL,
				day_date      DATE NOT NULL,
				INDEX idx_tmp_invasion_p (pokestop)
			) ENGINE=InnoDB
		`); err != nil {
			return fmt.Errorf("create temp table: %w", err)
		}

		if err := insertChunked(ctx, tx, "tmp_invasion_events", 11, len(sorted), func(start, end int) ([]interface{}, int) {
			args := make([]interface{}, 0, (end-start)*11)
			for _, r := range sorted[start:end] {
				seenAt := time.Unix(r.FirstSeen, 0).UTC()
				args = append(args, r.Pokestop, r.PokestopName, r.Latitude, r.Longitude,
					r.DisplayType, r.Character, r.Grunt, r.Confirmed, r.AreaID, seenAt, seenAt.Format("2006-01-02"))
			}

			return args, end - start
		}); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT IGNORE INTO pokestops (pokestop, pokestop_name, latitude, longitude)
			SELECT t.pokestop, ANY_VALUE(t.pokestop_name), ANY_VALUE(t.latitude), ANY_VALUE(t.longitude)
			FROM tmp_invasion_events t
			GROUP BY t.pokestop
		`); err != nil {
			return fmt.Errorf("upsert new pokestops: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE pokestops p
			JOIN (
				SELECT t.pokestop, ANY_VALUE(t.pokestop_name) AS pokestop_name,
				       ANY_VALUE(t.latitude) AS latitude, ANY_VALUE(t.longitude) AS longitude
				FROM tmp_invasion_events t
				GROUP BY t.pokestop
			) x ON x.pokestop = p.pokestop
			SET p.pokestop_name = x.pokestop_name, p.latitude = x.latitude, p.longitude = x.longitude
			WHERE p.pokestop_name <> x.pokestop_name OR p.latitude <> x.latitude OR p.longitude <> x.longitude
		`); err != nil {
			return fmt.Errorf("refresh pokestop details: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT IGNORE INTO invasions_daily_events
				(day_date, pokestop, display_type, character, grunt, confirmed, seen_at, area_id)
			SELECT t.day_date, t.pokestop, t.display_type, t.character, t.grunt, t.confirmed, t.seen_at, t.area_id
			FROM tmp_invasion_events t
		`)
		if err != nil {
			return fmt.Errorf("insert invasions_daily_events: %w", err)
		}

		affected, _ := result.RowsAffected()
		applied = int(affected)

		_, err = tx.ExecContext(ctx, "DROP TEMPORARY TABLE IF EXISTS tmp_invasion_events")

		return err
	})

	if err != nil {
		return 0, err
	}

	return applied, nil
}
