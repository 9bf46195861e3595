package bulk

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/hugodataanalyst/ingestpipe/internal/buffer"
	"github.com/hugodataanalyst/ingestpipe/internal/relstore"
)

// IVProcessor upserts drained Pokemon-IV aggregate rows into
// aggregated_pokemon_iv_monthly, keeping the spawnpoints dimension table
// current along the way. Grounded on pokemon_processor.py's temp-table +
// dimension-upsert + set-based-upsert shape.
type IVProcessor struct {
	conn   *relstore.Connection
	logger *slog.Logger
}

func NewIVProcessor(conn *relstore.Connection, logger *slog.Logger) *IVProcessor {
	return &IVProcessor{conn: conn, logger: logger}
}

type ivTempRow struct {
	spawnpoint int64
	lat, lon   sql.NullFloat64
	pokemonID  int
	form       string
	bucket     int
	areaID     int
	monthYear  int
	increment  int64
}

// BulkUpsertPokemonIV implements buffer.IVApplier.
func (p *IVProcessor) BulkUpsertPokemonIV(ctx context.Context, rows []buffer.IVRow) (int, error) {
	temp := make([]ivTempRow, 0, len(rows))

	for _, r := range rows {
		sp, err := strconv.ParseInt(r.Spawnpoint, 16, 64)
		if err != nil {
			p.logger.Debug("skipping iv row with unparseable spawnpoint", "spawnpoint", r.Spawnpoint)
			continue
		}

		t := ivTempRow{
			spawnpoint: sp,
			pokemonID:  r.PokemonID,
			form:       r.Form,
			bucket:     r.IVBucket,
			areaID:     r.AreaID,
			monthYear:  monthYearInt(r.MonthYear),
			increment:  r.Increment,
		}

		if r.Latitude != nil && r.Longitude != nil {
			t.lat = sql.NullFloat64{Float64: *r.Latitude, Valid: true}
			t.lon = sql.NullFloat64{Float64: *r.Longitude, Valid: true}
		}

		temp = append(temp, t)
	}

	if len(temp) == 0 {
		return 0, nil
	}

	sort.Slice(temp, func(i, j int) bool {
		if temp[i].spawnpoint != temp[j].spawnpoint {
			return temp[i].spawnpoint < temp[j].spawnpoint
		}

		return temp[i].pokemonID < temp[j].pokemonID
	})

	var applied int

	err := runBulk(ctx, p.conn, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			CREATE TEMPORARY TABLE IF NOT EXISTS tmp_iv_agg (
				spawnpoint  BIGINT UNSIGNED NOT NULL,
				latitude    DOUBLE NULL,
				longitude   DOUBLE NULL,
				pokemon_id  SMALLINT UNSIGNED NOT NULL,
				form        VARCHAR(15) NOT NULL,
				iv_bucket   SMALLINT UNSIGNED NOT NULL,
				area_id     SMALLINT UNSIGNED NOT NULL,
				month_year  SMALLINT UNSIGNED NOT NULL,
				inc         INT UNSIGNED NOT NULL,
				INDEX idx_tmp_iv_sp (spawnpoint)
			) ENGINE=InnoDB
		`); err != nil {
			return fmt.Errorf("create temp table: %w", err)
		}

		if err := insertChunked(ctx, tx, "tmp_iv_agg", 9, len(temp), func(start, end int) ([]interface{}, int) {
			args := make([]interface{}, 0, (end-start)*9)
			for _, r := range temp[start:end] {
				args = append(args, r.spawnpoint, r.lat, r.lon, r.pokemonID, r.form, r.bucket, r.areaID, r.monthYear, r.increment)
			}

			return args, end - start
		}); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT IGNORE INTO spawnpoints (spawnpoint, latitude, longitude)
			SELECT t.spawnpoint, ANY_VALUE(t.latitude), ANY_VALUE(t.longitude)
			FROM tmp_iv_agg t
			WHERE t.latitude IS NOT NULL AND t.longitude IS NOT NULL
			GROUP BY t.spawnpoint
		`); err != nil {
			return fmt.Errorf("upsert new spawnpoints: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE spawnpoints sp
			JOIN (
				SELECT t.spawnpoint, ANY_VALUE(t.latitude) AS latitude, ANY_VALUE(t.longitude) AS longitude
				FROM tmp_iv_agg t
				WHERE t.latitude IS NOT NULL AND t.longitude IS NOT NULL
				GROUP BY t.spawnpoint
			) x ON x.spawnpoint = sp.spawnpoint
			SET sp.latitude = x.latitude, sp.longitude = x.longitude
			WHERE (sp.latitude IS NULL OR sp.longitude IS NULL)
			   OR (sp.latitude <> x.latitude OR sp.longitude <> x.longitude)
		`); err != nil {
			return fmt.Errorf("refresh spawnpoint coords: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO aggregated_pokemon_iv_monthly
				(month_year, spawnpoint, pokemon_id, form, iv_bucket, area_id, total_count)
			SELECT t.month_year, t.spawnpoint, t.pokemon_id, t.form, t.iv_bucket, t.area_id, SUM(t.inc)
			FROM tmp_iv_agg t
			GROUP BY t.month_year, t.spawnpoint, t.pokemon_id, t.form, t.iv_bucket, t.area_id
			ON DUPLICATE KEY UPDATE total_count = total_count + VALUES(total_count)
		`); err != nil {
			return fmt.Errorf("upsert aggregated_pokemon_iv_monthly: %w", err)
		}

		applied = len(temp)

		_, err = tx.ExecContext(ctx, "DROP TEMPORARY TABLE IF EXISTS tmp_iv_agg")

		return err
	})

	if err != nil {
		return 0, err
	}

	return applied, nil
}
