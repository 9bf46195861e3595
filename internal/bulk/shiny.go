package bulk

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hugodataanalyst/ingestpipe/internal/buffer"
	"github.com/hugodataanalyst/ingestpipe/internal/relstore"
)

// ShinyProcessor upserts drained shiny-rate aggregate rows into
// shiny_username_rates, via a multi-VALUES INSERT ... ON DUPLICATE KEY
// UPDATE, grounded on pokemon_processor.py's bulk_upsert_shiny_username_rate_batch.
type ShinyProcessor struct {
	conn   *relstore.Connection
	logger *slog.Logger
}

func NewShinyProcessor(conn *relstore.Connection, logger *slog.Logger) *ShinyProcessor {
	return &ShinyProcessor{conn: conn, logger: logger}
}

// BulkUpsertShinyRates implements buffer.ShinyApplier.
func (p *ShinyProcessor) BulkUpsertShinyRates(ctx context.Context, rows []buffer.ShinyRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	sorted := make([]buffer.ShinyRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Username != sorted[j].Username {
			return sorted[i].Username < sorted[j].Username
		}

		return sorted[i].PokemonID < sorted[j].PokemonID
	})

	applied := 0

	err := runBulk(ctx, p.conn, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		for start := 0; start < len(sorted); start += chunkSize {
			end := start + chunkSize
			if end > len(sorted) {
				end = len(sorted)
			}

			chunk := sorted[start:end]

			args := make([]interface{}, 0, len(chunk)*7)
			placeholders := make([]string, len(chunk))
			for i, r := range chunk {
				placeholders[i] = "(?,?,?,?,?,?,?)"
				args = append(args, r.Username, r.PokemonID, r.Form, r.Shiny, r.AreaID, monthYearInt(r.MonthYear), r.Increment)
			}

			sqlText := fmt.Sprintf(`
				INSERT INTO shiny_username_rates
					(username, pokemon_id, form, shiny, area_id, month_year, total_count)
				VALUES %s
				ON DUPLICATE KEY UPDATE total_count = total_count + VALUES(total_count)
			`, joinComma(placeholders))

			if _, err := tx.ExecContext(ctx, sqlText, args...); err != nil {
				return fmt.Errorf("upsert shiny_username_rates: %w", err)
			}

			applied += len(chunk)
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return applied, nil
}
