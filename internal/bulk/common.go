// Package bulk turns drained staging-buffer rows into batched SQL writes:
// a temporary table loaded via multi-VALUES INSERT, a dimension-table
// upsert, and a final fact-table apply, all inside one retried transaction.
package bulk

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/relstore"
)

// chunkSize caps how many rows go into a single multi-VALUES INSERT,
// matching every Python processor's BATCH = 5000 constant.
const chunkSize = 5000

// runBulk wraps fn in a relstore transaction with deadlock retry, the shape
// shared by every family-specific processor in this package.
func runBulk(ctx context.Context, conn *relstore.Connection, isolation sql.IsolationLevel, fn func(*sql.Tx) error) error {
	return conn.RetryDeadlock(ctx, func() error {
		return conn.WithTx(ctx, isolation, fn)
	})
}

// insertChunked loads rows into table in chunkSize-row multi-VALUES INSERTs.
// chunkRows must return exactly columnCount values per row for rows
// [start, end), in column order, plus the number of rows those values cover.
func insertChunked(ctx context.Context, tx *sql.Tx, table string, columnCount, total int, chunkRows func(start, end int) ([]interface{}, int)) error {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", columnCount), ",") + ")"

	for start := 0; start < total; start += chunkSize {
		end := start + chunkSize
		if end > total {
			end = total
		}

		args, n := chunkRows(start, end)
		if n == 0 {
			continue
		}

		values := strings.TrimSuffix(strings.Repeat(placeholder+",", n), ",")

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES %s", table, values), args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}

	return nil
}

func joinComma(parts []string) string {
	return strings.Join(parts, ",")
}

// monthYearInt renders t as the YYMM integer the aggregate fact tables
// partition on, e.g. March 2025 -> 2503.
func monthYearInt(t time.Time) int {
	n, _ := strconv.Atoi(t.UTC().Format("0601"))
	return n
}
