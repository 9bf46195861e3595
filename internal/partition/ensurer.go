// Package partition ensures RANGE-partitioned fact tables have enough future
// partitions materialized ahead of writes, and drops partitions that have
// aged out of the configured retention window.
package partition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/hugodataanalyst/ingestpipe/internal/relstore"
)

const (
	defaultEnsureInterval = 24 * time.Hour
	defaultInitialJitter  = 5 * time.Second
)

// errTableNotFound is returned internally by listPartitions when the target
// table doesn't exist; ensure/clean both treat this as a skip, not a failure.
var errTableNotFound = errors.New("partition: table not found")

// EnsureResult reports what a single ensure pass did, mirroring
// ensure_daily_partitions/ensure_monthly_partitions's {added, skipped} dict.
type EnsureResult struct {
	Added   []string
	Skipped []string
}

type partitionRow struct {
	name string
	desc string
}

func listPartitions(ctx context.Context, conn *relstore.Connection, table string) ([]partitionRow, error) {
	var count int
	if err := conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?",
		table).Scan(&count); err != nil {
		return nil, fmt.Errorf("check table existence: %w", err)
	}

	if count == 0 {
		return nil, errTableNotFound
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT PARTITION_NAME, PARTITION_DESCRIPTION
		FROM information_schema.PARTITIONS
		WHERE TABLE_SCHEMA = DATABASE()
		  AND TABLE_NAME = ?
		  AND PARTITION_NAME IS NOT NULL
		ORDER BY PARTITION_DESCRIPTION
	`, table)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var out []partitionRow
	for rows.Next() {
		var r partitionRow
		if err := rows.Scan(&r.name, &r.desc); err != nil {
			return nil, fmt.Errorf("scan partition row: %w", err)
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

func hasPMax(rows []partitionRow) bool {
	for _, r := range rows {
		if r.name == "pMAX" {
			return true
		}
	}

	return false
}

func warnMissingPMax(ctx context.Context, conn *relstore.Connection, logger *slog.Logger, table string) {
	var unused1, createSQL string
	if err := conn.QueryRowContext(ctx, fmt.Sprintf("SHOW CREATE TABLE `%s`", table)).Scan(&unused1, &createSQL); err != nil {
		logger.Warn("table is not partitioned or missing pMAX; failed to dump SHOW CREATE TABLE", "table", table, "error", err)
		return
	}

	logger.Warn("table is not partitioned or missing pMAX", "table", table, "show_create_table", createSQL)
}

// DailyEnsurer keeps a DATE-partitioned table's daily partitions materialized
// DaysBack in the past through DaysForward in the future, grounded on
// ensure_daily_partitions/DailyPartitionEnsurer.
type DailyEnsurer struct {
	Table       string
	Column      string
	DaysBack    int
	DaysForward int
	Interval    time.Duration

	conn   *relstore.Connection
	logger *slog.Logger
}

func NewDailyEnsurer(conn *relstore.Connection, logger *slog.Logger, table, column string, daysBack, daysForward int) *DailyEnsurer {
	return &DailyEnsurer{
		Table: table, Column: column, DaysBack: daysBack, DaysForward: daysForward,
		Interval: defaultEnsureInterval, conn: conn, logger: logger,
	}
}

func dailyPartitionName(d time.Time) string { return "p" + d.Format("20060102") }
func dailyUpperBound(d time.Time) string    { return d.AddDate(0, 0, 1).Format("2006-01-02") }

func (e *DailyEnsurer) ensureOnce(ctx context.Context) (EnsureResult, error) {
	var result EnsureResult

	rows, err := listPartitions(ctx, e.conn, e.Table)
	if err == errTableNotFound {
		e.logger.Warn("table not found, skipping ensure", "table", e.Table)
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if len(rows) == 0 || !hasPMax(rows) {
		warnMissingPMax(ctx, e.conn, e.logger, e.Table)

		for _, r := range rows {
			result.Skipped = append(result.Skipped, r.name)
		}

		return result, nil
	}

	existing := make(map[string]bool, len(rows))
	for _, r := range rows {
		existing[r.name] = true
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)

	var errs *multierror.Error

	for delta := -e.DaysBack; delta <= e.DaysForward; delta++ {
		d := today.AddDate(0, 0, delta)
		pname := dailyPartitionName(d)

		if existing[pname] {
			result.Skipped = append(result.Skipped, pname)
			continue
		}

		upper := dailyUpperBound(d)

		stmt := fmt.Sprintf(
			"ALTER TABLE `%s` REORGANIZE PARTITION pMAX INTO (PARTITION `%s` VALUES LESS THAN ('%s'), PARTITION pMAX VALUES LESS THAN (MAXVALUE))",
			e.Table, pname, upper,
		)

		if _, err := e.conn.ExecContext(ctx, stmt); err != nil {
			e.logger.Error("failed creating daily partition", "table", e.Table, "partition", pname, "error", err)
			errs = multierror.Append(errs, fmt.Errorf("partition %s: %w", pname, err))
			continue
		}

		existing[pname] = true
		result.Added = append(result.Added, pname)
	}

	return result, errs.ErrorOrNil()
}

// Run executes one ensure pass immediately (after a small random jitter) and
// then on every Interval tick until ctx is cancelled.
func (e *DailyEnsurer) Run(ctx context.Context) error {
	return runEnsureLoop(ctx, e.logger, e.Table, e.Interval, e.ensureOnce)
}

// MonthlyEnsurer keeps a SMALLINT(YYMM)-partitioned table's monthly
// partitions materialized MonthsBack in the past through MonthsForward in
// the future, grounded on ensure_monthly_partitions/MonthlyPartitionEnsurer.
type MonthlyEnsurer struct {
	Table         string
	Column        string
	MonthsBack    int
	MonthsForward int
	Interval      time.Duration

	conn   *relstore.Connection
	logger *slog.Logger
}

func NewMonthlyEnsurer(conn *relstore.Connection, logger *slog.Logger, table, column string, monthsBack, monthsForward int) *MonthlyEnsurer {
	return &MonthlyEnsurer{
		Table: table, Column: column, MonthsBack: monthsBack, MonthsForward: monthsForward,
		Interval: defaultEnsureInterval, conn: conn, logger: logger,
	}
}

func monthlyPartitionName(d time.Time) string { return "p" + d.Format("0601") }

func monthlyUpperBound(d time.Time) int {
	next := d.AddDate(0, 1, 0)

	var n int
	fmt.Sscanf(next.Format("0601"), "%d", &n)

	return n
}

func (e *MonthlyEnsurer) ensureOnce(ctx context.Context) (EnsureResult, error) {
	var result EnsureResult

	rows, err := listPartitions(ctx, e.conn, e.Table)
	if err == errTableNotFound {
		e.logger.Warn("table not found, skipping ensure", "table", e.Table)
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if len(rows) == 0 || !hasPMax(rows) {
		warnMissingPMax(ctx, e.conn, e.logger, e.Table)

		for _, r := range rows {
			result.Skipped = append(result.Skipped, r.name)
		}

		return result, nil
	}

	existing := make(map[string]bool, len(rows))
	for _, r := range rows {
		existing[r.name] = true
	}

	firstOfMonth := time.Now().UTC().AddDate(0, 0, -time.Now().UTC().Day()+1).Truncate(24 * time.Hour)

	var errs *multierror.Error

	for delta := -e.MonthsBack; delta <= e.MonthsForward; delta++ {
		d := firstOfMonth.AddDate(0, delta, 0)
		pname := monthlyPartitionName(d)

		if existing[pname] {
			result.Skipped = append(result.Skipped, pname)
			continue
		}

		upper := monthlyUpperBound(d)

		stmt := fmt.Sprintf(
			"ALTER TABLE `%s` REORGANIZE PARTITION pMAX INTO (PARTITION `%s` VALUES LESS THAN (%d), PARTITION pMAX VALUES LESS THAN (MAXVALUE))",
			e.Table, pname, upper,
		)

		if _, err := e.conn.ExecContext(ctx, stmt); err != nil {
			e.logger.Error("failed creating monthly partition", "table", e.Table, "partition", pname, "error", err)
			errs = multierror.Append(errs, fmt.Errorf("partition %s: %w", pname, err))
			continue
		}

		existing[pname] = true
		result.Added = append(result.Added, pname)
	}

	return result, errs.ErrorOrNil()
}

// Run executes one ensure pass immediately (after a small random jitter) and
// then on every Interval tick until ctx is cancelled.
func (e *MonthlyEnsurer) Run(ctx context.Context) error {
	return runEnsureLoop(ctx, e.logger, e.Table, e.Interval, e.ensureOnce)
}

func runEnsureLoop(ctx context.Context, logger *slog.Logger, table string, interval time.Duration, ensureOnce func(context.Context) (EnsureResult, error)) error {
	if interval <= 0 {
		interval = defaultEnsureInterval
	}

	select {
	case <-time.After(time.Duration(rand.Int63n(int64(defaultInitialJitter)))):
	case <-ctx.Done():
		return nil
	}

	runAndLog := func(tag string) {
		result, err := ensureOnce(ctx)
		if err != nil {
			logger.Error("partition ensure failed", "tag", tag, "table", table, "error", err)
			return
		}

		if len(result.Added) > 0 {
			logger.Info("partitions ensured", "tag", tag, "table", table, "added", strings.Join(result.Added, ","))
		}
	}

	runAndLog("startup")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runAndLog("interval")
		}
	}
}
