package partition

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/hugodataanalyst/ingestpipe/internal/relstore"
)

const (
	defaultCleanInterval = 12 * time.Hour
	defaultCleanJitter   = 10 * time.Second
	minKeepDays          = 3
	minKeepMonths        = 3
)

// Grain identifies whether a CleanerJob's retention window is counted in
// days (DATE RANGE COLUMNS partitions) or months (SMALLINT YYMM partitions).
type Grain int

const (
	GrainDaily Grain = iota
	GrainMonthly
)

// CleanResult reports what a single clean pass did, mirroring
// clean_daily_partitions/clean_monthly_partitions's {dropped, kept} dict.
type CleanResult struct {
	Dropped []string
	Kept    []string
}

// CleanerJob drops partitions of Table that have aged out of the last Keep
// days (GrainDaily) or months (GrainMonthly). DryRun logs what would be
// dropped without executing the ALTER. Grounded on
// clean_daily_partitions/clean_monthly_partitions.
type CleanerJob struct {
	Table  string
	Column string
	Grain  Grain
	Keep   int
	DryRun bool
}

// Valid reports whether the job should be registered: Keep <= 0 mirrors
// global_partition_cleaner.py's _skip_if_nonpositive guard.
func (j CleanerJob) Valid() bool {
	return j.Keep > 0
}

func (j CleanerJob) run(ctx context.Context, conn *relstore.Connection, logger *slog.Logger) (CleanResult, error) {
	var result CleanResult

	rows, err := listPartitions(ctx, conn, j.Table)
	if err == errTableNotFound {
		logger.Warn("clean: table not found, skipping", "table", j.Table)
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if len(rows) == 0 {
		logger.Info("clean: table is not partitioned, nothing to do", "table", j.Table)
		return result, nil
	}

	var toDrop []string

	switch j.Grain {
	case GrainDaily:
		toDrop, result.Kept = j.dailyDropList(rows)
	case GrainMonthly:
		toDrop, result.Kept = j.monthlyDropList(rows)
	}

	if len(toDrop) == 0 {
		logger.Info("clean: nothing to drop", "table", j.Table, "keep", j.Keep)
		return result, nil
	}

	if j.DryRun {
		logger.Warn("clean: dry run, would drop partitions", "table", j.Table, "partitions", strings.Join(toDrop, ","))
		result.Dropped = toDrop

		return result, nil
	}

	quoted := make([]string, len(toDrop))
	for i, p := range toDrop {
		quoted[i] = "`" + p + "`"
	}

	stmt := fmt.Sprintf("ALTER TABLE `%s` DROP PARTITION %s", j.Table, strings.Join(quoted, ", "))

	logger.Warn("clean: dropping partitions", "table", j.Table, "count", len(toDrop), "partitions", strings.Join(toDrop, ","))

	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return result, fmt.Errorf("drop partitions on %s: %w", j.Table, err)
	}

	result.Dropped = toDrop

	return result, nil
}

// dailyDropList keeps the last Keep days inclusive of today: drop any
// partition whose upper-bound date is <= keepFrom.
func (j CleanerJob) dailyDropList(rows []partitionRow) (toDrop, kept []string) {
	keep := j.Keep
	if keep < minKeepDays {
		keep = minKeepDays
	}

	keepFrom := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(keep - 1))

	for _, r := range rows {
		if r.name == "" || r.name == "pMAX" {
			kept = append(kept, r.name)
			continue
		}

		ub, ok := parseDailyUpperBound(r.desc)
		if !ok {
			kept = append(kept, r.name)
			continue
		}

		if !ub.After(keepFrom) {
			toDrop = append(toDrop, r.name)
		} else {
			kept = append(kept, r.name)
		}
	}

	return toDrop, kept
}

// monthlyDropList keeps the last Keep months inclusive of the current month:
// drop any partition whose upper-bound YYMM is <= cutoff.
func (j CleanerJob) monthlyDropList(rows []partitionRow) (toDrop, kept []string) {
	keep := j.Keep
	if keep < minKeepMonths {
		keep = minKeepMonths
	}

	today := time.Now().UTC()
	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	keepFromMonth := firstOfMonth.AddDate(0, -(keep - 1), 0)
	cutoff := yymm(keepFromMonth)

	for _, r := range rows {
		if r.name == "" || r.name == "pMAX" {
			kept = append(kept, r.name)
			continue
		}

		ub, ok := parseMonthlyUpperBound(r.desc)
		if !ok {
			kept = append(kept, r.name)
			continue
		}

		if ub <= cutoff {
			toDrop = append(toDrop, r.name)
		} else {
			kept = append(kept, r.name)
		}
	}

	return toDrop, kept
}

func yymm(d time.Time) int {
	n, _ := strconv.Atoi(d.Format("0601"))
	return n
}

func parseDailyUpperBound(desc string) (time.Time, bool) {
	s := strings.TrimSpace(desc)
	if s == "" || strings.EqualFold(s, "MAXVALUE") {
		return time.Time{}, false
	}

	s = strings.Trim(s, "'\"")

	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

func parseMonthlyUpperBound(desc string) (int, bool) {
	s := strings.TrimSpace(desc)
	if s == "" || strings.EqualFold(s, "MAXVALUE") {
		return 0, false
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}

	return n, true
}

// CleanerSupervisor runs a fixed set of CleanerJobs on a shared schedule,
// isolating one job's failure from the rest, grounded on
// PeriodicCleaner/build_default_cleaner.
type CleanerSupervisor struct {
	Jobs     []CleanerJob
	Interval time.Duration

	conn   *relstore.Connection
	logger *slog.Logger
}

func NewCleanerSupervisor(conn *relstore.Connection, logger *slog.Logger, jobs []CleanerJob) *CleanerSupervisor {
	var registered []CleanerJob

	for _, j := range jobs {
		if !j.Valid() {
			logger.Info("skipping cleaner job, non-positive retention window", "table", j.Table)
			continue
		}

		registered = append(registered, j)
	}

	return &CleanerSupervisor{Jobs: registered, Interval: defaultCleanInterval, conn: conn, logger: logger}
}

// Run executes one clean pass across all jobs immediately (after a small
// random jitter) and then on every Interval tick until ctx is cancelled.
// Each job's failure is isolated and aggregated via go-multierror rather than
// aborting the remaining jobs.
func (s *CleanerSupervisor) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultCleanInterval
	}

	select {
	case <-time.After(time.Duration(rand.Int63n(int64(defaultCleanJitter)))):
	case <-ctx.Done():
		return nil
	}

	s.runAll(ctx, "startup")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runAll(ctx, "interval")
		}
	}
}

func (s *CleanerSupervisor) runAll(ctx context.Context, tag string) {
	var errs *multierror.Error

	for _, job := range s.Jobs {
		result, err := job.run(ctx, s.conn, s.logger)
		if err != nil {
			s.logger.Error("cleaner job failed", "tag", tag, "table", job.Table, "error", err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", job.Table, err))
			continue
		}

		if len(result.Dropped) > 0 {
			s.logger.Info("cleaner job dropped partitions", "tag", tag, "table", job.Table, "dropped", strings.Join(result.Dropped, ","))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		s.logger.Warn("one or more cleaner jobs failed this cycle", "tag", tag, "error", err)
	}
}
