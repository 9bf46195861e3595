package main

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hugodataanalyst/ingestpipe/internal/config"
)

// partitionTarget names one RANGE/RANGE COLUMNS-partitioned table this
// pipeline maintains.
type partitionTarget struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
}

// targetsConfig overrides the built-in daily/monthly partition target lists,
// grounded on aliasing.Config's optional-YAML-file shape: missing or invalid
// files degrade gracefully to the compiled-in defaults rather than failing
// startup, since partition maintenance scope is not something worth crashing
// the worker over.
type targetsConfig struct {
	DailyTables   []partitionTarget `yaml:"daily_tables"`
	MonthlyTables []partitionTarget `yaml:"monthly_tables"`
}

const (
	// defaultTargetsConfigPath is the optional override file's default
	// location, following a hidden-dotfile convention.
	defaultTargetsConfigPath = ".ingestpipe.yaml"
	// targetsConfigPathEnvVar names the environment variable carrying a
	// custom override path.
	targetsConfigPathEnvVar = "INGESTPIPE_PARTITION_TARGETS_PATH"
)

// loadPartitionTargets reads an optional YAML override of the partition
// target tables. A missing or unparsable file is not fatal: it logs and
// falls back to the compiled-in dailyTargets/monthlyTargets lists.
func loadPartitionTargets(logger *slog.Logger) ([]partitionTargetPair, []partitionTargetPair) {
	path := config.GetEnvStr(targetsConfigPathEnvVar, defaultTargetsConfigPath)

	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted deployment config
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to read partition targets override, using built-in defaults", "path", path, "error", err)
		}

		return builtinDailyTargets(), builtinMonthlyTargets()
	}

	var cfg targetsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Warn("failed to parse partition targets override, using built-in defaults", "path", path, "error", err)

		return builtinDailyTargets(), builtinMonthlyTargets()
	}

	daily := builtinDailyTargets()
	if len(cfg.DailyTables) > 0 {
		daily = toTargetPairs(cfg.DailyTables)
	}

	monthly := builtinMonthlyTargets()
	if len(cfg.MonthlyTables) > 0 {
		monthly = toTargetPairs(cfg.MonthlyTables)
	}

	logger.Info("loaded partition targets", "path", path, "daily", len(daily), "monthly", len(monthly))

	return daily, monthly
}

func toTargetPairs(targets []partitionTarget) []partitionTargetPair {
	pairs := make([]partitionTargetPair, 0, len(targets))
	for _, t := range targets {
		pairs = append(pairs, partitionTargetPair{table: t.Table, column: t.Column})
	}

	return pairs
}
