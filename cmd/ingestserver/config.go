package main

import (
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/config"
	"github.com/hugodataanalyst/ingestpipe/internal/partition"
)

const (
	defaultIVThreshold          = 1000
	defaultShinyThreshold       = 500
	defaultRaidThreshold        = 500
	defaultQuestThreshold       = 500
	defaultInvasionThreshold    = 500
	defaultFlushInterval        = 30 * time.Second
	defaultForceEveryN          = 6
	defaultLeaderKey            = "ingest:leader"
	defaultLeaderTTL            = 30 * time.Second
	defaultEnsureInterval       = 24 * time.Hour
	defaultCleanerInterval      = 12 * time.Hour
	defaultDailyDaysBack        = 3
	defaultDailyDaysForward     = 7
	defaultMonthlyMonthsBack    = 1
	defaultMonthlyMonthsForward = 3
	defaultDailyKeepDays        = 14
	defaultMonthlyKeepMonths    = 13
)

// pipelineConfig is this binary's own tunables: buffer thresholds, flush
// cadence, leader-lock identity, and partition maintenance windows. Every
// other collaborator (staging store, relational store, refreshers, ingest
// aggregation flags) loads its own Config from its own package.
type pipelineConfig struct {
	IVThreshold       int64
	ShinyThreshold    int64
	RaidThreshold     int64
	QuestThreshold    int64
	InvasionThreshold int64

	FlushInterval time.Duration
	ForceEveryN   int

	LeaderKey string
	LeaderTTL time.Duration

	EnsureInterval  time.Duration
	CleanerInterval time.Duration

	DailyDaysBack        int
	DailyDaysForward     int
	MonthlyMonthsBack    int
	MonthlyMonthsForward int

	DailyKeepDays     int
	MonthlyKeepMonths int
}

func loadPipelineConfig() *pipelineConfig {
	return &pipelineConfig{
		IVThreshold:          config.GetEnvInt64("BUFFER_IV_THRESHOLD", defaultIVThreshold),
		ShinyThreshold:       config.GetEnvInt64("BUFFER_SHINY_THRESHOLD", defaultShinyThreshold),
		RaidThreshold:        config.GetEnvInt64("BUFFER_RAID_THRESHOLD", defaultRaidThreshold),
		QuestThreshold:       config.GetEnvInt64("BUFFER_QUEST_THRESHOLD", defaultQuestThreshold),
		InvasionThreshold:    config.GetEnvInt64("BUFFER_INVASION_THRESHOLD", defaultInvasionThreshold),
		FlushInterval:        config.GetEnvDuration("FLUSHER_INTERVAL", defaultFlushInterval),
		ForceEveryN:          config.GetEnvInt("FLUSHER_FORCE_EVERY_N", defaultForceEveryN),
		LeaderKey:            config.GetEnvStr("LEADER_LOCK_KEY", defaultLeaderKey),
		LeaderTTL:            config.GetEnvDuration("LEADER_LOCK_TTL", defaultLeaderTTL),
		EnsureInterval:       config.GetEnvDuration("PARTITION_ENSURE_INTERVAL", defaultEnsureInterval),
		CleanerInterval:      config.GetEnvDuration("PARTITION_CLEAN_INTERVAL", defaultCleanerInterval),
		DailyDaysBack:        config.GetEnvInt("PARTITION_DAILY_DAYS_BACK", defaultDailyDaysBack),
		DailyDaysForward:     config.GetEnvInt("PARTITION_DAILY_DAYS_FORWARD", defaultDailyDaysForward),
		MonthlyMonthsBack:    config.GetEnvInt("PARTITION_MONTHLY_MONTHS_BACK", defaultMonthlyMonthsBack),
		MonthlyMonthsForward: config.GetEnvInt("PARTITION_MONTHLY_MONTHS_FORWARD", defaultMonthlyMonthsForward),
		DailyKeepDays:        config.GetEnvInt("PARTITION_DAILY_KEEP_DAYS", defaultDailyKeepDays),
		MonthlyKeepMonths:    config.GetEnvInt("PARTITION_MONTHLY_KEEP_MONTHS", defaultMonthlyKeepMonths),
	}
}

// partitionTargetPair names one table/column pair a partition ensurer or
// cleaner job operates on.
type partitionTargetPair struct {
	table  string
	column string
}

// dailyTargets lists every RANGE COLUMNS(day_date)-partitioned fact table
// this pipeline writes to, grounded on migrations/003_daily_event_facts.
var dailyTargets = []partitionTargetPair{
	{"pokemon_iv_daily_events", "day_date"},
	{"raids_daily_events", "day_date"},
	{"invasions_daily_events", "day_date"},
	{"quests_item_daily_events", "day_date"},
	{"quests_pokemon_daily_events", "day_date"},
}

// monthlyTargets lists every RANGE(month_year)-partitioned aggregate table,
// grounded on migrations/002_aggregate_monthly_facts.
var monthlyTargets = []partitionTargetPair{
	{"aggregated_pokemon_iv_monthly", "month_year"},
	{"aggregated_raids", "month_year"},
	{"aggregated_invasions", "month_year"},
	{"shiny_username_rates", "month_year"},
}

// builtinDailyTargets returns a copy of the compiled-in daily partition
// targets, safe for a caller to further filter or override.
func builtinDailyTargets() []partitionTargetPair {
	out := make([]partitionTargetPair, len(dailyTargets))
	copy(out, dailyTargets)

	return out
}

// builtinMonthlyTargets returns a copy of the compiled-in monthly partition
// targets, safe for a caller to further filter or override.
func builtinMonthlyTargets() []partitionTargetPair {
	out := make([]partitionTargetPair, len(monthlyTargets))
	copy(out, monthlyTargets)

	return out
}

func dailyCleanerJobs(targets []partitionTargetPair, keepDays int) []partition.CleanerJob {
	jobs := make([]partition.CleanerJob, 0, len(targets))
	for _, t := range targets {
		jobs = append(jobs, partition.CleanerJob{
			Table:  t.table,
			Column: t.column,
			Grain:  partition.GrainDaily,
			Keep:   keepDays,
		})
	}

	return jobs
}

func monthlyCleanerJobs(targets []partitionTargetPair, keepMonths int) []partition.CleanerJob {
	jobs := make([]partition.CleanerJob, 0, len(targets))
	for _, t := range targets {
		jobs = append(jobs, partition.CleanerJob{
			Table:  t.table,
			Column: t.column,
			Grain:  partition.GrainMonthly,
			Keep:   keepMonths,
		})
	}

	return jobs
}
