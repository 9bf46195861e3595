// Package main wires every component of the ingestion pipeline into one
// long-running worker: staging buffers feeding bulk processors on a leader
// election, partition maintenance, external-data refreshers, and the admin
// HTTP surface that receives already-filtered webhook events.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/adminapi"
	"github.com/hugodataanalyst/ingestpipe/internal/buffer"
	"github.com/hugodataanalyst/ingestpipe/internal/bulk"
	"github.com/hugodataanalyst/ingestpipe/internal/flusher"
	"github.com/hugodataanalyst/ingestpipe/internal/ingest"
	"github.com/hugodataanalyst/ingestpipe/internal/leader"
	"github.com/hugodataanalyst/ingestpipe/internal/partition"
	"github.com/hugodataanalyst/ingestpipe/internal/refresh"
	"github.com/hugodataanalyst/ingestpipe/internal/relstore"
	"github.com/hugodataanalyst/ingestpipe/internal/sharedstate"
	"github.com/hugodataanalyst/ingestpipe/internal/stagingstore"
	"github.com/hugodataanalyst/ingestpipe/internal/supervisor"
)

const (
	version = "1.0.0-dev"
	name    = "ingestserver"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	stagingCfg := stagingstore.LoadConfig()
	if err := stagingCfg.Validate(); err != nil {
		log.Fatalf("invalid staging store configuration: %v", err)
	}

	relCfg := relstore.LoadConfig()
	if err := relCfg.Validate(); err != nil {
		log.Fatalf("invalid relational store configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger.Info("starting ingestion pipeline", "service", name, "version", version,
		"staging_store", stagingCfg.MaskURL(), "relational_store", relCfg.MaskDSN())

	stagingClient, err := stagingstore.NewClient(stagingCfg, logger)
	if err != nil {
		logger.Error("failed to connect to staging store", "error", err)
		os.Exit(1)
	}
	defer stagingClient.Close()

	relConn, err := relstore.NewConnection(relCfg)
	if err != nil {
		logger.Error("failed to connect to relational store", "error", err)
		os.Exit(1)
	}
	defer relConn.Close()

	pipelineCfg := loadPipelineConfig()
	ingestCfg := ingest.LoadConfig()
	refreshCfg := refresh.LoadConfig()
	adminCfg := adminapi.LoadConfig()
	dailyPartitionTargets, monthlyPartitionTargets := loadPartitionTargets(logger)

	state := sharedstate.New(stagingClient)

	election := leader.New(stagingClient, logger, pipelineCfg.LeaderKey, pipelineCfg.LeaderTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	isLeader, err := election.TryAcquire(ctx)
	if err != nil {
		logger.Error("leader election attempt failed", "error", err)
	}

	logger.Info("leader election result", "worker_id", election.WorkerID(), "is_leader", isLeader)

	ivProcessor := bulk.NewIVProcessor(relConn, logger)
	shinyProcessor := bulk.NewShinyProcessor(relConn, logger)
	raidProcessor := bulk.NewRaidProcessor(relConn, logger)
	questProcessor := bulk.NewQuestProcessor(relConn, logger)
	invasionProcessor := bulk.NewInvasionProcessor(relConn, logger)

	ivBuffer := buffer.NewIVBuffer(stagingClient, logger, ivProcessor, pipelineCfg.IVThreshold)
	shinyBuffer := buffer.NewShinyBuffer(stagingClient, logger, shinyProcessor, pipelineCfg.ShinyThreshold)
	raidBuffer := buffer.NewRaidBuffer(stagingClient, logger, raidProcessor, pipelineCfg.RaidThreshold)
	questBuffer := buffer.NewQuestBuffer(stagingClient, logger, questProcessor, pipelineCfg.QuestThreshold)
	invasionBuffer := buffer.NewInvasionBuffer(stagingClient, logger, invasionProcessor, pipelineCfg.InvasionThreshold)

	dispatcher := ingest.NewDispatcher(ingest.Dependencies{
		Client:         stagingClient,
		TimeSeries:     ingest.NopTimeSeriesUpdater{},
		IVBuffer:       ivBuffer,
		ShinyBuffer:    shinyBuffer,
		RaidBuffer:     raidBuffer,
		QuestBuffer:    questBuffer,
		InvasionBuffer: invasionBuffer,
		Config:         ingestCfg,
		Logger:         logger,
	})

	leaderFlag := func() bool { return isLeader }

	adminServer := adminapi.NewServer(adminCfg, dispatcher, stagingClient, relConn, leaderFlag, logger)

	services := []supervisor.Service{
		{
			Name:    "admin-http",
			Enabled: true,
			Start:   runInBackground(logger, "admin-http", adminServer.Start),
			Stop:    adminServer.Stop,
		},
	}

	if isLeader {
		if err := election.RecoverStaleStagingKeys(ctx, newBufferResumer(ivBuffer, shinyBuffer, raidBuffer, questBuffer, invasionBuffer)); err != nil {
			logger.Error("stale staging key recovery failed", "error", err)
		}

		services = append(services, leaderServices(pipelineCfg, ingestCfg, refreshCfg, relConn, state, stagingClient, logger,
			ivBuffer, shinyBuffer, raidBuffer, questBuffer, invasionBuffer,
			dailyPartitionTargets, monthlyPartitionTargets)...)
	} else {
		services = append(services, supervisor.Service{
			Name:    "follower-state-wait",
			Enabled: true,
			Start: func(ctx context.Context) error {
				if err := state.WaitForState(ctx, 30*time.Second); err != nil {
					logger.Warn("shared state not yet populated by leader", "error", err)
				}

				return nil
			},
			Stop: func(ctx context.Context) error { return nil },
		})
	}

	sup := supervisor.New(logger, services)

	errCh := make(chan error, 1)

	go func() {
		errCh <- sup.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("one or more services failed to start", "error", err)
		}
		<-ctx.Done()
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sup.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping services", "error", err)
	}

	if isLeader {
		if err := election.Release(shutdownCtx); err != nil {
			logger.Error("failed to release leader lock", "error", err)
		}
	}

	logger.Info("ingestion pipeline stopped")
}

// leaderServices builds the C7-C10 service set: one Flusher per buffer, the
// daily/monthly partition ensurers, the partition cleaner supervisor, and
// both external-data refreshers. Only ever started by the worker holding
// the leader lock.
func leaderServices(
	cfg *pipelineConfig,
	ingestCfg *ingest.Config,
	refreshCfg *refresh.Config,
	relConn *relstore.Connection,
	state *sharedstate.SharedState,
	stagingClient *stagingstore.Client,
	logger *slog.Logger,
	ivBuffer *buffer.IVBuffer,
	shinyBuffer *buffer.ShinyBuffer,
	raidBuffer *buffer.RaidBuffer,
	questBuffer *buffer.QuestBuffer,
	invasionBuffer *buffer.InvasionBuffer,
	dailyPartitionTargets []partitionTargetPair,
	monthlyPartitionTargets []partitionTargetPair,
) []supervisor.Service {
	var services []supervisor.Service

	flushers := []struct {
		name    string
		enabled bool
		buf     buffer.DrainableBuffer
	}{
		{"flusher-iv", ingestCfg.StoreSQLPokemonAggregation, ivBuffer},
		{"flusher-shiny", ingestCfg.StoreSQLPokemonShiny, shinyBuffer},
		{"flusher-raid", ingestCfg.StoreSQLRaidAggregation, raidBuffer},
		{"flusher-quest", ingestCfg.StoreSQLQuestAggregation, questBuffer},
		{"flusher-invasion", ingestCfg.StoreSQLInvasionAggregation, invasionBuffer},
	}

	for _, f := range flushers {
		fl := flusher.New(f.name, f.buf, stagingClient, cfg.FlushInterval, cfg.ForceEveryN, logger)
		services = append(services, supervisor.Service{
			Name:    f.name,
			Enabled: f.enabled,
			// Run itself performs a final ForceFlush on ctx.Done before
			// returning, so Stop has nothing left to do beyond waiting for
			// shutdown to be requested — the supervisor's Stop is only
			// called after ctx is already cancelled.
			Start: runInBackground(logger, f.name, fl.Run),
			Stop:  func(ctx context.Context) error { return nil },
		})
	}

	for _, t := range dailyPartitionTargets {
		ensurer := partition.NewDailyEnsurer(relConn, logger, t.table, t.column, cfg.DailyDaysBack, cfg.DailyDaysForward)
		ensurer.Interval = cfg.EnsureInterval
		svcName := "ensure-daily-" + t.table
		services = append(services, supervisor.Service{
			Name:    svcName,
			Enabled: true,
			Start:   runInBackground(logger, svcName, ensurer.Run),
			Stop:    func(ctx context.Context) error { return nil },
		})
	}

	for _, t := range monthlyPartitionTargets {
		ensurer := partition.NewMonthlyEnsurer(relConn, logger, t.table, t.column, cfg.MonthlyMonthsBack, cfg.MonthlyMonthsForward)
		ensurer.Interval = cfg.EnsureInterval
		svcName := "ensure-monthly-" + t.table
		services = append(services, supervisor.Service{
			Name:    svcName,
			Enabled: true,
			Start:   runInBackground(logger, svcName, ensurer.Run),
			Stop:    func(ctx context.Context) error { return nil },
		})
	}

	jobs := append(dailyCleanerJobs(dailyPartitionTargets, cfg.DailyKeepDays),
		monthlyCleanerJobs(monthlyPartitionTargets, cfg.MonthlyKeepMonths)...)
	cleaner := partition.NewCleanerSupervisor(relConn, logger, jobs)
	cleaner.Interval = cfg.CleanerInterval
	services = append(services, supervisor.Service{
		Name:    "partition-cleaner",
		Enabled: len(cleaner.Jobs) > 0,
		Start:   runInBackground(logger, "partition-cleaner", cleaner.Run),
		Stop:    func(ctx context.Context) error { return nil },
	})

	geofenceRefresher := refresh.NewGeofenceRefresher(refreshCfg, state, logger)
	services = append(services, supervisor.Service{
		Name:    "geofence-refresher",
		Enabled: refreshCfg.KojiAPIURL != "",
		Start: runInBackground(logger, "geofence-refresher", func(ctx context.Context) error {
			return geofenceRefresher.RunLoop(ctx, refreshCfg.GeofenceRefreshInterval)
		}),
		Stop: func(ctx context.Context) error { return nil },
	})

	pokestopRefresher := refresh.NewPokestopCountRefresher(refreshCfg, relConn, state, logger)
	services = append(services, supervisor.Service{
		Name:    "pokestop-count-refresher",
		Enabled: true,
		Start: runInBackground(logger, "pokestop-count-refresher", func(ctx context.Context) error {
			return pokestopRefresher.RunLoop(ctx, refreshCfg.PokestopRefreshInterval)
		}),
		Stop: func(ctx context.Context) error { return nil },
	})

	return services
}

// bufferResumer routes a stale ":flushing"/":force_flushing" staging key to
// the one buffer whose key namespace it belongs to, since
// Election.RecoverStaleStagingKeys drives a single StagingKeyResumer across
// every buffer family's keys.
type bufferResumer struct {
	resumers map[string]leader.StagingKeyResumer
}

func newBufferResumer(iv *buffer.IVBuffer, shiny *buffer.ShinyBuffer, raid *buffer.RaidBuffer,
	quest *buffer.QuestBuffer, invasion *buffer.InvasionBuffer,
) *bufferResumer {
	return &bufferResumer{resumers: map[string]leader.StagingKeyResumer{
		"buffer:agg_pokemon_iv":       iv,
		"buffer:agg_shiny_rates_hash": shiny,
		"buffer:raid_events":         raid,
		"buffer:quest_events":        quest,
		"buffer:invasion_events":     invasion,
	}}
}

// runInBackground adapts a blocking ctx-driven loop (a Flusher, an ensurer,
// a refresher's RunLoop, the admin HTTP server) into a supervisor.Service's
// Start shape: start_services awaits each Start once and moves on, so the
// loop itself must run in its own goroutine rather than block registration
// of the remaining services.
func runInBackground(logger *slog.Logger, name string, run func(ctx context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		go func() {
			if err := run(ctx); err != nil {
				logger.Error("background service exited with error", "service", name, "error", err)
			}
		}()

		return nil
	}
}

func (r *bufferResumer) ResumeDrain(ctx context.Context, staleKey string) error {
	for prefix, resumer := range r.resumers {
		if strings.HasPrefix(staleKey, prefix) {
			return resumer.ResumeDrain(ctx, staleKey)
		}
	}

	return fmt.Errorf("no buffer claims stale staging key %q", staleKey)
}
