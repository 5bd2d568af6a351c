// Package main is the entry point for the Crucible backtesting engine.
// The service imports historical candle data, replays trading strategies
// against it, and sweeps strategy parameter spaces in batched optimization
// jobs, all driven over a REST API.
//
// Startup sequence:
// 1. Load configuration from environment variables (.env supported)
// 2. Open and migrate the history and results databases
// 3. Wire the event bus, data store, strategy catalog and job manager
// 4. Register maintenance jobs on the cron scheduler
// 5. Start the HTTP server and wait for a shutdown signal
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/crucible/internal/config"
	"github.com/aristath/crucible/internal/database"
	"github.com/aristath/crucible/internal/events"
	"github.com/aristath/crucible/internal/jobs"
	"github.com/aristath/crucible/internal/modules/backtest"
	"github.com/aristath/crucible/internal/modules/history"
	"github.com/aristath/crucible/internal/modules/optimization"
	"github.com/aristath/crucible/internal/modules/strategy"
	"github.com/aristath/crucible/internal/reliability"
	"github.com/aristath/crucible/internal/scheduler"
	"github.com/aristath/crucible/internal/server"
	"github.com/aristath/crucible/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting Crucible")

	// history.db holds imported candle series, results.db the job record trail
	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath(),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	resultsDB, err := database.New(database.Config{
		Path:    cfg.ResultsDBPath(),
		Profile: database.ProfileStandard,
		Name:    "results",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open results database")
	}
	defer resultsDB.Close()

	if err := historyDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate history database")
	}
	if err := resultsDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate results database")
	}

	bus := events.NewBus(log)

	// Historical data store and CSV importer
	store := history.NewStore(historyDB.Conn(), log)
	importer := history.NewImporter(store, bus, cfg.CSVDir(), log)

	// Strategy catalog and optimizable parameter definitions
	registry := strategy.NewRegistry()
	definitions, err := strategy.LoadDefinitions(cfg.ParametersFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load parameter definitions")
	}

	// Single-run executor and the batch scheduler that drives it in parallel
	executor := backtest.NewExecutor(store, registry, log)
	batchScheduler := optimization.NewScheduler(executor, optimization.SchedulerConfig{
		Workers:                   cfg.OptimizationWorkers,
		DefaultBatchSize:          cfg.DefaultBatchSize,
		DefaultTopK:               cfg.DefaultTopK,
		MemoryAbortPercent:        cfg.MemoryAbortPercent,
		DefaultMaxDurationSeconds: cfg.JobTimeBudgetMinutes * 60,
	}, log)

	// The job manager owns the single-run and batch slots
	records := jobs.NewRecordStore(resultsDB.Conn(), log)
	manager := jobs.NewManager(executor, batchScheduler, records, bus, log)

	// Optional R2 results archive
	var archive *reliability.ArchiveService
	if cfg.Archive.Enabled {
		r2Client, err := reliability.NewR2Client(
			cfg.Archive.AccountID,
			cfg.Archive.AccessKeyID,
			cfg.Archive.SecretAccessKey,
			cfg.Archive.Bucket,
			log,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create R2 client")
		}
		archive = reliability.NewArchiveService(r2Client, map[string]*database.DB{
			"history": historyDB,
			"results": resultsDB,
		}, cfg.DataDir, log)
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Results archive enabled")
	}

	// Cron scheduler and maintenance jobs
	sched := scheduler.New(log)
	maintenanceJobs, err := registerJobs(sched, cfg, historyDB, resultsDB, records, archive, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance jobs")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		HistoryDB:   historyDB,
		ResultsDB:   resultsDB,
		Bus:         bus,
		Manager:     manager,
		Store:       store,
		Importer:    importer,
		Registry:    registry,
		Definitions: definitions,
		Scheduler:   sched,
		Archive:     archive,
	})
	srv.SetJobs(maintenanceJobs...)

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop accepting requests first, then drain running jobs. A batch that
	// is still running settles as aborted and its rankings are persisted.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Job manager did not drain in time")
	}

	log.Info().Msg("Server stopped")
}

// registerJobs wires the recurring maintenance jobs onto the cron scheduler
// and returns them so the server can expose manual triggers.
func registerJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	historyDB, resultsDB *database.DB,
	records *jobs.RecordStore,
	archive *reliability.ArchiveService,
	log zerolog.Logger,
) ([]scheduler.Job, error) {
	databases := map[string]*database.DB{
		"history": historyDB,
		"results": resultsDB,
	}

	walJob := scheduler.NewCheckWALCheckpointsJob(historyDB, resultsDB, log)
	if err := sched.AddJob(cfg.WALCheckpointSchedule, walJob); err != nil {
		return nil, fmt.Errorf("failed to register %s job: %w", walJob.Name(), err)
	}

	dailyJob := reliability.NewDailyMaintenanceJob(databases, records, cfg.JobRecordRetentionDays, cfg.DataDir, log)
	if err := sched.AddJob(cfg.DailyMaintenanceSchedule, dailyJob); err != nil {
		return nil, fmt.Errorf("failed to register %s job: %w", dailyJob.Name(), err)
	}

	weeklyJob := reliability.NewWeeklyMaintenanceJob(databases, log)
	if err := sched.AddJob(cfg.WeeklyMaintenanceSchedule, weeklyJob); err != nil {
		return nil, fmt.Errorf("failed to register %s job: %w", weeklyJob.Name(), err)
	}

	registered := []scheduler.Job{walJob, dailyJob, weeklyJob}

	// The archive job only exists when R2 is configured
	if archive != nil {
		archiveJob := reliability.NewResultsArchiveJob(archive, cfg.Archive.RetentionDays, log)
		if err := sched.AddJob(cfg.ArchiveSchedule, archiveJob); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", archiveJob.Name(), err)
		}
		registered = append(registered, archiveJob)
	}

	return registered, nil
}
