package reliability

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/aristath/crucible/internal/database"
	"github.com/aristath/crucible/internal/jobs"
	"github.com/rs/zerolog"
)

// DailyMaintenanceJob performs daily database maintenance (2 AM)
type DailyMaintenanceJob struct {
	databases           map[string]*database.DB
	records             *jobs.RecordStore
	recordRetentionDays int
	dataDir             string
	log                 zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job
func NewDailyMaintenanceJob(
	databases map[string]*database.DB,
	records *jobs.RecordStore,
	recordRetentionDays int,
	dataDir string,
	log zerolog.Logger,
) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases:           databases,
		records:             records,
		recordRetentionDays: recordRetentionDays,
		dataDir:             dataDir,
		log:                 log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the daily maintenance job
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Step 1: Integrity check for all databases
	for name, db := range j.databases {
		if db == nil {
			continue
		}
		j.log.Debug().Str("database", name).Msg("Running integrity check")

		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().
				Str("database", name).
				Err(err).
				Msg("CRITICAL: Database integrity check failed")
			return fmt.Errorf("CRITICAL: integrity check failed for %s: %w", name, err)
		}
	}

	// Step 2: WAL checkpoint for all databases (prevent bloat)
	for name, db := range j.databases {
		if db == nil {
			continue
		}
		j.log.Debug().Str("database", name).Msg("Running WAL checkpoint")

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().
				Str("database", name).
				Err(err).
				Msg("WAL checkpoint failed")
			// Don't return error - this is not critical
		}
	}

	// Step 3: Check disk space
	if err := j.checkDiskSpace(); err != nil {
		return err // HALT if critical
	}

	// Step 4: Prune old job records
	if err := j.pruneJobRecords(); err != nil {
		j.log.Error().Err(err).Msg("Job record pruning failed")
		// Log but don't halt - pruning retries tomorrow
	}

	// Step 5: Report database sizes
	j.reportDatabaseSizes()

	duration := time.Since(startTime)
	j.log.Info().
		Dur("duration_ms", duration).
		Msg("Daily maintenance completed successfully")

	return nil
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// checkDiskSpace verifies sufficient disk space is available
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)
	availableGB := float64(availableBytes) / 1e9

	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	// CRITICAL: Less than 500MB
	if availableGB < 0.5 {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("CRITICAL: Insufficient disk space - HALTING SYSTEM")
		return fmt.Errorf("CRITICAL: Only %.2f GB free - system halted", availableGB)
	}

	// ERROR: Less than 5GB
	if availableGB < 5.0 {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("Low disk space - consider cleanup")
	}

	// WARNING: Less than 10GB
	if availableGB < 10.0 {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Disk space running low")
	}

	return nil
}

// pruneJobRecords deletes job records older than the retention window
func (j *DailyMaintenanceJob) pruneJobRecords() error {
	if j.records == nil || j.recordRetentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -j.recordRetentionDays)
	deleted, err := j.records.Prune(cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Int("retention_days", j.recordRetentionDays).
			Msg("Pruned old job records")
	}

	return nil
}

// reportDatabaseSizes logs current database and WAL sizes
func (j *DailyMaintenanceJob) reportDatabaseSizes() {
	for name, db := range j.databases {
		if db == nil {
			continue
		}

		stats, err := db.GetStats()
		if err != nil {
			j.log.Error().
				Str("database", name).
				Err(err).
				Msg("Failed to get database stats")
			continue
		}

		j.log.Info().
			Str("database", name).
			Float64("size_mb", float64(stats.SizeBytes)/1024/1024).
			Float64("wal_size_mb", float64(stats.WALSizeBytes)/1024/1024).
			Int64("freelist_pages", stats.FreelistCount).
			Msg("Database metrics")
	}
}

// WeeklyMaintenanceJob performs weekly database maintenance (Sunday 3 AM)
type WeeklyMaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewWeeklyMaintenanceJob creates a new weekly maintenance job
func NewWeeklyMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

// Run executes the weekly maintenance job
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting weekly maintenance")
	startTime := time.Now()

	for name, db := range j.databases {
		if db == nil {
			continue
		}
		j.log.Info().Str("database", name).Msg("Running VACUUM")

		if err := j.vacuumDatabase(db, name); err != nil {
			j.log.Error().
				Str("database", name).
				Err(err).
				Msg("VACUUM failed")
			// Continue with other databases
		}
	}

	duration := time.Since(startTime)
	j.log.Info().
		Dur("duration_ms", duration).
		Msg("Weekly maintenance completed successfully")

	return nil
}

// Name returns the job name for scheduler
func (j *WeeklyMaintenanceJob) Name() string {
	return "weekly_maintenance"
}

// vacuumDatabase performs VACUUM on a database and reports reclaimed space
func (j *WeeklyMaintenanceJob) vacuumDatabase(db *database.DB, name string) error {
	var sizeBefore float64
	if stats, err := db.GetStats(); err == nil {
		sizeBefore = float64(stats.PageCount*stats.PageSize) / 1024 / 1024
	}

	if err := db.Vacuum(); err != nil {
		return err
	}

	var sizeAfter float64
	if stats, err := db.GetStats(); err == nil {
		sizeAfter = float64(stats.PageCount*stats.PageSize) / 1024 / 1024
	}

	j.log.Info().
		Str("database", name).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")

	return nil
}

// ResultsArchiveJob uploads a results archive to R2 and rotates old ones (1 AM)
type ResultsArchiveJob struct {
	archive       *ArchiveService
	retentionDays int
	log           zerolog.Logger
}

// NewResultsArchiveJob creates a new results archive job
func NewResultsArchiveJob(archive *ArchiveService, retentionDays int, log zerolog.Logger) *ResultsArchiveJob {
	return &ResultsArchiveJob{
		archive:       archive,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "results_archive").Logger(),
	}
}

// Run executes the results archive job
func (j *ResultsArchiveJob) Run() error {
	if j.archive == nil {
		j.log.Debug().Msg("Archive service not configured, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	filename, err := j.archive.CreateAndUploadArchive(ctx)
	if err != nil {
		return fmt.Errorf("archive upload failed: %w", err)
	}

	j.log.Info().Str("filename", filename).Msg("Results archive uploaded")

	if err := j.archive.RotateOldArchives(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Archive rotation failed")
		// Upload succeeded, rotation retries on the next run
	}

	return nil
}

// Name returns the job name for scheduler
func (j *ResultsArchiveJob) Name() string {
	return "results_archive"
}
