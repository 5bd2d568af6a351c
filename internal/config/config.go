// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for databases, CSV files, staging (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Backtest / optimization defaults
	OptimizationWorkers  int     // Bounded parallelism for batch runs
	DefaultBatchSize     int     // Combinations per batch when the request leaves it unset
	DefaultTopK          int     // Top-K per ranking category when the request leaves it unset
	MemoryAbortPercent   float64 // Abort running jobs above this RAM usage (0 disables)
	JobTimeBudgetMinutes int     // Wall-clock budget per job (0 = unlimited)

	// Parameter definitions file (YAML). Empty means <DataDir>/parameters.yaml.
	ParametersFile string

	// Results archive (S3-compatible, Cloudflare R2)
	Archive *ArchiveConfig

	// Maintenance cron schedules (robfig/cron specs with seconds field)
	WALCheckpointSchedule     string // PASSIVE checkpoint monitor
	DailyMaintenanceSchedule  string // integrity check, checkpoint, disk space, record prune
	WeeklyMaintenanceSchedule string // VACUUM
	ArchiveSchedule           string // R2 upload and rotation
	JobRecordRetentionDays    int
}

// ArchiveConfig holds the R2 results archive configuration
type ArchiveConfig struct {
	Enabled         bool
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check CRUCIBLE_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path
	// 4. Ensure directory exists
	dataDir := getEnv("CRUCIBLE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8010),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		OptimizationWorkers:  getEnvAsInt("OPTIMIZATION_WORKERS", defaultWorkerCount()),
		DefaultBatchSize:     getEnvAsInt("DEFAULT_BATCH_SIZE", 50),
		DefaultTopK:          getEnvAsInt("DEFAULT_TOP_K", 5),
		MemoryAbortPercent:   getEnvAsFloat("MEMORY_ABORT_PERCENT", 90),
		JobTimeBudgetMinutes: getEnvAsInt("JOB_TIME_BUDGET_MINUTES", 0),

		ParametersFile: getEnv("PARAMETERS_FILE", ""),

		Archive: loadArchiveConfig(),

		WALCheckpointSchedule:     getEnv("WAL_CHECKPOINT_SCHEDULE", "0 0 * * * *"),      // hourly
		DailyMaintenanceSchedule:  getEnv("DAILY_MAINTENANCE_SCHEDULE", "0 0 2 * * *"),   // 2 AM
		WeeklyMaintenanceSchedule: getEnv("WEEKLY_MAINTENANCE_SCHEDULE", "0 30 3 * * 0"), // Sunday 3:30 AM
		ArchiveSchedule:           getEnv("ARCHIVE_SCHEDULE", "0 0 1 * * *"),             // 1 AM
		JobRecordRetentionDays:    getEnvAsInt("JOB_RECORD_RETENTION_DAYS", 30),
	}

	if cfg.ParametersFile == "" {
		cfg.ParametersFile = filepath.Join(absDataDir, "parameters.yaml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.OptimizationWorkers < 1 {
		return fmt.Errorf("OPTIMIZATION_WORKERS must be at least 1, got %d", c.OptimizationWorkers)
	}
	if c.DefaultBatchSize < 1 {
		return fmt.Errorf("DEFAULT_BATCH_SIZE must be at least 1, got %d", c.DefaultBatchSize)
	}
	if c.DefaultTopK < 1 {
		return fmt.Errorf("DEFAULT_TOP_K must be at least 1, got %d", c.DefaultTopK)
	}
	if c.Archive.Enabled {
		if c.Archive.AccountID == "" || c.Archive.AccessKeyID == "" ||
			c.Archive.SecretAccessKey == "" || c.Archive.Bucket == "" {
			return fmt.Errorf("R2 archive enabled but credentials are incomplete")
		}
	}
	return nil
}

// HistoryDBPath returns the candle database path under the data directory
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// ResultsDBPath returns the job record database path under the data directory
func (c *Config) ResultsDBPath() string {
	return filepath.Join(c.DataDir, "results.db")
}

// CSVDir returns the directory candle CSV files are imported from
func (c *Config) CSVDir() string {
	return filepath.Join(c.DataDir, "csv")
}

// defaultWorkerCount derives the default batch parallelism from the host CPU count
func defaultWorkerCount() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	return n
}

// loadArchiveConfig loads the R2 archive configuration from the environment
func loadArchiveConfig() *ArchiveConfig {
	return &ArchiveConfig{
		Enabled:         getEnvAsBool("ARCHIVE_ENABLED", false),
		AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		Bucket:          getEnv("R2_BUCKET", ""),
		RetentionDays:   getEnvAsInt("ARCHIVE_RETENTION_DAYS", 90),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
