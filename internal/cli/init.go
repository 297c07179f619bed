// Package cli holds the start-up steps shared by the summit binaries.
package cli

import (
	"os"

	"github.com/joho/godotenv"

	"summit/internal/config"
	"summit/internal/log"
	"summit/internal/storage"
)

// Bootstrap loads .env (when present) and the configuration, installs the
// default logger for component and validates the configuration. It exits
// the process when the configuration is invalid.
func Bootstrap(component string) (*config.Config, *log.Logger) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.ConfigFromStrings(cfg.LogLevel, cfg.LogFormat, component))
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// OpenRepository opens the SQLite database and applies migrations, exiting
// the process on failure.
func OpenRepository(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	logger.Info("SQLite repository ready", "path", dbPath)
	return repo
}
