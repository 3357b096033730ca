// Package cli provides common CLI initialization utilities shared by
// cmd/rovledger and cmd/rovledger-init.
package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"rovledger/internal/config"
	"rovledger/internal/storage"
)

// SetupLogger initializes structured logging at the given level and sets it
// as the default logger.
func SetupLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitRepository opens the ledger database and applies migrations.
// Returns the repository or exits the process on failure.
func InitRepository(logger *slog.Logger, dbPath string) *storage.LedgerRepository {
	repo, err := storage.NewLedgerRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize ledger repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}
