// rovledger-init opens the database, applies migrations and inserts the
// default accounts, categories and users. Safe to run repeatedly.
package main

import (
	"context"
	"os"
	"time"

	"rovledger/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitRepository(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := repo.Seed(ctx); err != nil {
		logger.Error("Seeding failed", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	logger.Info("Database ready", "path", cfg.SQLiteDBPath)
}
