package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"rovledger/internal/amqp"
	"rovledger/internal/auth"
	"rovledger/internal/cli"
	apphttp "rovledger/internal/http"
	"rovledger/internal/rates"
	"rovledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitRepository(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	if err := repo.Seed(context.Background()); err != nil {
		logger.Error("Failed to seed database", "error", err)
		os.Exit(1)
	}

	rateProvider := rates.NewProvider(repo, cfg.RateAPIURL, cfg.RateFetchTimeout)

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, event publishing disabled", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("Connected to AMQP broker", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	ledger := services.NewLedger(repo, rateProvider, publisher)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)

	srv := apphttp.NewServer(":"+cfg.Port, ledger, rateProvider, tokens, cfg.LoginRatePerMinute, cfg.LoginRateBurst)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting rovledger server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		// Warm the rate once at startup, then keep it fresh.
		rateProvider.Refresh(gctx)
		err := rateProvider.RunRefresher(gctx, cfg.RateRefreshInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
