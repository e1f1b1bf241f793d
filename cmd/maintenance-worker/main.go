package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/experiences-backend/internal/ledger"
	"github.com/angelmondragon/experiences-backend/internal/maintenance"
	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/db"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/metrics"
	"github.com/angelmondragon/experiences-backend/pkg/migrate"
	"github.com/angelmondragon/experiences-backend/pkg/outbox"
	"github.com/angelmondragon/experiences-backend/pkg/redis"
)

const serviceKind = "maintenance-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "maintenance worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "maintenance worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	boot := context.WithoutCancel(ctx)

	dbClient, err := db.New(boot, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(boot, "error closing database", err)
		}
	}()
	if err := migrate.MaybeRunDev(boot, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(boot, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(boot, "error closing redis", err)
		}
	}()

	mc := cfg.Maintenance
	outboxTask, err := maintenance.NewOutboxRetention(logg, dbClient, outbox.NewRepository(dbClient.DB()), mc.OutboxRetention)
	if err != nil {
		return err
	}
	attemptTask, err := maintenance.NewAttemptRetention(logg, ledger.NewAttemptRepository(dbClient.DB()), mc.AttemptRetention)
	if err != nil {
		return err
	}
	lease, err := maintenance.NewLease(redisClient, redisClient.LockKey("maintenance", cfg.App.Env), mc.LockTTL)
	if err != nil {
		return err
	}
	sweeper, err := maintenance.NewSweeper(maintenance.SweeperParams{
		Logger:   logg,
		Lease:    lease,
		Metrics:  metrics.NewMaintenanceMetrics(prometheus.DefaultRegisterer),
		Interval: mc.Interval,
		Tasks:    []maintenance.Task{outboxTask, attemptTask},
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting maintenance worker")
	return sweeper.Run(ctx)
}
