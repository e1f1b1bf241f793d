package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/db"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/metrics"
	"github.com/angelmondragon/experiences-backend/pkg/migrate"
	"github.com/angelmondragon/experiences-backend/pkg/outbox"
	"github.com/angelmondragon/experiences-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/experiences-backend/pkg/outbox/registry"
	"github.com/angelmondragon/experiences-backend/pkg/pubsub"
	"github.com/angelmondragon/experiences-backend/pkg/redis"
)

const serviceKind = "outbox-publisher"

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
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}

// run wires the relay and blocks until ctx ends. Clients close on return.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	boot := context.WithoutCancel(ctx)

	dbClient, err := db.New(boot, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(boot, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(boot, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	pubsubClient, err := pubsub.NewClient(boot, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer closeQuietly(boot, logg, "pubsub", pubsubClient.Close)

	// Without Redis the relay still works; it only loses crash-window dedupe.
	var guard publishGuard
	if cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err := redis.New(boot, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		defer closeQuietly(boot, logg, "redis", redisClient.Close)
		if guard, err = idempotency.NewGuard(redisClient, cfg.Eventing.OutboxIdempotencyTTL); err != nil {
			return fmt.Errorf("publish guard: %w", err)
		}
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Guard:         guard,
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("outbox publisher: %w", err)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(boot, 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting outbox publisher")
	return service.Run(ctx)
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
