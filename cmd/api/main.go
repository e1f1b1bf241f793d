package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/experiences-backend/api/routes"
	"github.com/angelmondragon/experiences-backend/internal/catalog"
	"github.com/angelmondragon/experiences-backend/internal/ledger"
	"github.com/angelmondragon/experiences-backend/internal/wallets"
	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/db"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/metrics"
	"github.com/angelmondragon/experiences-backend/pkg/migrate"
	"github.com/angelmondragon/experiences-backend/pkg/redis"
)

// ledgerPinger reports the ledger ready when the contract answers a read.
type ledgerPinger struct {
	client ledger.Client
}

func (p ledgerPinger) Ping(ctx context.Context) error {
	_, err := p.client.IsPaused(ctx)
	return err
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	ledgerClient, err := ledger.Dial(context.Background(), cfg.Ledger, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to connect ledger", err)
		os.Exit(1)
	}

	defer func() {
		ledgerClient.Close()
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	catalogStore, err := catalog.NewStore(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog store", err)
		os.Exit(1)
	}

	provisioner, err := wallets.NewProvisioner(cfg.Wallet, wallets.ProviderDeps{
		DB:      dbClient.DB(),
		Tx:      dbClient,
		Cache:   redisClient,
		Logger:  logg,
		Metrics: ledgerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet provisioner", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"provider": wallets.ProviderKind(cfg.Wallet),
	})
	logg.Info(ctx, "starting api server")

	router := routes.NewRouter(cfg, logg, routes.Deps{
		DB:          dbClient,
		Ledger:      ledgerPinger{client: ledgerClient},
		Cache:       redisClient,
		Catalog:     catalogStore,
		Provisioner: provisioner,
	})
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", router)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shutting down gracefully")
}
