// Command escrowctl drives the escrow ledger with the operator key: publish an
// experience, join it, and check in. It uses the same controller, reconciler
// and booking flow as the embedding shell. It also lists dead-lettered
// outbox events.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/experiences-backend/internal/booking"
	"github.com/angelmondragon/experiences-backend/internal/catalog"
	"github.com/angelmondragon/experiences-backend/internal/ledger"
	"github.com/angelmondragon/experiences-backend/internal/reconcile"
	"github.com/angelmondragon/experiences-backend/internal/submission"
	"github.com/angelmondragon/experiences-backend/internal/wallets"
	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/db"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/metrics"
	"github.com/angelmondragon/experiences-backend/pkg/outbox"
	"github.com/angelmondragon/experiences-backend/pkg/redis"
)

type app struct {
	cfg        *config.Config
	logg       *logger.Logger
	signer     *ledger.Signer
	catalog    catalog.Store
	controller *submission.Controller
	flow       *booking.Flow
	walletDeps wallets.ProviderDeps
	closers    []func() error
}

func main() {
	if len(os.Args) < 2 {
		exitf("usage: escrowctl <create|join|checkin|dlq> [flags]")
	}
	_ = godotenv.Load()

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		var se *submission.Error
		if errors.As(err, &se) {
			exitf("%s", se.UserMessage())
		}
		exitf("%v", err)
	}
}

func run(command string, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if command == "dlq" {
		return dlq(ctx, args)
	}
	a, err := bootstrap(ctx, logger.New(logger.Options{ServiceName: "escrowctl"}))
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer a.close()

	switch command {
	case "create":
		return a.create(ctx, args)
	case "join":
		return a.join(ctx, args)
	case "checkin":
		return a.checkin(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func bootstrap(ctx context.Context, logg *logger.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		return nil, err
	}
	logg = logger.New(logger.Options{
		ServiceName: "escrowctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	if cfg.Ledger.OperatorKey == "" {
		return nil, errors.New("EXPERIENCES_LEDGER_OPERATOR_KEY is required")
	}
	signer, err := ledger.NewSigner(cfg.Ledger.OperatorKey, cfg.Ledger.ChainID)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logg: logg, signer: signer}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, redisClient.Close)

	ledgerClient, err := ledger.Dial(ctx, cfg.Ledger, logg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() error { ledgerClient.Close(); return nil })

	m := metrics.NewLedgerMetrics(prometheus.NewRegistry())
	a.walletDeps = wallets.ProviderDeps{DB: dbClient.DB(), Tx: dbClient, Cache: redisClient, Logger: logg, Metrics: m}
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	if a.catalog, err = catalog.NewStore(dbClient.DB()); err != nil {
		a.close()
		return nil, err
	}
	reconciler, err := reconcile.NewReconciler(reconcile.Params{
		IDs:     ledgerClient,
		Store:   a.catalog,
		Tx:      dbClient,
		Emitter: emitter,
		Logger:  logg,
		Metrics: m,
		Config: reconcile.Config{
			SettleDelay:     cfg.Ledger.SettleDelay,
			CounterFallback: cfg.Ledger.CounterFallback,
			Decimals:        cfg.Ledger.Decimals,
		},
	})
	if err != nil {
		a.close()
		return nil, err
	}
	attemptLog, err := ledger.NewAttemptLog(ledger.NewAttemptRepository(dbClient.DB()))
	if err != nil {
		a.close()
		return nil, err
	}
	a.controller, err = submission.NewController(submission.ControllerParams{
		Ledger:              ledgerClient,
		Attempts:            attemptLog,
		Guard:               redisClient,
		Reconciler:          reconciler,
		Metrics:             m,
		Logger:              logg,
		Config:              cfg.Submission,
		ConfirmationTimeout: cfg.Ledger.ConfirmationTimeout,
		Decimals:            cfg.Ledger.Decimals,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	sessions, err := booking.NewSessionStore(redisClient, cfg.Booking.SessionTTL)
	if err != nil {
		a.close()
		return nil, err
	}
	a.flow, err = booking.NewFlow(booking.FlowParams{
		Sessions: sessions,
		Booker:   a.controller,
		Catalog:  a.catalog,
		Tx:       dbClient,
		Emitter:  emitter,
		Logger:   logg,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	if err != nil {
		a.logg.Error(context.Background(), "error closing resources", err)
	}
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	wallet := fs.String("wallet", "", "experience wallet address")
	provision := fs.Bool("provision", false, "provision a custodial wallet for the experience first")
	draft := fs.String("draft", "", "draft experience id naming the provisioned wallet (default random)")
	title := fs.String("title", "", "experience title")
	description := fs.String("description", "", "description")
	location := fs.String("location", "", "meeting point")
	city := fs.String("city", "", "city")
	price := fs.String("price", "", "price in whole currency units, e.g. 0.05")
	capacity := fs.Int64("capacity", 1, "maximum participants")
	scheduled := fs.String("scheduled", "", "start time, RFC3339")
	advance := fs.Uint("advance", 100, "percent paid on booking")
	checkin := fs.Uint("checkin", 0, "percent paid at check-in")
	mid := fs.Uint("mid", 0, "percent paid mid-experience")
	completion := fs.Uint("completion", 0, "percent paid on completion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	at, err := time.Parse(time.RFC3339, *scheduled)
	if err != nil {
		return fmt.Errorf("invalid -scheduled: %w", err)
	}
	payment, err := paymentStructure(*advance, *checkin, *mid, *completion)
	if err != nil {
		return err
	}

	out := map[string]any{}
	address := *wallet
	if *provision {
		p, err := wallets.NewProvisioner(a.cfg.Wallet, a.walletDeps)
		if err != nil {
			return fmt.Errorf("wallet provisioner: %w", err)
		}
		choice, err := experienceWallet(ctx, p, *wallet, *draft, *title)
		if choice.warning != "" {
			out["walletWarning"] = choice.warning
			a.logg.Warn(ctx, choice.warning)
		}
		if err != nil {
			return err
		}
		address = choice.address
		out["wallet"] = choice.wallet
	}

	confirmation, err := a.controller.CreateExperience(ctx, a.signer, submission.CreateExperienceParams{
		ExperienceWallet: address,
		Title:            *title,
		Description:      *description,
		Location:         *location,
		City:             *city,
		Price:            *price,
		MaxParticipants:  *capacity,
		ScheduledAt:      at,
		PaymentStructure: payment,
	})
	if err != nil {
		return err
	}
	out["experienceId"] = confirmation.ExperienceID.String()
	out["txHash"] = confirmation.TxHash
	out["attempts"] = confirmation.Attempts
	out["derivation"] = confirmation.Derivation
	if confirmation.Mirror != nil {
		out["mirrorId"] = confirmation.Mirror.ID.String()
	}
	if confirmation.Degraded() {
		out["mirrorError"] = confirmation.MirrorErr.Error()
	}
	return printJSON(out)
}

func (a *app) experience(ctx context.Context, ledgerID string) (booking.Experience, error) {
	mirror, err := a.catalog.GetByLedgerID(ctx, ledgerID)
	if err != nil {
		return booking.Experience{}, err
	}
	return booking.ExperienceFromMirror(mirror)
}

func (a *app) join(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("join", flag.ExitOnError)
	id := fs.String("experience", "", "ledger experience id")
	nickname := fs.String("nickname", "", "participant nickname")
	if err := fs.Parse(args); err != nil {
		return err
	}
	exp, err := a.experience(ctx, *id)
	if err != nil {
		return err
	}
	key := a.flow.SessionKey(exp, a.signer.From.Hex())
	result, err := a.flow.Join(ctx, key, a.signer, exp, *nickname)
	if err != nil {
		return err
	}
	out := map[string]any{
		"step":   result.Snapshot.Step,
		"txHash": result.Snapshot.ConfirmedTxHash,
	}
	if result.MirrorErr != nil {
		out["mirrorError"] = result.MirrorErr.Error()
	}
	return printJSON(out)
}

func (a *app) checkin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("checkin", flag.ExitOnError)
	id := fs.String("experience", "", "ledger experience id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	exp, err := a.experience(ctx, *id)
	if err != nil {
		return err
	}
	snap, err := a.flow.CheckIn(ctx, a.flow.SessionKey(exp, a.signer.From.Hex()), exp)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"step": snap.Step})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
