package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/db"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/outbox"
)

// dlq inspects dead-lettered outbox events. It only needs the database,
// so it runs without the operator key or a ledger connection.
func dlq(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dlq", flag.ExitOnError)
	eventType := fs.String("type", "", "only this event type, e.g. booking_confirmed")
	eventID := fs.String("event", "", "show one outbox event id")
	limit := fs.Int("limit", 20, "maximum entries to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{ServiceName: "escrowctl", Level: logger.ParseLevel(cfg.App.LogLevel)})
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer dbClient.Close()
	repo := outbox.NewDLQRepository(dbClient.DB())

	if *eventID != "" {
		id, err := uuid.Parse(*eventID)
		if err != nil {
			return fmt.Errorf("invalid -event: %w", err)
		}
		entry, err := repo.FindByEventID(ctx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("no dead letter for event %s", id)
		}
		return printJSON(entry)
	}

	filter := enums.OutboxEventType(*eventType)
	if filter != "" && !filter.IsValid() {
		return fmt.Errorf("unknown event type %q", *eventType)
	}
	entries, err := repo.List(ctx, filter, *limit)
	if err != nil {
		return err
	}
	return printJSON(entries)
}
