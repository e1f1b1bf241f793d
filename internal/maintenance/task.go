package maintenance

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/pkg/logger"
)

// Task is one unit of work executed per sweep.
type Task interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type attemptPruner interface {
	DeleteSubmittedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxRetention removes outbox rows that were published longer ago than the retention window.
type OutboxRetention struct {
	logg      *logger.Logger
	db        txRunner
	repo      outboxPruner
	retention time.Duration
	now       func() time.Time
}

func NewOutboxRetention(logg *logger.Logger, db txRunner, repo outboxPruner, retention time.Duration) (*OutboxRetention, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil || repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("outbox retention must be positive")
	}
	return &OutboxRetention{logg: logg, db: db, repo: repo, retention: retention, now: time.Now}, nil
}

func (t *OutboxRetention) Name() string { return "outbox-retention" }

func (t *OutboxRetention) Run(ctx context.Context) (int64, error) {
	cutoff := t.now().UTC().Add(-t.retention)
	var deleted int64
	err := t.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := t.repo.DeletePublishedBefore(tx, cutoff)
		deleted = rows
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	t.logg.Info(t.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "published outbox rows pruned")
	return deleted, nil
}

// AttemptRetention drops transaction attempt history older than the retention window.
type AttemptRetention struct {
	logg      *logger.Logger
	repo      attemptPruner
	retention time.Duration
	now       func() time.Time
}

func NewAttemptRetention(logg *logger.Logger, repo attemptPruner, retention time.Duration) (*AttemptRetention, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if repo == nil {
		return nil, fmt.Errorf("attempt repository required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("attempt retention must be positive")
	}
	return &AttemptRetention{logg: logg, repo: repo, retention: retention, now: time.Now}, nil
}

func (t *AttemptRetention) Name() string { return "attempt-retention" }

func (t *AttemptRetention) Run(ctx context.Context) (int64, error) {
	cutoff := t.now().UTC().Add(-t.retention)
	deleted, err := t.repo.DeleteSubmittedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	t.logg.Info(t.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "transaction attempts pruned")
	return deleted, nil
}
