// Package idempotency remembers which outbox rows were already handed to
// Pub/Sub so a crash between publish and the row update does not resend.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/experiences-backend/pkg/redis"
)

// Guard marks (consumer, event) pairs in Redis with SETNX.
// Keys look like exp:idempotency:evt:processed:<consumer>:<event_id>.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard keeps markers for ttl; zero keeps them until deleted.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports whether the event was already marked and
// marks it when it was not.
func (g *Guard) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	fresh, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// Delete clears the marker so the event is published again.
func (g *Guard) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
