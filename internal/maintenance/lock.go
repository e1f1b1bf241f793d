package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Lease is a single-owner Redis lock that expires on its own if the holder dies.
type Lease struct {
	store lockStore
	key   string
	ttl   time.Duration
}

func NewLease(store lockStore, key string, ttl time.Duration) (*Lease, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if key == "" {
		return nil, errors.New("lock key required")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	return &Lease{store: store, key: key, ttl: ttl}, nil
}

// TryAcquire returns a release func when the lease was won, nil when another worker holds it.
func (l *Lease) TryAcquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, nil
	}
	return func(ctx context.Context) error {
		held, err := l.store.Get(ctx, l.key)
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", l.key, err)
		}
		// expired and re-acquired elsewhere
		if held != token {
			return nil
		}
		return l.store.Del(ctx, l.key)
	}, nil
}
