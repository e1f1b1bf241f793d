package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/experiences-backend/pkg/redis"
)

// SessionStore keeps booking snapshots between requests.
type SessionStore interface {
	Key(experienceID, participant string) string
	// Load returns nil when the session expired or never existed.
	Load(ctx context.Context, key string) (*Snapshot, error)
	Save(ctx context.Context, key string, snapshot Snapshot) error
}

// SessionKV is the slice of the Redis client the session store needs.
type SessionKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	BookingSessionKey(experienceID, participant string) string
}

type redisSessions struct {
	kv  SessionKV
	ttl time.Duration
}

// NewSessionStore stores snapshots as JSON with a sliding TTL.
func NewSessionStore(kv SessionKV, ttl time.Duration) (SessionStore, error) {
	if kv == nil {
		return nil, errors.New("session kv required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &redisSessions{kv: kv, ttl: ttl}, nil
}

func (s *redisSessions) Key(experienceID, participant string) string {
	return s.kv.BookingSessionKey(experienceID, participant)
}

func (s *redisSessions) Load(ctx context.Context, key string) (*Snapshot, error) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load booking session: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("decode booking session: %w", err)
	}
	return &snapshot, nil
}

func (s *redisSessions) Save(ctx context.Context, key string, snapshot Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode booking session: %w", err)
	}
	if err := s.kv.Set(ctx, key, string(raw), s.ttl); err != nil {
		return fmt.Errorf("save booking session: %w", err)
	}
	return nil
}
