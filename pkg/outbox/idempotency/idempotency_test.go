package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.values[key], m.err
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key], _ = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return m.err
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "exp:idempotency:" + scope + ":" + id
}

func TestGuardMarksOnceThenReportsSeen(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewGuard(store, 24*time.Hour)
	require.NoError(t, err)
	eventID := uuid.New()

	seen, err := guard.CheckAndMarkProcessed(context.Background(), "outbox-publisher", eventID)
	require.NoError(t, err)
	assert.False(t, seen)

	key := "exp:idempotency:evt:processed:outbox-publisher:" + eventID.String()
	assert.Contains(t, store.values, key)
	assert.Equal(t, 24*time.Hour, store.ttls[key])

	seen, err = guard.CheckAndMarkProcessed(context.Background(), "outbox-publisher", eventID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestGuardScopesByConsumer(t *testing.T) {
	guard, err := NewGuard(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	eventID := uuid.New()

	_, err = guard.CheckAndMarkProcessed(context.Background(), "outbox-publisher", eventID)
	require.NoError(t, err)
	seen, err := guard.CheckAndMarkProcessed(context.Background(), "replayer", eventID)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestGuardDeleteAllowsRepublish(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewGuard(store, time.Hour)
	require.NoError(t, err)
	eventID := uuid.New()

	_, err = guard.CheckAndMarkProcessed(context.Background(), "outbox-publisher", eventID)
	require.NoError(t, err)
	require.NoError(t, guard.Delete(context.Background(), "outbox-publisher", eventID))
	assert.Empty(t, store.values)

	seen, err := guard.CheckAndMarkProcessed(context.Background(), "outbox-publisher", eventID)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestGuardSurfacesStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("redis down")
	guard, err := NewGuard(store, time.Hour)
	require.NoError(t, err)

	_, err = guard.CheckAndMarkProcessed(context.Background(), "outbox-publisher", uuid.New())
	assert.ErrorContains(t, err, "redis down")
}

func TestGuardRejectsBadInput(t *testing.T) {
	_, err := NewGuard(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewGuard(newMemoryStore(), -time.Second)
	assert.Error(t, err)

	guard, err := NewGuard(newMemoryStore(), 0)
	require.NoError(t, err)
	_, err = guard.CheckAndMarkProcessed(context.Background(), "", uuid.New())
	assert.Error(t, err)
	assert.Error(t, guard.Delete(context.Background(), "outbox-publisher", uuid.Nil))
}
