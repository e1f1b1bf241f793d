package reconcile

import (
	"context"
	"errors"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/internal/catalog"
	"github.com/angelmondragon/experiences-backend/internal/ledger"
	"github.com/angelmondragon/experiences-backend/pkg/db"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/outbox"
)

type fakeIDs struct {
	fromLog   *big.Int
	next      *big.Int
	nextErr   error
	nextCalls int
}

func (f *fakeIDs) ExperienceIDFromReceipt(*types.Receipt) (*big.Int, bool) {
	if f.fromLog == nil {
		return nil, false
	}
	return f.fromLog, true
}

func (f *fakeIDs) ReadNextExperienceID(context.Context) (*big.Int, error) {
	f.nextCalls++
	return f.next, f.nextErr
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func (failingEmitter) EmitIfNotExists(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

type harness struct {
	conn   *gorm.DB
	store  catalog.Store
	outbox *outbox.Repository
	sleeps []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.ExperienceMirror{}, &models.OutboxEvent{}))
	store, err := catalog.NewStore(conn)
	require.NoError(t, err)
	return &harness{conn: conn, store: store, outbox: outbox.NewRepository(conn)}
}

func (h *harness) reconciler(t *testing.T, ids IDSource, emitter outbox.Emitter, fallback bool) *Reconciler {
	t.Helper()
	if emitter == nil {
		emitter = outbox.NewService(h.outbox, nil)
	}
	r, err := NewReconciler(Params{
		IDs:     ids,
		Store:   h.store,
		Tx:      db.Wrap(h.conn),
		Emitter: emitter,
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Config:  Config{SettleDelay: 2 * time.Second, CounterFallback: fallback},
		Sleep: func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		},
	})
	require.NoError(t, err)
	return r
}

func testInput() Input {
	return Input{
		Receipt: &types.Receipt{TxHash: common.HexToHash("0xfeed"), Status: types.ReceiptStatusSuccessful},
		Draft: Draft{
			Creator:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
			WalletAddress:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Title:            " Sunset kayak ",
			City:             "Lisbon",
			Price:            big.NewInt(50_000_000_000_000_000),
			MaxParticipants:  8,
			ScheduledAt:      time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC),
			PaymentStructure: ledger.FullUpfront,
		},
	}
}

func TestReconcileUsesEventLogFirst(t *testing.T) {
	h := newHarness(t)
	ids := &fakeIDs{fromLog: big.NewInt(42), next: big.NewInt(99)}
	r := h.reconciler(t, ids, nil, true)

	result, err := r.Reconcile(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, DerivationEventLog, result.Derivation)
	assert.Equal(t, "42", result.ExperienceID.String())
	assert.True(t, result.StepComplete)
	assert.False(t, result.Degraded())
	assert.Zero(t, ids.nextCalls, "counter must not be read when the log is present")
	assert.Empty(t, h.sleeps)

	require.NotNil(t, result.Mirror)
	assert.Equal(t, "42", result.Mirror.BlockchainExperienceID)
	assert.Equal(t, common.HexToHash("0xfeed").Hex(), result.Mirror.TransactionHash)
	assert.Equal(t, "Sunset kayak", result.Mirror.Title)
	assert.Equal(t, "0.05", result.Mirror.PriceDisplay)
	assert.Equal(t, "50000000000000000", result.Mirror.PriceWei)
	assert.Equal(t, enums.ExperienceStatusActive, result.Mirror.Status)

	rows, err := h.outbox.FetchUnpublishedForPublish(h.conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventExperienceMirrored, rows[0].EventType)
	assert.Equal(t, "42", rows[0].AggregateID)
}

func TestReconcileFallsBackToCounterAfterSettleDelay(t *testing.T) {
	h := newHarness(t)
	ids := &fakeIDs{next: big.NewInt(8)}
	r := h.reconciler(t, ids, nil, true)

	result, err := r.Reconcile(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, DerivationCounter, result.Derivation)
	assert.Equal(t, "7", result.ExperienceID.String())
	assert.Equal(t, []time.Duration{2 * time.Second}, h.sleeps)

	stored, err := h.store.GetByLedgerID(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, result.Mirror.ID, stored.ID)
}

func TestReconcileNeverReturnsEmptyID(t *testing.T) {
	cases := map[string]struct {
		ids      *fakeIDs
		fallback bool
	}{
		"no log and fallback disabled": {ids: &fakeIDs{next: big.NewInt(8)}, fallback: false},
		"counter read fails":           {ids: &fakeIDs{nextErr: errors.New("429 too many requests")}, fallback: true},
		"counter still zero":           {ids: &fakeIDs{next: big.NewInt(0)}, fallback: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			result, err := h.reconciler(t, tc.ids, nil, tc.fallback).Reconcile(context.Background(), testInput())
			require.ErrorIs(t, err, ErrIDUnresolved)
			assert.Nil(t, result)
		})
	}
}

func TestReconcileDegradesWhenOutboxFails(t *testing.T) {
	h := newHarness(t)
	r := h.reconciler(t, &fakeIDs{fromLog: big.NewInt(3)}, failingEmitter{}, true)

	result, err := r.Reconcile(context.Background(), testInput())
	require.NoError(t, err)
	assert.True(t, result.Degraded())
	assert.ErrorContains(t, result.Cause, "outbox unavailable")
	assert.Equal(t, "3", result.ExperienceID.String())
	assert.True(t, result.StepComplete)
	assert.Nil(t, result.Mirror)

	_, err = h.store.GetByLedgerID(context.Background(), "3")
	assert.ErrorIs(t, err, catalog.ErrNotFound, "mirror write rolls back with its event")
}

func TestReconcileIsRepeatable(t *testing.T) {
	h := newHarness(t)
	r := h.reconciler(t, &fakeIDs{fromLog: big.NewInt(5)}, nil, true)

	first, err := r.Reconcile(context.Background(), testInput())
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, first.Mirror.ID, second.Mirror.ID)

	rows, err := h.outbox.FetchUnpublishedForPublish(h.conn, 10, 5)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReconcileRequiresReceipt(t *testing.T) {
	h := newHarness(t)
	_, err := h.reconciler(t, &fakeIDs{}, nil, true).Reconcile(context.Background(), Input{})
	assert.Error(t, err)
}
