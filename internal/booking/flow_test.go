package booking

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
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
	"github.com/angelmondragon/experiences-backend/internal/submission"
	"github.com/angelmondragon/experiences-backend/pkg/db"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/outbox"
	"github.com/angelmondragon/experiences-backend/pkg/redis"
)

type memoryKV struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.ErrNotFound
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	case string:
		m.values[key] = v
	default:
		return errors.New("unsupported value")
	}
	m.ttls[key] = ttl
	return nil
}

func (m *memoryKV) BookingSessionKey(experienceID, participant string) string {
	return "booking:" + experienceID + ":" + participant
}

type fakeBooker struct {
	calls int
	err   error
	fn    func(params submission.BookExperienceParams) (*submission.BookConfirmation, error)
}

func (f *fakeBooker) BookExperience(_ context.Context, signer *ledger.Signer, params submission.BookExperienceParams) (*submission.BookConfirmation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.fn != nil {
		return f.fn(params)
	}
	id, _ := new(big.Int).SetString(params.ExperienceID, 10)
	return &submission.BookConfirmation{
		ExperienceID: id,
		Participant:  signer.From.Hex(),
		Payment:      params.Payment,
		TxHash:       "0xbook",
		Receipt:      &types.Receipt{Status: types.ReceiptStatusSuccessful},
		Attempts:     1,
	}, nil
}

type flowHarness struct {
	conn   *gorm.DB
	kv     *memoryKV
	booker *fakeBooker
	flow   *Flow
	mirror *models.ExperienceMirror
}

func newFlowHarness(t *testing.T, ledgerID string) *flowHarness {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.ExperienceMirror{}, &models.OutboxEvent{}))

	mirror := &models.ExperienceMirror{
		BlockchainExperienceID: ledgerID,
		TransactionHash:        "0xcreate",
		Creator:                "0x1111111111111111111111111111111111111111",
		Title:                  "Sunset kayak",
		City:                   "Lisbon",
		PriceWei:               "50000000000000000",
		PriceDisplay:           "0.05",
		MaxParticipants:        2,
		Status:                 enums.ExperienceStatusActive,
		ScheduledAt:            time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC),
		PaymentAdvance:         100,
	}
	require.NoError(t, conn.Create(mirror).Error)

	store, err := catalog.NewStore(conn)
	require.NoError(t, err)
	kv := newMemoryKV()
	sessions, err := NewSessionStore(kv, time.Hour)
	require.NoError(t, err)
	booker := &fakeBooker{}

	flow, err := NewFlow(FlowParams{
		Sessions: sessions,
		Booker:   booker,
		Catalog:  store,
		Tx:       db.Wrap(conn),
		Emitter:  outbox.NewService(outbox.NewRepository(conn), nil),
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Now:      func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return &flowHarness{conn: conn, kv: kv, booker: booker, flow: flow, mirror: mirror}
}

func (h *flowHarness) experience(t *testing.T) Experience {
	t.Helper()
	exp, err := ExperienceFromMirror(h.mirror)
	require.NoError(t, err)
	return exp
}

func testSigner() *ledger.Signer {
	return &ledger.Signer{From: common.HexToAddress("0x3333333333333333333333333333333333333333")}
}

func TestJoinConfirmsAndMirrorsParticipant(t *testing.T) {
	h := newFlowHarness(t, "7")
	exp := h.experience(t)
	signer := testSigner()
	key := h.flow.SessionKey(exp, signer.From.Hex())
	ctx := context.Background()

	result, err := h.flow.Join(ctx, key, signer, exp, "Kai")
	require.NoError(t, err)
	require.NoError(t, result.MirrorErr)
	assert.Equal(t, enums.BookingStepCheckin, result.Snapshot.Step)
	assert.Equal(t, "0xbook", result.Snapshot.ConfirmedTxHash)
	assert.False(t, result.Snapshot.InFlight)
	assert.Equal(t, 1, h.booker.calls)
	assert.Equal(t, time.Hour, h.kv.ttls[key])

	var mirror models.ExperienceMirror
	require.NoError(t, h.conn.First(&mirror, "id = ?", h.mirror.ID).Error)
	require.Len(t, mirror.Participants, 1)
	assert.Equal(t, "0x3333333333333333333333333333333333333333", mirror.Participants[0].Address)
	assert.Equal(t, "Kai", mirror.Participants[0].Nickname)
	assert.EqualValues(t, 1, mirror.CurrentParticipants)

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Where("event_type = ?", enums.EventBookingConfirmed).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, "7:0x3333333333333333333333333333333333333333", events[0].AggregateID)

	stored, err := h.flow.Load(ctx, key, exp)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStepCheckin, stored.Step)

	checked, err := h.flow.CheckIn(ctx, key, exp)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStepCheckedIn, checked.Step)
}

func TestJoinRejectsDemoExperienceWithoutLedgerCall(t *testing.T) {
	h := newFlowHarness(t, "")
	exp := h.experience(t)
	signer := testSigner()

	_, err := h.flow.Join(context.Background(), h.flow.SessionKey(exp, signer.From.Hex()), signer, exp, "Kai")
	require.ErrorIs(t, err, submission.ErrDemoExperience)
	assert.Zero(t, h.booker.calls)
}

func TestJoinRequiresNickname(t *testing.T) {
	h := newFlowHarness(t, "7")
	exp := h.experience(t)
	signer := testSigner()

	_, err := h.flow.Join(context.Background(), h.flow.SessionKey(exp, signer.From.Hex()), signer, exp, " ")
	require.ErrorIs(t, err, ErrNicknameRequired)
	assert.Zero(t, h.booker.calls)
}

func TestJoinFailureReturnsToJoinWithLastError(t *testing.T) {
	h := newFlowHarness(t, "7")
	h.booker.err = &submission.Error{Class: enums.TxErrorRateLimited, Op: enums.TxOperationBookExperience, Attempts: 3, Err: errors.New("429 too many requests")}
	exp := h.experience(t)
	signer := testSigner()
	key := h.flow.SessionKey(exp, signer.From.Hex())

	result, err := h.flow.Join(context.Background(), key, signer, exp, "Kai")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, enums.BookingStepJoin, result.Snapshot.Step)
	assert.False(t, result.Snapshot.InFlight)
	require.NotNil(t, result.Snapshot.Attempt)
	assert.NotEmpty(t, result.Snapshot.Attempt.LastError)

	h.booker.err = nil
	again, err := h.flow.Join(context.Background(), key, signer, exp, "Kai")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Snapshot.Attempt.AttemptCount)
	assert.Equal(t, enums.BookingStepCheckin, again.Snapshot.Step)
}

func TestJoinRejectsConcurrentSubmission(t *testing.T) {
	h := newFlowHarness(t, "7")
	exp := h.experience(t)
	signer := testSigner()
	key := h.flow.SessionKey(exp, signer.From.Hex())

	var nested error
	h.booker.fn = func(params submission.BookExperienceParams) (*submission.BookConfirmation, error) {
		_, nested = h.flow.Join(context.Background(), key, signer, exp, "Kai")
		return nil, errors.New("stop")
	}

	_, err := h.flow.Join(context.Background(), key, signer, exp, "Kai")
	require.Error(t, err)
	assert.ErrorIs(t, nested, submission.ErrInFlight)
	assert.Equal(t, 1, h.booker.calls)
}

func TestJoinUnconfirmedReceiptStaysInJoin(t *testing.T) {
	h := newFlowHarness(t, "7")
	h.booker.fn = func(params submission.BookExperienceParams) (*submission.BookConfirmation, error) {
		return &submission.BookConfirmation{TxHash: "0xbook", Receipt: &types.Receipt{Status: types.ReceiptStatusFailed}}, nil
	}
	exp := h.experience(t)
	signer := testSigner()

	result, err := h.flow.Join(context.Background(), h.flow.SessionKey(exp, signer.From.Hex()), signer, exp, "Kai")
	require.ErrorIs(t, err, ErrUnconfirmed)
	assert.Equal(t, enums.BookingStepJoin, result.Snapshot.Step)

	var count int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCheckInBeforeBookingIsRejected(t *testing.T) {
	h := newFlowHarness(t, "7")
	exp := h.experience(t)

	_, err := h.flow.CheckIn(context.Background(), h.flow.SessionKey(exp, "0xabc"), exp)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApplyInterestRoundTrip(t *testing.T) {
	h := newFlowHarness(t, "7")
	exp := h.experience(t)
	key := h.flow.SessionKey(exp, "0xabc")
	ctx := context.Background()

	s, err := h.flow.Apply(ctx, key, exp, Event{Kind: EventShowInterest})
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStepInterest, s.Step)

	s, err = h.flow.Apply(ctx, key, exp, Event{Kind: EventWithdrawInterest})
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStepDetails, s.Step)
}
