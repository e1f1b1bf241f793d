package booking

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/internal/catalog"
	"github.com/angelmondragon/experiences-backend/internal/ledger"
	"github.com/angelmondragon/experiences-backend/internal/submission"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/experiences-backend/pkg/errors"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/outbox"
	"github.com/angelmondragon/experiences-backend/pkg/outbox/payloads"
)

// Booker submits the ledger booking.
type Booker interface {
	BookExperience(ctx context.Context, signer *ledger.Signer, params submission.BookExperienceParams) (*submission.BookConfirmation, error)
}

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Experience is the catalog view a participant books against.
type Experience struct {
	MirrorID         uuid.UUID
	LedgerID         string
	Title            string
	Price            *big.Int
	PaymentStructure ledger.PaymentStructure
}

// ExperienceFromMirror builds the bookable view of a catalog row.
func ExperienceFromMirror(m *models.ExperienceMirror) (Experience, error) {
	if m == nil {
		return Experience{}, errors.New("experience mirror required")
	}
	price, ok := new(big.Int).SetString(m.PriceWei, 10)
	if !ok {
		return Experience{}, fmt.Errorf("invalid mirror price %q", m.PriceWei)
	}
	return Experience{
		MirrorID: m.ID,
		LedgerID: m.BlockchainExperienceID,
		Title:    m.Title,
		Price:    price,
		PaymentStructure: ledger.PaymentStructure{
			Advance:       m.PaymentAdvance,
			Checkin:       m.PaymentCheckin,
			MidExperience: m.PaymentMidExperience,
			Completion:    m.PaymentCompletion,
		},
	}, nil
}

// JoinResult carries the session after a join and the ledger confirmation
// when the booking went through.
type JoinResult struct {
	Snapshot     Snapshot
	Confirmation *submission.BookConfirmation
	// MirrorErr is set when the catalog or outbox write failed after a
	// confirmed booking. The booking itself stands.
	MirrorErr error
}

type FlowParams struct {
	Sessions SessionStore
	Booker   Booker
	Catalog  catalog.Store
	Tx       TxRunner
	Emitter  outbox.Emitter
	Logger   *logger.Logger
	Now      func() time.Time
}

// Flow is the effect layer around Transition.
type Flow struct {
	sessions SessionStore
	booker   Booker
	catalog  catalog.Store
	tx       TxRunner
	emitter  outbox.Emitter
	logg     *logger.Logger
	now      func() time.Time
}

func NewFlow(p FlowParams) (*Flow, error) {
	if p.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if p.Booker == nil {
		return nil, fmt.Errorf("booker required")
	}
	if p.Catalog == nil {
		return nil, fmt.Errorf("catalog store required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Flow{
		sessions: p.Sessions,
		booker:   p.Booker,
		catalog:  p.Catalog,
		tx:       p.Tx,
		emitter:  p.Emitter,
		logg:     p.Logger,
		now:      p.Now,
	}, nil
}

// SessionKey returns the session key for a participant of an experience.
func (f *Flow) SessionKey(exp Experience, participant string) string {
	return f.sessions.Key(exp.MirrorID.String(), strings.ToLower(participant))
}

// Load returns the stored snapshot or a fresh one at the details step.
func (f *Flow) Load(ctx context.Context, sessionKey string, exp Experience) (Snapshot, error) {
	stored, err := f.sessions.Load(ctx, sessionKey)
	if err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking session")
	}
	snap := Snapshot{Step: enums.BookingStepDetails}
	if stored != nil {
		snap = *stored
	}
	snap.ExperienceID = exp.MirrorID.String()
	snap.LedgerID = exp.LedgerID
	return snap, nil
}

// Apply runs a side-effect free event (interest, start join, check-in)
// against the stored session.
func (f *Flow) Apply(ctx context.Context, sessionKey string, exp Experience, ev Event) (Snapshot, error) {
	snap, err := f.Load(ctx, sessionKey, exp)
	if err != nil {
		return Snapshot{}, err
	}
	next, err := Transition(snap, ev)
	if err != nil {
		return snap, err
	}
	if err := f.save(ctx, sessionKey, next); err != nil {
		return snap, err
	}
	return next, nil
}

// CheckIn moves a confirmed booking to checked in.
func (f *Flow) CheckIn(ctx context.Context, sessionKey string, exp Experience) (Snapshot, error) {
	return f.Apply(ctx, sessionKey, exp, Event{Kind: EventCheckinConfirmed})
}

// Join books the signer onto exp. Guard failures return before any ledger
// call; ledger failures are recorded on the session and returned.
func (f *Flow) Join(ctx context.Context, sessionKey string, signer *ledger.Signer, exp Experience, nickname string) (*JoinResult, error) {
	ctx = f.logg.WithExperienceID(ctx, exp.LedgerID)
	participant := ""
	if signer != nil {
		participant = strings.ToLower(signer.From.Hex())
		ctx = f.logg.WithAccount(ctx, participant)
	}

	snap, err := f.Load(ctx, sessionKey, exp)
	if err != nil {
		return nil, err
	}
	if snap.Step == enums.BookingStepDetails || snap.Step == enums.BookingStepInterest {
		if snap, err = Transition(snap, Event{Kind: EventStartJoin}); err != nil {
			return nil, err
		}
	}

	snap, err = Transition(snap, Event{
		Kind:        EventSubmitJoin,
		Nickname:    nickname,
		Participant: participant,
		Payment:     exp.Price,
	})
	if err != nil {
		return &JoinResult{Snapshot: snap}, err
	}
	if err := f.save(ctx, sessionKey, snap); err != nil {
		return nil, err
	}

	// The ledger write may be final from here on; keep bookkeeping alive
	// even if the caller goes away.
	bookCtx := ctx
	ctx = context.WithoutCancel(ctx)

	confirmation, bookErr := f.booker.BookExperience(bookCtx, signer, submission.BookExperienceParams{
		ExperienceID: exp.LedgerID,
		Payment:      exp.Price,
	})
	if bookErr != nil {
		return f.fail(ctx, sessionKey, snap, bookErr)
	}

	confirmed := confirmation.Receipt != nil && confirmation.Receipt.Status == types.ReceiptStatusSuccessful
	next, err := Transition(snap, Event{
		Kind:      EventBookingConfirmed,
		TxHash:    confirmation.TxHash,
		Confirmed: confirmed,
	})
	if err != nil {
		return f.fail(ctx, sessionKey, snap, err)
	}
	snap = next
	if err := f.save(ctx, sessionKey, snap); err != nil {
		f.logg.Error(ctx, "booking confirmed but session save failed", err)
	}

	result := &JoinResult{Snapshot: snap, Confirmation: confirmation}
	result.MirrorErr = f.recordParticipant(ctx, exp, snap, confirmation)
	f.logg.Info(f.logg.WithTxHash(ctx, confirmation.TxHash), "booking confirmed")
	return result, nil
}

func (f *Flow) fail(ctx context.Context, sessionKey string, snap Snapshot, cause error) (*JoinResult, error) {
	msg := cause.Error()
	if typed, ok := submission.AsError(cause); ok {
		msg = typed.UserMessage()
	}
	failed, err := Transition(snap, Event{Kind: EventBookingFailed, Err: msg})
	if err != nil {
		return &JoinResult{Snapshot: snap}, cause
	}
	if err := f.save(ctx, sessionKey, failed); err != nil {
		f.logg.Error(ctx, "booking session save failed", err)
	}
	return &JoinResult{Snapshot: failed}, cause
}

func (f *Flow) recordParticipant(ctx context.Context, exp Experience, snap Snapshot, confirmation *submission.BookConfirmation) error {
	now := f.now().UTC()
	participant := strings.ToLower(confirmation.Participant)
	err := f.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if exp.MirrorID != uuid.Nil {
			if _, err := f.catalog.WithTx(tx).AppendParticipant(ctx, exp.MirrorID, models.MirrorParticipant{
				Address:  participant,
				Nickname: snap.Nickname,
				TxHash:   confirmation.TxHash,
				JoinedAt: now,
			}); err != nil {
				return fmt.Errorf("append participant: %w", err)
			}
		}
		payment := ""
		if confirmation.Payment != nil {
			payment = confirmation.Payment.String()
		}
		return f.emitter.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingConfirmed,
			AggregateType: enums.AggregateBooking,
			AggregateID:   exp.LedgerID + ":" + participant,
			Actor:         &outbox.ActorRef{Account: participant, Role: "participant"},
			Data: payloads.BookingConfirmedEvent{
				BlockchainExperienceID: exp.LedgerID,
				MirrorID:               exp.MirrorID,
				Participant:            participant,
				Nickname:               snap.Nickname,
				TransactionHash:        confirmation.TxHash,
				PaymentWei:             payment,
				ConfirmedAt:            now,
			},
		})
	})
	if err != nil {
		f.logg.Error(ctx, "booking mirror update failed", err)
	}
	return err
}

func (f *Flow) save(ctx context.Context, key string, snap Snapshot) error {
	if err := f.sessions.Save(ctx, key, snap); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save booking session")
	}
	return nil
}
