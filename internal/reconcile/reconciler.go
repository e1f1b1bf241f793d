package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/internal/catalog"
	"github.com/angelmondragon/experiences-backend/internal/ledger"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/metrics"
	"github.com/angelmondragon/experiences-backend/pkg/money"
	"github.com/angelmondragon/experiences-backend/pkg/outbox"
	"github.com/angelmondragon/experiences-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/experiences-backend/pkg/retry"
)

const (
	DerivationEventLog = "event_log"
	DerivationCounter  = "counter"

	outcomeMirrored = "mirrored"
	outcomeDegraded = "degraded"
	outcomeFailed   = "unresolved"

	hostRole = "host"
)

// ErrIDUnresolved means the confirmed create could not be tied to a ledger id.
var ErrIDUnresolved = errors.New("ledger experience id could not be derived")

// IDSource is the read side of the ledger the reconciler needs.
type IDSource interface {
	ExperienceIDFromReceipt(receipt *types.Receipt) (*big.Int, bool)
	ReadNextExperienceID(ctx context.Context) (*big.Int, error)
}

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Draft is the off-chain description of the experience that was just created.
type Draft struct {
	Creator          common.Address
	WalletAddress    common.Address
	Title            string
	Description      string
	Location         string
	City             string
	Price            *big.Int
	MaxParticipants  int64
	ScheduledAt      time.Time
	PaymentStructure ledger.PaymentStructure
}

// Input is a confirmed create receipt plus the draft it was submitted from.
type Input struct {
	Receipt *types.Receipt
	Draft   Draft
}

// Result describes a reconciliation. A non-nil Cause means the ledger id was
// derived but the mirror or its event could not be written.
type Result struct {
	ExperienceID *big.Int
	Derivation   string
	Mirror       *models.ExperienceMirror
	StepComplete bool
	Cause        error
}

// Degraded reports whether enrichment failed after the id was derived.
func (r *Result) Degraded() bool {
	return r != nil && r.Cause != nil
}

// Config tunes id derivation.
type Config struct {
	SettleDelay     time.Duration
	CounterFallback bool
	Decimals        int32
}

// Params wires the reconciler.
type Params struct {
	IDs     IDSource
	Store   catalog.Store
	Tx      TxRunner
	Emitter outbox.Emitter
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
	Config  Config
	Sleep   func(ctx context.Context, d time.Duration) error
}

// Reconciler derives the ledger id of a confirmed create and mirrors it into
// the catalog.
type Reconciler struct {
	ids     IDSource
	store   catalog.Store
	tx      TxRunner
	emitter outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewReconciler(p Params) (*Reconciler, error) {
	if p.IDs == nil {
		return nil, fmt.Errorf("ledger id source required")
	}
	if p.Store == nil {
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
	if p.Config.Decimals == 0 {
		p.Config.Decimals = money.LedgerDecimals
	}
	if p.Sleep == nil {
		p.Sleep = retry.Sleep
	}
	return &Reconciler{
		ids:     p.IDs,
		store:   p.Store,
		tx:      p.Tx,
		emitter: p.Emitter,
		logg:    p.Logger,
		metrics: p.Metrics,
		cfg:     p.Config,
		sleep:   p.Sleep,
	}, nil
}

// Reconcile returns an error only when no ledger id can be derived. Mirror and
// outbox failures are reported through Result.Cause.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) (*Result, error) {
	if in.Receipt == nil {
		return nil, fmt.Errorf("confirmed receipt required")
	}
	txHash := in.Receipt.TxHash.Hex()
	ctx = r.logg.WithTxHash(ctx, txHash)

	id, derivation, err := r.deriveID(ctx, in.Receipt)
	if err != nil {
		r.metrics.IncReconcile(derivation, outcomeFailed)
		r.logg.Error(ctx, "ledger write is final but experience id is unresolved", err)
		return nil, err
	}
	ctx = r.logg.WithExperienceID(ctx, id.String())

	result := &Result{ExperienceID: id, Derivation: derivation, StepComplete: true}
	mirror := r.buildMirror(id, txHash, in.Draft)
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		stored, err := r.store.WithTx(tx).Upsert(ctx, mirror)
		if err != nil {
			return fmt.Errorf("upsert mirror: %w", err)
		}
		result.Mirror = stored
		return r.emitter.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventExperienceMirrored,
			AggregateType: enums.AggregateExperience,
			AggregateID:   id.String(),
			Actor:         &outbox.ActorRef{Account: strings.ToLower(in.Draft.Creator.Hex()), Role: hostRole},
			Data: payloads.ExperienceMirroredEvent{
				MirrorID:               stored.ID,
				BlockchainExperienceID: stored.BlockchainExperienceID,
				TransactionHash:        stored.TransactionHash,
				Creator:                stored.Creator,
				Title:                  stored.Title,
				City:                   stored.City,
				Status:                 stored.Status,
				Derivation:             derivation,
			},
		})
	})
	if err != nil {
		result.Mirror = nil
		result.Cause = err
		r.metrics.IncReconcile(derivation, outcomeDegraded)
		r.logg.Error(ctx, "catalog mirror skipped after confirmed create", err)
		return result, nil
	}

	r.metrics.IncReconcile(derivation, outcomeMirrored)
	r.logg.Info(r.logg.WithField(ctx, "derivation", derivation), "experience mirrored")
	return result, nil
}

func (r *Reconciler) deriveID(ctx context.Context, receipt *types.Receipt) (*big.Int, string, error) {
	if id, ok := r.ids.ExperienceIDFromReceipt(receipt); ok {
		return id, DerivationEventLog, nil
	}
	if !r.cfg.CounterFallback {
		return nil, DerivationEventLog, fmt.Errorf("%w: no ExperienceCreated log in receipt", ErrIDUnresolved)
	}

	// The counter can move if another create lands in the same window.
	if err := r.sleep(ctx, r.cfg.SettleDelay); err != nil {
		return nil, DerivationCounter, fmt.Errorf("%w: %v", ErrIDUnresolved, err)
	}
	next, err := r.ids.ReadNextExperienceID(ctx)
	if err != nil {
		return nil, DerivationCounter, fmt.Errorf("%w: read next id: %v", ErrIDUnresolved, err)
	}
	if next == nil || next.Sign() <= 0 {
		return nil, DerivationCounter, fmt.Errorf("%w: next id counter is %v", ErrIDUnresolved, next)
	}
	id := new(big.Int).Sub(next, big.NewInt(1))
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"derivation": DerivationCounter,
		"next_id":    next.String(),
		"derived_id": id.String(),
	}), "experience id derived from counter; concurrent creates may be misattributed")
	return id, DerivationCounter, nil
}

func (r *Reconciler) buildMirror(id *big.Int, txHash string, d Draft) *models.ExperienceMirror {
	price := d.Price
	if price == nil {
		price = new(big.Int)
	}
	return &models.ExperienceMirror{
		BlockchainExperienceID: id.String(),
		TransactionHash:        txHash,
		Creator:                strings.ToLower(d.Creator.Hex()),
		WalletAddress:          strings.ToLower(d.WalletAddress.Hex()),
		Title:                  strings.TrimSpace(d.Title),
		Description:            strings.TrimSpace(d.Description),
		Location:               strings.TrimSpace(d.Location),
		City:                   strings.TrimSpace(d.City),
		PriceWei:               price.String(),
		PriceDisplay:           money.Format(price, r.cfg.Decimals),
		MaxParticipants:        d.MaxParticipants,
		Status:                 enums.ExperienceStatusActive,
		ScheduledAt:            d.ScheduledAt.UTC(),
		PaymentAdvance:         d.PaymentStructure.Advance,
		PaymentCheckin:         d.PaymentStructure.Checkin,
		PaymentMidExperience:   d.PaymentStructure.MidExperience,
		PaymentCompletion:      d.PaymentStructure.Completion,
	}
}
