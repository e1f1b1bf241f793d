package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/experiences-backend/pkg/db"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	"github.com/angelmondragon/experiences-backend/pkg/logger"
)

// Dedupe key on (event_type, aggregate_type, aggregate_id).
const uniqueAggregateIndex = "ux_outbox_events_event_aggregate"

var errTxRequired = errors.New("transaction required")

// DomainEvent is what callers hand to Emit. AggregateID is the ledger id for
// experiences, "ledgerID:participant" for bookings, and the experience
// reference for wallets.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Emitter is the write side used by domain services. Rows land in the
// caller's transaction so they commit with the state change they describe.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	envelope, err := newEnvelope(event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}); err != nil {
		return err
	}

	if s.logg != nil && ctx != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
		}), "outbox event queued")
	}
	return nil
}

// EmitIfNotExists queues at most one row per (event type, aggregate). A
// concurrent writer that wins the unique index counts as success.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil || exists {
		return err
	}
	err = s.Emit(ctx, tx, event)
	if dbpkg.IsUniqueViolation(err, uniqueAggregateIndex) {
		return nil
	}
	return err
}

func newEnvelope(event DomainEvent) (PayloadEnvelope, error) {
	if !event.EventType.IsValid() {
		return PayloadEnvelope{}, fmt.Errorf("unknown outbox event type %q", event.EventType)
	}
	if event.AggregateID == "" {
		return PayloadEnvelope{}, errors.New("aggregate id required")
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	env := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = 1
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	return env, nil
}
