// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	"github.com/angelmondragon/experiences-backend/pkg/outbox"
	"github.com/angelmondragon/experiences-backend/pkg/outbox/payloads"
)

// EventDescriptor is the route for one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is a validated outbox row with its decoded payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that can never be published and belongs in
// the DLQ.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(raw json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(raw, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// NewEventRegistry routes experience and wallet events to the experiences
// topic and bookings to their own topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.ExperiencesTopic == "" || cfg.BookingsTopic == "" {
		return nil, errors.New("experiences and bookings topics are required")
	}
	reg := &EventRegistry{routes: map[enums.OutboxEventType]EventDescriptor{}}
	for _, d := range []EventDescriptor{
		route[payloads.ExperienceMirroredEvent](enums.EventExperienceMirrored, enums.AggregateExperience, cfg.ExperiencesTopic),
		route[payloads.WalletProvisionedEvent](enums.EventWalletProvisioned, enums.AggregateWallet, cfg.ExperiencesTopic),
		route[payloads.BookingConfirmedEvent](enums.EventBookingConfirmed, enums.AggregateBooking, cfg.BookingsTopic),
	} {
		reg.routes[d.EventType] = d
	}
	return reg, nil
}

// Resolve validates the row against its route and decodes the payload.
// Every failure is non-retryable: the row will not change on its own.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	case event.AggregateID == "":
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
