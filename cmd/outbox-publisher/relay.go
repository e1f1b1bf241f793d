package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/experiences-backend/pkg/db/models"
	"github.com/angelmondragon/experiences-backend/pkg/enums"
	"github.com/angelmondragon/experiences-backend/pkg/outbox/registry"
)

// relay publishes one row and records the result on it. Only bookkeeping
// failures are returned; publish failures are absorbed into the row state.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	fields := eventFields(event)
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	err = s.publish(ctx, event, resolved)
	var nonRetry registry.NonRetryableError
	switch {
	case err == nil:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	case errors.As(err, &nonRetry):
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	case event.AttemptCount+1 >= s.maxAttempts:
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err), fields)
	}

	fields["attempt_count"] = event.AttemptCount + 1
	fields["error"] = err.Error()
	s.metrics.IncFailed(string(event.EventType))
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed")
	if err := s.repo.MarkFailedTx(tx, event.ID, err); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	s.metrics.IncFailed(string(event.EventType))
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

// publish sends one resolved event. With a guard configured, a row
// already handed to Pub/Sub (row left unmarked by a crash) is not resent.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	if s.guard == nil {
		return s.send(ctx, pub, event, resolved)
	}
	eventID := event.ID
	seen, err := s.guard.CheckAndMarkProcessed(ctx, guardConsumer, eventID)
	if err != nil {
		return fmt.Errorf("publish guard: %w", err)
	}
	if seen {
		s.logg.Warn(s.logg.WithField(ctx, "event_id", eventID.String()), "outbox event already published, marking row")
		return nil
	}
	if err := s.send(ctx, pub, event, resolved); err != nil {
		if delErr := s.guard.Delete(ctx, guardConsumer, eventID); delErr != nil {
			s.logg.Error(ctx, "failed to clear publish guard", delErr)
		}
		return err
	}
	return nil
}

func (s *Service) send(ctx context.Context, pub publisher, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: orderingKey(event),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", resolved.Descriptor.Topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		pub.ResumePublish(msg.OrderingKey)
		return err
	}
	return nil
}

// orderingKey keeps every event of one experience in publish order. Booking
// aggregates are keyed "ledgerID:participant"; wallets by experience id.
func orderingKey(event models.OutboxEvent) string {
	id, _, _ := strings.Cut(event.AggregateID, ":")
	return string(event.AggregateType) + ":" + id
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
