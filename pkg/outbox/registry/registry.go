// Package registry maps outbox event types to their Pub/Sub topic and payload
// schema, and decodes stored rows for the publisher.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/grundyhq/grundy-backend/pkg/config"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	"github.com/grundyhq/grundy-backend/pkg/outbox"
	"github.com/grundyhq/grundy-backend/pkg/outbox/payloads"
)

// EventDescriptor is the routing entry of one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable outbox row"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func decodeAs[T any](data json.RawMessage) (any, error) {
	payload := new(T)
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// NewEventRegistry routes customer-facing order events to the notification
// topic, money movements to the payments topic and operator alerts to the
// alerts topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := []struct{ name, value string }{
		{"notification", cfg.NotificationTopic},
		{"payments", cfg.PaymentsTopic},
		{"alerts", cfg.AlertsTopic},
	}
	var missing error
	for _, topic := range topics {
		if topic.value == "" {
			missing = multierr.Append(missing, fmt.Errorf("%s topic is required", topic.name))
		}
	}
	if missing != nil {
		return nil, missing
	}

	order, payout := enums.AggregateOrder, enums.AggregatePayout
	descriptors := []EventDescriptor{
		{enums.EventOrderCreated, order, cfg.NotificationTopic, decodeAs[payloads.OrderEvent]},
		{enums.EventPaymentConfirmed, order, cfg.NotificationTopic, decodeAs[payloads.OrderEvent]},
		{enums.EventPaymentFailed, order, cfg.NotificationTopic, decodeAs[payloads.OrderEvent]},
		{enums.EventOrderCancelled, order, cfg.NotificationTopic, decodeAs[payloads.OrderEvent]},
		{enums.EventDeliveryUpdated, order, cfg.NotificationTopic, decodeAs[payloads.DeliveryEvent]},
		{enums.EventRefundScheduled, enums.AggregateRefund, cfg.PaymentsTopic, decodeAs[payloads.RefundScheduledEvent]},
		{enums.EventPayoutCompleted, payout, cfg.PaymentsTopic, decodeAs[payloads.PayoutEvent]},
		{enums.EventPayoutFailedAlert, payout, cfg.AlertsTopic, decodeAs[payloads.PayoutEvent]},
		{enums.EventAmountDiscrepancy, order, cfg.AlertsTopic, decodeAs[payloads.AmountDiscrepancyAlert]},
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Rows written by a newer schema version get a plain error so they are
// retried once this publisher is upgraded; every other failure is
// non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("%s: aggregate %s, want %s", event.EventType, event.AggregateType, desc.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: missing aggregate_id", event.EventType))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if envelope.Version > outbox.SchemaVersion {
		return nil, fmt.Errorf("%s: envelope version %d is newer than supported %d", event.EventType, envelope.Version, outbox.SchemaVersion)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("%s: payload missing", event.EventType))
	}

	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
