package outbox

import (
	"encoding/json"
	"time"
)

// Actor kinds recorded on emitted events.
const (
	ActorCustomer  = "customer"
	ActorOperator  = "operator"
	ActorProcessor = "processor"
	ActorSystem    = "system"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// SystemActor is attached to events emitted by background work.
func SystemActor() *ActorRef {
	return &ActorRef{Kind: ActorSystem}
}

// ProcessorActor is attached to events triggered by processor webhooks.
func ProcessorActor(eventID string) *ActorRef {
	return &ActorRef{Kind: ActorProcessor, Subject: eventID}
}
