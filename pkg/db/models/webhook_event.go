package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is a processed processor event. EventID is unique; a row exists
// only for events whose dispatch completed.
type WebhookEvent struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	EventID     string          `gorm:"column:event_id;not null;uniqueIndex:ux_webhook_events_event_id"`
	EventKind   string          `gorm:"column:event_kind;not null"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ReceivedAt  time.Time       `gorm:"column:received_at;not null"`
	ProcessedAt time.Time       `gorm:"column:processed_at;autoCreateTime"`
}
