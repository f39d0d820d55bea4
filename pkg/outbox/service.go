package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	"github.com/grundyhq/grundy-backend/pkg/logger"
)

// SchemaVersion is stamped on envelopes that do not set their own.
const SchemaVersion = 1

var (
	ErrTxRequired       = errors.New("outbox: transaction required")
	ErrUnknownEventType = errors.New("outbox: unknown event type")
	ErrMissingAggregate = errors.New("outbox: aggregate id required")
)

// DomainEvent is a state change that downstream consumers learn about
// through Pub/Sub. AggregateID doubles as the ordering key.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type inserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

type Service struct {
	repo inserter
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit writes event to outbox_events through tx, so it is published if and
// only if the surrounding state change commits. The row id is reused as the
// envelope's eventId; consumers dedupe on it.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return ErrTxRequired
	}
	row, err := s.buildRow(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("insert outbox %s: %w", event.EventType, err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"outbox_id":    row.ID.String(),
			"event_type":   row.EventType,
			"aggregate_id": row.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

func (s *Service) buildRow(event DomainEvent) (models.OutboxEvent, error) {
	if !event.EventType.IsValid() {
		return models.OutboxEvent{}, fmt.Errorf("%w %q", ErrUnknownEventType, event.EventType)
	}
	if event.AggregateID == uuid.Nil {
		return models.OutboxEvent{}, ErrMissingAggregate
	}
	aggregateType := event.AggregateType
	if aggregateType == "" {
		aggregateType = enums.AggregateOrder
	}
	if !aggregateType.IsValid() {
		return models.OutboxEvent{}, fmt.Errorf("outbox: unknown aggregate type %q", aggregateType)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal %s data: %w", event.EventType, err)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	version := event.Version
	if version == 0 {
		version = SchemaVersion
	}

	id := uuid.New()
	payload, err := json.Marshal(PayloadEnvelope{
		Version:    version,
		EventID:    id.String(),
		OccurredAt: occurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	})
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: aggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, nil
}
