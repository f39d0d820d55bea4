package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/db/sqlitetest"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	"github.com/grundyhq/grundy-backend/pkg/logger"
)

func TestEmitPersistsEnvelope(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.Nop())
	aggregateID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   aggregateID,
			Actor:         SystemActor(),
			Data:          map[string]string{"reference": "GRUNDY_1_abc"},
		})
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublishedForPublish(nil, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, aggregateID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, SchemaVersion, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, ActorSystem, envelope.Actor.Kind)
	assert.JSONEq(t, `{"reference":"GRUNDY_1_abc"}`, string(envelope.Data))
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.Nop())

	_ = conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}))
		return assert.AnError
	})

	rows, err := repo.FetchUnpublishedForPublish(nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	svc := NewService(NewRepository(nil), logger.Nop())
	ctx := context.Background()
	assert.ErrorIs(t, svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventOrderCreated}), ErrTxRequired)

	conn := sqlitetest.Open(t)
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{EventType: "bogus", AggregateID: uuid.New()})
	})
	assert.ErrorIs(t, err, ErrUnknownEventType)

	err = conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{EventType: enums.EventOrderCreated})
	})
	assert.ErrorIs(t, err, ErrMissingAggregate)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	first := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventPaymentFailed, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	require.NoError(t, repo.MarkPublishedTx(conn, first.ID))
	require.NoError(t, repo.MarkFailedTx(conn, second.ID, assert.AnError))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, second.ID, rows[0].ID)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, second.ID, assert.AnError, 3))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)

	count, err := repo.CountByAggregate(conn, string(enums.EventPaymentFailed), second.AggregateID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRepositoryDeleteSettledBefore(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	newEvent := func(createdAt time.Time) models.OutboxEvent {
		return models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: createdAt}
	}
	published, parked, pending, fresh := newEvent(old), newEvent(old), newEvent(old), newEvent(time.Now().UTC())
	for _, event := range []models.OutboxEvent{published, parked, pending, fresh} {
		require.NoError(t, repo.Insert(conn, event))
	}
	require.NoError(t, repo.MarkPublishedTx(conn, published.ID))
	require.NoError(t, repo.MarkPublishedTx(conn, fresh.ID))
	require.NoError(t, repo.MarkTerminalTx(conn, parked.ID, assert.AnError, 5))

	deleted, err := repo.DeleteSettledBefore(context.Background(), time.Now().UTC().Add(-30*24*time.Hour), 5)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pending.ID, rows[0].ID)
}
