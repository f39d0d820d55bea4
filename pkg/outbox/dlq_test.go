package outbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/db/sqlitetest"
	"github.com/grundyhq/grundy-backend/pkg/enums"
)

func TestDLQInsertTruncatesMessage(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewDLQRepository(conn)
	long := strings.Repeat("x", maxErrorLen+50)
	eventID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventPayoutFailedAlert,
			AggregateType: enums.AggregatePayout,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{"event_id":"x"}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:  &long,
		})
	})
	require.NoError(t, err)

	var stored models.OutboxDLQ
	require.NoError(t, conn.Where("event_id = ?", eventID).First(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.Len(t, *stored.ErrorMessage, maxErrorLen)
	assert.False(t, stored.FailedAt.IsZero())
}

func TestDLQInsertRequiresTransaction(t *testing.T) {
	repo := NewDLQRepository(nil)
	assert.ErrorIs(t, repo.InsertTx(nil, models.OutboxDLQ{}), ErrTxRequired)
}

func TestDLQInsertRejectsUnknownReason(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewDLQRepository(conn)
	err := conn.Transaction(func(tx *gorm.DB) error {
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:     uuid.New(),
			ErrorReason: enums.OutboxDLQErrorReason("gave_up"),
		})
	})
	assert.ErrorIs(t, err, ErrInvalidDLQReason)
}

func TestDLQListForAggregateNewestFirst(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewDLQRepository(conn)
	orderID := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := conn.Transaction(func(tx *gorm.DB) error {
		for i, eventType := range []enums.OutboxEventType{enums.EventOrderCreated, enums.EventPaymentConfirmed} {
			if err := repo.InsertTx(tx, models.OutboxDLQ{
				EventID:       uuid.New(),
				EventType:     eventType,
				AggregateType: enums.AggregateOrder,
				AggregateID:   orderID,
				Payload:       []byte(`{}`),
				ErrorReason:   enums.OutboxDLQReasonNonRetryable,
				FailedAt:      base.Add(time.Duration(i) * time.Minute),
			}); err != nil {
				return err
			}
		}
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       uuid.New(),
			EventType:     enums.EventPayoutCompleted,
			AggregateType: enums.AggregatePayout,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListForAggregate(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.EventPaymentConfirmed, rows[0].EventType)
	assert.Equal(t, enums.EventOrderCreated, rows[1].EventType)
}

func TestClipKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 5))
	assert.Equal(t, "ab", clip("ab€", 4))
	assert.Equal(t, "ab€", clip("ab€d", 5))
}
