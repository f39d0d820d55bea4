package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
)

var ErrInvalidDLQReason = errors.New("outbox: invalid dlq error reason")

// DLQRepository stores the rows the publisher parked.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx writes entry in the publisher's batch transaction, so parking the
// outbox row and recording it commit together.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	switch {
	case tx == nil:
		return ErrTxRequired
	case !entry.ErrorReason.IsValid():
		return fmt.Errorf("%w: %q", ErrInvalidDLQReason, entry.ErrorReason)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	if entry.ErrorMessage != nil {
		msg := clip(*entry.ErrorMessage, maxErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// ListForAggregate returns parked entries of one aggregate, newest first.
// Operators use it to see why an order's notifications never went out.
func (r *DLQRepository) ListForAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxDLQ, error) {
	var rows []models.OutboxDLQ
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("failed_at DESC").
		Find(&rows).Error
	return rows, err
}
