package refunds

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
)

const uniqueOrderConstraint = "ux_refunds_order_id"

// Repository persists refunds.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds refunds to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the refund. A second refund for the same order fails on
// ux_refunds_order_id.
func (r *Repository) Create(ctx context.Context, refund *models.Refund) error {
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(refund).Error
}

// FindByOrderReference loads the refund for an order.
func (r *Repository) FindByOrderReference(ctx context.Context, reference string) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).
		Where("order_reference = ?", reference).
		First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

// CountByOrder reports how many refunds exist for an order.
func (r *Repository) CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Refund{}).Where("order_id = ?", orderID).Count(&count).Error
	return count, err
}

// Transition moves the refund to status `to` only while it is in one of
// `from`. The bool reports whether a row changed.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from []enums.RefundStatus, to enums.RefundStatus, processorRef *string) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if processorRef != nil {
		updates["processor_reference"] = *processorRef
	}
	res := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// TransactionIDFor returns the processor transaction id recorded on the order.
func (r *Repository) TransactionIDFor(ctx context.Context, orderID uuid.UUID) (string, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Select("transaction_id").
		Where("id = ?", orderID).
		First(&order).Error; err != nil {
		return "", err
	}
	if order.Payment.TransactionID == nil {
		return "", nil
	}
	return *order.Payment.TransactionID, nil
}
