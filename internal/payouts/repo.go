package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
)

// Repository updates the payout columns of orders.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the payout repository to db.
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

// FindByReference loads the order a transfer event refers to.
func (r *Repository) FindByReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkCompleted moves a pending or processing payout to completed. A failed
// payout stays failed until an operator resolves it.
func (r *Repository) MarkCompleted(ctx context.Context, orderID uuid.UUID, transferRef string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payout_status IN ?", orderID,
			[]enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusProcessing}).
		Updates(map[string]any{
			"payout_status":         enums.PayoutStatusCompleted,
			"payout_reference":      transferRef,
			"payout_failure_reason": nil,
			"payout_updated_at":     at,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkFailed records a failed transfer. Completed and already failed payouts
// are left alone.
func (r *Repository) MarkFailed(ctx context.Context, orderID uuid.UUID, transferRef, reason string, at time.Time) (bool, error) {
	updates := map[string]any{
		"payout_status":         enums.PayoutStatusFailed,
		"payout_failure_reason": reason,
		"payout_updated_at":     at,
	}
	if transferRef != "" {
		updates["payout_reference"] = transferRef
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payout_status NOT IN ?", orderID,
			[]enums.PayoutStatus{enums.PayoutStatusCompleted, enums.PayoutStatusFailed}).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// ListFailed returns orders whose payout failed, most recent first.
func (r *Repository) ListFailed(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Where("payout_status = ?", enums.PayoutStatusFailed).
		Order("payout_updated_at DESC").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
