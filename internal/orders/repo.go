package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
)

const uniqueTransactionConstraint = "ux_orders_transaction_id"

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Order, error) {
	return r.findOne(ctx, "reference = ?", reference)
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Order, error) {
	return r.findOne(ctx, "transaction_id = ?", transactionID)
}

func (r *repository) FindByTerminalSession(ctx context.Context, sessionID string) (*models.Order, error) {
	return r.findOne(ctx, "terminal_session_id = ?", sessionID)
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where(query, arg).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindAwaitingByAccountNumber lists orders still waiting for a transfer into
// the account, oldest first.
func (r *repository) FindAwaitingByAccountNumber(ctx context.Context, accountNumber string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Where("dedicated_account_number = ? AND payment_status = ?", accountNumber, enums.PaymentStatusAwaitingPayment).
		Order("created_at ASC").
		Order("id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) AttachChannel(ctx context.Context, reference string, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("reference = ? AND channel_attached_at IS NULL AND status = ?", reference, enums.OrderStatusCreated).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// AttachChannelToSettled records channel references on an order whose
// payment settled before its channel was attached. Payment status is never
// part of updates here.
func (r *repository) AttachChannelToSettled(ctx context.Context, reference string, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("reference = ? AND channel_attached_at IS NULL AND payment_status IN ?", reference,
			[]enums.PaymentStatus{enums.PaymentStatusPaid, enums.PaymentStatusRefunded}).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// MarkPaid moves a settleable payment to paid. In the same statement the
// order is confirmed if it was still created, and the payout starts
// processing if it was pending and the order was not cancelled.
func (r *repository) MarkPaid(ctx context.Context, orderID uuid.UUID, update PaidUpdate) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status IN ?", orderID, enums.SettleableStatuses()).
		Updates(map[string]any{
			"payment_status":  enums.PaymentStatusPaid,
			"transaction_id":  nullable(update.TransactionID),
			"payment_channel": nullable(update.Channel),
			"paid_at":         update.PaidAt,
			"status":          gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", enums.OrderStatusCreated, enums.OrderStatusConfirmed),
			"payout_status": gorm.Expr("CASE WHEN payout_status = ? AND status <> ? THEN ? ELSE payout_status END",
				enums.PayoutStatusPending, enums.OrderStatusCancelled, enums.PayoutStatusProcessing),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status IN ?", orderID, enums.SettleableStatuses()).
		Update("payment_status", enums.PaymentStatusFailed)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) CancelPaid(ctx context.Context, orderID uuid.UUID, reason *string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ? AND status NOT IN ?", orderID, enums.PaymentStatusPaid, terminalStatuses()).
		Updates(map[string]any{
			"payment_status":      enums.PaymentStatusRefunded,
			"status":              enums.OrderStatusCancelled,
			"cancellation_reason": reason,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) CancelUnpaid(ctx context.Context, orderID uuid.UUID, reason *string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ? AND status NOT IN ?", orderID, enums.PaymentStatusPaid, terminalStatuses()).
		Updates(map[string]any{
			"status":              enums.OrderStatusCancelled,
			"cancellation_reason": reason,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) RefundPaid(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, enums.PaymentStatusPaid).
		Update("payment_status", enums.PaymentStatusRefunded)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) UpdateDelivery(ctx context.Context, orderID uuid.UUID, update DeliveryUpdate) (bool, error) {
	updates := map[string]any{
		"delivery_status": update.Status,
	}
	if update.RiderID != nil {
		updates["rider_id"] = *update.RiderID
	}
	if update.Notes != nil {
		updates["delivery_notes"] = *update.Notes
	}
	if update.OrderStatus != nil {
		updates["status"] = *update.OrderStatus
	}
	if update.Status == enums.DeliveryStatusDelivered {
		updates["delivered_at"] = update.At
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status NOT IN ?", orderID, terminalStatuses()).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func terminalStatuses() []enums.OrderStatus {
	return []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCancelled}
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
