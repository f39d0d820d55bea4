package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
)

// Repository defines persistence operations for orders. Every mutating
// method is a compare-and-set: the bool result reports whether the guarded
// row changed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByReference(ctx context.Context, reference string) (*models.Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Order, error)
	FindByTerminalSession(ctx context.Context, sessionID string) (*models.Order, error)
	FindAwaitingByAccountNumber(ctx context.Context, accountNumber string) ([]models.Order, error)
	AttachChannel(ctx context.Context, reference string, updates map[string]any) (bool, error)
	AttachChannelToSettled(ctx context.Context, reference string, updates map[string]any) (bool, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, update PaidUpdate) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) (bool, error)
	CancelPaid(ctx context.Context, orderID uuid.UUID, reason *string) (bool, error)
	CancelUnpaid(ctx context.Context, orderID uuid.UUID, reason *string) (bool, error)
	RefundPaid(ctx context.Context, orderID uuid.UUID) (bool, error)
	UpdateDelivery(ctx context.Context, orderID uuid.UUID, update DeliveryUpdate) (bool, error)
}

// PaidUpdate carries the processor facts recorded when a payment settles.
type PaidUpdate struct {
	TransactionID string
	Channel       string
	PaidAt        time.Time
}

// DeliveryUpdate is a change to the delivery sub-record. OrderStatus is set
// when the delivery change also moves the order lifecycle.
type DeliveryUpdate struct {
	Status      enums.DeliveryStatus
	RiderID     *string
	Notes       *string
	OrderStatus *enums.OrderStatus
	At          time.Time
}
