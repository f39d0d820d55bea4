package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/grundyhq/grundy-backend/pkg/db/types"
	"github.com/grundyhq/grundy-backend/pkg/enums"
)

// Order is a customer order with its payment and delivery sub-records stored
// inline. Reference is the correlation key shared with the payment processor.
type Order struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Reference  string            `gorm:"column:reference;not null;uniqueIndex"`
	MerchantID uuid.UUID         `gorm:"column:merchant_id;type:uuid;not null"`
	CustomerID *uuid.UUID        `gorm:"column:customer_id;type:uuid"`
	Status     enums.OrderStatus `gorm:"column:status;not null"`

	CustomerEmail      string          `gorm:"column:customer_email;not null"`
	CustomerPhone      *string         `gorm:"column:customer_phone"`
	CustomerName       *string         `gorm:"column:customer_name"`
	DeliveryAddress    dbtypes.Address `gorm:"column:delivery_address;type:jsonb;not null"`
	CancellationReason *string         `gorm:"column:cancellation_reason"`

	Subtotal decimal.Decimal `gorm:"column:subtotal;type:numeric(14,2);not null"`

	Payment  Payment  `gorm:"embedded"`
	Delivery Delivery `gorm:"embedded"`

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Payment is the payment sub-record embedded in orders. Exactly one of the
// channel reference fields is populated, selected by Method.
type Payment struct {
	Method         enums.PaymentMethod `gorm:"column:payment_method;not null"`
	Status         enums.PaymentStatus `gorm:"column:payment_status;not null"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	PlatformFee    decimal.Decimal     `gorm:"column:platform_fee;type:numeric(14,2);not null"`
	ProcessorFee   decimal.Decimal     `gorm:"column:processor_fee;type:numeric(14,2);not null"`
	MerchantAmount decimal.Decimal     `gorm:"column:merchant_amount;type:numeric(14,2);not null"`

	MerchantSharePercent decimal.Decimal `gorm:"column:merchant_share_percent;type:numeric(5,2);not null"`
	PlatformSharePercent decimal.Decimal `gorm:"column:platform_share_percent;type:numeric(5,2);not null"`
	FeeBearer            enums.FeeBearer `gorm:"column:fee_bearer;not null"`

	ProcessorReference     *string    `gorm:"column:processor_reference"`
	AuthorizationURL       *string    `gorm:"column:authorization_url"`
	DedicatedAccountNumber *string    `gorm:"column:dedicated_account_number"`
	DedicatedBankName      *string    `gorm:"column:dedicated_bank_name"`
	DedicatedAccountName   *string    `gorm:"column:dedicated_account_name"`
	TerminalSessionID      *string    `gorm:"column:terminal_session_id"`
	ChannelAttachedAt      *time.Time `gorm:"column:channel_attached_at"`

	TransactionID *string    `gorm:"column:transaction_id"`
	Channel       *string    `gorm:"column:payment_channel"`
	PaidAt        *time.Time `gorm:"column:paid_at"`

	PayoutStatus        enums.PayoutStatus `gorm:"column:payout_status;not null"`
	PayoutReference     *string            `gorm:"column:payout_reference"`
	PayoutFailureReason *string            `gorm:"column:payout_failure_reason"`
	PayoutUpdatedAt     *time.Time         `gorm:"column:payout_updated_at"`
}

// ChannelReference returns the reference populated for the payment method.
func (p Payment) ChannelReference() string {
	var ref *string
	switch p.Method {
	case enums.PaymentMethodOnline:
		ref = p.ProcessorReference
	case enums.PaymentMethodBankTransfer:
		ref = p.DedicatedAccountNumber
	case enums.PaymentMethodTerminal:
		ref = p.TerminalSessionID
	}
	if ref == nil {
		return ""
	}
	return *ref
}

// Delivery is the rider leg embedded in orders.
type Delivery struct {
	Status      enums.DeliveryStatus `gorm:"column:delivery_status;not null"`
	RiderID     *string              `gorm:"column:rider_id"`
	Notes       *string              `gorm:"column:delivery_notes"`
	DeliveredAt *time.Time           `gorm:"column:delivered_at"`
}
