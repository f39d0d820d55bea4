package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grundyhq/grundy-backend/pkg/enums"
)

// OrderEvent is the shared shape for order lifecycle notifications sent to
// the customer and merchant.
type OrderEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	Reference     string              `json:"reference"`
	MerchantID    uuid.UUID           `json:"merchant_id"`
	CustomerEmail string              `json:"customer_email,omitempty"`
	CustomerPhone string              `json:"customer_phone,omitempty"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Amount        decimal.Decimal     `json:"amount"`
	Reason        string              `json:"reason,omitempty"`
}

// DeliveryEvent is emitted when the delivery sub-record changes.
type DeliveryEvent struct {
	OrderID    uuid.UUID            `json:"order_id"`
	Reference  string               `json:"reference"`
	MerchantID uuid.UUID            `json:"merchant_id"`
	Status     enums.DeliveryStatus `json:"delivery_status"`
	RiderID    string               `json:"rider_id,omitempty"`
	Notes      string               `json:"notes,omitempty"`
	Address    string               `json:"address,omitempty"`
}

// RefundScheduledEvent asks the refund worker to return funds for a
// cancelled paid order.
type RefundScheduledEvent struct {
	RefundID      uuid.UUID       `json:"refund_id"`
	OrderID       uuid.UUID       `json:"order_id"`
	Reference     string          `json:"reference"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason,omitempty"`
}

// PayoutEvent reports a merchant payout outcome.
type PayoutEvent struct {
	OrderID         uuid.UUID          `json:"order_id"`
	Reference       string             `json:"reference"`
	MerchantID      uuid.UUID          `json:"merchant_id"`
	Status          enums.PayoutStatus `json:"payout_status"`
	Amount          decimal.Decimal    `json:"amount"`
	PayoutReference string             `json:"payout_reference,omitempty"`
	FailureReason   string             `json:"failure_reason,omitempty"`
}

// AmountDiscrepancyAlert is raised for operators when a confirmed payment
// does not match the order amount.
type AmountDiscrepancyAlert struct {
	OrderID        uuid.UUID `json:"order_id"`
	Reference      string    `json:"reference"`
	ExpectedMinor  int64     `json:"expected_minor"`
	ReceivedMinor  int64     `json:"received_minor"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	ProcessorEvent string    `json:"processor_event,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
}
