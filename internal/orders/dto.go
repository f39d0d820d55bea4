package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grundyhq/grundy-backend/internal/fees"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	dbtypes "github.com/grundyhq/grundy-backend/pkg/db/types"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
)

// ItemInput is one priced line. UnitPrice is the snapshot taken at checkout.
type ItemInput struct {
	ProductID uuid.UUID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// LineTotal returns UnitPrice × Quantity.
func (i ItemInput) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CustomerInput is the contact captured on the order.
type CustomerInput struct {
	Email string
	Phone string
	Name  string
}

// CreateOrderInput is everything needed to persist an order in created.
type CreateOrderInput struct {
	MerchantID      uuid.UUID
	CustomerID      *uuid.UUID
	Customer        CustomerInput
	DeliveryAddress dbtypes.Address
	Items           []ItemInput
	PaymentMethod   enums.PaymentMethod
	Split           fees.Split
}

// Subtotal sums the line totals.
func (in CreateOrderInput) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range in.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (in CreateOrderInput) validate() error {
	if in.MerchantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "merchant_id is required")
	}
	if strings.TrimSpace(in.Customer.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if !in.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if len(in.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for _, item := range in.Items {
		if item.ProductID == uuid.Nil || item.Quantity <= 0 || !item.UnitPrice.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "items require a product, a positive price and a positive quantity")
		}
	}
	subtotal := in.Subtotal()
	if !subtotal.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}
	if !in.Split.Subtotal.Equal(subtotal) {
		return pkgerrors.New(pkgerrors.CodeValidation, "fee split does not match order subtotal")
	}
	return nil
}

// PaymentConfirmation is a verified success event from the processor. The
// order is located by Reference, then TerminalSession, then AccountNumber.
type PaymentConfirmation struct {
	Reference       string
	AccountNumber   string
	TerminalSession string
	AmountMinor     int64
	TransactionID   string
	Channel         string
	PaidAt          time.Time
	Source          string
	ProcessorEvent  string
}

// PaymentFailure is a verified failure event from the processor.
type PaymentFailure struct {
	Reference       string
	TerminalSession string
	Reason          string
	ProcessorEvent  string
}

// Outcome reports what a settlement call did.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already_applied"
	// OutcomeRefundScheduled means the payment arrived for an order that
	// had already been cancelled; it was recorded and refunded.
	OutcomeRefundScheduled Outcome = "refund_scheduled"
)

// SettlementResult is returned by ConfirmPayment and FailPayment.
type SettlementResult struct {
	Outcome Outcome
	Order   *models.Order
}

// DeliveryInput changes the delivery sub-record.
type DeliveryInput struct {
	Status  enums.DeliveryStatus
	RiderID string
	Notes   string
}
