package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/grundyhq/grundy-backend/internal/channels"
	"github.com/grundyhq/grundy-backend/internal/checkout/helpers"
	"github.com/grundyhq/grundy-backend/internal/fees"
	"github.com/grundyhq/grundy-backend/internal/inventory"
	"github.com/grundyhq/grundy-backend/internal/merchants"
	"github.com/grundyhq/grundy-backend/internal/orders"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	dbtypes "github.com/grundyhq/grundy-backend/pkg/db/types"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
)

type stockChecker interface {
	CheckAvailability(ctx context.Context, items []inventory.Item, merchantID uuid.UUID) error
}

type settlementResolver interface {
	ResolveSettlementDestination(ctx context.Context, merchantID uuid.UUID) (*merchants.Destination, error)
}

type channelRegistry interface {
	For(method enums.PaymentMethod) (channels.Adapter, error)
}

// TransactionVerifier re-queries a charge at the processor.
type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*channels.VerifiedTransaction, error)
}

type notifier interface {
	Notify(ctx context.Context, order *models.Order, kind enums.OutboxEventType)
}

// Service creates orders, starts their payment and verifies charges.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Result, error)
	RetryChannel(ctx context.Context, reference string, input RetryInput) (*Result, error)
	Verify(ctx context.Context, reference string) (*models.Order, error)
}

// CreateOrderInput is a validated checkout request.
type CreateOrderInput struct {
	MerchantID      uuid.UUID
	CustomerID      *uuid.UUID
	Customer        orders.CustomerInput
	DeliveryAddress dbtypes.Address
	Items           []orders.ItemInput
	PaymentMethod   enums.PaymentMethod
	TerminalID      string
}

// RetryInput selects the channel for a second initiation attempt.
type RetryInput struct {
	PaymentMethod enums.PaymentMethod
	TerminalID    string
}

// Result is the order with the channel the customer should pay through.
type Result struct {
	Order   *models.Order
	Channel channels.Result
}

// ServiceParams wires checkout.
type ServiceParams struct {
	Inventory  stockChecker
	Merchants  settlementResolver
	Calculator *fees.Calculator
	Orders     orders.Service
	Channels   channelRegistry
	Verifier   TransactionVerifier
	Notifier   notifier
	Logger     *logger.Logger
}

type service struct {
	inventory  stockChecker
	merchants  settlementResolver
	calculator *fees.Calculator
	orders     orders.Service
	channels   channelRegistry
	verifier   TransactionVerifier
	notifier   notifier
	logg       *logger.Logger
}

// NewService validates dependencies. Verifier may be nil; Verify then fails
// with DEPENDENCY_ERROR.
func NewService(p ServiceParams) (Service, error) {
	if p.Inventory == nil {
		return nil, fmt.Errorf("inventory checker required")
	}
	if p.Merchants == nil {
		return nil, fmt.Errorf("merchant directory required")
	}
	if p.Calculator == nil {
		return nil, fmt.Errorf("fee calculator required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if p.Channels == nil {
		return nil, fmt.Errorf("channel registry required")
	}
	if p.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		inventory:  p.Inventory,
		merchants:  p.Merchants,
		calculator: p.Calculator,
		orders:     p.Orders,
		channels:   p.Channels,
		verifier:   p.Verifier,
		notifier:   p.Notifier,
		logg:       logg,
	}, nil
}

// CreateOrder checks stock, the merchant's settlement destination and the
// channel's own preconditions before anything is persisted, then creates the
// order and initiates its channel.
// When initiation fails the order stays in created without a channel and
// can be retried with RetryChannel.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Result, error) {
	if input.MerchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant_id is required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if err := helpers.ValidateLines(input.Items); err != nil {
		return nil, err
	}
	adapter, err := s.channels.For(input.PaymentMethod)
	if err != nil {
		return nil, err
	}

	if err := s.inventory.CheckAvailability(ctx, helpers.GroupByProduct(input.Items), input.MerchantID); err != nil {
		return nil, err
	}

	dest, err := s.merchants.ResolveSettlementDestination(ctx, input.MerchantID)
	if err != nil {
		return nil, err
	}

	orderInput := orders.CreateOrderInput{
		MerchantID:      input.MerchantID,
		CustomerID:      input.CustomerID,
		Customer:        input.Customer,
		DeliveryAddress: input.DeliveryAddress,
		Items:           input.Items,
		PaymentMethod:   input.PaymentMethod,
	}
	split, err := s.calculator.ComputeSplit(orderInput.Subtotal(), s.calculator.ConfigFor(dest.MerchantSharePercent))
	if err != nil {
		return nil, splitError(err)
	}
	orderInput.Split = split

	if err := adapter.Preflight(channels.InitiateOrder{
		Amount:      split.Subtotal,
		PlatformFee: split.PlatformFee,
		Customer: channels.Customer{
			Email: input.Customer.Email,
			Phone: input.Customer.Phone,
			Name:  input.Customer.Name,
		},
		CustomerID: input.CustomerID,
		MerchantID: input.MerchantID,
		Split:      split.Config,
		TerminalID: strings.TrimSpace(input.TerminalID),
	}, dest.Settlement); err != nil {
		return nil, err
	}

	order, err := s.orders.Create(ctx, orderInput)
	if err != nil {
		return nil, err
	}
	result, err := s.initiate(ctx, adapter, order, dest.Settlement, input.TerminalID)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, result.Order, enums.EventOrderCreated)
	return result, nil
}

// RetryChannel re-attempts initiation for an order whose first attempt
// failed, optionally with a different payment method.
func (s *service) RetryChannel(ctx context.Context, reference string, input RetryInput) (*Result, error) {
	order, err := s.orders.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusCreated || order.Payment.ChannelAttachedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already has a payment channel").
			WithDetails(map[string]any{"status": order.Status, "payment_status": order.Payment.Status})
	}
	method := input.PaymentMethod
	if method == "" {
		method = order.Payment.Method
	}
	adapter, err := s.channels.For(method)
	if err != nil {
		return nil, err
	}
	dest, err := s.merchants.ResolveSettlementDestination(ctx, order.MerchantID)
	if err != nil {
		return nil, err
	}
	result, err := s.initiate(ctx, adapter, order, dest.Settlement, input.TerminalID)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, result.Order, enums.EventOrderCreated)
	return result, nil
}

func (s *service) initiate(ctx context.Context, adapter channels.Adapter, order *models.Order, settlement channels.Settlement, terminalID string) (*Result, error) {
	logCtx := s.logg.WithFields(s.logg.WithOrderRef(ctx, order.Reference), map[string]any{
		"payment_method": string(adapter.Method()),
		"merchant_id":    order.MerchantID.String(),
	})
	channelResult, err := adapter.Initiate(ctx, channels.InitiateOrder{
		OrderID:     order.ID,
		Reference:   order.Reference,
		Amount:      order.Payment.Amount,
		PlatformFee: order.Payment.PlatformFee,
		Customer: channels.Customer{
			Email: order.CustomerEmail,
			Phone: deref(order.CustomerPhone),
			Name:  deref(order.CustomerName),
		},
		CustomerID: order.CustomerID,
		MerchantID: order.MerchantID,
		Split: fees.SplitConfig{
			MerchantSharePercent: order.Payment.MerchantSharePercent,
			PlatformSharePercent: order.Payment.PlatformSharePercent,
			Bearer:               order.Payment.FeeBearer,
		},
		TerminalID: strings.TrimSpace(terminalID),
	}, settlement)
	if err != nil {
		s.logg.Error(logCtx, "payment channel initiation failed", err)
		return nil, withReference(err, order.Reference)
	}

	attached, err := s.orders.AttachChannel(ctx, order.Reference, channelResult)
	if err != nil {
		return nil, err
	}
	return &Result{Order: attached, Channel: channelResult}, nil
}

// Verify re-queries the processor for reference and routes a successful
// charge through the same idempotent confirmation path as webhooks.
func (s *service) Verify(ctx context.Context, reference string) (*models.Order, error) {
	order, err := s.orders.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if order.Payment.Status == enums.PaymentStatusPaid || order.Payment.Status == enums.PaymentStatusRefunded {
		return order, nil
	}
	if s.verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment verification unavailable")
	}
	tx, err := s.verifier.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify transaction")
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderRef(ctx, reference), map[string]any{
		"processor_status": tx.Status,
		"transaction_id":   tx.TransactionID,
	})

	if !tx.Succeeded {
		if tx.Status == "failed" {
			res, err := s.orders.FailPayment(ctx, orders.PaymentFailure{
				Reference:      reference,
				Reason:         "verification reported failed",
				ProcessorEvent: "verify:" + tx.TransactionID,
			})
			if err != nil {
				return nil, err
			}
			return res.Order, nil
		}
		s.logg.Info(logCtx, "payment not yet completed at processor")
		return order, nil
	}

	res, err := s.orders.ConfirmPayment(ctx, orders.PaymentConfirmation{
		Reference:      reference,
		AmountMinor:    tx.AmountMinor,
		TransactionID:  tx.TransactionID,
		Channel:        tx.Channel,
		PaidAt:         tx.PaidAt,
		Source:         "verify",
		ProcessorEvent: "verify:" + tx.TransactionID,
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(logCtx, "payment verified")
	return res.Order, nil
}

func splitError(err error) error {
	var invalid *fees.InvalidSplitError
	if errors.As(err, &invalid) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order cannot be split between merchant and platform").
			WithDetails(map[string]any{"subtotal": invalid.Subtotal.StringFixed(2), "reason": invalid.Reason})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute fee split")
}

func withReference(err error, reference string) error {
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		details := map[string]any{"reference": reference}
		if existing, ok := typed.Details().(map[string]any); ok {
			for k, v := range existing {
				details[k] = v
			}
		}
		return typed.WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeChannelInitiation, err, "payment channel initiation failed").
		WithDetails(map[string]any{"reference": reference})
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
