package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/outbox"
	"github.com/grundyhq/grundy-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Dispatcher queues customer and merchant notifications on the outbox. It is
// called after the state change commits and never reports failure to the
// caller: a lost notification must not undo a payment transition.
type Dispatcher struct {
	tx      txRunner
	outbox  outboxEmitter
	logg    *logger.Logger
	enabled bool
}

// DispatcherParams wires the dispatcher.
type DispatcherParams struct {
	Tx      txRunner
	Outbox  outboxEmitter
	Logger  *logger.Logger
	Enabled bool
}

// NewDispatcher validates dependencies.
func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Dispatcher{tx: p.Tx, outbox: p.Outbox, logg: p.Logger, enabled: p.Enabled}, nil
}

// Notify queues kind for order. Errors are logged and dropped.
func (d *Dispatcher) Notify(ctx context.Context, order *models.Order, kind enums.OutboxEventType) {
	if d == nil || !d.enabled || order == nil {
		return
	}
	logCtx := ctx
	if d.logg != nil {
		logCtx = d.logg.WithFields(ctx, map[string]any{
			"order_ref":         order.Reference,
			"notification_kind": string(kind),
		})
	}

	event, err := buildEvent(order, kind)
	if err != nil {
		d.warn(logCtx, "notification skipped: "+err.Error())
		return
	}
	if err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return d.outbox.Emit(ctx, tx, event)
	}); err != nil {
		if d.logg != nil {
			d.logg.Error(logCtx, "notification dispatch failed", err)
		}
		return
	}
	if d.logg != nil {
		d.logg.Debug(logCtx, "notification queued")
	}
}

func (d *Dispatcher) warn(ctx context.Context, msg string) {
	if d.logg != nil {
		d.logg.Warn(ctx, msg)
	}
}

func buildEvent(order *models.Order, kind enums.OutboxEventType) (outbox.DomainEvent, error) {
	event := outbox.DomainEvent{
		EventType:     kind,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.SystemActor(),
	}
	switch kind {
	case enums.EventOrderCreated, enums.EventPaymentConfirmed, enums.EventPaymentFailed, enums.EventOrderCancelled:
		event.Data = orderEvent(order)
	case enums.EventDeliveryUpdated:
		event.Data = payloads.DeliveryEvent{
			OrderID:    order.ID,
			Reference:  order.Reference,
			MerchantID: order.MerchantID,
			Status:     order.Delivery.Status,
			RiderID:    deref(order.Delivery.RiderID),
			Notes:      deref(order.Delivery.Notes),
			Address:    order.DeliveryAddress.Summary(),
		}
	case enums.EventPayoutCompleted:
		event.AggregateType = enums.AggregatePayout
		event.Data = payloads.PayoutEvent{
			OrderID:         order.ID,
			Reference:       order.Reference,
			MerchantID:      order.MerchantID,
			Status:          order.Payment.PayoutStatus,
			Amount:          order.Payment.MerchantAmount,
			PayoutReference: deref(order.Payment.PayoutReference),
		}
	default:
		return outbox.DomainEvent{}, fmt.Errorf("%s is not a customer notification", kind)
	}
	if event.AggregateID == uuid.Nil {
		return outbox.DomainEvent{}, fmt.Errorf("order id missing")
	}
	return event, nil
}

func orderEvent(order *models.Order) payloads.OrderEvent {
	return payloads.OrderEvent{
		OrderID:       order.ID,
		Reference:     order.Reference,
		MerchantID:    order.MerchantID,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: deref(order.CustomerPhone),
		Status:        order.Status,
		PaymentStatus: order.Payment.Status,
		PaymentMethod: order.Payment.Method,
		Amount:        order.Payment.Amount,
		Reason:        deref(order.CancellationReason),
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
