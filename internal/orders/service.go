package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/internal/channels"
	"github.com/grundyhq/grundy-backend/internal/fees"
	"github.com/grundyhq/grundy-backend/internal/ledger"
	"github.com/grundyhq/grundy-backend/pkg/db"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/metrics"
	"github.com/grundyhq/grundy-backend/pkg/outbox"
	"github.com/grundyhq/grundy-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RefundScheduler records the refund for a paid order inside the
// cancellation transaction.
type RefundScheduler interface {
	Schedule(ctx context.Context, tx *gorm.DB, order *models.Order, reason string) (*models.Refund, error)
}

// Notifier is fire-and-forget; it is only called after commit.
type Notifier interface {
	Notify(ctx context.Context, order *models.Order, kind enums.OutboxEventType)
}

// Service owns every order and payment status transition.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	AttachChannel(ctx context.Context, reference string, result channels.Result) (*models.Order, error)
	ConfirmPayment(ctx context.Context, input PaymentConfirmation) (SettlementResult, error)
	FailPayment(ctx context.Context, input PaymentFailure) (SettlementResult, error)
	Cancel(ctx context.Context, reference, reason string) (*models.Order, error)
	UpdateDeliveryStatus(ctx context.Context, reference string, input DeliveryInput) (*models.Order, error)
	Get(ctx context.Context, reference string) (*models.Order, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	ledger   ledger.Service
	refunds  RefundScheduler
	outbox   outboxEmitter
	notifier Notifier
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Ledger   ledger.Service
	Refunds  RefundScheduler
	Outbox   outboxEmitter
	Notifier Notifier
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
	Clock    func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if p.Refunds == nil {
		return nil, fmt.Errorf("refund scheduler required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := p.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     p.Repo,
		tx:       p.Tx,
		ledger:   p.Ledger,
		refunds:  p.Refunds,
		outbox:   p.Outbox,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		logg:     logg,
		now:      clock,
	}, nil
}

var (
	errAlreadyApplied = errors.New("transition already applied")
	errStale          = errors.New("order changed concurrently")
)

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	subtotal := input.Subtotal()
	order := &models.Order{
		ID:              uuid.New(),
		Reference:       newReference(now),
		MerchantID:      input.MerchantID,
		CustomerID:      input.CustomerID,
		Status:          enums.OrderStatusCreated,
		CustomerEmail:   strings.TrimSpace(input.Customer.Email),
		CustomerPhone:   optional(input.Customer.Phone),
		CustomerName:    optional(input.Customer.Name),
		DeliveryAddress: input.DeliveryAddress,
		Subtotal:        subtotal,
		Payment: models.Payment{
			Method:               input.PaymentMethod,
			Status:               enums.PaymentStatusPending,
			Amount:               subtotal,
			PlatformFee:          input.Split.PlatformFee,
			ProcessorFee:         input.Split.ProcessorFee,
			MerchantAmount:       input.Split.MerchantAmount,
			MerchantSharePercent: input.Split.Config.MerchantSharePercent,
			PlatformSharePercent: input.Split.Config.PlatformSharePercent,
			FeeBearer:            input.Split.Config.Bearer,
			PayoutStatus:         enums.PayoutStatusPending,
		},
		Delivery: models.Delivery{Status: enums.DeliveryStatusPending},
	}
	for _, item := range input.Items {
		order.Items = append(order.Items, models.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal(),
		})
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, order)
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	s.logg.Info(s.logg.WithOrderRef(ctx, order.Reference), "order created")
	return order, nil
}

func (s *service) AttachChannel(ctx context.Context, reference string, result channels.Result) (*models.Order, error) {
	if err := result.Validate(); err != nil {
		return nil, err
	}
	updates := map[string]any{
		"payment_method":      result.Method,
		"payment_status":      result.PaymentStatus,
		"channel_attached_at": s.now(),
	}
	switch {
	case result.Hosted != nil:
		updates["processor_reference"] = result.Hosted.ProcessorReference
		updates["authorization_url"] = nullable(result.Hosted.AuthorizationURL)
	case result.Dedicated != nil:
		updates["dedicated_account_number"] = result.Dedicated.Account.AccountNumber
		updates["dedicated_bank_name"] = nullable(result.Dedicated.Account.BankName)
		updates["dedicated_account_name"] = nullable(result.Dedicated.Account.AccountName)
	case result.Terminal != nil:
		updates["terminal_session_id"] = result.Terminal.SessionID
	}

	attached, err := s.repo.AttachChannel(ctx, reference, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach payment channel")
	}
	if !attached {
		current, err := s.Get(ctx, reference)
		if err != nil {
			return nil, err
		}
		if current.Payment.ChannelAttachedAt != nil || !isSettled(current.Payment.Status) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting channel initiation")
		}
		// The success event beat the attach. Keep the settled status and
		// only record where the payment was collected.
		delete(updates, "payment_status")
		late, err := s.repo.AttachChannelToSettled(ctx, reference, updates)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach payment channel")
		}
		if !late {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting channel initiation")
		}
		logCtx := s.logg.WithFields(s.logg.WithOrderRef(ctx, reference), map[string]any{
			"payment_method": string(result.Method),
			"payment_status": string(current.Payment.Status),
		})
		s.logg.Info(logCtx, "payment channel attached after settlement")
		return s.Get(ctx, reference)
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderRef(ctx, reference), map[string]any{
		"payment_method": string(result.Method),
		"payment_status": string(result.PaymentStatus),
	})
	s.logg.Info(logCtx, "payment channel attached")
	return s.Get(ctx, reference)
}

// ConfirmPayment applies a verified success event. A mismatched amount is
// recorded for manual reconciliation and leaves the order untouched.
func (s *service) ConfirmPayment(ctx context.Context, input PaymentConfirmation) (SettlementResult, error) {
	if input.AmountMinor <= 0 {
		return SettlementResult{}, pkgerrors.New(pkgerrors.CodeValidation, "confirmed amount must be positive")
	}
	if input.TransactionID != "" {
		existing, err := s.repo.FindByTransactionID(ctx, input.TransactionID)
		switch {
		case err == nil:
			return SettlementResult{Outcome: OutcomeAlreadyApplied, Order: existing}, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return SettlementResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup transaction")
		}
	}

	order, err := s.locateForConfirmation(ctx, input)
	if err != nil {
		return SettlementResult{}, err
	}
	logCtx := s.logg.WithOrderRef(ctx, order.Reference)

	expected := fees.ToMinorUnits(order.Payment.Amount)
	if input.AmountMinor != expected {
		return SettlementResult{}, s.recordDiscrepancy(ctx, order, input, expected)
	}

	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	outcome := OutcomeApplied
	var settled *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		applied, err := repo.MarkPaid(ctx, order.ID, PaidUpdate{
			TransactionID: input.TransactionID,
			Channel:       input.Channel,
			PaidAt:        paidAt,
		})
		if err != nil {
			if db.IsUniqueViolation(err, uniqueTransactionConstraint) {
				return errAlreadyApplied
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !applied {
			current, err := repo.FindByReference(ctx, order.Reference)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			if current.Payment.Status == enums.PaymentStatusFailed {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already marked failed").
					WithDetails(map[string]any{"reference": order.Reference})
			}
			settled = current
			return errAlreadyApplied
		}

		if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
			OrderID:        order.ID,
			OrderReference: order.Reference,
			Type:           enums.LedgerEventPaymentConfirmed,
			Amount:         order.Payment.Amount,
			Metadata: map[string]any{
				"transaction_id":  input.TransactionID,
				"channel":         input.Channel,
				"source":          input.Source,
				"processor_event": input.ProcessorEvent,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment ledger event")
		}

		current, err := repo.FindByReference(ctx, order.Reference)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		if current.Status == enums.OrderStatusCancelled {
			if _, err := s.refunds.Schedule(ctx, tx, current, "payment received after cancellation"); err != nil {
				return err
			}
			if _, err := repo.RefundPaid(ctx, current.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark late payment refunded")
			}
			current.Payment.Status = enums.PaymentStatusRefunded
			outcome = OutcomeRefundScheduled
		}
		settled = current
		return nil
	})
	if errors.Is(err, errAlreadyApplied) {
		s.logg.Info(logCtx, "payment confirmation already applied")
		if settled == nil {
			settled = order
		}
		return SettlementResult{Outcome: OutcomeAlreadyApplied, Order: settled}, nil
	}
	if err != nil {
		return SettlementResult{}, err
	}

	s.metrics.IncSettlement(string(enums.PaymentStatusPaid))
	if outcome == OutcomeRefundScheduled {
		s.logg.Warn(logCtx, "payment received for cancelled order; refund scheduled")
		return SettlementResult{Outcome: outcome, Order: settled}, nil
	}
	s.logg.Info(s.logg.WithField(logCtx, "transaction_id", input.TransactionID), "payment confirmed")
	s.notifier.Notify(ctx, settled, enums.EventPaymentConfirmed)
	return SettlementResult{Outcome: outcome, Order: settled}, nil
}

// locateForConfirmation resolves the order by reference, terminal session or
// dedicated account. Transfers into a shared account match the oldest
// awaiting order with the same amount; with no amount match the oldest
// awaiting order is returned so the mismatch is recorded against it.
func (s *service) locateForConfirmation(ctx context.Context, input PaymentConfirmation) (*models.Order, error) {
	switch {
	case input.Reference != "":
		return s.Get(ctx, input.Reference)
	case input.TerminalSession != "":
		order, err := s.repo.FindByTerminalSession(ctx, input.TerminalSession)
		return order, mapLookupErr(err)
	case input.AccountNumber != "":
		candidates, err := s.repo.FindAwaitingByAccountNumber(ctx, input.AccountNumber)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup dedicated account orders")
		}
		if len(candidates) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order awaiting payment on account").
				WithDetails(map[string]any{"account_number": input.AccountNumber})
		}
		for i := range candidates {
			if fees.ToMinorUnits(candidates[i].Payment.Amount) == input.AmountMinor {
				return &candidates[i], nil
			}
		}
		return &candidates[0], nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation carries no order correlation")
	}
}

func (s *service) recordDiscrepancy(ctx context.Context, order *models.Order, input PaymentConfirmation, expected int64) error {
	logCtx := s.logg.WithFields(s.logg.WithOrderRef(ctx, order.Reference), map[string]any{
		"expected_minor": expected,
		"received_minor": input.AmountMinor,
		"transaction_id": input.TransactionID,
	})
	detectedAt := s.now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
			OrderID:        order.ID,
			OrderReference: order.Reference,
			Type:           enums.LedgerEventDiscrepancy,
			Amount:         fees.FromMinorUnits(input.AmountMinor),
			Metadata: map[string]any{
				"expected_minor":  expected,
				"received_minor":  input.AmountMinor,
				"transaction_id":  input.TransactionID,
				"source":          input.Source,
				"processor_event": input.ProcessorEvent,
			},
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAmountDiscrepancy,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.SystemActor(),
			Data: payloads.AmountDiscrepancyAlert{
				OrderID:        order.ID,
				Reference:      order.Reference,
				ExpectedMinor:  expected,
				ReceivedMinor:  input.AmountMinor,
				TransactionID:  input.TransactionID,
				ProcessorEvent: input.ProcessorEvent,
				DetectedAt:     detectedAt,
			},
		})
	})
	if err != nil {
		s.logg.Error(logCtx, "recording amount discrepancy failed", err)
	}
	s.metrics.IncDiscrepancy()
	s.logg.Warn(logCtx, "payment amount does not match order; left for manual reconciliation")
	return pkgerrors.New(pkgerrors.CodeAmountMismatch, "payment amount does not match order").
		WithDetails(map[string]any{
			"reference":      order.Reference,
			"expected_minor": expected,
			"received_minor": input.AmountMinor,
		})
}

func (s *service) FailPayment(ctx context.Context, input PaymentFailure) (SettlementResult, error) {
	var (
		order *models.Order
		err   error
	)
	switch {
	case input.Reference != "":
		order, err = s.Get(ctx, input.Reference)
	case input.TerminalSession != "":
		order, err = s.repo.FindByTerminalSession(ctx, input.TerminalSession)
		err = mapLookupErr(err)
	default:
		err = pkgerrors.New(pkgerrors.CodeValidation, "failure carries no order correlation")
	}
	if err != nil {
		return SettlementResult{}, err
	}
	logCtx := s.logg.WithOrderRef(ctx, order.Reference)

	var failed *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		applied, err := repo.MarkPaymentFailed(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if !applied {
			return errAlreadyApplied
		}
		if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
			OrderID:        order.ID,
			OrderReference: order.Reference,
			Type:           enums.LedgerEventPaymentFailed,
			Amount:         order.Payment.Amount,
			Metadata:       map[string]any{"reason": input.Reason, "processor_event": input.ProcessorEvent},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment failure ledger event")
		}
		failed, err = repo.FindByReference(ctx, order.Reference)
		return err
	})
	if errors.Is(err, errAlreadyApplied) {
		s.logg.Info(logCtx, "payment failure ignored; payment no longer awaiting settlement")
		return SettlementResult{Outcome: OutcomeAlreadyApplied, Order: order}, nil
	}
	if err != nil {
		return SettlementResult{}, err
	}
	s.metrics.IncSettlement(string(enums.PaymentStatusFailed))
	s.logg.Warn(s.logg.WithField(logCtx, "reason", input.Reason), "payment failed")
	s.notifier.Notify(ctx, failed, enums.EventPaymentFailed)
	return SettlementResult{Outcome: OutcomeApplied, Order: failed}, nil
}

// Cancel stops an order. A paid order gets exactly one refund scheduled in
// the same transaction that marks it refunded.
func (s *service) Cancel(ctx context.Context, reference, reason string) (*models.Order, error) {
	order, err := s.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
			WithDetails(map[string]any{"status": order.Status})
	}
	reasonPtr := optional(reason)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if order.Payment.Status == enums.PaymentStatusPaid {
			cancelled, err := repo.CancelPaid(ctx, order.ID, reasonPtr)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel paid order")
			}
			if !cancelled {
				return errStale
			}
			_, err = s.refunds.Schedule(ctx, tx, order, reason)
			return err
		}
		cancelled, err := repo.CancelUnpaid(ctx, order.ID, reasonPtr)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !cancelled {
			return errStale
		}
		return nil
	})
	if errors.Is(err, errStale) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while cancelling; retry")
	}
	if err != nil {
		return nil, err
	}

	cancelled, err := s.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.logg.WithOrderRef(ctx, reference), "payment_status", string(cancelled.Payment.Status)), "order cancelled")
	s.notifier.Notify(ctx, cancelled, enums.EventOrderCancelled)
	return cancelled, nil
}

func (s *service) UpdateDeliveryStatus(ctx context.Context, reference string, input DeliveryInput) (*models.Order, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery status")
	}
	order, err := s.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is closed").
			WithDetails(map[string]any{"status": order.Status})
	}
	if !canAdvanceDelivery(order.Delivery.Status, input.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "delivery status cannot move backwards").
			WithDetails(map[string]any{"from": order.Delivery.Status, "to": input.Status})
	}

	update := DeliveryUpdate{
		Status:  input.Status,
		RiderID: optional(input.RiderID),
		Notes:   optional(input.Notes),
		At:      s.now(),
	}
	switch input.Status {
	case enums.DeliveryStatusInTransit:
		status := enums.OrderStatusInTransit
		update.OrderStatus = &status
	case enums.DeliveryStatusDelivered:
		status := enums.OrderStatusDelivered
		update.OrderStatus = &status
	}

	updated, err := s.repo.UpdateDelivery(ctx, order.ID, update)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delivery")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed while updating delivery; retry")
	}
	current, err := s.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.logg.WithOrderRef(ctx, reference), "delivery_status", string(input.Status)), "delivery updated")
	s.notifier.Notify(ctx, current, enums.EventDeliveryUpdated)
	return current, nil
}

func (s *service) Get(ctx context.Context, reference string) (*models.Order, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required")
	}
	order, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return order, nil
}

var deliveryRank = map[enums.DeliveryStatus]int{
	enums.DeliveryStatusPending:   0,
	enums.DeliveryStatusAssigned:  1,
	enums.DeliveryStatusPickedUp:  2,
	enums.DeliveryStatusInTransit: 3,
	enums.DeliveryStatusDelivered: 4,
}

// canAdvanceDelivery allows forward moves, a failure from any open state, and
// re-dispatch after a failure.
func canAdvanceDelivery(from, to enums.DeliveryStatus) bool {
	if to == enums.DeliveryStatusFailed {
		return from != enums.DeliveryStatusDelivered
	}
	if from == enums.DeliveryStatusFailed {
		return true
	}
	return deliveryRank[to] >= deliveryRank[from]
}

func mapLookupErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func newReference(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("GRUNDY_%d_%s", now.UnixMilli(), suffix)
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isSettled(status enums.PaymentStatus) bool {
	return status == enums.PaymentStatusPaid || status == enums.PaymentStatusRefunded
}
