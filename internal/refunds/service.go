package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/internal/channels"
	"github.com/grundyhq/grundy-backend/internal/fees"
	"github.com/grundyhq/grundy-backend/internal/ledger"
	"github.com/grundyhq/grundy-backend/pkg/db"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/outbox"
	"github.com/grundyhq/grundy-backend/pkg/outbox/payloads"
)

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Processor returns funds at the payment processor.
type Processor interface {
	Refund(ctx context.Context, req channels.RefundRequest) (*channels.RefundResult, error)
}

// Service schedules and executes order refunds.
type Service struct {
	repo      *Repository
	ledger    ledger.Service
	outbox    outboxEmitter
	processor Processor
	timeout   time.Duration
	logg      *logger.Logger
}

// ServiceParams wires the refund service. Processor may be nil when no
// processor is configured; Process then fails with DEPENDENCY_ERROR.
type ServiceParams struct {
	Repo      *Repository
	Ledger    ledger.Service
	Outbox    outboxEmitter
	Processor Processor
	Timeout   time.Duration
	Logger    *logger.Logger
}

// NewService validates dependencies.
func NewService(p ServiceParams) (*Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("refund repository required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		repo:      p.Repo,
		ledger:    p.Ledger,
		outbox:    p.Outbox,
		processor: p.Processor,
		timeout:   timeout,
		logg:      p.Logger,
	}, nil
}

// Schedule records the single refund for a paid order inside tx, along with
// its ledger row and the refund_scheduled event.
func (s *Service) Schedule(ctx context.Context, tx *gorm.DB, order *models.Order, reason string) (*models.Refund, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required to schedule refund")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}

	refund := &models.Refund{
		OrderID:        order.ID,
		OrderReference: order.Reference,
		Amount:         order.Payment.Amount,
		Status:         enums.RefundStatusScheduled,
	}
	if r := strings.TrimSpace(reason); r != "" {
		refund.Reason = &r
	}
	if err := s.repo.WithTx(tx).Create(ctx, refund); err != nil {
		if db.IsUniqueViolation(err, uniqueOrderConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "refund already scheduled for order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
	}

	if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
		OrderID:        order.ID,
		OrderReference: order.Reference,
		Type:           enums.LedgerEventRefundScheduled,
		Amount:         refund.Amount,
		Metadata:       map[string]any{"refund_id": refund.ID.String(), "reason": reason},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund ledger event")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundScheduled,
		AggregateType: enums.AggregateRefund,
		AggregateID:   refund.ID,
		Actor:         outbox.SystemActor(),
		Data: payloads.RefundScheduledEvent{
			RefundID:      refund.ID,
			OrderID:       order.ID,
			Reference:     order.Reference,
			TransactionID: deref(order.Payment.TransactionID),
			Amount:        refund.Amount,
			Reason:        reason,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit refund scheduled")
	}
	return refund, nil
}

// Process executes a scheduled (or previously failed) refund at the
// processor. It is operator triggered; nothing retries it automatically.
func (s *Service) Process(ctx context.Context, orderReference string) (*models.Refund, error) {
	if strings.TrimSpace(orderReference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required")
	}
	if s.processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment processor not configured")
	}

	refund, err := s.repo.FindByOrderReference(ctx, orderReference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund")
	}
	transactionID, err := s.repo.TransactionIDFor(ctx, refund.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order transaction")
	}
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no settled transaction to refund")
	}

	claimed, err := s.repo.Transition(ctx, refund.ID,
		[]enums.RefundStatus{enums.RefundStatusScheduled, enums.RefundStatusFailed},
		enums.RefundStatusProcessing, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim refund")
	}
	if !claimed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "refund is not awaiting processing").
			WithDetails(map[string]any{"status": refund.Status})
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderRef(ctx, orderReference)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, callErr := s.processor.Refund(callCtx, channels.RefundRequest{
		TransactionID: transactionID,
		AmountMinor:   fees.ToMinorUnits(refund.Amount),
		Note:          deref(refund.Reason),
	})
	cancel()

	if callErr != nil {
		if _, err := s.repo.Transition(ctx, refund.ID, []enums.RefundStatus{enums.RefundStatusProcessing}, enums.RefundStatusFailed, nil); err != nil && s.logg != nil {
			s.logg.Error(logCtx, "marking refund failed", err)
		}
		if s.logg != nil {
			s.logg.Error(logCtx, "refund rejected by processor", callErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, callErr, "processor refund failed")
	}

	var processorRef *string
	if result != nil && result.ProcessorReference != "" {
		processorRef = &result.ProcessorReference
	}
	if _, err := s.repo.Transition(ctx, refund.ID, []enums.RefundStatus{enums.RefundStatusProcessing}, enums.RefundStatusCompleted, processorRef); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete refund")
	}
	if s.logg != nil {
		s.logg.Info(logCtx, "refund submitted to processor")
	}
	return s.repo.FindByOrderReference(ctx, orderReference)
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
