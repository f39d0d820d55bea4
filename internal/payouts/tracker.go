// Package payouts follows merchant transfers after an order is paid. Payout
// state is independent of the order status, so a transfer can fail after the
// order was delivered.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/internal/ledger"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/metrics"
	"github.com/grundyhq/grundy-backend/pkg/outbox"
	"github.com/grundyhq/grundy-backend/pkg/outbox/payloads"
)

const defaultListLimit = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Notifier queues the merchant notification after commit.
type Notifier interface {
	Notify(ctx context.Context, order *models.Order, kind enums.OutboxEventType)
}

// Outcome is the result reported by the processor for a transfer.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Details carries the transfer event fields.
type Details struct {
	TransferReference string
	Reason            string
	OccurredAt        time.Time
	ProcessorEvent    string
}

// Result reports whether the outcome changed the payout.
type Result struct {
	Applied bool
	Order   *models.Order
}

// Tracker records payout outcomes.
type Tracker struct {
	repo     *Repository
	tx       txRunner
	ledger   ledger.Service
	outbox   outboxEmitter
	notifier Notifier
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

// TrackerParams wires the tracker.
type TrackerParams struct {
	Repo     *Repository
	Tx       txRunner
	Ledger   ledger.Service
	Outbox   outboxEmitter
	Notifier Notifier
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

// NewTracker validates dependencies.
func NewTracker(p TrackerParams) (*Tracker, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Tracker{
		repo:     p.Repo,
		tx:       p.Tx,
		ledger:   p.Ledger,
		outbox:   p.Outbox,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		logg:     logg,
	}, nil
}

// RecordPayoutOutcome applies a transfer outcome to the order identified by
// reference. Replays leave the payout unchanged and report Applied=false.
// Failures raise an operator alert and are never retried here.
func (t *Tracker) RecordPayoutOutcome(ctx context.Context, reference string, outcome Outcome, details Details) (Result, error) {
	if strings.TrimSpace(reference) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "payout reference is required")
	}
	if outcome != OutcomeSuccess && outcome != OutcomeFailure {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown payout outcome")
	}
	order, err := t.repo.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for transfer").
				WithDetails(map[string]any{"reference": reference})
		}
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for payout")
	}

	at := details.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	logCtx := t.logg.WithFields(t.logg.WithOrderRef(ctx, reference), map[string]any{
		"payout_outcome":     string(outcome),
		"transfer_reference": details.TransferReference,
	})

	applied := false
	var updated *models.Order
	err = t.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := t.repo.WithTx(tx)
		var changed bool
		var err error
		if outcome == OutcomeSuccess {
			changed, err = repo.MarkCompleted(ctx, order.ID, details.TransferReference, at)
		} else {
			changed, err = repo.MarkFailed(ctx, order.ID, details.TransferReference, details.Reason, at)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout status")
		}
		if !changed {
			return nil
		}
		applied = true

		eventType := enums.LedgerEventPayoutCompleted
		if outcome == OutcomeFailure {
			eventType = enums.LedgerEventPayoutFailed
		}
		if _, err := t.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
			OrderID:        order.ID,
			OrderReference: order.Reference,
			Type:           eventType,
			Amount:         order.Payment.MerchantAmount,
			Metadata: map[string]any{
				"transfer_reference": details.TransferReference,
				"reason":             details.Reason,
				"processor_event":    details.ProcessorEvent,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout ledger event")
		}

		if outcome == OutcomeFailure {
			if err := t.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPayoutFailedAlert,
				AggregateType: enums.AggregatePayout,
				AggregateID:   order.ID,
				Actor:         outbox.ProcessorActor(details.ProcessorEvent),
				Data: payloads.PayoutEvent{
					OrderID:         order.ID,
					Reference:       order.Reference,
					MerchantID:      order.MerchantID,
					Status:          enums.PayoutStatusFailed,
					Amount:          order.Payment.MerchantAmount,
					PayoutReference: details.TransferReference,
					FailureReason:   details.Reason,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payout failure alert")
			}
		}

		updated, err = repo.FindByReference(ctx, reference)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if !applied {
		if outcome == OutcomeSuccess && order.Payment.PayoutStatus == enums.PayoutStatusFailed {
			t.logg.Warn(logCtx, "transfer success ignored for failed payout awaiting operator resolution")
		} else {
			t.logg.Info(logCtx, "payout outcome already recorded")
		}
		return Result{Applied: false, Order: order}, nil
	}

	if outcome == OutcomeFailure {
		t.metrics.IncPayout(string(enums.PayoutStatusFailed))
		t.logg.Error(t.logg.WithField(logCtx, "reason", details.Reason), "merchant payout failed",
			pkgerrors.New(pkgerrors.CodePayoutFailed, "merchant payout failed"))
		return Result{Applied: true, Order: updated}, nil
	}
	t.metrics.IncPayout(string(enums.PayoutStatusCompleted))
	t.logg.Info(logCtx, "merchant payout completed")
	t.notifier.Notify(ctx, updated, enums.EventPayoutCompleted)
	return Result{Applied: true, Order: updated}, nil
}

// ListFailed returns failed payouts awaiting operator action.
func (t *Tracker) ListFailed(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	orders, err := t.repo.ListFailed(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list failed payouts")
	}
	return orders, nil
}
