// Package webhooks authenticates, deduplicates and routes processor events.
// Every event is acknowledged; failures are logged and counted instead of
// being returned to the processor.
package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/grundyhq/grundy-backend/internal/orders"
	"github.com/grundyhq/grundy-backend/internal/payouts"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/metrics"
)

// PaymentSettler applies payment outcomes to orders.
type PaymentSettler interface {
	ConfirmPayment(ctx context.Context, input orders.PaymentConfirmation) (orders.SettlementResult, error)
	FailPayment(ctx context.Context, input orders.PaymentFailure) (orders.SettlementResult, error)
}

// PayoutRecorder applies transfer outcomes.
type PayoutRecorder interface {
	RecordPayoutOutcome(ctx context.Context, reference string, outcome payouts.Outcome, details payouts.Details) (payouts.Result, error)
}

type eventLedger interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, event *models.WebhookEvent) (bool, error)
}

type inFlightGuard interface {
	Acquire(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Ack is what the controller reports back to the processor.
type Ack struct {
	Success   bool
	Message   string
	Kind      string
	EventID   string
	Duplicate bool
	Results   []DispatchResult
}

// Dispatch outcomes.
const (
	OutcomeApplied     = "applied"
	OutcomeReplayed    = "replayed"
	OutcomeRefunded    = "refund_scheduled"
	OutcomeDiscrepancy = "discrepancy"
	OutcomeUnmatched   = "unmatched"
	OutcomeConflict    = "conflict"
	OutcomeIgnored     = "ignored"
	OutcomeFailed      = "failed"
)

// DispatchResult is what one handler branch did with the event.
type DispatchResult struct {
	Kind      string
	Reference string
	Outcome   string
	Err       error
}

// IngestorParams wires the ingestor. Guard is optional.
type IngestorParams struct {
	Secret  string
	Events  eventLedger
	Orders  PaymentSettler
	Payouts PayoutRecorder
	Guard   inFlightGuard
	Metrics *metrics.PaymentMetrics
	Logger  *logger.Logger
}

// Ingestor is the single entry point for processor webhooks.
type Ingestor struct {
	secret  string
	events  eventLedger
	orders  PaymentSettler
	payouts PayoutRecorder
	guard   inFlightGuard
	metrics *metrics.PaymentMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewIngestor validates dependencies.
func NewIngestor(p IngestorParams) (*Ingestor, error) {
	if strings.TrimSpace(p.Secret) == "" {
		return nil, fmt.Errorf("webhook secret required")
	}
	if p.Events == nil {
		return nil, fmt.Errorf("webhook event repository required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("order settler required")
	}
	if p.Payouts == nil {
		return nil, fmt.Errorf("payout recorder required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Ingestor{
		secret:  p.Secret,
		events:  p.Events,
		orders:  p.Orders,
		payouts: p.Payouts,
		guard:   p.Guard,
		metrics: p.Metrics,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Ingest verifies, deduplicates and dispatches one raw event. The returned
// error is for logging; the Ack is always sent with HTTP 200.
func (i *Ingestor) Ingest(ctx context.Context, raw []byte, signature string) (Ack, error) {
	receivedAt := i.now()
	if err := VerifySignature(i.secret, raw, signature); err != nil {
		i.metrics.IncWebhook("unknown", "invalid_signature")
		return Ack{Success: false, Message: "invalid signature"}, err
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || strings.TrimSpace(env.Event) == "" {
		i.metrics.IncWebhook("unknown", "malformed")
		return Ack{Success: false, Message: "malformed event"},
			pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook envelope")
	}
	kind := env.Event
	ack := Ack{Kind: kind}

	if !isHandled(kind) {
		i.logg.Info(i.logg.WithField(ctx, "event_kind", kind), "unhandled webhook event acknowledged")
		i.metrics.IncWebhook(kind, OutcomeIgnored)
		ack.Success = true
		ack.Message = "event ignored"
		return ack, nil
	}

	id := eventID(env)
	if id == "" {
		i.metrics.IncWebhook(kind, "malformed")
		ack.Message = "event has no id or reference"
		return ack, pkgerrors.New(pkgerrors.CodeValidation, "webhook event has no id or reference")
	}
	ack.EventID = id
	ctx = i.logg.WithFields(i.logg.WithEventID(ctx, id), map[string]any{"event_kind": kind})

	seen, err := i.events.Exists(ctx, id)
	if err != nil {
		i.metrics.IncWebhook(kind, OutcomeFailed)
		ack.Message = "event ledger unavailable"
		return ack, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook ledger")
	}
	if seen {
		return i.duplicate(ctx, ack, "duplicate event"), nil
	}

	if i.guard != nil {
		acquired, err := i.guard.Acquire(ctx, id)
		switch {
		case err != nil:
			i.logg.Warn(i.logg.WithField(ctx, "error", err.Error()), "in-flight guard unavailable; continuing")
		case !acquired:
			return i.duplicate(ctx, ack, "event already in flight"), nil
		default:
			defer func() {
				if err := i.guard.Release(context.WithoutCancel(ctx), id); err != nil {
					i.logg.Warn(i.logg.WithField(ctx, "error", err.Error()), "release in-flight guard")
				}
			}()
		}
	}

	results := i.dispatch(ctx, env, id)
	ack.Results = results

	var errs error
	outcome := OutcomeApplied
	for _, res := range results {
		errs = multierr.Append(errs, res.Err)
		if res.Outcome != OutcomeApplied {
			outcome = res.Outcome
		}
	}
	if errs != nil {
		i.metrics.IncWebhook(kind, OutcomeFailed)
		i.logg.Error(ctx, "webhook dispatch failed", errs)
		ack.Message = "event processing failed"
		return ack, errs
	}

	recorded, err := i.events.Record(ctx, &models.WebhookEvent{
		EventID:    id,
		EventKind:  kind,
		Payload:    json.RawMessage(raw),
		ReceivedAt: receivedAt,
	})
	if err != nil {
		i.logg.Error(ctx, "record webhook event", err)
	} else if !recorded {
		i.logg.Info(ctx, "webhook event recorded by a concurrent delivery")
	}

	i.metrics.IncWebhook(kind, outcome)
	ack.Success = true
	ack.Message = "event processed"
	return ack, nil
}

func (i *Ingestor) duplicate(ctx context.Context, ack Ack, message string) Ack {
	i.logg.Info(ctx, message)
	i.metrics.IncWebhook(ack.Kind, "duplicate")
	ack.Success = true
	ack.Duplicate = true
	ack.Message = message
	return ack
}

func isHandled(kind string) bool {
	switch kind {
	case KindChargeSuccess, KindTransferSuccess, KindTransferFailed, KindDedicatedAccount,
		KindTerminalPaymentSuccess, KindTerminalPaymentFailed:
		return true
	}
	return false
}

func (i *Ingestor) dispatch(ctx context.Context, env Envelope, id string) []DispatchResult {
	switch env.Event {
	case KindChargeSuccess:
		return []DispatchResult{i.handleCharge(ctx, env, id)}
	case KindDedicatedAccount:
		return []DispatchResult{i.handleDedicatedTransaction(ctx, env, id)}
	case KindTerminalPaymentSuccess, KindTerminalPaymentFailed:
		return []DispatchResult{i.handleTerminal(ctx, env, id)}
	case KindTransferSuccess, KindTransferFailed:
		return []DispatchResult{i.handleTransfer(ctx, env, id)}
	}
	return nil
}

func (i *Ingestor) handleCharge(ctx context.Context, env Envelope, id string) DispatchResult {
	var data chargeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return DispatchResult{Kind: env.Event, Outcome: OutcomeFailed, Err: pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")}
	}
	if data.Status != "" && data.Status != "success" {
		return DispatchResult{Kind: env.Event, Reference: data.Reference, Outcome: OutcomeIgnored}
	}
	confirmation := orders.PaymentConfirmation{
		AmountMinor:    data.Amount,
		TransactionID:  string(data.ID),
		Channel:        data.Channel,
		PaidAt:         timeOrZero(data.PaidAt),
		Source:         "webhook",
		ProcessorEvent: id,
	}
	if account := data.dedicatedAccountNumber(); account != "" {
		confirmation.AccountNumber = account
	} else if ref := data.Metadata.str(orderReferenceKey); ref != "" {
		confirmation.Reference = ref
	} else {
		confirmation.Reference = data.Reference
	}
	return i.confirm(ctx, env.Event, confirmation)
}

func (i *Ingestor) handleDedicatedTransaction(ctx context.Context, env Envelope, id string) DispatchResult {
	var data dedicatedTransactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return DispatchResult{Kind: env.Event, Outcome: OutcomeFailed, Err: pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode dedicated account transaction")}
	}
	return i.confirm(ctx, env.Event, orders.PaymentConfirmation{
		AccountNumber:  data.AccountNumber,
		AmountMinor:    data.Amount,
		TransactionID:  string(data.ID),
		Channel:        dedicatedNubanChannel,
		PaidAt:         timeOrZero(data.PaidAt),
		Source:         "webhook",
		ProcessorEvent: id,
	})
}

func (i *Ingestor) handleTerminal(ctx context.Context, env Envelope, id string) DispatchResult {
	var data terminalPaymentData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return DispatchResult{Kind: env.Event, Outcome: OutcomeFailed, Err: pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode terminal payment")}
	}
	reference := data.Metadata.str(orderReferenceKey)
	session := ""
	if reference == "" {
		session = data.session()
	}

	if env.Event == KindTerminalPaymentFailed {
		res, err := i.orders.FailPayment(ctx, orders.PaymentFailure{
			Reference:       reference,
			TerminalSession: session,
			Reason:          data.Reason,
			ProcessorEvent:  id,
		})
		return i.settlementResult(ctx, env.Event, firstNonEmpty(reference, session), res, err)
	}
	return i.confirm(ctx, env.Event, orders.PaymentConfirmation{
		Reference:       reference,
		TerminalSession: session,
		AmountMinor:     data.Amount,
		TransactionID:   string(data.ID),
		Channel:         "terminal",
		PaidAt:          timeOrZero(data.PaidAt),
		Source:          "webhook",
		ProcessorEvent:  id,
	})
}

func (i *Ingestor) confirm(ctx context.Context, kind string, confirmation orders.PaymentConfirmation) DispatchResult {
	res, err := i.orders.ConfirmPayment(ctx, confirmation)
	ref := firstNonEmpty(confirmation.Reference, confirmation.TerminalSession, confirmation.AccountNumber)
	return i.settlementResult(ctx, kind, ref, res, err)
}

// settlementResult classifies a settlement outcome. Errors that a redelivery
// cannot fix are absorbed so the event is recorded and not replayed.
func (i *Ingestor) settlementResult(ctx context.Context, kind, ref string, res orders.SettlementResult, err error) DispatchResult {
	result := DispatchResult{Kind: kind, Reference: ref}
	if res.Order != nil {
		result.Reference = res.Order.Reference
	}
	logCtx := i.logg.WithOrderRef(ctx, result.Reference)
	switch {
	case err == nil:
		switch res.Outcome {
		case orders.OutcomeAlreadyApplied:
			result.Outcome = OutcomeReplayed
		case orders.OutcomeRefundScheduled:
			result.Outcome = OutcomeRefunded
		default:
			result.Outcome = OutcomeApplied
		}
	case pkgerrors.IsCode(err, pkgerrors.CodeAmountMismatch):
		result.Outcome = OutcomeDiscrepancy
		i.logg.Warn(logCtx, "payment amount mismatch recorded for reconciliation")
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		result.Outcome = OutcomeUnmatched
		i.logg.Warn(logCtx, "no order matches payment event")
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		result.Outcome = OutcomeConflict
		i.logg.Warn(i.logg.WithField(logCtx, "error", err.Error()), "payment event conflicts with order state")
	default:
		result.Outcome = OutcomeFailed
		result.Err = err
	}
	return result
}

func (i *Ingestor) handleTransfer(ctx context.Context, env Envelope, id string) DispatchResult {
	var data transferData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return DispatchResult{Kind: env.Event, Outcome: OutcomeFailed, Err: pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode transfer")}
	}
	outcome := payouts.OutcomeSuccess
	if env.Event == KindTransferFailed {
		outcome = payouts.OutcomeFailure
	}
	res, err := i.payouts.RecordPayoutOutcome(ctx, data.Reference, outcome, payouts.Details{
		TransferReference: data.TransferCode,
		Reason:            data.Reason,
		OccurredAt:        timeOrZero(data.UpdatedAt),
		ProcessorEvent:    id,
	})
	result := DispatchResult{Kind: env.Event, Reference: data.Reference}
	logCtx := i.logg.WithOrderRef(ctx, data.Reference)
	switch {
	case err == nil && res.Applied:
		result.Outcome = OutcomeApplied
	case err == nil:
		result.Outcome = OutcomeReplayed
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound), pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		result.Outcome = OutcomeUnmatched
		i.logg.Warn(logCtx, "no order matches transfer event")
	default:
		result.Outcome = OutcomeFailed
		result.Err = err
	}
	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
