package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/grundyhq/grundy-backend/api/responses"
	"github.com/grundyhq/grundy-backend/api/validators"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

type FailedPayoutLister interface {
	ListFailed(ctx context.Context, limit int) ([]models.Order, error)
}

type RefundProcessor interface {
	Process(ctx context.Context, orderReference string) (*models.Refund, error)
}

type DiscrepancyLister interface {
	ListDiscrepancies(ctx context.Context, limit int) ([]models.LedgerEvent, error)
}

type OrderLookup interface {
	Get(ctx context.Context, reference string) (*models.Order, error)
}

type ParkedEventLister interface {
	ListForAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxDLQ, error)
}

type failedPayoutView struct {
	OrderID         string     `json:"order_id"`
	Reference       string     `json:"reference"`
	MerchantID      string     `json:"merchant_id"`
	MerchantAmount  string     `json:"merchant_amount"`
	PayoutReference string     `json:"payout_reference,omitempty"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

type refundView struct {
	ID                 string `json:"id"`
	OrderReference     string `json:"order_reference"`
	Amount             string `json:"amount"`
	Status             string `json:"status"`
	ProcessorReference string `json:"processor_reference,omitempty"`
}

type discrepancyView struct {
	OrderReference string          `json:"order_reference"`
	ReceivedAmount string          `json:"received_amount"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	RecordedAt     time.Time       `json:"recorded_at"`
}

// FailedPayouts lists orders whose merchant transfer failed, newest first.
func FailedPayouts(svc FailedPayoutLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.QueryLimit(r, defaultListLimit, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListFailed(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]failedPayoutView, 0, len(list))
		for _, order := range list {
			views = append(views, failedPayoutView{
				OrderID:         order.ID.String(),
				Reference:       order.Reference,
				MerchantID:      order.MerchantID.String(),
				MerchantAmount:  order.Payment.MerchantAmount.StringFixed(2),
				PayoutReference: deref(order.Payment.PayoutReference),
				FailureReason:   deref(order.Payment.PayoutFailureReason),
				UpdatedAt:       order.Payment.PayoutUpdatedAt,
			})
		}
		responses.WriteSuccess(w, views)
	}
}

// ProcessRefund submits the scheduled refund for an order to the processor.
func ProcessRefund(svc RefundProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, ok := referenceParam(w, r, logg)
		if !ok {
			return
		}
		refund, err := svc.Process(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refundView{
			ID:                 refund.ID.String(),
			OrderReference:     refund.OrderReference,
			Amount:             refund.Amount.StringFixed(2),
			Status:             string(refund.Status),
			ProcessorReference: deref(refund.ProcessorReference),
		})
	}
}

// Discrepancies lists payments whose amount did not match their order.
func Discrepancies(svc DiscrepancyLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.QueryLimit(r, defaultListLimit, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := svc.ListDiscrepancies(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list discrepancies"))
			return
		}
		views := make([]discrepancyView, 0, len(events))
		for _, event := range events {
			views = append(views, discrepancyView{
				OrderReference: event.OrderReference,
				ReceivedAmount: event.Amount.StringFixed(2),
				Metadata:       event.Metadata,
				RecordedAt:     event.CreatedAt,
			})
		}
		responses.WriteSuccess(w, views)
	}
}

type parkedEventView struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Reason       string    `json:"reason"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempts     int       `json:"attempts"`
	FailedAt     time.Time `json:"failed_at"`
}

// ParkedEvents lists the outbox events the publisher gave up on for an order.
func ParkedEvents(orders OrderLookup, dlq ParkedEventLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, ok := referenceParam(w, r, logg)
		if !ok {
			return
		}
		order, err := orders.Get(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		parked, err := dlq.ListForAggregate(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list parked events"))
			return
		}
		views := make([]parkedEventView, 0, len(parked))
		for _, entry := range parked {
			views = append(views, parkedEventView{
				EventID:      entry.EventID.String(),
				EventType:    string(entry.EventType),
				Reason:       string(entry.ErrorReason),
				ErrorMessage: deref(entry.ErrorMessage),
				Attempts:     entry.AttemptCount,
				FailedAt:     entry.FailedAt,
			})
		}
		responses.WriteSuccess(w, views)
	}
}

func referenceParam(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required"))
		return "", false
	}
	return reference, true
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
