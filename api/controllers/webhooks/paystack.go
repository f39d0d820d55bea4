package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/grundyhq/grundy-backend/api/responses"
	internalwebhooks "github.com/grundyhq/grundy-backend/internal/webhooks"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// Ingestor is the webhook pipeline behind the endpoint.
type Ingestor interface {
	Ingest(ctx context.Context, raw []byte, signature string) (internalwebhooks.Ack, error)
}

// PaystackWebhook acknowledges every delivery with 200 and a
// {"success","message"} body. Failures are logged, never surfaced as non-200
// statuses, so the processor does not build a retry backlog against a
// rejected signature.
func PaystackWebhook(ingestor Ingestor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if ingestor == nil {
			logg.Error(ctx, "paystack webhook received without ingestor", pkgerrors.New(pkgerrors.CodeInternal, "webhook ingestor unavailable"))
			responses.WriteAck(w, false, "webhook processing unavailable")
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "read paystack webhook body")
			responses.WriteAck(w, false, "unreadable body")
			return
		}

		ack, err := ingestor.Ingest(ctx, payload, r.Header.Get(internalwebhooks.SignatureHeader))
		if err != nil {
			fields := map[string]any{"event_kind": ack.Kind, "event_id": ack.EventID}
			logCtx := logg.WithFields(ctx, fields)
			switch {
			case pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature):
				logg.Warn(logg.WithField(logCtx, "error", err.Error()), "paystack webhook signature rejected")
			case pkgerrors.IsCode(err, pkgerrors.CodeValidation):
				logg.Warn(logg.WithField(logCtx, "error", err.Error()), "paystack webhook malformed")
			default:
				logg.Error(logCtx, "paystack webhook failed", err)
			}
		}
		responses.WriteAck(w, ack.Success, ack.Message)
	}
}
