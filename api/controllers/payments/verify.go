package payments

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	ordercontrollers "github.com/grundyhq/grundy-backend/api/controllers/orders"
	"github.com/grundyhq/grundy-backend/api/responses"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
)

// Verifier re-queries the processor for an order's charge.
type Verifier interface {
	Verify(ctx context.Context, reference string) (*models.Order, error)
}

// Verify is the landing endpoint of the hosted checkout callback. It asks the
// processor for the charge and settles it through the same idempotent path
// as webhooks.
func Verify(svc Verifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required"))
			return
		}
		order, err := svc.Verify(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ordercontrollers.NewOrderView(order, nil))
	}
}
