package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/grundyhq/grundy-backend/api/middleware"
	"github.com/grundyhq/grundy-backend/api/responses"
	"github.com/grundyhq/grundy-backend/api/validators"
	"github.com/grundyhq/grundy-backend/internal/checkout"
	internalorders "github.com/grundyhq/grundy-backend/internal/orders"
	"github.com/grundyhq/grundy-backend/pkg/auth"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
)

// Create validates the request, creates the order and returns the channel the
// customer pays through.
func Create(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := req.toInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, NewOrderView(result.Order, &result.Channel))
	}
}

// Detail returns the order by reference.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, ok := referenceParam(w, r, logg)
		if !ok {
			return
		}
		order, err := svc.Get(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewOrderView(order, nil))
	}
}

// Cancel cancels the order; a paid order gets its refund scheduled.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, ok := referenceParam(w, r, logg)
		if !ok {
			return
		}
		var req cancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), reference, validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewOrderView(order, nil))
	}
}

// RetryChannel re-attempts payment initiation for an order whose first
// attempt failed.
func RetryChannel(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, ok := referenceParam(w, r, logg)
		if !ok {
			return
		}
		var req retryChannelRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RetryChannel(r.Context(), reference, checkout.RetryInput{
			PaymentMethod: enums.PaymentMethod(req.PaymentMethod),
			TerminalID:    req.TerminalID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewOrderView(result.Order, &result.Channel))
	}
}

// UpdateDelivery records rider progress. Operator only.
func UpdateDelivery(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reference, ok := referenceParam(w, r, logg)
		if !ok {
			return
		}
		var req deliveryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.UpdateDeliveryStatus(r.Context(), reference, internalorders.DeliveryInput{
			Status:  enums.DeliveryStatus(req.Status),
			RiderID: validators.SanitizeString(req.RiderID, 64),
			Notes:   validators.SanitizeString(req.Notes, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewOrderView(order, nil))
	}
}

func (req createOrderRequest) toInput(r *http.Request) (checkout.CreateOrderInput, error) {
	merchantID, err := uuid.Parse(req.MerchantID)
	if err != nil {
		return checkout.CreateOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid merchant_id")
	}
	items := make([]internalorders.ItemInput, 0, len(req.Items))
	for i, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return checkout.CreateOrderInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product_id").
				WithDetails(map[string]any{"item_index": i})
		}
		items = append(items, internalorders.ItemInput{
			ProductID: productID,
			Name:      validators.SanitizeString(item.Name, 120),
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
		})
	}

	return checkout.CreateOrderInput{
		MerchantID: merchantID,
		CustomerID: customerID(r),
		Customer: internalorders.CustomerInput{
			Email: strings.ToLower(strings.TrimSpace(req.Customer.Email)),
			Phone: validators.SanitizeString(req.Customer.Phone, 32),
			Name:  validators.SanitizeString(req.Customer.Name, 120),
		},
		DeliveryAddress: req.DeliveryAddress.toAddress(),
		Items:           items,
		PaymentMethod:   enums.PaymentMethod(req.PaymentMethod),
		TerminalID:      req.TerminalID,
	}, nil
}

// customerID links the order to an authenticated customer. Guests and
// non-uuid subjects leave it empty.
func customerID(r *http.Request) *uuid.UUID {
	caller, ok := middleware.IdentityFromContext(r.Context())
	if !ok || caller.Role != auth.RoleCustomer {
		return nil
	}
	id, err := uuid.Parse(caller.Subject)
	if err != nil {
		return nil
	}
	return &id
}

func referenceParam(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required"))
		return "", false
	}
	return reference, true
}
