package channels

import (
	"context"

	"github.com/grundyhq/grundy-backend/internal/fees"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/metrics"
)

// HostedCheckout redirects the customer to the processor's payment page.
type HostedCheckout struct {
	base
	callbackURL string
}

// NewHostedCheckout builds the online channel adapter.
func NewHostedCheckout(processor Processor, opts Options, m *metrics.PaymentMetrics, logg *logger.Logger) *HostedCheckout {
	return &HostedCheckout{
		base:        newBase(processor, m, logg, opts.Timeout),
		callbackURL: opts.CallbackURL,
	}
}

func (h *HostedCheckout) Method() enums.PaymentMethod {
	return enums.PaymentMethodOnline
}

func (h *HostedCheckout) Preflight(order InitiateOrder, merchant Settlement) error {
	if err := requirePayable(merchant); err != nil {
		return err
	}
	return validateSplit(order.Split)
}

func (h *HostedCheckout) Initiate(ctx context.Context, order InitiateOrder, merchant Settlement) (Result, error) {
	if err := h.Preflight(order, merchant); err != nil {
		return Result{}, err
	}
	if err := validateOrder(order); err != nil {
		return Result{}, err
	}

	req := CheckoutRequest{
		Email:            order.Customer.Email,
		AmountMinor:      fees.ToMinorUnits(order.Amount),
		PlatformFeeMinor: fees.ToMinorUnits(order.PlatformFee),
		Reference:        order.Reference,
		CallbackURL:      h.callbackURL,
		Subaccount:       merchant.SubaccountCode,
		Bearer:           order.Split.Bearer,
		Metadata:         splitMetadata(order),
	}

	var hosted *HostedCheckoutResult
	err := h.call(ctx, h.Method(), func(ctx context.Context) error {
		var err error
		hosted, err = h.processor.InitializeCheckout(ctx, req)
		if err == nil && hosted == nil {
			err = errEmptyResponse
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if hosted.ProcessorReference == "" {
		hosted.ProcessorReference = order.Reference
	}
	return Result{
		Method:        h.Method(),
		PaymentStatus: h.Method().ChannelPaymentStatus(),
		Hosted:        hosted,
	}, nil
}
