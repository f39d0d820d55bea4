package channels

import (
	"fmt"

	"github.com/grundyhq/grundy-backend/pkg/enums"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/metrics"
)

// Registry selects the adapter for a payment method.
type Registry struct {
	adapters map[enums.PaymentMethod]Adapter
}

// NewRegistry indexes adapters by method. Registering two adapters for the
// same method is an error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[enums.PaymentMethod]Adapter, len(adapters))}
	for _, adapter := range adapters {
		if adapter == nil {
			return nil, fmt.Errorf("nil channel adapter")
		}
		method := adapter.Method()
		if !method.IsValid() {
			return nil, fmt.Errorf("adapter reports unknown payment method %q", method)
		}
		if _, exists := r.adapters[method]; exists {
			return nil, fmt.Errorf("duplicate adapter for payment method %q", method)
		}
		r.adapters[method] = adapter
	}
	return r, nil
}

// RegistryParams wires the default adapters.
type RegistryParams struct {
	Processor Processor
	Accounts  AccountCache
	Options   Options
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
}

// NewDefaultRegistry registers the hosted checkout, dedicated account and
// terminal session adapters against one processor.
func NewDefaultRegistry(p RegistryParams) (*Registry, error) {
	if p.Processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	return NewRegistry(
		NewHostedCheckout(p.Processor, p.Options, p.Metrics, p.Logger),
		NewDedicatedAccountChannel(p.Processor, p.Accounts, p.Options, p.Metrics, p.Logger),
		NewTerminalSession(p.Processor, p.Options, p.Metrics, p.Logger),
	)
}

// For returns the adapter registered for method.
func (r *Registry) For(method enums.PaymentMethod) (Adapter, error) {
	if r != nil {
		if adapter, ok := r.adapters[method]; ok {
			return adapter, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
		WithDetails(map[string]any{"payment_method": method})
}
