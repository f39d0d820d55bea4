package channels

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grundyhq/grundy-backend/internal/fees"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/metrics"
)

// ErrAccountExists is returned by a Processor when the customer already holds
// a dedicated account and a new one cannot be opened.
var ErrAccountExists = errors.New("dedicated account already exists")

var errEmptyResponse = errors.New("processor returned an empty response")

// Customer is the contact the processor charges.
type Customer struct {
	Email string
	Phone string
	Name  string
}

// InitiateOrder is the read-only view of an order an adapter needs to start
// a payment. Adapters never write to the order.
type InitiateOrder struct {
	OrderID     uuid.UUID
	Reference   string
	Amount      decimal.Decimal
	PlatformFee decimal.Decimal
	Customer    Customer
	CustomerID  *uuid.UUID
	MerchantID  uuid.UUID
	Split       fees.SplitConfig
	TerminalID  string
}

// Settlement is the merchant's settlement destination at the processor.
type Settlement struct {
	MerchantID       uuid.UUID
	Name             string
	Email            string
	SubaccountCode   string
	DedicatedAccount *DedicatedAccount
}

// Payable reports whether funds can be routed to the merchant.
func (s Settlement) Payable() bool {
	return strings.TrimSpace(s.SubaccountCode) != ""
}

// DedicatedAccount is a reusable bank transfer account. SplitCode is the
// split transfers into it currently settle under.
type DedicatedAccount struct {
	AccountNumber     string
	BankName          string
	AccountName       string
	ProviderAccountID string
	SplitCode         string
}

// HostedCheckoutResult is the hosted page the customer is redirected to.
type HostedCheckoutResult struct {
	AuthorizationURL   string
	AccessCode         string
	ProcessorReference string
}

// DedicatedAccountResult is the account the customer transfers into.
type DedicatedAccountResult struct {
	Account      DedicatedAccount
	Reused       bool
	Instructions string
}

// TerminalSessionResult identifies the invoice pushed to a terminal.
type TerminalSessionResult struct {
	SessionID        string
	TerminalID       string
	OfflineReference string
	EventID          string
}

// Result is the outcome of a channel initiation. Exactly one of Hosted,
// Dedicated or Terminal is set, selected by Method.
type Result struct {
	Method        enums.PaymentMethod
	PaymentStatus enums.PaymentStatus
	Hosted        *HostedCheckoutResult
	Dedicated     *DedicatedAccountResult
	Terminal      *TerminalSessionResult
}

// Validate checks the union shape.
func (r Result) Validate() error {
	if !r.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown channel result method")
	}
	set := 0
	for _, present := range []bool{r.Hosted != nil, r.Dedicated != nil, r.Terminal != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "channel result must carry exactly one channel reference")
	}
	switch r.Method {
	case enums.PaymentMethodOnline:
		if r.Hosted == nil || r.Hosted.ProcessorReference == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "hosted checkout reference missing")
		}
	case enums.PaymentMethodBankTransfer:
		if r.Dedicated == nil || r.Dedicated.Account.AccountNumber == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "dedicated account number missing")
		}
	case enums.PaymentMethodTerminal:
		if r.Terminal == nil || r.Terminal.SessionID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "terminal session missing")
		}
	}
	if r.PaymentStatus != r.Method.ChannelPaymentStatus() {
		return pkgerrors.New(pkgerrors.CodeValidation, "channel result payment status does not match method")
	}
	return nil
}

// Adapter starts a payment on one channel. Preflight runs the checks that
// need no processor call, so callers can refuse a request before persisting
// anything; Initiate repeats them.
type Adapter interface {
	Method() enums.PaymentMethod
	Preflight(order InitiateOrder, merchant Settlement) error
	Initiate(ctx context.Context, order InitiateOrder, merchant Settlement) (Result, error)
}

// AccountCache persists a dedicated account against the merchant so later
// orders reuse it.
type AccountCache interface {
	CacheDedicatedAccount(ctx context.Context, merchantID uuid.UUID, account DedicatedAccount) error
}

// Options configures the adapters.
type Options struct {
	Timeout         time.Duration
	CallbackURL     string
	PreferredBank   string
	DefaultTerminal string
}

const defaultTimeout = 15 * time.Second

// base carries what every adapter shares: the bounded external call and its
// instrumentation.
type base struct {
	processor Processor
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
	timeout   time.Duration
}

func newBase(processor Processor, m *metrics.PaymentMetrics, logg *logger.Logger, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return base{processor: processor, metrics: m, logg: logg, timeout: timeout}
}

// call runs fn under the processor timeout. Any failure becomes a retryable
// CHANNEL_INITIATION_FAILED.
func (b base) call(ctx context.Context, method enums.PaymentMethod, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	b.metrics.ObserveChannel(string(method), time.Since(start), err)
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeMerchantNotPayable {
		return err
	}
	if b.logg != nil {
		logCtx := b.logg.WithField(ctx, "payment_method", string(method))
		b.logg.Warn(logCtx, "payment channel initiation failed: "+err.Error())
	}
	return pkgerrors.Wrap(pkgerrors.CodeChannelInitiation, err, "payment channel initiation failed").
		WithDetails(map[string]any{"payment_method": method})
}

func notPayable(merchantID uuid.UUID, reason string) error {
	return pkgerrors.New(pkgerrors.CodeMerchantNotPayable, reason).
		WithDetails(map[string]any{"merchant_id": merchantID.String()})
}

func requirePayable(merchant Settlement) error {
	if !merchant.Payable() {
		return notPayable(merchant.MerchantID, "merchant has no settlement sub-account")
	}
	return nil
}

func validateOrder(order InitiateOrder) error {
	if strings.TrimSpace(order.Reference) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order reference is required")
	}
	if !order.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}
	return validateSplit(order.Split)
}

func splitRequest(order InitiateOrder, merchant Settlement) SplitRequest {
	return SplitRequest{
		Subaccount:           merchant.SubaccountCode,
		MerchantSharePercent: order.Split.MerchantSharePercent,
		PlatformSharePercent: order.Split.PlatformSharePercent,
		Bearer:               order.Split.Bearer,
	}
}

func validateSplit(split fees.SplitConfig) error {
	if !split.MerchantSharePercent.IsPositive() || split.PlatformSharePercent.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "order split shares are not set")
	}
	if !split.MerchantSharePercent.Add(split.PlatformSharePercent).Equal(decimal.NewFromInt(100)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "order split shares must add up to 100")
	}
	if !split.Bearer.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "order split has no fee bearer")
	}
	return nil
}

func splitMetadata(order InitiateOrder) map[string]any {
	meta := map[string]any{
		"order_id":               order.Reference,
		"merchant_id":            order.MerchantID.String(),
		"merchant_share_percent": order.Split.MerchantSharePercent.String(),
		"platform_share_percent": order.Split.PlatformSharePercent.String(),
		"fee_bearer":             string(order.Split.Bearer),
	}
	if order.CustomerID != nil {
		meta["customer_id"] = order.CustomerID.String()
	}
	return meta
}
