package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/grundyhq/grundy-backend/pkg/enums"
)

// Processor is the payment processor contract the channels rely on. Amounts
// are in minor units.
type Processor interface {
	InitializeCheckout(ctx context.Context, req CheckoutRequest) (*HostedCheckoutResult, error)
	AssignDedicatedAccount(ctx context.Context, req DedicatedAccountRequest) (*DedicatedAccount, error)
	FetchDedicatedAccount(ctx context.Context, customerEmail string) (*DedicatedAccount, error)
	SplitDedicatedAccount(ctx context.Context, req DedicatedAccountRequest) (*DedicatedAccount, error)
	ResolveSplit(ctx context.Context, req SplitRequest) (string, error)
	StartTerminalSession(ctx context.Context, req TerminalRequest) (*TerminalSessionResult, error)
}

// CheckoutRequest starts a hosted checkout with the split attached.
type CheckoutRequest struct {
	Email            string
	AmountMinor      int64
	PlatformFeeMinor int64
	Reference        string
	CallbackURL      string
	Subaccount       string
	Bearer           enums.FeeBearer
	Metadata         map[string]any
}

// SplitRequest names the allocation a processor split code must settle: the
// merchant's percentage to its sub-account, the rest to the platform, and
// who absorbs the processor fee.
type SplitRequest struct {
	Subaccount           string
	MerchantSharePercent decimal.Decimal
	PlatformSharePercent decimal.Decimal
	Bearer               enums.FeeBearer
}

// Key identifies the split. Two requests with the same key may share a
// split code.
func (r SplitRequest) Key() string {
	return fmt.Sprintf("%s:%s:%s:%s", r.Subaccount,
		r.MerchantSharePercent.StringFixed(2), r.PlatformSharePercent.StringFixed(2), r.Bearer)
}

// DedicatedAccountRequest opens a bank transfer account, or re-splits an
// existing one, so transfers settle under SplitCode.
type DedicatedAccountRequest struct {
	Email         string
	FirstName     string
	LastName      string
	Phone         string
	PreferredBank string
	Subaccount    string
	SplitCode     string
}

// TerminalRequest creates an invoice and pushes it to a terminal.
type TerminalRequest struct {
	CustomerEmail string
	AmountMinor   int64
	Reference     string
	TerminalID    string
	SplitCode     string
	Description   string
	Metadata      map[string]any
}

// VerifiedTransaction is the processor's view of a charge on re-query.
type VerifiedTransaction struct {
	Reference     string
	TransactionID string
	AmountMinor   int64
	Succeeded     bool
	Status        string
	Channel       string
	PaidAt        time.Time
}

// RefundRequest returns funds for a settled transaction. AmountMinor 0 means
// the full amount.
type RefundRequest struct {
	TransactionID string
	AmountMinor   int64
	Note          string
}

// RefundResult is the processor's refund record.
type RefundResult struct {
	ProcessorReference string
	Status             string
}
