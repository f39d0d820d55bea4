package channels

import (
	"context"
	"strings"

	"github.com/grundyhq/grundy-backend/internal/fees"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/metrics"
)

// TerminalSession collects payment on delivery through a point-of-sale
// terminal carried by the rider.
type TerminalSession struct {
	base
	defaultTerminal string
}

// NewTerminalSession builds the terminal_delivery adapter.
func NewTerminalSession(processor Processor, opts Options, m *metrics.PaymentMetrics, logg *logger.Logger) *TerminalSession {
	return &TerminalSession{
		base:            newBase(processor, m, logg, opts.Timeout),
		defaultTerminal: strings.TrimSpace(opts.DefaultTerminal),
	}
}

func (t *TerminalSession) Method() enums.PaymentMethod {
	return enums.PaymentMethodTerminal
}

func (t *TerminalSession) Preflight(order InitiateOrder, merchant Settlement) error {
	if err := requirePayable(merchant); err != nil {
		return err
	}
	if t.terminalFor(order) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "terminal_id is required for terminal payments")
	}
	return validateSplit(order.Split)
}

func (t *TerminalSession) terminalFor(order InitiateOrder) string {
	if id := strings.TrimSpace(order.TerminalID); id != "" {
		return id
	}
	return t.defaultTerminal
}

// Initiate resolves the processor split for the order's allocation and
// raises the invoice under it before pushing it to the terminal.
func (t *TerminalSession) Initiate(ctx context.Context, order InitiateOrder, merchant Settlement) (Result, error) {
	if err := t.Preflight(order, merchant); err != nil {
		return Result{}, err
	}
	if err := validateOrder(order); err != nil {
		return Result{}, err
	}
	terminalID := t.terminalFor(order)

	meta := splitMetadata(order)
	meta["payment_method"] = string(t.Method())
	req := TerminalRequest{
		CustomerEmail: order.Customer.Email,
		AmountMinor:   fees.ToMinorUnits(order.Amount),
		Reference:     order.Reference,
		TerminalID:    terminalID,
		Description:   "Order " + order.Reference,
		Metadata:      meta,
	}

	var session *TerminalSessionResult
	err := t.call(ctx, t.Method(), func(ctx context.Context) error {
		splitCode, err := t.processor.ResolveSplit(ctx, splitRequest(order, merchant))
		if err != nil {
			return err
		}
		if splitCode == "" {
			return errEmptyResponse
		}
		req.SplitCode = splitCode
		session, err = t.processor.StartTerminalSession(ctx, req)
		if err == nil && (session == nil || session.SessionID == "") {
			err = errEmptyResponse
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}
	session.TerminalID = terminalID
	return Result{
		Method:        t.Method(),
		PaymentStatus: t.Method().ChannelPaymentStatus(),
		Terminal:      session,
	}, nil
}
