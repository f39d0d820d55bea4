package channels

import (
	"context"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/grundyhq/grundy-backend/pkg/enums"
	"github.com/grundyhq/grundy-backend/pkg/paystack"
)

var _ Processor = (*PaystackProcessor)(nil)

// PaystackProcessor adapts the Paystack client to the Processor contract. It
// also serves transaction verification and refunds for the checkout and
// refund services.
type PaystackProcessor struct {
	client *paystack.Client

	mu     sync.Mutex
	splits map[string]string
}

// NewPaystackProcessor wraps client.
func NewPaystackProcessor(client *paystack.Client) *PaystackProcessor {
	return &PaystackProcessor{client: client, splits: make(map[string]string)}
}

func (p *PaystackProcessor) InitializeCheckout(ctx context.Context, req CheckoutRequest) (*HostedCheckoutResult, error) {
	resp, err := p.client.InitializeTransaction(ctx, paystack.InitializeTransactionRequest{
		Email:             req.Email,
		Amount:            req.AmountMinor,
		Reference:         req.Reference,
		CallbackURL:       req.CallbackURL,
		Subaccount:        req.Subaccount,
		TransactionCharge: req.PlatformFeeMinor,
		Bearer:            string(req.Bearer),
		Metadata:          req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return &HostedCheckoutResult{
		AuthorizationURL:   resp.AuthorizationURL,
		AccessCode:         resp.AccessCode,
		ProcessorReference: resp.Reference,
	}, nil
}

func (p *PaystackProcessor) AssignDedicatedAccount(ctx context.Context, req DedicatedAccountRequest) (*DedicatedAccount, error) {
	account, err := p.client.CreateDedicatedAccount(ctx, paystack.CreateDedicatedAccountRequest{
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		PreferredBank: req.PreferredBank,
		Subaccount:    req.Subaccount,
		SplitCode:     req.SplitCode,
	})
	if paystack.IsDuplicateAccount(err) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, err
	}
	return toDedicatedAccount(account), nil
}

func (p *PaystackProcessor) SplitDedicatedAccount(ctx context.Context, req DedicatedAccountRequest) (*DedicatedAccount, error) {
	account, err := p.client.SplitDedicatedAccount(ctx, paystack.SplitDedicatedAccountRequest{
		Customer:      req.Email,
		Subaccount:    req.Subaccount,
		SplitCode:     req.SplitCode,
		PreferredBank: req.PreferredBank,
	})
	if err != nil {
		return nil, err
	}
	return toDedicatedAccount(account), nil
}

// ResolveSplit returns the split code for the allocation, reusing an active
// split registered under the same name before creating one. Resolved codes
// are kept for the life of the process.
func (p *PaystackProcessor) ResolveSplit(ctx context.Context, req SplitRequest) (string, error) {
	key := req.Key()
	p.mu.Lock()
	code, ok := p.splits[key]
	p.mu.Unlock()
	if ok {
		return code, nil
	}

	name := "grundy:" + key
	existing, err := p.client.ListSplits(ctx, name)
	if err != nil {
		return "", err
	}
	for _, split := range existing {
		if splitMatches(split, req) {
			code = split.SplitCode
			break
		}
	}
	if code == "" {
		created, err := p.client.CreateSplit(ctx, paystack.CreateSplitRequest{
			Name: name,
			Subaccounts: []paystack.SplitShare{{
				Subaccount: req.Subaccount,
				Share:      req.MerchantSharePercent.InexactFloat64(),
			}},
			BearerType:       string(req.Bearer),
			BearerSubaccount: bearerSubaccount(req),
		})
		if err != nil {
			return "", err
		}
		code = created.SplitCode
	}
	if code == "" {
		return "", errEmptyResponse
	}

	p.mu.Lock()
	p.splits[key] = code
	p.mu.Unlock()
	return code, nil
}

func splitMatches(split paystack.Split, req SplitRequest) bool {
	if !split.Active || split.SplitCode == "" || split.BearerType != string(req.Bearer) {
		return false
	}
	share, ok := split.ShareFor(req.Subaccount)
	return ok && decimal.NewFromFloat(share).Equal(req.MerchantSharePercent)
}

func bearerSubaccount(req SplitRequest) string {
	if req.Bearer == enums.FeeBearerSubaccount {
		return req.Subaccount
	}
	return ""
}

func (p *PaystackProcessor) FetchDedicatedAccount(ctx context.Context, customerEmail string) (*DedicatedAccount, error) {
	account, err := p.client.FetchDedicatedAccount(ctx, customerEmail)
	if err != nil {
		return nil, err
	}
	return toDedicatedAccount(account), nil
}

func (p *PaystackProcessor) StartTerminalSession(ctx context.Context, req TerminalRequest) (*TerminalSessionResult, error) {
	meta := make(map[string]any, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["order_reference"] = req.Reference

	invoice, err := p.client.CreateTerminalPaymentRequest(ctx, paystack.PaymentRequest{
		Customer:    req.CustomerEmail,
		Amount:      req.AmountMinor,
		Description: req.Description,
		SplitCode:   req.SplitCode,
		Metadata:    meta,
	})
	if err != nil {
		return nil, err
	}
	event, err := p.client.PushToTerminal(ctx, req.TerminalID, *invoice)
	if err != nil {
		return nil, err
	}
	return &TerminalSessionResult{
		SessionID:        invoice.RequestCode,
		TerminalID:       req.TerminalID,
		OfflineReference: invoice.OfflineRef,
		EventID:          event.ID,
	}, nil
}

// VerifyTransaction re-queries a charge by reference.
func (p *PaystackProcessor) VerifyTransaction(ctx context.Context, reference string) (*VerifiedTransaction, error) {
	tx, err := p.client.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	return &VerifiedTransaction{
		Reference:     tx.Reference,
		TransactionID: strconv.FormatInt(tx.ID, 10),
		AmountMinor:   tx.Amount,
		Succeeded:     tx.Succeeded(),
		Status:        tx.Status,
		Channel:       tx.Channel,
		PaidAt:        tx.PaidAt,
	}, nil
}

// Refund returns funds for a settled transaction.
func (p *PaystackProcessor) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	refund, err := p.client.CreateRefund(ctx, paystack.RefundRequest{
		Transaction:  req.TransactionID,
		Amount:       req.AmountMinor,
		MerchantNote: req.Note,
	})
	if err != nil {
		return nil, err
	}
	return &RefundResult{
		ProcessorReference: strconv.FormatInt(refund.ID, 10),
		Status:             refund.Status,
	}, nil
}

func toDedicatedAccount(account *paystack.DedicatedAccount) *DedicatedAccount {
	if account == nil {
		return nil
	}
	return &DedicatedAccount{
		AccountNumber:     account.AccountNumber,
		BankName:          account.Bank.Name,
		AccountName:       account.AccountName,
		ProviderAccountID: strconv.FormatInt(account.ID, 10),
		SplitCode:         account.SplitCode(),
	}
}
