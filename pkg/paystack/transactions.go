package paystack

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// InitializeTransactionRequest starts a hosted checkout. Amount is in kobo.
type InitializeTransactionRequest struct {
	Email             string         `json:"email"`
	Amount            int64          `json:"amount"`
	Reference         string         `json:"reference"`
	CallbackURL       string         `json:"callback_url,omitempty"`
	Subaccount        string         `json:"subaccount,omitempty"`
	SplitCode         string         `json:"split_code,omitempty"`
	TransactionCharge int64          `json:"transaction_charge,omitempty"`
	Bearer            string         `json:"bearer,omitempty"`
	Channels          []string       `json:"channels,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// InitializeTransactionResponse is the hosted page handle.
type InitializeTransactionResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// InitializeTransaction calls POST /transaction/initialize.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeTransactionRequest) (*InitializeTransactionResponse, error) {
	var out InitializeTransactionResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transaction is the verified state of a charge.
type Transaction struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	Fees      int64     `json:"fees"`
	Channel   string    `json:"channel"`
	Currency  string    `json:"currency"`
	PaidAt    time.Time `json:"paid_at"`
}

// Succeeded reports whether the processor considers the charge settled.
func (t Transaction) Succeeded() bool {
	return t.Status == "success"
}

// VerifyTransaction calls GET /transaction/verify/:reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var out Transaction
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefundRequest returns a settled transaction. Amount 0 means a full refund.
type RefundRequest struct {
	Transaction  string `json:"transaction"`
	Amount       int64  `json:"amount,omitempty"`
	MerchantNote string `json:"merchant_note,omitempty"`
}

// Refund is the processor's refund record.
type Refund struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

// CreateRefund calls POST /refund.
func (c *Client) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	var out Refund
	if err := c.do(ctx, http.MethodPost, "/refund", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
