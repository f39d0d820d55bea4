package paystack

import (
	"context"
	"net/http"
	"net/url"
)

// PaymentRequest creates an invoice that a terminal can collect. Amount is in kobo.
type PaymentRequest struct {
	Customer    string         `json:"customer"`
	Amount      int64          `json:"amount"`
	Description string         `json:"description,omitempty"`
	SplitCode   string         `json:"split_code,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// PaymentRequestResult identifies the created invoice.
type PaymentRequestResult struct {
	ID          int64  `json:"id"`
	RequestCode string `json:"request_code"`
	OfflineRef  string `json:"offline_reference"`
	Status      string `json:"status"`
}

// CreateTerminalPaymentRequest calls POST /paymentrequest.
func (c *Client) CreateTerminalPaymentRequest(ctx context.Context, req PaymentRequest) (*PaymentRequestResult, error) {
	var out PaymentRequestResult
	if err := c.do(ctx, http.MethodPost, "/paymentrequest", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type terminalEvent struct {
	Type   string            `json:"type"`
	Action string            `json:"action"`
	Data   terminalEventData `json:"data"`
}

type terminalEventData struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
}

// TerminalEventResult is the id of the event pushed to the device.
type TerminalEventResult struct {
	ID string `json:"id"`
}

// PushToTerminal asks the device to process the invoice, via
// POST /terminal/:terminal_id/event.
func (c *Client) PushToTerminal(ctx context.Context, terminalID string, request PaymentRequestResult) (*TerminalEventResult, error) {
	body := terminalEvent{
		Type:   "invoice",
		Action: "process",
		Data:   terminalEventData{ID: request.ID, Reference: request.OfflineRef},
	}
	var out TerminalEventResult
	if err := c.do(ctx, http.MethodPost, "/terminal/"+url.PathEscape(terminalID)+"/event", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
