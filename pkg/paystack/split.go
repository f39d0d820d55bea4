package paystack

import (
	"context"
	"net/http"
	"net/url"
)

const splitTypePercentage = "percentage"

// SplitShare is one subaccount's percentage of a split.
type SplitShare struct {
	Subaccount string  `json:"subaccount"`
	Share      float64 `json:"share"`
}

// CreateSplitRequest defines a reusable percentage split. The main account
// keeps whatever the subaccount shares leave over.
type CreateSplitRequest struct {
	Name             string       `json:"name"`
	Type             string       `json:"type"`
	Currency         string       `json:"currency"`
	Subaccounts      []SplitShare `json:"subaccounts"`
	BearerType       string       `json:"bearer_type"`
	BearerSubaccount string       `json:"bearer_subaccount,omitempty"`
}

// Split is a transaction split registered at the processor.
type Split struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	SplitCode   string `json:"split_code"`
	Active      bool   `json:"active"`
	BearerType  string `json:"bearer_type"`
	Subaccounts []struct {
		Subaccount struct {
			SubaccountCode string `json:"subaccount_code"`
		} `json:"subaccount"`
		Share float64 `json:"share"`
	} `json:"subaccounts"`
}

// ShareFor returns the percentage the split routes to subaccount.
func (s Split) ShareFor(subaccount string) (float64, bool) {
	for _, entry := range s.Subaccounts {
		if entry.Subaccount.SubaccountCode == subaccount {
			return entry.Share, true
		}
	}
	return 0, false
}

// CreateSplit calls POST /split.
func (c *Client) CreateSplit(ctx context.Context, req CreateSplitRequest) (*Split, error) {
	if req.Type == "" {
		req.Type = splitTypePercentage
	}
	if req.Currency == "" {
		req.Currency = c.currency
	}
	var out Split
	if err := c.do(ctx, http.MethodPost, "/split", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSplits calls GET /split filtered by name, active splits only.
func (c *Client) ListSplits(ctx context.Context, name string) ([]Split, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("active", "true")
	var out []Split
	if err := c.do(ctx, http.MethodGet, "/split?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SplitDedicatedAccountRequest attaches a split to an existing dedicated
// account so later transfers settle under it.
type SplitDedicatedAccountRequest struct {
	Customer      string `json:"customer"`
	Subaccount    string `json:"subaccount,omitempty"`
	SplitCode     string `json:"split_code,omitempty"`
	PreferredBank string `json:"preferred_bank,omitempty"`
}

// SplitDedicatedAccount calls POST /dedicated_account/split.
func (c *Client) SplitDedicatedAccount(ctx context.Context, req SplitDedicatedAccountRequest) (*DedicatedAccount, error) {
	var out DedicatedAccount
	if err := c.do(ctx, http.MethodPost, "/dedicated_account/split", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
