package paystack

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// CreateDedicatedAccountRequest opens a reusable NUBAN for a customer.
type CreateDedicatedAccountRequest struct {
	Email         string `json:"email"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	PreferredBank string `json:"preferred_bank"`
	Subaccount    string `json:"subaccount,omitempty"`
	SplitCode     string `json:"split_code,omitempty"`
}

// DedicatedAccount is a bank account number routed to the platform.
type DedicatedAccount struct {
	ID            int64  `json:"id"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	Active        bool   `json:"active"`
	Bank          struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	} `json:"bank"`
	SplitConfig *struct {
		SplitCode string `json:"split_code"`
	} `json:"split_config,omitempty"`
}

// SplitCode returns the split the account settles under, if any.
func (a DedicatedAccount) SplitCode() string {
	if a.SplitConfig == nil {
		return ""
	}
	return a.SplitConfig.SplitCode
}

// CreateDedicatedAccount calls POST /dedicated_account/assign.
func (c *Client) CreateDedicatedAccount(ctx context.Context, req CreateDedicatedAccountRequest) (*DedicatedAccount, error) {
	var out DedicatedAccount
	if err := c.do(ctx, http.MethodPost, "/dedicated_account/assign", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type customerResponse struct {
	CustomerCode      string             `json:"customer_code"`
	Email             string             `json:"email"`
	DedicatedAccounts []DedicatedAccount `json:"dedicated_accounts"`
	DedicatedAccount  *DedicatedAccount  `json:"dedicated_account"`
}

// ErrNoDedicatedAccount means the customer exists but holds no account.
var ErrNoDedicatedAccount = errors.New("customer has no dedicated account")

// FetchDedicatedAccount looks up the existing account for a customer email or
// code, via GET /customer/:email_or_code.
func (c *Client) FetchDedicatedAccount(ctx context.Context, customer string) (*DedicatedAccount, error) {
	var out customerResponse
	if err := c.do(ctx, http.MethodGet, "/customer/"+url.PathEscape(customer), nil, &out); err != nil {
		return nil, err
	}
	if out.DedicatedAccount != nil && out.DedicatedAccount.AccountNumber != "" {
		return out.DedicatedAccount, nil
	}
	for _, account := range out.DedicatedAccounts {
		if account.Active && account.AccountNumber != "" {
			acc := account
			return &acc, nil
		}
	}
	return nil, ErrNoDedicatedAccount
}

// IsDuplicateAccount reports whether err is the processor refusing to open a
// second dedicated account for the same customer.
func IsDuplicateAccount(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == "duplicate_account" {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "already") && strings.Contains(msg, "dedicated")
}
