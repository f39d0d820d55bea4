package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/grundyhq/grundy-backend/pkg/enums"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/metrics"
)

const defaultPreferredBank = "wema-bank"

// DedicatedAccountChannel settles bank transfers made on delivery into a reusable
// account tied to the merchant's sub-account.
type DedicatedAccountChannel struct {
	base
	accounts      AccountCache
	preferredBank string
}

// NewDedicatedAccountChannel builds the bank_transfer_delivery adapter. accounts may
// be nil, in which case opened accounts are not cached.
func NewDedicatedAccountChannel(processor Processor, accounts AccountCache, opts Options, m *metrics.PaymentMetrics, logg *logger.Logger) *DedicatedAccountChannel {
	bank := strings.TrimSpace(opts.PreferredBank)
	if bank == "" {
		bank = defaultPreferredBank
	}
	return &DedicatedAccountChannel{
		base:          newBase(processor, m, logg, opts.Timeout),
		accounts:      accounts,
		preferredBank: bank,
	}
}

func (d *DedicatedAccountChannel) Method() enums.PaymentMethod {
	return enums.PaymentMethodBankTransfer
}

func (d *DedicatedAccountChannel) Preflight(order InitiateOrder, merchant Settlement) error {
	if err := requirePayable(merchant); err != nil {
		return err
	}
	if strings.TrimSpace(merchant.Email) == "" {
		return notPayable(merchant.MerchantID, "merchant email is required to open a dedicated account")
	}
	return validateSplit(order.Split)
}

// Initiate resolves the processor split for the order's allocation, then
// opens the merchant's account under it. A cached account is reused as is
// when it already settles under that split and re-split otherwise.
func (d *DedicatedAccountChannel) Initiate(ctx context.Context, order InitiateOrder, merchant Settlement) (Result, error) {
	if err := d.Preflight(order, merchant); err != nil {
		return Result{}, err
	}
	if err := validateOrder(order); err != nil {
		return Result{}, err
	}

	email := strings.TrimSpace(merchant.Email)
	first, last := splitName(merchant.Name)
	req := DedicatedAccountRequest{
		Email:         email,
		FirstName:     first,
		LastName:      last,
		PreferredBank: d.preferredBank,
		Subaccount:    merchant.SubaccountCode,
	}
	cached := merchant.DedicatedAccount
	if cached != nil && cached.AccountNumber == "" {
		cached = nil
	}

	var (
		account *DedicatedAccount
		reused  = cached != nil
		changed bool
	)
	err := d.call(ctx, d.Method(), func(ctx context.Context) error {
		splitCode, err := d.processor.ResolveSplit(ctx, splitRequest(order, merchant))
		if err != nil {
			return err
		}
		if splitCode == "" {
			return errEmptyResponse
		}
		req.SplitCode = splitCode

		switch {
		case cached != nil && cached.SplitCode == splitCode:
			current := *cached
			account = &current
			return nil
		case cached != nil:
			account, err = d.processor.SplitDedicatedAccount(ctx, req)
		default:
			account, err = d.processor.AssignDedicatedAccount(ctx, req)
			if errors.Is(err, ErrAccountExists) {
				reused = true
				account, err = d.processor.FetchDedicatedAccount(ctx, email)
				if err == nil && (account == nil || account.SplitCode != splitCode) {
					account, err = d.processor.SplitDedicatedAccount(ctx, req)
				}
			}
		}
		if err == nil && (account == nil || account.AccountNumber == "") {
			err = errEmptyResponse
		}
		if err == nil {
			account.SplitCode = splitCode
			changed = true
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if changed && d.accounts != nil {
		if cacheErr := d.accounts.CacheDedicatedAccount(ctx, merchant.MerchantID, *account); cacheErr != nil && d.logg != nil {
			logCtx := d.logg.WithField(ctx, "merchant_id", merchant.MerchantID.String())
			d.logg.Warn(logCtx, "caching dedicated account failed: "+cacheErr.Error())
		}
	}
	return d.result(*account, reused), nil
}

func (d *DedicatedAccountChannel) result(account DedicatedAccount, reused bool) Result {
	return Result{
		Method:        d.Method(),
		PaymentStatus: d.Method().ChannelPaymentStatus(),
		Dedicated: &DedicatedAccountResult{
			Account:      account,
			Reused:       reused,
			Instructions: transferInstructions(account),
		},
	}
}

func transferInstructions(account DedicatedAccount) string {
	return fmt.Sprintf("Transfer the exact order amount to %s (%s, %s) when your order arrives.",
		account.AccountNumber, account.BankName, account.AccountName)
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "Merchant", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
