package merchants

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/internal/channels"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
)

type repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
	SetDedicatedAccount(ctx context.Context, id uuid.UUID, number, bank, name, providerID string) (bool, error)
	SetDedicatedSplit(ctx context.Context, id uuid.UUID, number, splitCode string) (bool, error)
}

// Destination is where a merchant's share of an order settles, plus the
// merchant's split override if one is configured.
type Destination struct {
	Settlement           channels.Settlement
	MerchantSharePercent decimal.NullDecimal
}

// Directory resolves merchants to their settlement destination.
type Directory struct {
	repo repository
	logg *logger.Logger
}

// NewDirectory builds a merchant directory.
func NewDirectory(repo *Repository, logg *logger.Logger) (*Directory, error) {
	if repo == nil {
		return nil, fmt.Errorf("merchant repository required")
	}
	return &Directory{repo: repo, logg: logg}, nil
}

// ResolveSettlementDestination returns MERCHANT_NOT_PAYABLE when the merchant
// has no sub-account at the processor or is inactive.
func (d *Directory) ResolveSettlementDestination(ctx context.Context, merchantID uuid.UUID) (*Destination, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant_id is required")
	}
	merchant, err := d.repo.FindByID(ctx, merchantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "merchant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load merchant")
	}
	if !merchant.Active {
		return nil, pkgerrors.New(pkgerrors.CodeMerchantNotPayable, "merchant is not active").
			WithDetails(map[string]any{"merchant_id": merchantID.String()})
	}
	if strings.TrimSpace(deref(merchant.SubaccountCode)) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMerchantNotPayable, "merchant has no settlement sub-account").
			WithDetails(map[string]any{"merchant_id": merchantID.String()})
	}

	settlement := channels.Settlement{
		MerchantID:     merchant.ID,
		Name:           merchant.Name,
		Email:          deref(merchant.Email),
		SubaccountCode: deref(merchant.SubaccountCode),
	}
	if number := deref(merchant.DedicatedAccountNumber); number != "" {
		settlement.DedicatedAccount = &channels.DedicatedAccount{
			AccountNumber:     number,
			BankName:          deref(merchant.DedicatedBankName),
			AccountName:       deref(merchant.DedicatedAccountName),
			ProviderAccountID: deref(merchant.DedicatedAccountID),
			SplitCode:         deref(merchant.SplitCode),
		}
	}
	return &Destination{
		Settlement:           settlement,
		MerchantSharePercent: merchant.MerchantSharePercent,
	}, nil
}

// CacheDedicatedAccount keeps the first account opened for a merchant and
// records the split that account now settles under.
func (d *Directory) CacheDedicatedAccount(ctx context.Context, merchantID uuid.UUID, account channels.DedicatedAccount) error {
	if account.AccountNumber == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account number is required")
	}
	stored, err := d.repo.SetDedicatedAccount(ctx, merchantID, account.AccountNumber, account.BankName, account.AccountName, account.ProviderAccountID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cache dedicated account")
	}
	if account.SplitCode != "" {
		if _, err := d.repo.SetDedicatedSplit(ctx, merchantID, account.AccountNumber, account.SplitCode); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cache dedicated account split")
		}
	}
	if stored && d.logg != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"merchant_id": merchantID.String(),
			"bank":        account.BankName,
		})
		d.logg.Info(logCtx, "dedicated account cached for merchant")
	}
	return nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
