package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Merchant is a seller on the marketplace together with the settlement
// destination registered for it at the payment processor.
type Merchant struct {
	ID    uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name  string    `gorm:"column:name;not null"`
	Type  string    `gorm:"column:type;not null"`
	Email *string   `gorm:"column:email"`

	SubaccountCode          *string             `gorm:"column:subaccount_code"`
	SplitCode               *string             `gorm:"column:split_code"`
	SettlementBank          *string             `gorm:"column:settlement_bank"`
	SettlementAccountNumber *string             `gorm:"column:settlement_account_number"`
	MerchantSharePercent    decimal.NullDecimal `gorm:"column:merchant_share_percent;type:numeric(5,2)"`

	DedicatedAccountNumber *string `gorm:"column:dedicated_account_number"`
	DedicatedBankName      *string `gorm:"column:dedicated_bank_name"`
	DedicatedAccountName   *string `gorm:"column:dedicated_account_name"`
	DedicatedAccountID     *string `gorm:"column:dedicated_account_id"`

	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
