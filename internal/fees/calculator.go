package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/grundyhq/grundy-backend/pkg/config"
	"github.com/grundyhq/grundy-backend/pkg/enums"
)

const minorUnitPlaces = 2

var (
	hundred      = decimal.NewFromInt(100)
	minorPerUnit = decimal.NewFromInt(100)
)

// SplitConfig is the per-order allocation between merchant and platform.
type SplitConfig struct {
	MerchantSharePercent decimal.Decimal
	PlatformSharePercent decimal.Decimal
	Bearer               enums.FeeBearer
}

// ProcessorFormula is the processor's published fee: percent of the subtotal
// plus a flat fee, capped.
type ProcessorFormula struct {
	Percent decimal.Decimal
	FlatFee decimal.Decimal
	Cap     decimal.Decimal
}

// Split is the outcome of ComputeSplit. PlatformFee + ProcessorFee +
// MerchantAmount equals the subtotal.
type Split struct {
	Subtotal       decimal.Decimal
	PlatformFee    decimal.Decimal
	ProcessorFee   decimal.Decimal
	MerchantAmount decimal.Decimal
	Config         SplitConfig
}

// InvalidSplitError reports a configuration or subtotal that cannot produce a
// non-negative merchant payout.
type InvalidSplitError struct {
	Subtotal decimal.Decimal
	Reason   string
}

func (e *InvalidSplitError) Error() string {
	return fmt.Sprintf("invalid split for subtotal %s: %s", e.Subtotal.StringFixed(minorUnitPlaces), e.Reason)
}

// Calculator computes order fee splits. It holds no state beyond the formula.
type Calculator struct {
	formula              ProcessorFormula
	defaultPlatformShare decimal.Decimal
	defaultBearer        enums.FeeBearer
}

// NewCalculator builds a calculator from the fees configuration.
func NewCalculator(cfg config.FeesConfig) *Calculator {
	return &Calculator{
		formula: ProcessorFormula{
			Percent: cfg.ProcessorPercent,
			FlatFee: cfg.ProcessorFlatFee,
			Cap:     cfg.ProcessorFeeCap,
		},
		defaultPlatformShare: cfg.PlatformSharePercent,
		defaultBearer:        enums.ParseFeeBearerOrDefault(cfg.FeeBearer, enums.FeeBearerSubaccount),
	}
}

// NewCalculatorWithFormula is used where the formula is known up front.
func NewCalculatorWithFormula(formula ProcessorFormula, platformShare decimal.Decimal, bearer enums.FeeBearer) *Calculator {
	return &Calculator{formula: formula, defaultPlatformShare: platformShare, defaultBearer: bearer}
}

// ConfigFor returns the split for a merchant. A merchant-specific share
// overrides the platform default; the platform takes the remainder.
func (c *Calculator) ConfigFor(merchantShare decimal.NullDecimal) SplitConfig {
	platform := c.defaultPlatformShare
	if merchantShare.Valid {
		platform = hundred.Sub(merchantShare.Decimal)
	}
	return SplitConfig{
		MerchantSharePercent: hundred.Sub(platform),
		PlatformSharePercent: platform,
		Bearer:               c.defaultBearer,
	}
}

// ProcessorFee applies the processor formula to subtotal.
func (c *Calculator) ProcessorFee(subtotal decimal.Decimal) decimal.Decimal {
	fee := subtotal.Mul(c.formula.Percent).Div(hundred).Add(c.formula.FlatFee).Round(minorUnitPlaces)
	if c.formula.Cap.IsPositive() && fee.GreaterThan(c.formula.Cap) {
		return c.formula.Cap
	}
	return fee
}

// ComputeSplit derives platform fee, processor fee and merchant net for
// subtotal. It never returns a negative merchant amount.
func (c *Calculator) ComputeSplit(subtotal decimal.Decimal, cfg SplitConfig) (Split, error) {
	if err := validate(subtotal, cfg); err != nil {
		return Split{}, err
	}

	subtotal = subtotal.Round(minorUnitPlaces)
	platformFee := subtotal.Mul(cfg.PlatformSharePercent).Div(hundred).Round(minorUnitPlaces)
	processorFee := c.ProcessorFee(subtotal)
	merchantAmount := subtotal.Sub(platformFee).Sub(processorFee)

	if merchantAmount.IsNegative() {
		return Split{}, &InvalidSplitError{
			Subtotal: subtotal,
			Reason: fmt.Sprintf("fees %s exceed subtotal",
				platformFee.Add(processorFee).StringFixed(minorUnitPlaces)),
		}
	}

	return Split{
		Subtotal:       subtotal,
		PlatformFee:    platformFee,
		ProcessorFee:   processorFee,
		MerchantAmount: merchantAmount,
		Config:         cfg,
	}, nil
}

func validate(subtotal decimal.Decimal, cfg SplitConfig) error {
	if !subtotal.IsPositive() {
		return &InvalidSplitError{Subtotal: subtotal, Reason: "subtotal must be positive"}
	}
	if cfg.MerchantSharePercent.IsNegative() || cfg.PlatformSharePercent.IsNegative() {
		return &InvalidSplitError{Subtotal: subtotal, Reason: "shares must not be negative"}
	}
	if !cfg.MerchantSharePercent.Add(cfg.PlatformSharePercent).Equal(hundred) {
		return &InvalidSplitError{Subtotal: subtotal, Reason: "merchant and platform shares must sum to 100"}
	}
	if !cfg.Bearer.IsValid() {
		return &InvalidSplitError{Subtotal: subtotal, Reason: fmt.Sprintf("unknown fee bearer %q", cfg.Bearer)}
	}
	return nil
}

// ToMinorUnits converts a currency amount into its minor unit (kobo).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorPerUnit).Round(0).IntPart()
}

// FromMinorUnits converts a minor-unit amount back into the currency unit.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(minorPerUnit)
}
