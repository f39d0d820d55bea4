package helpers

import (
	"strings"

	"github.com/google/uuid"

	"github.com/grundyhq/grundy-backend/internal/inventory"
	"github.com/grundyhq/grundy-backend/internal/orders"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
)

// MaxLineQuantity caps a single line to keep obviously mistyped quantities
// away from stock checks and the processor.
const MaxLineQuantity = 999

// ValidateLines checks each line and rejects the same product listed at two
// different prices.
func ValidateLines(items []orders.ItemInput) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	prices := make(map[uuid.UUID]string, len(items))
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return lineError(i, "product_id is required")
		}
		if strings.TrimSpace(item.Name) == "" {
			return lineError(i, "name is required")
		}
		if item.Quantity <= 0 || item.Quantity > MaxLineQuantity {
			return lineError(i, "quantity out of range")
		}
		if !item.UnitPrice.IsPositive() {
			return lineError(i, "unit_price must be positive")
		}
		price := item.UnitPrice.StringFixed(2)
		if seen, ok := prices[item.ProductID]; ok && seen != price {
			return lineError(i, "product listed with conflicting prices")
		}
		prices[item.ProductID] = price
	}
	return nil
}

// GroupByProduct sums quantities per product, preserving first-seen order,
// so stock is checked against the total requested.
func GroupByProduct(items []orders.ItemInput) []inventory.Item {
	index := make(map[uuid.UUID]int, len(items))
	grouped := make([]inventory.Item, 0, len(items))
	for _, item := range items {
		if pos, ok := index[item.ProductID]; ok {
			grouped[pos].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(grouped)
		grouped = append(grouped, inventory.Item{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return grouped
}

func lineError(index int, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{"item_index": index})
}
