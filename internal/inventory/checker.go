package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
)

// Item is one requested product line.
type Item struct {
	ProductID uuid.UUID
	Quantity  int
}

// Shortfall describes a line the merchant cannot fill.
type Shortfall struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
	Reason    string    `json:"reason"`
}

// Checker answers stock availability for a merchant. It never mutates stock.
type Checker struct {
	db *gorm.DB
}

// NewChecker binds the checker to the inventory table.
func NewChecker(db *gorm.DB) (*Checker, error) {
	if db == nil {
		return nil, fmt.Errorf("inventory db required")
	}
	return &Checker{db: db}, nil
}

// CheckAvailability returns INSUFFICIENT_STOCK listing every short line.
// Repeated products are summed before comparing.
func (c *Checker) CheckAvailability(ctx context.Context, items []Item, merchantID uuid.UUID) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	requested := make(map[uuid.UUID]int, len(items))
	order := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "items require a product id and positive quantity")
		}
		if _, seen := requested[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}

	var rows []models.InventoryItem
	if err := c.db.WithContext(ctx).
		Where("merchant_id = ? AND product_id IN ?", merchantID, order).
		Find(&rows).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	available := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		available[row.ProductID] = row.AvailableQty
	}

	var shortfalls []Shortfall
	for _, productID := range order {
		qty, ok := available[productID]
		switch {
		case !ok:
			shortfalls = append(shortfalls, Shortfall{ProductID: productID, Requested: requested[productID], Reason: "not stocked by merchant"})
		case qty < requested[productID]:
			shortfalls = append(shortfalls, Shortfall{ProductID: productID, Requested: requested[productID], Available: qty, Reason: "insufficient stock"})
		}
	}
	if len(shortfalls) > 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"items": shortfalls})
	}
	return nil
}
