package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is the stock level a merchant publishes for a product.
type InventoryItem struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	MerchantID   uuid.UUID `gorm:"column:merchant_id;type:uuid;not null"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
