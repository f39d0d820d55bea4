package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grundyhq/grundy-backend/pkg/enums"
)

// Refund is the single refund action scheduled when a paid order is cancelled.
type Refund struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_refunds_order_id"`
	OrderReference     string             `gorm:"column:order_reference;not null"`
	Amount             decimal.Decimal    `gorm:"column:amount;type:numeric(14,2);not null"`
	Status             enums.RefundStatus `gorm:"column:status;not null"`
	Reason             *string            `gorm:"column:reason"`
	ProcessorReference *string            `gorm:"column:processor_reference"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
