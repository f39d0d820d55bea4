package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
)

const defaultListLimit = 100

// Filter narrows a ledger listing. Zero fields match every row.
type Filter struct {
	OrderID uuid.UUID
	Type    enums.LedgerEventType
	Limit   int
}

// Repository is append-only: ledger rows are never updated or deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.LedgerEvent) error
	Exists(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	List(ctx context.Context, filter Filter) ([]models.LedgerEvent, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.LedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) Exists(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEvent{}).
		Where("order_id = ? AND type = ?", orderID, eventType).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// List returns matching rows newest first.
func (r *repository) List(ctx context.Context, filter Filter) ([]models.LedgerEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := r.db.WithContext(ctx).Model(&models.LedgerEvent{})
	if filter.OrderID != uuid.Nil {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	var events []models.LedgerEvent
	if err := query.Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
