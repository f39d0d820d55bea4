package merchants

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
)

// Repository handles merchant persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to merchant operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new merchant row.
func (r *Repository) Create(ctx context.Context, merchant *models.Merchant) error {
	if merchant == nil {
		return fmt.Errorf("merchant is required")
	}
	if merchant.ID == uuid.Nil {
		merchant.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(merchant).Error
}

// FindByID loads a merchant by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&merchant).Error; err != nil {
		return nil, err
	}
	return &merchant, nil
}

// SetDedicatedAccount stores the reusable dedicated account on the merchant.
// An already cached account is left untouched.
func (r *Repository) SetDedicatedAccount(ctx context.Context, id uuid.UUID, number, bank, name, providerID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Merchant{}).
		Where("id = ? AND dedicated_account_number IS NULL", id).
		Updates(map[string]any{
			"dedicated_account_number": number,
			"dedicated_bank_name":      bank,
			"dedicated_account_name":   name,
			"dedicated_account_id":     providerID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetDedicatedSplit records the split code the cached dedicated account
// settles under. It only applies to the account number already cached.
func (r *Repository) SetDedicatedSplit(ctx context.Context, id uuid.UUID, number, splitCode string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Merchant{}).
		Where("id = ? AND dedicated_account_number = ?", id, number).
		Update("split_code", splitCode)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
