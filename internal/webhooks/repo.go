package webhooks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
)

const uniqueEventConstraint = "ux_webhook_events_event_id"

// Repository is the dedup ledger of processed events.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the dedup ledger to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Exists reports whether eventID was already processed.
func (r *Repository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Record inserts the processed event. The bool is false when another worker
// recorded the same id first.
func (r *Repository) Record(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if db.IsUniqueViolation(err, uniqueEventConstraint) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteProcessedBefore trims the dedup ledger. Replays older than the
// retention window are still rejected by the order status guards.
func (r *Repository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&models.WebhookEvent{})
	return result.RowsAffected, result.Error
}
