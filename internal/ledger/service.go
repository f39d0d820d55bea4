// Package ledger appends the financial history of an order. Rows are written
// in the same transaction as the state change they describe and are never
// edited afterwards.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
)

var (
	ErrRepositoryRequired = errors.New("ledger: repository required")
	ErrInvalidEvent       = errors.New("ledger: invalid event")
)

type Service interface {
	// WithTx binds writes to tx so they commit with the caller's change.
	WithTx(tx *gorm.DB) Service
	RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
	ListDiscrepancies(ctx context.Context, limit int) ([]models.LedgerEvent, error)
}

type RecordLedgerEventInput struct {
	OrderID        uuid.UUID
	OrderReference string
	Type           enums.LedgerEventType
	Amount         decimal.Decimal
	// Metadata is stored as JSON; nil stores nothing.
	Metadata any
}

func (in RecordLedgerEventInput) validate() error {
	var err error
	if in.OrderID == uuid.Nil {
		err = multierr.Append(err, errors.New("order id is required"))
	}
	if in.OrderReference == "" {
		err = multierr.Append(err, errors.New("order reference is required"))
	}
	if !in.Type.IsValid() {
		err = multierr.Append(err, fmt.Errorf("unknown type %q", in.Type))
	}
	if in.Amount.IsNegative() {
		err = multierr.Append(err, fmt.Errorf("negative amount %s", in.Amount))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return nil
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	event := &models.LedgerEvent{
		ID:             uuid.New(),
		OrderID:        input.OrderID,
		OrderReference: input.OrderReference,
		Type:           input.Type,
		Amount:         input.Amount,
	}
	if input.Metadata != nil {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("ledger: encode metadata: %w", err)
		}
		event.Metadata = raw
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if orderID == uuid.Nil || !eventType.IsValid() {
		return false, fmt.Errorf("%w: order %s type %q", ErrInvalidEvent, orderID, eventType)
	}
	return s.repo.Exists(ctx, orderID, eventType)
}

// ListDiscrepancies returns the latest amount mismatches awaiting manual
// reconciliation.
func (s *service) ListDiscrepancies(ctx context.Context, limit int) ([]models.LedgerEvent, error) {
	return s.repo.List(ctx, Filter{Type: enums.LedgerEventDiscrepancy, Limit: limit})
}
