package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const guardScope = "paystack"

// InFlightStore is the redis surface used by the guard.
type InFlightStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	InFlightKey(scope, id string) string
}

// InFlightGuard suppresses concurrent deliveries of the same event. The
// dedup ledger stays the source of truth; the guard only covers the window
// before the ledger row is written.
type InFlightGuard struct {
	store InFlightStore
	ttl   time.Duration
}

// NewInFlightGuard builds a guard whose keys expire after ttl.
func NewInFlightGuard(store InFlightStore, ttl time.Duration) (*InFlightGuard, error) {
	if store == nil {
		return nil, errors.New("in-flight store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &InFlightGuard{store: store, ttl: ttl}, nil
}

// Acquire marks eventID as in flight. It returns false when another delivery
// holds it.
func (g *InFlightGuard) Acquire(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.InFlightKey(guardScope, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set in-flight key: %w", err)
	}
	return set, nil
}

// Release clears the in-flight mark.
func (g *InFlightGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.InFlightKey(guardScope, eventID))
}
