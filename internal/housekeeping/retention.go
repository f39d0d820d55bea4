package housekeeping

import (
	"context"
	"fmt"
	"time"
)

type outboxPurger interface {
	DeleteSettledBefore(ctx context.Context, cutoff time.Time, parkedAttempts int) (int64, error)
}

type webhookLedgerPurger interface {
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// retentionTask deletes rows older than a window.
type retentionTask struct {
	name   string
	window time.Duration
	purge  func(ctx context.Context, cutoff time.Time) (int64, error)
	now    func() time.Time
}

func (t *retentionTask) Name() string { return t.name }

func (t *retentionTask) Run(ctx context.Context) (int64, error) {
	cutoff := t.now().UTC().Add(-t.window)
	removed, err := t.purge(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", t.name, err)
	}
	return removed, nil
}

// NewOutboxRetention removes outbox rows that were published, or parked
// after maxAttempts, more than window ago.
func NewOutboxRetention(repo outboxPurger, window time.Duration, maxAttempts int) (Task, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("outbox retention window must be positive")
	}
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("outbox max attempts must be positive")
	}
	return &retentionTask{
		name:   "outbox-retention",
		window: window,
		purge: func(ctx context.Context, cutoff time.Time) (int64, error) {
			return repo.DeleteSettledBefore(ctx, cutoff, maxAttempts)
		},
		now: time.Now,
	}, nil
}

// NewWebhookLedgerRetention trims processed webhook events. The window must
// be well past the processor's redelivery horizon.
func NewWebhookLedgerRetention(repo webhookLedgerPurger, window time.Duration) (Task, error) {
	if repo == nil {
		return nil, fmt.Errorf("webhook event repository required")
	}
	if window < 7*24*time.Hour {
		return nil, fmt.Errorf("webhook ledger retention must be at least 7 days")
	}
	return &retentionTask{
		name:   "webhook-ledger-retention",
		window: window,
		purge:  repo.DeleteProcessedBefore,
		now:    time.Now,
	}, nil
}
