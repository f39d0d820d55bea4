package enums

// RefundStatus tracks a scheduled refund through operator processing.
type RefundStatus string

const (
	RefundStatusScheduled  RefundStatus = "scheduled"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
)

var refundStatuses = []RefundStatus{
	RefundStatusScheduled,
	RefundStatusProcessing,
	RefundStatusCompleted,
	RefundStatusFailed,
}

func (r RefundStatus) IsValid() bool { return member(r, refundStatuses) }

// PayoutStatus tracks the merchant's share of a paid order.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

var payoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusProcessing,
	PayoutStatusCompleted,
	PayoutStatusFailed,
}

func (p PayoutStatus) IsValid() bool { return member(p, payoutStatuses) }

// LedgerEventType names an append-only ledger entry.
type LedgerEventType string

const (
	LedgerEventPaymentConfirmed LedgerEventType = "payment_confirmed"
	LedgerEventPaymentFailed    LedgerEventType = "payment_failed"
	LedgerEventRefundScheduled  LedgerEventType = "refund_scheduled"
	LedgerEventPayoutCompleted  LedgerEventType = "payout_completed"
	LedgerEventPayoutFailed     LedgerEventType = "payout_failed"
	LedgerEventDiscrepancy      LedgerEventType = "reconciliation_discrepancy"
)

var ledgerEventTypes = []LedgerEventType{
	LedgerEventPaymentConfirmed,
	LedgerEventPaymentFailed,
	LedgerEventRefundScheduled,
	LedgerEventPayoutCompleted,
	LedgerEventPayoutFailed,
	LedgerEventDiscrepancy,
}

func (l LedgerEventType) IsValid() bool { return member(l, ledgerEventTypes) }
