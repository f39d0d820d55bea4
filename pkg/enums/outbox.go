package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregatePayout OutboxAggregateType = "payout"
	AggregateRefund OutboxAggregateType = "refund"
)

var aggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayout,
	AggregateRefund,
}

func (a OutboxAggregateType) IsValid() bool { return member(a, aggregateTypes) }

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated      OutboxEventType = "order_created"
	EventPaymentConfirmed  OutboxEventType = "payment_confirmed"
	EventPaymentFailed     OutboxEventType = "payment_failed"
	EventOrderCancelled    OutboxEventType = "order_cancelled"
	EventRefundScheduled   OutboxEventType = "refund_scheduled"
	EventDeliveryUpdated   OutboxEventType = "delivery_updated"
	EventPayoutCompleted   OutboxEventType = "payout_completed"
	EventPayoutFailedAlert OutboxEventType = "payout_failed_alert"
	EventAmountDiscrepancy OutboxEventType = "amount_discrepancy_alert"
)

var eventTypes = []OutboxEventType{
	EventOrderCreated,
	EventPaymentConfirmed,
	EventPaymentFailed,
	EventOrderCancelled,
	EventRefundScheduled,
	EventDeliveryUpdated,
	EventPayoutCompleted,
	EventPayoutFailedAlert,
	EventAmountDiscrepancy,
}

func (e OutboxEventType) IsValid() bool { return member(e, eventTypes) }

// IsOperatorAlert reports whether the event is routed to the operator alert topic.
func (e OutboxEventType) IsOperatorAlert() bool {
	return e == EventPayoutFailedAlert || e == EventAmountDiscrepancy
}

// OutboxDLQErrorReason records why the publisher parked a row.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: retryable publish failures ran out of attempts.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the stored row can never be published.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return member(r, []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable})
}
