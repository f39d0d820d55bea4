package enums

// PaymentStatus is the payment half of an order's state.
type PaymentStatus string

const (
	PaymentStatusPending         PaymentStatus = "pending"
	PaymentStatusAwaitingPayment PaymentStatus = "awaiting_payment"
	PaymentStatusPaid            PaymentStatus = "paid"
	PaymentStatusFailed          PaymentStatus = "failed"
	PaymentStatusRefunded        PaymentStatus = "refunded"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusAwaitingPayment,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

func (p PaymentStatus) IsValid() bool { return member(p, paymentStatuses) }

// AwaitingSettlement reports whether a verified processor event may still move
// the payment to paid.
func (p PaymentStatus) AwaitingSettlement() bool {
	return member(p, SettleableStatuses())
}

// SettleableStatuses lists the statuses a success event may transition from.
func SettleableStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusPending, PaymentStatusAwaitingPayment}
}

// PaymentMethod selects the channel the customer pays through.
type PaymentMethod string

const (
	PaymentMethodOnline       PaymentMethod = "online"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer_delivery"
	PaymentMethodTerminal     PaymentMethod = "terminal_delivery"
)

var paymentMethods = []PaymentMethod{PaymentMethodOnline, PaymentMethodBankTransfer, PaymentMethodTerminal}

func (m PaymentMethod) IsValid() bool { return member(m, paymentMethods) }

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	return parse("payment method", raw, paymentMethods)
}

// ChannelPaymentStatus is the status an order takes once its channel has been
// initiated. Hosted checkout is pending until the customer completes it;
// pay-on-delivery channels wait for the rider.
func (m PaymentMethod) ChannelPaymentStatus() PaymentStatus {
	if m == PaymentMethodOnline {
		return PaymentStatusPending
	}
	return PaymentStatusAwaitingPayment
}

// FeeBearer is the processor's name for the party that absorbs its fee on a
// split transaction.
type FeeBearer string

const (
	FeeBearerAccount         FeeBearer = "account"
	FeeBearerSubaccount      FeeBearer = "subaccount"
	FeeBearerAll             FeeBearer = "all"
	FeeBearerAllProportional FeeBearer = "all-proportional"
)

var feeBearers = []FeeBearer{FeeBearerAccount, FeeBearerSubaccount, FeeBearerAll, FeeBearerAllProportional}

func (f FeeBearer) IsValid() bool { return member(f, feeBearers) }

// ParseFeeBearerOrDefault returns fallback for blank or unknown input.
func ParseFeeBearerOrDefault(raw string, fallback FeeBearer) FeeBearer {
	if bearer, err := parse("fee bearer", raw, feeBearers); err == nil {
		return bearer
	}
	return fallback
}
