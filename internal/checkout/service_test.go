package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grundyhq/grundy-backend/internal/channels"
	"github.com/grundyhq/grundy-backend/internal/fees"
	"github.com/grundyhq/grundy-backend/internal/inventory"
	"github.com/grundyhq/grundy-backend/internal/merchants"
	"github.com/grundyhq/grundy-backend/internal/orders"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
)

func TestCreateOrderInitiatesChannelAndNotifies(t *testing.T) {
	t.Parallel()

	h := newHarness()
	res, err := h.svc.CreateOrder(context.Background(), h.input(enums.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if res.Channel.Hosted == nil || res.Channel.Hosted.AuthorizationURL == "" {
		t.Fatalf("expected hosted checkout result, got %+v", res.Channel)
	}
	if h.orders.created == nil {
		t.Fatal("expected order to be created")
	}
	if !h.orders.created.Split.Subtotal.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("unexpected subtotal %s", h.orders.created.Split.Subtotal)
	}
	if !h.orders.created.Split.Config.MerchantSharePercent.Equal(decimal.NewFromInt(85)) {
		t.Fatalf("merchant override not applied: %s", h.orders.created.Split.Config.MerchantSharePercent)
	}
	if h.adapter.calls != 1 || h.adapter.lastOrder.Customer.Phone != "+2348000000000" {
		t.Fatalf("unexpected adapter calls %d %+v", h.adapter.calls, h.adapter.lastOrder)
	}
	split := h.adapter.lastOrder.Split
	if !split.MerchantSharePercent.Equal(decimal.NewFromInt(85)) || !split.PlatformSharePercent.Equal(decimal.NewFromInt(15)) || split.Bearer != enums.FeeBearerSubaccount {
		t.Fatalf("adapter did not receive the order split: %+v", split)
	}
	if !h.adapter.lastOrder.PlatformFee.Equal(h.orders.created.Split.PlatformFee) || !h.adapter.lastOrder.Amount.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("adapter amounts %s/%s do not match the order", h.adapter.lastOrder.Amount, h.adapter.lastOrder.PlatformFee)
	}
	if h.adapter.preflights != 1 || !h.adapter.preflightOrder.Split.MerchantSharePercent.Equal(decimal.NewFromInt(85)) {
		t.Fatalf("expected one preflight with the computed split, got %d %+v", h.adapter.preflights, h.adapter.preflightOrder)
	}
	if h.orders.attached != 1 {
		t.Fatalf("expected channel to be attached once, got %d", h.orders.attached)
	}
	if len(h.notifier.kinds) != 1 || h.notifier.kinds[0] != enums.EventOrderCreated {
		t.Fatalf("unexpected notifications %v", h.notifier.kinds)
	}
}

func TestCreateOrderRejectsUnpayableMerchantBeforePersisting(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.merchants.err = pkgerrors.New(pkgerrors.CodeMerchantNotPayable, "merchant has no settlement account")

	_, err := h.svc.CreateOrder(context.Background(), h.input(enums.PaymentMethodOnline))
	if !pkgerrors.IsCode(err, pkgerrors.CodeMerchantNotPayable) {
		t.Fatalf("expected merchant not payable, got %v", err)
	}
	if h.orders.created != nil || h.adapter.calls != 0 {
		t.Fatal("order must not be created for an unpayable merchant")
	}
}

func TestCreateOrderRejectsFailedPreflightBeforePersisting(t *testing.T) {
	t.Parallel()

	h := newHarness()
	terminal := &stubAdapter{
		method:       enums.PaymentMethodTerminal,
		preflightErr: pkgerrors.New(pkgerrors.CodeValidation, "terminal_id is required for terminal payments"),
	}
	h.registry.adapters[enums.PaymentMethodTerminal] = terminal

	_, err := h.svc.CreateOrder(context.Background(), h.input(enums.PaymentMethodTerminal))
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.orders.created != nil {
		t.Fatal("order must not be created when the channel refuses the request")
	}
	if terminal.preflights != 1 || terminal.calls != 0 {
		t.Fatalf("expected preflight only, got %d preflights and %d initiations", terminal.preflights, terminal.calls)
	}
}

func TestCreateOrderStopsOnInsufficientStock(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.inventory.err = pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock")

	_, err := h.svc.CreateOrder(context.Background(), h.input(enums.PaymentMethodOnline))
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if h.merchants.calls != 0 || h.orders.created != nil {
		t.Fatal("no further work expected after stock check fails")
	}
	if len(h.inventory.items) != 2 || h.inventory.items[0].Quantity != 2 {
		t.Fatalf("unexpected stock request %+v", h.inventory.items)
	}
}

func TestCreateOrderRejectsSplitThatLeavesNothingForMerchant(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.merchants.dest.MerchantSharePercent = decimal.NewNullDecimal(decimal.Zero)

	_, err := h.svc.CreateOrder(context.Background(), h.input(enums.PaymentMethodOnline))
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.orders.created != nil {
		t.Fatal("order must not be created when the split is invalid")
	}
}

func TestCreateOrderInitiationFailureKeepsOrderAndReportsReference(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.adapter.err = errors.New("processor unavailable")

	_, err := h.svc.CreateOrder(context.Background(), h.input(enums.PaymentMethodOnline))
	if !pkgerrors.IsCode(err, pkgerrors.CodeChannelInitiation) {
		t.Fatalf("expected channel initiation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	if !ok || details["reference"] != h.orders.order.Reference {
		t.Fatalf("expected reference in details, got %#v", pkgerrors.As(err).Details())
	}
	if h.orders.attached != 0 || len(h.notifier.kinds) != 0 {
		t.Fatal("nothing should be attached or announced after failed initiation")
	}
}

func TestRetryChannelRequiresUnattachedOrder(t *testing.T) {
	t.Parallel()

	h := newHarness()
	now := time.Now()
	h.orders.order.Payment.ChannelAttachedAt = &now

	_, err := h.svc.RetryChannel(context.Background(), h.orders.order.Reference, RetryInput{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if h.adapter.calls != 0 {
		t.Fatal("adapter must not be called")
	}
}

func TestRetryChannelUsesRequestedMethod(t *testing.T) {
	t.Parallel()

	h := newHarness()
	terminal := &stubAdapter{method: enums.PaymentMethodTerminal}
	h.registry.adapters[enums.PaymentMethodTerminal] = terminal

	res, err := h.svc.RetryChannel(context.Background(), h.orders.order.Reference, RetryInput{
		PaymentMethod: enums.PaymentMethodTerminal,
		TerminalID:    " TRM_1 ",
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Channel.Terminal == nil || terminal.lastOrder.TerminalID != "TRM_1" {
		t.Fatalf("expected terminal initiation, got %+v", res.Channel)
	}
	if h.adapter.calls != 0 {
		t.Fatal("original method adapter must not be used")
	}
}

func TestVerifyConfirmsSucceededCharge(t *testing.T) {
	t.Parallel()

	h := newHarness()
	paidAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.verifier.tx = &channels.VerifiedTransaction{
		Reference:     h.orders.order.Reference,
		TransactionID: "4099260516",
		AmountMinor:   250000,
		Succeeded:     true,
		Status:        "success",
		Channel:       "card",
		PaidAt:        paidAt,
	}

	order, err := h.svc.Verify(context.Background(), h.orders.order.Reference)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if order.Payment.Status != enums.PaymentStatusPaid {
		t.Fatalf("expected paid order, got %s", order.Payment.Status)
	}
	got := h.orders.confirmed
	if got == nil || got.Source != "verify" || got.AmountMinor != 250000 || got.TransactionID != "4099260516" || !got.PaidAt.Equal(paidAt) {
		t.Fatalf("unexpected confirmation %+v", got)
	}
}

func TestVerifyRoutesFailedCharge(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.verifier.tx = &channels.VerifiedTransaction{Reference: h.orders.order.Reference, TransactionID: "1", Status: "failed"}

	if _, err := h.svc.Verify(context.Background(), h.orders.order.Reference); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if h.orders.failed == nil || h.orders.confirmed != nil {
		t.Fatal("expected failure to be applied")
	}
}

func TestVerifyLeavesAbandonedChargeUntouched(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.verifier.tx = &channels.VerifiedTransaction{Reference: h.orders.order.Reference, Status: "abandoned"}

	order, err := h.svc.Verify(context.Background(), h.orders.order.Reference)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if order.Payment.Status != enums.PaymentStatusPending || h.orders.failed != nil || h.orders.confirmed != nil {
		t.Fatal("pending charge must not change the order")
	}
}

func TestVerifySkipsProcessorForPaidOrder(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.orders.order.Payment.Status = enums.PaymentStatusPaid

	if _, err := h.svc.Verify(context.Background(), h.orders.order.Reference); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if h.verifier.calls != 0 {
		t.Fatal("processor must not be queried for a paid order")
	}
}

func TestVerifyWrapsProcessorError(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.verifier.err = errors.New("timeout")

	_, err := h.svc.Verify(context.Background(), h.orders.order.Reference)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

type harness struct {
	svc       Service
	inventory *stubInventory
	merchants *stubResolver
	adapter   *stubAdapter
	registry  *stubRegistry
	orders    *stubOrders
	verifier  *stubVerifier
	notifier  *stubNotifier
}

func newHarness() *harness {
	merchantID := uuid.New()
	h := &harness{
		inventory: &stubInventory{},
		merchants: &stubResolver{dest: &merchants.Destination{
			Settlement: channels.Settlement{
				MerchantID:     merchantID,
				Name:           "Mama Put",
				SubaccountCode: "ACCT_123",
			},
			MerchantSharePercent: decimal.NewNullDecimal(decimal.NewFromInt(85)),
		}},
		adapter:  &stubAdapter{method: enums.PaymentMethodOnline},
		verifier: &stubVerifier{},
		notifier: &stubNotifier{},
	}
	h.registry = &stubRegistry{adapters: map[enums.PaymentMethod]channels.Adapter{
		enums.PaymentMethodOnline: h.adapter,
	}}
	h.orders = &stubOrders{order: &models.Order{
		ID:            uuid.New(),
		Reference:     "GRUNDY_1700000000000_abcdef123",
		MerchantID:    merchantID,
		Status:        enums.OrderStatusCreated,
		CustomerEmail: "ada@example.com",
		Payment: models.Payment{
			Method: enums.PaymentMethodOnline,
			Status: enums.PaymentStatusPending,
			Amount: decimal.NewFromInt(2500),
		},
	}}

	calc := fees.NewCalculatorWithFormula(fees.ProcessorFormula{
		Percent: decimal.RequireFromString("1.5"),
		FlatFee: decimal.NewFromInt(100),
		Cap:     decimal.NewFromInt(2000),
	}, decimal.NewFromInt(10), enums.FeeBearerSubaccount)

	svc, err := NewService(ServiceParams{
		Inventory:  h.inventory,
		Merchants:  h.merchants,
		Calculator: calc,
		Orders:     h.orders,
		Channels:   h.registry,
		Verifier:   h.verifier,
		Notifier:   h.notifier,
	})
	if err != nil {
		panic(err)
	}
	h.svc = svc
	return h
}

func (h *harness) input(method enums.PaymentMethod) CreateOrderInput {
	phone := "+2348000000000"
	return CreateOrderInput{
		MerchantID: h.merchants.dest.Settlement.MerchantID,
		Customer:   orders.CustomerInput{Email: "ada@example.com", Phone: phone, Name: "Ada"},
		Items: []orders.ItemInput{
			{ProductID: uuid.New(), Name: "Jollof", UnitPrice: decimal.NewFromInt(1000), Quantity: 2},
			{ProductID: uuid.New(), Name: "Plantain", UnitPrice: decimal.NewFromInt(500), Quantity: 1},
		},
		PaymentMethod: method,
	}
}

type stubInventory struct {
	items []inventory.Item
	err   error
}

func (s *stubInventory) CheckAvailability(ctx context.Context, items []inventory.Item, merchantID uuid.UUID) error {
	s.items = items
	return s.err
}

type stubResolver struct {
	dest  *merchants.Destination
	err   error
	calls int
}

func (s *stubResolver) ResolveSettlementDestination(ctx context.Context, merchantID uuid.UUID) (*merchants.Destination, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.dest, nil
}

type stubRegistry struct {
	adapters map[enums.PaymentMethod]channels.Adapter
}

func (s *stubRegistry) For(method enums.PaymentMethod) (channels.Adapter, error) {
	adapter, ok := s.adapters[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	return adapter, nil
}

type stubAdapter struct {
	method         enums.PaymentMethod
	err            error
	preflightErr   error
	calls          int
	preflights     int
	lastOrder      channels.InitiateOrder
	preflightOrder channels.InitiateOrder
}

func (s *stubAdapter) Method() enums.PaymentMethod { return s.method }

func (s *stubAdapter) Preflight(order channels.InitiateOrder, merchant channels.Settlement) error {
	s.preflights++
	s.preflightOrder = order
	return s.preflightErr
}

func (s *stubAdapter) Initiate(ctx context.Context, order channels.InitiateOrder, merchant channels.Settlement) (channels.Result, error) {
	s.calls++
	s.lastOrder = order
	if s.err != nil {
		return channels.Result{}, s.err
	}
	res := channels.Result{Method: s.method, PaymentStatus: s.method.ChannelPaymentStatus()}
	switch s.method {
	case enums.PaymentMethodOnline:
		res.Hosted = &channels.HostedCheckoutResult{
			AuthorizationURL:   "https://checkout.example/" + order.Reference,
			ProcessorReference: order.Reference,
		}
	case enums.PaymentMethodBankTransfer:
		res.Dedicated = &channels.DedicatedAccountResult{Account: channels.DedicatedAccount{AccountNumber: "0123456789"}}
	case enums.PaymentMethodTerminal:
		res.Terminal = &channels.TerminalSessionResult{SessionID: "sess_1", TerminalID: order.TerminalID}
	}
	return res, nil
}

type stubOrders struct {
	orders.Service
	order     *models.Order
	created   *orders.CreateOrderInput
	attached  int
	confirmed *orders.PaymentConfirmation
	failed    *orders.PaymentFailure
}

func (s *stubOrders) Create(ctx context.Context, input orders.CreateOrderInput) (*models.Order, error) {
	s.created = &input
	s.order.MerchantID = input.MerchantID
	s.order.CustomerID = input.CustomerID
	s.order.CustomerEmail = input.Customer.Email
	s.order.CustomerPhone = optional(input.Customer.Phone)
	s.order.CustomerName = optional(input.Customer.Name)
	s.order.Payment.Method = input.PaymentMethod
	s.order.Payment.Amount = input.Split.Subtotal
	s.order.Payment.PlatformFee = input.Split.PlatformFee
	s.order.Payment.ProcessorFee = input.Split.ProcessorFee
	s.order.Payment.MerchantAmount = input.Split.MerchantAmount
	s.order.Payment.MerchantSharePercent = input.Split.Config.MerchantSharePercent
	s.order.Payment.PlatformSharePercent = input.Split.Config.PlatformSharePercent
	s.order.Payment.FeeBearer = input.Split.Config.Bearer
	return s.order, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (s *stubOrders) AttachChannel(ctx context.Context, reference string, result channels.Result) (*models.Order, error) {
	s.attached++
	now := time.Now()
	s.order.Payment.ChannelAttachedAt = &now
	s.order.Payment.Method = result.Method
	s.order.Payment.Status = result.PaymentStatus
	return s.order, nil
}

func (s *stubOrders) Get(ctx context.Context, reference string) (*models.Order, error) {
	if reference != s.order.Reference {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubOrders) ConfirmPayment(ctx context.Context, input orders.PaymentConfirmation) (orders.SettlementResult, error) {
	s.confirmed = &input
	s.order.Payment.Status = enums.PaymentStatusPaid
	return orders.SettlementResult{Outcome: orders.OutcomeApplied, Order: s.order}, nil
}

func (s *stubOrders) FailPayment(ctx context.Context, input orders.PaymentFailure) (orders.SettlementResult, error) {
	s.failed = &input
	s.order.Payment.Status = enums.PaymentStatusFailed
	return orders.SettlementResult{Outcome: orders.OutcomeApplied, Order: s.order}, nil
}

type stubVerifier struct {
	tx    *channels.VerifiedTransaction
	err   error
	calls int
}

func (s *stubVerifier) VerifyTransaction(ctx context.Context, reference string) (*channels.VerifiedTransaction, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.tx, nil
}

type stubNotifier struct {
	kinds []enums.OutboxEventType
}

func (s *stubNotifier) Notify(ctx context.Context, order *models.Order, kind enums.OutboxEventType) {
	s.kinds = append(s.kinds, kind)
}
