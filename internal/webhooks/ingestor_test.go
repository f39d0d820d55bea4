package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/internal/ledger"
	"github.com/grundyhq/grundy-backend/internal/orders"
	"github.com/grundyhq/grundy-backend/internal/payouts"
	"github.com/grundyhq/grundy-backend/internal/refunds"
	"github.com/grundyhq/grundy-backend/pkg/db"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/db/sqlitetest"
	dbtypes "github.com/grundyhq/grundy-backend/pkg/db/types"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/outbox"
)

const testSecret = "sk_test_webhook"

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *models.Order, enums.OutboxEventType) {}

type fixture struct {
	conn     *gorm.DB
	ingestor *Ingestor
	events   *Repository
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, guard inFlightGuard) fixture {
	t.Helper()
	conn := sqlitetest.Open(t)
	client := db.NewFromConn(conn)
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	refundSvc, err := refunds.NewService(refunds.ServiceParams{
		Repo:   refunds.NewRepository(conn),
		Ledger: ledgerSvc,
		Outbox: emitter,
		Logger: logger.Nop(),
	})
	require.NoError(t, err)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(conn),
		Tx:       client,
		Ledger:   ledgerSvc,
		Refunds:  refundSvc,
		Outbox:   emitter,
		Notifier: nopNotifier{},
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)
	tracker, err := payouts.NewTracker(payouts.TrackerParams{
		Repo:     payouts.NewRepository(conn),
		Tx:       client,
		Ledger:   ledgerSvc,
		Outbox:   emitter,
		Notifier: nopNotifier{},
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)

	events := NewRepository(conn)
	ingestor, err := NewIngestor(IngestorParams{
		Secret:  testSecret,
		Events:  events,
		Orders:  orderSvc,
		Payouts: tracker,
		Guard:   guard,
		Logger:  logg,
	})
	require.NoError(t, err)
	return fixture{conn: conn, ingestor: ingestor, events: events, logs: buf}
}

func seedOrder(t *testing.T, conn *gorm.DB, mutate func(*models.Order)) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:              uuid.New(),
		Reference:       "GRUNDY_1700000000000_" + uuid.NewString()[:9],
		MerchantID:      uuid.New(),
		Status:          enums.OrderStatusCreated,
		CustomerEmail:   "ada@example.com",
		DeliveryAddress: dbtypes.Address{Line1: "1 Marina", City: "Lagos"},
		Subtotal:        decimal.NewFromInt(1000),
		Payment: models.Payment{
			Method:               enums.PaymentMethodOnline,
			Status:               enums.PaymentStatusPending,
			Amount:               decimal.NewFromInt(1000),
			PlatformFee:          decimal.NewFromInt(100),
			ProcessorFee:         decimal.NewFromInt(115),
			MerchantAmount:       decimal.NewFromInt(785),
			MerchantSharePercent: decimal.NewFromInt(90),
			PlatformSharePercent: decimal.NewFromInt(10),
			FeeBearer:            enums.FeeBearerSubaccount,
			PayoutStatus:         enums.PayoutStatusPending,
		},
		Delivery: models.Delivery{Status: enums.DeliveryStatusPending},
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, conn.Create(order).Error)
	return order
}

func signed(t *testing.T, event string, data map[string]any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	return raw, Sign(testSecret, raw)
}

func loadOrder(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, conn.First(&order, "id = ?", id).Error)
	return order
}

func countEvents(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Count(&count).Error)
	return count
}

func TestIngestRejectsBadSignatureBeforeParsing(t *testing.T) {
	f := newFixture(t, nil)
	order := seedOrder(t, f.conn, nil)
	raw, _ := signed(t, KindChargeSuccess, map[string]any{"id": 1, "reference": order.Reference, "amount": 100000, "status": "success"})

	ack, err := f.ingestor.Ingest(context.Background(), raw, Sign("other-secret", raw))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))
	assert.False(t, ack.Success)

	_, err = f.ingestor.Ingest(context.Background(), []byte("not json"), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))

	assert.Equal(t, enums.PaymentStatusPending, loadOrder(t, f.conn, order.ID).Payment.Status)
	assert.EqualValues(t, 0, countEvents(t, f.conn))
}

func TestIngestChargeReplayPaysOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := seedOrder(t, f.conn, nil)
	raw, sig := signed(t, KindChargeSuccess, map[string]any{
		"id": 4099260516, "reference": order.Reference, "amount": 100000,
		"status": "success", "channel": "card", "paid_at": "2026-03-01T10:00:00.000Z",
	})

	ack, err := f.ingestor.Ingest(ctx, raw, sig)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	require.Len(t, ack.Results, 1)
	assert.Equal(t, OutcomeApplied, ack.Results[0].Outcome)

	replay, err := f.ingestor.Ingest(ctx, raw, sig)
	require.NoError(t, err)
	assert.True(t, replay.Success)
	assert.True(t, replay.Duplicate)

	got := loadOrder(t, f.conn, order.ID)
	assert.Equal(t, enums.PaymentStatusPaid, got.Payment.Status)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
	assert.EqualValues(t, 1, countEvents(t, f.conn))

	var paidRows int64
	require.NoError(t, f.conn.Model(&models.LedgerEvent{}).
		Where("order_id = ? AND type = ?", order.ID, enums.LedgerEventPaymentConfirmed).
		Count(&paidRows).Error)
	assert.EqualValues(t, 1, paidRows)
}

func TestIngestConcurrentDeliveriesPayOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := seedOrder(t, f.conn, nil)
	raw, sig := signed(t, KindChargeSuccess, map[string]any{
		"id": 4099260600, "reference": order.Reference, "amount": 100000,
		"status": "success", "channel": "card",
	})

	const deliveries = 2
	acks := make([]Ack, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acks[i], errs[i] = f.ingestor.Ingest(ctx, raw, sig)
		}(i)
	}
	wg.Wait()

	var applied int
	for i := 0; i < deliveries; i++ {
		require.NoError(t, errs[i])
		assert.True(t, acks[i].Success)
		for _, result := range acks[i].Results {
			if result.Outcome == OutcomeApplied {
				applied++
			}
		}
	}
	assert.Equal(t, 1, applied)

	got := loadOrder(t, f.conn, order.ID)
	assert.Equal(t, enums.PaymentStatusPaid, got.Payment.Status)
	assert.EqualValues(t, 1, countEvents(t, f.conn))

	var paidRows int64
	require.NoError(t, f.conn.Model(&models.LedgerEvent{}).
		Where("order_id = ? AND type = ?", order.ID, enums.LedgerEventPaymentConfirmed).
		Count(&paidRows).Error)
	assert.EqualValues(t, 1, paidRows)
}

func TestIngestAmountMismatchIsAcknowledgedAndRecorded(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := seedOrder(t, f.conn, nil)
	raw, sig := signed(t, KindChargeSuccess, map[string]any{
		"id": 77, "reference": order.Reference, "amount": 50000, "status": "success",
	})

	ack, err := f.ingestor.Ingest(ctx, raw, sig)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, OutcomeDiscrepancy, ack.Results[0].Outcome)
	assert.Equal(t, enums.PaymentStatusPending, loadOrder(t, f.conn, order.ID).Payment.Status)

	replay, err := f.ingestor.Ingest(ctx, raw, sig)
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)

	var discrepancies int64
	require.NoError(t, f.conn.Model(&models.LedgerEvent{}).
		Where("type = ?", enums.LedgerEventDiscrepancy).Count(&discrepancies).Error)
	assert.EqualValues(t, 1, discrepancies)
}

func TestIngestUnknownKindAcknowledgedWithoutMutation(t *testing.T) {
	f := newFixture(t, nil)
	order := seedOrder(t, f.conn, nil)
	raw, sig := signed(t, "invoice.update", map[string]any{"id": 5, "reference": order.Reference})

	ack, err := f.ingestor.Ingest(context.Background(), raw, sig)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, "event ignored", ack.Message)
	assert.EqualValues(t, 0, countEvents(t, f.conn))
	assert.Equal(t, enums.PaymentStatusPending, loadOrder(t, f.conn, order.ID).Payment.Status)
	assert.Equal(t, 1, strings.Count(f.logs.String(), "unhandled webhook event acknowledged"))
	assert.NotContains(t, f.logs.String(), `"level":"error"`)
}

func TestIngestDedicatedAccountTransfer(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	account := "9930000123"
	order := seedOrder(t, f.conn, func(o *models.Order) {
		o.Payment.Method = enums.PaymentMethodBankTransfer
		o.Payment.Status = enums.PaymentStatusAwaitingPayment
		o.Payment.DedicatedAccountNumber = &account
	})

	raw, sig := signed(t, KindChargeSuccess, map[string]any{
		"id": 901, "reference": "T482929_dva", "amount": 100000, "status": "success",
		"channel": "dedicated_nuban",
		"authorization": map[string]any{"channel": "dedicated_nuban", "receiver_bank_account_number": account},
	})
	ack, err := f.ingestor.Ingest(ctx, raw, sig)
	require.NoError(t, err)
	assert.Equal(t, order.Reference, ack.Results[0].Reference)
	assert.Equal(t, enums.PaymentStatusPaid, loadOrder(t, f.conn, order.ID).Payment.Status)

	raw, sig = signed(t, KindDedicatedAccount, map[string]any{"id": 901, "account_number": account, "amount": 100000})
	ack, err = f.ingestor.Ingest(ctx, raw, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplayed, ack.Results[0].Outcome)
}

func TestIngestTerminalFailureBySession(t *testing.T) {
	f := newFixture(t, nil)
	session := "PRQ_abc"
	order := seedOrder(t, f.conn, func(o *models.Order) {
		o.Payment.Method = enums.PaymentMethodTerminal
		o.Payment.Status = enums.PaymentStatusAwaitingPayment
		o.Payment.TerminalSessionID = &session
	})
	raw, sig := signed(t, KindTerminalPaymentFailed, map[string]any{
		"id": 12, "request_code": session, "gateway_response": "Declined",
	})

	ack, err := f.ingestor.Ingest(context.Background(), raw, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, ack.Results[0].Outcome)
	assert.Equal(t, enums.PaymentStatusFailed, loadOrder(t, f.conn, order.ID).Payment.Status)
}

func TestIngestTransferFailedMarksPayout(t *testing.T) {
	f := newFixture(t, nil)
	order := seedOrder(t, f.conn, func(o *models.Order) {
		o.Status = enums.OrderStatusDelivered
		o.Payment.Status = enums.PaymentStatusPaid
		o.Payment.PayoutStatus = enums.PayoutStatusProcessing
	})
	raw, sig := signed(t, KindTransferFailed, map[string]any{
		"reference": order.Reference, "transfer_code": "TRF_1", "reason": "Could not resolve account",
	})

	ack, err := f.ingestor.Ingest(context.Background(), raw, sig)
	require.NoError(t, err)
	assert.True(t, ack.Success)
	got := loadOrder(t, f.conn, order.ID)
	assert.Equal(t, enums.PayoutStatusFailed, got.Payment.PayoutStatus)
	assert.Equal(t, enums.OrderStatusDelivered, got.Status)
}

type stubGuard struct {
	acquired bool
	released []string
}

func (g *stubGuard) Acquire(ctx context.Context, id string) (bool, error) { return g.acquired, nil }
func (g *stubGuard) Release(ctx context.Context, id string) error {
	g.released = append(g.released, id)
	return nil
}

func TestIngestSkipsEventAlreadyInFlight(t *testing.T) {
	guard := &stubGuard{acquired: false}
	f := newFixture(t, guard)
	order := seedOrder(t, f.conn, nil)
	raw, sig := signed(t, KindChargeSuccess, map[string]any{"id": 3, "reference": order.Reference, "amount": 100000, "status": "success"})

	ack, err := f.ingestor.Ingest(context.Background(), raw, sig)
	require.NoError(t, err)
	assert.True(t, ack.Duplicate)
	assert.Empty(t, guard.released)
	assert.Equal(t, enums.PaymentStatusPending, loadOrder(t, f.conn, order.ID).Payment.Status)
}

func TestIngestReleasesGuardAfterDispatch(t *testing.T) {
	guard := &stubGuard{acquired: true}
	f := newFixture(t, guard)
	order := seedOrder(t, f.conn, nil)
	raw, sig := signed(t, KindChargeSuccess, map[string]any{"id": 4, "reference": order.Reference, "amount": 100000, "status": "success"})

	ack, err := f.ingestor.Ingest(context.Background(), raw, sig)
	require.NoError(t, err)
	assert.Equal(t, []string{ack.EventID}, guard.released)
}

type failingSettler struct{}

func (failingSettler) ConfirmPayment(context.Context, orders.PaymentConfirmation) (orders.SettlementResult, error) {
	return orders.SettlementResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "mark order paid")
}

func (failingSettler) FailPayment(context.Context, orders.PaymentFailure) (orders.SettlementResult, error) {
	return orders.SettlementResult{}, nil
}

type nopPayouts struct{}

func (nopPayouts) RecordPayoutOutcome(context.Context, string, payouts.Outcome, payouts.Details) (payouts.Result, error) {
	return payouts.Result{}, nil
}

func TestIngestDependencyFailureIsNotRecorded(t *testing.T) {
	conn := sqlitetest.Open(t)
	events := NewRepository(conn)
	ingestor, err := NewIngestor(IngestorParams{
		Secret:  testSecret,
		Events:  events,
		Orders:  failingSettler{},
		Payouts: nopPayouts{},
	})
	require.NoError(t, err)
	ingestor.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	raw, sig := signed(t, KindChargeSuccess, map[string]any{"id": 9, "reference": "GRUNDY_1_x", "amount": 100, "status": "success"})
	ack, err := ingestor.Ingest(context.Background(), raw, sig)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.False(t, ack.Success)
	assert.EqualValues(t, 0, countEvents(t, conn))
}
