package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/grundyhq/grundy-backend/pkg/db"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/db/sqlitetest"
	dbtypes "github.com/grundyhq/grundy-backend/pkg/db/types"
	"github.com/grundyhq/grundy-backend/pkg/enums"
)

func seedOrder(t *testing.T, conn *gorm.DB, mutate func(*models.Order)) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:              uuid.New(),
		Reference:       newReference(time.Now()),
		MerchantID:      uuid.New(),
		Status:          enums.OrderStatusCreated,
		CustomerEmail:   "ada@example.com",
		DeliveryAddress: dbtypes.Address{Line1: "1 Marina", City: "Lagos"},
		Subtotal:        decimal.NewFromInt(2500),
		Payment: models.Payment{
			Method:               enums.PaymentMethodOnline,
			Status:               enums.PaymentStatusPending,
			Amount:               decimal.NewFromInt(2500),
			PlatformFee:          decimal.NewFromInt(250),
			ProcessorFee:         decimal.NewFromInt(137),
			MerchantAmount:       decimal.NewFromInt(2113),
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

func strPtr(v string) *string { return &v }

func TestRepositoryAttachChannelOnlyOnce(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	order := seedOrder(t, conn, nil)

	updates := map[string]any{
		"payment_status":      enums.PaymentStatusPending,
		"processor_reference": order.Reference,
		"channel_attached_at": time.Now(),
	}
	ok, err := repo.AttachChannel(ctx, order.Reference, updates)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AttachChannel(ctx, order.Reference, updates)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByReference(ctx, order.Reference)
	require.NoError(t, err)
	assert.Equal(t, order.Reference, got.Payment.ChannelReference())
	assert.NotNil(t, got.Payment.ChannelAttachedAt)
}

func TestRepositoryAttachChannelToSettledOnlyAfterPayment(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	pending := seedOrder(t, conn, nil)
	paid := seedOrder(t, conn, func(o *models.Order) {
		o.Status = enums.OrderStatusConfirmed
		o.Payment.Status = enums.PaymentStatusPaid
	})

	updates := map[string]any{
		"processor_reference": "ref",
		"channel_attached_at": time.Now(),
	}
	ok, err := repo.AttachChannelToSettled(ctx, pending.Reference, updates)
	require.NoError(t, err)
	assert.False(t, ok, "unpaid orders go through AttachChannel")

	ok, err = repo.AttachChannelToSettled(ctx, paid.Reference, updates)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AttachChannelToSettled(ctx, paid.Reference, updates)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByReference(ctx, paid.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, got.Payment.Status)
	assert.NotNil(t, got.Payment.ChannelAttachedAt)
}

func TestRepositoryMarkPaidIsSingleTransition(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	order := seedOrder(t, conn, nil)

	update := PaidUpdate{TransactionID: "4099260516", Channel: "card", PaidAt: time.Now().UTC()}
	ok, err := repo.MarkPaid(ctx, order.ID, update)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkPaid(ctx, order.ID, update)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByTransactionID(ctx, "4099260516")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, got.Payment.Status)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
	assert.Equal(t, enums.PayoutStatusProcessing, got.Payment.PayoutStatus)
	require.NotNil(t, got.Payment.Channel)
	assert.Equal(t, "card", *got.Payment.Channel)
}

func TestRepositoryMarkPaidRejectsReusedTransaction(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	first := seedOrder(t, conn, nil)
	second := seedOrder(t, conn, nil)

	_, err := repo.MarkPaid(ctx, first.ID, PaidUpdate{TransactionID: "77", PaidAt: time.Now()})
	require.NoError(t, err)

	_, err = repo.MarkPaid(ctx, second.ID, PaidUpdate{TransactionID: "77", PaidAt: time.Now()})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, uniqueTransactionConstraint))
}

func TestRepositoryMarkPaymentFailedSkipsPaid(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	paid := seedOrder(t, conn, func(o *models.Order) { o.Payment.Status = enums.PaymentStatusPaid })

	ok, err := repo.MarkPaymentFailed(ctx, paid.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryFindAwaitingByAccountNumberOldestFirst(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	newer := seedOrder(t, conn, func(o *models.Order) {
		o.Payment.Method = enums.PaymentMethodBankTransfer
		o.Payment.Status = enums.PaymentStatusAwaitingPayment
		o.Payment.DedicatedAccountNumber = strPtr("9930000123")
		o.CreatedAt = base.Add(time.Hour)
	})
	older := seedOrder(t, conn, func(o *models.Order) {
		o.Payment.Method = enums.PaymentMethodBankTransfer
		o.Payment.Status = enums.PaymentStatusAwaitingPayment
		o.Payment.DedicatedAccountNumber = strPtr("9930000123")
		o.CreatedAt = base
	})
	seedOrder(t, conn, func(o *models.Order) {
		o.Payment.Method = enums.PaymentMethodBankTransfer
		o.Payment.Status = enums.PaymentStatusPaid
		o.Payment.DedicatedAccountNumber = strPtr("9930000123")
	})

	orders, err := repo.FindAwaitingByAccountNumber(ctx, "9930000123")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, older.ID, orders[0].ID)
	assert.Equal(t, newer.ID, orders[1].ID)
}

func TestRepositoryCancelGuards(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	delivered := seedOrder(t, conn, func(o *models.Order) { o.Status = enums.OrderStatusDelivered })
	ok, err := repo.CancelUnpaid(ctx, delivered.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	paid := seedOrder(t, conn, func(o *models.Order) {
		o.Status = enums.OrderStatusConfirmed
		o.Payment.Status = enums.PaymentStatusPaid
	})
	ok, err = repo.CancelUnpaid(ctx, paid.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok, "paid orders go through CancelPaid")

	ok, err = repo.CancelPaid(ctx, paid.ID, strPtr("out of stock"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByReference(ctx, paid.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, got.Status)
	assert.Equal(t, enums.PaymentStatusRefunded, got.Payment.Status)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, "out of stock", *got.CancellationReason)
}

func TestRepositoryUpdateDeliverySetsDeliveredAt(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	order := seedOrder(t, conn, func(o *models.Order) { o.Status = enums.OrderStatusInTransit })

	status := enums.OrderStatusDelivered
	ok, err := repo.UpdateDelivery(ctx, order.ID, DeliveryUpdate{
		Status:      enums.DeliveryStatusDelivered,
		RiderID:     strPtr("rider-7"),
		OrderStatus: &status,
		At:          time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateDelivery(ctx, order.ID, DeliveryUpdate{Status: enums.DeliveryStatusFailed})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByReference(ctx, order.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusDelivered, got.Delivery.Status)
	assert.NotNil(t, got.Delivery.DeliveredAt)
	require.NotNil(t, got.Delivery.RiderID)
	assert.Equal(t, "rider-7", *got.Delivery.RiderID)
}
