package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/grundyhq/grundy-backend/internal/channels"
	"github.com/grundyhq/grundy-backend/internal/checkout"
	"github.com/grundyhq/grundy-backend/internal/orders"
	internalwebhooks "github.com/grundyhq/grundy-backend/internal/webhooks"
	pkgAuth "github.com/grundyhq/grundy-backend/pkg/auth"
	"github.com/grundyhq/grundy-backend/pkg/config"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	"github.com/grundyhq/grundy-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubCheckout struct {
	checkout.Service
	creates int
}

func (s *stubCheckout) CreateOrder(ctx context.Context, input checkout.CreateOrderInput) (*checkout.Result, error) {
	s.creates++
	return &checkout.Result{
		Order: testOrder(),
		Channel: channels.Result{
			Method:        enums.PaymentMethodOnline,
			PaymentStatus: enums.PaymentStatusPending,
			Hosted:        &channels.HostedCheckoutResult{AuthorizationURL: "https://checkout.example/abc"},
		},
	}, nil
}

type stubOrders struct {
	orders.Service
}

func (stubOrders) Get(ctx context.Context, reference string) (*models.Order, error) {
	order := testOrder()
	order.Reference = reference
	return order, nil
}

type stubIngestor struct{}

func (stubIngestor) Ingest(ctx context.Context, raw []byte, signature string) (internalwebhooks.Ack, error) {
	return internalwebhooks.Ack{Success: true, Message: "processed"}, nil
}

type stubPayouts struct{}

func (stubPayouts) ListFailed(ctx context.Context, limit int) ([]models.Order, error) {
	return nil, nil
}

type stubRefunds struct{}

func (stubRefunds) Process(ctx context.Context, reference string) (*models.Refund, error) {
	return &models.Refund{ID: uuid.New(), OrderReference: reference, Status: enums.RefundStatusProcessing}, nil
}

type stubLedger struct{}

func (stubLedger) ListDiscrepancies(ctx context.Context, limit int) ([]models.LedgerEvent, error) {
	return nil, nil
}

type stubParked struct{}

func (stubParked) ListForAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxDLQ, error) {
	return nil, nil
}

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	m.data[key] = str
	return true, nil
}

func (m *memoryStore) CompareAndSwap(_ context.Context, key, expected, value string, _ time.Duration) (bool, error) {
	if current, ok := m.data[key]; !ok || current != expected {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m.data[key] != expected {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("mem:%s:%s", scope, id)
}

func testOrder() *models.Order {
	return &models.Order{
		ID:        uuid.New(),
		Reference: "GRUNDY_1_a",
		Status:    enums.OrderStatusCreated,
		Payment: models.Payment{
			Method: enums.PaymentMethodOnline,
			Status: enums.PaymentStatusPending,
			Amount: decimal.NewFromInt(10000),
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Env: "test", FrontendURL: "http://localhost:3000"},
		JWT:      config.JWTConfig{Secret: "secret", Issuer: "grundy", ExpirationMinutes: 10},
		Eventing: config.EventingConfig{HTTPIdempotencyTTL: time.Hour},
	}
}

func newTestRouter(cfg *config.Config, checkoutSvc *stubCheckout) http.Handler {
	return NewRouter(RouterParams{
		Config:           cfg,
		Logger:           logger.Nop(),
		Gatherer:         prometheus.NewRegistry(),
		DB:               stubPinger{},
		IdempotencyStore: &memoryStore{data: map[string]string{}},
		Checkout:         checkoutSvc,
		Orders:           stubOrders{},
		Webhooks:         stubIngestor{},
		Payouts:          stubPayouts{},
		Refunds:          stubRefunds{},
		Discrepancies:    stubLedger{},
		ParkedEvents:     stubParked{},
	})
}

func token(t *testing.T, cfg *config.Config, role pkgAuth.Role) string {
	t.Helper()
	tok, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{Subject: "subject-1", Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return tok
}

func TestPublicRoutes(t *testing.T) {
	router := newTestRouter(testConfig(), &stubCheckout{})

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health/live", "", http.StatusOK},
		{http.MethodGet, "/health/ready", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/public/ping", "", http.StatusOK},
		{http.MethodGet, "/api/v1/orders/GRUNDY_1_a", "", http.StatusOK},
		{http.MethodPost, "/api/v1/webhooks/paystack", `{"event":"charge.success"}`, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d got %d", tc.method, tc.path, tc.want, resp.Code)
		}
	}
}

func TestOperatorRoutesRequireRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubCheckout{})

	cases := []struct {
		name          string
		authorization string
		want          int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"customer", "Bearer " + token(t, cfg, pkgAuth.RoleCustomer), http.StatusForbidden},
		{"operator", "Bearer " + token(t, cfg, pkgAuth.RoleOperator), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, path := range []string{
				"/api/v1/admin/payouts/failed",
				"/api/v1/admin/discrepancies",
				"/api/v1/admin/orders/GRUNDY_1_a/parked-events",
			} {
				req := httptest.NewRequest(http.MethodGet, path, nil)
				if tc.authorization != "" {
					req.Header.Set("Authorization", tc.authorization)
				}
				resp := httptest.NewRecorder()
				router.ServeHTTP(resp, req)
				if resp.Code != tc.want {
					t.Fatalf("%s: expected %d got %d", path, tc.want, resp.Code)
				}
			}
		})
	}
}

func TestCreateOrderReplaysIdempotentRequest(t *testing.T) {
	checkoutSvc := &stubCheckout{}
	router := newTestRouter(testConfig(), checkoutSvc)

	body := `{
		"customer": {"email": "ada@example.com"},
		"merchant_id": "` + uuid.NewString() + `",
		"items": [{"product_id": "` + uuid.NewString() + `", "name": "Jollof", "price": "5000", "quantity": 2}],
		"payment_method": "online",
		"delivery_address": {"line1": "1 Marina", "city": "Lagos"}
	}`

	var first string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "order-key-1")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d: %s", i, resp.Code, resp.Body.String())
		}
		if i == 0 {
			first = resp.Body.String()
		} else if resp.Body.String() != first {
			t.Fatalf("expected replayed body")
		}
	}
	if checkoutSvc.creates != 1 {
		t.Fatalf("expected one order creation, got %d", checkoutSvc.creates)
	}
}
