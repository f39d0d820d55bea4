package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grundyhq/grundy-backend/pkg/config"
	"github.com/grundyhq/grundy-backend/pkg/enums"
	"github.com/grundyhq/grundy-backend/pkg/paystack"
)

func newBridge(t *testing.T, handler http.HandlerFunc) *PaystackProcessor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := paystack.New(config.PaystackConfig{SecretKey: "sk_test", BaseURL: srv.URL})
	require.NoError(t, err)
	return NewPaystackProcessor(client)
}

func writeJSON(w http.ResponseWriter, status int, ok bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": ok, "message": message, "data": data})
}

func TestPaystackBridgeMapsDuplicateAccount(t *testing.T) {
	proc := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, false, "Customer already has a dedicated account", nil)
	})

	_, err := proc.AssignDedicatedAccount(context.Background(), DedicatedAccountRequest{Email: "ops@acme.test", PreferredBank: "wema-bank"})
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestPaystackBridgeTerminalSession(t *testing.T) {
	var invoiceMeta map[string]any
	proc := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/paymentrequest":
			var body struct {
				Metadata map[string]any `json:"metadata"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			invoiceMeta = body.Metadata
			writeJSON(w, http.StatusOK, true, "Payment request created", map[string]any{
				"id": 11, "request_code": "PRQ_abc", "offline_reference": "3702000011", "status": "pending",
			})
		case "/terminal/TERM_1/event":
			writeJSON(w, http.StatusOK, true, "Event sent to Terminal", map[string]any{"id": "616d721e8ac5"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	session, err := proc.StartTerminalSession(context.Background(), TerminalRequest{
		CustomerEmail: "ada@example.com",
		AmountMinor:   250000,
		Reference:     "GRUNDY_1_x",
		TerminalID:    "TERM_1",
		SplitCode:     "SPL_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "PRQ_abc", session.SessionID)
	assert.Equal(t, "3702000011", session.OfflineReference)
	assert.Equal(t, "616d721e8ac5", session.EventID)
	assert.Equal(t, "GRUNDY_1_x", invoiceMeta["order_reference"])
}

func TestPaystackBridgeVerify(t *testing.T) {
	proc := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/GRUNDY_1_x", r.URL.Path)
		writeJSON(w, http.StatusOK, true, "Verification successful", map[string]any{
			"id": 4099260516, "status": "success", "reference": "GRUNDY_1_x", "amount": 100000, "channel": "card",
			"paid_at": "2026-03-01T10:00:00Z",
		})
	})

	tx, err := proc.VerifyTransaction(context.Background(), "GRUNDY_1_x")
	require.NoError(t, err)
	assert.True(t, tx.Succeeded)
	assert.Equal(t, "4099260516", tx.TransactionID)
	assert.EqualValues(t, 100000, tx.AmountMinor)
	assert.Equal(t, "card", tx.Channel)
}

func TestPaystackBridgeResolveSplitCreatesOnce(t *testing.T) {
	var created paystack.CreateSplitRequest
	var lists, creates int
	proc := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/split":
			lists++
			assert.Equal(t, "grundy:ACCT_123:85.00:15.00:account", r.URL.Query().Get("name"))
			writeJSON(w, http.StatusOK, true, "Split retrieved", []any{})
		case r.Method == http.MethodPost && r.URL.Path == "/split":
			creates++
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			writeJSON(w, http.StatusOK, true, "Split created", map[string]any{"id": 7, "split_code": "SPL_85", "active": true})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	})

	req := SplitRequest{
		Subaccount:           "ACCT_123",
		MerchantSharePercent: decimal.NewFromInt(85),
		PlatformSharePercent: decimal.NewFromInt(15),
		Bearer:               enums.FeeBearerAccount,
	}
	code, err := proc.ResolveSplit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "SPL_85", code)

	again, err := proc.ResolveSplit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "SPL_85", again)
	assert.Equal(t, 1, lists)
	assert.Equal(t, 1, creates)

	assert.Equal(t, "percentage", created.Type)
	assert.Equal(t, "NGN", created.Currency)
	assert.Equal(t, "account", created.BearerType)
	assert.Empty(t, created.BearerSubaccount)
	require.Len(t, created.Subaccounts, 1)
	assert.Equal(t, "ACCT_123", created.Subaccounts[0].Subaccount)
	assert.EqualValues(t, 85, created.Subaccounts[0].Share)
}

func TestPaystackBridgeResolveSplitReusesMatchingSplit(t *testing.T) {
	proc := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("a matching split must not be recreated, got %s", r.Method)
		}
		writeJSON(w, http.StatusOK, true, "Split retrieved", []any{
			map[string]any{
				"split_code": "SPL_STALE", "active": true, "bearer_type": "subaccount",
				"subaccounts": []any{map[string]any{"subaccount": map[string]any{"subaccount_code": "ACCT_123"}, "share": 80}},
			},
			map[string]any{
				"split_code": "SPL_90", "active": true, "bearer_type": "subaccount",
				"subaccounts": []any{map[string]any{"subaccount": map[string]any{"subaccount_code": "ACCT_123"}, "share": 90}},
			},
		})
	})

	code, err := proc.ResolveSplit(context.Background(), SplitRequest{
		Subaccount:           "ACCT_123",
		MerchantSharePercent: decimal.NewFromInt(90),
		PlatformSharePercent: decimal.NewFromInt(10),
		Bearer:               enums.FeeBearerSubaccount,
	})
	require.NoError(t, err)
	assert.Equal(t, "SPL_90", code)
}

func TestPaystackBridgeSplitDedicatedAccount(t *testing.T) {
	var body paystack.SplitDedicatedAccountRequest
	proc := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dedicated_account/split", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, true, "Subaccount assigned", map[string]any{
			"id": 22, "account_number": "9930000002", "account_name": "GRUNDY/ACME",
			"bank":         map[string]any{"name": "Wema Bank", "slug": "wema-bank"},
			"split_config": map[string]any{"split_code": "SPL_85"},
		})
	})

	account, err := proc.SplitDedicatedAccount(context.Background(), DedicatedAccountRequest{
		Email: "ops@acme.test", Subaccount: "ACCT_123", SplitCode: "SPL_85", PreferredBank: "wema-bank",
	})
	require.NoError(t, err)
	assert.Equal(t, "ops@acme.test", body.Customer)
	assert.Equal(t, "SPL_85", body.SplitCode)
	assert.Equal(t, "9930000002", account.AccountNumber)
	assert.Equal(t, "SPL_85", account.SplitCode)
}
