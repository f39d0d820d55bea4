package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grundyhq/grundy-backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(config.PaystackConfig{
		SecretKey:       "sk_test",
		BaseURL:         srv.URL,
		Timeout:         time.Second,
		BreakerFailures: 2,
		BreakerOpenFor:  time.Minute,
	})
	require.NoError(t, err)
	return c
}

func writeEnvelope(w http.ResponseWriter, status int, ok bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": ok, "message": message, "data": data})
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(config.PaystackConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestInitializeTransaction(t *testing.T) {
	var got InitializeTransactionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, http.StatusOK, true, "Authorization URL created", map[string]string{
			"authorization_url": "https://checkout.paystack.com/abc",
			"access_code":       "abc",
			"reference":         got.Reference,
		})
	})

	res, err := c.InitializeTransaction(context.Background(), InitializeTransactionRequest{
		Email:      "a@b.co",
		Amount:     100000,
		Reference:  "GRUNDY_1_x",
		Subaccount: "ACCT_1",
		Bearer:     "subaccount",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
	assert.Equal(t, "GRUNDY_1_x", res.Reference)
	assert.EqualValues(t, 100000, got.Amount)
	assert.Equal(t, "ACCT_1", got.Subaccount)
}

func TestStatusFalseIsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, false, "Invalid subaccount", nil)
	})
	_, err := c.InitializeTransaction(context.Background(), InitializeTransactionRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
}

func TestVerifyTransaction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/GRUNDY_1_x", r.URL.Path)
		writeEnvelope(w, http.StatusOK, true, "Verification successful", map[string]any{
			"id": 42, "status": "success", "reference": "GRUNDY_1_x", "amount": 100000, "channel": "card",
		})
	})
	tx, err := c.VerifyTransaction(context.Background(), "GRUNDY_1_x")
	require.NoError(t, err)
	assert.True(t, tx.Succeeded())
	assert.EqualValues(t, 42, tx.ID)
}

func TestFetchDedicatedAccountAfterDuplicate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dedicated_account/assign":
			writeEnvelope(w, http.StatusBadRequest, false, "Customer already has a dedicated account", nil)
		case "/customer/a@b.co":
			writeEnvelope(w, http.StatusOK, true, "Customer retrieved", map[string]any{
				"customer_code": "CUS_1",
				"dedicated_accounts": []map[string]any{
					{"id": 7, "account_number": "9930000000", "account_name": "GRUNDY/ACME", "active": true, "bank": map[string]string{"name": "Wema Bank"}},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	_, err := c.CreateDedicatedAccount(context.Background(), CreateDedicatedAccountRequest{Email: "a@b.co", PreferredBank: "wema-bank"})
	require.Error(t, err)
	assert.True(t, IsDuplicateAccount(err))

	acc, err := c.FetchDedicatedAccount(context.Background(), "a@b.co")
	require.NoError(t, err)
	assert.Equal(t, "9930000000", acc.AccountNumber)
	assert.Equal(t, "Wema Bank", acc.Bank.Name)
}

func TestCreateSplitDefaults(t *testing.T) {
	var got CreateSplitRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/split", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEnvelope(w, http.StatusOK, true, "Split created", map[string]any{
			"id": 3, "split_code": "SPL_abc", "active": true, "bearer_type": "subaccount",
			"subaccounts": []any{map[string]any{"subaccount": map[string]any{"subaccount_code": "ACCT_1"}, "share": 90}},
		})
	})

	split, err := c.CreateSplit(context.Background(), CreateSplitRequest{
		Name:             "grundy:ACCT_1",
		Subaccounts:      []SplitShare{{Subaccount: "ACCT_1", Share: 90}},
		BearerType:       "subaccount",
		BearerSubaccount: "ACCT_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "percentage", got.Type)
	assert.Equal(t, "NGN", got.Currency)
	assert.Equal(t, "SPL_abc", split.SplitCode)
	share, ok := split.ShareFor("ACCT_1")
	assert.True(t, ok)
	assert.EqualValues(t, 90, share)
	_, ok = split.ShareFor("ACCT_2")
	assert.False(t, ok)
}

func TestListSplitsFiltersByName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/split", r.URL.Path)
		assert.Equal(t, "grundy:ACCT_1", r.URL.Query().Get("name"))
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		writeEnvelope(w, http.StatusOK, true, "Split retrieved", []map[string]any{{"split_code": "SPL_1", "active": true}})
	})

	splits, err := c.ListSplits(context.Background(), "grundy:ACCT_1")
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.Equal(t, "SPL_1", splits[0].SplitCode)
}

func TestTerminalFlow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/paymentrequest":
			writeEnvelope(w, http.StatusOK, true, "Payment request created", map[string]any{
				"id": 99, "request_code": "PRQ_1", "offline_reference": "3423", "status": "pending",
			})
		case "/terminal/TRM_1/event":
			var body terminalEvent
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "invoice", body.Type)
			assert.EqualValues(t, 99, body.Data.ID)
			writeEnvelope(w, http.StatusOK, true, "Event sent to Terminal", map[string]string{"id": "evt_1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	pr, err := c.CreateTerminalPaymentRequest(context.Background(), PaymentRequest{Customer: "a@b.co", Amount: 5000})
	require.NoError(t, err)
	ev, err := c.PushToTerminal(context.Background(), "TRM_1", *pr)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusBadGateway, false, "upstream down", nil)
	})

	for i := 0; i < 2; i++ {
		_, err := c.VerifyTransaction(context.Background(), "ref")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	_, err := c.VerifyTransaction(context.Background(), "ref")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 2, calls.Load())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, false, "Transaction reference not found", nil)
	})
	for i := 0; i < 5; i++ {
		_, err := c.VerifyTransaction(context.Background(), "missing")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, c.BreakerState())
}

func TestContextTimeoutSurfaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.VerifyTransaction(ctx, "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
