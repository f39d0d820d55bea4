package webhooks

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Event kinds routed by the ingestor.
const (
	KindChargeSuccess          = "charge.success"
	KindTransferSuccess        = "transfer.success"
	KindTransferFailed         = "transfer.failed"
	KindDedicatedAccount       = "dedicatedaccount.transaction"
	KindTerminalPaymentSuccess = "terminal.payment.success"
	KindTerminalPaymentFailed  = "terminal.payment.failed"

	dedicatedNubanChannel = "dedicated_nuban"
	orderReferenceKey     = "order_reference"
)

// Envelope is the outer shape of every processor event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// flexibleID accepts numeric and string ids.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// metadata tolerates the processor sending an empty string instead of an
// object.
type metadata map[string]any

func (m *metadata) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		*m = nil
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

func (m metadata) str(key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// eventIdentity is the subset of data used to build the dedup key.
type eventIdentity struct {
	ID        flexibleID `json:"id"`
	Reference string     `json:"reference"`
}

// eventID prefers data.id, falling back to reference and kind.
func eventID(env Envelope) string {
	var ident eventIdentity
	_ = json.Unmarshal(env.Data, &ident)
	if id := strings.TrimSpace(string(ident.ID)); id != "" {
		return env.Event + ":" + id
	}
	if ident.Reference != "" {
		return env.Event + ":" + ident.Reference
	}
	return ""
}

type chargeData struct {
	ID            flexibleID `json:"id"`
	Reference     string     `json:"reference"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	Channel       string     `json:"channel"`
	PaidAt        *time.Time `json:"paid_at"`
	Metadata      metadata   `json:"metadata"`
	Authorization struct {
		Channel                   string `json:"channel"`
		ReceiverBankAccountNumber string `json:"receiver_bank_account_number"`
	} `json:"authorization"`
}

func (c chargeData) dedicatedAccountNumber() string {
	if c.Channel != dedicatedNubanChannel && c.Authorization.Channel != dedicatedNubanChannel {
		return ""
	}
	return c.Authorization.ReceiverBankAccountNumber
}

type dedicatedTransactionData struct {
	ID            flexibleID `json:"id"`
	AccountNumber string     `json:"account_number"`
	Amount        int64      `json:"amount"`
	PaidAt        *time.Time `json:"paid_at"`
}

type terminalPaymentData struct {
	ID          flexibleID `json:"id"`
	Reference   string     `json:"reference"`
	RequestCode string     `json:"request_code"`
	SessionID   string     `json:"session_id"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	Reason      string     `json:"gateway_response"`
	PaidAt      *time.Time `json:"paid_at"`
	Metadata    metadata   `json:"metadata"`
}

// session returns the payment request code the terminal session was opened
// with.
func (d terminalPaymentData) session() string {
	if d.RequestCode != "" {
		return d.RequestCode
	}
	return d.SessionID
}

type transferData struct {
	Reference    string     `json:"reference"`
	TransferCode string     `json:"transfer_code"`
	Reason       string     `json:"reason"`
	Status       string     `json:"status"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
