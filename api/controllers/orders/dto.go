package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/grundyhq/grundy-backend/internal/channels"
	"github.com/grundyhq/grundy-backend/pkg/db/models"
	dbtypes "github.com/grundyhq/grundy-backend/pkg/db/types"
	"github.com/grundyhq/grundy-backend/pkg/enums"
)

type createOrderRequest struct {
	Customer        customerRequest `json:"customer"`
	MerchantID      string          `json:"merchant_id" validate:"required,uuid"`
	Items           []itemRequest   `json:"items" validate:"required,min=1,max=50,dive"`
	PaymentMethod   string          `json:"payment_method" validate:"required,oneof=online bank_transfer_delivery terminal_delivery"`
	DeliveryAddress addressRequest  `json:"delivery_address"`
	TerminalID      string          `json:"terminal_id" validate:"omitempty,max=64"`
}

type customerRequest struct {
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
	Name  string `json:"name" validate:"omitempty,max=120"`
}

type itemRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Name      string          `json:"name" validate:"required,max=120"`
	Price     decimal.Decimal `json:"price" validate:"positive_amount"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
}

type addressRequest struct {
	Line1      string   `json:"line1" validate:"required,max=200"`
	Line2      string   `json:"line2" validate:"omitempty,max=200"`
	City       string   `json:"city" validate:"required,max=100"`
	State      string   `json:"state" validate:"omitempty,max=100"`
	PostalCode string   `json:"postal_code" validate:"omitempty,max=20"`
	Country    string   `json:"country" validate:"omitempty,max=64"`
	Lat        *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng        *float64 `json:"lng" validate:"omitempty,longitude"`
}

func (a addressRequest) toAddress() dbtypes.Address {
	return dbtypes.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Lat:        a.Lat,
		Lng:        a.Lng,
	}
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type retryChannelRequest struct {
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=online bank_transfer_delivery terminal_delivery"`
	TerminalID    string `json:"terminal_id" validate:"omitempty,max=64"`
}

type deliveryRequest struct {
	Status  string `json:"status" validate:"required,oneof=pending assigned picked_up in_transit delivered failed"`
	RiderID string `json:"rider_id" validate:"omitempty,max=64"`
	Notes   string `json:"notes" validate:"omitempty,max=500"`
}

// OrderView is the public shape of an order.
type OrderView struct {
	OrderID        string       `json:"order_id"`
	Reference      string       `json:"reference"`
	Status         string       `json:"status"`
	PaymentStatus  string       `json:"payment_status"`
	PaymentMethod  string       `json:"payment_method"`
	TotalAmount    string       `json:"total_amount"`
	PlatformFee    string       `json:"platform_fee"`
	ProcessorFee   string       `json:"processor_fee"`
	MerchantAmount string       `json:"merchant_amount"`
	DeliveryStatus string       `json:"delivery_status"`
	PayoutStatus   string       `json:"payout_status"`
	PaidAt         *time.Time   `json:"paid_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	Items          []ItemView   `json:"items,omitempty"`
	ChannelResult  *ChannelView `json:"channel_result,omitempty"`
}

type ItemView struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
}

// ChannelView tells the customer how to pay. Only the fields of the order's
// payment method are set.
type ChannelView struct {
	Method           string       `json:"method"`
	PaymentStatus    string       `json:"payment_status"`
	AuthorizationURL string       `json:"authorization_url,omitempty"`
	AccessCode       string       `json:"access_code,omitempty"`
	Reference        string       `json:"reference,omitempty"`
	Account          *AccountView `json:"account,omitempty"`
	Instructions     string       `json:"instructions,omitempty"`
	TerminalID       string       `json:"terminal_id,omitempty"`
	SessionID        string       `json:"session_id,omitempty"`
	OfflineReference string       `json:"offline_reference,omitempty"`
}

type AccountView struct {
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
}

// NewOrderView maps an order. The channel section is rebuilt from the stored
// payment fields when no fresh initiation result is supplied.
func NewOrderView(order *models.Order, result *channels.Result) OrderView {
	view := OrderView{
		OrderID:        order.ID.String(),
		Reference:      order.Reference,
		Status:         string(order.Status),
		PaymentStatus:  string(order.Payment.Status),
		PaymentMethod:  string(order.Payment.Method),
		TotalAmount:    order.Payment.Amount.StringFixed(2),
		PlatformFee:    order.Payment.PlatformFee.StringFixed(2),
		ProcessorFee:   order.Payment.ProcessorFee.StringFixed(2),
		MerchantAmount: order.Payment.MerchantAmount.StringFixed(2),
		DeliveryStatus: string(order.Delivery.Status),
		PayoutStatus:   string(order.Payment.PayoutStatus),
		PaidAt:         order.Payment.PaidAt,
		CreatedAt:      order.CreatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, ItemView{
			ProductID: item.ProductID.String(),
			Name:      item.Name,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal.StringFixed(2),
		})
	}
	if result != nil {
		view.ChannelResult = channelFromResult(*result)
	} else if order.Payment.ChannelAttachedAt != nil {
		view.ChannelResult = channelFromOrder(order)
	}
	return view
}

func channelFromResult(result channels.Result) *ChannelView {
	view := &ChannelView{Method: string(result.Method), PaymentStatus: string(result.PaymentStatus)}
	switch {
	case result.Hosted != nil:
		view.AuthorizationURL = result.Hosted.AuthorizationURL
		view.AccessCode = result.Hosted.AccessCode
		view.Reference = result.Hosted.ProcessorReference
	case result.Dedicated != nil:
		view.Account = &AccountView{
			AccountNumber: result.Dedicated.Account.AccountNumber,
			BankName:      result.Dedicated.Account.BankName,
			AccountName:   result.Dedicated.Account.AccountName,
		}
		view.Instructions = result.Dedicated.Instructions
	case result.Terminal != nil:
		view.TerminalID = result.Terminal.TerminalID
		view.SessionID = result.Terminal.SessionID
		view.OfflineReference = result.Terminal.OfflineReference
	}
	return view
}

func channelFromOrder(order *models.Order) *ChannelView {
	p := order.Payment
	view := &ChannelView{Method: string(p.Method), PaymentStatus: string(p.Status)}
	switch p.Method {
	case enums.PaymentMethodOnline:
		view.AuthorizationURL = deref(p.AuthorizationURL)
		view.Reference = deref(p.ProcessorReference)
	case enums.PaymentMethodBankTransfer:
		view.Account = &AccountView{
			AccountNumber: deref(p.DedicatedAccountNumber),
			BankName:      deref(p.DedicatedBankName),
			AccountName:   deref(p.DedicatedAccountName),
		}
	case enums.PaymentMethodTerminal:
		view.SessionID = deref(p.TerminalSessionID)
	}
	return view
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
