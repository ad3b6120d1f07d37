package domain

import (
	"fmt"
	"strings"
	"time"
)

// Item is a sellable catalog entry. Code is the canonical structured
// identifier and is immutable once assigned; LegacyCode keeps the value an
// item carried before the code-format migration so old labels keep scanning.
type Item struct {
	ID              string    `json:"id"`
	Scope           string    `json:"scope"`
	Name            string    `json:"name"`
	Code            string    `json:"code"`
	LegacyCode      string    `json:"legacy_code,omitempty"`
	SellPrice       int64     `json:"sell_price"`
	PriceFloor      int64     `json:"price_floor"`
	PriceCeiling    *int64    `json:"price_ceiling,omitempty"`
	QuantityInStock int       `json:"quantity_in_stock"`
	QuantitySold    int       `json:"quantity_sold"`
	ReorderPoint    int       `json:"reorder_point"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ItemCreateRequest struct {
	Name         string `json:"name"`
	LegacyCode   string `json:"legacy_code,omitempty"`
	SellPrice    int64  `json:"sell_price"`
	PriceFloor   int64  `json:"price_floor"`
	PriceCeiling *int64 `json:"price_ceiling,omitempty"`
	InitialStock int    `json:"initial_stock"`
	ReorderPoint int    `json:"reorder_point"`
}

type ItemUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	SellPrice    *int64  `json:"sell_price,omitempty"`
	PriceFloor   *int64  `json:"price_floor,omitempty"`
	PriceCeiling *int64  `json:"price_ceiling,omitempty"`
	ClearCeiling bool    `json:"clear_ceiling,omitempty"`
	Stock        *int    `json:"stock,omitempty"`
	ReorderPoint *int    `json:"reorder_point,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

type PaymentMethod string

const (
	PayCash  PaymentMethod = "cash"
	PayPush  PaymentMethod = "mpesa_push"
	PayCode  PaymentMethod = "mpesa_code"
	PayOther PaymentMethod = "other"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
)

// Payment is a closed union: each variant carries exactly the fields its
// method requires, so invalid combinations cannot be represented.
type Payment interface {
	Method() PaymentMethod
}

type CashPayment struct{}

type PushPayment struct {
	Phone string
}

type CodePayment struct {
	Code string
}

type OtherPayment struct {
	Note string
}

func (CashPayment) Method() PaymentMethod  { return PayCash }
func (PushPayment) Method() PaymentMethod  { return PayPush }
func (CodePayment) Method() PaymentMethod  { return PayCode }
func (OtherPayment) Method() PaymentMethod { return PayOther }

// BuildPayment maps flat request fields onto the payment union.
func BuildPayment(method string, phone string, code string, note string) (Payment, error) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(method))) {
	case PayCash, "":
		return CashPayment{}, nil
	case PayPush:
		return PushPayment{Phone: phone}, nil
	case PayCode:
		return CodePayment{Code: code}, nil
	case PayOther:
		return OtherPayment{Note: note}, nil
	default:
		return nil, fmt.Errorf("unsupported payment method %q", method)
	}
}

// SaleDraft is the in-progress, unpersisted sale for one presented item.
type SaleDraft struct {
	ItemID    string
	Quantity  int
	UnitPrice int64
	Payment   Payment
}

func (d SaleDraft) Total() int64 {
	return int64(d.Quantity) * d.UnitPrice
}

const TransactionTypeSale = "sale"

// Transaction is an append-only ledger record. It is never updated or
// deleted; corrections require new compensating records.
type Transaction struct {
	ID              string        `json:"id"`
	Scope           string        `json:"scope"`
	ItemID          string        `json:"item_id"`
	ItemName        string        `json:"item_name"`
	Type            string        `json:"type"`
	Quantity        int           `json:"quantity"`
	UnitPrice       int64         `json:"unit_price"`
	Total           int64         `json:"total"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	TransactionCode string        `json:"transaction_code,omitempty"`
	Phone           string        `json:"phone,omitempty"`
	Note            string        `json:"note,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

type EventKind string

const (
	EventSaleCompleted EventKind = "sale_completed"
	EventLowStockAlert EventKind = "low_stock_alert"
)

// Event is the fire-and-forget payload handed to the notification sink.
type Event struct {
	Kind           EventKind `json:"kind"`
	Scope          string    `json:"scope"`
	ItemID         string    `json:"item_id,omitempty"`
	ItemName       string    `json:"item_name,omitempty"`
	Quantity       int       `json:"quantity,omitempty"`
	Total          int64     `json:"total,omitempty"`
	RemainingStock int       `json:"remaining_stock,omitempty"`
	At             time.Time `json:"at"`
}

type LoginRequest struct {
	PIN string `json:"pin"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Mode        string `json:"mode"`
	Scope       string `json:"scope"`
	ExpiresAt   string `json:"expires_at"`
}

type ScanRequest struct {
	Payload string `json:"payload"`
}

type ManualCodeRequest struct {
	Code string `json:"code"`
}

type PaymentRequest struct {
	Method string `json:"method"`
	Phone  string `json:"phone,omitempty"`
	Code   string `json:"code,omitempty"`
	Note   string `json:"note,omitempty"`
}

type DraftUpdateRequest struct {
	Quantity  *int            `json:"quantity,omitempty"`
	UnitPrice *int64          `json:"unit_price,omitempty"`
	Payment   *PaymentRequest `json:"payment,omitempty"`
}

type PresentedSale struct {
	Item  Item      `json:"item"`
	Draft DraftView `json:"draft"`
}

// DraftView is the JSON shape of a SaleDraft; the payment union is
// flattened back to method plus fields for the presentation layer.
type DraftView struct {
	ItemID        string `json:"item_id"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
	Total         int64  `json:"total"`
	PaymentMethod string `json:"payment_method"`
	Phone         string `json:"phone,omitempty"`
	Code          string `json:"code,omitempty"`
	Note          string `json:"note,omitempty"`
}

func ViewOfDraft(d SaleDraft) DraftView {
	view := DraftView{
		ItemID:        d.ItemID,
		Quantity:      d.Quantity,
		UnitPrice:     d.UnitPrice,
		Total:         d.Total(),
		PaymentMethod: string(PayCash),
	}
	switch p := d.Payment.(type) {
	case PushPayment:
		view.PaymentMethod = string(PayPush)
		view.Phone = p.Phone
	case CodePayment:
		view.PaymentMethod = string(PayCode)
		view.Code = p.Code
	case OtherPayment:
		view.PaymentMethod = string(PayOther)
		view.Note = p.Note
	}
	return view
}
