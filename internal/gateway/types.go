// Package gateway provides the payment gateway REST client and the static gateway registry.
package gateway

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"paybridge/internal/common/money"
)

// Status is the gateway's textual transaction status.
type Status string

const (
	StatusCompleted       Status = "completed"
	StatusUncleared       Status = "uncleared"
	StatusInitialized     Status = "initialized"
	StatusExpired         Status = "expired"
	StatusCancelled       Status = "cancelled"
	StatusDeclined        Status = "declined"
	StatusVoid            Status = "void"
	StatusRefunded        Status = "refunded"
	StatusPartialRefunded Status = "partial_refunded"
	StatusShipped         Status = "shipped"
	StatusChargedBack     Status = "chargedback"
)

// Order types.
const (
	TypeRedirect = "redirect"
	TypeDirect   = "direct"
)

// ShoppingCartItem is one gateway line item. Amounts are tax-exclusive minor units.
type ShoppingCartItem struct {
	Name             string
	Description      string
	MerchantItemID   string
	Quantity         int64
	UnitPrice        money.Money
	TaxRate          decimal.Decimal
	TaxTableSelector string
}

// MarshalJSON writes the unit price in major units, which is what the gateway expects.
func (i ShoppingCartItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name             string      `json:"name"`
		Description      string      `json:"description"`
		UnitPrice        json.Number `json:"unit_price"`
		Quantity         int64       `json:"quantity"`
		MerchantItemID   string      `json:"merchant_item_id"`
		TaxTableSelector string      `json:"tax_table_selector"`
	}{
		Name:             i.Name,
		Description:      i.Description,
		UnitPrice:        json.Number(i.UnitPrice.Decimal().String()),
		Quantity:         i.Quantity,
		MerchantItemID:   i.MerchantItemID,
		TaxTableSelector: i.TaxTableSelector,
	})
}

// ShoppingCart wraps the line items of an order request.
type ShoppingCart struct {
	Items []ShoppingCartItem `json:"items"`
}

// TaxRule is a single rate of a tax table, as a fraction (0.21 for 21%).
type TaxRule struct {
	Rate json.Number `json:"rate"`
}

// TaxTable is a named alternate tax table referenced by tax_table_selector.
type TaxTable struct {
	Name       string    `json:"name"`
	Standalone bool      `json:"standalone"`
	Rules      []TaxRule `json:"rules"`
}

// DefaultTaxTable applies when an item carries no selector.
type DefaultTaxTable struct {
	ShippingTaxed bool        `json:"shipping_taxed"`
	Rate          json.Number `json:"rate"`
}

// TaxTables holds the default and alternate tables.
type TaxTables struct {
	Default   DefaultTaxTable `json:"default"`
	Alternate []TaxTable      `json:"alternate"`
}

// CheckoutOptions carries the tax tables of an order request.
type CheckoutOptions struct {
	TaxTables TaxTables `json:"tax_tables"`
}

// PaymentOptions carries the callback and redirect routing.
type PaymentOptions struct {
	NotificationURL    string `json:"notification_url"`
	NotificationMethod string `json:"notification_method"`
	RedirectURL        string `json:"redirect_url"`
	CancelURL          string `json:"cancel_url"`
	CloseWindow        bool   `json:"close_window"`
}

// Customer is the customer or delivery block of an order request.
type Customer struct {
	Locale      string `json:"locale,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	Reference   string `json:"reference,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company_name,omitempty"`
	Address1    string `json:"address1"`
	HouseNumber string `json:"house_number"`
	ZipCode     string `json:"zip_code"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

// PluginInfo identifies the integration to the gateway.
type PluginInfo struct {
	Shop          string `json:"shop"`
	ShopVersion   string `json:"shop_version,omitempty"`
	PluginVersion string `json:"plugin_version"`
	Partner       string `json:"partner,omitempty"`
}

// OrderRequest is the transaction-creation request.
type OrderRequest struct {
	Type            string           `json:"type"`
	OrderID         string           `json:"order_id"`
	Gateway         string           `json:"gateway,omitempty"`
	Currency        string           `json:"currency"`
	Amount          int64            `json:"amount"`
	Description     string           `json:"description"`
	SecondsActive   int              `json:"seconds_active,omitempty"`
	PaymentOptions  PaymentOptions   `json:"payment_options"`
	Customer        *Customer        `json:"customer,omitempty"`
	Delivery        *Customer        `json:"delivery,omitempty"`
	ShoppingCart    *ShoppingCart    `json:"shopping_cart,omitempty"`
	CheckoutOptions *CheckoutOptions `json:"checkout_options,omitempty"`
	Plugin          *PluginInfo      `json:"plugin,omitempty"`
}

// CreatedOrder is the gateway response to a transaction-creation request.
type CreatedOrder struct {
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
}

// PaymentDetails describes how the customer actually paid.
type PaymentDetails struct {
	Type string `json:"type"`
}

// Transaction is the authoritative transaction snapshot held by the gateway.
type Transaction struct {
	OrderID        string         `json:"order_id"`
	Status         Status         `json:"status"`
	Currency       string         `json:"currency"`
	Amount         int64          `json:"amount"`
	AmountRefunded int64          `json:"amount_refunded"`
	PaymentDetails PaymentDetails `json:"payment_details"`
}

// RefundedAmount returns the refunded amount as money.
func (t *Transaction) RefundedAmount() money.Money {
	return money.New(t.AmountRefunded, money.Currency(t.Currency))
}

// UpdateRequest pushes shipment or cancellation metadata for an order.
type UpdateRequest struct {
	Status         Status `json:"status,omitempty"`
	TrackTraceCode string `json:"tracktrace_code,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
	ShipDate       string `json:"ship_date,omitempty"`
	InvoiceID      string `json:"invoice_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
}
