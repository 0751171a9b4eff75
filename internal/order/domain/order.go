// Package domain contains the order, line item and transaction types shared by checkout and reconciliation.
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"paybridge/internal/common/database"
	"paybridge/internal/common/money"
)

// ErrOrderNotFound is returned when no order matches an id or order number.
var ErrOrderNotFound = errors.New("order not found")

// NotFound reports whether err means the order (or one of its rows) does not exist.
func NotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || database.IsNotFound(err)
}

// TaxStatus is the tax mode an order was priced in.
type TaxStatus string

const (
	TaxStatusGross   TaxStatus = "gross"
	TaxStatusNet     TaxStatus = "net"
	TaxStatusTaxFree TaxStatus = "tax-free"
)

// LineItemType is the tagged variant of a cart line.
type LineItemType string

const (
	LineItemProduct         LineItemType = "product"
	LineItemPromotion       LineItemType = "promotion"
	LineItemCompositeParent LineItemType = "compositeParent"
	LineItemCompositeOption LineItemType = "compositeOption"
)

// CalculatedTax is one tax component of a price.
type CalculatedTax struct {
	TaxRate decimal.Decimal `json:"tax_rate"`
	Tax     decimal.Decimal `json:"tax"`
	Price   decimal.Decimal `json:"price"`
}

// Price is a calculated price in major units of the order currency.
type Price struct {
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Quantity        int64           `json:"quantity"`
	CalculatedTaxes []CalculatedTax `json:"calculated_taxes"`
}

// ProductOption is a selected variant option rendered into the line item name.
type ProductOption struct {
	Group  string `json:"group"`
	Option string `json:"option"`
}

// Payload carries the optional, loosely-typed line item attributes the builders read.
type Payload struct {
	ProductNumber string          `json:"productNumber,omitempty"`
	DiscountID    string          `json:"discountId,omitempty"`
	Options       []ProductOption `json:"options,omitempty"`
}

// LineItem is one (possibly nested) cart line.
type LineItem struct {
	ID          string       `json:"id"`
	Type        LineItemType `json:"type"`
	Label       string       `json:"label"`
	Description string       `json:"description,omitempty"`
	Identifier  string       `json:"identifier"`
	Quantity    int64        `json:"quantity"`
	Position    int          `json:"position"`
	Price       *Price       `json:"price,omitempty"`
	Payload     Payload      `json:"payload"`
	Children    []*LineItem  `json:"children,omitempty"`
}

// Address is a customer billing or shipping address.
type Address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company,omitempty"`
	Street      string `json:"street"`
	ZipCode     string `json:"zip_code"`
	City        string `json:"city"`
	CountryISO  string `json:"country_iso"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Customer is the order customer snapshot.
type Customer struct {
	ID              string   `json:"id"`
	Email           string   `json:"email"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Locale          string   `json:"locale"`
	BillingAddress  Address  `json:"billing_address"`
	ShippingAddress *Address `json:"shipping_address,omitempty"`
}

// Order is the read-only checkout snapshot of an order.
type Order struct {
	ID             string              `json:"id"`
	OrderNumber    string              `json:"order_number"`
	SalesChannelID string              `json:"sales_channel_id"`
	Currency       money.Currency      `json:"currency"`
	TaxStatus      TaxStatus           `json:"tax_status"`
	AmountTotal    decimal.Decimal     `json:"amount_total"`
	LineItems      []*LineItem         `json:"line_items"`
	ShippingCosts  *Price              `json:"shipping_costs,omitempty"`
	Customer       Customer            `json:"customer"`
	Transactions   []*OrderTransaction `json:"transactions,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// HasNetPrices reports whether unit prices on the order are already tax-exclusive.
func (o *Order) HasNetPrices() bool {
	return o.TaxStatus == TaxStatusNet || o.TaxStatus == TaxStatusTaxFree
}

// LastTransaction returns the most recently created transaction, or nil.
func (o *Order) LastTransaction() *OrderTransaction {
	if len(o.Transactions) == 0 {
		return nil
	}
	last := o.Transactions[0]
	for _, tx := range o.Transactions[1:] {
		if tx.CreatedAt.After(last.CreatedAt) {
			last = tx
		}
	}
	return last
}
