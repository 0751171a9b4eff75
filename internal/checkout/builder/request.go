package builder

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"paybridge/internal/common/money"
	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

// Cart is the flattened gateway view of an order's cart.
type Cart struct {
	LineItems    []gateway.ShoppingCartItem
	ShippingItem gateway.ShoppingCartItem
}

// All returns the line items followed by the shipping item.
func (c Cart) All() []gateway.ShoppingCartItem {
	all := make([]gateway.ShoppingCartItem, 0, len(c.LineItems)+1)
	all = append(all, c.LineItems...)
	return append(all, c.ShippingItem)
}

// ShoppingCartBuilder aggregates the item, composite and shipping builders.
type ShoppingCartBuilder struct {
	items      *OrderItemBuilder
	customized *CustomizedProductsBuilder
	shipping   *ShippingItemBuilder
}

// NewShoppingCartBuilder wires the three sub-builders around the given resolvers.
func NewShoppingCartBuilder(taxes TaxResolver, prices PriceResolver) *ShoppingCartBuilder {
	items := NewOrderItemBuilder(taxes, prices)
	return &ShoppingCartBuilder{
		items:      items,
		customized: NewCustomizedProductsBuilder(items),
		shipping:   NewShippingItemBuilder(taxes, prices),
	}
}

// NewDefaultShoppingCartBuilder uses the highest-rate tax resolver and net price resolver.
func NewDefaultShoppingCartBuilder() *ShoppingCartBuilder {
	taxes := HighestTaxRate{}
	return NewShoppingCartBuilder(taxes, NetPriceResolver{Taxes: taxes})
}

// Build flattens the order's cart in targetCurrency. The order must be priced in that currency.
func (b *ShoppingCartBuilder) Build(order *domain.Order, targetCurrency money.Currency) (Cart, error) {
	if order.Currency != targetCurrency {
		return Cart{}, fmt.Errorf("%w: order %s is priced in %s, not %s", ErrInvalidRequestData, order.OrderNumber, order.Currency, targetCurrency)
	}

	items, err := b.items.Items(order, targetCurrency)
	if err != nil {
		return Cart{}, err
	}
	composite, err := b.customized.Items(order, targetCurrency)
	if err != nil {
		return Cart{}, err
	}

	return Cart{
		LineItems:    append(items, composite...),
		ShippingItem: b.shipping.Build(order, targetCurrency),
	}, nil
}

// Routes are the gateway callback and redirect URLs of one payment attempt.
type Routes struct {
	NotificationURL string
	RedirectURL     string
	CancelURL       string
}

// NewRoutes derives the routes for an order from the shop's public base URL.
func NewRoutes(shopBaseURL, orderNumber, transactionID string) Routes {
	base := strings.TrimRight(shopBaseURL, "/")
	q := url.Values{}
	q.Set("transactionid", orderNumber)
	notify := base + "/notification?" + q.Encode()

	q.Set("order_transaction_id", transactionID)
	finalize := base + "/api/v1/checkout/finalize?" + q.Encode()

	q.Set("cancel", "1")
	cancel := base + "/api/v1/checkout/finalize?" + q.Encode()

	return Routes{NotificationURL: notify, RedirectURL: finalize, CancelURL: cancel}
}

// BrowserInfo is what the checkout request knows about the customer's browser.
type BrowserInfo struct {
	IPAddress string
	UserAgent string
}

// Options are the static, per-deployment request settings.
type Options struct {
	ShopName      string
	PluginVersion string
	SecondsActive int
}

// OrderRequestBuilder assembles the complete transaction-creation request.
type OrderRequestBuilder struct {
	cart    *ShoppingCartBuilder
	options Options
}

// NewOrderRequestBuilder creates a request builder.
func NewOrderRequestBuilder(cart *ShoppingCartBuilder, options Options) *OrderRequestBuilder {
	return &OrderRequestBuilder{cart: cart, options: options}
}

// Build creates the request for paying order through gw.
func (b *OrderRequestBuilder) Build(order *domain.Order, gw gateway.Gateway, routes Routes, browser BrowserInfo) (*gateway.OrderRequest, error) {
	cart, err := b.cart.Build(order, order.Currency)
	if err != nil {
		return nil, err
	}
	if gw.RequiresShoppingCart && len(cart.LineItems) == 0 {
		return nil, fmt.Errorf("%w: gateway %s requires line items", ErrInvalidRequestData, gw.Code)
	}

	orderType := gateway.TypeRedirect
	if gw.Direct {
		orderType = gateway.TypeDirect
	}

	customer := customerBlock(order.Customer, order.Customer.BillingAddress)
	customer.IPAddress = browser.IPAddress
	customer.UserAgent = browser.UserAgent
	customer.Reference = order.Customer.ID

	shipping := order.Customer.BillingAddress
	if order.Customer.ShippingAddress != nil {
		shipping = *order.Customer.ShippingAddress
	}
	delivery := customerBlock(order.Customer, shipping)

	items := cart.All()
	return &gateway.OrderRequest{
		Type:          orderType,
		OrderID:       order.OrderNumber,
		Gateway:       gw.Code,
		Currency:      string(order.Currency),
		Amount:        money.FromDecimal(order.AmountTotal, order.Currency).AmountMinor,
		Description:   "Payment for order #" + order.OrderNumber,
		SecondsActive: b.options.SecondsActive,
		PaymentOptions: gateway.PaymentOptions{
			NotificationURL:    routes.NotificationURL,
			NotificationMethod: "GET",
			RedirectURL:        routes.RedirectURL,
			CancelURL:          routes.CancelURL,
			CloseWindow:        true,
		},
		Customer:        &customer,
		Delivery:        &delivery,
		ShoppingCart:    &gateway.ShoppingCart{Items: items},
		CheckoutOptions: &gateway.CheckoutOptions{TaxTables: taxTables(items)},
		Plugin: &gateway.PluginInfo{
			Shop:          b.options.ShopName,
			PluginVersion: b.options.PluginVersion,
		},
	}, nil
}

// taxTables emits one alternate table per selector in use; the highest selector is also the default.
func taxTables(items []gateway.ShoppingCartItem) gateway.TaxTables {
	rates := make(map[string]decimal.Decimal)
	for _, item := range items {
		if r, ok := rates[item.TaxTableSelector]; !ok || item.TaxRate.GreaterThan(r) {
			rates[item.TaxTableSelector] = item.TaxRate
		}
	}

	selectors := make([]string, 0, len(rates))
	for s := range rates {
		selectors = append(selectors, s)
	}
	sort.Slice(selectors, func(i, j int) bool {
		a, _ := strconv.Atoi(selectors[i])
		b, _ := strconv.Atoi(selectors[j])
		return a < b
	})

	tables := gateway.TaxTables{Default: gateway.DefaultTaxTable{ShippingTaxed: true, Rate: "0"}}
	for _, s := range selectors {
		rate := fraction(rates[s])
		tables.Alternate = append(tables.Alternate, gateway.TaxTable{
			Name:       s,
			Standalone: true,
			Rules:      []gateway.TaxRule{{Rate: rate}},
		})
		tables.Default.Rate = rate
	}
	return tables
}

func fraction(percent decimal.Decimal) json.Number {
	return json.Number(percent.Div(hundred).String())
}

func customerBlock(c domain.Customer, addr domain.Address) gateway.Customer {
	street, houseNumber := splitStreet(addr.Street)
	return gateway.Customer{
		Locale:      strings.ReplaceAll(c.Locale, "-", "_"),
		FirstName:   addr.FirstName,
		LastName:    addr.LastName,
		Company:     addr.Company,
		Address1:    street,
		HouseNumber: houseNumber,
		ZipCode:     addr.ZipCode,
		City:        addr.City,
		Country:     addr.CountryISO,
		Phone:       addr.PhoneNumber,
		Email:       c.Email,
	}
}

// splitStreet separates a trailing house number ("Kraanspoor 39C", "Kraanspoor 39 C")
// from the street name.
func splitStreet(street string) (string, string) {
	fields := strings.Fields(street)
	n := len(fields)
	switch {
	case n >= 2 && startsWithDigit(fields[n-1]):
		return strings.Join(fields[:n-1], " "), fields[n-1]
	case n >= 3 && startsWithDigit(fields[n-2]) && isSuffix(fields[n-1]):
		return strings.Join(fields[:n-2], " "), fields[n-2] + " " + fields[n-1]
	}
	return strings.TrimSpace(street), ""
}

func startsWithDigit(s string) bool {
	return s != "" && unicode.IsDigit(rune(s[0]))
}

// isSuffix reports whether s is a short house-number addition such as "C" or "bis".
func isSuffix(s string) bool {
	if len(s) > 3 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
