package builder

import (
	"paybridge/internal/common/money"
	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

// ShippingMerchantItemID identifies the shipping line at the gateway.
const ShippingMerchantItemID = "msp-shipping"

// ShippingItemBuilder converts the order's shipping cost into one gateway line item.
type ShippingItemBuilder struct {
	taxes  TaxResolver
	prices PriceResolver
}

// NewShippingItemBuilder creates a shipping item builder.
func NewShippingItemBuilder(taxes TaxResolver, prices PriceResolver) *ShippingItemBuilder {
	return &ShippingItemBuilder{taxes: taxes, prices: prices}
}

// Build always returns an item, zero-priced when the order carries no shipping cost.
func (b *ShippingItemBuilder) Build(order *domain.Order, currency money.Currency) gateway.ShoppingCartItem {
	rate := b.taxes.TaxRate(order.ShippingCosts)
	unit := b.prices.UnitPrice(order.ShippingCosts, order.HasNetPrices())

	return gateway.ShoppingCartItem{
		Name:             "Shipping",
		Description:      "Shipping",
		MerchantItemID:   ShippingMerchantItemID,
		Quantity:         1,
		UnitPrice:        money.FromDecimal(unit, currency),
		TaxRate:          rate,
		TaxTableSelector: rate.Floor().String(),
	}
}
