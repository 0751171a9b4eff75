package builder

import (
	"fmt"
	"strings"

	"paybridge/internal/common/money"
	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

// OrderItemBuilder converts ordinary cart lines into gateway line items.
type OrderItemBuilder struct {
	taxes  TaxResolver
	prices PriceResolver
}

// NewOrderItemBuilder creates an item builder.
func NewOrderItemBuilder(taxes TaxResolver, prices PriceResolver) *OrderItemBuilder {
	return &OrderItemBuilder{taxes: taxes, prices: prices}
}

// Item converts a single line item, ignoring its children.
func (b *OrderItemBuilder) Item(item *domain.LineItem, currency money.Currency, hasNetPrices bool) (gateway.ShoppingCartItem, error) {
	if item.Price == nil {
		return gateway.ShoppingCartItem{}, fmt.Errorf("%w: line item %s has no price", ErrInvalidRequestData, item.ID)
	}

	rate := b.taxes.TaxRate(item.Price)
	unit := b.prices.UnitPrice(item.Price, hasNetPrices)

	return gateway.ShoppingCartItem{
		Name:             itemName(item),
		Description:      item.Description,
		MerchantItemID:   merchantItemID(item),
		Quantity:         item.Quantity,
		UnitPrice:        money.FromDecimal(unit, currency),
		TaxRate:          rate,
		TaxTableSelector: rate.Floor().String(),
	}, nil
}

// Items converts every top-level line that is not part of a composite product.
func (b *OrderItemBuilder) Items(order *domain.Order, currency money.Currency) ([]gateway.ShoppingCartItem, error) {
	var items []gateway.ShoppingCartItem
	for _, li := range order.LineItems {
		if isComposite(li) {
			continue
		}
		item, err := b.Item(li, currency, order.HasNetPrices())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func isComposite(item *domain.LineItem) bool {
	return item.Type == domain.LineItemCompositeParent || item.Type == domain.LineItemCompositeOption
}

func merchantItemID(item *domain.LineItem) string {
	if item.Payload.ProductNumber != "" {
		return item.Payload.ProductNumber
	}
	if item.Type == domain.LineItemPromotion && item.Payload.DiscountID != "" {
		return item.Payload.DiscountID
	}
	return item.Identifier
}

func itemName(item *domain.LineItem) string {
	var sb strings.Builder
	sb.WriteString(item.Label)
	for _, opt := range item.Payload.Options {
		fmt.Fprintf(&sb, " (%s:%s)", opt.Group, opt.Option)
	}
	return sb.String()
}
