package builder

import (
	"fmt"
	"strconv"

	"paybridge/internal/common/money"
	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

// CustomizedProductsBuilder flattens composite "base product + options" subtrees
// into one merged gateway line item per subtree root.
type CustomizedProductsBuilder struct {
	items *OrderItemBuilder
}

// NewCustomizedProductsBuilder creates a composite product builder.
func NewCustomizedProductsBuilder(items *OrderItemBuilder) *CustomizedProductsBuilder {
	return &CustomizedProductsBuilder{items: items}
}

// Items returns one merged item for every top-level composite line of the order.
func (b *CustomizedProductsBuilder) Items(order *domain.Order, currency money.Currency) ([]gateway.ShoppingCartItem, error) {
	var items []gateway.ShoppingCartItem
	for _, li := range order.LineItems {
		if !isComposite(li) {
			continue
		}
		merged, err := b.Build(li, currency, order.HasNetPrices())
		if err != nil {
			return nil, err
		}
		items = append(items, *merged)
	}
	return items, nil
}

// Build merges a composite subtree. A subtree with neither a product nor an option child
// is rejected with ErrInvalidRequestData.
func (b *CustomizedProductsBuilder) Build(root *domain.LineItem, currency money.Currency, hasNetPrices bool) (*gateway.ShoppingCartItem, error) {
	if root.Type == domain.LineItemCompositeOption {
		merged, err := b.option(root, currency, hasNetPrices)
		if err != nil {
			return nil, err
		}
		return &merged, nil
	}

	var base *gateway.ShoppingCartItem
	for _, child := range root.Children {
		if child.Type != domain.LineItemProduct {
			continue
		}
		item, err := b.items.Item(child, currency, hasNetPrices)
		if err != nil {
			return nil, err
		}
		base = &item
		break
	}

	merged, err := b.calculateOptions(base, root.Children, currency, hasNetPrices)
	if err != nil {
		return nil, err
	}
	if merged == nil {
		return nil, fmt.Errorf("%w: composite line item %s has nothing to merge", ErrInvalidRequestData, root.ID)
	}
	return merged, nil
}

// calculateOptions folds every option child into base, recursing into nested options first.
func (b *CustomizedProductsBuilder) calculateOptions(base *gateway.ShoppingCartItem, children []*domain.LineItem, currency money.Currency, hasNetPrices bool) (*gateway.ShoppingCartItem, error) {
	for _, child := range children {
		if child.Type != domain.LineItemCompositeOption {
			continue
		}
		opt, err := b.option(child, currency, hasNetPrices)
		if err != nil {
			return nil, err
		}
		merged, err := Concat(base, opt)
		if err != nil {
			return nil, err
		}
		base = &merged
	}
	return base, nil
}

func (b *CustomizedProductsBuilder) option(item *domain.LineItem, currency money.Currency, hasNetPrices bool) (gateway.ShoppingCartItem, error) {
	opt, err := b.items.Item(item, currency, hasNetPrices)
	if err != nil {
		return gateway.ShoppingCartItem{}, err
	}
	if len(item.Children) == 0 {
		return opt, nil
	}

	merged, err := b.calculateOptions(&opt, item.Children, currency, hasNetPrices)
	if err != nil {
		return gateway.ShoppingCartItem{}, err
	}
	return *merged, nil
}

// Concat merges option into base. A nil base yields option unchanged.
// Amounts add exactly; the merged selector and rate are the larger of the two.
func Concat(base *gateway.ShoppingCartItem, option gateway.ShoppingCartItem) (gateway.ShoppingCartItem, error) {
	if base == nil {
		return option, nil
	}

	price, err := base.UnitPrice.Add(option.UnitPrice)
	if err != nil {
		return gateway.ShoppingCartItem{}, fmt.Errorf("%w: merging %q into %q: %v", ErrInvalidRequestData, option.Name, base.Name, err)
	}

	selector, err := maxSelector(base.TaxTableSelector, option.TaxTableSelector)
	if err != nil {
		return gateway.ShoppingCartItem{}, err
	}

	rate := base.TaxRate
	if option.TaxRate.GreaterThan(rate) {
		rate = option.TaxRate
	}

	return gateway.ShoppingCartItem{
		Name:             join(base.Name, option.Name),
		Description:      join(base.Description, option.Description),
		MerchantItemID:   join(base.MerchantItemID, option.MerchantItemID),
		Quantity:         base.Quantity,
		UnitPrice:        price,
		TaxRate:          rate,
		TaxTableSelector: selector,
	}, nil
}

func maxSelector(a, b string) (string, error) {
	x, err := strconv.Atoi(a)
	if err != nil {
		return "", fmt.Errorf("%w: tax table selector %q", ErrInvalidRequestData, a)
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return "", fmt.Errorf("%w: tax table selector %q", ErrInvalidRequestData, b)
	}
	if y > x {
		return b, nil
	}
	return a, nil
}

func join(a, b string) string {
	switch {
	case b == "":
		return a
	case a == "":
		return b
	default:
		return a + ": " + b
	}
}
