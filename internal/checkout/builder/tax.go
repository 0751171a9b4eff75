// Package builder turns an order snapshot into a gateway transaction request.
package builder

import (
	"errors"

	"github.com/shopspring/decimal"

	"paybridge/internal/order/domain"
)

// ErrInvalidRequestData marks data-integrity faults in the order (missing prices, mixed currencies).
var ErrInvalidRequestData = errors.New("invalid request data")

var hundred = decimal.NewFromInt(100)

// TaxResolver returns the single applicable tax rate, in percent, of a price.
type TaxResolver interface {
	TaxRate(price *domain.Price) decimal.Decimal
}

// PriceResolver returns the tax-exclusive unit price of a price.
type PriceResolver interface {
	UnitPrice(price *domain.Price, hasNetPrices bool) decimal.Decimal
}

// HighestTaxRate resolves to the largest rate among a price's tax components, or 0 without any.
type HighestTaxRate struct{}

// TaxRate implements TaxResolver.
func (HighestTaxRate) TaxRate(price *domain.Price) decimal.Decimal {
	rate := decimal.Zero
	if price == nil {
		return rate
	}
	for _, tax := range price.CalculatedTaxes {
		if tax.TaxRate.GreaterThan(rate) {
			rate = tax.TaxRate
		}
	}
	return rate
}

// NetPriceResolver strips tax from gross unit prices.
type NetPriceResolver struct {
	Taxes TaxResolver
}

// UnitPrice implements PriceResolver. Net prices pass through unchanged;
// gross prices are divided by (1 + rate/100) without intermediate rounding.
func (r NetPriceResolver) UnitPrice(price *domain.Price, hasNetPrices bool) decimal.Decimal {
	if price == nil {
		return decimal.Zero
	}
	if hasNetPrices {
		return price.UnitPrice
	}

	rate := r.Taxes.TaxRate(price)
	if rate.IsZero() {
		return price.UnitPrice
	}
	return price.UnitPrice.Div(decimal.NewFromInt(1).Add(rate.Div(hundred)))
}
