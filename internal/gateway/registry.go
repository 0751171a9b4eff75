package gateway

import "fmt"

// Gateway describes one payment scheme offered through the gateway.
type Gateway struct {
	Code                 string
	Name                 string
	Handler              string
	Template             string // storefront and tax template
	Direct               bool   // created without a hosted payment page
	RequiresShoppingCart bool   // pay-later schemes reject requests without line items
}

// Registry is an immutable lookup of gateways by code and by payment handler.
type Registry struct {
	byCode    map[string]Gateway
	byHandler map[string]Gateway
}

// NewRegistry builds a registry. Codes and handlers must be unique.
func NewRegistry(gateways ...Gateway) (*Registry, error) {
	r := &Registry{
		byCode:    make(map[string]Gateway, len(gateways)),
		byHandler: make(map[string]Gateway, len(gateways)),
	}

	for _, g := range gateways {
		if g.Handler == "" {
			return nil, fmt.Errorf("gateway %q has no handler", g.Code)
		}
		if _, dup := r.byCode[g.Code]; dup {
			return nil, fmt.Errorf("duplicate gateway code %q", g.Code)
		}
		if _, dup := r.byHandler[g.Handler]; dup {
			return nil, fmt.Errorf("duplicate gateway handler %q", g.Handler)
		}
		r.byCode[g.Code] = g
		r.byHandler[g.Handler] = g
	}

	return r, nil
}

// ByCode returns the gateway registered under a gateway code.
func (r *Registry) ByCode(code string) (Gateway, bool) {
	g, ok := r.byCode[code]
	return g, ok
}

// ByHandler returns the gateway a payment handler identifier belongs to.
func (r *Registry) ByHandler(handler string) (Gateway, bool) {
	g, ok := r.byHandler[handler]
	return g, ok
}

// HandlerFor returns the payment handler for a gateway code, or "" when unknown.
func (r *Registry) HandlerFor(code string) string {
	return r.byCode[code].Handler
}

// GenericHandler is the grouped method that lets the customer pick a scheme on the hosted page.
const GenericHandler = "paybridge.handler.generic"

// DefaultGateways is the built-in gateway table.
func DefaultGateways() []Gateway {
	return []Gateway{
		{Code: "", Name: "MultiSafepay", Handler: GenericHandler, Template: "generic"},
		{Code: "IDEAL", Name: "iDEAL", Handler: "paybridge.handler.ideal", Template: "ideal"},
		{Code: "MISTERCASH", Name: "Bancontact", Handler: "paybridge.handler.bancontact", Template: "bancontact"},
		{Code: "CREDITCARD", Name: "Credit card", Handler: "paybridge.handler.creditcard", Template: "creditcard"},
		{Code: "VISA", Name: "Visa", Handler: "paybridge.handler.visa", Template: "creditcard"},
		{Code: "MASTERCARD", Name: "Mastercard", Handler: "paybridge.handler.mastercard", Template: "creditcard"},
		{Code: "AMEX", Name: "American Express", Handler: "paybridge.handler.amex", Template: "creditcard"},
		{Code: "MAESTRO", Name: "Maestro", Handler: "paybridge.handler.maestro", Template: "creditcard"},
		{Code: "PAYPAL", Name: "PayPal", Handler: "paybridge.handler.paypal", Template: "paypal"},
		{Code: "APPLEPAY", Name: "Apple Pay", Handler: "paybridge.handler.applepay", Template: "applepay"},
		{Code: "DIRECTBANK", Name: "Sofort", Handler: "paybridge.handler.sofort", Template: "sofort"},
		{Code: "GIROPAY", Name: "Giropay", Handler: "paybridge.handler.giropay", Template: "giropay"},
		{Code: "EPS", Name: "EPS", Handler: "paybridge.handler.eps", Template: "eps"},
		{Code: "DOTPAY", Name: "Dotpay", Handler: "paybridge.handler.dotpay", Template: "dotpay"},
		{Code: "BANKTRANS", Name: "Bank transfer", Handler: "paybridge.handler.banktransfer", Template: "banktransfer", Direct: true},
		{Code: "DIRDEB", Name: "SEPA Direct Debit", Handler: "paybridge.handler.directdebit", Template: "directdebit", Direct: true},
		{Code: "KLARNA", Name: "Klarna", Handler: "paybridge.handler.klarna", Template: "paylater", RequiresShoppingCart: true},
		{Code: "AFTERPAY", Name: "Riverty", Handler: "paybridge.handler.afterpay", Template: "paylater", RequiresShoppingCart: true},
		{Code: "IN3", Name: "in3", Handler: "paybridge.handler.in3", Template: "paylater", RequiresShoppingCart: true},
		{Code: "PAYAFTER", Name: "Pay After Delivery", Handler: "paybridge.handler.payafter", Template: "paylater", Direct: true, RequiresShoppingCart: true},
		{Code: "EINVOICE", Name: "E-Invoicing", Handler: "paybridge.handler.einvoice", Template: "paylater", Direct: true, RequiresShoppingCart: true},
	}
}

// DefaultRegistry builds the registry from DefaultGateways.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultGateways()...)
	if err != nil {
		panic(err)
	}
	return r
}
