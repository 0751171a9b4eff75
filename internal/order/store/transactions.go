package store

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"paybridge/internal/common/database"
	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

// Transactions reads and updates order transactions.
type Transactions struct {
	db     *database.DB
	orders *Orders
}

// ByID returns a transaction joined with its order. Order is nil when the order
// can no longer be loaded.
func (t *Transactions) ByID(ctx context.Context, id string) (*domain.OrderTransaction, error) {
	tx, err := scanTransaction(t.db.QueryRow(ctx, `SELECT `+transactionColumns+transactionJoins+`WHERE t.id = $1`, id))
	if err != nil {
		return nil, err
	}

	order, err := t.orders.ByID(ctx, tx.OrderID)
	switch {
	case err == nil:
		tx.Order = order
	case !domain.NotFound(err):
		return nil, err
	}

	return tx, nil
}

// UpdatePaymentMethod points the transaction at another payment method.
func (t *Transactions) UpdatePaymentMethod(ctx context.Context, transactionID, paymentMethodID string) error {
	tag, err := t.db.Exec(ctx, `
		UPDATE order_transactions
		SET payment_method_id = $2, updated_at = NOW()
		WHERE id = $1
	`, transactionID, paymentMethodID)
	if err != nil {
		return fmt.Errorf("updating payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// PaymentMethods reads payment methods.
type PaymentMethods struct {
	db *database.DB
}

// ByHandler returns the active payment method registered for a handler identifier.
func (p *PaymentMethods) ByHandler(ctx context.Context, handler string) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := p.db.QueryRow(ctx, `
		SELECT id, name, handler_identifier, template, active
		FROM payment_methods
		WHERE handler_identifier = $1 AND active
	`, handler).Scan(&pm.ID, &pm.Name, &pm.HandlerIdentifier, &pm.Template, &pm.Active)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("loading payment method: %w", err)
	}
	return &pm, nil
}

// Register creates a payment method for every gateway that has none yet.
// It returns the number of methods created.
func (p *PaymentMethods) Register(ctx context.Context, gateways []gateway.Gateway) (int, error) {
	created := 0
	for _, g := range gateways {
		tag, err := p.db.Exec(ctx, `
			INSERT INTO payment_methods (id, name, handler_identifier, template, active)
			VALUES ($1, $2, $3, $4, TRUE)
			ON CONFLICT (handler_identifier) DO NOTHING
		`, ulid.Make().String(), g.Name, g.Handler, g.Template)
		if err != nil {
			return created, fmt.Errorf("registering payment method %s: %w", g.Handler, err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}
