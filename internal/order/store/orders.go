package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"paybridge/internal/common/database"
	"paybridge/internal/common/money"
	"paybridge/internal/order/domain"
)

const orderColumns = `
	id, order_number, sales_channel_id, currency, tax_status, amount_total::text,
	line_items, shipping_costs, customer, created_at
`

const transactionColumns = `
	t.id, t.order_id, t.state_id, s.technical_name, t.amount_minor, t.currency,
	t.created_at, t.updated_at, pm.id, pm.name, pm.handler_identifier, pm.template, pm.active
`

const transactionJoins = `
	FROM order_transactions t
	JOIN state_machine_states s ON s.id = t.state_id
	JOIN payment_methods pm ON pm.id = t.payment_method_id
`

// Orders reads order snapshots.
type Orders struct {
	db *database.DB
}

// ByID returns an order with its transactions.
func (o *Orders) ByID(ctx context.Context, id string) (*domain.Order, error) {
	return o.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// ByNumber returns an order with its transactions.
func (o *Orders) ByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return o.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
}

func (o *Orders) load(ctx context.Context, query, key string) (*domain.Order, error) {
	order, err := scanOrder(o.db.QueryRow(ctx, query, key))
	if err != nil {
		if database.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, key)
		}
		return nil, err
	}

	rows, err := o.db.Query(ctx, `SELECT `+transactionColumns+transactionJoins+`
		WHERE t.order_id = $1
		ORDER BY t.created_at`, order.ID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		order.Transactions = append(order.Transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}

	return order, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                             domain.Order
		currency, amount              string
		lineItems, shipping, customer []byte
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.SalesChannelID, &currency, &o.TaxStatus, &amount,
		&lineItems, &shipping, &customer, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}

	o.Currency = money.Currency(currency)
	if o.AmountTotal, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parsing amount of order %s: %w", o.OrderNumber, err)
	}
	if err := json.Unmarshal(lineItems, &o.LineItems); err != nil {
		return nil, fmt.Errorf("decoding line items of order %s: %w", o.OrderNumber, err)
	}
	if len(shipping) > 0 {
		if err := json.Unmarshal(shipping, &o.ShippingCosts); err != nil {
			return nil, fmt.Errorf("decoding shipping costs of order %s: %w", o.OrderNumber, err)
		}
	}
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return nil, fmt.Errorf("decoding customer of order %s: %w", o.OrderNumber, err)
	}

	return &o, nil
}

func scanTransaction(row pgx.Row) (*domain.OrderTransaction, error) {
	var (
		t        domain.OrderTransaction
		pm       domain.PaymentMethod
		amount   int64
		currency string
	)
	err := row.Scan(
		&t.ID, &t.OrderID, &t.StateID, &t.StateName, &amount, &currency,
		&t.CreatedAt, &t.UpdatedAt, &pm.ID, &pm.Name, &pm.HandlerIdentifier, &pm.Template, &pm.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order transaction: %w", err)
	}

	t.Amount = money.New(amount, money.Currency(currency))
	t.PaymentMethod = &pm
	return &t, nil
}
