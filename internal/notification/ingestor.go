// Package notification ingests gateway webhook notifications.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

// OrderRepository loads orders with their transactions.
type OrderRepository interface {
	ByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
}

// Gateway returns the gateway's authoritative view of a transaction.
type Gateway interface {
	Get(ctx context.Context, orderNumber string) (*gateway.Transaction, error)
}

// Reconciler applies gateway statuses to order transactions.
type Reconciler interface {
	TransitionPaymentState(ctx context.Context, status gateway.Status, transactionID string) error
	TransitionPaymentMethodIfNeeded(ctx context.Context, tx *domain.OrderTransaction, gatewayCode string) error
}

// Ingestor resolves a notification to an order and reconciles its latest transaction.
type Ingestor struct {
	orders     OrderRepository
	gateway    Gateway
	reconciler Reconciler
	logger     *slog.Logger
}

// NewIngestor creates an ingestor.
func NewIngestor(orders OrderRepository, gw Gateway, reconciler Reconciler, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		orders:     orders,
		gateway:    gw,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Notify processes a notification for orderNumber. Unknown orders are logged and
// ignored. Every other failure is logged and returned.
func (i *Ingestor) Notify(ctx context.Context, orderNumber string) error {
	logger := i.logger.With("order_number", orderNumber)

	order, err := i.orders.ByNumber(ctx, orderNumber)
	if domain.NotFound(err) {
		logger.Warn("notification for unknown order")
		return nil
	}
	if err != nil {
		logger.Error("failed to load order", "error", err)
		return fmt.Errorf("loading order %s: %w", orderNumber, err)
	}

	tx := order.LastTransaction()
	if tx == nil {
		logger.Warn("notification for order without transactions", "order_id", order.ID)
		return nil
	}
	logger = logger.With("transaction_id", tx.ID)

	snapshot, err := i.gateway.Get(ctx, orderNumber)
	if err != nil {
		logger.Error("failed to fetch gateway transaction", "error", err)
		return fmt.Errorf("fetching gateway transaction %s: %w", orderNumber, err)
	}

	if err := i.reconciler.TransitionPaymentState(ctx, snapshot.Status, tx.ID); err != nil {
		logger.Error("failed to transition payment state",
			"status", snapshot.Status,
			"error", err,
		)
		return err
	}

	// Snapshots of unpaid orders carry no payment type.
	if code := snapshot.PaymentDetails.Type; code != "" {
		if err := i.reconciler.TransitionPaymentMethodIfNeeded(ctx, tx, code); err != nil {
			logger.Error("failed to correct payment method",
				"gateway_code", code,
				"error", err,
			)
			return err
		}
	}

	logger.Info("notification processed",
		"status", snapshot.Status,
		"amount_refunded", snapshot.AmountRefunded,
	)
	return nil
}
