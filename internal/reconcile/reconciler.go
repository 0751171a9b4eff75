// Package reconcile maps gateway transaction statuses onto the order transaction state machine.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paybridge/internal/common/events"
	"paybridge/internal/common/middleware"
	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

// StateMachine is the order transaction state machine.
type StateMachine interface {
	// AvailableTransitions lists the outgoing edges of a state.
	AvailableTransitions(ctx context.Context, stateID string) ([]domain.Transition, error)
	// StateID resolves a technical state name.
	StateID(ctx context.Context, name string) (string, error)
	// Apply takes action on a transaction. A missing edge yields *domain.IllegalTransitionError.
	Apply(ctx context.Context, transactionID string, action domain.Action) (*domain.OrderTransaction, error)
}

// TransactionRepository loads and updates order transactions.
type TransactionRepository interface {
	// ByID returns the transaction joined with its order (nil when the order is gone).
	ByID(ctx context.Context, id string) (*domain.OrderTransaction, error)
	UpdatePaymentMethod(ctx context.Context, transactionID, paymentMethodID string) error
}

// PaymentMethodRepository looks up payment methods.
type PaymentMethodRepository interface {
	ByHandler(ctx context.Context, handler string) (*domain.PaymentMethod, error)
}

var statusActions = map[gateway.Status]domain.Action{
	gateway.StatusCompleted:       domain.ActionPaid,
	gateway.StatusUncleared:       domain.ActionReopen,
	gateway.StatusInitialized:     domain.ActionReopen,
	gateway.StatusExpired:         domain.ActionCancel,
	gateway.StatusCancelled:       domain.ActionCancel,
	gateway.StatusDeclined:        domain.ActionCancel,
	gateway.StatusVoid:            domain.ActionCancel,
	gateway.StatusRefunded:        domain.ActionRefund,
	gateway.StatusPartialRefunded: domain.ActionRefundPartially,
}

// ActionForStatus returns the transition action for a gateway status.
func ActionForStatus(status gateway.Status) (domain.Action, bool) {
	action, ok := statusActions[status]
	return action, ok
}

// Reconciler applies gateway statuses to order transactions.
type Reconciler struct {
	states       StateMachine
	transactions TransactionRepository
	methods      PaymentMethodRepository
	registry     *gateway.Registry
	publisher    events.EventPublisher
	logger       *slog.Logger
}

// New creates a reconciler. publisher may be nil.
func New(states StateMachine, transactions TransactionRepository, methods PaymentMethodRepository, registry *gateway.Registry, publisher events.EventPublisher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		states:       states,
		transactions: transactions,
		methods:      methods,
		registry:     registry,
		publisher:    publisher,
		logger:       logger,
	}
}

// TransitionPaymentState moves the transaction to the state matching status.
// Unknown statuses and transactions already in the target state are no-ops.
func (r *Reconciler) TransitionPaymentState(ctx context.Context, status gateway.Status, transactionID string) error {
	action, ok := ActionForStatus(status)
	if !ok {
		r.logger.Info("ignoring unmapped gateway status",
			"status", status,
			"transaction_id", transactionID,
		)
		return nil
	}

	tx, err := r.transactions.ByID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("loading transaction %s: %w", transactionID, err)
	}

	target, err := r.targetState(ctx, tx.StateID, action)
	if err != nil {
		return err
	}
	if target == tx.StateID {
		return nil
	}

	updated, err := r.states.Apply(ctx, transactionID, action)
	if errors.Is(err, domain.ErrIllegalTransition) {
		updated, err = r.reopenAndRetry(ctx, status, transactionID, action)
	}
	if err != nil {
		return fmt.Errorf("applying %s to transaction %s: %w", action, transactionID, err)
	}

	r.logger.Info("payment state transitioned",
		"transaction_id", transactionID,
		"status", status,
		"action", action,
		"state", updated.StateName,
	)

	r.publish(ctx, events.EventTransactionTransitioned, transactionID, events.TransactionTransitionedData{
		TransactionID: transactionID,
		OrderNumber:   orderNumber(tx),
		GatewayStatus: string(status),
		Action:        string(action),
		FromStateID:   tx.StateID,
		ToStateID:     updated.StateID,
	})
	return nil
}

// targetState resolves where action leads from stateID. Actions the state does not offer
// resolve to their nominal destination so a transaction already there is recognised.
func (r *Reconciler) targetState(ctx context.Context, stateID string, action domain.Action) (string, error) {
	transitions, err := r.states.AvailableTransitions(ctx, stateID)
	if err != nil {
		return "", fmt.Errorf("loading transitions of state %s: %w", stateID, err)
	}
	for _, t := range transitions {
		if t.Action == action {
			return t.ToStateID, nil
		}
	}

	id, err := r.states.StateID(ctx, action.Destination())
	if err != nil {
		return "", fmt.Errorf("resolving destination of %s: %w", action, err)
	}
	return id, nil
}

// reopenAndRetry forces the transaction back to open and retries action once.
func (r *Reconciler) reopenAndRetry(ctx context.Context, status gateway.Status, transactionID string, action domain.Action) (*domain.OrderTransaction, error) {
	stateName, number := "null", "null"
	tx, err := r.transactions.ByID(ctx, transactionID)
	if err == nil {
		if tx.StateName != "" {
			stateName = tx.StateName
		}
		if tx.Order != nil {
			number = tx.Order.OrderNumber
		}
	}

	r.logger.Warn("illegal transaction state transition, forcing reopen",
		"transaction_id", transactionID,
		"state", stateName,
		"order_number", number,
		"status", status,
		"action", action,
	)

	if tx == nil || tx.StateName != domain.StateOpen {
		if _, err := r.states.Apply(ctx, transactionID, domain.ActionReopen); err != nil {
			return nil, fmt.Errorf("reopening transaction %s: %w", transactionID, err)
		}
	}
	return r.states.Apply(ctx, transactionID, action)
}

// TransitionPaymentMethodIfNeeded reattaches tx to the payment method of the gateway the
// customer actually paid with. Nothing happens for an empty code or when no such method is registered.
func (r *Reconciler) TransitionPaymentMethodIfNeeded(ctx context.Context, tx *domain.OrderTransaction, gatewayCode string) error {
	if gatewayCode == "" {
		return nil
	}
	handler := r.registry.HandlerFor(gatewayCode)
	if handler == "" || handler == tx.HandlerIdentifier() {
		return nil
	}

	method, err := r.methods.ByHandler(ctx, handler)
	if domain.NotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading payment method for %s: %w", handler, err)
	}

	if err := r.transactions.UpdatePaymentMethod(ctx, tx.ID, method.ID); err != nil {
		return fmt.Errorf("updating payment method of transaction %s: %w", tx.ID, err)
	}
	tx.PaymentMethod = method

	r.logger.Info("transaction payment method corrected",
		"transaction_id", tx.ID,
		"payment_method_id", method.ID,
		"gateway_code", gatewayCode,
	)

	r.publish(ctx, events.EventTransactionMethodChanged, tx.ID, events.TransactionMethodChangedData{
		TransactionID:     tx.ID,
		PaymentMethodID:   method.ID,
		HandlerIdentifier: handler,
		GatewayCode:       gatewayCode,
	})
	return nil
}

func (r *Reconciler) publish(ctx context.Context, eventType, transactionID string, data any) {
	if r.publisher == nil {
		return
	}

	event, err := events.NewEvent(eventType, "order_transaction", transactionID, data)
	if err != nil {
		r.logger.Error("failed to build event", "type", eventType, "error", err)
		return
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx))

	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Error("failed to publish event",
			"type", eventType,
			"transaction_id", transactionID,
			"error", err,
		)
	}
}

func orderNumber(tx *domain.OrderTransaction) string {
	if tx.Order == nil {
		return ""
	}
	return tx.Order.OrderNumber
}
