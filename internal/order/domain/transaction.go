package domain

import (
	"errors"
	"fmt"
	"time"

	"paybridge/internal/common/money"
)

// State technical names of the order transaction state machine.
const (
	StateOpen              = "open"
	StateInProgress        = "in_progress"
	StateAuthorized        = "authorized"
	StatePaid              = "paid"
	StatePaidPartially     = "paid_partially"
	StateCancelled         = "cancelled"
	StateFailed            = "failed"
	StateReminded          = "reminded"
	StateRefunded          = "refunded"
	StateRefundedPartially = "refunded_partially"
	StateChargeback        = "chargeback"
)

// Action is a transition action name of the order transaction state machine.
type Action string

const (
	ActionPaid            Action = "paid"
	ActionCancel          Action = "cancel"
	ActionRefund          Action = "refund"
	ActionRefundPartially Action = "refund_partially"
	ActionReopen          Action = "reopen"
	ActionFail            Action = "fail"
	ActionProcess         Action = "process"
)

// Destination is the state an action lands in when taken.
// Used only to recognise an action that has nothing left to do.
func (a Action) Destination() string {
	switch a {
	case ActionPaid:
		return StatePaid
	case ActionCancel:
		return StateCancelled
	case ActionRefund:
		return StateRefunded
	case ActionRefundPartially:
		return StateRefundedPartially
	case ActionReopen:
		return StateOpen
	case ActionFail:
		return StateFailed
	case ActionProcess:
		return StateInProgress
	default:
		return ""
	}
}

// ErrIllegalTransition is returned when the state machine has no edge for an action.
var ErrIllegalTransition = errors.New("illegal state transition")

// IllegalTransitionError describes a rejected transition.
type IllegalTransitionError struct {
	EntityID  string
	FromState string
	Action    Action
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %q from state %q for %s", e.Action, e.FromState, e.EntityID)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// Transition is an outgoing edge of a state.
type Transition struct {
	Action      Action `json:"action"`
	ToStateID   string `json:"to_state_id"`
	ToStateName string `json:"to_state_name"`
}

// PaymentMethod is a payment method registered with the shop.
type PaymentMethod struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	HandlerIdentifier string `json:"handler_identifier"`
	Template          string `json:"template"`
	Active            bool   `json:"active"`
}

// OrderTransaction is one payment attempt of an order.
type OrderTransaction struct {
	ID            string         `json:"id"`
	OrderID       string         `json:"order_id"`
	StateID       string         `json:"state_id"`
	StateName     string         `json:"state_name,omitempty"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty"`
	Amount        money.Money    `json:"amount"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	// Order is only loaded by lookups that join the order association.
	Order *Order `json:"-"`
}

// HandlerIdentifier returns the payment handler of the attached payment method.
func (t *OrderTransaction) HandlerIdentifier() string {
	if t.PaymentMethod == nil {
		return ""
	}
	return t.PaymentMethod.HandlerIdentifier
}
