package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	SalesChannel  string          `json:"sales_channel_id,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation sets the correlation ID
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// EventPublisher publishes events to a message broker
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Event types
const (
	EventTransactionTransitioned  = "payment.transaction.transitioned"
	EventTransactionMethodChanged = "payment.transaction.method_changed"
	EventCheckoutPaymentRequested = "checkout.payment.requested"
	EventCheckoutPaymentFailed    = "checkout.payment.failed"
)

// TransactionTransitionedData is the data for payment.transaction.transitioned events
type TransactionTransitionedData struct {
	TransactionID string `json:"transaction_id"`
	OrderNumber   string `json:"order_number,omitempty"`
	GatewayStatus string `json:"gateway_status"`
	Action        string `json:"action"`
	FromStateID   string `json:"from_state_id"`
	ToStateID     string `json:"to_state_id"`
}

// TransactionMethodChangedData is the data for payment.transaction.method_changed events
type TransactionMethodChangedData struct {
	TransactionID     string `json:"transaction_id"`
	PaymentMethodID   string `json:"payment_method_id"`
	HandlerIdentifier string `json:"handler_identifier"`
	GatewayCode       string `json:"gateway_code"`
}

// CheckoutPaymentData is the data for checkout.payment.* events
type CheckoutPaymentData struct {
	OrderNumber   string `json:"order_number"`
	TransactionID string `json:"transaction_id"`
	GatewayCode   string `json:"gateway_code"`
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}
