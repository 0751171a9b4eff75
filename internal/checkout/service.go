// Package checkout starts gateway payments for orders and pushes order updates to the gateway.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"paybridge/internal/checkout/builder"
	"paybridge/internal/common/events"
	"paybridge/internal/common/middleware"
	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

// Errors returned by the service.
var (
	ErrTransactionNotFound = errors.New("order transaction not found")
	ErrUnknownGateway      = errors.New("payment method is not served by the gateway")
	ErrPaymentFailed       = errors.New("payment failed")
)

// OrderRepository loads orders with their transactions and payment methods.
type OrderRepository interface {
	ByID(ctx context.Context, id string) (*domain.Order, error)
	ByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
}

// StateMachine applies transaction actions.
type StateMachine interface {
	Apply(ctx context.Context, transactionID string, action domain.Action) (*domain.OrderTransaction, error)
}

// Gateway is the subset of the gateway client used at checkout.
type Gateway interface {
	Create(ctx context.Context, req *gateway.OrderRequest) (*gateway.CreatedOrder, error)
	Update(ctx context.Context, orderNumber string, req *gateway.UpdateRequest) error
}

// Reconciler applies gateway statuses to transactions.
type Reconciler interface {
	TransitionPaymentState(ctx context.Context, status gateway.Status, transactionID string) error
}

// Config holds the values the service needs to build gateway callbacks.
type Config struct {
	ShopBaseURL string
}

// Service drives the checkout path.
type Service struct {
	orders     OrderRepository
	states     StateMachine
	gateway    Gateway
	reconciler Reconciler
	registry   *gateway.Registry
	requests   *builder.OrderRequestBuilder
	publisher  events.EventPublisher
	cfg        Config
	logger     *slog.Logger
}

// NewService creates a checkout service. publisher may be nil.
func NewService(
	orders OrderRepository,
	states StateMachine,
	gw Gateway,
	reconciler Reconciler,
	registry *gateway.Registry,
	requests *builder.OrderRequestBuilder,
	publisher events.EventPublisher,
	cfg Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		orders:     orders,
		states:     states,
		gateway:    gw,
		reconciler: reconciler,
		registry:   registry,
		requests:   requests,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
	}
}

// PayRequest starts a payment for an order.
type PayRequest struct {
	OrderID       string
	TransactionID string // defaults to the latest transaction
	IPAddress     string
	UserAgent     string
}

// PayResult is the outcome of a started payment.
type PayResult struct {
	OrderNumber   string `json:"order_number"`
	TransactionID string `json:"transaction_id"`
	Gateway       string `json:"gateway"`
	PaymentURL    string `json:"payment_url"`
}

// Pay creates the gateway transaction for an order. A build or gateway failure marks the
// order transaction failed and returns an error wrapping ErrPaymentFailed.
func (s *Service) Pay(ctx context.Context, req PayRequest) (*PayResult, error) {
	order, err := s.orders.ByID(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("loading order %s: %w", req.OrderID, err)
	}

	tx := findTransaction(order, req.TransactionID)
	if tx == nil {
		return nil, fmt.Errorf("%w: order %s", ErrTransactionNotFound, order.OrderNumber)
	}

	gw, ok := s.registry.ByHandler(tx.HandlerIdentifier())
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, tx.HandlerIdentifier())
	}

	logger := s.logger.With(
		"order_number", order.OrderNumber,
		"transaction_id", tx.ID,
		"gateway", gw.Code,
	)

	routes := builder.NewRoutes(s.cfg.ShopBaseURL, order.OrderNumber, tx.ID)
	orderReq, err := s.requests.Build(order, gw, routes, builder.BrowserInfo{
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		return nil, s.fail(ctx, logger, order, tx, gw, err)
	}

	created, err := s.gateway.Create(ctx, orderReq)
	if err != nil {
		return nil, s.fail(ctx, logger, order, tx, gw, err)
	}

	logger.Info("payment started", "amount", orderReq.Amount, "currency", orderReq.Currency)
	s.publish(ctx, events.EventCheckoutPaymentRequested, order, events.CheckoutPaymentData{
		OrderNumber:   order.OrderNumber,
		TransactionID: tx.ID,
		GatewayCode:   gw.Code,
		AmountMinor:   orderReq.Amount,
		Currency:      orderReq.Currency,
	})

	return &PayResult{
		OrderNumber:   order.OrderNumber,
		TransactionID: tx.ID,
		Gateway:       gw.Code,
		PaymentURL:    created.PaymentURL,
	}, nil
}

func (s *Service) fail(ctx context.Context, logger *slog.Logger, order *domain.Order, tx *domain.OrderTransaction, gw gateway.Gateway, cause error) error {
	logger.Error("payment failed", "error", cause)

	if _, err := s.states.Apply(ctx, tx.ID, domain.ActionFail); err != nil {
		logger.Error("failed to mark transaction failed", "error", err)
	}

	s.publish(ctx, events.EventCheckoutPaymentFailed, order, events.CheckoutPaymentData{
		OrderNumber:   order.OrderNumber,
		TransactionID: tx.ID,
		GatewayCode:   gw.Code,
		Currency:      string(order.Currency),
		Reason:        cause.Error(),
	})

	return fmt.Errorf("%w: %w", ErrPaymentFailed, cause)
}

// Finalize handles the customer returning from the payment page. Only a cancelled
// return changes state; the notification is authoritative for everything else.
func (s *Service) Finalize(ctx context.Context, orderNumber, transactionID string, cancelled bool) error {
	order, err := s.orders.ByNumber(ctx, orderNumber)
	if err != nil {
		return fmt.Errorf("loading order %s: %w", orderNumber, err)
	}

	tx := findTransaction(order, transactionID)
	if tx == nil {
		return fmt.Errorf("%w: order %s", ErrTransactionNotFound, orderNumber)
	}
	if !cancelled {
		return nil
	}

	s.logger.Info("customer cancelled payment",
		"order_number", orderNumber,
		"transaction_id", tx.ID,
	)
	return s.reconciler.TransitionPaymentState(ctx, gateway.StatusCancelled, tx.ID)
}

// ShipRequest pushes shipment metadata to the gateway.
type ShipRequest struct {
	OrderNumber    string
	TrackTraceCode string
	Carrier        string
	InvoiceID      string
	ShipDate       time.Time
}

// Ship tells the gateway the order was shipped. Pay-later schemes capture on shipment.
func (s *Service) Ship(ctx context.Context, req ShipRequest) error {
	shipDate := req.ShipDate
	if shipDate.IsZero() {
		shipDate = time.Now()
	}

	err := s.gateway.Update(ctx, req.OrderNumber, &gateway.UpdateRequest{
		Status:         gateway.StatusShipped,
		TrackTraceCode: req.TrackTraceCode,
		Carrier:        req.Carrier,
		InvoiceID:      req.InvoiceID,
		ShipDate:       shipDate.Format("2006-01-02"),
	})
	if err != nil {
		s.logger.Error("failed to push shipment",
			"order_number", req.OrderNumber,
			"error", err,
		)
		return fmt.Errorf("updating gateway order %s: %w", req.OrderNumber, err)
	}

	s.logger.Info("shipment pushed", "order_number", req.OrderNumber, "carrier", req.Carrier)
	return nil
}

// CancelPending cancels the gateway order before any payment was made.
func (s *Service) CancelPending(ctx context.Context, orderNumber, reason string) error {
	err := s.gateway.Update(ctx, orderNumber, &gateway.UpdateRequest{
		Status: gateway.StatusCancelled,
		Reason: reason,
	})
	if err != nil {
		s.logger.Error("failed to cancel gateway order",
			"order_number", orderNumber,
			"error", err,
		)
		return fmt.Errorf("cancelling gateway order %s: %w", orderNumber, err)
	}

	s.logger.Info("gateway order cancelled", "order_number", orderNumber)
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, order *domain.Order, data events.CheckoutPaymentData) {
	if s.publisher == nil {
		return
	}

	event, err := events.NewEvent(eventType, "order", order.ID, data)
	if err != nil {
		s.logger.Error("failed to build event", "type", eventType, "error", err)
		return
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx))
	event.SalesChannel = order.SalesChannelID

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event",
			"type", eventType,
			"order_number", order.OrderNumber,
			"error", err,
		)
	}
}

func findTransaction(order *domain.Order, id string) *domain.OrderTransaction {
	if id == "" {
		return order.LastTransaction()
	}
	for _, tx := range order.Transactions {
		if tx.ID == id {
			return tx
		}
	}
	return nil
}
