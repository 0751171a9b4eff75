package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paybridge/internal/checkout"
	"paybridge/internal/checkout/builder"
	"paybridge/internal/common/database"
	"paybridge/internal/common/money"
	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

type stubOrders struct {
	order *domain.Order
}

func (s stubOrders) ByID(_ context.Context, id string) (*domain.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, database.ErrNotFound
	}
	return s.order, nil
}

func (s stubOrders) ByNumber(_ context.Context, number string) (*domain.Order, error) {
	if s.order == nil || s.order.OrderNumber != number {
		return nil, database.ErrNotFound
	}
	return s.order, nil
}

type stubStates struct{}

func (stubStates) Apply(context.Context, string, domain.Action) (*domain.OrderTransaction, error) {
	return &domain.OrderTransaction{}, nil
}

type stubGateway struct {
	err     error
	updates []*gateway.UpdateRequest
}

func (s *stubGateway) Create(context.Context, *gateway.OrderRequest) (*gateway.CreatedOrder, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &gateway.CreatedOrder{PaymentURL: "https://pay.example.com/x"}, nil
}

func (s *stubGateway) Update(_ context.Context, _ string, req *gateway.UpdateRequest) error {
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, req)
	return nil
}

type stubReconciler struct {
	calls int
}

func (s *stubReconciler) TransitionPaymentState(context.Context, gateway.Status, string) error {
	s.calls++
	return nil
}

func newRouter(t *testing.T, gw *stubGateway, rec *stubReconciler) http.Handler {
	t.Helper()
	ideal, ok := gateway.DefaultRegistry().ByCode("IDEAL")
	require.True(t, ok)

	order := &domain.Order{
		ID:          "o-1",
		OrderNumber: "10001",
		Currency:    money.EUR,
		TaxStatus:   domain.TaxStatusNet,
		AmountTotal: decimal.NewFromInt(10),
		Transactions: []*domain.OrderTransaction{{
			ID:            "tx-1",
			PaymentMethod: &domain.PaymentMethod{ID: "pm-1", HandlerIdentifier: ideal.Handler},
			CreatedAt:     time.Now(),
		}},
	}

	service := checkout.NewService(
		stubOrders{order: order},
		stubStates{},
		gw,
		rec,
		gateway.DefaultRegistry(),
		builder.NewOrderRequestBuilder(builder.NewDefaultShoppingCartBuilder(), builder.Options{}),
		nil,
		checkout.Config{ShopBaseURL: "https://shop.example.com"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return NewHandler(service).Routes()
}

func TestPayHandler(t *testing.T) {
	router := newRouter(t, &stubGateway{}, &stubReconciler{})

	req := httptest.NewRequest(http.MethodPost, "/checkout/o-1/pay", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Data checkout.PayResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "https://pay.example.com/x", body.Data.PaymentURL)
	assert.Equal(t, "IDEAL", body.Data.Gateway)
}

func TestPayHandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		gwErr  error
		status int
		code   string
	}{
		{"unknown order", "/checkout/missing/pay", nil, http.StatusNotFound, "NOT_FOUND"},
		{"gateway failure", "/checkout/o-1/pay", gateway.ErrCommunication, http.StatusBadGateway, "PAYMENT_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(t, &stubGateway{err: tt.gwErr}, &stubReconciler{})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
}

func TestFinalizeHandler(t *testing.T) {
	reconciler := &stubReconciler{}
	router := newRouter(t, &stubGateway{}, reconciler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/checkout/finalize?transactionid=10001&order_transaction_id=tx-1&cancel=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cancelled":true`)
	assert.Equal(t, 1, reconciler.calls)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/checkout/finalize", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShipHandler(t *testing.T) {
	gw := &stubGateway{}
	router := newRouter(t, gw, &stubReconciler{})

	body := `{"tracktrace_code":"3SABC","carrier":"PostNL","ship_date":"2024-03-01"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/10001/shipment", strings.NewReader(body)))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, gw.updates, 1)
	assert.Equal(t, "2024-03-01", gw.updates[0].ShipDate)
}

func TestShipHandlerValidation(t *testing.T) {
	router := newRouter(t, &stubGateway{}, &stubReconciler{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/10001/shipment", strings.NewReader(`{"carrier":"PostNL"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestCancelHandlerGatewayUnavailable(t *testing.T) {
	router := newRouter(t, &stubGateway{err: gateway.ErrCommunication}, &stubReconciler{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/10001/cancel", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "GATEWAY_UNAVAILABLE")
}
