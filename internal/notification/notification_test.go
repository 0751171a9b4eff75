package notification

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paybridge/internal/common/database"
	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

type fakeOrders map[string]*domain.Order

func (f fakeOrders) ByNumber(_ context.Context, number string) (*domain.Order, error) {
	o, ok := f[number]
	if !ok {
		return nil, database.ErrNotFound
	}
	return o, nil
}

type fakeGateway struct {
	tx  *gateway.Transaction
	err error
}

func (f *fakeGateway) Get(_ context.Context, number string) (*gateway.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

type call struct {
	status gateway.Status
	txID   string
	code   string
}

type fakeReconciler struct {
	states  []call
	methods []call
	err     error
}

func (f *fakeReconciler) TransitionPaymentState(_ context.Context, status gateway.Status, txID string) error {
	f.states = append(f.states, call{status: status, txID: txID})
	return f.err
}

func (f *fakeReconciler) TransitionPaymentMethodIfNeeded(_ context.Context, tx *domain.OrderTransaction, code string) error {
	f.methods = append(f.methods, call{txID: tx.ID, code: code})
	return nil
}

func testOrder() *domain.Order {
	now := time.Now()
	return &domain.Order{
		ID:          "o-1",
		OrderNumber: "10001",
		Transactions: []*domain.OrderTransaction{
			{ID: "tx-old", CreatedAt: now.Add(-time.Hour)},
			{ID: "tx-new", CreatedAt: now},
		},
	}
}

func newIngestor(orders fakeOrders, gw *fakeGateway, rec *fakeReconciler) (*Ingestor, *bytes.Buffer) {
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	return NewIngestor(orders, gw, rec, logger), logs
}

func TestNotifyReconcilesLatestTransaction(t *testing.T) {
	gw := &fakeGateway{tx: &gateway.Transaction{
		OrderID:        "10001",
		Status:         gateway.StatusCompleted,
		PaymentDetails: gateway.PaymentDetails{Type: "IDEAL"},
	}}
	rec := &fakeReconciler{}
	ing, _ := newIngestor(fakeOrders{"10001": testOrder()}, gw, rec)

	require.NoError(t, ing.Notify(context.Background(), "10001"))
	require.Len(t, rec.states, 1)
	assert.Equal(t, call{status: gateway.StatusCompleted, txID: "tx-new"}, rec.states[0])
	require.Len(t, rec.methods, 1)
	assert.Equal(t, call{txID: "tx-new", code: "IDEAL"}, rec.methods[0])
}

func TestNotifyUnknownOrderIsBenign(t *testing.T) {
	rec := &fakeReconciler{}
	ing, logs := newIngestor(fakeOrders{}, &fakeGateway{}, rec)

	require.NoError(t, ing.Notify(context.Background(), "99999"))
	assert.Empty(t, rec.states)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "order_number=99999")
}

func TestNotifyGatewayFailureIsLogged(t *testing.T) {
	gw := &fakeGateway{err: gateway.ErrCommunication}
	rec := &fakeReconciler{}
	ing, logs := newIngestor(fakeOrders{"10001": testOrder()}, gw, rec)

	err := ing.Notify(context.Background(), "10001")
	assert.ErrorIs(t, err, gateway.ErrCommunication)
	assert.Empty(t, rec.states)
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Contains(t, logs.String(), "order_number=10001")
}

func TestNotifyReconcilerFailureSkipsMethodCorrection(t *testing.T) {
	gw := &fakeGateway{tx: &gateway.Transaction{Status: gateway.StatusCompleted}}
	rec := &fakeReconciler{err: errors.New("boom")}
	ing, _ := newIngestor(fakeOrders{"10001": testOrder()}, gw, rec)

	require.Error(t, ing.Notify(context.Background(), "10001"))
	assert.Empty(t, rec.methods)
}

func TestNotifyWithoutPaymentTypeKeepsMethod(t *testing.T) {
	order := testOrder()
	ideal := &domain.PaymentMethod{ID: "pm-ideal", HandlerIdentifier: "paybridge.handler.ideal"}
	order.Transactions[1].PaymentMethod = ideal

	for _, snapshot := range []*gateway.Transaction{
		{OrderID: "10001", Status: gateway.StatusInitialized},
		{OrderID: "10001", Status: gateway.StatusExpired, PaymentDetails: gateway.PaymentDetails{Type: ""}},
	} {
		rec := &fakeReconciler{}
		ing, _ := newIngestor(fakeOrders{"10001": order}, &fakeGateway{tx: snapshot}, rec)

		require.NoError(t, ing.Notify(context.Background(), "10001"))
		require.Len(t, rec.states, 1)
		assert.Equal(t, snapshot.Status, rec.states[0].status)
		assert.Empty(t, rec.methods)
		assert.Same(t, ideal, order.Transactions[1].PaymentMethod)
	}
}

func TestNotifyOrderWithoutTransactions(t *testing.T) {
	rec := &fakeReconciler{}
	ing, _ := newIngestor(fakeOrders{"10001": {ID: "o-1", OrderNumber: "10001"}}, &fakeGateway{}, rec)

	require.NoError(t, ing.Notify(context.Background(), "10001"))
	assert.Empty(t, rec.states)
}

type notifierFunc func(ctx context.Context, orderNumber string) error

func (f notifierFunc) Notify(ctx context.Context, orderNumber string) error {
	return f(ctx, orderNumber)
}

func TestHandlerAlwaysAcknowledges(t *testing.T) {
	var got []string
	h := NewHandler(notifierFunc(func(_ context.Context, number string) error {
		got = append(got, number)
		return errors.New("unresolvable")
	}))
	routes := h.Routes()

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/?transactionid=10001", strings.NewReader(`{"any":"body"}`))
			rec := httptest.NewRecorder()
			routes.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "OK", rec.Body.String())
		})
	}
	assert.Equal(t, []string{"10001", "10001"}, got)
}

func TestHandlerWithoutTransactionID(t *testing.T) {
	called := false
	h := NewHandler(notifierFunc(func(context.Context, string) error {
		called = true
		return nil
	}))

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
}
