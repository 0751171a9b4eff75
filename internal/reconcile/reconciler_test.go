package reconcile

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paybridge/internal/common/database"
	"paybridge/internal/common/events"
	"paybridge/internal/gateway"
	"paybridge/internal/order/domain"
)

// edges is a subset of the transitions seeded by the order store migrations.
var edges = map[string]map[domain.Action]string{
	domain.StateOpen: {
		domain.ActionPaid:    domain.StatePaid,
		domain.ActionCancel:  domain.StateCancelled,
		domain.ActionFail:    domain.StateFailed,
		domain.ActionProcess: domain.StateInProgress,
	},
	domain.StateInProgress: {
		domain.ActionPaid:   domain.StatePaid,
		domain.ActionCancel: domain.StateCancelled,
		domain.ActionFail:   domain.StateFailed,
		domain.ActionReopen: domain.StateOpen,
	},
	domain.StatePaid: {
		domain.ActionRefund:          domain.StateRefunded,
		domain.ActionRefundPartially: domain.StateRefundedPartially,
		domain.ActionReopen:          domain.StateOpen,
	},
	domain.StateCancelled: {
		domain.ActionReopen: domain.StateOpen,
	},
	domain.StateFailed: {
		domain.ActionPaid:   domain.StatePaid,
		domain.ActionReopen: domain.StateOpen,
	},
	domain.StateRefunded: {
		domain.ActionReopen: domain.StateOpen,
	},
	domain.StateRefundedPartially: {
		domain.ActionRefund: domain.StateRefunded,
		domain.ActionReopen: domain.StateOpen,
	},
}

func stateID(name string) string { return "state-" + name }

// memoryStore is an in-memory state machine and transaction repository.
type memoryStore struct {
	mu      sync.Mutex
	txs     map[string]*domain.OrderTransaction
	methods map[string]*domain.PaymentMethod
	writes  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		txs:     make(map[string]*domain.OrderTransaction),
		methods: make(map[string]*domain.PaymentMethod),
	}
}

func (m *memoryStore) add(id, state string, order *domain.Order) *domain.OrderTransaction {
	tx := &domain.OrderTransaction{ID: id, StateID: stateID(state), StateName: state, Order: order}
	m.txs[id] = tx
	return tx
}

func (m *memoryStore) state(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs[id].StateName
}

func (m *memoryStore) AvailableTransitions(_ context.Context, id string) ([]domain.Transition, error) {
	var out []domain.Transition
	for action, to := range edges[strings.TrimPrefix(id, "state-")] {
		out = append(out, domain.Transition{Action: action, ToStateID: stateID(to), ToStateName: to})
	}
	return out, nil
}

func (m *memoryStore) StateID(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", database.ErrNotFound
	}
	return stateID(name), nil
}

func (m *memoryStore) Apply(_ context.Context, id string, action domain.Action) (*domain.OrderTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	to, ok := edges[tx.StateName][action]
	if !ok {
		return nil, &domain.IllegalTransitionError{EntityID: id, FromState: tx.StateName, Action: action}
	}
	tx.StateName, tx.StateID = to, stateID(to)
	m.writes++

	cp := *tx
	return &cp, nil
}

func (m *memoryStore) ByID(_ context.Context, id string) (*domain.OrderTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memoryStore) UpdatePaymentMethod(_ context.Context, txID, methodID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[txID]
	if !ok {
		return database.ErrNotFound
	}
	for _, pm := range m.methods {
		if pm.ID == methodID {
			tx.PaymentMethod = pm
		}
	}
	m.writes++
	return nil
}

func (m *memoryStore) ByHandler(_ context.Context, handler string) (*domain.PaymentMethod, error) {
	pm, ok := m.methods[handler]
	if !ok {
		return nil, database.ErrNotFound
	}
	return pm, nil
}

type recordingPublisher struct {
	events []*events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e *events.Event) error {
	p.events = append(p.events, e)
	return nil
}

type fixture struct {
	store     *memoryStore
	publisher *recordingPublisher
	logs      *bytes.Buffer
	r         *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemoryStore()
	pub := &recordingPublisher{}
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return &fixture{
		store:     store,
		publisher: pub,
		logs:      logs,
		r:         New(store, store, store, gateway.DefaultRegistry(), pub, logger),
	}
}

func (f *fixture) warnings() int {
	return strings.Count(f.logs.String(), "level=WARN")
}

func (f *fixture) notify(t *testing.T, txID string, statuses ...gateway.Status) {
	t.Helper()
	for _, s := range statuses {
		require.NoError(t, f.r.TransitionPaymentState(context.Background(), s, txID))
	}
}

func TestActionForStatusIsTotal(t *testing.T) {
	tests := []struct {
		status gateway.Status
		want   domain.Action
	}{
		{gateway.StatusCompleted, domain.ActionPaid},
		{gateway.StatusUncleared, domain.ActionReopen},
		{gateway.StatusInitialized, domain.ActionReopen},
		{gateway.StatusExpired, domain.ActionCancel},
		{gateway.StatusCancelled, domain.ActionCancel},
		{gateway.StatusDeclined, domain.ActionCancel},
		{gateway.StatusVoid, domain.ActionCancel},
		{gateway.StatusRefunded, domain.ActionRefund},
		{gateway.StatusPartialRefunded, domain.ActionRefundPartially},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got, ok := ActionForStatus(tt.status)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, s := range []gateway.Status{gateway.StatusShipped, gateway.StatusChargedBack, "", "bogus"} {
		_, ok := ActionForStatus(s)
		assert.False(t, ok, "status %q", s)
	}
}

func TestUnmappedStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	f.store.add("tx-1", domain.StateOpen, nil)

	f.notify(t, "tx-1", "bogus", gateway.StatusShipped)
	assert.Equal(t, domain.StateOpen, f.store.state("tx-1"))
	assert.Zero(t, f.store.writes)
	assert.Empty(t, f.publisher.events)
}

func TestTransitionScenarios(t *testing.T) {
	tests := []struct {
		name     string
		statuses []gateway.Status
		want     string
		writes   int
		warnings int
	}{
		{"completed", []gateway.Status{gateway.StatusCompleted}, domain.StatePaid, 1, 0},
		{"completed then refunded", []gateway.Status{gateway.StatusCompleted, gateway.StatusRefunded}, domain.StateRefunded, 2, 0},
		{"completed then partial refund", []gateway.Status{gateway.StatusCompleted, gateway.StatusPartialRefunded}, domain.StateRefundedPartially, 2, 0},
		{"expired", []gateway.Status{gateway.StatusExpired}, domain.StateCancelled, 1, 0},
		{"expired then initialized", []gateway.Status{gateway.StatusExpired, gateway.StatusInitialized}, domain.StateOpen, 2, 0},
		{"expired then completed", []gateway.Status{gateway.StatusExpired, gateway.StatusCompleted}, domain.StatePaid, 3, 1},
		{"uncleared on open", []gateway.Status{gateway.StatusUncleared}, domain.StateOpen, 0, 0},
		{"uncleared then completed", []gateway.Status{gateway.StatusUncleared, gateway.StatusCompleted}, domain.StatePaid, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.add("tx-1", domain.StateOpen, &domain.Order{OrderNumber: "10001"})

			f.notify(t, "tx-1", tt.statuses...)
			assert.Equal(t, tt.want, f.store.state("tx-1"))
			assert.Equal(t, tt.writes, f.store.writes)
			assert.Equal(t, tt.warnings, f.warnings())
		})
	}
}

func TestReplayedNotificationWritesOnce(t *testing.T) {
	for _, status := range []gateway.Status{gateway.StatusCompleted, gateway.StatusExpired} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			f.store.add("tx-1", domain.StateOpen, nil)

			for i := 0; i < 5; i++ {
				f.notify(t, "tx-1", status)
			}
			assert.Equal(t, 1, f.store.writes)
			assert.Len(t, f.publisher.events, 1)
			assert.Zero(t, f.warnings())
		})
	}
}

func TestRecoveryLogsDiagnostics(t *testing.T) {
	f := newFixture(t)
	f.store.add("tx-1", domain.StateCancelled, &domain.Order{OrderNumber: "10001"})

	f.notify(t, "tx-1", gateway.StatusCompleted)
	assert.Equal(t, domain.StatePaid, f.store.state("tx-1"))
	require.Equal(t, 1, f.warnings())

	out := f.logs.String()
	assert.Contains(t, out, "state=cancelled")
	assert.Contains(t, out, "order_number=10001")
	assert.Contains(t, out, "status=completed")
}

func TestRecoveryWithoutOrderLogsNullSentinel(t *testing.T) {
	f := newFixture(t)
	f.store.add("tx-1", domain.StateCancelled, nil)

	f.notify(t, "tx-1", gateway.StatusCompleted)
	assert.Equal(t, domain.StatePaid, f.store.state("tx-1"))
	assert.Contains(t, f.logs.String(), "order_number=null")
}

func TestSecondIllegalTransitionPropagates(t *testing.T) {
	f := newFixture(t)
	f.store.add("tx-1", domain.StateOpen, nil)

	err := f.r.TransitionPaymentState(context.Background(), gateway.StatusRefunded, "tx-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	var illegal *domain.IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, domain.ActionRefund, illegal.Action)

	assert.Equal(t, domain.StateOpen, f.store.state("tx-1"))
	assert.Equal(t, 1, f.warnings())
	assert.Empty(t, f.publisher.events)
}

func TestUnknownTransactionFails(t *testing.T) {
	f := newFixture(t)

	err := f.r.TransitionPaymentState(context.Background(), gateway.StatusCompleted, "missing")
	assert.True(t, database.IsNotFound(err))
}

func TestTransitionPublishesEvent(t *testing.T) {
	f := newFixture(t)
	f.store.add("tx-1", domain.StateOpen, &domain.Order{OrderNumber: "10001"})

	f.notify(t, "tx-1", gateway.StatusCompleted)
	require.Len(t, f.publisher.events, 1)

	e := f.publisher.events[0]
	assert.Equal(t, events.EventTransactionTransitioned, e.Type)
	assert.Equal(t, "tx-1", e.AggregateID)

	var data events.TransactionTransitionedData
	require.NoError(t, e.DecodeData(&data))
	assert.Equal(t, "completed", data.GatewayStatus)
	assert.Equal(t, "10001", data.OrderNumber)
	assert.Equal(t, stateID(domain.StateOpen), data.FromStateID)
	assert.Equal(t, stateID(domain.StatePaid), data.ToStateID)
}

func TestTransitionPaymentMethodIfNeeded(t *testing.T) {
	registry := gateway.DefaultRegistry()
	ideal, _ := registry.ByCode("IDEAL")
	generic := &domain.PaymentMethod{ID: "pm-generic", HandlerIdentifier: gateway.GenericHandler}
	idealMethod := &domain.PaymentMethod{ID: "pm-ideal", HandlerIdentifier: ideal.Handler}

	t.Run("corrects attribution", func(t *testing.T) {
		f := newFixture(t)
		f.store.methods[ideal.Handler] = idealMethod
		tx := f.store.add("tx-1", domain.StateOpen, nil)
		tx.PaymentMethod = generic

		require.NoError(t, f.r.TransitionPaymentMethodIfNeeded(context.Background(), tx, "IDEAL"))
		assert.Equal(t, "pm-ideal", tx.PaymentMethod.ID)
		assert.Equal(t, 1, f.store.writes)
		require.Len(t, f.publisher.events, 1)
		assert.Equal(t, events.EventTransactionMethodChanged, f.publisher.events[0].Type)
	})

	t.Run("same handler", func(t *testing.T) {
		f := newFixture(t)
		f.store.methods[ideal.Handler] = idealMethod
		tx := f.store.add("tx-1", domain.StateOpen, nil)
		tx.PaymentMethod = idealMethod

		require.NoError(t, f.r.TransitionPaymentMethodIfNeeded(context.Background(), tx, "IDEAL"))
		assert.Zero(t, f.store.writes)
	})

	t.Run("no registered method", func(t *testing.T) {
		f := newFixture(t)
		tx := f.store.add("tx-1", domain.StateOpen, nil)
		tx.PaymentMethod = generic

		require.NoError(t, f.r.TransitionPaymentMethodIfNeeded(context.Background(), tx, "IDEAL"))
		assert.Equal(t, "pm-generic", tx.PaymentMethod.ID)
		assert.Zero(t, f.store.writes)
	})

	t.Run("unknown gateway code", func(t *testing.T) {
		f := newFixture(t)
		tx := f.store.add("tx-1", domain.StateOpen, nil)
		tx.PaymentMethod = generic

		require.NoError(t, f.r.TransitionPaymentMethodIfNeeded(context.Background(), tx, "NOPE"))
		assert.Zero(t, f.store.writes)
	})

	t.Run("empty gateway code", func(t *testing.T) {
		f := newFixture(t)
		f.store.methods[gateway.GenericHandler] = generic
		f.store.methods[ideal.Handler] = idealMethod
		tx := f.store.add("tx-1", domain.StateOpen, nil)
		tx.PaymentMethod = idealMethod

		require.NoError(t, f.r.TransitionPaymentMethodIfNeeded(context.Background(), tx, ""))
		assert.Equal(t, "pm-ideal", tx.PaymentMethod.ID)
		assert.Zero(t, f.store.writes)
		assert.Empty(t, f.publisher.events)
	})
}
