package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"paybridge/internal/common/database"
	"paybridge/internal/order/domain"
)

// StateMachine is the order transaction state machine. Its edges live in
// state_machine_transitions.
type StateMachine struct {
	db *database.DB
}

// AvailableTransitions lists the outgoing edges of a state.
func (m *StateMachine) AvailableTransitions(ctx context.Context, stateID string) ([]domain.Transition, error) {
	rows, err := m.db.Query(ctx, `
		SELECT t.action, t.to_state_id, s.technical_name
		FROM state_machine_transitions t
		JOIN state_machine_states s ON s.id = t.to_state_id
		WHERE t.from_state_id = $1
		ORDER BY t.action
	`, stateID)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var transitions []domain.Transition
	for rows.Next() {
		var t domain.Transition
		if err := rows.Scan(&t.Action, &t.ToStateID, &t.ToStateName); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

// StateID resolves a technical state name to its id.
func (m *StateMachine) StateID(ctx context.Context, name string) (string, error) {
	var id string
	err := m.db.QueryRow(ctx, `SELECT id FROM state_machine_states WHERE technical_name = $1`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("state %q: %w", name, database.ErrNotFound)
		}
		return "", fmt.Errorf("resolving state %q: %w", name, err)
	}
	return id, nil
}

// Apply takes action on a transaction and records the transition. The row is only
// updated while it is still in the state the edge was resolved from; losing that race
// is reported as an illegal transition.
func (m *StateMachine) Apply(ctx context.Context, transactionID string, action domain.Action) (*domain.OrderTransaction, error) {
	var result *domain.OrderTransaction

	err := m.db.WithTx(ctx, func(tx pgx.Tx) error {
		var fromID, fromName string
		err := tx.QueryRow(ctx, `
			SELECT t.state_id, s.technical_name
			FROM order_transactions t
			JOIN state_machine_states s ON s.id = t.state_id
			WHERE t.id = $1
		`, transactionID).Scan(&fromID, &fromName)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return database.ErrNotFound
			}
			return fmt.Errorf("loading transaction state: %w", err)
		}

		illegal := &domain.IllegalTransitionError{EntityID: transactionID, FromState: fromName, Action: action}

		var toID string
		err = tx.QueryRow(ctx, `
			SELECT to_state_id
			FROM state_machine_transitions
			WHERE from_state_id = $1 AND action = $2
		`, fromID, action).Scan(&toID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return illegal
			}
			return fmt.Errorf("resolving transition: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE order_transactions
			SET state_id = $3, updated_at = NOW()
			WHERE id = $1 AND state_id = $2
		`, transactionID, fromID, toID)
		if err != nil {
			return fmt.Errorf("updating transaction state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return illegal
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO state_machine_history (id, entity_id, action, from_state_id, to_state_id)
			VALUES ($1, $2, $3, $4, $5)
		`, ulid.Make().String(), transactionID, action, fromID, toID)
		if err != nil {
			return fmt.Errorf("recording transition: %w", err)
		}

		result, err = scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+transactionJoins+`WHERE t.id = $1`, transactionID))
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
