// Package store provides PostgreSQL persistence for orders, order transactions,
// payment methods and the transaction state machine.
package store

import (
	"embed"

	"paybridge/internal/common/database"
)

// Migrations holds the schema and the seeded state machine.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations that holds the files.
const MigrationsDir = "migrations"

// Store groups the repositories sharing one pool.
type Store struct {
	Orders         *Orders
	Transactions   *Transactions
	PaymentMethods *PaymentMethods
	StateMachine   *StateMachine
}

// New creates the repositories.
func New(db *database.DB) *Store {
	orders := &Orders{db: db}
	return &Store{
		Orders:         orders,
		Transactions:   &Transactions{db: db, orders: orders},
		PaymentMethods: &PaymentMethods{db: db},
		StateMachine:   &StateMachine{db: db},
	}
}
