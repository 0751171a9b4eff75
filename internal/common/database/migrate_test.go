package database

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/shop?sslmode=disable", pgx5URL("postgres://u:p@db:5432/shop?sslmode=disable"))
	assert.Equal(t, "pgx5://db/shop", pgx5URL("postgresql://db/shop"))
	assert.Equal(t, "pgx5://db/shop", pgx5URL("pgx5://db/shop"))
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("order: %w", pgx.ErrNoRows)))
	assert.True(t, IsNotFound(ErrNotFound))
	assert.False(t, IsNotFound(ErrConflict))

	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}
