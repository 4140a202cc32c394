package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Migrate создает таблицы, если их еще нет. Все выражения идемпотентны.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	// Без аргументов pgx использует simple protocol, поэтому несколько выражений допустимы
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
