package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Savepoint opens a named savepoint inside tx. Work done after it can be
// discarded with RollbackTo without aborting the enclosing transaction.
func Savepoint(ctx context.Context, tx sqlx.ExecerContext, name string) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	return nil
}

func RollbackTo(ctx context.Context, tx sqlx.ExecerContext, name string) error {
	if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("rollback to savepoint %s: %w", name, err)
	}
	return nil
}

func Release(ctx context.Context, tx sqlx.ExecerContext, name string) error {
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}

func optionalText(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
