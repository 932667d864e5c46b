// Package db provides usage ledger data clearing.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearLedger truncates the usage_records table. Schema is preserved; only
// data is removed. RESTART IDENTITY resets the id sequence.
func ClearLedger(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing usage ledger", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE usage_records RESTART IDENTITY`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Usage ledger cleared", clearLogPrefix))
	return nil
}
