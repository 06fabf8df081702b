// Package migrate applies the PostgreSQL schema and loads the sample data set.
package migrate

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nathanyu/mini-ledger/internal/seed"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Connect opens a pool and checks it answers
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Apply runs every embedded migration not yet recorded in schema_migrations,
// each in its own transaction, in file name order.
func Apply(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, path := range names {
		name := strings.TrimPrefix(path, "migrations/")

		var exists bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename=$1)`, name).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}

		sqlBytes, err := migrations.ReadFile(path)
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			return errors.New("empty migration: " + name)
		}

		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, sqlText); err != nil {
				return fmt.Errorf("migration %s failed: %w", name, err)
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations(filename) VALUES($1)`, name)
			return err
		})
		if err != nil {
			return err
		}
		logger.Info("migration applied", "file", name)
	}
	return nil
}

// Seed loads the sample customers, accounts and transactions when the
// customers table is empty. It reports whether anything was inserted.
func Seed(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	loaded := false
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM customers`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, c := range seed.Customers() {
			batch.Queue(`INSERT INTO customers (id, name) VALUES ($1, $2)`, c.ID, c.Name)
		}
		for _, a := range seed.Accounts() {
			batch.Queue(`INSERT INTO accounts (id, customer_id, balance, created_at) VALUES ($1, $2, $3, $4)`,
				a.ID, a.CustomerID, a.Balance.StringFixed(2), a.CreatedAt)
		}
		for _, t := range seed.Transactions() {
			batch.Queue(`
				INSERT INTO transactions (id, sender_account_id, receiver_account_id, amount, transaction_details, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				t.ID, t.SenderAccountID, t.ReceiverAccountID, t.Amount.StringFixed(2), t.Details, t.CreatedAt)
		}

		// Explicit ids bypass the sequences, so move them past the seeded rows.
		for _, table := range []string{"customers", "accounts", "transactions"} {
			batch.Queue(fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%s', 'id'), (SELECT max(id) FROM %s))`, table, table))
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert sample data: %w", err)
		}
		loaded = true
		return nil
	})
	return loaded, err
}
