package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nathanyu/mini-ledger/internal/domain"
	"github.com/nathanyu/mini-ledger/internal/store"
)

var dbTracer = otel.Tracer("postgres")

// Store is the PostgreSQL ledger backend. Row locks taken with
// SELECT ... FOR UPDATE serialize transfers that share an account.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func startSpan(ctx context.Context, name, operation, table string) (context.Context, trace.Span) {
	return dbTracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		))
}

// CreateAccount inserts an account and returns it with its assigned id
func (s *Store) CreateAccount(ctx context.Context, customerID int64, deposit decimal.Decimal) (*domain.Account, error) {
	if deposit.IsNegative() {
		return nil, domain.ErrInvalidDeposit
	}

	ctx, span := startSpan(ctx, "postgres.insert_account", "INSERT", "accounts")
	defer span.End()

	var acc domain.Account
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (customer_id, balance)
		VALUES ($1, $2)
		RETURNING id, customer_id, balance, created_at
	`, customerID, domain.RoundAmount(deposit)).Scan(&acc.ID, &acc.CustomerID, &acc.Balance, &acc.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	span.SetAttributes(attribute.Int64("account.id", acc.ID))
	return &acc, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	ctx, span := startSpan(ctx, "postgres.select_account", "SELECT", "accounts")
	defer span.End()

	acc, err := getAccount(ctx, s.db, id)
	if err != nil && !errors.Is(err, store.ErrAccountNotFound) {
		span.RecordError(err)
	}
	return acc, err
}

// BalancesForCustomer lists balances in id (creation) order
func (s *Store) BalancesForCustomer(ctx context.Context, customerID int64) ([]domain.Balance, error) {
	ctx, span := startSpan(ctx, "postgres.select_balances", "SELECT", "accounts")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, balance
		FROM accounts
		WHERE customer_id = $1
		ORDER BY id
	`, customerID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	balances := []domain.Balance{}
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.AccountID, &b.Amount); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// FindAllForCustomer joins through account ownership on either side
func (s *Store) FindAllForCustomer(ctx context.Context, customerID int64) ([]domain.Transaction, error) {
	ctx, span := startSpan(ctx, "postgres.select_transactions", "SELECT", "transactions")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.sender_account_id, t.receiver_account_id, t.amount, t.transaction_details, t.created_at
		FROM transactions t
		WHERE EXISTS (
			SELECT 1 FROM accounts a
			WHERE a.customer_id = $1
			  AND a.id IN (t.sender_account_id, t.receiver_account_id)
		)
		ORDER BY t.id
	`, customerID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txns := []domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.SenderAccountID, &t.ReceiverAccountID, &t.Amount, &t.Details, &t.CreatedAt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	span.SetAttributes(attribute.Int("result.count", len(txns)))
	return txns, rows.Err()
}

// Atomically locks the account rows in id order and runs fn in one SQL transaction
func (s *Store) Atomically(ctx context.Context, accountIDs []int64, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, span := startSpan(ctx, "postgres.transaction", "transaction", "accounts")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, lockSpan := startSpan(ctx, "postgres.lock_accounts", "SELECT FOR UPDATE", "accounts")
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM accounts
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, pq.Array(accountIDs))
	if err != nil {
		lockSpan.RecordError(err)
		lockSpan.End()
		return fmt.Errorf("failed to lock accounts: %w", err)
	}
	for rows.Next() {
	}
	err = rows.Err()
	rows.Close()
	lockSpan.End()
	if err != nil {
		return fmt.Errorf("failed to lock accounts: %w", err)
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// pgTx routes store.Tx calls through an open SQL transaction
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return getAccount(ctx, t.tx, id)
}

func (t *pgTx) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	ctx, span := startSpan(ctx, "postgres.update_balance", "UPDATE", "accounts")
	defer span.End()

	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET balance = $2 WHERE id = $1`, id, domain.RoundAmount(balance))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, senderAccountID, receiverAccountID int64, amount decimal.Decimal, details string) (*domain.Transaction, error) {
	ctx, span := startSpan(ctx, "postgres.insert_transaction", "INSERT", "transactions")
	defer span.End()

	txn := domain.Transaction{
		SenderAccountID:   senderAccountID,
		ReceiverAccountID: receiverAccountID,
		Amount:            domain.RoundAmount(amount),
		Details:           details,
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO transactions (sender_account_id, receiver_account_id, amount, transaction_details)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, senderAccountID, receiverAccountID, txn.Amount, details).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return &txn, nil
}

func getAccount(ctx context.Context, q querier, id int64) (*domain.Account, error) {
	var acc domain.Account
	err := q.QueryRowContext(ctx, `
		SELECT id, customer_id, balance, created_at
		FROM accounts
		WHERE id = $1
	`, id).Scan(&acc.ID, &acc.CustomerID, &acc.Balance, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %d: %w", id, err)
	}
	return &acc, nil
}
