package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/nathanyu/mini-ledger/internal/domain"
)

// ErrAccountNotFound is returned when an account id is unknown to the store
var ErrAccountNotFound = errors.New("account not found")

// AccountStore defines account persistence operations
type AccountStore interface {
	// CreateAccount opens an account with the given initial deposit and
	// assigns it the next id. Negative deposits are rejected.
	CreateAccount(ctx context.Context, customerID int64, deposit decimal.Decimal) (*domain.Account, error)

	// GetAccount returns ErrAccountNotFound when the id is unknown
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)

	// BalancesForCustomer returns one balance per owned account in creation order.
	// It does not check that the customer exists.
	BalancesForCustomer(ctx context.Context, customerID int64) ([]domain.Balance, error)
}

// TransactionLog defines transaction history operations
type TransactionLog interface {
	// FindAllForCustomer returns every transaction whose sender or receiver
	// account is owned by the customer, in id order.
	FindAllForCustomer(ctx context.Context, customerID int64) ([]domain.Transaction, error)
}

// Tx is the view of the store handed to a unit of work. Nothing written
// through it is visible to other callers until the unit commits.
type Tx interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	AppendTransaction(ctx context.Context, senderAccountID, receiverAccountID int64, amount decimal.Decimal, details string) (*domain.Transaction, error)
}

// Store is a full ledger backend
type Store interface {
	AccountStore
	TransactionLog

	// Atomically runs fn while holding exclusive access to accountIDs.
	// If fn returns an error nothing it wrote is applied; otherwise every
	// write is committed together.
	Atomically(ctx context.Context, accountIDs []int64, fn func(ctx context.Context, tx Tx) error) error

	Close() error
}
