// Package memory is an in-process ledger backend. Durability comes from an
// optional append-only journal that is replayed on start-up.
package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nathanyu/mini-ledger/internal/domain"
	"github.com/nathanyu/mini-ledger/internal/store"
	"github.com/nathanyu/mini-ledger/internal/telemetry"
)

// Journal persists committed batches. *eventstore.EventStore satisfies it.
type Journal interface {
	AppendBatch(events []domain.Event) error
}

// Replayer feeds previously committed batches back in commit order.
type Replayer interface {
	Replay(fn func([]domain.Event) error) error
}

type entry struct {
	mu      sync.Mutex // held for the length of a unit of work
	account domain.Account
}

// Store keeps accounts and transactions in memory.
//
// Lock order: entry.mu (ascending account id) before mu.
type Store struct {
	mu           sync.RWMutex
	accounts     map[int64]*entry
	order        []int64
	transactions []domain.Transaction

	nextAccountID     int64
	nextTransactionID int64

	journal Journal
	logger  *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New creates an empty store. journal may be nil.
func New(journal Journal, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		accounts:          make(map[int64]*entry),
		nextAccountID:     1,
		nextTransactionID: 1,
		journal:           journal,
		logger:            logger,
	}
}

// Restore rebuilds state from a journal. It must run before the store serves traffic.
func (s *Store) Restore(r Replayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batches := 0
	err := r.Replay(func(events []domain.Event) error {
		batches++
		return s.apply(events)
	})
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	s.logger.Info("ledger restored from journal",
		"batches", batches,
		"accounts", len(s.accounts),
		"transactions", len(s.transactions),
	)
	return nil
}

// Seed commits events as one batch when the store is still empty. It
// reports whether anything was loaded.
func (s *Store) Seed(events []domain.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.accounts) > 0 || len(s.transactions) > 0 {
		return false, nil
	}
	if err := s.commitLocked(events); err != nil {
		return false, err
	}
	return true, nil
}

// CreateAccount opens an account with the next id
func (s *Store) CreateAccount(ctx context.Context, customerID int64, deposit decimal.Decimal) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deposit.IsNegative() {
		return nil, domain.ErrInvalidDeposit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	opened := domain.AccountOpened{
		AccountID:  s.nextAccountID,
		CustomerID: customerID,
		Deposit:    domain.RoundAmount(deposit),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.commitLocked([]domain.Event{opened}); err != nil {
		return nil, err
	}

	acc := s.accounts[opened.AccountID].account
	return &acc, nil
}

// GetAccount returns a copy of the account
func (s *Store) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	acc := e.account
	return &acc, nil
}

// BalancesForCustomer lists balances in account creation order
func (s *Store) BalancesForCustomer(ctx context.Context, customerID int64) ([]domain.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	balances := []domain.Balance{}
	for _, id := range s.order {
		acc := s.accounts[id].account
		if acc.CustomerID == customerID {
			balances = append(balances, domain.Balance{AccountID: acc.ID, Amount: acc.Balance})
		}
	}
	return balances, nil
}

// FindAllForCustomer returns transactions touching any account the customer owns
func (s *Store) FindAllForCustomer(ctx context.Context, customerID int64) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	owns := func(accountID int64) bool {
		e, ok := s.accounts[accountID]
		return ok && e.account.CustomerID == customerID
	}

	result := []domain.Transaction{}
	for _, t := range s.transactions {
		if owns(t.SenderAccountID) || owns(t.ReceiverAccountID) {
			result = append(result, t)
		}
	}
	return result, nil
}

// Atomically locks the given accounts in ascending id order, runs fn against a
// staged view, and commits the staged writes in one step if fn succeeds.
func (s *Store) Atomically(ctx context.Context, accountIDs []int64, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids := slices.Clone(accountIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	s.mu.RLock()
	held := make(map[int64]*entry, len(ids))
	for _, id := range ids {
		if e, ok := s.accounts[id]; ok {
			held[id] = e
		}
	}
	s.mu.RUnlock()

	// Accounts are never removed, so the set resolved above stays valid.
	for _, id := range ids {
		if e, ok := held[id]; ok {
			e.mu.Lock()
			defer e.mu.Unlock()
		}
	}

	tx := &memTx{
		store:     s,
		requested: ids,
		held:      held,
		balances:  make(map[int64]decimal.Decimal),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return tx.commit()
}

// Close closes the journal if it needs closing
func (s *Store) Close() error {
	if c, ok := s.journal.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// commitLocked assigns ids, journals the batch and applies it. Caller holds mu.
// Nothing is applied if the journal write fails.
func (s *Store) commitLocked(events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	if s.journal != nil {
		start := time.Now()
		err := s.journal.AppendBatch(events)
		telemetry.JournalWriteDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("journal commit: %w", err)
		}
	}

	return s.apply(events)
}

// apply mutates state from committed events. Caller holds mu.
func (s *Store) apply(events []domain.Event) error {
	for _, event := range events {
		switch e := event.(type) {
		case domain.AccountOpened:
			if _, exists := s.accounts[e.AccountID]; exists {
				return fmt.Errorf("account %d opened twice", e.AccountID)
			}
			s.accounts[e.AccountID] = &entry{account: domain.Account{
				ID:         e.AccountID,
				CustomerID: e.CustomerID,
				Balance:    e.Deposit,
				CreatedAt:  e.CreatedAt,
			}}
			s.order = append(s.order, e.AccountID)
			if e.AccountID >= s.nextAccountID {
				s.nextAccountID = e.AccountID + 1
			}

		case domain.BalanceUpdated:
			acc, ok := s.accounts[e.AccountID]
			if !ok {
				return fmt.Errorf("balance update for unknown account %d", e.AccountID)
			}
			acc.account.Balance = e.Balance

		case domain.TransactionRecorded:
			s.transactions = append(s.transactions, e.Transaction())
			if e.TransactionID >= s.nextTransactionID {
				s.nextTransactionID = e.TransactionID + 1
			}

		default:
			return fmt.Errorf("unsupported event type: %s", event.GetType())
		}
	}
	return nil
}

// memTx stages writes for one unit of work
type memTx struct {
	store     *Store
	requested []int64
	held      map[int64]*entry
	balances  map[int64]decimal.Decimal
	pending   []*domain.Transaction
}

func (t *memTx) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	if _, locked := slices.BinarySearch(t.requested, id); !locked {
		return t.store.GetAccount(ctx, id)
	}

	e, ok := t.held[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}

	// Only this unit of work writes a held account, so the read is stable.
	t.store.mu.RLock()
	acc := e.account
	t.store.mu.RUnlock()

	if staged, ok := t.balances[id]; ok {
		acc.Balance = staged
	}
	return &acc, nil
}

func (t *memTx) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	if _, ok := t.held[id]; !ok {
		if _, locked := slices.BinarySearch(t.requested, id); locked {
			return store.ErrAccountNotFound
		}
		return fmt.Errorf("account %d is not part of this unit of work", id)
	}
	t.balances[id] = domain.RoundAmount(balance)
	return nil
}

func (t *memTx) AppendTransaction(ctx context.Context, senderAccountID, receiverAccountID int64, amount decimal.Decimal, details string) (*domain.Transaction, error) {
	txn := &domain.Transaction{
		SenderAccountID:   senderAccountID,
		ReceiverAccountID: receiverAccountID,
		Amount:            domain.RoundAmount(amount),
		Details:           details,
		CreatedAt:         time.Now().UTC(),
	}
	t.pending = append(t.pending, txn)
	return txn, nil
}

func (t *memTx) commit() error {
	if len(t.balances) == 0 && len(t.pending) == 0 {
		return nil
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]domain.Event, 0, len(t.balances)+len(t.pending))
	for _, id := range t.requested {
		if balance, ok := t.balances[id]; ok {
			events = append(events, domain.BalanceUpdated{AccountID: id, Balance: balance})
		}
	}

	first := s.nextTransactionID
	next := first
	for _, txn := range t.pending {
		events = append(events, domain.TransactionRecorded{
			TransactionID:     next,
			SenderAccountID:   txn.SenderAccountID,
			ReceiverAccountID: txn.ReceiverAccountID,
			Amount:            txn.Amount,
			Details:           txn.Details,
			CreatedAt:         txn.CreatedAt,
		})
		next++
	}

	if err := s.commitLocked(events); err != nil {
		return err
	}

	// Ids become visible to the caller only once the batch is durable.
	for i, txn := range t.pending {
		txn.ID = first + int64(i)
	}
	return nil
}
