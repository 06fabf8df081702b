// Package query formats balances and history for callers.
package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nathanyu/mini-ledger/internal/customer"
	"github.com/nathanyu/mini-ledger/internal/domain"
	"github.com/nathanyu/mini-ledger/internal/store"
	"github.com/nathanyu/mini-ledger/internal/telemetry"
)

// Facade is the read side of the ledger. It never mutates state.
type Facade struct {
	accounts  store.AccountStore
	txlog     store.TransactionLog
	customers customer.Directory
}

func NewFacade(accounts store.AccountStore, txlog store.TransactionLog, customers customer.Directory) *Facade {
	return &Facade{accounts: accounts, txlog: txlog, customers: customers}
}

// BalancesAsStrings returns one two-decimal balance per account the customer
// owns, in creation order. An empty slice means the customer has no accounts.
func (f *Facade) BalancesAsStrings(ctx context.Context, customerID int64) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "query.Balances")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", customerID))

	if err := f.requireCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	balances, err := f.accounts.BalancesForCustomer(ctx, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load balances for customer %d: %w", customerID, err)
	}

	out := make([]string, 0, len(balances))
	for _, b := range balances {
		out = append(out, domain.FormatBalance(b.Amount))
	}
	span.SetAttributes(attribute.Int("result.count", len(out)))
	return out, nil
}

// TransactionDetailsAsStrings returns the description of every transaction
// touching an account the customer owns.
func (f *Facade) TransactionDetailsAsStrings(ctx context.Context, customerID int64) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "query.TransactionDetails")
	defer span.End()
	span.SetAttributes(attribute.Int64("customer.id", customerID))

	if err := f.requireCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	txns, err := f.txlog.FindAllForCustomer(ctx, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load transactions for customer %d: %w", customerID, err)
	}

	out := make([]string, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.Details)
	}
	span.SetAttributes(attribute.Int("result.count", len(out)))
	return out, nil
}

func (f *Facade) requireCustomer(ctx context.Context, customerID int64) error {
	ok, err := f.customers.Exists(ctx, customerID)
	if err != nil {
		return fmt.Errorf("lookup customer %d: %w", customerID, err)
	}
	if !ok {
		return domain.ErrInvalidCustomer
	}
	return nil
}
