// Package seed holds the sample data set the service boots with.
package seed

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nathanyu/mini-ledger/internal/domain"
)

// epoch is the fixed creation time stamped on seeded records
var epoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// Customers returns the sample customers
func Customers() []domain.Customer {
	return []domain.Customer{
		{ID: 1, Name: "Arisha Barron"},
		{ID: 2, Name: "Branden Gibson"},
		{ID: 3, Name: "Rhonda Church"},
		{ID: 4, Name: "Georgina Hazel"},
		{ID: 5, Name: "Judah Parham"},
	}
}

// Accounts returns the sample accounts in creation order
func Accounts() []domain.Account {
	mk := func(id, customerID int64, balance string) domain.Account {
		return domain.Account{
			ID:         id,
			CustomerID: customerID,
			Balance:    decimal.RequireFromString(balance),
			CreatedAt:  epoch,
		}
	}
	return []domain.Account{
		mk(1, 1, "520.00"),
		mk(2, 1, "5520.00"),
		mk(3, 2, "800.00"),
		mk(4, 3, "1200.00"),
		mk(5, 4, "300.00"),
		mk(6, 5, "150.00"),
	}
}

// Transactions returns the sample transaction history
func Transactions() []domain.Transaction {
	return []domain.Transaction{
		{
			ID:                1,
			SenderAccountID:   5,
			ReceiverAccountID: 1,
			Amount:            decimal.NewFromInt(20),
			Details:           domain.TransferDetails("Georgina Hazel", decimal.NewFromInt(20), "Arisha Barron"),
			CreatedAt:         epoch,
		},
	}
}

// Events returns the sample accounts and transactions as one journal batch
func Events() []domain.Event {
	var events []domain.Event
	for _, acc := range Accounts() {
		events = append(events, domain.AccountOpened{
			AccountID:  acc.ID,
			CustomerID: acc.CustomerID,
			Deposit:    acc.Balance,
			CreatedAt:  acc.CreatedAt,
		})
	}
	for _, t := range Transactions() {
		events = append(events, domain.TransactionRecorded{
			TransactionID:     t.ID,
			SenderAccountID:   t.SenderAccountID,
			ReceiverAccountID: t.ReceiverAccountID,
			Amount:            t.Amount,
			Details:           t.Details,
			CreatedAt:         t.CreatedAt,
		})
	}
	return events
}
