package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the read-only view of a customer record owned by the directory.
type Customer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Account is a balance-holding record owned by exactly one customer.
type Account struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	Balance    decimal.Decimal `json:"balance"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Balance is one entry of a customer's balance listing.
type Balance struct {
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// Transaction is the immutable record of a committed transfer.
type Transaction struct {
	ID                int64           `json:"id"`
	SenderAccountID   int64           `json:"sender_account_id"`
	ReceiverAccountID int64           `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Details           string          `json:"transaction_details"`
	CreatedAt         time.Time       `json:"created_at"`
}
