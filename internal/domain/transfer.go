package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TransferRequest represents a transfer request from the API
type TransferRequest struct {
	SenderAccountID     int64           `json:"sender_account_id"`
	SendingCustomerID   int64           `json:"sending_customer_id"`
	ReceiverAccountID   int64           `json:"receiver_account_id"`
	ReceivingCustomerID int64           `json:"receiving_customer_id"`
	Amount              decimal.Decimal `json:"amount"`
}

// TransferDetails builds the human readable description stored with a transaction.
func TransferDetails(senderName string, amount decimal.Decimal, receiverName string) string {
	return fmt.Sprintf("FROM %s %s TO %s", senderName, FormatAmount(amount), receiverName)
}
