package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventType constants
const (
	EventTypeAccountOpened       = "AccountOpened"
	EventTypeBalanceUpdated      = "BalanceUpdated"
	EventTypeTransactionRecorded = "TransactionRecorded"
)

// Event is the base interface for all ledger events
type Event interface {
	GetType() string
}

// EventEnvelope wraps an event with metadata for serialization
type EventEnvelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// AccountOpened records a new account and its initial deposit
type AccountOpened struct {
	AccountID  int64           `json:"account_id"`
	CustomerID int64           `json:"customer_id"`
	Deposit    decimal.Decimal `json:"deposit"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (e AccountOpened) GetType() string { return EventTypeAccountOpened }

// BalanceUpdated records the new absolute balance of an account
type BalanceUpdated struct {
	AccountID int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

func (e BalanceUpdated) GetType() string { return EventTypeBalanceUpdated }

// TransactionRecorded records an appended transaction
type TransactionRecorded struct {
	TransactionID     int64           `json:"transaction_id"`
	SenderAccountID   int64           `json:"sender_account_id"`
	ReceiverAccountID int64           `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Details           string          `json:"transaction_details"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (e TransactionRecorded) GetType() string { return EventTypeTransactionRecorded }

// Transaction converts the event back into the stored record.
func (e TransactionRecorded) Transaction() Transaction {
	return Transaction{
		ID:                e.TransactionID,
		SenderAccountID:   e.SenderAccountID,
		ReceiverAccountID: e.ReceiverAccountID,
		Amount:            e.Amount,
		Details:           e.Details,
		CreatedAt:         e.CreatedAt,
	}
}

// SerializeEvent converts an event to JSON bytes with envelope
func SerializeEvent(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	envelope := EventEnvelope{
		Type:      event.GetType(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	return json.Marshal(envelope)
}

// DeserializeEvent converts JSON bytes back to an Event
func DeserializeEvent(data []byte) (Event, error) {
	var envelope EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return envelope.Decode()
}

// Decode unpacks the envelope payload into its concrete event type.
func (env EventEnvelope) Decode() (Event, error) {
	switch env.Type {
	case EventTypeAccountOpened:
		var e AccountOpened
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventTypeBalanceUpdated:
		var e BalanceUpdated
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventTypeTransactionRecorded:
		var e TransactionRecorded
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}
}
