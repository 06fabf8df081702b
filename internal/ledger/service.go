// Package ledger implements the transfer engine: the ordered validation
// pipeline and the debit/credit/append unit of work.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nathanyu/mini-ledger/internal/customer"
	"github.com/nathanyu/mini-ledger/internal/domain"
	"github.com/nathanyu/mini-ledger/internal/store"
	"github.com/nathanyu/mini-ledger/internal/telemetry"
)

// EventPublisher fans committed ledger events out to other services
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Service validates and applies account openings and transfers
type Service struct {
	store     store.Store
	customers customer.Directory
	publisher EventPublisher
	logger    *slog.Logger
}

// NewService wires the engine to its collaborators. publisher and logger may be nil.
func NewService(st store.Store, customers customer.Directory, publisher EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		customers: customers,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateAccount opens an account for an existing customer
func (s *Service) CreateAccount(ctx context.Context, customerID int64, deposit decimal.Decimal) (*domain.Account, error) {
	ctx, span := telemetry.StartSpan(ctx, "ledger.CreateAccount")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("customer.id", customerID),
		attribute.String("deposit", deposit.String()),
	)

	ok, err := s.customers.Exists(ctx, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("lookup customer %d: %w", customerID, err)
	}
	if !ok {
		span.SetAttributes(attribute.String("failure_reason", string(domain.CodeInvalidCustomer)))
		return nil, domain.ErrInvalidCustomer
	}
	if deposit.IsNegative() {
		span.SetAttributes(attribute.String("failure_reason", string(domain.CodeInvalidDeposit)))
		return nil, domain.ErrInvalidDeposit
	}

	acc, err := s.store.CreateAccount(ctx, customerID, domain.RoundAmount(deposit))
	if err != nil {
		if !isValidation(err) {
			telemetry.RecordError(span, err)
		}
		return nil, err
	}

	telemetry.AccountsCreatedTotal.Inc()
	span.SetAttributes(attribute.Int64("account.id", acc.ID))
	s.logger.InfoContext(ctx, "account opened",
		"account_id", acc.ID,
		"customer_id", acc.CustomerID,
		"deposit", domain.FormatBalance(acc.Balance),
	)

	s.publish(ctx, domain.AccountOpened{
		AccountID:  acc.ID,
		CustomerID: acc.CustomerID,
		Deposit:    acc.Balance,
		CreatedAt:  acc.CreatedAt,
	})

	return acc, nil
}

// Transfer moves funds between two accounts. Checks run in a fixed order and
// the first failure is returned; nothing is written unless all pass.
func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transaction, error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "ledger.Transfer")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("sender_account_id", req.SenderAccountID),
		attribute.Int64("receiver_account_id", req.ReceiverAccountID),
		attribute.String("amount", req.Amount.String()),
	)

	txn, err := s.transfer(ctx, req)
	telemetry.TransferDuration.Observe(time.Since(start).Seconds())

	var verr *domain.ValidationError
	switch {
	case err == nil:
		telemetry.TransfersTotal.WithLabelValues("success").Inc()
		telemetry.TransferAmount.Observe(txn.Amount.InexactFloat64())
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Int64("transaction.id", txn.ID))
	case errors.As(err, &verr):
		telemetry.TransfersTotal.WithLabelValues(string(verr.Code)).Inc()
		span.SetAttributes(attribute.String("failure_reason", string(verr.Code)))
		s.logger.InfoContext(ctx, "transfer rejected",
			"reason", verr.Code,
			"sender_account_id", req.SenderAccountID,
			"receiver_account_id", req.ReceiverAccountID,
		)
		return nil, err
	default:
		telemetry.TransfersTotal.WithLabelValues("error").Inc()
		telemetry.RecordError(span, err)
		s.logger.ErrorContext(ctx, "transfer failed", "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "transfer committed",
		"transaction_id", txn.ID,
		"sender_account_id", txn.SenderAccountID,
		"receiver_account_id", txn.ReceiverAccountID,
		"amount", domain.FormatAmount(txn.Amount),
	)

	s.publish(ctx, domain.TransactionRecorded{
		TransactionID:     txn.ID,
		SenderAccountID:   txn.SenderAccountID,
		ReceiverAccountID: txn.ReceiverAccountID,
		Amount:            txn.Amount,
		Details:           txn.Details,
		CreatedAt:         txn.CreatedAt,
	})

	return txn, nil
}

func (s *Service) transfer(ctx context.Context, req domain.TransferRequest) (*domain.Transaction, error) {
	amount := req.Amount

	// 1. receiving customer exists
	receiverName, err := s.displayName(ctx, req.ReceivingCustomerID, domain.ErrInvalidReceiverCustomer)
	if err != nil {
		return nil, err
	}

	// 2. sending customer exists
	senderName, err := s.displayName(ctx, req.SendingCustomerID, domain.ErrInvalidSenderCustomer)
	if err != nil {
		return nil, err
	}

	details := domain.TransferDetails(senderName, amount, receiverName)

	var txn *domain.Transaction
	ids := []int64{req.SenderAccountID, req.ReceiverAccountID}
	err = s.store.Atomically(ctx, ids, func(ctx context.Context, tx store.Tx) error {
		// 3. sender account exists
		src, err := getAccount(ctx, tx, req.SenderAccountID, domain.ErrSenderAccountNotFound)
		if err != nil {
			return err
		}

		// 4. receiver account exists
		dst, err := getAccount(ctx, tx, req.ReceiverAccountID, domain.ErrReceiverAccountNotFound)
		if err != nil {
			return err
		}

		// 5. sufficient funds
		if src.Balance.LessThan(amount) {
			return domain.ErrInsufficientFunds
		}

		// 6. sender ownership
		if src.CustomerID != req.SendingCustomerID {
			return domain.ErrSenderAccountOwnership
		}

		// 7. receiver ownership
		if dst.CustomerID != req.ReceivingCustomerID {
			return domain.ErrReceiverAccountOwnership
		}

		if !amount.IsPositive() || !domain.IsMoneyScale(amount) {
			return domain.ErrInvalidAmount
		}

		if err := tx.UpdateBalance(ctx, src.ID, src.Balance.Sub(amount)); err != nil {
			return fmt.Errorf("debit account %d: %w", src.ID, err)
		}

		// Re-read so a transfer to the same account nets to zero.
		dst, err = tx.GetAccount(ctx, dst.ID)
		if err != nil {
			return fmt.Errorf("reload account %d: %w", req.ReceiverAccountID, err)
		}
		if err := tx.UpdateBalance(ctx, dst.ID, dst.Balance.Add(amount)); err != nil {
			return fmt.Errorf("credit account %d: %w", dst.ID, err)
		}

		txn, err = tx.AppendTransaction(ctx, src.ID, dst.ID, amount, details)
		if err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return txn, nil
}

func (s *Service) displayName(ctx context.Context, customerID int64, notFound error) (string, error) {
	name, err := s.customers.DisplayName(ctx, customerID)
	if errors.Is(err, customer.ErrNotFound) {
		return "", notFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup customer %d: %w", customerID, err)
	}
	return name, nil
}

func getAccount(ctx context.Context, tx store.Tx, id int64, notFound error) (*domain.Account, error) {
	acc, err := tx.GetAccount(ctx, id)
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", id, err)
	}
	return acc, nil
}

// publish sends a committed event. Failures are logged only: the ledger
// state is already durable.
func (s *Service) publish(ctx context.Context, event domain.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish ledger event",
			"type", event.GetType(),
			"error", err,
		)
	}
}

func isValidation(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr)
}
