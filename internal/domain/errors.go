package domain

// ErrorCode identifies a caller-facing validation failure.
type ErrorCode string

const (
	CodeInvalidCustomer          ErrorCode = "invalid_customer"
	CodeInvalidDeposit           ErrorCode = "invalid_deposit"
	CodeInvalidAmount            ErrorCode = "invalid_amount"
	CodeInvalidReceiverCustomer  ErrorCode = "invalid_receiver_customer"
	CodeInvalidSenderCustomer    ErrorCode = "invalid_sender_customer"
	CodeSenderAccountNotFound    ErrorCode = "sender_account_not_found"
	CodeReceiverAccountNotFound  ErrorCode = "receiver_account_not_found"
	CodeInsufficientFunds        ErrorCode = "insufficient_funds"
	CodeSenderAccountOwnership   ErrorCode = "sender_account_ownership_mismatch"
	CodeReceiverAccountOwnership ErrorCode = "receiver_account_ownership_mismatch"
)

// ValidationError is an expected, caller-facing rejection. Nothing has been
// mutated when one is returned.
type ValidationError struct {
	Code    ErrorCode
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is matches on Code so wrapped copies still compare equal to the sentinels.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidCustomer = &ValidationError{CodeInvalidCustomer, "Invalid customer id"}
	ErrInvalidDeposit  = &ValidationError{CodeInvalidDeposit, "Initial deposit must be a number equal to or greater than zero"}
	ErrInvalidAmount   = &ValidationError{CodeInvalidAmount, "Transfer amount must be greater than zero"}

	// Transfer pipeline failures, in the order they are checked.
	ErrInvalidReceiverCustomer  = &ValidationError{CodeInvalidReceiverCustomer, "Invalid receiver id"}
	ErrInvalidSenderCustomer    = &ValidationError{CodeInvalidSenderCustomer, "Invalid sender id"}
	ErrSenderAccountNotFound    = &ValidationError{CodeSenderAccountNotFound, "Sender does not have an account with that id"}
	ErrReceiverAccountNotFound  = &ValidationError{CodeReceiverAccountNotFound, "Receiver does not have an account with that id"}
	ErrInsufficientFunds        = &ValidationError{CodeInsufficientFunds, "Insufficient funds"}
	ErrSenderAccountOwnership   = &ValidationError{CodeSenderAccountOwnership, "Sending bank account does not belong to sending customer"}
	ErrReceiverAccountOwnership = &ValidationError{CodeReceiverAccountOwnership, "Receiving bank account does not belong to receiving customer"}
)
