package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind tells the boundary layer whether retrying with different
// input can help (client) or whether the failure is on our side (server).
type ErrorKind string

const (
	ErrorKindClient ErrorKind = "client"
	ErrorKindServer ErrorKind = "server"
)

// WalletError is a terminal, non-retryable failure from the wallet
// ledger. The engine never retries; Status is the transport mapping used
// by the HTTP layer.
type WalletError struct {
	Code    string
	Message string
	Kind    ErrorKind
	Status  int
	cause   error
}

func (e *WalletError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *WalletError) Unwrap() error { return e.cause }

// Is lets wrapped copies match their sentinel via errors.Is.
func (e *WalletError) Is(target error) bool {
	t, ok := target.(*WalletError)
	return ok && t.Code == e.Code
}

var (
	ErrAccountNotFound = &WalletError{
		Code:    "ACCOUNT_NOT_FOUND",
		Message: "account not found",
		Kind:    ErrorKindClient,
		Status:  http.StatusNotFound,
	}
	ErrCounterpartyNotFound = &WalletError{
		Code:    "COUNTERPARTY_NOT_FOUND",
		Message: "recipient account not found",
		Kind:    ErrorKindClient,
		Status:  http.StatusNotFound,
	}
	ErrInsufficientFunds = &WalletError{
		Code:    "INSUFFICIENT_FUNDS",
		Message: "insufficient funds: you do not have available funds to perform this operation",
		Kind:    ErrorKindClient,
		Status:  http.StatusBadRequest,
	}
	ErrSelfTransfer = &WalletError{
		Code:    "SELF_TRANSFER",
		Message: "cannot transfer to your own account",
		Kind:    ErrorKindClient,
		Status:  http.StatusBadRequest,
	}
	ErrIdentityNotFound = &WalletError{
		Code:    "IDENTITY_NOT_FOUND",
		Message: "owning identity record not found",
		Kind:    ErrorKindServer,
		Status:  http.StatusNotFound,
	}
	ErrTransactionAborted = &WalletError{
		Code:    "TRANSACTION_ABORTED",
		Message: "transaction aborted",
		Kind:    ErrorKindServer,
		Status:  http.StatusInternalServerError,
	}
	ErrInvalidAmount = &WalletError{
		Code:    "INVALID_AMOUNT",
		Message: "amount must be positive with at most two decimal places",
		Kind:    ErrorKindClient,
		Status:  http.StatusBadRequest,
	}
)

// aborted wraps an infrastructure error into ErrTransactionAborted while
// keeping the cause reachable through errors.Unwrap.
func aborted(cause error) *WalletError {
	return &WalletError{
		Code:    ErrTransactionAborted.Code,
		Message: ErrTransactionAborted.Message,
		Kind:    ErrTransactionAborted.Kind,
		Status:  ErrTransactionAborted.Status,
		cause:   cause,
	}
}

// AsWalletError extracts a *WalletError from err, if present.
func AsWalletError(err error) (*WalletError, bool) {
	var we *WalletError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
