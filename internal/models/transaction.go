package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types
const (
	TransactionTypeFund     = "fund"
	TransactionTypeWithdraw = "withdraw"
	TransactionTypeTransfer = "transfer"
)

// Entry directions
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Entry statuses. An entry starts pending and moves exactly once to
// success or failed; it never reverts.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// UserTransaction is one immutable ledger entry: a single-account
// balance-affecting attempt. Failed entries are kept as audit records.
type UserTransaction struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int64           `json:"userId" db:"userId"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Type      string          `json:"type" db:"type"`
	Status    string          `json:"status" db:"status"`
	Direction string          `json:"direction" db:"direction"`
	CreatedAt time.Time       `json:"createdAt" db:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updatedAt"`
	Deleted   bool            `json:"deleted" db:"deleted"`
}

// TransferLink pairs the debit and credit ledger entries of one transfer.
// It exists only for transfers where both legs reached success.
type TransferLink struct {
	ID                       int64     `json:"id" db:"id"`
	SourceTransactionID      int64     `json:"sourceTransactionId" db:"sourceTransactionId"`
	DestinationTransactionID int64     `json:"destinationTransactionId" db:"destinationTransactionId"`
	CreatedAt                time.Time `json:"createdAt" db:"createdAt"`
	UpdatedAt                time.Time `json:"updatedAt" db:"updatedAt"`
	Deleted                  bool      `json:"deleted" db:"deleted"`
}

// CounterpartySummary is the public slice of the account on the other
// side of a transfer.
type CounterpartySummary struct {
	Name          string `json:"name"`
	AccountNumber string `json:"accountNumber"`
	Email         string `json:"email"`
}

// HistoryEntry is a ledger entry enriched with its transfer counterpart,
// when one exists. Fund and withdraw entries carry no counterparty.
type HistoryEntry struct {
	UserTransaction
	Counterparty *CounterpartySummary `json:"counterparty,omitempty"`
}
