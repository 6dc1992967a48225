package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds the persisted monetary state for one user. Balance and loan
// are NUMERIC(14,2) columns; available balance (balance - loan) is derived
// and never stored.
type Wallet struct {
	ID            int64           `json:"id" db:"id"`
	UserID        int64           `json:"userId" db:"userId"`
	AccountNumber string          `json:"accountNumber" db:"accountNumber"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	Loan          decimal.Decimal `json:"loan" db:"loan"`
	CreatedAt     time.Time       `json:"createdAt" db:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updatedAt"`
	Deleted       bool            `json:"deleted" db:"deleted"`
}

// Available returns balance minus outstanding loan, the amount eligible
// for debit operations.
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.Loan)
}

// Account is the externally visible projection of a user and their wallet.
type Account struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	AccountNumber string          `json:"accountNumber"`
	Email         string          `json:"email"`
	Balance       decimal.Decimal `json:"balance"`
	Loan          decimal.Decimal `json:"loan"`
	Available     decimal.Decimal `json:"available"`
}

// ProjectAccount builds the account view from a user and their wallet.
func ProjectAccount(user *User, wallet *Wallet) *Account {
	return &Account{
		ID:            user.ID,
		Name:          user.Name,
		AccountNumber: wallet.AccountNumber,
		Email:         user.Email,
		Balance:       wallet.Balance,
		Loan:          wallet.Loan,
		Available:     wallet.Available(),
	}
}
