package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"

	"github.com/m-azra3l/demo-credit-service/internal/middleware"
	"github.com/m-azra3l/demo-credit-service/internal/models"
)

// AccountService serves the projected account view: user identity joined
// with wallet state, available balance computed on the way out.
type AccountService struct {
	db *sql.DB
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{db: db}
}

// GetAccount projects the account for a user. The wallet must resolve
// (ErrAccountNotFound otherwise) and so must the owning identity
// (ErrIdentityNotFound).
func (s *AccountService) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	var user models.User
	var wallet models.Wallet

	err := s.db.QueryRowContext(ctx,
		`SELECT w.id, w."userId", w."accountNumber", w.balance, w.loan FROM wallets w WHERE w."userId" = $1 AND w.deleted = FALSE`,
		userID,
	).Scan(&wallet.ID, &wallet.UserID, &wallet.AccountNumber, &wallet.Balance, &wallet.Loan)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, aborted(err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, email FROM users WHERE id = $1 AND deleted = FALSE`,
		userID,
	).Scan(&user.ID, &user.Name, &user.Email)
	if err == sql.ErrNoRows {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, aborted(err)
	}

	return models.ProjectAccount(&user, &wallet), nil
}

// GetUserAccount returns the authenticated user's projected account
// @Summary Get account
// @Description Get the authenticated user's account with balance, loan and available funds
// @Tags account
// @Produce json
// @Success 200 {object} models.Account "Account view"
// @Failure 401 {string} string "Unauthorized"
// @Failure 404 {string} string "Account not found"
// @Router /account [get]
func (s *AccountService) GetUserAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	account, err := s.GetAccount(r.Context(), userID)
	if err != nil {
		if we, ok := AsWalletError(err); ok {
			SendErrorResponse(w, we.Message, we.Status, nil)
			return
		}
		log.Printf("[ACCOUNT] Failed to project account for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

const accountNumberAttempts = 5

func generateAccountNumber() string {
	const digits = "0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = digits[rand.Intn(len(digits))]
	}
	return string(b)
}

// uniqueAccountNumber generates a 10-digit account number and verifies it
// against the wallets unique index, retrying on collision. The timestamp
// suffix scheme some ledgers use collides under concurrent signups;
// random digits with a verification read do not.
func uniqueAccountNumber(tx *sql.Tx) (string, error) {
	for i := 0; i < accountNumberAttempts; i++ {
		candidate := generateAccountNumber()
		var exists bool
		if err := tx.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM wallets WHERE "accountNumber" = $1)`,
			candidate,
		).Scan(&exists); err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrTransactionAborted
}
