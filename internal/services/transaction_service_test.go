package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/m-azra3l/demo-credit-service/internal/middleware"
	"github.com/m-azra3l/demo-credit-service/internal/models"
)

func newTransactionTestRequest(t *testing.T, path, body string, userID int64) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	return req
}

func TestTransactionService_FundWallet(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewTransactionService(db)
		w := httptest.NewRecorder()
		service.FundWallet(w, newTransactionTestRequest(t, "/transaction/fund", `{"amount": "100.00"}`, 0))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects amount below the minimum", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewTransactionService(db)
		w := httptest.NewRecorder()
		service.FundWallet(w, newTransactionTestRequest(t, "/transaction/fund", `{"amount": "0"}`, 7))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Amount must be at least 0.01", resp.Error)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewTransactionService(db)
		w := httptest.NewRecorder()
		service.FundWallet(w, newTransactionTestRequest(t, "/transaction/fund", `{"amount": "100.00", "extra": true}`, 7))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("returns the updated account on success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		amount := decimal.RequireFromString("100.00")
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockWalletByUserQuery)).
			WithArgs(int64(7)).
			WillReturnRows(walletRows(3, 7, "9678758461", "50.00", "0.00"))
		mock.ExpectQuery(regexp.QuoteMeta(createEntryQuery)).
			WithArgs(amount, int64(7), "fund", "credit").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(61))
		mock.ExpectExec(regexp.QuoteMeta(creditWalletQuery)).
			WithArgs(amount, int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(finalizeEntryQuery)).
			WithArgs("success", int64(61)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(getUserQuery)).
			WithArgs(int64(7)).
			WillReturnRows(userRows(7, "Jane Doe", "jane@example.com"))
		mock.ExpectCommit()

		service := NewTransactionService(db)
		w := httptest.NewRecorder()
		service.FundWallet(w, newTransactionTestRequest(t, "/transaction/fund", `{"amount": "100.00"}`, 7))

		assert.Equal(t, http.StatusOK, w.Code)

		var account models.Account
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&account))
		assert.Equal(t, "Jane Doe", account.Name)
		assert.True(t, account.Balance.Equal(decimal.RequireFromString("150.00")))
		assert.True(t, account.Available.Equal(decimal.RequireFromString("150.00")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionService_WithdrawFunds(t *testing.T) {
	t.Run("rejects amount below the minimum", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewTransactionService(db)
		w := httptest.NewRecorder()
		service.WithdrawFunds(w, newTransactionTestRequest(t, "/transaction/withdraw", `{"amount": "9.99"}`, 7))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Amount must be at least 10.00", resp.Error)
	})

	t.Run("rejects sub-cent amounts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		// 10.005 clears the 10.00 floor but carries a third decimal
		// place, which the engine refuses before opening a transaction.
		service := NewTransactionService(db)
		w := httptest.NewRecorder()
		service.WithdrawFunds(w, newTransactionTestRequest(t, "/transaction/withdraw", `{"amount": "10.005"}`, 7))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "INVALID_AMOUNT", resp.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps insufficient funds to a 400 with its code", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		amount := decimal.RequireFromString("500.00")
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockWalletByUserQuery)).
			WithArgs(int64(7)).
			WillReturnRows(walletRows(3, 7, "9678758461", "100.00", "0.00"))
		mock.ExpectQuery(regexp.QuoteMeta(createEntryQuery)).
			WithArgs(amount, int64(7), "withdraw", "debit").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(62))
		mock.ExpectExec(regexp.QuoteMeta(finalizeEntryQuery)).
			WithArgs("failed", int64(62)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		service := NewTransactionService(db)
		w := httptest.NewRecorder()
		service.WithdrawFunds(w, newTransactionTestRequest(t, "/transaction/withdraw", `{"amount": "500.00"}`, 7))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "INSUFFICIENT_FUNDS", resp.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps a missing wallet to a 404", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockWalletByUserQuery)).
			WithArgs(int64(7)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		service := NewTransactionService(db)
		w := httptest.NewRecorder()
		service.WithdrawFunds(w, newTransactionTestRequest(t, "/transaction/withdraw", `{"amount": "50.00"}`, 7))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionService_TransferFunds(t *testing.T) {
	t.Run("validates the recipient account number", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewTransactionService(db)
		w := httptest.NewRecorder()
		service.TransferFunds(w, newTransactionTestRequest(t, "/transaction/transfer", `{"accountNumber": "12345", "amount": "50.00"}`, 7))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Validation failed", resp.Error)
		assert.Contains(t, resp.Details, "AccountNumber")
	})

	t.Run("maps a self transfer to a 400 with its code", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(resolveByUserQuery)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "accountNumber"}).AddRow(3, "9678758461"))
		mock.ExpectRollback()

		service := NewTransactionService(db)
		w := httptest.NewRecorder()
		service.TransferFunds(w, newTransactionTestRequest(t, "/transaction/transfer", `{"accountNumber": "9678758461", "amount": "50.00"}`, 7))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "SELF_TRANSFER", resp.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps an unknown recipient to a 404", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(resolveByUserQuery)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "accountNumber"}).AddRow(3, "9678758461"))
		mock.ExpectQuery(regexp.QuoteMeta(resolveByAccountQuery)).
			WithArgs("0000000000").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		service := NewTransactionService(db)
		w := httptest.NewRecorder()
		service.TransferFunds(w, newTransactionTestRequest(t, "/transaction/transfer", `{"accountNumber": "0000000000", "amount": "50.00"}`, 7))

		assert.Equal(t, http.StatusNotFound, w.Code)

		var resp ErrorResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "COUNTERPARTY_NOT_FOUND", resp.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
