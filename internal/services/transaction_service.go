package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/m-azra3l/demo-credit-service/internal/middleware"
	"github.com/m-azra3l/demo-credit-service/internal/models"
)

// Payload floors. The engine itself only requires a positive amount;
// these minimums are boundary policy, matching the original API contract.
var (
	minFundAmount  = decimal.RequireFromString("0.01")
	minDebitAmount = decimal.RequireFromString("10.00")
)

// TransactionService is the HTTP boundary over the wallet ledger engine.
type TransactionService struct {
	engine    *WalletLedgerService
	validator *ValidationHelper
}

// FundRequest represents the fund wallet payload
// @Description Fund wallet request structure
type FundRequest struct {
	Amount decimal.Decimal `json:"amount" example:"100.00"` // Amount to credit, minimum 0.01
}

// WithdrawRequest represents the withdrawal payload
// @Description Withdraw request structure
type WithdrawRequest struct {
	Amount decimal.Decimal `json:"amount" example:"50.00"` // Amount to debit, minimum 10.00
}

// TransferRequest represents the transfer payload
// @Description Transfer request structure
type TransferRequest struct {
	AccountNumber string          `json:"accountNumber" validate:"required,len=10" example:"9678758461"` // Recipient account number
	Amount        decimal.Decimal `json:"amount" example:"25.00"`                                        // Amount to transfer, minimum 10.00
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{
		engine:    NewWalletLedgerService(db),
		validator: NewValidationHelper(),
	}
}

func (ts *TransactionService) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	return true
}

func (ts *TransactionService) writeAccount(w http.ResponseWriter, account *models.Account) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

func (ts *TransactionService) writeFailure(w http.ResponseWriter, operation string, err error) {
	if we, ok := AsWalletError(err); ok {
		if we.Kind == ErrorKindServer {
			log.Printf("[TRANSACTION] %s failed: %v", operation, err)
		}
		SendWalletError(w, we)
		return
	}
	log.Printf("[TRANSACTION] %s failed with unexpected error: %v", operation, err)
	SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
}

// FundWallet credits the authenticated user's wallet
// @Summary Fund wallet
// @Description Credit the wallet and record a fund ledger entry
// @Tags transaction
// @Accept json
// @Produce json
// @Param request body FundRequest true "Fund request"
// @Success 200 {object} models.Account "Updated account"
// @Failure 400 {object} ErrorResponse "Invalid amount"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Failure 500 {object} ErrorResponse "Transaction aborted"
// @Router /transaction/fund [post]
func (ts *TransactionService) FundWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req FundRequest
	if !ts.decodeBody(w, r, &req) {
		return
	}

	if req.Amount.LessThan(minFundAmount) {
		SendErrorResponse(w, "Amount must be at least 0.01", http.StatusBadRequest, nil)
		return
	}

	account, err := ts.engine.FundWallet(r.Context(), userID, req.Amount)
	if err != nil {
		ts.writeFailure(w, "fund", err)
		return
	}

	ts.writeAccount(w, account)
}

// WithdrawFunds debits the authenticated user's wallet
// @Summary Withdraw funds
// @Description Debit the wallet when available balance covers the amount
// @Tags transaction
// @Accept json
// @Produce json
// @Param request body WithdrawRequest true "Withdraw request"
// @Success 200 {object} models.Account "Updated account"
// @Failure 400 {object} ErrorResponse "Invalid amount or insufficient funds"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Failure 500 {object} ErrorResponse "Transaction aborted"
// @Router /transaction/withdraw [post]
func (ts *TransactionService) WithdrawFunds(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req WithdrawRequest
	if !ts.decodeBody(w, r, &req) {
		return
	}

	if req.Amount.LessThan(minDebitAmount) {
		SendErrorResponse(w, "Amount must be at least 10.00", http.StatusBadRequest, nil)
		return
	}

	account, err := ts.engine.WithdrawFunds(r.Context(), userID, req.Amount)
	if err != nil {
		ts.writeFailure(w, "withdraw", err)
		return
	}

	ts.writeAccount(w, account)
}

// TransferFunds moves funds to another account
// @Summary Transfer funds
// @Description Transfer to another account by account number
// @Tags transaction
// @Accept json
// @Produce json
// @Param request body TransferRequest true "Transfer request"
// @Success 200 {object} models.Account "Updated sender account"
// @Failure 400 {object} ErrorResponse "Invalid payload, self transfer or insufficient funds"
// @Failure 404 {object} ErrorResponse "Recipient not found"
// @Failure 500 {object} ErrorResponse "Transaction aborted"
// @Router /transaction/transfer [post]
func (ts *TransactionService) TransferFunds(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req TransferRequest
	if !ts.decodeBody(w, r, &req) {
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Amount.LessThan(minDebitAmount) {
		SendErrorResponse(w, "Amount must be at least 10.00", http.StatusBadRequest, nil)
		return
	}

	account, err := ts.engine.TransferFunds(r.Context(), userID, req.AccountNumber, req.Amount)
	if err != nil {
		ts.writeFailure(w, "transfer", err)
		return
	}

	ts.writeAccount(w, account)
}
