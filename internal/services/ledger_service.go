package services

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/m-azra3l/demo-credit-service/internal/models"
)

// WalletLedgerService is the transaction engine. Every operation runs as
// one database transaction: wallet rows are locked with SELECT ... FOR
// UPDATE before any sufficiency decision, ledger entries are created
// pending and finalized in the same transaction, and an abort leaves no
// partial state. The single deliberate exception: an insufficiency
// failure commits its failed ledger entry as an audit record.
type WalletLedgerService struct {
	db *sql.DB
}

func NewWalletLedgerService(db *sql.DB) *WalletLedgerService {
	return &WalletLedgerService{db: db}
}

// validAmount is the engine's amount precondition: positive, at most two
// decimal places. The money columns are NUMERIC(14,2); a sub-cent amount
// would round differently in the ledger entry, the balance delta and the
// returned snapshot.
func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Exponent() >= -2
}

// FundWallet credits amount to the user's wallet. No sufficiency check
// applies to funding.
func (s *WalletLedgerService) FundWallet(ctx context.Context, userID int64, amount decimal.Decimal) (*models.Account, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	opID := uuid.NewString()
	log.Printf("[LEDGER] op=%s fund user=%d amount=%s", opID, userID, amount)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, aborted(err)
	}
	defer tx.Rollback()

	wallet, err := s.lockWalletByUserID(tx, userID)
	if err != nil {
		return nil, err
	}

	entryID, err := s.createEntry(tx, userID, amount, models.TransactionTypeFund, models.DirectionCredit)
	if err != nil {
		return nil, aborted(err)
	}

	if err := s.creditWallet(tx, wallet.ID, amount); err != nil {
		return nil, aborted(err)
	}

	if err := s.finalizeEntry(tx, entryID, models.StatusSuccess); err != nil {
		return nil, aborted(err)
	}

	user, err := s.getUser(tx, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, aborted(err)
	}

	wallet.Balance = wallet.Balance.Add(amount)
	log.Printf("[LEDGER] op=%s fund committed user=%d entry=%d balance=%s", opID, userID, entryID, wallet.Balance)
	return models.ProjectAccount(user, wallet), nil
}

// WithdrawFunds debits amount from the user's wallet when the available
// balance (balance minus loan) covers it. An insufficient balance still
// commits the ledger entry, finalized as failed, before reporting
// ErrInsufficientFunds.
func (s *WalletLedgerService) WithdrawFunds(ctx context.Context, userID int64, amount decimal.Decimal) (*models.Account, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	opID := uuid.NewString()
	log.Printf("[LEDGER] op=%s withdraw user=%d amount=%s", opID, userID, amount)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, aborted(err)
	}
	defer tx.Rollback()

	wallet, err := s.lockWalletByUserID(tx, userID)
	if err != nil {
		return nil, err
	}

	entryID, err := s.createEntry(tx, userID, amount, models.TransactionTypeWithdraw, models.DirectionDebit)
	if err != nil {
		return nil, aborted(err)
	}

	// The sufficiency decision reads the locked row, so a concurrent
	// debit on the same wallet is observed before this one proceeds.
	if wallet.Available().LessThan(amount) {
		if err := s.finalizeEntry(tx, entryID, models.StatusFailed); err != nil {
			return nil, aborted(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, aborted(err)
		}
		log.Printf("[LEDGER] op=%s withdraw insufficient user=%d available=%s entry=%d", opID, userID, wallet.Available(), entryID)
		return nil, ErrInsufficientFunds
	}

	if err := s.debitWallet(tx, wallet.ID, amount); err != nil {
		return nil, aborted(err)
	}

	if err := s.finalizeEntry(tx, entryID, models.StatusSuccess); err != nil {
		return nil, aborted(err)
	}

	user, err := s.getUser(tx, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, aborted(err)
	}

	wallet.Balance = wallet.Balance.Sub(amount)
	log.Printf("[LEDGER] op=%s withdraw committed user=%d entry=%d balance=%s", opID, userID, entryID, wallet.Balance)
	return models.ProjectAccount(user, wallet), nil
}

// TransferFunds moves amount from the sender's wallet to the wallet
// identified by accountNumber. Both ledger entries are created pending;
// on insufficiency both are finalized failed and committed together. On
// success both legs are finalized and joined by a transfer link row.
func (s *WalletLedgerService) TransferFunds(ctx context.Context, senderUserID int64, accountNumber string, amount decimal.Decimal) (*models.Account, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	opID := uuid.NewString()
	log.Printf("[LEDGER] op=%s transfer user=%d to=%s amount=%s", opID, senderUserID, accountNumber, amount)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, aborted(err)
	}
	defer tx.Rollback()

	senderWalletID, senderAccountNumber, err := s.resolveWalletByUserID(tx, senderUserID)
	if err != nil {
		return nil, err
	}

	if senderAccountNumber == accountNumber {
		return nil, ErrSelfTransfer
	}

	recipientWalletID, recipientUserID, err := s.resolveWalletByAccountNumber(tx, accountNumber)
	if err != nil {
		return nil, err
	}

	// Lock both wallets in ascending id order so opposite-direction
	// transfers between the same pair cannot deadlock.
	firstLock, secondLock := senderWalletID, recipientWalletID
	if firstLock > secondLock {
		firstLock, secondLock = secondLock, firstLock
	}

	// A wallet can be soft-deleted between resolution and locking; a
	// not-found on the recipient's row is still a counterparty failure.
	firstWallet, err := s.lockWallet(tx, firstLock)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) && firstLock == recipientWalletID {
			return nil, ErrCounterpartyNotFound
		}
		return nil, err
	}
	secondWallet, err := s.lockWallet(tx, secondLock)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) && secondLock == recipientWalletID {
			return nil, ErrCounterpartyNotFound
		}
		return nil, err
	}

	senderWallet, recipientWallet := firstWallet, secondWallet
	if firstWallet.ID != senderWalletID {
		senderWallet, recipientWallet = secondWallet, firstWallet
	}

	debitEntryID, err := s.createEntry(tx, senderUserID, amount, models.TransactionTypeTransfer, models.DirectionDebit)
	if err != nil {
		return nil, aborted(err)
	}
	creditEntryID, err := s.createEntry(tx, recipientUserID, amount, models.TransactionTypeTransfer, models.DirectionCredit)
	if err != nil {
		return nil, aborted(err)
	}

	if senderWallet.Available().LessThan(amount) {
		// Finalize both legs; no entry is ever left pending.
		if err := s.finalizeEntry(tx, debitEntryID, models.StatusFailed); err != nil {
			return nil, aborted(err)
		}
		if err := s.finalizeEntry(tx, creditEntryID, models.StatusFailed); err != nil {
			return nil, aborted(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, aborted(err)
		}
		log.Printf("[LEDGER] op=%s transfer insufficient user=%d available=%s", opID, senderUserID, senderWallet.Available())
		return nil, ErrInsufficientFunds
	}

	if err := s.debitWallet(tx, senderWallet.ID, amount); err != nil {
		return nil, aborted(err)
	}
	if err := s.creditWallet(tx, recipientWallet.ID, amount); err != nil {
		return nil, aborted(err)
	}

	if err := s.finalizeEntry(tx, debitEntryID, models.StatusSuccess); err != nil {
		return nil, aborted(err)
	}
	if err := s.finalizeEntry(tx, creditEntryID, models.StatusSuccess); err != nil {
		return nil, aborted(err)
	}

	if err := s.createTransferLink(tx, debitEntryID, creditEntryID); err != nil {
		return nil, aborted(err)
	}

	user, err := s.getUser(tx, senderUserID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, aborted(err)
	}

	senderWallet.Balance = senderWallet.Balance.Sub(amount)
	log.Printf("[LEDGER] op=%s transfer committed user=%d entries=%d/%d", opID, senderUserID, debitEntryID, creditEntryID)
	return models.ProjectAccount(user, senderWallet), nil
}

func (s *WalletLedgerService) resolveWalletByUserID(tx *sql.Tx, userID int64) (walletID int64, accountNumber string, err error) {
	err = tx.QueryRow(
		`SELECT id, "accountNumber" FROM wallets WHERE "userId" = $1 AND deleted = FALSE`,
		userID,
	).Scan(&walletID, &accountNumber)
	if err == sql.ErrNoRows {
		return 0, "", ErrAccountNotFound
	}
	if err != nil {
		return 0, "", aborted(err)
	}
	return walletID, accountNumber, nil
}

func (s *WalletLedgerService) resolveWalletByAccountNumber(tx *sql.Tx, accountNumber string) (walletID, userID int64, err error) {
	err = tx.QueryRow(
		`SELECT id, "userId" FROM wallets WHERE "accountNumber" = $1 AND deleted = FALSE`,
		accountNumber,
	).Scan(&walletID, &userID)
	if err == sql.ErrNoRows {
		return 0, 0, ErrCounterpartyNotFound
	}
	if err != nil {
		return 0, 0, aborted(err)
	}
	return walletID, userID, nil
}

// lockWallet acquires a row lock on the wallet and returns its state as
// of lock acquisition, so the caller's sufficiency decision observes any
// previously committed debit.
func (s *WalletLedgerService) lockWallet(tx *sql.Tx, walletID int64) (*models.Wallet, error) {
	var wallet models.Wallet
	err := tx.QueryRow(
		`SELECT id, "userId", "accountNumber", balance, loan FROM wallets WHERE id = $1 AND deleted = FALSE FOR UPDATE`,
		walletID,
	).Scan(&wallet.ID, &wallet.UserID, &wallet.AccountNumber, &wallet.Balance, &wallet.Loan)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, aborted(err)
	}
	return &wallet, nil
}

func (s *WalletLedgerService) lockWalletByUserID(tx *sql.Tx, userID int64) (*models.Wallet, error) {
	var wallet models.Wallet
	err := tx.QueryRow(
		`SELECT id, "userId", "accountNumber", balance, loan FROM wallets WHERE "userId" = $1 AND deleted = FALSE FOR UPDATE`,
		userID,
	).Scan(&wallet.ID, &wallet.UserID, &wallet.AccountNumber, &wallet.Balance, &wallet.Loan)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, aborted(err)
	}
	return &wallet, nil
}

func (s *WalletLedgerService) createEntry(tx *sql.Tx, userID int64, amount decimal.Decimal, txType, direction string) (int64, error) {
	var entryID int64
	err := tx.QueryRow(
		`INSERT INTO user_transactions (amount, "userId", type, status, direction) VALUES ($1, $2, $3, 'pending', $4) RETURNING id`,
		amount, userID, txType, direction,
	).Scan(&entryID)
	return entryID, err
}

// finalizeEntry moves a pending entry to its terminal status. The status
// guard in the WHERE clause keeps the transition one-way.
func (s *WalletLedgerService) finalizeEntry(tx *sql.Tx, entryID int64, status string) error {
	result, err := tx.Exec(
		`UPDATE user_transactions SET status = $1 WHERE id = $2 AND status = 'pending'`,
		status, entryID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *WalletLedgerService) creditWallet(tx *sql.Tx, walletID int64, amount decimal.Decimal) error {
	_, err := tx.Exec(
		`UPDATE wallets SET balance = balance + $1 WHERE id = $2`,
		amount, walletID,
	)
	return err
}

func (s *WalletLedgerService) debitWallet(tx *sql.Tx, walletID int64, amount decimal.Decimal) error {
	_, err := tx.Exec(
		`UPDATE wallets SET balance = balance - $1 WHERE id = $2`,
		amount, walletID,
	)
	return err
}

func (s *WalletLedgerService) createTransferLink(tx *sql.Tx, sourceEntryID, destinationEntryID int64) error {
	_, err := tx.Exec(
		`INSERT INTO transactions ("sourceTransactionId", "destinationTransactionId") VALUES ($1, $2)`,
		sourceEntryID, destinationEntryID,
	)
	return err
}

func (s *WalletLedgerService) getUser(tx *sql.Tx, userID int64) (*models.User, error) {
	var user models.User
	err := tx.QueryRow(
		`SELECT id, name, email FROM users WHERE id = $1 AND deleted = FALSE`,
		userID,
	).Scan(&user.ID, &user.Name, &user.Email)
	if err == sql.ErrNoRows {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, aborted(err)
	}
	return &user, nil
}
