package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/m-azra3l/demo-credit-service/internal/middleware"
	"github.com/m-azra3l/demo-credit-service/internal/models"
)

// HistoryService is the read-only transaction history reader. It never
// mutates; a single statement gives the required read consistency.
type HistoryService struct {
	db *sql.DB
}

func NewHistoryService(db *sql.DB) *HistoryService {
	return &HistoryService{db: db}
}

// historyQuery walks entry -> transfer link (either side) -> counterpart
// entry -> counterpart identity and wallet. Fund and withdraw entries
// have no link and come back with NULL counterpart columns. The wallet
// join skips the deleted filter: history is display-only and the account
// number stays meaningful after the wallet is soft-deleted.
const historyQuery = `
SELECT ut.id, ut.amount, ut."userId", ut.type, ut.status, ut.direction, ut."createdAt", ut."updatedAt",
       cu.name, cw."accountNumber", cu.email
FROM user_transactions ut
LEFT JOIN transactions t
  ON t.deleted = FALSE
 AND (t."sourceTransactionId" = ut.id OR t."destinationTransactionId" = ut.id)
LEFT JOIN user_transactions cut
  ON cut.id = CASE WHEN t."sourceTransactionId" = ut.id
                   THEN t."destinationTransactionId"
                   ELSE t."sourceTransactionId" END
LEFT JOIN users cu ON cu.id = cut."userId" AND cu.deleted = FALSE
LEFT JOIN wallets cw ON cw."userId" = cut."userId"
WHERE ut."userId" = $1 AND ut.deleted = FALSE
ORDER BY ut."createdAt" DESC, ut.id DESC`

// GetHistory returns all non-deleted ledger entries for the user, each
// enriched with the counterpart account summary when the entry belongs
// to a transfer.
func (s *HistoryService) GetHistory(ctx context.Context, userID int64) ([]models.HistoryEntry, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND deleted = FALSE)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return nil, aborted(err)
	}
	if !exists {
		return nil, ErrAccountNotFound
	}

	rows, err := s.db.QueryContext(ctx, historyQuery, userID)
	if err != nil {
		return nil, aborted(err)
	}
	defer rows.Close()

	entries := make([]models.HistoryEntry, 0)
	for rows.Next() {
		var entry models.HistoryEntry
		var name, accountNumber, email sql.NullString
		if err := rows.Scan(
			&entry.ID, &entry.Amount, &entry.UserID, &entry.Type, &entry.Status, &entry.Direction,
			&entry.CreatedAt, &entry.UpdatedAt,
			&name, &accountNumber, &email,
		); err != nil {
			return nil, aborted(err)
		}
		// A summary with a blank account number is worse than none.
		if name.Valid && accountNumber.Valid {
			entry.Counterparty = &models.CounterpartySummary{
				Name:          name.String,
				AccountNumber: accountNumber.String,
				Email:         email.String,
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, aborted(err)
	}

	return entries, nil
}

// GetTransactionHistory returns the authenticated user's ledger entries
// @Summary Transaction history
// @Description List the user's ledger entries with transfer counterpart details
// @Tags transaction
// @Produce json
// @Success 200 {array} models.HistoryEntry "Ledger entries"
// @Failure 401 {string} string "Unauthorized"
// @Failure 404 {string} string "Account not found"
// @Router /transaction/history [get]
func (s *HistoryService) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := s.GetHistory(r.Context(), userID)
	if err != nil {
		if we, ok := AsWalletError(err); ok {
			SendErrorResponse(w, we.Message, we.Status, nil)
			return
		}
		log.Printf("[HISTORY] Failed to fetch history for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
