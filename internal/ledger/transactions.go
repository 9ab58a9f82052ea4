package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InsertTransaction inserts an immutable ledger entry. Returns
// ErrDuplicateTransaction if the id already exists.
func (s *Store) InsertTransaction(tx *sql.Tx, entry *Transaction) error {
	_, err := tx.Exec(`
		INSERT INTO transactions (
			id, seller_id, type, amount, balance_before, balance_after,
			reference_id, description, admin_user_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID.String(), entry.SellerID, entry.Type,
		entry.Amount.StringFixed(2), entry.BalanceBefore.StringFixed(2), entry.BalanceAfter.StringFixed(2),
		entry.ReferenceID, entry.Description, entry.AdminUserID, entry.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a ledger entry by id.
func (s *Store) GetTransaction(id uuid.UUID) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanTransactionRow(s.db.QueryRow(`
		SELECT id, seller_id, type, amount, balance_before, balance_after,
			reference_id, description, admin_user_id, created_at
		FROM transactions WHERE id = ?
	`, id.String()))
}

// ListTransactionsByReference returns all ledger entries for a given
// ChargeSale or CreditRequest reference id, used by invariant checks and
// balance reconstruction.
func (s *Store) ListTransactionsByReference(referenceID string) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, seller_id, type, amount, balance_before, balance_after,
			reference_id, description, admin_user_id, created_at
		FROM transactions WHERE reference_id = ? ORDER BY created_at ASC
	`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		t, err := s.scanTransactionRowCols(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// SumWalletBalance reconstructs a wallet's balance from the sum of its
// ledger entries.
func (s *Store) SumWalletBalance(accountID int64) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT amount FROM transactions WHERE seller_id = ?`, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum wallet balance: %w", err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var amountStr string
		if err := rows.Scan(&amountStr); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse amount: %w", err)
		}
		sum = sum.Add(amount)
	}
	return sum, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanTransactionRow(row *sql.Row) (*Transaction, error) {
	t, err := s.scanTransactionRowCols(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction not found: %w", err)
	}
	return t, err
}

func (s *Store) scanTransactionRowCols(scanner rowScanner) (*Transaction, error) {
	var t Transaction
	var idStr string
	var amountStr, balanceBeforeStr, balanceAfterStr string
	var description sql.NullString
	var adminUserID sql.NullInt64
	var createdAt int64

	err := scanner.Scan(
		&idStr, &t.SellerID, &t.Type, &amountStr, &balanceBeforeStr, &balanceAfterStr,
		&t.ReferenceID, &description, &adminUserID, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction id: %w", err)
	}
	t.ID = id

	if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	if t.BalanceBefore, err = decimal.NewFromString(balanceBeforeStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance_before: %w", err)
	}
	if t.BalanceAfter, err = decimal.NewFromString(balanceAfterStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance_after: %w", err)
	}
	if description.Valid {
		t.Description = description.String
	}
	if adminUserID.Valid {
		v := adminUserID.Int64
		t.AdminUserID = &v
	}
	t.CreatedAt = time.Unix(createdAt, 0)

	return &t, nil
}
