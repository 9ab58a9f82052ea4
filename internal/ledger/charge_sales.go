package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InsertChargeSale inserts a new PENDING charge sale row inside the
// caller's durable transaction, giving the client a durable handle even
// if the transfer later fails.
func (s *Store) InsertChargeSale(tx *sql.Tx, sale *ChargeSale) error {
	_, err := tx.Exec(`
		INSERT INTO charge_sales (id, user_id, phone_number, amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sale.ID.String(), sale.UserID, sale.PhoneNumber, sale.Amount.StringFixed(2),
		sale.Status, sale.CreatedAt.Unix(), sale.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert charge sale: %w", err)
	}
	return nil
}

// GetChargeSale retrieves a charge sale by id.
func (s *Store) GetChargeSale(id uuid.UUID) (*ChargeSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sale ChargeSale
	var idStr string
	var amountStr string
	var transactionID sql.NullString
	var createdAt, updatedAt int64

	err := s.db.QueryRow(`
		SELECT id, user_id, phone_number, amount, status, transaction_id, created_at, updated_at
		FROM charge_sales WHERE id = ?
	`, id.String()).Scan(&idStr, &sale.UserID, &sale.PhoneNumber, &amountStr, &sale.Status,
		&transactionID, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrChargeSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get charge sale: %w", err)
	}

	sale.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse charge sale id: %w", err)
	}
	sale.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse charge sale amount: %w", err)
	}
	if transactionID.Valid {
		tid, err := uuid.Parse(transactionID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse charge sale transaction id: %w", err)
		}
		sale.TransactionID = &tid
	}
	sale.CreatedAt = time.Unix(createdAt, 0)
	sale.UpdatedAt = time.Unix(updatedAt, 0)

	return &sale, nil
}

// UpdateChargeSale sets a charge sale's status and optional linked
// transaction id within the caller's durable transaction.
func (s *Store) UpdateChargeSale(tx *sql.Tx, id uuid.UUID, status ChargeSaleStatus, transactionID *uuid.UUID) error {
	now := time.Now()

	var transactionIDStr interface{}
	if transactionID != nil {
		transactionIDStr = transactionID.String()
	}

	result, err := tx.Exec(`
		UPDATE charge_sales SET status = ?, transaction_id = COALESCE(?, transaction_id), updated_at = ?
		WHERE id = ?
	`, status, transactionIDStr, now.Unix(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update charge sale: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrChargeSaleNotFound
	}
	return nil
}

// UpdateChargeSaleStandalone performs UpdateChargeSale outside of a
// durable-commit transaction, for marking a sale FAILED after
// compensation when no paired ledger mutation needs to land atomically
// with it.
func (s *Store) UpdateChargeSaleStandalone(id uuid.UUID, status ChargeSaleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.UpdateChargeSale(tx, id, status, nil); err != nil {
		return err
	}

	return tx.Commit()
}
