package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CreateCreditRequest inserts a new WAITING credit request.
func (s *Store) CreateCreditRequest(userID int64, amount decimal.Decimal) (*CreditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO credit_requests (user_id, amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, amount.StringFixed(2), CreditRequestWaiting, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create credit request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read credit request id: %w", err)
	}

	return &CreditRequest{
		ID: id, UserID: userID, Amount: amount, Status: CreditRequestWaiting,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// GetCreditRequest retrieves a credit request by id.
func (s *Store) GetCreditRequest(id int64) (*CreditRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cr CreditRequest
	var amountStr string
	var adminID sql.NullInt64
	var createdAt, updatedAt int64

	err := s.db.QueryRow(`
		SELECT id, user_id, amount, status, admin_id, created_at, updated_at
		FROM credit_requests WHERE id = ?
	`, id).Scan(&cr.ID, &cr.UserID, &amountStr, &cr.Status, &adminID, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrCreditRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credit request: %w", err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credit request amount: %w", err)
	}
	cr.Amount = amount
	if adminID.Valid {
		v := adminID.Int64
		cr.AdminID = &v
	}
	cr.CreatedAt = time.Unix(createdAt, 0)
	cr.UpdatedAt = time.Unix(updatedAt, 0)

	return &cr, nil
}

// TransitionCreditRequest moves a credit request from one status to
// another, stamping admin if non-nil. It fails with ErrPreconditionFailed
// if the request's current status is not `from`, enforcing the
// single-winner rule for concurrent processors.
func (s *Store) TransitionCreditRequest(tx *sql.Tx, id int64, from, to CreditRequestStatus, adminID *int64) error {
	now := time.Now()

	result, err := tx.Exec(`
		UPDATE credit_requests SET status = ?, admin_id = COALESCE(?, admin_id), updated_at = ?
		WHERE id = ? AND status = ?
	`, to, adminID, now.Unix(), id, from)
	if err != nil {
		return fmt.Errorf("failed to transition credit request: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

// TransitionCreditRequestStandalone performs TransitionCreditRequest
// outside of a durable-commit transaction, for the reject path which has
// no paired ledger entries.
func (s *Store) TransitionCreditRequestStandalone(id int64, from, to CreditRequestStatus, adminID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.TransitionCreditRequest(tx, id, from, to, adminID); err != nil {
		return err
	}

	return tx.Commit()
}
