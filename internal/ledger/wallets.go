package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CreateWallet inserts a new wallet for the given account, balance 0.00
// and status ACTIVE.
func (s *Store) CreateWallet(accountID int64) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO wallets (account_id, balance, status, updated_at) VALUES (?, ?, ?, ?)
	`, accountID, decimal.Zero.StringFixed(2), WalletActive, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	return &Wallet{AccountID: accountID, Balance: decimal.Zero, Status: WalletActive, UpdatedAt: now}, nil
}

// GetWallet retrieves a wallet by account id.
func (s *Store) GetWallet(accountID int64) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getWalletLocked(s.db, accountID)
}

// getWalletLocked reads a wallet using the given queryer, which may be
// either the store's *sql.DB or an in-flight *sql.Tx.
func (s *Store) getWalletLocked(q queryer, accountID int64) (*Wallet, error) {
	var w Wallet
	var balanceStr string
	var updatedAt int64

	err := q.QueryRow(`
		SELECT account_id, balance, status, updated_at FROM wallets WHERE account_id = ?
	`, accountID).Scan(&w.AccountID, &balanceStr, &w.Status, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse wallet balance: %w", err)
	}
	w.Balance = balance
	w.UpdatedAt = time.Unix(updatedAt, 0)

	return &w, nil
}

// UpdateWalletBalance sets the durable balance for an account. Intended
// for use inside the transfer engine's durable commit transaction.
func (s *Store) UpdateWalletBalance(tx *sql.Tx, accountID int64, newBalance decimal.Decimal) error {
	now := time.Now()
	result, err := tx.Exec(`
		UPDATE wallets SET balance = ?, updated_at = ? WHERE account_id = ?
	`, newBalance.StringFixed(2), now.Unix(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}
