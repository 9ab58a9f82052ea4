package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateAccount inserts a new account with the given phone number and
// role. Returns ErrDuplicatePhoneNumber if the phone number is already
// registered.
func (s *Store) CreateAccount(phoneNumber string, role Role) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO accounts (phone_number, role, created_at) VALUES (?, ?, ?)
	`, phoneNumber, role, now.Unix())
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, ErrDuplicatePhoneNumber
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read account id: %w", err)
	}

	return &Account{ID: id, PhoneNumber: phoneNumber, Role: role, CreatedAt: now}, nil
}

// GetAccountByPhone retrieves an account by phone number.
func (s *Store) GetAccountByPhone(phoneNumber string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var acct Account
	var createdAt int64

	err := s.db.QueryRow(`
		SELECT id, phone_number, role, created_at FROM accounts WHERE phone_number = ?
	`, phoneNumber).Scan(&acct.ID, &acct.PhoneNumber, &acct.Role, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	acct.CreatedAt = time.Unix(createdAt, 0)
	return &acct, nil
}

// GetAccountByID retrieves an account by id.
func (s *Store) GetAccountByID(id int64) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var acct Account
	var createdAt int64

	err := s.db.QueryRow(`
		SELECT id, phone_number, role, created_at FROM accounts WHERE id = ?
	`, id).Scan(&acct.ID, &acct.PhoneNumber, &acct.Role, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	acct.CreatedAt = time.Unix(createdAt, 0)
	return &acct, nil
}

// isUniqueConstraintErr reports whether err is a SQLite UNIQUE constraint
// violation. go-sqlite3 surfaces these as sqlite3.Error with an
// ErrConstraintUnique code, but matching on the message keeps this package
// free of a direct dependency on the driver's error type.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
