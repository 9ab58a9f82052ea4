package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Sentinel errors returned by store operations.
var (
	ErrAccountNotFound       = errors.New("ledger: account not found")
	ErrWalletNotFound        = errors.New("ledger: wallet not found")
	ErrCreditRequestNotFound = errors.New("ledger: credit request not found")
	ErrChargeSaleNotFound    = errors.New("ledger: charge sale not found")
	ErrDuplicateTransaction  = errors.New("ledger: duplicate transaction id")
	ErrPreconditionFailed    = errors.New("ledger: precondition failed")
	ErrDuplicatePhoneNumber  = errors.New("ledger: phone number already registered")
)

// Store provides durable storage for the wallet ledger.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Store instance, opening (and if necessary creating)
// the SQLite database under cfg.DataDir.
func New(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ledger.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phone_number TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_phone ON accounts(phone_number);

	CREATE TABLE IF NOT EXISTS wallets (
		account_id INTEGER PRIMARY KEY,
		balance TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (account_id) REFERENCES accounts(id)
	);

	CREATE TABLE IF NOT EXISTS credit_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'WAITING',
		admin_id INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES accounts(id),
		FOREIGN KEY (admin_id) REFERENCES accounts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_credit_requests_status ON credit_requests(status);
	CREATE INDEX IF NOT EXISTS idx_credit_requests_user ON credit_requests(user_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		seller_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		description TEXT,
		admin_user_id INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (seller_id) REFERENCES accounts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_seller ON transactions(seller_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions(reference_id);

	CREATE TABLE IF NOT EXISTS charge_sales (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		phone_number TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		transaction_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES accounts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_charge_sales_status ON charge_sales(status);
	CREATE INDEX IF NOT EXISTS idx_charge_sales_user ON charge_sales(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
