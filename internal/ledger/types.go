// Package ledger provides durable storage for accounts, wallets, credit
// requests, transactions, and charge sales, backed by SQLite.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role identifies an account's permission level.
type Role string

// Account roles.
const (
	RoleAdmin  Role = "ADMIN"
	RoleSeller Role = "SELLER"
	RoleUser   Role = "USER"
)

// WalletStatus identifies a wallet's usability state.
type WalletStatus string

// Wallet statuses.
const (
	WalletActive   WalletStatus = "ACTIVE"
	WalletDeactive WalletStatus = "DEACTIVE"
	WalletSuspend  WalletStatus = "SUSPEND"
)

// CreditRequestStatus identifies a credit request's lifecycle state.
type CreditRequestStatus string

// CreditRequest statuses. FAILED extends the source enum per the wire
// contract's terminal-state requirement for compensated transfers.
const (
	CreditRequestWaiting  CreditRequestStatus = "WAITING"
	CreditRequestAccepted CreditRequestStatus = "ACCEPTED"
	CreditRequestRejected CreditRequestStatus = "REJECTED"
	CreditRequestFailed   CreditRequestStatus = "FAILED"
)

// ChargeSaleStatus identifies a charge sale's lifecycle state.
type ChargeSaleStatus string

// ChargeSale statuses.
const (
	ChargeSalePending   ChargeSaleStatus = "PENDING"
	ChargeSaleCompleted ChargeSaleStatus = "COMPLETED"
	ChargeSaleFailed    ChargeSaleStatus = "FAILED"
	ChargeSaleRefunded  ChargeSaleStatus = "REFUNDED"
)

// TransactionType identifies the nature of a ledger entry.
type TransactionType string

// Transaction types.
const (
	TransactionCreditIncrease TransactionType = "CREDIT_INCREASE"
	TransactionChargeSale     TransactionType = "CHARGE_SALE"
	TransactionRefund         TransactionType = "REFUND"
)

// Account is an identity with a unique phone number and a role.
type Account struct {
	ID          int64
	PhoneNumber string
	Role        Role
	CreatedAt   time.Time
}

// Wallet is one-to-one with an Account.
type Wallet struct {
	AccountID int64
	Balance   decimal.Decimal
	Status    WalletStatus
	UpdatedAt time.Time
}

// IsActive reports whether the wallet may participate in a transfer.
func (w *Wallet) IsActive() bool {
	return w.Status == WalletActive
}

// CreditRequest is a seller's request for the admin to transfer credit.
type CreditRequest struct {
	ID        int64
	UserID    int64
	Amount    decimal.Decimal
	Status    CreditRequestStatus
	AdminID   *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an immutable ledger entry recording a single wallet's
// balance change.
type Transaction struct {
	ID            uuid.UUID
	SellerID      int64
	Type          TransactionType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceID   string
	Description   string
	AdminUserID   *int64
	CreatedAt     time.Time
}

// ChargeSale is a seller-initiated transfer from the seller's wallet to a
// target account's wallet.
type ChargeSale struct {
	ID            uuid.UUID
	UserID        int64
	PhoneNumber   string
	Amount        decimal.Decimal
	Status        ChargeSaleStatus
	TransactionID *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MinimumTransferAmount is the smallest amount a CreditRequest or
// ChargeSale may carry.
var MinimumTransferAmount = decimal.NewFromInt(1000)
