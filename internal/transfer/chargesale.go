package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tabdeal-exchange/wallet-ledger/internal/apperr"
	"github.com/tabdeal-exchange/wallet-ledger/internal/ledger"
)

// ChargeSale moves amount from seller's wallet to the wallet of the
// account identified by targetPhone, auto-provisioning the target
// account if it doesn't exist (role USER, no usable credential). It
// inserts a PENDING ChargeSale row before taking any lock, then submits
// the transfer to the worker pool and blocks for the result. On any
// failure after CAS success the sale ends FAILED;
// on precondition failure before CAS it also ends FAILED, since PREP
// already gave the client a durable handle.
func (e *Engine) ChargeSale(ctx context.Context, seller *ledger.Account, targetPhone string, amount decimal.Decimal) (*ledger.ChargeSale, *Result, error) {
	if amount.LessThan(e.cfg.MinimumAmount) {
		return nil, nil, apperr.New(apperr.KindInvalidAmount, "amount below minimum transfer amount")
	}

	sellerWallet, err := e.identity.RequireActiveWallet(ctx, seller)
	if err != nil {
		return nil, nil, err
	}

	targetAccount, targetWallet, err := e.identity.EnsureAccountAndWallet(ctx, targetPhone, ledger.RoleUser)
	if err != nil {
		return nil, nil, err
	}
	if !targetWallet.IsActive() {
		return nil, nil, apperr.New(apperr.KindWalletInactive, "target wallet is not ACTIVE")
	}

	sale := &ledger.ChargeSale{
		ID: uuid.New(), UserID: seller.ID, PhoneNumber: targetPhone,
		Amount: amount, Status: ledger.ChargeSalePending,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	p := &plan{
		sourceID: seller.ID, destID: targetAccount.ID, amount: amount,
		referenceID: sale.ID.String(),
		sellerType:  ledger.TransactionChargeSale,
		targetType:  ledger.TransactionCreditIncrease,
		sourceDesc:  fmt.Sprintf("Charge sale deduction to %s", targetPhone),
		destDesc:    fmt.Sprintf("Charge sale credit from %s", seller.PhoneNumber),
		selfDesc:    fmt.Sprintf("Self charge sale %s", sale.ID),

		onPrep: func() error {
			tx, err := e.store.BeginTx()
			if err != nil {
				return fmt.Errorf("begin prep transaction: %w", err)
			}
			defer tx.Rollback()
			if err := e.store.InsertChargeSale(tx, sale); err != nil {
				return fmt.Errorf("insert charge sale: %w", err)
			}
			return tx.Commit()
		},

		onCommit: func(tx *sql.Tx, sellerEntryID uuid.UUID) error {
			return e.store.UpdateChargeSale(tx, sale.ID, ledger.ChargeSaleCompleted, &sellerEntryID)
		},

		onFail: func() {
			if err := e.store.UpdateChargeSaleStandalone(sale.ID, ledger.ChargeSaleFailed); err != nil {
				e.log.Error("failed to mark charge sale FAILED", "id", sale.ID, "error", err)
			}
		},
	}

	result, err := e.pool.Submit(ctx, func() (*Result, error) {
		return e.run(ctx, p)
	})
	if err != nil {
		return sale, nil, err
	}

	sale.Status = ledger.ChargeSaleCompleted
	sellerWallet.Balance = result.SourceBalance
	return sale, result, nil
}

// GetChargeSale looks up a charge sale by id.
func (e *Engine) GetChargeSale(id uuid.UUID) (*ledger.ChargeSale, error) {
	sale, err := e.store.GetChargeSale(id)
	if errors.Is(err, ledger.ErrChargeSaleNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "charge sale not found")
	}
	return sale, err
}
