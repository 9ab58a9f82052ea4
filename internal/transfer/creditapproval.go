package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tabdeal-exchange/wallet-ledger/internal/apperr"
	"github.com/tabdeal-exchange/wallet-ledger/internal/ledger"
)

// ApproveCreditRequest moves the request's amount from admin's wallet to
// the requesting seller's wallet and transitions the request
// WAITING->ACCEPTED with admin stamped. If admin and the requesting
// seller are the same account, this degenerates to recording a
// zero-amount CREDIT_INCREASE entry without changing the balance, since
// Engine.attemptOnce already special-cases sourceID == destID.
func (e *Engine) ApproveCreditRequest(ctx context.Context, admin *ledger.Account, cr *ledger.CreditRequest) (*ledger.CreditRequest, *Result, error) {
	if cr.Status != ledger.CreditRequestWaiting {
		return nil, nil, apperr.New(apperr.KindRequestMissing, "credit request is not WAITING")
	}

	if _, err := e.identity.RequireActiveWallet(ctx, admin); err != nil {
		return nil, nil, err
	}

	seller, err := e.store.GetAccountByID(cr.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("transfer: lookup requesting seller: %w", err)
	}
	if _, err := e.identity.RequireActiveWallet(ctx, seller); err != nil {
		return nil, nil, err
	}

	adminID := admin.ID

	p := &plan{
		sourceID: admin.ID, destID: seller.ID, amount: cr.Amount,
		referenceID: fmt.Sprintf("%d", cr.ID),
		sellerType:  ledger.TransactionChargeSale,
		targetType:  ledger.TransactionCreditIncrease,
		adminUserID: &adminID,
		sourceDesc:  fmt.Sprintf("Transfer to user %d for credit request", seller.ID),
		destDesc:    fmt.Sprintf("Credit increase from admin %d", admin.ID),
		selfDesc:    fmt.Sprintf("Self-transfer for credit request %d", cr.ID),

		onCommit: func(tx *sql.Tx, _ uuid.UUID) error {
			return e.store.TransitionCreditRequest(tx, cr.ID, ledger.CreditRequestWaiting, ledger.CreditRequestAccepted, &adminID)
		},

		onFail: func() {
			if err := e.store.TransitionCreditRequestStandalone(cr.ID, ledger.CreditRequestWaiting, ledger.CreditRequestFailed, &adminID); err != nil && !errors.Is(err, ledger.ErrPreconditionFailed) {
				e.log.Error("failed to mark credit request FAILED", "id", cr.ID, "error", err)
			}
		},
	}

	result, err := e.pool.Submit(ctx, func() (*Result, error) {
		return e.run(ctx, p)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrPreconditionFailed) {
			return nil, nil, apperr.New(apperr.KindRequestMissing, "credit request was already processed concurrently")
		}
		return nil, nil, err
	}

	cr.Status = ledger.CreditRequestAccepted
	cr.AdminID = &adminID
	return cr, result, nil
}
