// Package intake implements the wallet ledger's request-intake surface:
// creating and rejecting CreditRequests, and handing approved transfers
// and charge sales to the transfer engine's worker pool. It performs no
// wallet mutation itself — that is the Transfer Engine's job.
package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tabdeal-exchange/wallet-ledger/internal/apperr"
	"github.com/tabdeal-exchange/wallet-ledger/internal/identity"
	"github.com/tabdeal-exchange/wallet-ledger/internal/ledger"
	"github.com/tabdeal-exchange/wallet-ledger/internal/transfer"
	"github.com/tabdeal-exchange/wallet-ledger/pkg/logging"
)

// Intake is the composition root's entry point for the four request-intake
// operations.
type Intake struct {
	store    *ledger.Store
	identity *identity.Registry
	engine   *transfer.Engine
	log      *logging.Logger
}

// New creates an Intake.
func New(store *ledger.Store, reg *identity.Registry, engine *transfer.Engine) *Intake {
	return &Intake{
		store:    store,
		identity: reg,
		engine:   engine,
		log:      logging.GetDefault().Component("intake"),
	}
}

// CreateCreditRequest validates amount >= the minimum transfer amount
// and inserts a WAITING row. The seller must already be registered; only
// charge-sale targets are ever auto-provisioned. It performs no wallet
// mutation.
func (in *Intake) CreateCreditRequest(sellerPhone string, amount decimal.Decimal) (*ledger.CreditRequest, error) {
	if amount.LessThan(ledger.MinimumTransferAmount) {
		return nil, apperr.New(apperr.KindInvalidAmount, "amount below minimum transfer amount")
	}

	seller, err := in.identity.LookupAccount(sellerPhone)
	if err != nil {
		return nil, err
	}

	cr, err := in.store.CreateCreditRequest(seller.ID, amount)
	if err != nil {
		return nil, fmt.Errorf("intake: create credit request: %w", err)
	}
	in.log.Info("credit request created", "id", cr.ID, "user", seller.ID, "amount", amount.StringFixed(2))
	return cr, nil
}

// RejectCreditRequest durably transitions a WAITING request to REJECTED,
// stamping admin. It fails apperr.KindRequestMissing if the request is
// not currently WAITING, and apperr.KindPermissionDenied if adminPhone
// does not resolve to an ADMIN account.
func (in *Intake) RejectCreditRequest(id int64, adminPhone string) (*ledger.CreditRequest, error) {
	admin, err := in.requireAdmin(adminPhone)
	if err != nil {
		return nil, err
	}

	cr, err := in.store.GetCreditRequest(id)
	if errors.Is(err, ledger.ErrCreditRequestNotFound) {
		return nil, apperr.New(apperr.KindRequestMissing, "credit request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("intake: reject credit request: lookup: %w", err)
	}

	adminID := admin.ID
	if err := in.store.TransitionCreditRequestStandalone(id, ledger.CreditRequestWaiting, ledger.CreditRequestRejected, &adminID); err != nil {
		if errors.Is(err, ledger.ErrPreconditionFailed) {
			return nil, apperr.New(apperr.KindRequestMissing, "credit request is not WAITING")
		}
		return nil, fmt.Errorf("intake: reject credit request: %w", err)
	}

	cr.Status = ledger.CreditRequestRejected
	cr.AdminID = &adminID
	in.log.Info("credit request rejected", "id", id, "admin", admin.ID)
	return cr, nil
}

// ApproveCreditRequest looks up the request and admin account, then
// delegates the transfer itself (admin -> seller) to the Transfer Engine.
func (in *Intake) ApproveCreditRequest(ctx context.Context, id int64, adminPhone string) (*ledger.CreditRequest, error) {
	admin, err := in.requireAdmin(adminPhone)
	if err != nil {
		return nil, err
	}

	cr, err := in.store.GetCreditRequest(id)
	if errors.Is(err, ledger.ErrCreditRequestNotFound) {
		return nil, apperr.New(apperr.KindRequestMissing, "credit request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("intake: approve credit request: lookup: %w", err)
	}

	cr, _, err = in.engine.ApproveCreditRequest(ctx, admin, cr)
	if err != nil {
		return nil, err
	}
	in.log.Info("credit request approved", "id", id, "admin", admin.ID)
	return cr, nil
}

// CreateChargeSale delegates a seller-initiated transfer to the Transfer
// Engine, which also inserts the durable ChargeSale row.
func (in *Intake) CreateChargeSale(ctx context.Context, sellerPhone, targetPhone string, amount decimal.Decimal) (*ledger.ChargeSale, error) {
	if amount.LessThan(ledger.MinimumTransferAmount) {
		return nil, apperr.New(apperr.KindInvalidAmount, "amount below minimum transfer amount")
	}

	seller, err := in.identity.LookupAccount(sellerPhone)
	if err != nil {
		return nil, err
	}

	sale, _, err := in.engine.ChargeSale(ctx, seller, targetPhone, amount)
	if err != nil {
		return sale, err
	}
	in.log.Info("charge sale completed", "id", sale.ID, "user", seller.ID, "amount", amount.StringFixed(2))
	return sale, nil
}

// requireAdmin resolves a phone number to an account and enforces the
// ADMIN role.
func (in *Intake) requireAdmin(phoneNumber string) (*ledger.Account, error) {
	acct, err := in.identity.LookupAccount(phoneNumber)
	if err != nil {
		return nil, err
	}
	if acct.Role != ledger.RoleAdmin {
		return nil, apperr.New(apperr.KindPermissionDenied, "account is not an admin")
	}
	return acct, nil
}
