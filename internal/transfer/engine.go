// Package transfer implements the atomic dual-wallet transfer engine:
// the ChargeSale and CreditApproval flows that move an amount from a
// source wallet to a destination wallet, writing paired ledger entries
// and keeping the cache and durable store consistent under concurrency.
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
	"github.com/tabdeal-exchange/wallet-ledger/internal/cache"
	"github.com/tabdeal-exchange/wallet-ledger/internal/identity"
	"github.com/tabdeal-exchange/wallet-ledger/internal/ledger"
	"github.com/tabdeal-exchange/wallet-ledger/internal/lock"
	"github.com/tabdeal-exchange/wallet-ledger/pkg/logging"
)

// Config holds the engine's CAS retry policy and minimum transfer amount.
type Config struct {
	CASRetryAttempts  int
	CASRetryBaseDelay time.Duration
	MinimumAmount     decimal.Decimal
	WorkerPoolSize    int
}

// Engine orchestrates transfers. It is constructor-injected with the
// cache client, lock manager, and durable store, following the
// composition-root pattern: no package-level singletons.
type Engine struct {
	store    *ledger.Store
	cache    *cache.Cache
	lockMgr  *lock.Manager
	identity *identity.Registry
	pool     *Pool
	cfg      Config
	log      *logging.Logger
}

// New creates an Engine and starts its worker pool.
func New(store *ledger.Store, c *cache.Cache, lockMgr *lock.Manager, reg *identity.Registry, cfg Config) *Engine {
	if cfg.MinimumAmount.IsZero() {
		cfg.MinimumAmount = ledger.MinimumTransferAmount
	}
	if cfg.CASRetryAttempts <= 0 {
		cfg.CASRetryAttempts = 3
	}
	if cfg.CASRetryBaseDelay <= 0 {
		cfg.CASRetryBaseDelay = 100 * time.Millisecond
	}
	pool := NewPool(cfg.WorkerPoolSize)
	pool.Start()

	return &Engine{
		store:    store,
		cache:    c,
		lockMgr:  lockMgr,
		identity: reg,
		pool:     pool,
		cfg:      cfg,
		log:      logging.GetDefault().Component("transfer-engine"),
	}
}

// Stop drains and stops the engine's worker pool.
func (e *Engine) Stop() {
	e.pool.Stop()
}

// Result is the outcome of a completed transfer.
type Result struct {
	SourceBalance decimal.Decimal
	DestBalance   decimal.Decimal
	SellerEntry   *ledger.Transaction
	TargetEntry   *ledger.Transaction
}

// plan captures everything one transfer attempt needs, independent of
// whether it originates from a ChargeSale or a CreditApproval.
type plan struct {
	sourceID    int64
	destID      int64
	amount      decimal.Decimal
	referenceID string

	// onPrep inserts any durable handle needed before locking (the
	// ChargeSale PENDING row); a no-op for CreditApproval.
	onPrep func() error

	// onCommit performs the flow-specific state transition inside the
	// durable COMMITTING transaction (CreditRequest WAITING->ACCEPTED or
	// ChargeSale PENDING->COMPLETED).
	onCommit func(tx *sql.Tx, sellerEntryID uuid.UUID) error

	// onFail marks the originating record FAILED after compensation or
	// CAS exhaustion.
	onFail func()

	sellerType  ledger.TransactionType
	targetType  ledger.TransactionType
	adminUserID *int64

	sourceDesc string
	destDesc   string
	selfDesc   string
}

// run executes the PREP -> LOCKED -> CAS_TRYING -> COMMITTING -> DONE
// state machine for a single plan, including compensation on mid-flight
// failure and CAS retry with backoff.
func (e *Engine) run(ctx context.Context, p *plan) (*Result, error) {
	// PREP.
	if p.onPrep != nil {
		if err := p.onPrep(); err != nil {
			return nil, fmt.Errorf("transfer: prep: %w", err)
		}
	}

	// LOCKED.
	scope, err := e.lockMgr.WithTwoWallets(ctx, p.sourceID, p.destID)
	if err != nil {
		if errors.Is(err, lock.ErrLockBusy) {
			return nil, apperr.New(apperr.KindLockBusy, "could not acquire wallet lock")
		}
		return nil, fmt.Errorf("transfer: lock: %w", err)
	}
	defer scope.Release(context.Background())

	result, err := e.attemptWithRetry(ctx, p)
	if err != nil {
		p.onFail()
		return nil, err
	}
	return result, nil
}

// attemptWithRetry runs CAS_TRYING/COMMITTING, retrying Conflict up to
// CASRetryAttempts with a 0.1s*attempt backoff. LockBusy and
// InsufficientBalance are not retried.
func (e *Engine) attemptWithRetry(ctx context.Context, p *plan) (*Result, error) {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.CASRetryAttempts; attempt++ {
		result, err := e.attemptOnce(ctx, p)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, cache.ErrConflict) {
			return nil, err
		}
		lastErr = err

		if attempt < e.cfg.CASRetryAttempts {
			select {
			case <-time.After(e.cfg.CASRetryBaseDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	e.log.Warn("CAS retries exhausted", "source", p.sourceID, "dest", p.destID, "attempts", e.cfg.CASRetryAttempts)
	return nil, apperr.Wrap(apperr.KindConcurrency, "CAS retries exhausted", lastErr)
}

// attemptOnce runs one CAS_TRYING/COMMITTING cycle.
func (e *Engine) attemptOnce(ctx context.Context, p *plan) (*Result, error) {
	degenerate := p.sourceID == p.destID

	bS, err := e.cache.ReadBalance(ctx, p.sourceID)
	if err != nil {
		return nil, fmt.Errorf("transfer: read source balance: %w", err)
	}

	var bD decimal.Decimal
	if !degenerate {
		bD, err = e.cache.ReadBalance(ctx, p.destID)
		if err != nil {
			return nil, fmt.Errorf("transfer: read dest balance: %w", err)
		}
	}

	// The degenerate case moves nothing, but the source must still cover
	// the amount for the approval to be recorded.
	entryAmount := p.amount
	if degenerate {
		entryAmount = decimal.Zero
	}
	if bS.LessThan(p.amount) {
		return nil, apperr.New(apperr.KindInsufficientBalance, "source balance below transfer amount")
	}

	// The degenerate self-transfer case (admin approving their own
	// request) posts a single CREDIT_INCREASE entry rather than a
	// CHARGE_SALE debit: no balance moves, but the request still needs
	// a ledger record to reference.
	entryType := p.sellerType
	entryDesc := p.sourceDesc
	if degenerate {
		entryType = p.targetType
		entryDesc = p.selfDesc
	}

	now := time.Now()
	sellerEntry := &ledger.Transaction{
		ID: uuid.New(), SellerID: p.sourceID, Type: entryType,
		Amount: entryAmount.Neg(), BalanceBefore: bS, ReferenceID: p.referenceID,
		Description: entryDesc, AdminUserID: p.adminUserID, CreatedAt: now,
	}

	var bSNew, bDNew decimal.Decimal
	var targetEntry *ledger.Transaction
	var mutations []cache.Mutation

	if degenerate {
		bSNew = bS
		sellerEntry.BalanceAfter = bSNew
		mutations = []cache.Mutation{{
			AccountID: p.sourceID, ExpectedBalance: bS, NewBalance: bSNew,
			Entry: cache.Entry{TransactionID: sellerEntry.ID.String(), Type: string(sellerEntry.Type), Amount: sellerEntry.Amount.StringFixed(2), CreatedAt: now.Unix()},
		}}
	} else {
		bSNew = bS.Sub(p.amount)
		bDNew = bD.Add(p.amount)
		sellerEntry.BalanceAfter = bSNew

		targetEntry = &ledger.Transaction{
			ID: uuid.New(), SellerID: p.destID, Type: p.targetType,
			Amount: p.amount, BalanceBefore: bD, BalanceAfter: bDNew,
			ReferenceID: p.referenceID, Description: p.destDesc,
			AdminUserID: p.adminUserID, CreatedAt: now,
		}

		mutations = []cache.Mutation{
			{
				AccountID: p.sourceID, ExpectedBalance: bS, NewBalance: bSNew,
				Entry: cache.Entry{TransactionID: sellerEntry.ID.String(), Type: string(sellerEntry.Type), Amount: sellerEntry.Amount.StringFixed(2), CreatedAt: now.Unix()},
			},
			{
				AccountID: p.destID, ExpectedBalance: bD, NewBalance: bDNew,
				Entry: cache.Entry{TransactionID: targetEntry.ID.String(), Type: string(targetEntry.Type), Amount: targetEntry.Amount.StringFixed(2), CreatedAt: now.Unix()},
			},
		}
	}

	if err := e.cache.CompareAndSwap(ctx, mutations...); err != nil {
		if errors.Is(err, cache.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("transfer: cas: %w", err)
	}

	// COMMITTING. Any failure from here compensates the cache mutation
	// before surfacing TransferFailed.
	result, err := e.commit(p, sellerEntry, targetEntry, bSNew, bDNew)
	if err != nil {
		e.compensate(context.Background(), p, bS, bD, sellerEntry, targetEntry, degenerate)
		return nil, err
	}
	return result, nil
}

// commit opens the durable transaction and performs, in order: insert
// entryS, insert entryD (if any), set wallet(S).balance, set
// wallet(D).balance (if any), the flow-specific state transition, then
// commits. Any step's failure rolls back and returns the error.
func (e *Engine) commit(p *plan, sellerEntry, targetEntry *ledger.Transaction, bSNew, bDNew decimal.Decimal) (*Result, error) {
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransferFailed, "begin durable transaction", err)
	}
	defer tx.Rollback()

	if err := e.store.InsertTransaction(tx, sellerEntry); err != nil {
		return nil, apperr.Wrap(apperr.KindTransferFailed, "insert seller ledger entry", err)
	}
	if targetEntry != nil {
		if err := e.store.InsertTransaction(tx, targetEntry); err != nil {
			return nil, apperr.Wrap(apperr.KindTransferFailed, "insert target ledger entry", err)
		}
	}

	if err := e.store.UpdateWalletBalance(tx, p.sourceID, bSNew); err != nil {
		return nil, apperr.Wrap(apperr.KindTransferFailed, "update source wallet balance", err)
	}
	if targetEntry != nil {
		if err := e.store.UpdateWalletBalance(tx, p.destID, bDNew); err != nil {
			return nil, apperr.Wrap(apperr.KindTransferFailed, "update dest wallet balance", err)
		}
	}

	if err := p.onCommit(tx, sellerEntry.ID); err != nil {
		return nil, apperr.Wrap(apperr.KindTransferFailed, "transition originating record", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindTransferFailed, "commit durable transaction", err)
	}

	return &Result{
		SourceBalance: bSNew,
		DestBalance:   bDNew,
		SellerEntry:   sellerEntry,
		TargetEntry:   targetEntry,
	}, nil
}

func (e *Engine) compensate(ctx context.Context, p *plan, bS, bD decimal.Decimal, sellerEntry, targetEntry *ledger.Transaction, degenerate bool) {
	if err := e.cache.HardSet(ctx, p.sourceID, bS); err != nil {
		e.log.Error("compensation: failed to restore source balance", "error", err)
	}
	e.cache.ListRemove(ctx, p.sourceID, cache.Entry{
		TransactionID: sellerEntry.ID.String(), Type: string(sellerEntry.Type),
		Amount: sellerEntry.Amount.StringFixed(2), CreatedAt: sellerEntry.CreatedAt.Unix(),
	}.Serialize(), 1)

	if !degenerate {
		if err := e.cache.HardSet(ctx, p.destID, bD); err != nil {
			e.log.Error("compensation: failed to restore dest balance", "error", err)
		}
		e.cache.ListRemove(ctx, p.destID, cache.Entry{
			TransactionID: targetEntry.ID.String(), Type: string(targetEntry.Type),
			Amount: targetEntry.Amount.StringFixed(2), CreatedAt: targetEntry.CreatedAt.Unix(),
		}.Serialize(), 1)
	}
}
