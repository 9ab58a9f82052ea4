// Package identity provides the wallet ledger's account and wallet
// registry: lookup/create accounts and their wallets, and seed the cache
// from the durable balance exactly once.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/tabdeal-exchange/wallet-ledger/internal/apperr"
	"github.com/tabdeal-exchange/wallet-ledger/internal/cache"
	"github.com/tabdeal-exchange/wallet-ledger/internal/ledger"
)

// Registry resolves accounts and wallets against the durable store,
// seeding the cache lazily.
type Registry struct {
	store *ledger.Store
	cache *cache.Cache
}

// New creates a Registry.
func New(store *ledger.Store, c *cache.Cache) *Registry {
	return &Registry{store: store, cache: c}
}

// LookupAccount returns the account for a phone number, or
// apperr.KindNotFound if none is registered.
func (r *Registry) LookupAccount(phoneNumber string) (*ledger.Account, error) {
	acct, err := r.store.GetAccountByPhone(phoneNumber)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("identity: lookup account: %w", err)
	}
	return acct, nil
}

// EnsureAccount returns the account for a phone number, creating it with
// defaultRole if absent. It never overwrites an existing account's role.
func (r *Registry) EnsureAccount(phoneNumber string, defaultRole ledger.Role) (*ledger.Account, error) {
	acct, err := r.store.GetAccountByPhone(phoneNumber)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("identity: ensure account: %w", err)
	}

	acct, err = r.store.CreateAccount(phoneNumber, defaultRole)
	if errors.Is(err, ledger.ErrDuplicatePhoneNumber) {
		// Lost a create race; the winner's row is authoritative.
		return r.store.GetAccountByPhone(phoneNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("identity: ensure account: %w", err)
	}
	return acct, nil
}

// EnsureWallet returns the wallet for an account, creating it with
// balance 0.00 and ACTIVE status if absent, and seeding the cache from
// the durable balance on first observation only.
func (r *Registry) EnsureWallet(ctx context.Context, account *ledger.Account) (*ledger.Wallet, error) {
	wallet, err := r.store.GetWallet(account.ID)
	if errors.Is(err, ledger.ErrWalletNotFound) {
		wallet, err = r.store.CreateWallet(account.ID)
		if err != nil {
			// Lost a create race; the winner's row is authoritative.
			existing, getErr := r.store.GetWallet(account.ID)
			if getErr != nil {
				return nil, fmt.Errorf("identity: ensure wallet: create: %w", err)
			}
			wallet = existing
		}
	} else if err != nil {
		return nil, fmt.Errorf("identity: ensure wallet: %w", err)
	}

	if err := r.cache.SeedBalance(ctx, account.ID, wallet.Balance); err != nil {
		return nil, fmt.Errorf("identity: ensure wallet: seed cache: %w", err)
	}

	return wallet, nil
}

// RequireActiveWallet ensures an account's wallet exists, is seeded, and
// is ACTIVE, returning apperr.KindWalletInactive otherwise.
func (r *Registry) RequireActiveWallet(ctx context.Context, account *ledger.Account) (*ledger.Wallet, error) {
	wallet, err := r.EnsureWallet(ctx, account)
	if err != nil {
		return nil, err
	}
	if !wallet.IsActive() {
		return nil, apperr.New(apperr.KindWalletInactive, fmt.Sprintf("wallet for account %d is not ACTIVE", account.ID))
	}
	return wallet, nil
}

// EnsureAccountAndWallet resolves (or auto-provisions) an account by
// phone number and its wallet in one call, matching the ChargeSale
// target-resolution path: an unknown phone number auto-provisions an
// account with defaultRole (the charge-sale path passes RoleUser).
// Accounts carry no credential.
func (r *Registry) EnsureAccountAndWallet(ctx context.Context, phoneNumber string, defaultRole ledger.Role) (*ledger.Account, *ledger.Wallet, error) {
	acct, err := r.EnsureAccount(phoneNumber, defaultRole)
	if err != nil {
		return nil, nil, err
	}
	wallet, err := r.EnsureWallet(ctx, acct)
	if err != nil {
		return nil, nil, err
	}
	return acct, wallet, nil
}
