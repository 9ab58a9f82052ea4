package identity

import (
	"context"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"

	"github.com/tabdeal-exchange/wallet-ledger/internal/apperr"
	"github.com/tabdeal-exchange/wallet-ledger/internal/cache"
	"github.com/tabdeal-exchange/wallet-ledger/internal/ledger"
)

func newTestRegistry(t *testing.T) (*Registry, *ledger.Store) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "wallet-identity-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := ledger.New(&ledger.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("ledger.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	c := cache.New(&cache.Config{Addr: mr.Addr()})
	t.Cleanup(func() { c.Close() })

	return New(store, c), store
}

func TestEnsureAccountCreatesOnce(t *testing.T) {
	reg, _ := newTestRegistry(t)

	acct1, err := reg.EnsureAccount("09120000001", ledger.RoleUser)
	if err != nil {
		t.Fatalf("EnsureAccount() error = %v", err)
	}

	acct2, err := reg.EnsureAccount("09120000001", ledger.RoleAdmin)
	if err != nil {
		t.Fatalf("second EnsureAccount() error = %v", err)
	}
	if acct2.ID != acct1.ID || acct2.Role != ledger.RoleUser {
		t.Errorf("EnsureAccount() must not overwrite existing role, got %+v", acct2)
	}
}

func TestLookupAccountNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.LookupAccount("09120000099")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("LookupAccount(unknown) error = %v, want KindNotFound", err)
	}
}

func TestEnsureWalletSeedsCacheOnce(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)

	acct, err := reg.EnsureAccount("09120000002", ledger.RoleSeller)
	if err != nil {
		t.Fatalf("EnsureAccount() error = %v", err)
	}

	wallet, err := reg.EnsureWallet(ctx, acct)
	if err != nil {
		t.Fatalf("EnsureWallet() error = %v", err)
	}
	if !wallet.Balance.IsZero() {
		t.Errorf("new wallet balance = %s, want 0", wallet.Balance)
	}

	// Mutate the durable balance directly, bypassing the cache, so the
	// durable value now differs from the already-seeded cached one.
	tx, _ := store.BeginTx()
	if err := store.UpdateWalletBalance(tx, acct.ID, decimal.NewFromInt(777)); err != nil {
		t.Fatalf("UpdateWalletBalance() error = %v", err)
	}
	tx.Commit()

	// Re-ensuring must not reseed the cache from the now-stale durable
	// balance, since it was already observed once.
	if _, err := reg.EnsureWallet(ctx, acct); err != nil {
		t.Fatalf("second EnsureWallet() error = %v", err)
	}

	cached, err := reg.cache.ReadBalance(ctx, acct.ID)
	if err != nil {
		t.Fatalf("ReadBalance() error = %v", err)
	}
	if !cached.IsZero() {
		t.Errorf("cached balance after reseed attempt = %s, want unchanged 0", cached)
	}
}

func TestRequireActiveWalletRejectsInactive(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)

	acct, err := reg.EnsureAccount("09120000003", ledger.RoleUser)
	if err != nil {
		t.Fatalf("EnsureAccount() error = %v", err)
	}
	if _, err := reg.EnsureWallet(ctx, acct); err != nil {
		t.Fatalf("EnsureWallet() error = %v", err)
	}

	tx, _ := store.BeginTx()
	tx.Exec(`UPDATE wallets SET status = 'SUSPEND' WHERE account_id = ?`, acct.ID)
	tx.Commit()

	_, err = reg.RequireActiveWallet(ctx, acct)
	if !apperr.Is(err, apperr.KindWalletInactive) {
		t.Errorf("RequireActiveWallet(suspended) error = %v, want KindWalletInactive", err)
	}
}
