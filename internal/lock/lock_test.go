package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewManager(client, cfg)
}

func defaultTestConfig() Config {
	return Config{
		AppLockTimeout: 200 * time.Millisecond,
		LeaseTTL:       2 * time.Second,
		RetryAttempts:  5,
		RetryDelay:     20 * time.Millisecond,
	}
}

func TestAcquireAndReleaseTwoWallets(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, defaultTestConfig())

	scope, err := mgr.WithTwoWallets(ctx, 1, 2)
	if err != nil {
		t.Fatalf("WithTwoWallets() error = %v", err)
	}
	scope.Release(ctx)

	// After release, a second acquisition of the same pair must succeed.
	scope2, err := mgr.WithTwoWallets(ctx, 2, 1)
	if err != nil {
		t.Fatalf("second WithTwoWallets() error = %v", err)
	}
	scope2.Release(ctx)
}

func TestDegenerateSameAccount(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, defaultTestConfig())

	scope, err := mgr.WithTwoWallets(ctx, 5, 5)
	if err != nil {
		t.Fatalf("WithTwoWallets(5, 5) error = %v", err)
	}
	if len(scope.leaseKeys) != 1 {
		t.Errorf("degenerate case leaseKeys = %d, want 1", len(scope.leaseKeys))
	}
	scope.Release(ctx)
}

func TestContendedPairReturnsLockBusy(t *testing.T) {
	ctx := context.Background()
	cfg := defaultTestConfig()
	cfg.RetryAttempts = 3
	cfg.RetryDelay = 10 * time.Millisecond
	mgr := newTestManager(t, cfg)

	scope, err := mgr.WithTwoWallets(ctx, 1, 2)
	if err != nil {
		t.Fatalf("first WithTwoWallets() error = %v", err)
	}
	defer scope.Release(ctx)

	_, err = mgr.WithTwoWallets(ctx, 2, 1)
	if err != ErrLockBusy {
		t.Errorf("contended WithTwoWallets() error = %v, want ErrLockBusy", err)
	}
}

func TestAppLockTimeoutReturnsLockBusy(t *testing.T) {
	ctx := context.Background()
	cfg := defaultTestConfig()
	cfg.AppLockTimeout = 50 * time.Millisecond
	mgr := newTestManager(t, cfg)

	app := mgr.appLockFor(1, 2)
	app.TryLock(ctx, time.Second)
	defer app.Unlock()

	_, err := mgr.WithTwoWallets(ctx, 1, 2)
	if err != ErrLockBusy {
		t.Errorf("WithTwoWallets() under held app lock error = %v, want ErrLockBusy", err)
	}
}
