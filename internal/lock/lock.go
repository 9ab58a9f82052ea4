// Package lock provides the wallet ledger's two-level lock manager:
// an in-process mutex plus a shared-store lease, acquired in sorted
// order across the pair of accounts a transfer touches.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when either lock layer could not be acquired
// within its retry budget.
var ErrLockBusy = errors.New("lock: busy")

// releaseScript deletes the lease only if the caller's token still owns
// it, the standard Redis distributed-lock release idiom: it prevents a
// worker from releasing a lease it no longer holds after its own lease
// expired and another worker acquired a fresh one.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Config holds the lock manager's timeouts and retry policy.
type Config struct {
	// AppLockTimeout bounds acquisition of the in-process mutex (T_app).
	AppLockTimeout time.Duration
	// LeaseTTL is how long a shared-store lease is held before auto-expiry (T_lease).
	LeaseTTL time.Duration
	// RetryAttempts is the max number of lease-acquisition attempts (R_lock).
	RetryAttempts int
	// RetryDelay is the delay between lease-acquisition attempts.
	RetryDelay time.Duration
}

// Manager serializes access to pairs of wallets, always in sorted order,
// to eliminate deadlock across concurrent transfers sharing an endpoint.
type Manager struct {
	redisClient *redis.Client
	cfg         Config

	mu       sync.Mutex
	appLocks map[pairKey]*appLock
}

type pairKey struct {
	lo, hi int64
}

// appLock is a timed, single-holder mutex implemented with a buffered
// channel semaphore, since sync.Mutex has no timed acquire.
type appLock struct {
	sem chan struct{}
}

func newAppLock() *appLock {
	return &appLock{sem: make(chan struct{}, 1)}
}

func (l *appLock) TryLock(ctx context.Context, timeout time.Duration) bool {
	select {
	case l.sem <- struct{}{}:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (l *appLock) Unlock() {
	<-l.sem
}

// NewManager creates a lock Manager backed by the given Redis client for
// shared leases.
func NewManager(redisClient *redis.Client, cfg Config) *Manager {
	return &Manager{
		redisClient: redisClient,
		cfg:         cfg,
		appLocks:    make(map[pairKey]*appLock),
	}
}

// Scope represents a held wallet-pair lock. Release must be called on
// every exit path, including after a panic, to guarantee the locks are
// freed.
type Scope struct {
	mgr       *Manager
	app       *appLock
	leaseKeys []string
	token     string
}

func (mgr *Manager) appLockFor(lo, hi int64) *appLock {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	key := pairKey{lo: lo, hi: hi}
	l, ok := mgr.appLocks[key]
	if !ok {
		l = newAppLock()
		mgr.appLocks[key] = l
	}
	return l
}

// WithTwoWallets acquires the two-level lock for accounts a and b, in
// sorted order, degenerating to a single lock when a == b. The returned
// Scope must be released exactly once via Release.
func (mgr *Manager) WithTwoWallets(ctx context.Context, a, b int64) (*Scope, error) {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}

	app := mgr.appLockFor(lo, hi)
	if !app.TryLock(ctx, mgr.cfg.AppLockTimeout) {
		return nil, ErrLockBusy
	}

	var leaseKeys []string
	if lo == hi {
		leaseKeys = []string{leaseKey(lo)}
	} else {
		leaseKeys = []string{leaseKey(lo), leaseKey(hi)}
	}

	token := uuid.NewString()

	acquired := make([]string, 0, len(leaseKeys))
	for _, key := range leaseKeys {
		if err := mgr.acquireLease(ctx, key, token); err != nil {
			// Roll back any leases already acquired in this call, in
			// reverse order, before releasing the in-process mutex.
			mgr.releaseLeases(context.Background(), acquired, token)
			app.Unlock()
			return nil, err
		}
		acquired = append(acquired, key)
	}

	return &Scope{mgr: mgr, app: app, leaseKeys: leaseKeys, token: token}, nil
}

func leaseKey(accountID int64) string {
	return fmt.Sprintf("lock:wallet:%d", accountID)
}

func (mgr *Manager) acquireLease(ctx context.Context, key, token string) error {
	for attempt := 0; attempt < mgr.cfg.RetryAttempts; attempt++ {
		ok, err := mgr.redisClient.SetNX(ctx, key, token, mgr.cfg.LeaseTTL).Result()
		if err != nil {
			return fmt.Errorf("lock: acquire lease %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-time.After(mgr.cfg.RetryDelay):
		case <-ctx.Done():
			return ErrLockBusy
		}
	}
	return ErrLockBusy
}

func (mgr *Manager) releaseLeases(ctx context.Context, keys []string, token string) {
	for i := len(keys) - 1; i >= 0; i-- {
		mgr.redisClient.Eval(ctx, releaseScript, []string{keys[i]}, token)
	}
}

// Release releases the shared leases in reverse acquisition order, then
// the process-local mutex. Safe to call from a deferred statement so
// release happens on every exit path including panic/unwind.
func (s *Scope) Release(ctx context.Context) {
	s.mgr.releaseLeases(ctx, s.leaseKeys, s.token)
	s.app.Unlock()
}
