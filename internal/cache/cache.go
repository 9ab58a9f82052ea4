// Package cache provides the fast shared store backing each wallet's
// speculative balance and append-only ledger-entry mirror, using Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ErrConflict is returned by CompareAndSwap when the observed balance for
// any key disagrees with the caller's expected value — the CAS
// precondition failed and the caller should retry or escalate.
var ErrConflict = errors.New("cache: compare-and-swap conflict")

const balanceField = "balance"

// Entry is a serialized ledger-entry mirror appended to a wallet's
// recent-audit list on a successful commit.
type Entry struct {
	TransactionID string
	Type          string
	Amount        string
	CreatedAt     int64
}

// Cache wraps a Redis client with the wallet ledger's keyspace and
// optimistic-commit primitive.
type Cache struct {
	client *redis.Client
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New creates a Cache backed by a new Redis client.
func New(cfg *Config) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     50,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &Cache{client: client}
}

// Close closes the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client, for use by the composition
// root to share one connection pool with the lock manager's leases —
// balances and lock leases live in the same store.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Ping verifies connectivity to Redis.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func walletKey(accountID int64) string {
	return fmt.Sprintf("wallet:user:%d", accountID)
}

func logKey(accountID int64) string {
	return fmt.Sprintf("transactions:user:%d", accountID)
}

// ReadBalance returns the cached balance for an account. An absent key
// reads as 0.00.
func (c *Cache) ReadBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	val, err := c.client.HGet(ctx, walletKey(accountID), balanceField).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("cache: read balance: %w", err)
	}

	balance, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cache: parse balance %q: %w", val, err)
	}
	return balance, nil
}

// SeedBalance seeds the cached balance from the durable value exactly
// once, using HSETNX semantics against the balance field so a
// concurrent seed-and-read race never clobbers a value another goroutine
// already wrote.
func (c *Cache) SeedBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	_, err := c.client.HSetNX(ctx, walletKey(accountID), balanceField, balance.StringFixed(2)).Result()
	if err != nil {
		return fmt.Errorf("cache: seed balance: %w", err)
	}
	return nil
}

// HardSet forcibly overwrites the cached balance for an account,
// bypassing the CAS precondition. Used only by compensation paths to
// restore a pre-transfer balance after a mid-flight failure.
func (c *Cache) HardSet(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	if err := c.client.HSet(ctx, walletKey(accountID), balanceField, balance.StringFixed(2)).Err(); err != nil {
		return fmt.Errorf("cache: hard set: %w", err)
	}
	return nil
}

// ListRemove removes up to count occurrences of a serialized ledger entry
// from an account's recent-audit list. Used only by compensation paths to
// undo a speculative append.
func (c *Cache) ListRemove(ctx context.Context, accountID int64, serialized string, count int64) error {
	if err := c.client.LRem(ctx, logKey(accountID), count, serialized).Err(); err != nil {
		return fmt.Errorf("cache: list remove: %w", err)
	}
	return nil
}

// Mutation describes one side of a two-wallet CAS: the account whose
// balance is checked and rewritten, and the ledger-entry mirror appended
// alongside it.
type Mutation struct {
	AccountID       int64
	ExpectedBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Entry           Entry
}

// Serialize renders an Entry as the flat string stored in the recent-audit
// list.
func (e Entry) Serialize() string {
	return e.TransactionID + "|" + e.Type + "|" + e.Amount + "|" + strconv.FormatInt(e.CreatedAt, 10)
}

// CompareAndSwap atomically verifies that each mutation's account
// currently holds ExpectedBalance, then writes every NewBalance and
// appends every serialized Entry, all within a single Redis MULTI/EXEC
// block guarded by WATCH on the balance keys. If any observed balance
// disagrees with the caller's expectation, no writes occur and
// ErrConflict is returned — the caller's retry loop owns deciding what
// happens next.
func (c *Cache) CompareAndSwap(ctx context.Context, mutations ...Mutation) error {
	keys := make([]string, len(mutations))
	for i, m := range mutations {
		keys[i] = walletKey(m.AccountID)
	}

	txFn := func(tx *redis.Tx) error {
		for _, m := range mutations {
			current, err := tx.HGet(ctx, walletKey(m.AccountID), balanceField).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("cache: watch read: %w", err)
			}
			if errors.Is(err, redis.Nil) {
				current = decimal.Zero.StringFixed(2)
			}
			observed, err := decimal.NewFromString(current)
			if err != nil {
				return fmt.Errorf("cache: parse watched balance: %w", err)
			}
			if !observed.Equal(m.ExpectedBalance) {
				return ErrConflict
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, m := range mutations {
				pipe.HSet(ctx, walletKey(m.AccountID), balanceField, m.NewBalance.StringFixed(2))
				pipe.RPush(ctx, logKey(m.AccountID), m.Entry.Serialize())
			}
			return nil
		})
		return err
	}

	err := c.client.Watch(ctx, txFn, keys...)
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, ErrConflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("cache: compare and swap: %w", err)
	}
	return nil
}
