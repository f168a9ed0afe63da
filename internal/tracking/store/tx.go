package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "seanav/pkg/domain-errors"
	txcontext "seanav/pkg/platform/tx"
)

// numTxShards spreads keys over independent mutexes so units for different
// people rarely wait on each other.
const numTxShards = 128

// defaultTxTimeout is the maximum duration for a unit without its own deadline.
const defaultTxTimeout = 5 * time.Second

// ShardedTx serializes units per key with sharded mutexes over a store whose
// individual methods are already atomic.
type ShardedTx struct {
	shards  [numTxShards]sync.Mutex
	store   Store
	timeout time.Duration
}

// NewShardedTx wraps store.
func NewShardedTx(store Store) *ShardedTx {
	return &ShardedTx{store: store, timeout: defaultTxTimeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, s Store) error) error {
	ctx, cancel, err := withTxDeadline(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	shard := hashKey(key) % numTxShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx, t.store)
}

func withTxDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// hashKey uses FNV-1a for better hash distribution than simple multiply-add.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

// PostgresTx runs each unit in a database transaction holding a
// transaction-scoped advisory lock on the key.
type PostgresTx struct {
	db      *sql.DB
	store   Store
	timeout time.Duration
}

// NewPostgresTx wraps a PostgresStore. The store joins the transaction
// through the context.
func NewPostgresTx(db *sql.DB, store Store) *PostgresTx {
	return &PostgresTx{db: db, store: store, timeout: defaultTxTimeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context, s Store) error) error {
	ctx, cancel, err := withTxDeadline(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	return txcontext.Run(ctx, t.db, func(ctx context.Context) error {
		sqlTx, _ := txcontext.From(ctx)
		if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return err
		}
		return fn(ctx, t.store)
	})
}
