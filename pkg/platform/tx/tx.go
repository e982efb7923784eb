// Package tx carries a SQL transaction through context so that stores touched
// by one mutation share a single commit point. The recipient write path relies
// on this: the entity write and its change-log entries either commit together
// or not at all.
package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner provides a transactional boundary for read-validate-write sequences.
// Implementations may wrap a database transaction or, in-memory, a coarse lock.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner runs the callback inside a database transaction injected into the
// callback's context. Stores that resolve their executor via From observe the
// transaction automatically.
//
// Transactions run at SERIALIZABLE isolation: the validate step of a
// read-validate-write sequence reads rows (ancestor chains in particular) that
// the sequence never locks, and row locks alone cannot stop two concurrent
// parent reassignments from jointly closing a cycle through a chain neither
// writer touched. Under serializable isolation PostgreSQL aborts one of the
// overlapping transactions instead; the runner retries it, and the retried
// callback re-validates against the committed state.
type SQLRunner struct {
	DB *sql.DB
}

// maxTxAttempts bounds serialization-failure retries per RunInTx call.
const maxTxAttempts = 3

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		// Already inside a transaction; join it rather than nesting.
		return fn(ctx)
	}
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = r.runOnce(ctx, fn)
		if err == nil || !SerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", err)
}

func (r *SQLRunner) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	dbTx, err := r.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(WithTx(ctx, dbTx)); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SerializationFailure reports whether err is a PostgreSQL serialization
// failure or deadlock, the two outcomes a serializable transaction is expected
// to retry.
func SerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

// MemoryRunner serializes transactions with a single mutex. It backs the
// in-memory stores, where a coarse lock gives the same two-writers-cannot-
// interleave guarantee a row lock gives in PostgreSQL.
type MemoryRunner struct {
	mu sync.Mutex
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
