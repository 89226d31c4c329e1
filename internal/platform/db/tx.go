package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/HansFred87/Mindease/internal/platform/apperror"
)

type contextKey string

const txKey contextKey = "db_tx"

// Beginner is the subset of a connection pool needed to open transactions.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn inside a database transaction. The transaction is stored in
// the context passed to fn, so repository methods resolve it via TxFromContext
// and all their statements share it. The transaction commits when fn returns
// nil and rolls back otherwise.
func WithTx(ctx context.Context, b Beginner, fn func(ctx context.Context) error) error {
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TxFromContext retrieves the enclosing transaction, or nil when the caller
// is not running inside WithTx.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// Transactor adapts a pool to the transactional-scope interface domain
// services depend on, keeping them testable with in-memory fakes.
type Transactor struct {
	b Beginner
}

func NewTransactor(b Beginner) *Transactor {
	return &Transactor{b: b}
}

const txMaxAttempts = 3

// retryableTxError reports whether the transaction was aborted by Postgres
// for a reason a fresh attempt can resolve: serialization failure (40001) or
// deadlock (40P01).
func retryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// WithinTx runs fn inside a transaction, retrying when Postgres aborts it
// with a serialization failure or deadlock. fn must therefore be safe to run
// again after a rollback. Exhausted retries surface as a conflict error.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		err = WithTx(ctx, t.b, fn)
		if err == nil || !retryableTxError(err) {
			return err
		}
	}
	return apperror.New(apperror.CodeConflict, "operation conflicted with concurrent writes, please retry")
}
