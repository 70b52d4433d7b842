package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txStatusKey = TxContextKey("txStatus")
const txKey = TxContextKey("tx-context-key")

const (
	txStatusOwner  = "owner"
	txStatusNested = "nested"
)

type Tx interface {
	Querier
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx and tracks whether it has been closed.
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{
		Tx:     tx,
		logger: logger,
	}
}

// GetTx returns the transaction already carried by ctx, or begins one. When a session is
// present the transaction is opened on the session connection.
//
// Only the caller that began the transaction can commit or roll it back; nested callers get a
// context marked as nested and their Commit/Rollback calls are no-ops.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	ctxTx, ok := ctx.Value(txKey).(Tx)
	if ok && ctxTx != nil && ctxTx.IsOpen() {
		return context.WithValue(ctx, txStatusKey, txStatusNested), ctxTx, nil
	}

	var (
		tx  *sqlx.Tx
		err error
	)
	if s := sessionFromContext(ctx); s != nil {
		tx, err = s.conn.BeginTxx(ctx, opts)
	} else {
		tx, err = db.BeginTxx(ctx, opts)
	}
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)

	ctx = context.WithValue(ctx, txStatusKey, txStatusOwner)
	ctx = context.WithValue(ctx, txKey, newTx)
	return ctx, newTx, nil
}

// RunInTx runs fn inside a transaction, committing on success and rolling back on error.
func RunInTx(ctx context.Context, db DB, fn func(ctx context.Context) error) error {
	ctxTx, tx, err := db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctxTx)

	if err := fn(ctxTx); err != nil {
		return err
	}

	return tx.Commit(ctxTx)
}

func isNested(ctx context.Context) bool {
	status, _ := ctx.Value(txStatusKey).(string)
	return status == txStatusNested
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed || isNested(ctx) {
		return nil
	}

	t.isClosed = true
	if err := t.Tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}

	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed || isNested(ctx) {
		return nil
	}

	t.isClosed = true
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}

	return nil
}
