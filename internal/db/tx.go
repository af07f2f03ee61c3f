package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/acme/ganttsync/internal/entity"
)

// Tx groups writes into a single transaction. Updates inside a Tx run
// sequentially.
type Tx struct {
	tx *sql.Tx
	w  *writer
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin", "", err)
	}
	return &Tx{tx: tx, w: &writer{db: db, ex: tx}}, nil
}

// Create inserts e into collection within the transaction.
func (t *Tx) Create(ctx context.Context, collection string, e *entity.Entity) error {
	return t.w.create(ctx, collection, e)
}

// Update applies entities within the transaction, one at a time.
func (t *Tx) Update(ctx context.Context, collection string, entities []*entity.Entity) error {
	return t.w.update(ctx, collection, entities)
}

// Delete removes a row within the transaction.
func (t *Tx) Delete(ctx context.Context, collection string, id any) error {
	return t.w.delete(ctx, collection, id)
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return storageErr("commit", "", fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a
// no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return storageErr("rollback", "", err)
	}
	return nil
}
