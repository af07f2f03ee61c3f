package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/acme/ganttsync/internal/entity"
)

// execer is the part of *sql.DB and *sql.Tx used for writes.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// writer issues the generated statements against either the pool or a
// transaction. parallel controls whether Update fans out.
type writer struct {
	db       *DB
	ex       execer
	parallel bool
}

// Create inserts e into collection after sanitizing its fields.
func (db *DB) Create(ctx context.Context, collection string, e *entity.Entity) error {
	return db.writer().create(ctx, collection, e)
}

// Update applies every entity's non-id fields to the row with its id.
// Statements are issued concurrently; a failing statement does not stop the
// others and the first error is returned.
func (db *DB) Update(ctx context.Context, collection string, entities []*entity.Entity) error {
	return db.writer().update(ctx, collection, entities)
}

// Delete removes the row with the given id. Deleting a missing row succeeds.
func (db *DB) Delete(ctx context.Context, collection string, id any) error {
	return db.writer().delete(ctx, collection, id)
}

func (db *DB) writer() *writer {
	return &writer{db: db, ex: db.conn, parallel: true}
}

func (w *writer) create(ctx context.Context, collection string, e *entity.Entity) error {
	if err := w.db.checkCollection(collection); err != nil {
		return err
	}

	names, values := w.db.sanitizer.Columns(e)
	if len(names) == 0 {
		return &ConfigurationError{Collection: collection, Reason: "no columns to insert"}
	}

	cols := make([]string, len(names))
	for i, n := range names {
		cols[i] = quoteIdent(n)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(collection),
		strings.Join(cols, ", "),
		placeholders(len(names)),
	)

	if _, err := w.ex.ExecContext(ctx, query, values...); err != nil {
		return storageErr("insert", collection, err)
	}
	w.db.logger.Debug().Str("collection", collection).Interface("id", e.ID()).Msg("row inserted")
	return nil
}

func (w *writer) update(ctx context.Context, collection string, entities []*entity.Entity) error {
	if err := w.db.checkCollection(collection); err != nil {
		return err
	}

	if !w.parallel {
		var first error
		for _, e := range entities {
			if err := w.updateOne(ctx, collection, e); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	var g errgroup.Group
	for _, e := range entities {
		g.Go(func() error {
			return w.updateOne(ctx, collection, e)
		})
	}
	return g.Wait()
}

func (w *writer) updateOne(ctx context.Context, collection string, e *entity.Entity) error {
	id, ok := e.Get(entity.IDField)
	if !ok || id == nil {
		return &ConfigurationError{Collection: collection, Reason: "update without id"}
	}

	rest := e.Without(entity.IDField)
	var names []string
	var values []any
	if w.db.sanitizeUpd {
		names, values = w.db.sanitizer.Columns(rest)
	} else {
		for _, f := range rest.Fields() {
			names = append(names, f.Name)
			values = append(values, f.Value)
		}
	}
	if len(names) == 0 {
		return &ConfigurationError{Collection: collection, Reason: fmt.Sprintf("no fields to update for id %v", id)}
	}

	sets := make([]string, len(names))
	for i, n := range names {
		sets[i] = quoteIdent(n) + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", quoteIdent(collection), strings.Join(sets, ", "))

	if _, err := w.ex.ExecContext(ctx, query, append(values, id)...); err != nil {
		return storageErr("update", collection, err)
	}
	return nil
}

func (w *writer) delete(ctx context.Context, collection string, id any) error {
	if err := w.db.checkCollection(collection); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", quoteIdent(collection))
	if _, err := w.ex.ExecContext(ctx, query, id); err != nil {
		return storageErr("delete", collection, err)
	}
	return nil
}

// quoteIdent quotes a SQLite identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
