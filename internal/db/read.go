package db

import (
	"context"
	"fmt"

	"github.com/acme/ganttsync/internal/entity"
)

// ReadAll returns every row of collection as entities with fields in column
// order. Stored NULLs are returned as nil; text columns as strings.
func (db *DB) ReadAll(ctx context.Context, collection string) ([]*entity.Entity, error) {
	if err := db.checkCollection(collection); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, "SELECT * FROM "+quoteIdent(collection))
	if err != nil {
		return nil, storageErr("select", collection, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, storageErr("select", collection, err)
	}

	out := make([]*entity.Entity, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, storageErr("select", collection, err)
		}

		e := &entity.Entity{}
		for i, name := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			e.Set(name, v)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("select", collection, err)
	}
	return out, nil
}

// Count returns the number of rows in collection.
func (db *DB) Count(collection string) (int, error) {
	return db.CountContext(context.Background(), collection)
}

// CountContext returns the number of rows in collection with context support.
func (db *DB) CountContext(ctx context.Context, collection string) (int, error) {
	if err := db.checkCollection(collection); err != nil {
		return 0, err
	}

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(collection))
	if err := db.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, storageErr("count", collection, err)
	}
	return count, nil
}
