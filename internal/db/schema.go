package db

import (
	"context"
	"fmt"
)

// schemaSQL declares the columns the grid sends for each collection. Date
// columns are TEXT so both drivers return the stored string unchanged.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	parentId TEXT,
	parentIndex INTEGER,
	name TEXT,
	startDate TEXT,
	endDate TEXT,
	duration REAL,
	durationUnit TEXT,
	effort REAL,
	effortUnit TEXT,
	effortDriven INTEGER,
	percentDone REAL,
	schedulingMode TEXT,
	constraintType TEXT,
	constraintDate TEXT,
	deadline TEXT,
	manuallyScheduled INTEGER,
	unscheduled INTEGER,
	inactive INTEGER,
	expanded INTEGER,
	rollup INTEGER,
	showInTimeline INTEGER,
	calendar TEXT,
	direction TEXT,
	note TEXT,
	cls TEXT,
	iconCls TEXT,
	color TEXT
);

CREATE TABLE IF NOT EXISTS dependencies (
	id TEXT PRIMARY KEY,
	fromEvent TEXT,
	toEvent TEXT,
	type INTEGER,
	lag REAL,
	lagUnit TEXT,
	active INTEGER,
	fromSide TEXT,
	toSide TEXT,
	calendar TEXT,
	cls TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parentId);
CREATE INDEX IF NOT EXISTS idx_dependencies_from ON dependencies(fromEvent);
CREATE INDEX IF NOT EXISTS idx_dependencies_to ON dependencies(toEvent);
`

// InitSchema creates the tasks and dependencies tables if they don't exist.
// This is idempotent - safe to call multiple times. Existing tables are
// never altered.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
