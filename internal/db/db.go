// Package db provides the SQLite persistence layer for the scheduling grid.
//
// Rows are stored schemalessly from the server's point of view: every write
// is generated from the fields of an entity.Entity, with identifiers quoted
// and values bound as parameters. The tables themselves are created by
// InitSchema with the columns the grid is known to send.
//
// Two drivers are supported:
//   - "sqlite3": github.com/ncruces/go-sqlite3 (WASM build, default)
//   - "sqlite":  modernc.org/sqlite (pure Go transpile)
//
// The database runs in WAL mode so reads from GET /data proceed while a
// batch is being written.
//
// Example:
//
//	store, err := db.Open(db.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "modernc.org/sqlite"

	"github.com/acme/ganttsync/internal/fields"
)

// Collection names known to the schema.
const (
	Tasks        = "tasks"
	Dependencies = "dependencies"
)

// Config holds configuration for the store.
type Config struct {
	// Driver is the database/sql driver name: "sqlite3" or "sqlite".
	Driver string

	// Path is the database file. Parent directories are created.
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration

	// Collections lists the tables writes may target.
	Collections []string

	// Sanitizer filters and normalizes fields before insert. Nil uses the
	// default rules.
	Sanitizer *fields.Sanitizer

	// SanitizeUpdates applies Sanitizer to update statements as well.
	SanitizeUpdates bool

	// Logger for store activity. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Driver:          "sqlite3",
		Path:            filepath.Join("data", "gantt.db"),
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		BusyTimeout:     5 * time.Second,
		Collections:     []string{Tasks, Dependencies},
	}
}

// DB wraps the pooled connection with collection-aware writes.
type DB struct {
	conn        *sql.DB
	path        string
	collections map[string]struct{}
	order       []string
	sanitizer   *fields.Sanitizer
	sanitizeUpd bool
	logger      zerolog.Logger
}

// Open creates a connection pool for cfg and verifies it.
//
// The caller MUST call Close() when done to ensure the WAL is checkpointed.
func Open(cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		return nil, &ConfigurationError{Reason: "database path is required"}
	}
	if cfg.Driver != "sqlite3" && cfg.Driver != "sqlite" {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unsupported driver %q", cfg.Driver)}
	}
	if len(cfg.Collections) == 0 {
		return nil, &ConfigurationError{Reason: "at least one collection is required"}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open(cfg.Driver, dsn(cfg.Path, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	db := &DB{
		conn:        conn,
		path:        cfg.Path,
		collections: make(map[string]struct{}, len(cfg.Collections)),
		order:       append([]string(nil), cfg.Collections...),
		sanitizer:   cfg.Sanitizer,
		sanitizeUpd: cfg.SanitizeUpdates,
		logger:      zerolog.Nop(),
	}
	for _, c := range cfg.Collections {
		db.collections[c] = struct{}{}
	}
	if cfg.Logger != nil {
		db.logger = cfg.Logger.With().Str("component", "db").Logger()
	}
	if db.sanitizer == nil {
		db.sanitizer = fields.NewSanitizer(fields.DefaultRules(), cfg.Logger)
	}

	db.logger.Debug().Str("driver", cfg.Driver).Str("path", cfg.Path).Msg("database opened")
	return db, nil
}

// dsn builds a file URI with per-connection pragmas. Both drivers apply
// _pragma parameters to every connection they open.
func dsn(path string, busy time.Duration) string {
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(wal)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Sanitizer returns the field sanitizer used for writes.
func (db *DB) Sanitizer() *fields.Sanitizer {
	return db.sanitizer
}

// Collections returns the writable collections in configured order.
func (db *DB) Collections() []string {
	return append([]string(nil), db.order...)
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Warn().Err(err).Msg("failed to checkpoint WAL")
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (db *DB) checkCollection(collection string) error {
	if _, ok := db.collections[collection]; !ok {
		return &ConfigurationError{Collection: collection, Reason: "unknown collection"}
	}
	return nil
}
