package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Checkpoint folds the WAL back into the database file and refreshes query
// planner statistics.
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return storageErr("checkpoint", "", err)
	}
	if _, err := db.conn.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return storageErr("optimize", "", err)
	}
	return nil
}

// Maintainer runs Checkpoint on a cron schedule.
type Maintainer struct {
	db      *DB
	spec    string
	timeout time.Duration

	mu      sync.Mutex
	c       *cron.Cron
	lastRun time.Time
	lastErr error
}

// NewMaintainer validates spec and returns a stopped Maintainer. Accepted
// specs are standard five-field expressions and descriptors such as
// "@every 10m" or "@hourly".
func NewMaintainer(db *DB, spec string) (*Maintainer, error) {
	if spec == "" {
		return nil, &ConfigurationError{Reason: "maintenance schedule is empty"}
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", spec, err)
	}

	m := &Maintainer{db: db, spec: spec, timeout: 30 * time.Second}
	m.c = cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))
	if _, err := m.c.AddFunc(spec, m.run); err != nil {
		return nil, fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	return m, nil
}

// Start begins running the schedule in the background.
func (m *Maintainer) Start() {
	m.c.Start()
	m.db.logger.Info().Str("schedule", m.spec).Msg("maintenance scheduled")
}

// Stop halts the schedule and waits for a running job to finish.
func (m *Maintainer) Stop() {
	<-m.c.Stop().Done()
}

// Last reports when maintenance last ran and its result.
func (m *Maintainer) Last() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun, m.lastErr
}

func (m *Maintainer) run() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	start := time.Now()
	err := m.db.Checkpoint(ctx)

	m.mu.Lock()
	m.lastRun, m.lastErr = start, err
	m.mu.Unlock()

	if err != nil {
		m.db.logger.Warn().Err(err).Msg("maintenance failed")
		return
	}
	m.db.logger.Debug().Dur("took", time.Since(start)).Msg("maintenance complete")
}
