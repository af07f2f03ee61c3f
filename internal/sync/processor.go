package sync

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/acme/ganttsync/internal/db"
	"github.com/acme/ganttsync/internal/entity"
)

// Store is the write surface of the persistence layer. *db.DB and *db.Tx
// implement it.
type Store interface {
	Create(ctx context.Context, collection string, e *entity.Entity) error
	Update(ctx context.Context, collection string, entities []*entity.Entity) error
	Delete(ctx context.Context, collection string, id any) error
}

// Transactional is a Store that can group a batch into one transaction.
type Transactional interface {
	Store
	Begin(ctx context.Context) (*db.Tx, error)
}

// Sub-operation names used in Outcomes.
const (
	OpAdded   = "added"
	OpUpdated = "updated"
	OpRemoved = "removed"
	OpCommit  = "commit"
)

// Outcome is the result of one sub-operation.
type Outcome struct {
	Collection string
	Op         string
	Status     Status
	Err        error
}

// Applied holds the entities echoed back for one collection.
type Applied struct {
	Rows    []*entity.Entity
	Removed []*entity.Entity
}

// Result is everything Process learned about a batch.
type Result struct {
	RequestID json.RawMessage

	// Status and Err are those of the last outcome.
	Status Status
	Err    error

	Tasks        Applied
	Dependencies Applied

	// Outcomes lists every sub-operation in execution order.
	Outcomes []Outcome
}

// Response renders the reconciliation payload for the client.
func (r *Result) Response() *Response {
	return Assemble(r.Status, r.RequestID, r.Err,
		r.Tasks.Rows, r.Dependencies.Rows,
		r.Tasks.Removed, r.Dependencies.Removed)
}

// Changed reports whether any row or removal stub was echoed.
func (r *Result) Changed() bool {
	return len(r.Tasks.Rows)+len(r.Tasks.Removed)+
		len(r.Dependencies.Rows)+len(r.Dependencies.Removed) > 0
}

// Errors returns the errors of all failed outcomes.
func (r *Result) Errors() []error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}

func (r *Result) applied(collection string) *Applied {
	if collection == db.Dependencies {
		return &r.Dependencies
	}
	return &r.Tasks
}

func (r *Result) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Status = o.Status
	r.Err = o.Err
}

// Config holds configuration for a Processor.
type Config struct {
	// Atomic runs each batch in a single transaction. The store must
	// implement Transactional.
	Atomic bool

	// MultiRow inserts every added entity and deletes every removed stub
	// instead of only the first of each.
	MultiRow bool

	// NewID generates ids for added rows. Nil uses NewID.
	NewID IDGenerator

	// Logger for batch activity. Nil disables logging.
	Logger *zerolog.Logger
}

// Processor applies batches to a Store.
type Processor struct {
	store  Store
	config Config
	logger zerolog.Logger
}

// collections is the fixed processing order.
var collections = []string{db.Tasks, db.Dependencies}

// New creates a Processor writing to store.
func New(store Store, config *Config) *Processor {
	p := &Processor{store: store, logger: zerolog.Nop()}
	if config != nil {
		p.config = *config
	}
	if p.config.NewID == nil {
		p.config.NewID = NewID
	}
	if p.config.Logger != nil {
		p.logger = p.config.Logger.With().Str("component", "sync").Logger()
	}
	return p
}

// Process applies b and returns the result. It never fails as a whole:
// every error is captured in an Outcome.
func (p *Processor) Process(ctx context.Context, b *Batch) *Result {
	res := &Result{RequestID: b.RequestID}

	store := p.store
	var tx *db.Tx
	if p.config.Atomic {
		ts, ok := p.store.(Transactional)
		if !ok {
			p.fail(res, "", OpCommit, &db.ConfigurationError{Reason: "store does not support transactions"})
			return res
		}
		var err error
		if tx, err = ts.Begin(ctx); err != nil {
			store = failingStore{err: err}
		} else {
			store = tx
		}
	}

	for _, collection := range collections {
		c := b.changes(collection)
		if c.Empty() {
			continue
		}
		p.processAdded(ctx, store, res, collection, c.Added)
		p.processUpdated(ctx, store, res, collection, c.Updated)
		p.processRemoved(ctx, store, res, collection, c.Removed)
	}

	if tx != nil {
		p.finish(res, tx)
	}

	p.logger.Debug().
		Str("batch", b.String()).
		Str("status", string(res.Status)).
		Int("outcomes", len(res.Outcomes)).
		Msg("batch processed")
	return res
}

func (p *Processor) processAdded(ctx context.Context, store Store, res *Result, collection string, added []*entity.Entity) {
	if len(added) == 0 {
		return
	}

	targets := added[:1]
	if p.config.MultiRow {
		targets = added
	}

	var last error
	for _, e := range targets {
		e.Set(entity.IDField, p.config.NewID())
		if err := store.Create(ctx, collection, e); err != nil {
			last = err
		}
	}

	a := res.applied(collection)
	a.Rows = append(a.Rows, added...)
	p.outcome(res, collection, OpAdded, StatusAdded, last)
}

func (p *Processor) processUpdated(ctx context.Context, store Store, res *Result, collection string, updated []*entity.Entity) {
	if len(updated) == 0 {
		return
	}

	a := res.applied(collection)
	a.Rows = append(a.Rows, updated...)
	err := store.Update(ctx, collection, updated)
	p.outcome(res, collection, OpUpdated, StatusUpdated, err)
}

func (p *Processor) processRemoved(ctx context.Context, store Store, res *Result, collection string, removed []*entity.Entity) {
	if len(removed) == 0 {
		return
	}

	targets := removed[:1]
	if p.config.MultiRow {
		targets = removed
	}

	a := res.applied(collection)
	var last error
	for _, stub := range targets {
		a.Removed = append(a.Removed, stub)
		if err := store.Delete(ctx, collection, stub.ID()); err != nil {
			last = err
		}
	}
	p.outcome(res, collection, OpRemoved, StatusDeleted, last)
}

// finish commits tx, or rolls it back if any sub-operation failed.
func (p *Processor) finish(res *Result, tx *db.Tx) {
	errs := res.Errors()
	if len(errs) == 0 {
		if err := tx.Commit(); err != nil {
			p.fail(res, "", OpCommit, err)
		}
		return
	}

	if err := tx.Rollback(); err != nil {
		p.logger.Error().Err(err).Msg("rollback failed")
	}
	if res.Err == nil {
		// A later sub-operation succeeded, but the batch as a whole did not.
		p.fail(res, "", OpCommit, errs[len(errs)-1])
	}
}

func (p *Processor) outcome(res *Result, collection, op string, ok Status, err error) {
	if err != nil {
		p.fail(res, collection, op, err)
		return
	}
	res.record(Outcome{Collection: collection, Op: op, Status: ok})
}

func (p *Processor) fail(res *Result, collection, op string, err error) {
	p.logger.Error().Err(err).Str("collection", collection).Str("op", op).Msg("sub-operation failed")
	res.record(Outcome{Collection: collection, Op: op, Status: StatusError, Err: err})
}

// failingStore answers every write with the error that prevented the
// transaction from starting.
type failingStore struct {
	err error
}

func (f failingStore) Create(context.Context, string, *entity.Entity) error   { return f.err }
func (f failingStore) Update(context.Context, string, []*entity.Entity) error { return f.err }
func (f failingStore) Delete(context.Context, string, any) error              { return f.err }
