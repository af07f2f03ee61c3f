package sync

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/acme/ganttsync/internal/db"
	"github.com/acme/ganttsync/internal/entity"
)

// Source is the read surface of the persistence layer.
type Source interface {
	ReadAll(ctx context.Context, collection string) ([]*entity.Entity, error)
}

// RowSet is one collection of a load payload.
type RowSet struct {
	Rows []*entity.Entity `json:"rows"`
}

// LoadResponse is the payload of GET /data.
type LoadResponse struct {
	Success      bool   `json:"success"`
	Tasks        RowSet `json:"tasks"`
	Dependencies RowSet `json:"dependencies"`

	Err error `json:"-"`
}

// MarshalJSON renders a failed load as the generic error payload.
func (l *LoadResponse) MarshalJSON() ([]byte, error) {
	if !l.Success {
		return json.Marshal(ErrorResponse(l.Err))
	}
	type plain LoadResponse
	return json.Marshal((*plain)(l))
}

// Reader serves full snapshots of both collections.
type Reader struct {
	source Source
	logger zerolog.Logger
}

// NewReader creates a Reader. A nil logger disables logging.
func NewReader(source Source, logger *zerolog.Logger) *Reader {
	r := &Reader{source: source, logger: zerolog.Nop()}
	if logger != nil {
		r.logger = logger.With().Str("component", "reader").Logger()
	}
	return r
}

// Load fetches every task and dependency concurrently. Any failure yields
// an unsuccessful response carrying the error.
func (r *Reader) Load(ctx context.Context) *LoadResponse {
	var tasks, deps []*entity.Entity

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = r.source.ReadAll(gctx, db.Tasks)
		return err
	})
	g.Go(func() error {
		var err error
		deps, err = r.source.ReadAll(gctx, db.Dependencies)
		return err
	})

	if err := g.Wait(); err != nil {
		r.logger.Error().Err(err).Msg("load failed")
		return &LoadResponse{Err: err}
	}

	return &LoadResponse{
		Success:      true,
		Tasks:        RowSet{Rows: nonNil(tasks)},
		Dependencies: RowSet{Rows: nonNil(deps)},
	}
}
