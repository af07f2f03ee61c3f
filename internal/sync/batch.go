package sync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/acme/ganttsync/internal/db"
	"github.com/acme/ganttsync/internal/entity"
)

// Changes holds the proposed changes to one collection.
type Changes struct {
	Added   []*entity.Entity `json:"added,omitempty"`
	Updated []*entity.Entity `json:"updated,omitempty"`
	Removed []*entity.Entity `json:"removed,omitempty"`
}

// Empty reports whether c carries no changes.
func (c *Changes) Empty() bool {
	return c == nil || (len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0)
}

// Batch is one client sync request.
type Batch struct {
	// RequestID is echoed verbatim. It may be any JSON value.
	RequestID    json.RawMessage `json:"requestId,omitempty"`
	Tasks        *Changes        `json:"tasks,omitempty"`
	Dependencies *Changes        `json:"dependencies,omitempty"`
}

// DecodeBatch reads a Batch from r. Anything other than a JSON object whose
// collections hold arrays of objects is a *db.ValidationError.
func DecodeBatch(r io.Reader) (*Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &db.ValidationError{Reason: "failed to read batch", Err: err}
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, &db.ValidationError{Reason: "batch must be a JSON object"}
	}

	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &db.ValidationError{Reason: "malformed batch", Err: err}
	}
	for _, c := range []*Changes{b.Tasks, b.Dependencies} {
		if c == nil {
			continue
		}
		for _, list := range [][]*entity.Entity{c.Added, c.Updated, c.Removed} {
			for _, e := range list {
				if e == nil {
					return nil, &db.ValidationError{Reason: "batch contains a null entity"}
				}
			}
		}
	}
	return &b, nil
}

// changes returns the Changes for a collection name.
func (b *Batch) changes(collection string) *Changes {
	switch collection {
	case db.Tasks:
		return b.Tasks
	case db.Dependencies:
		return b.Dependencies
	default:
		return nil
	}
}

// String summarizes the batch for logs.
func (b *Batch) String() string {
	count := func(c *Changes) string {
		if c == nil {
			return "0/0/0"
		}
		return fmt.Sprintf("%d/%d/%d", len(c.Added), len(c.Updated), len(c.Removed))
	}
	return fmt.Sprintf("tasks=%s dependencies=%s", count(b.Tasks), count(b.Dependencies))
}
