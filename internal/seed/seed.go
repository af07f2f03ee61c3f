// Package seed loads grid data files into the store and dumps the store back
// out in the same format.
//
// The file format is the GET /data payload:
//
//	{"tasks": {"rows": [...]}, "dependencies": {"rows": [...]}}
//
// Task rows may nest their subtasks under "children", as grid sample data
// usually does. Import flattens the tree, setting parentId on each child.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/acme/ganttsync/internal/db"
	"github.com/acme/ganttsync/internal/entity"
	gsync "github.com/acme/ganttsync/internal/sync"
)

// Creator inserts a single row.
type Creator interface {
	Create(ctx context.Context, collection string, e *entity.Entity) error
}

// Document is a grid data file.
type Document struct {
	Tasks        gsync.RowSet `json:"tasks"`
	Dependencies gsync.RowSet `json:"dependencies"`
}

// Options controls an import.
type Options struct {
	// Path is the data file to read.
	Path string

	// DryRun parses and flattens without writing.
	DryRun bool

	// NewID assigns ids to rows that have none. Nil uses sync.NewID.
	NewID gsync.IDGenerator
}

// Result contains statistics about an import.
type Result struct {
	Tasks        int
	Dependencies int
	Errors       []string
}

// ReadDocument decodes a data file and flattens nested tasks.
func ReadDocument(r io.Reader, newID gsync.IDGenerator) (*Document, error) {
	if newID == nil {
		newID = gsync.NewID
	}

	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse data file: %w", err)
	}

	var flat []*entity.Entity
	for _, t := range doc.Tasks.Rows {
		if t == nil {
			continue
		}
		rows, err := flatten(t, nil, newID)
		if err != nil {
			return nil, err
		}
		flat = append(flat, rows...)
	}
	doc.Tasks.Rows = flat

	for _, d := range doc.Dependencies.Rows {
		if d != nil && d.ID() == nil {
			d.Set(entity.IDField, newID())
		}
	}
	return &doc, nil
}

// flatten returns t followed by its descendants, depth first.
func flatten(t *entity.Entity, parentID any, newID gsync.IDGenerator) ([]*entity.Entity, error) {
	if t.ID() == nil {
		t.Set(entity.IDField, newID())
	}
	if parentID != nil {
		t.Set("parentId", parentID)
	}

	children, hasChildren := t.Get("children")
	row := t.Without("children")
	out := []*entity.Entity{row}
	if !hasChildren || children == nil {
		return out, nil
	}

	raw, ok := children.(entity.RawJSON)
	if !ok {
		// "children": true marks a lazily loaded node; nothing to import.
		return out, nil
	}
	var kids []*entity.Entity
	if err := json.Unmarshal([]byte(raw), &kids); err != nil {
		return nil, fmt.Errorf("invalid children of task %v: %w", t.ID(), err)
	}
	for _, k := range kids {
		if k == nil {
			continue
		}
		rows, err := flatten(k, row.ID(), newID)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// Import reads opts.Path and inserts every row through store. A failing row
// is recorded in Result.Errors and the import continues.
func Import(ctx context.Context, store Creator, opts Options) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	doc, err := ReadDocument(f, opts.NewID)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if opts.DryRun {
		result.Tasks = len(doc.Tasks.Rows)
		result.Dependencies = len(doc.Dependencies.Rows)
		return result, nil
	}

	for _, t := range doc.Tasks.Rows {
		if err := store.Create(ctx, db.Tasks, t); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("task %v: %v", t.ID(), err))
			continue
		}
		result.Tasks++
	}
	for _, d := range doc.Dependencies.Rows {
		if err := store.Create(ctx, db.Dependencies, d); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("dependency %v: %v", d.ID(), err))
			continue
		}
		result.Dependencies++
	}
	return result, nil
}

// Loader serves full snapshots.
type Loader interface {
	Load(ctx context.Context) *gsync.LoadResponse
}

// Export writes the current store contents to w as indented JSON.
func Export(ctx context.Context, loader Loader, w io.Writer) error {
	load := loader.Load(ctx)
	if !load.Success {
		return fmt.Errorf("failed to load data: %w", load.Err)
	}

	doc := Document{Tasks: load.Tasks, Dependencies: load.Dependencies}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}
