// Package loadtest drives the sync engine with many concurrent grid clients.
//
// A Project seeds a store with a generated task tree, then RunClients
// simulates editors posting change batches and reloading the grid while
// latency is recorded per operation.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/acme/ganttsync/internal/db"
	"github.com/acme/ganttsync/internal/entity"
	gsync "github.com/acme/ganttsync/internal/sync"
)

// Project is a store seeded with a generated schedule.
type Project struct {
	DB        *db.DB
	Processor *gsync.Processor
	Reader    *gsync.Reader
	TaskIDs   []string
	DepIDs    []string
}

// LatencyStats captures latency for one kind of operation.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration // Median
	P95        time.Duration
	P99        time.Duration
	Operations int
	Errors     int
}

// Report holds the results of RunClients.
type Report struct {
	Batches LatencyStats
	Loads   LatencyStats
	Added   int
	Elapsed time.Duration
}

// Options controls RunClients.
type Options struct {
	// Clients is the number of concurrent editors.
	Clients int

	// BatchesPerClient is how many change batches each editor posts.
	BatchesPerClient int

	// LoadEvery makes an editor reload the full grid after every n batches.
	// Zero disables reloads.
	LoadEvery int
}

// NewProject opens a store at dbPath and seeds numTasks tasks in groups of
// ten under summary rows, chained by finish-to-start dependencies.
func NewProject(dbPath string, numTasks int) (*Project, error) {
	cfg := db.DefaultConfig()
	cfg.Path = dbPath
	cfg.MaxOpenConns = 150
	cfg.MaxIdleConns = 50

	store, err := db.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	p := &Project{
		DB:        store,
		Processor: gsync.New(store, nil),
		Reader:    gsync.NewReader(store, nil),
	}

	ctx := context.Background()
	for _, t := range generateTasks(numTasks) {
		if err := store.Create(ctx, db.Tasks, t); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to insert task %v: %w", t.ID(), err)
		}
		p.TaskIDs = append(p.TaskIDs, t.ID().(string))
	}
	for _, d := range generateDependencies(p.TaskIDs) {
		if err := store.Create(ctx, db.Dependencies, d); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to insert dependency %v: %w", d.ID(), err)
		}
		p.DepIDs = append(p.DepIDs, d.ID().(string))
	}
	return p, nil
}

// Close closes the project store.
func (p *Project) Close() error {
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}

// generateTasks builds summary rows followed by their leaf tasks.
func generateTasks(count int) []*entity.Entity {
	tasks := make([]*entity.Entity, 0, count)
	base := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	var parent string
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("lt-%05d", i)
		start := base.Add(time.Duration(i) * 24 * time.Hour)

		t := entity.New(
			entity.Field{Name: entity.IDField, Value: id},
			entity.Field{Name: "name", Value: fmt.Sprintf("Task %d", i)},
			entity.Field{Name: "startDate", Value: start.Format(time.RFC3339)},
			entity.Field{Name: "duration", Value: float64(1 + i%5)},
			entity.Field{Name: "percentDone", Value: float64(i%10) * 10},
		)
		if i%10 == 0 {
			parent = id
			t.Set("expanded", true)
		} else {
			t.Set("parentId", parent)
			t.Set("parentIndex", int64(i%10-1))
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// generateDependencies links consecutive leaf tasks in each group.
func generateDependencies(taskIDs []string) []*entity.Entity {
	var deps []*entity.Entity
	for i := 2; i < len(taskIDs); i++ {
		if i%10 == 0 || (i-1)%10 == 0 {
			continue
		}
		deps = append(deps, entity.New(
			entity.Field{Name: entity.IDField, Value: fmt.Sprintf("ltd-%05d", i)},
			entity.Field{Name: "fromEvent", Value: taskIDs[i-1]},
			entity.Field{Name: "toEvent", Value: taskIDs[i]},
			entity.Field{Name: "type", Value: int64(2)},
			entity.Field{Name: "lag", Value: float64(0)},
		))
	}
	return deps
}

// editBatch returns one client batch: a new task, a rename of an existing
// task and, every fourth batch, a delete of the task added before.
func (p *Project) editBatch(rng *rand.Rand, client, n int, lastAdded string) *gsync.Batch {
	target := p.TaskIDs[rng.Intn(len(p.TaskIDs))]
	tasks := &gsync.Changes{
		Added: []*entity.Entity{entity.New(
			entity.Field{Name: "$PhantomId", Value: fmt.Sprintf("_generated%d_%d", client, n)},
			entity.Field{Name: "name", Value: fmt.Sprintf("Client %d task %d", client, n)},
			entity.Field{Name: "startDate", Value: "2026-03-02T09:00:00Z"},
			entity.Field{Name: "duration", Value: float64(2)},
		)},
		Updated: []*entity.Entity{entity.New(
			entity.Field{Name: entity.IDField, Value: target},
			entity.Field{Name: "name", Value: fmt.Sprintf("Edited by %d", client)},
			entity.Field{Name: "percentDone", Value: float64(rng.Intn(101))},
		)},
	}
	if n%4 == 3 && lastAdded != "" {
		tasks.Removed = []*entity.Entity{entity.New(entity.Field{Name: entity.IDField, Value: lastAdded})}
	}
	return &gsync.Batch{
		RequestID: []byte(fmt.Sprintf("%d", client*100000+n)),
		Tasks:     tasks,
	}
}

// RunClients simulates opts.Clients editors working on the project at once.
func (p *Project) RunClients(ctx context.Context, opts Options) (*Report, error) {
	if opts.Clients <= 0 || opts.BatchesPerClient <= 0 {
		return nil, fmt.Errorf("clients and batches per client must be positive")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		batches []time.Duration
		loads   []time.Duration
		report  = &Report{}
	)

	start := time.Now()
	for i := 0; i < opts.Clients; i++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()

			// Deterministic per client for reproducibility
			rng := rand.New(rand.NewSource(int64(42 + client)))
			var (
				local     []time.Duration
				localLoad []time.Duration
				batchErrs int
				loadErrs  int
				added     int
				lastAdded string
			)

			for n := 0; n < opts.BatchesPerClient; n++ {
				if ctx.Err() != nil {
					break
				}
				b := p.editBatch(rng, client, n, lastAdded)

				t0 := time.Now()
				res := p.Processor.Process(ctx, b)
				local = append(local, time.Since(t0))

				if len(res.Errors()) > 0 {
					batchErrs++
				}
				if rows := res.Tasks.Rows; len(rows) > 0 && res.Outcomes[0].Err == nil {
					added++
					lastAdded, _ = rows[0].ID().(string)
				}
				if len(b.Tasks.Removed) > 0 {
					lastAdded = ""
				}

				if opts.LoadEvery > 0 && (n+1)%opts.LoadEvery == 0 {
					t0 = time.Now()
					load := p.Reader.Load(ctx)
					localLoad = append(localLoad, time.Since(t0))
					if !load.Success {
						loadErrs++
					}
				}
			}

			mu.Lock()
			batches = append(batches, local...)
			loads = append(loads, localLoad...)
			report.Batches.Errors += batchErrs
			report.Loads.Errors += loadErrs
			report.Added += added
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	report.Elapsed = time.Since(start)

	if len(batches) == 0 {
		return nil, fmt.Errorf("no batches completed")
	}

	batchErrs, loadErrs := report.Batches.Errors, report.Loads.Errors
	report.Batches = computeLatencyStats(batches)
	report.Batches.Errors = batchErrs
	report.Loads = computeLatencyStats(loads)
	report.Loads.Errors = loadErrs
	return report, nil
}

// VerifyConsistency checks that the store holds at least minTasks tasks, every
// seeded dependency, unique ids and no client-only fields.
func (p *Project) VerifyConsistency(ctx context.Context, minTasks int) error {
	load := p.Reader.Load(ctx)
	if !load.Success {
		return fmt.Errorf("failed to load project: %w", load.Err)
	}
	if got := len(load.Tasks.Rows); got < minTasks {
		return fmt.Errorf("task count = %d, want at least %d", got, minTasks)
	}
	if got := len(load.Dependencies.Rows); got != len(p.DepIDs) {
		return fmt.Errorf("dependency count = %d, want %d", got, len(p.DepIDs))
	}

	seen := make(map[any]bool, len(load.Tasks.Rows))
	for _, t := range load.Tasks.Rows {
		id := t.ID()
		if id == nil || id == "" {
			return fmt.Errorf("found task with empty id")
		}
		if seen[id] {
			return fmt.Errorf("duplicate task id %v", id)
		}
		seen[id] = true
		if _, ok := t.Get("$PhantomId"); ok {
			return fmt.Errorf("task %v stored a client-only field", id)
		}
	}
	return nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(durations)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		Operations: len(durations),
	}
}

// Print formats latency statistics under a heading.
func (s LatencyStats) Print(w io.Writer, heading string) {
	fmt.Fprintf(w, "%s:\n", heading)
	fmt.Fprintf(w, "  Operations:    %d\n", s.Operations)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
