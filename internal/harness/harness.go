package harness

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/criterium/internal/engine"
	"github.com/roach88/criterium/internal/schema"
	"github.com/roach88/criterium/internal/store"
	"github.com/roach88/criterium/internal/testutil"
)

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic token generation and discarded request logging keep the
// output reproducible for golden comparison.
//
// Execution flow:
// 1. Compile the scenario's CUE schema files into a registry
// 2. Create a fresh in-memory SQLite database, materialize the tables
// 3. Seed the scenario rows
// 4. Execute each step, recording plan, page, error, and query count
// 5. Evaluate expectations and return the result
//
// Run fails with an error only when the scenario cannot be brought up
// (unreadable schema, seed failure). Step-level query errors are
// recorded on the step and judged by the step's expectations.
func Run(scenario *Scenario) (*Result, error) {
	entities, registry, err := compileSchema(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile scenario schema: %w", err)
	}

	// Fresh in-memory SQLite database per scenario
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := st.EnsureSchema(entities); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	ctx := context.Background()
	if err := st.Seed(ctx, scenario.Rows); err != nil {
		return nil, fmt.Errorf("failed to seed rows: %w", err)
	}

	// Count every statement the engine issues; seeding above goes
	// through the store directly and stays out of the count.
	counter := &countingQuerier{db: st.DB()}

	eng := engine.New(counter, registry,
		engine.WithTokenGenerator(testutil.NewFixedTokenGenerator(scenario.Name)),
		engine.WithLogger(testutil.DiscardLogger()),
	)

	result := NewResult()
	for i := range scenario.Steps {
		step := &scenario.Steps[i]

		cond, err := step.Request.Condition()
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: failed to build condition: %w", i, err)
		}

		sr := StepResult{Entity: step.Request.Entity}

		// Build issues no SQL; capture the plan trace even when
		// execution is expected to fail later.
		if plan, err := eng.Build(step.Request.Entity, cond); err == nil {
			sr.Plan = plan.Describe()
		}

		counter.reset()
		if step.Request.WithCount() {
			sr.Page, sr.Err = eng.FindPage(ctx, step.Request.Entity, cond)
		} else {
			sr.Page, sr.Err = eng.FindPageWithoutCount(ctx, step.Request.Entity, cond)
		}
		sr.Queries = counter.count()

		result.Steps = append(result.Steps, sr)
	}

	for _, err := range EvaluateAssertions(scenario, result) {
		result.AddError(err.Error())
	}

	return result, nil
}

// compileSchema compiles the scenario's CUE files and registers every
// entity. Multiple files unify into one value before compilation, so
// entities may be split across files.
func compileSchema(paths []string) ([]schema.Entity, *schema.Registry, error) {
	cctx := cuecontext.New()

	var unified cue.Value
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read schema file: %w", err)
		}
		v := cctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, nil, fmt.Errorf("compile %s: %w", path, err)
		}
		if i == 0 {
			unified = v
		} else {
			unified = unified.Unify(v)
		}
	}
	if err := unified.Err(); err != nil {
		return nil, nil, fmt.Errorf("unify schema files: %w", err)
	}

	entities, err := schema.CompileEntities(unified)
	if err != nil {
		return nil, nil, err
	}

	registry := schema.NewRegistry()
	for _, e := range entities {
		if err := registry.Register(e); err != nil {
			return nil, nil, err
		}
	}
	if err := registry.Validate(); err != nil {
		return nil, nil, err
	}
	return entities, registry, nil
}

// countingQuerier wraps the store's database handle and counts every
// statement the engine issues. The count is read between steps, so it
// uses an atomic in case the engine runs load chunks in parallel.
type countingQuerier struct {
	db *sql.DB
	n  atomic.Int64
}

func (c *countingQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.n.Add(1)
	return c.db.QueryContext(ctx, query, args...)
}

func (c *countingQuerier) reset() { c.n.Store(0) }

func (c *countingQuerier) count() int { return int(c.n.Load()) }
