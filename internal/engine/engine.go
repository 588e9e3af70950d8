package engine

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/roach88/criterium/internal/condition"
	"github.com/roach88/criterium/internal/key"
	"github.com/roach88/criterium/internal/relation"
	"github.com/roach88/criterium/internal/schema"
)

// DefaultMaxBatchSize caps the number of keys per load chunk. The
// effective chunk size is the smaller of this cap and what the
// bind-parameter budget allows for the entity's key width.
const DefaultMaxBatchSize = 500

// Querier is the execution surface the engine needs. Satisfied by
// *sql.DB, *sql.Tx, and test doubles; running all phases of one request
// on a *sql.Tx gives them a single consistent read view.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Engine builds and executes search conditions. Construct once with New
// and share freely: the engine itself is stateless across requests.
type Engine struct {
	db       Querier
	intro    schema.Introspector
	analyzer *relation.Analyzer
	logger   *slog.Logger
	tokens   TokenGenerator
	encoder  key.Encoder
	maxBatch int
	parallel int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTokenGenerator replaces the request token source. Tests inject a
// fixed generator for deterministic log and golden output.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) {
		e.tokens = g
	}
}

// WithMaxBatchSize caps the keys per load chunk. Values below 1 are
// ignored.
func WithMaxBatchSize(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxBatch = n
		}
	}
}

// WithParallelChunks allows up to limit load chunks in flight at once.
// Results are still concatenated in chunk order, so observable ordering
// does not change. Limits below 2 keep execution sequential.
func WithParallelChunks(limit int) Option {
	return func(e *Engine) {
		e.parallel = limit
	}
}

// WithKeyEncoder sets the key membership encoder: encoding choice,
// row-value support, and the bind-parameter budget.
func WithKeyEncoder(enc key.Encoder) Option {
	return func(e *Engine) {
		e.encoder = enc
	}
}

// New creates an Engine over the given execution surface and metadata
// source. The default configuration targets SQLite: row-value
// comparisons on, 999 bind parameters, 500-key load chunks.
func New(db Querier, intro schema.Introspector, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		intro:    intro,
		analyzer: relation.NewAnalyzer(intro),
		logger:   slog.Default(),
		tokens:   UUIDv7Generator{},
		encoder:  key.Encoder{RowValues: true},
		maxBatch: DefaultMaxBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FindPage executes the condition and returns the requested page with
// its distinct total count. Conditions touching to-many paths run in
// two phases; everything else runs as one combined query.
func (e *Engine) FindPage(ctx context.Context, entity string, cond condition.SearchCondition) (*Page, error) {
	return e.find(ctx, entity, cond, true)
}

// FindPageWithoutCount is FindPage minus the count phase: TotalCount on
// the returned page is nil. Use it when the caller renders "next page"
// style navigation and the total would be thrown away.
func (e *Engine) FindPageWithoutCount(ctx context.Context, entity string, cond condition.SearchCondition) (*Page, error) {
	return e.find(ctx, entity, cond, false)
}

func (e *Engine) find(ctx context.Context, entity string, cond condition.SearchCondition, withCount bool) (*Page, error) {
	plan, err := e.Build(entity, cond)
	if err != nil {
		return nil, err
	}

	log := e.requestLogger(entity)
	if plan.TwoPhase() {
		return e.findTwoPhase(ctx, log, plan, withCount)
	}
	return e.findSinglePhase(ctx, log, plan, withCount)
}

// FindWithCursor executes the condition as a single cursor-style query
// with a total count. Conditions touching to-many paths are rejected
// with ErrCodeCursorToMany: a row-multiplying join under a cursor would
// surface duplicate roots.
func (e *Engine) FindWithCursor(ctx context.Context, entity string, cond condition.SearchCondition) (*Page, error) {
	return e.cursor(ctx, entity, cond, true)
}

// FindWithCursorWithoutCount is FindWithCursor minus the count query.
func (e *Engine) FindWithCursorWithoutCount(ctx context.Context, entity string, cond condition.SearchCondition) (*Page, error) {
	return e.cursor(ctx, entity, cond, false)
}

func (e *Engine) cursor(ctx context.Context, entity string, cond condition.SearchCondition, withCount bool) (*Page, error) {
	plan, err := e.Build(entity, cond)
	if err != nil {
		return nil, err
	}
	if plan.TwoPhase() {
		return nil, newCursorError(entity, plan.ToManyPaths)
	}
	return e.findSinglePhase(ctx, e.requestLogger(entity), plan, withCount)
}

// Count returns the distinct total matching the condition's filter.
// Sort, paging, and load paths in the condition are irrelevant to the
// result.
func (e *Engine) Count(ctx context.Context, entity string, cond condition.SearchCondition) (int64, error) {
	plan, err := e.Build(entity, cond)
	if err != nil {
		return 0, err
	}
	return e.runCount(ctx, e.requestLogger(entity), plan)
}

// Exists reports whether at least one row matches the condition's
// filter. Cheaper than Count when only presence matters.
func (e *Engine) Exists(ctx context.Context, entity string, cond condition.SearchCondition) (bool, error) {
	plan, err := e.Build(entity, cond)
	if err != nil {
		return false, err
	}
	return e.runExists(ctx, e.requestLogger(entity), plan)
}

func (e *Engine) requestLogger(entity string) *slog.Logger {
	return e.logger.With("token", e.tokens.Generate(), "entity", entity)
}
