package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/criterium/internal/key"
	"github.com/roach88/criterium/internal/queryplan"
	"github.com/roach88/criterium/internal/querysql"
)

// findTwoPhase runs identify, load, and count. An empty identify phase
// short-circuits: the total is trivially zero and no further query is
// issued.
func (e *Engine) findTwoPhase(ctx context.Context, log *slog.Logger, plan *queryplan.Plan, withCount bool) (*Page, error) {
	log.Info("two-phase search", "page", plan.Page, "size", plan.Size, "to_many", plan.ToManyPaths)

	keys, err := e.phaseKeys(ctx, plan)
	if err != nil {
		return nil, err
	}
	log.Debug("identify phase complete", "keys", len(keys))

	page := &Page{
		Content:    []Record{},
		PageNumber: plan.Page,
		PageSize:   plan.Size,
		Warnings:   plan.Warnings,
	}
	if len(keys) == 0 {
		if withCount {
			zero := int64(0)
			page.TotalCount = &zero
		}
		return page, nil
	}

	records, err := e.phaseLoad(ctx, log, plan, keys)
	if err != nil {
		return nil, err
	}
	page.Content = records

	if withCount {
		total, err := e.runCount(ctx, log, plan)
		if err != nil {
			return nil, err
		}
		page.TotalCount = &total
	}
	return page, nil
}

// findSinglePhase runs one combined query: predicate, sort, paging, and
// eager loads together. Only safe when no to-many path is involved,
// since row-multiplying joins would make LIMIT count join rows instead
// of roots.
func (e *Engine) findSinglePhase(ctx context.Context, log *slog.Logger, plan *queryplan.Plan, withCount bool) (*Page, error) {
	log.Info("single-phase search", "page", plan.Page, "size", plan.Size)

	q, err := querysql.PageQuery(plan)
	if err != nil {
		return nil, classify(plan.Entity, err)
	}
	rows, err := e.queryAll(ctx, q, "page")
	if err != nil {
		return nil, err
	}
	records, _, err := foldRows(plan, querysql.PageColumns(plan), rows)
	if err != nil {
		return nil, classify(plan.Entity, err)
	}

	page := &Page{
		Content:    records,
		PageNumber: plan.Page,
		PageSize:   plan.Size,
		Warnings:   plan.Warnings,
	}
	if withCount {
		total, err := e.runCount(ctx, log, plan)
		if err != nil {
			return nil, err
		}
		page.TotalCount = &total
	}
	return page, nil
}

// phaseKeys executes the identifying query and returns the page's keys
// in result order. Sort columns selected alongside the keys are
// discarded; when a to-many sort makes them non-distinct per key,
// duplicate keys are dropped first-occurrence-wins.
func (e *Engine) phaseKeys(ctx context.Context, plan *queryplan.Plan) ([]key.Composite, error) {
	q, err := querysql.KeyQuery(plan)
	if err != nil {
		return nil, classify(plan.Entity, err)
	}
	codec, err := key.NewCodec(plan.KeyFields)
	if err != nil {
		return nil, classify(plan.Entity, err)
	}

	rows, err := e.queryAll(ctx, q, "key")
	if err != nil {
		return nil, err
	}

	width := len(plan.KeyFields)
	seen := make(map[string]bool, len(rows))
	keys := make([]key.Composite, 0, len(rows))
	for _, vals := range rows {
		k, err := codec.FromValues(vals[:width])
		if err != nil {
			return nil, classify(plan.Entity, err)
		}
		if canon := k.Canon(); !seen[canon] {
			seen[canon] = true
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// phaseLoad fetches full records for the identified keys in chunks and
// reassembles them in key order. Any chunk failure aborts the whole
// load; there are no partial pages.
func (e *Engine) phaseLoad(ctx context.Context, log *slog.Logger, plan *queryplan.Plan, keys []key.Composite) ([]Record, error) {
	size := e.chunkSize(plan)
	if size < 1 {
		return nil, &QueryError{
			Code:    ErrCodeCompositeKeyUnsupported,
			Message: fmt.Sprintf("key width %d exceeds the bind-parameter budget", len(plan.KeyFields)),
			Entity:  plan.Entity,
			Batch:   -1,
		}
	}

	chunks := chunkKeys(keys, size)
	log.Debug("load phase", "keys", len(keys), "chunks", len(chunks), "chunk_size", size)

	results := make([][][]any, len(chunks))
	if e.parallel < 2 || len(chunks) < 2 {
		for i, chunk := range chunks {
			rows, err := e.loadChunk(ctx, plan, chunk)
			if err != nil {
				return nil, e.chunkError(plan.Entity, i, err)
			}
			results[i] = rows
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.parallel)
		for i, chunk := range chunks {
			i, chunk := i, chunk
			g.Go(func() error {
				rows, err := e.loadChunk(gctx, plan, chunk)
				if err != nil {
					return e.chunkError(plan.Entity, i, err)
				}
				results[i] = rows
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var rows [][]any
	for _, r := range results {
		rows = append(rows, r...)
	}
	records, canons, err := foldRows(plan, querysql.LoadColumns(plan), rows)
	if err != nil {
		return nil, classify(plan.Entity, err)
	}
	return e.restoreOrder(log, keys, records, canons), nil
}

// chunkSize is the smaller of the configured batch cap and what the
// encoder's bind-parameter budget allows for this key width.
func (e *Engine) chunkSize(plan *queryplan.Plan) int {
	size := e.maxBatch
	if limit := e.encoder.MaxKeysPerBatch(len(plan.KeyFields)); limit < size {
		size = limit
	}
	return size
}

func chunkKeys(keys []key.Composite, size int) [][]key.Composite {
	var chunks [][]key.Composite
	for len(keys) > size {
		chunks = append(chunks, keys[:size])
		keys = keys[size:]
	}
	return append(chunks, keys)
}

func (e *Engine) loadChunk(ctx context.Context, plan *queryplan.Plan, keys []key.Composite) ([][]any, error) {
	q, err := querysql.LoadQuery(plan, e.encoder, keys)
	if err != nil {
		return nil, err
	}
	return e.queryAll(ctx, q, "load")
}

func (e *Engine) chunkError(entity string, batch int, err error) error {
	if key.IsUnsupportedError(err) {
		return classify(entity, err)
	}
	var qerr *QueryError
	if errors.As(err, &qerr) {
		return err
	}
	return newBatchError(entity, batch, err)
}

// restoreOrder maps loaded records back onto the identify phase's key
// order. Keys that vanished between phases (deleted concurrently) are
// compacted out, shortening the page rather than leaving holes.
func (e *Engine) restoreOrder(log *slog.Logger, keys []key.Composite, records []Record, canons []string) []Record {
	byCanon := make(map[string]Record, len(records))
	for i, c := range canons {
		byCanon[c] = records[i]
	}

	ordered := make([]Record, 0, len(keys))
	for _, k := range keys {
		rec, ok := byCanon[k.Canon()]
		if !ok {
			log.Debug("identified key missing from load phase", "key", k.Canon())
			continue
		}
		ordered = append(ordered, rec)
	}
	return ordered
}

// runCount executes the distinct count for the plan's predicate,
// independent of paging.
func (e *Engine) runCount(ctx context.Context, log *slog.Logger, plan *queryplan.Plan) (int64, error) {
	q, err := querysql.CountQuery(plan)
	if err != nil {
		return 0, classify(plan.Entity, err)
	}
	sqlText, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("render count query: %w", err)
	}

	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return 0, fmt.Errorf("execute count query: %w", err)
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, fmt.Errorf("scan count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate count rows: %w", err)
	}
	log.Debug("count phase complete", "total", total)
	return total, nil
}

func (e *Engine) runExists(ctx context.Context, log *slog.Logger, plan *queryplan.Plan) (bool, error) {
	q, err := querysql.ExistsQuery(plan)
	if err != nil {
		return false, classify(plan.Entity, err)
	}
	sqlText, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("render exists query: %w", err)
	}

	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return false, fmt.Errorf("execute exists query: %w", err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate exists rows: %w", err)
	}
	log.Debug("exists check complete", "found", found)
	return found, nil
}

// queryAll renders and executes a select, scanning every row into a
// value slice sized by the result's column count.
func (e *Engine) queryAll(ctx context.Context, q sq.SelectBuilder, label string) ([][]any, error) {
	sqlText, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("render %s query: %w", label, err)
	}
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("execute %s query: %w", label, err)
	}
	defer rows.Close()
	return scanRows(rows, label)
}

func scanRows(rows *sql.Rows, label string) ([][]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read %s columns: %w", label, err)
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", label, err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", label, err)
	}
	return out, nil
}
