// Package queryplan defines the compiled form of a search condition: the
// resolved joins, predicate, stabilized ordering, and load graph that
// the SQL builders and the executor consume.
//
// A Plan is built once per request and read concurrently after that; it
// holds no handles to the caller's condition or to the database. Build
// is pure and deciding everything up front is what keeps execution
// simple: by the time a query runs, every policy question (join kinds,
// tie-breaking, single vs two phase, which warnings apply) has been
// answered and recorded here.
package queryplan

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/criterium/internal/condition"
	"github.com/roach88/criterium/internal/relation"
	"github.com/roach88/criterium/internal/schema"
)

// Warning codes surfaced on plans and result pages.
const (
	// WarnUnstabilizedSort: no primary key could be resolved, so the
	// sort keeps its requested form and page boundaries may wobble
	// between equal rows.
	WarnUnstabilizedSort = "UNSTABILIZED_SORT"

	// WarnCartesianFetch: independent to-many load paths multiply into
	// a cartesian product in the load query.
	WarnCartesianFetch = "CARTESIAN_FETCH"
)

// Warning is a non-fatal planning observation, carried through to the
// result page.
type Warning struct {
	Code    string
	Message string
}

// OrderColumn is one resolved ORDER BY term.
type OrderColumn struct {
	Field     string // the requested sort field, e.g. "author.name"
	Column    string // the qualified SQL column, e.g. "author.name" under its join alias
	Ascending bool
}

// Plan is the compiled execution plan for one search condition.
type Plan struct {
	Entity      string
	Root        *schema.Entity
	Table       string
	KeyFields   []string // resolved primary-key fields; empty when degraded
	KeyStrategy string   // resolver strategy that served, "" when degraded
	Degraded    bool     // no resolver strategy could find a key

	Predicate sq.Sqlizer // nil when the condition has no filters

	Sort    condition.Sort // stabilized unless degraded
	OrderBy []OrderColumn  // resolved terms, parallel to Sort

	Page int
	Size int

	Fetch *relation.FetchGraph

	// Join sets per query shape. Two-phase execution uses KeyJoins for
	// the identifying query, LoadJoins for the batched load, and
	// CountJoins for the count. Single-phase uses PageJoins and
	// CountJoins.
	KeyJoins   []Join
	CountJoins []Join
	LoadJoins  []Join
	PageJoins  []Join

	// ToManyPaths are the relationship paths with to-many cardinality
	// reachable from this plan, whatever their origin (filter, sort, or
	// load). Any of them forces two-phase execution.
	ToManyPaths []string

	Warnings []Warning
}

// TwoPhase reports whether execution must split into an identifying
// key query and a batched load.
func (p *Plan) TwoPhase() bool { return len(p.ToManyPaths) > 0 }

// Offset is the row offset of the requested page.
func (p *Plan) Offset() uint64 { return uint64(p.Page) * uint64(p.Size) }

// KeyColumns returns the qualified primary-key columns, or nil when
// degraded.
func (p *Plan) KeyColumns() []string {
	if len(p.KeyFields) == 0 {
		return nil
	}
	cols := make([]string, len(p.KeyFields))
	for i, f := range p.KeyFields {
		cols[i] = p.Table + "." + f
	}
	return cols
}

// Describe renders the plan for explain output and golden tests. The
// layout is deterministic: same plan, same bytes.
func (p *Plan) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "entity: %s (%s)\n", p.Entity, p.Table)
	if p.Degraded {
		b.WriteString("key: (unresolved)\n")
	} else {
		fmt.Fprintf(&b, "key: %s [%s]\n", strings.Join(p.KeyFields, ", "), p.KeyStrategy)
	}
	if p.TwoPhase() {
		fmt.Fprintf(&b, "mode: two-phase (to-many: %s)\n", strings.Join(p.ToManyPaths, ", "))
	} else {
		b.WriteString("mode: single-phase\n")
	}

	if p.Predicate == nil {
		b.WriteString("filter: (none)\n")
	} else if sql, args, err := p.Predicate.ToSql(); err != nil {
		fmt.Fprintf(&b, "filter: <error: %v>\n", err)
	} else {
		fmt.Fprintf(&b, "filter: %s args=%v\n", sql, args)
	}

	if len(p.OrderBy) == 0 {
		b.WriteString("order: (none)\n")
	} else {
		terms := make([]string, len(p.OrderBy))
		for i, o := range p.OrderBy {
			dir := "asc"
			if !o.Ascending {
				dir = "desc"
			}
			terms[i] = o.Field + " " + dir
		}
		fmt.Fprintf(&b, "order: %s\n", strings.Join(terms, ", "))
	}

	fmt.Fprintf(&b, "page: %d size: %d\n", p.Page, p.Size)

	if p.Fetch == nil || len(p.Fetch.Paths) == 0 {
		b.WriteString("fetch: (none)\n")
	} else {
		parts := make([]string, len(p.Fetch.Paths))
		for i, fp := range p.Fetch.Paths {
			origin := "auto"
			if fp.Explicit {
				origin = "explicit"
			}
			parts[i] = fmt.Sprintf("%s (%s %s)", fp.Path, origin, fp.Cardinality)
		}
		fmt.Fprintf(&b, "fetch: %s\n", strings.Join(parts, ", "))
	}

	if p.TwoPhase() {
		describeJoins(&b, "key joins", p.KeyJoins)
		describeJoins(&b, "load joins", p.LoadJoins)
		describeJoins(&b, "count joins", p.CountJoins)
	} else {
		describeJoins(&b, "page joins", p.PageJoins)
		describeJoins(&b, "count joins", p.CountJoins)
	}

	if len(p.Warnings) == 0 {
		b.WriteString("warnings: (none)\n")
	} else {
		b.WriteString("warnings:\n")
		for _, w := range p.Warnings {
			fmt.Fprintf(&b, "  %s: %s\n", w.Code, w.Message)
		}
	}

	return b.String()
}

func describeJoins(b *strings.Builder, label string, joins []Join) {
	if len(joins) == 0 {
		fmt.Fprintf(b, "%s: (none)\n", label)
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, j := range joins {
		fmt.Fprintf(b, "  %s join %s\n", j.Kind, j.OnClause())
	}
}
