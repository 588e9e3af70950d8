package querysql

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/criterium/internal/key"
	"github.com/roach88/criterium/internal/queryplan"
)

// Column describes one selected result column and where its value lands
// when rows are folded back into records: Path names the relationship
// the column belongs to ("" for the root entity), Field the entity
// field. Labels are made unique by prefixing the join alias, so
// "author.name" selects as "author__name" next to the root's "name".
type Column struct {
	Path  string
	Field string
	Label string
	Expr  string
}

// LoadColumns returns the select list for the batched load query: all
// root fields plus the fields of every materialized join.
func LoadColumns(plan *queryplan.Plan) []Column {
	return selectColumns(plan, plan.LoadJoins)
}

// PageColumns returns the select list for the single-phase page query.
func PageColumns(plan *queryplan.Plan) []Column {
	return selectColumns(plan, plan.PageJoins)
}

func selectColumns(plan *queryplan.Plan, joins []queryplan.Join) []Column {
	var cols []Column
	for _, f := range plan.Root.Fields {
		cols = append(cols, Column{
			Field: f.Name,
			Label: f.Name,
			Expr:  plan.Table + "." + f.Name + " AS " + f.Name,
		})
	}
	for _, j := range joins {
		if !j.Fetch {
			continue
		}
		for _, f := range j.Target.Fields {
			label := j.Alias + "__" + f.Name
			cols = append(cols, Column{
				Path:  j.Path,
				Field: f.Name,
				Label: label,
				Expr:  j.Alias + "." + f.Name + " AS " + label,
			})
		}
	}
	return cols
}

// KeyQuery builds the identifying query of two-phase execution: the
// distinct primary keys of matching roots, ordered and paged. Sort
// columns join the select list because DISTINCT restricts ORDER BY to
// selected expressions; for root and to-one sorts they are functionally
// dependent on the key, so the distinct row set stays one row per key.
func KeyQuery(plan *queryplan.Plan) (sq.SelectBuilder, error) {
	keyCols := plan.KeyColumns()
	if len(keyCols) == 0 {
		return sq.SelectBuilder{}, fmt.Errorf("entity %s: key query requires a resolved primary key", plan.Entity)
	}

	cols := make([]string, 0, len(keyCols)+len(plan.OrderBy))
	seen := make(map[string]bool, len(keyCols))
	for _, c := range keyCols {
		cols = append(cols, c)
		seen[c] = true
	}
	for _, o := range plan.OrderBy {
		if !seen[o.Column] {
			cols = append(cols, o.Column)
			seen[o.Column] = true
		}
	}

	b := sq.Select(cols...).Distinct().From(plan.Table)
	b = applyJoins(b, plan.KeyJoins)
	if plan.Predicate != nil {
		b = b.Where(plan.Predicate)
	}
	b = b.OrderBy(orderExprs(plan)...)
	return b.Limit(uint64(plan.Size)).Offset(plan.Offset()), nil
}

// LoadQuery builds the batched load for one key chunk: root and fetch
// columns, restricted to the chunk's keys only. The original predicate
// is gone, the key query already applied it; and there is no ORDER BY,
// the executor restores the key query's order after folding.
func LoadQuery(plan *queryplan.Plan, encoder key.Encoder, keys []key.Composite) (sq.SelectBuilder, error) {
	membership, err := encoder.Membership(plan.KeyColumns(), keys)
	if err != nil {
		return sq.SelectBuilder{}, err
	}

	exprs := columnExprs(LoadColumns(plan))
	b := sq.Select(exprs...).From(plan.Table)
	b = applyJoins(b, plan.LoadJoins)
	return b.Where(membership), nil
}

// CountQuery builds the distinct total count. Two-phase plans count
// distinct keys of the filtered set through a subquery; single-phase
// plans count rows directly, to-one joins never multiply them.
func CountQuery(plan *queryplan.Plan) (sq.SelectBuilder, error) {
	if plan.TwoPhase() {
		keyCols := plan.KeyColumns()
		if len(keyCols) == 0 {
			return sq.SelectBuilder{}, fmt.Errorf("entity %s: distinct count requires a resolved primary key", plan.Entity)
		}
		inner := sq.Select(keyCols...).Distinct().From(plan.Table)
		inner = applyJoins(inner, plan.CountJoins)
		if plan.Predicate != nil {
			inner = inner.Where(plan.Predicate)
		}
		return sq.Select("COUNT(*)").FromSelect(inner, "keys"), nil
	}

	b := sq.Select("COUNT(*)").From(plan.Table)
	b = applyJoins(b, plan.CountJoins)
	if plan.Predicate != nil {
		b = b.Where(plan.Predicate)
	}
	return b, nil
}

// PageQuery builds the one-shot query for single-phase execution:
// filter, sort, page, and fetch in a single select.
func PageQuery(plan *queryplan.Plan) (sq.SelectBuilder, error) {
	exprs := columnExprs(PageColumns(plan))
	b := sq.Select(exprs...).From(plan.Table)
	b = applyJoins(b, plan.PageJoins)
	if plan.Predicate != nil {
		b = b.Where(plan.Predicate)
	}
	b = b.OrderBy(orderExprs(plan)...)
	return b.Limit(uint64(plan.Size)).Offset(plan.Offset()), nil
}

// ExistsQuery builds a LIMIT 1 probe for the plan's filter.
func ExistsQuery(plan *queryplan.Plan) (sq.SelectBuilder, error) {
	b := sq.Select("1").From(plan.Table)
	b = applyJoins(b, plan.CountJoins)
	if plan.Predicate != nil {
		b = b.Where(plan.Predicate)
	}
	return b.Limit(1), nil
}

func columnExprs(cols []Column) []string {
	exprs := make([]string, len(cols))
	for i, c := range cols {
		exprs[i] = c.Expr
	}
	return exprs
}

func applyJoins(b sq.SelectBuilder, joins []queryplan.Join) sq.SelectBuilder {
	for _, j := range joins {
		if j.Kind == queryplan.LeftJoin {
			b = b.LeftJoin(j.OnClause())
		} else {
			b = b.Join(j.OnClause())
		}
	}
	return b
}

func orderExprs(plan *queryplan.Plan) []string {
	exprs := make([]string, len(plan.OrderBy))
	for i, o := range plan.OrderBy {
		dir := " ASC"
		if !o.Ascending {
			dir = " DESC"
		}
		exprs[i] = o.Column + dir
	}
	return exprs
}
