package queryplan

import (
	"fmt"
	"strings"

	"github.com/roach88/criterium/internal/relation"
	"github.com/roach88/criterium/internal/schema"
)

// JoinKind distinguishes restricting joins from preserving ones.
type JoinKind int

const (
	// InnerJoin restricts: rows without a match drop out. Used for
	// filter paths, where the predicate requires the related row.
	InnerJoin JoinKind = iota

	// LeftJoin preserves: rows without a match keep their place. Used
	// for sort and load paths, which must never drop a root row.
	LeftJoin
)

func (k JoinKind) String() string {
	if k == LeftJoin {
		return "left"
	}
	return "inner"
}

// Join is one planned table join.
type Join struct {
	Path          string // relationship path from root, e.g. "author.publisher"
	Table         string
	Alias         string
	ParentAlias   string
	LocalColumn   string // on the parent
	ForeignColumn string // on the joined table
	Kind          JoinKind
	Fetch         bool // columns of this join are materialized
	Cardinality   schema.Cardinality
	Target        *schema.Entity
}

// AliasFor derives the SQL alias for a relationship path. Dots become
// double underscores, so "author.publisher" joins as "author__publisher"
// and its columns select as "author__publisher.name".
func AliasFor(path string) string {
	return strings.ReplaceAll(path, ".", "__")
}

// Planner accumulates the join set for one query. Paths are created
// segment-wise ("author.publisher" first ensures "author") and
// deduplicated exactly: a path joins once no matter how many predicates,
// sorts, or loads touch it.
type Planner struct {
	root   *schema.Entity
	joins  []Join
	byPath map[string]int
}

// NewPlanner creates a planner rooted at the entity. The root itself is
// never joined; its columns qualify with the table name.
func NewPlanner(root *schema.Entity) *Planner {
	return &Planner{root: root, byPath: make(map[string]int)}
}

// RootAlias is the qualifier for root entity columns.
func (p *Planner) RootAlias() string { return p.root.Table }

// Ensure adds the joins for a resolved relationship chain, reusing any
// segment already planned. A reused join keeps the stronger kind (a
// filter's inner join is not loosened by a later sort or load on the
// same path) and becomes materialized once any use asks for that.
func (p *Planner) Ensure(steps []relation.Step, kind JoinKind, fetch bool) error {
	path := ""
	parentAlias := p.RootAlias()
	for _, step := range steps {
		if path == "" {
			path = step.Relation.Name
		} else {
			path = path + "." + step.Relation.Name
		}

		if i, ok := p.byPath[path]; ok {
			if kind == InnerJoin {
				p.joins[i].Kind = InnerJoin
			}
			if fetch {
				p.joins[i].Fetch = true
			}
			parentAlias = p.joins[i].Alias
			continue
		}

		alias := AliasFor(path)
		if alias == p.RootAlias() {
			return fmt.Errorf("join alias %q for path %q collides with the root table", alias, path)
		}
		for _, j := range p.joins {
			if j.Alias == alias {
				return fmt.Errorf("join alias %q for path %q collides with path %q", alias, path, j.Path)
			}
		}

		p.byPath[path] = len(p.joins)
		p.joins = append(p.joins, Join{
			Path:          path,
			Table:         step.Target.Table,
			Alias:         alias,
			ParentAlias:   parentAlias,
			LocalColumn:   step.Relation.LocalColumn,
			ForeignColumn: step.Relation.ForeignColumn,
			Kind:          kind,
			Fetch:         fetch,
			Cardinality:   step.Relation.Cardinality,
			Target:        step.Target,
		})
		parentAlias = alias
	}
	return nil
}

// Joins returns the planned joins in creation order.
func (p *Planner) Joins() []Join {
	out := make([]Join, len(p.joins))
	copy(out, p.joins)
	return out
}

// Alias returns the qualifier for columns of the entity at the path, or
// the root qualifier for the empty path.
func (p *Planner) Alias(path string) (string, bool) {
	if path == "" {
		return p.RootAlias(), true
	}
	if i, ok := p.byPath[path]; ok {
		return p.joins[i].Alias, true
	}
	return "", false
}

// OnClause renders the join's ON expression.
func (j Join) OnClause() string {
	return fmt.Sprintf("%s AS %s ON %s.%s = %s.%s",
		j.Table, j.Alias, j.ParentAlias, j.LocalColumn, j.Alias, j.ForeignColumn)
}
