package condition

// DefaultSize is the page size used when the caller does not set one.
const DefaultSize = 20

// SearchCondition is the root request value: filters, sort, page bounds,
// and explicit eager-fetch hints.
//
// Treat values of this type as immutable. The builder methods below
// always return a derived copy with freshly allocated slices, so a
// SearchCondition can be shared across goroutines, stored as a template,
// and re-derived per request without synchronization.
//
// An empty node list yields no predicate (the condition matches all
// rows); paging and sorting still apply.
type SearchCondition struct {
	// Nodes is the ordered filter tree. See Node for combination rules.
	Nodes []Node

	// Sort lists the requested ordering criteria in precedence order.
	Sort Sort

	// Page is the zero-based page number.
	Page int

	// Size is the page size (rows per page).
	Size int

	// FetchFields lists relationship paths to eager-load alongside the
	// root entity, in request order, without duplicates. To-many paths
	// are honored only when listed here explicitly.
	FetchFields []string
}

// New returns an empty condition with default paging (page 0, DefaultSize).
func New() SearchCondition {
	return SearchCondition{Size: DefaultSize}
}

// Where appends an AND-combined filter and returns the derived condition.
func (c SearchCondition) Where(field string, op Operator, values ...any) SearchCondition {
	return c.WithNode(Filter{Field: field, Operator: op, Values: values, Logic: LogicAnd})
}

// OrWhere appends an OR-combined filter and returns the derived condition.
func (c SearchCondition) OrWhere(field string, op Operator, values ...any) SearchCondition {
	return c.WithNode(Filter{Field: field, Operator: op, Values: values, Logic: LogicOr})
}

// WithNode appends an arbitrary node and returns the derived condition.
func (c SearchCondition) WithNode(n Node) SearchCondition {
	nodes := make([]Node, 0, len(c.Nodes)+1)
	nodes = append(nodes, c.Nodes...)
	nodes = append(nodes, n)
	c.Nodes = nodes
	return c
}

// WithGroup appends a group of nodes combined with the given logic and
// returns the derived condition.
func (c SearchCondition) WithGroup(logic Logic, nodes ...Node) SearchCondition {
	inner := make([]Node, len(nodes))
	copy(inner, nodes)
	return c.WithNode(Group{Nodes: inner, Logic: logic})
}

// OrderBy appends a sort criterion and returns the derived condition.
func (c SearchCondition) OrderBy(field string, ascending bool) SearchCondition {
	sort := make(Sort, 0, len(c.Sort)+1)
	sort = append(sort, c.Sort...)
	sort = append(sort, Order{Field: field, Ascending: ascending})
	c.Sort = sort
	return c
}

// WithSort replaces the sort specification and returns the derived
// condition. The given sort is copied.
func (c SearchCondition) WithSort(s Sort) SearchCondition {
	c.Sort = s.Clone()
	return c
}

// WithPage sets the page bounds and returns the derived condition.
func (c SearchCondition) WithPage(page, size int) SearchCondition {
	c.Page = page
	c.Size = size
	return c
}

// Fetch appends eager-load hints and returns the derived condition.
// Paths already present are not duplicated.
func (c SearchCondition) Fetch(paths ...string) SearchCondition {
	existing := make(map[string]bool, len(c.FetchFields))
	for _, p := range c.FetchFields {
		existing[p] = true
	}

	fetch := make([]string, 0, len(c.FetchFields)+len(paths))
	fetch = append(fetch, c.FetchFields...)
	for _, p := range paths {
		if !existing[p] {
			fetch = append(fetch, p)
			existing[p] = true
		}
	}
	c.FetchFields = fetch
	return c
}
