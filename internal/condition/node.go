package condition

// Node represents one element of a search-condition tree.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Node types:
//   - Filter: a single field/operator/value comparison
//   - Group: a parenthesized sub-sequence of nodes
//
// Combination semantics: nodes in a sequence are folded left to right.
// The first node seeds the running predicate; every subsequent node is
// combined with the running predicate using that node's own Logic tag.
// A node's Logic therefore describes its relationship to everything
// before it, not to the nodes after it.
type Node interface {
	conditionNode() // Marker method - seals interface to this package
}

// Filter is a leaf comparison against a single field.
//
// Field is a dotted path rooted at the queried entity. A bare name
// ("title") references a column on the root entity; a dotted path
// ("author.department.name") traverses relationships, with every segment
// except the last naming a relationship and the last naming a column on
// the final target.
//
// The virtual field PrimaryKeyField ("@id") references the entity's
// primary key whatever its real field names are. On composite-key
// entities a Filter on "@id" is compiled through the key codec
// (row-value IN or an OR-of-ANDs expansion).
//
// Values carries the operand(s) for the operator:
//   - comparison operators use Values[0]
//   - Between uses Values[0] and Values[1]
//   - In/NotIn use the whole slice
//   - IsNull/NotNull ignore Values entirely
//
// Example:
//
//	Filter{Field: "author.name", Operator: OpEq, Values: []any{"Woolf"}, Logic: LogicAnd}
type Filter struct {
	Field    string
	Operator Operator
	Values   []any
	Logic    Logic // combination with the running predicate; ignored on the first node
}

func (Filter) conditionNode() {}

// Group is a parenthesized sub-sequence of nodes.
//
// The children combine among themselves with the same left-fold rule as
// top-level nodes. A group with no children (or whose children all
// compile to nothing) yields no predicate at all: it is vacuously true
// and skipped during combination, never an error.
//
// Example - status = 'draft' OR (year >= 1990 AND year < 2000):
//
//	[]Node{
//	  Filter{Field: "status", Operator: OpEq, Values: []any{"draft"}},
//	  Group{
//	    Logic: LogicOr,
//	    Nodes: []Node{
//	      Filter{Field: "year", Operator: OpGte, Values: []any{int64(1990)}},
//	      Filter{Field: "year", Operator: OpLt, Values: []any{int64(2000)}, Logic: LogicAnd},
//	    },
//	  },
//	}
type Group struct {
	Nodes []Node
	Logic Logic // combination with the running predicate; ignored on the first node
}

func (Group) conditionNode() {}

// Logic tags how a node combines with the running predicate.
type Logic string

const (
	// LogicAnd combines with AND. The zero value "" is treated as AND.
	LogicAnd Logic = "AND"

	// LogicOr combines with OR.
	LogicOr Logic = "OR"
)

// Normalize maps the zero value to LogicAnd so compilers can switch
// exhaustively on two cases.
func (l Logic) Normalize() Logic {
	if l == LogicOr {
		return LogicOr
	}
	return LogicAnd
}

// PrimaryKeyField is the virtual field name resolving to the queried
// entity's primary key, independent of the key's real field names.
// For simple keys it compiles to the single key column; for composite
// keys it is the only field on which key-membership filters are allowed.
const PrimaryKeyField = "@id"
