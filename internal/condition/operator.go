package condition

// Operator identifies a filter comparison.
//
// The set below is the complete operator table understood by the SQL
// compiler. A Filter carrying any other value fails compilation with an
// unsupported-operator error - it is never silently defaulted to
// "match all" or "match nothing".
type Operator string

const (
	// Equality
	OpEq    Operator = "eq"
	OpNotEq Operator = "ne"

	// Range
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpBetween Operator = "between" // inclusive bounds, Values[0] and Values[1]

	// Containment (string matching)
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"

	// Set membership
	OpIn    Operator = "in"
	OpNotIn Operator = "notIn"

	// Null checks (Values ignored)
	OpIsNull  Operator = "isNull"
	OpNotNull Operator = "notNull"
)

// operators holds every operator the compiler accepts.
var operators = map[Operator]bool{
	OpEq: true, OpNotEq: true,
	OpLt: true, OpLte: true, OpGt: true, OpGte: true, OpBetween: true,
	OpContains: true, OpNotContains: true, OpStartsWith: true, OpEndsWith: true,
	OpIn: true, OpNotIn: true,
	OpIsNull: true, OpNotNull: true,
}

// Known reports whether op is in the operator table.
func (op Operator) Known() bool {
	return operators[op]
}
