package condition

import "fmt"

// Validate checks the structural well-formedness of a condition before
// compilation: page bounds, field names, and operand arity.
//
// Operator membership in the compiler's table is checked separately by
// the SQL compiler, which reports unknown operators as typed
// unsupported-operator errors; Validate only rejects shapes that no
// operator could accept.
//
// Validate is a pure function with no side effects.
func Validate(c SearchCondition) error {
	if c.Page < 0 {
		return fmt.Errorf("page must be >= 0, got %d", c.Page)
	}
	if c.Size < 1 {
		return fmt.Errorf("size must be >= 1, got %d", c.Size)
	}
	for _, p := range c.FetchFields {
		if p == "" {
			return fmt.Errorf("fetch path must not be empty")
		}
	}
	for _, o := range c.Sort {
		if o.Field == "" {
			return fmt.Errorf("sort field must not be empty")
		}
	}
	return validateNodes(c.Nodes, "")
}

// validateNodes walks a node sequence, tracking a path prefix for error
// messages ("nodes[2].group[0]").
func validateNodes(nodes []Node, prefix string) error {
	for i, n := range nodes {
		label := fmt.Sprintf("%snodes[%d]", prefix, i)
		switch node := n.(type) {
		case Filter:
			if err := validateFilter(node, label); err != nil {
				return err
			}
		case Group:
			if err := validateNodes(node.Nodes, label+".group."); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s: unknown node type %T", label, n)
		}
	}
	return nil
}

func validateFilter(f Filter, label string) error {
	if f.Field == "" {
		return fmt.Errorf("%s: field must not be empty", label)
	}

	switch f.Operator {
	case OpIsNull, OpNotNull:
		// Values ignored, any arity accepted.
		return nil
	case OpBetween:
		if len(f.Values) != 2 {
			return fmt.Errorf("%s: %s requires exactly 2 values, got %d", label, f.Operator, len(f.Values))
		}
	case OpIn, OpNotIn:
		// An empty list is allowed; it compiles to match-nothing
		// (or match-all for notIn).
		return nil
	default:
		// Single-operand operators, including any operator unknown to
		// the table (those fail later in the compiler with a typed
		// error; requiring one operand here would mask that).
		if f.Operator.Known() && len(f.Values) != 1 {
			return fmt.Errorf("%s: %s requires exactly 1 value, got %d", label, f.Operator, len(f.Values))
		}
	}
	return nil
}
