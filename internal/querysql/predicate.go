// Package querysql compiles plans into parameterized SQL.
//
// Everything here builds squirrel expressions; values are never
// interpolated into SQL text. The predicate builder walks the sealed
// condition node union with a type switch, so an unhandled node kind is
// a bug in this package, not a user error. User errors are typed:
// unknown operators fail with UnsupportedOperatorError before any SQL is
// issued, unmapped fields with schema.ResolutionError.
package querysql

import (
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/criterium/internal/condition"
	"github.com/roach88/criterium/internal/key"
	"github.com/roach88/criterium/internal/queryplan"
	"github.com/roach88/criterium/internal/relation"
	"github.com/roach88/criterium/internal/schema"
)

// UnsupportedOperatorError reports a filter operator the SQL compiler
// has no mapping for. The whole query fails; silently dropping the
// condition would widen the result set.
type UnsupportedOperatorError struct {
	Operator condition.Operator
	Field    string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("operator %q on field %q is not supported", e.Operator, e.Field)
}

// IsUnsupportedOperatorError returns true if the error is an unknown
// operator failure. Uses errors.As to handle wrapped errors.
func IsUnsupportedOperatorError(err error) bool {
	var ue *UnsupportedOperatorError
	return errors.As(err, &ue)
}

// operators maps each known operator to its SQL construction. Unknown
// operators are absent, which is what makes the lookup fail fast.
var operators = map[condition.Operator]func(column string, values []any) (sq.Sqlizer, error){
	condition.OpEq: func(col string, v []any) (sq.Sqlizer, error) {
		x, err := one(condition.OpEq, v)
		if err != nil {
			return nil, err
		}
		return sq.Eq{col: x}, nil
	},
	condition.OpNotEq: func(col string, v []any) (sq.Sqlizer, error) {
		x, err := one(condition.OpNotEq, v)
		if err != nil {
			return nil, err
		}
		return sq.NotEq{col: x}, nil
	},
	condition.OpLt: func(col string, v []any) (sq.Sqlizer, error) {
		x, err := one(condition.OpLt, v)
		if err != nil {
			return nil, err
		}
		return sq.Lt{col: x}, nil
	},
	condition.OpLte: func(col string, v []any) (sq.Sqlizer, error) {
		x, err := one(condition.OpLte, v)
		if err != nil {
			return nil, err
		}
		return sq.LtOrEq{col: x}, nil
	},
	condition.OpGt: func(col string, v []any) (sq.Sqlizer, error) {
		x, err := one(condition.OpGt, v)
		if err != nil {
			return nil, err
		}
		return sq.Gt{col: x}, nil
	},
	condition.OpGte: func(col string, v []any) (sq.Sqlizer, error) {
		x, err := one(condition.OpGte, v)
		if err != nil {
			return nil, err
		}
		return sq.GtOrEq{col: x}, nil
	},
	condition.OpBetween: func(col string, v []any) (sq.Sqlizer, error) {
		if len(v) != 2 {
			return nil, fmt.Errorf("operator %q needs exactly 2 values, got %d", condition.OpBetween, len(v))
		}
		return sq.Expr(col+" BETWEEN ? AND ?", v[0], v[1]), nil
	},
	condition.OpContains: func(col string, v []any) (sq.Sqlizer, error) {
		s, err := text(condition.OpContains, v)
		if err != nil {
			return nil, err
		}
		return sq.Like{col: "%" + s + "%"}, nil
	},
	condition.OpNotContains: func(col string, v []any) (sq.Sqlizer, error) {
		s, err := text(condition.OpNotContains, v)
		if err != nil {
			return nil, err
		}
		return sq.NotLike{col: "%" + s + "%"}, nil
	},
	condition.OpStartsWith: func(col string, v []any) (sq.Sqlizer, error) {
		s, err := text(condition.OpStartsWith, v)
		if err != nil {
			return nil, err
		}
		return sq.Like{col: s + "%"}, nil
	},
	condition.OpEndsWith: func(col string, v []any) (sq.Sqlizer, error) {
		s, err := text(condition.OpEndsWith, v)
		if err != nil {
			return nil, err
		}
		return sq.Like{col: "%" + s}, nil
	},
	condition.OpIn: func(col string, v []any) (sq.Sqlizer, error) {
		// An empty list renders as constant false, matching set
		// semantics: nothing is a member of the empty set.
		return sq.Eq{col: v}, nil
	},
	condition.OpNotIn: func(col string, v []any) (sq.Sqlizer, error) {
		return sq.NotEq{col: v}, nil
	},
	condition.OpIsNull: func(col string, v []any) (sq.Sqlizer, error) {
		return sq.Eq{col: nil}, nil
	},
	condition.OpNotNull: func(col string, v []any) (sq.Sqlizer, error) {
		return sq.NotEq{col: nil}, nil
	},
}

func one(op condition.Operator, values []any) (any, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("operator %q needs exactly 1 value, got %d", op, len(values))
	}
	return values[0], nil
}

func text(op condition.Operator, values []any) (string, error) {
	v, err := one(op, values)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("operator %q needs a string value, got %T", op, v)
	}
	return s, nil
}

// PredicateBuilder compiles condition nodes into one squirrel predicate.
type PredicateBuilder struct {
	analyzer  *relation.Analyzer
	root      *schema.Entity
	keyFields []string
	encoder   key.Encoder
}

// NewPredicateBuilder creates a builder for one root entity. keyFields
// may be empty when no primary key resolved; only the virtual key field
// needs it.
func NewPredicateBuilder(analyzer *relation.Analyzer, root *schema.Entity, keyFields []string, encoder key.Encoder) *PredicateBuilder {
	return &PredicateBuilder{analyzer: analyzer, root: root, keyFields: keyFields, encoder: encoder}
}

// Build folds the nodes into a single predicate.
//
// The first contributing node seeds the result; every following node
// combines with the accumulated predicate using its own logic tag.
// Groups fold recursively and join their siblings as one unit; a group
// that contributes nothing (empty, or only empty subgroups) is skipped
// entirely rather than rendered as a vacuous clause.
//
// The returned refs are the relationship-qualified fields the predicate
// touches, deduplicated by relationship path, in first-use order; the
// planner turns them into joins. A condition without filters returns a
// nil predicate.
func (b *PredicateBuilder) Build(nodes []condition.Node) (sq.Sqlizer, []relation.FieldRef, error) {
	used := &refSet{seen: make(map[string]bool)}
	pred, err := b.fold(nodes, used)
	if err != nil {
		return nil, nil, err
	}
	return pred, used.refs, nil
}

func (b *PredicateBuilder) fold(nodes []condition.Node, used *refSet) (sq.Sqlizer, error) {
	var acc sq.Sqlizer
	for _, n := range nodes {
		part, logic, err := b.compileNode(n, used)
		if err != nil {
			return nil, err
		}
		if part == nil {
			continue
		}
		if acc == nil {
			acc = part
			continue
		}
		if logic == condition.LogicOr {
			acc = sq.Or{acc, part}
		} else {
			acc = sq.And{acc, part}
		}
	}
	return acc, nil
}

func (b *PredicateBuilder) compileNode(n condition.Node, used *refSet) (sq.Sqlizer, condition.Logic, error) {
	switch node := n.(type) {
	case condition.Filter:
		part, err := b.leaf(node, used)
		return part, node.Logic.Normalize(), err
	case *condition.Filter:
		part, err := b.leaf(*node, used)
		return part, node.Logic.Normalize(), err
	case condition.Group:
		part, err := b.fold(node.Nodes, used)
		return part, node.Logic.Normalize(), err
	case *condition.Group:
		part, err := b.fold(node.Nodes, used)
		return part, node.Logic.Normalize(), err
	default:
		return nil, condition.LogicAnd, fmt.Errorf("unsupported condition node type: %T", n)
	}
}

func (b *PredicateBuilder) leaf(f condition.Filter, used *refSet) (sq.Sqlizer, error) {
	if f.Field == condition.PrimaryKeyField {
		return b.keyLeaf(f)
	}

	ref, err := b.analyzer.ResolveField(b.root.Name, f.Field)
	if err != nil {
		return nil, err
	}
	used.add(*ref)

	build, ok := operators[f.Operator]
	if !ok {
		return nil, &UnsupportedOperatorError{Operator: f.Operator, Field: f.Field}
	}
	return build(b.columnFor(ref), f.Values)
}

// keyLeaf compiles a filter on the virtual primary-key field into a key
// membership predicate. Each value is one key: an ordered tuple for
// composite keys, a bare scalar for simple ones.
func (b *PredicateBuilder) keyLeaf(f condition.Filter) (sq.Sqlizer, error) {
	if len(b.keyFields) == 0 {
		return nil, schema.NewPathResolutionError(b.root.Name, condition.PrimaryKeyField, "no primary key resolved")
	}
	codec, err := key.NewCodec(b.keyFields)
	if err != nil {
		return nil, err
	}

	var raw []any
	switch f.Operator {
	case condition.OpEq:
		v, err := one(f.Operator, f.Values)
		if err != nil {
			return nil, err
		}
		raw = []any{v}
	case condition.OpIn:
		raw = f.Values
	default:
		return nil, &UnsupportedOperatorError{Operator: f.Operator, Field: f.Field}
	}

	keys := make([]key.Composite, len(raw))
	for i, v := range raw {
		k, err := b.toKey(codec, v)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}

	columns := make([]string, len(b.keyFields))
	for i, kf := range b.keyFields {
		columns[i] = b.root.Table + "." + kf
	}
	return b.encoder.Membership(columns, keys)
}

func (b *PredicateBuilder) toKey(codec *key.Codec, v any) (key.Composite, error) {
	if tuple, ok := v.([]any); ok {
		return codec.FromValues(tuple)
	}
	return codec.FromValues([]any{v})
}

func (b *PredicateBuilder) columnFor(ref *relation.FieldRef) string {
	if len(ref.Steps) == 0 {
		return b.root.Table + "." + ref.Field.Name
	}
	return queryplan.AliasFor(ref.RelationPath()) + "." + ref.Field.Name
}

// refSet collects relationship-qualified field refs in first-use order.
type refSet struct {
	seen map[string]bool
	refs []relation.FieldRef
}

func (s *refSet) add(r relation.FieldRef) {
	if len(r.Steps) == 0 {
		return
	}
	p := r.RelationPath()
	if s.seen[p] {
		return
	}
	s.seen[p] = true
	s.refs = append(s.refs, r)
}
