package key

import (
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// DefaultParamBudget caps bind parameters per membership predicate. 999
// is SQLite's default variable limit; staying under it keeps one batch
// in one statement.
const DefaultParamBudget = 999

// Encoding selects how a composite key membership test renders to SQL.
type Encoding int

const (
	// EncodingAuto picks row values when the dialect supports them,
	// expanded OR otherwise.
	EncodingAuto Encoding = iota

	// EncodingRowValues renders "(a, b) IN ((?,?), ...)".
	EncodingRowValues

	// EncodingExpandedOr renders "((a = ? AND b = ?) OR ...)".
	EncodingExpandedOr
)

func (e Encoding) String() string {
	switch e {
	case EncodingAuto:
		return "auto"
	case EncodingRowValues:
		return "row_values"
	case EncodingExpandedOr:
		return "expanded_or"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// UnsupportedError reports that a composite key predicate cannot be
// rendered within the dialect's limits. The caller fails the batch
// rather than silently splitting or truncating it.
type UnsupportedError struct {
	Columns  []string
	Encoding Encoding
	Reason   string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("composite key predicate over (%s) unsupported with %s encoding: %s",
		strings.Join(e.Columns, ", "), e.Encoding, e.Reason)
}

// IsUnsupportedError returns true if the error is a composite key
// encoding failure. Uses errors.As to handle wrapped errors.
func IsUnsupportedError(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}

// Encoder renders key membership predicates. The zero value uses auto
// encoding without row-value support and the default parameter budget.
type Encoder struct {
	Encoding    Encoding
	RowValues   bool // dialect supports row-value comparisons
	ParamBudget int  // 0 means DefaultParamBudget
}

func (e Encoder) budget() int {
	if e.ParamBudget > 0 {
		return e.ParamBudget
	}
	return DefaultParamBudget
}

// MaxKeysPerBatch returns how many keys of the given width fit into one
// membership predicate without breaching the parameter budget.
func (e Encoder) MaxKeysPerBatch(width int) int {
	if width < 1 {
		width = 1
	}
	return e.budget() / width
}

// Membership builds the predicate "key IN (keys...)" over the given
// column expressions. Columns are already qualified by the caller
// ("books.region"). An empty key set renders as constant false.
func (e Encoder) Membership(columns []string, keys []Composite) (sq.Sqlizer, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("membership predicate needs at least one column")
	}
	for _, k := range keys {
		if k.Len() != len(columns) {
			return nil, fmt.Errorf("key arity mismatch: %d columns, key %s", len(columns), k.Canon())
		}
	}
	if len(keys) == 0 {
		return sq.Expr("(1=0)"), nil
	}

	if params := len(keys) * len(columns); params > e.budget() {
		return nil, &UnsupportedError{
			Columns:  columns,
			Encoding: e.effective(),
			Reason:   fmt.Sprintf("%d bind parameters exceed the budget of %d", params, e.budget()),
		}
	}

	if len(columns) == 1 {
		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = k.values[0]
		}
		return sq.Eq{columns[0]: values}, nil
	}

	switch e.effective() {
	case EncodingRowValues:
		return tupleIn{columns: columns, keys: keys}, nil
	case EncodingExpandedOr:
		or := make(sq.Or, len(keys))
		for i, k := range keys {
			and := make(sq.And, len(columns))
			for j, col := range columns {
				and[j] = sq.Eq{col: k.values[j]}
			}
			or[i] = and
		}
		return or, nil
	default:
		return nil, &UnsupportedError{
			Columns:  columns,
			Encoding: e.Encoding,
			Reason:   "unknown encoding",
		}
	}
}

func (e Encoder) effective() Encoding {
	if e.Encoding != EncodingAuto {
		return e.Encoding
	}
	if e.RowValues {
		return EncodingRowValues
	}
	return EncodingExpandedOr
}

// tupleIn renders a row-value membership test:
// "(a, b) IN ((?,?),(?,?))".
type tupleIn struct {
	columns []string
	keys    []Composite
}

func (t tupleIn) ToSql() (string, []any, error) {
	var sb strings.Builder
	sb.WriteByte('(')
	sb.WriteString(strings.Join(t.columns, ", "))
	sb.WriteString(") IN (")
	args := make([]any, 0, len(t.keys)*len(t.columns))
	for i, k := range t.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('(')
		for j := range t.columns {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('?')
		}
		sb.WriteByte(')')
		args = append(args, k.values...)
	}
	sb.WriteByte(')')
	return sb.String(), args, nil
}
