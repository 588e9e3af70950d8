// Package key implements composite primary keys as ordered value tuples.
//
// The two-phase executor identifies rows by key in one query and loads
// them by key in another, so keys must survive a round trip through the
// database and a Go map: extraction from a scanned row, use as a map key
// for order restoration, and re-encoding into a membership predicate.
// Composite gives keys structural equality and a canonical string form
// that is deterministic and injective, so two keys collide exactly when
// they are equal.
//
// Key components are restricted to integers and text. Text is NFC
// normalized on the way in, so a key read back from the database equals
// the key that was written even when the two encode the same characters
// differently. Floats, booleans, and NULL are rejected: a primary key
// component that needs inexact comparison or tri-state logic cannot
// anchor identity.
package key

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Composite is an ordered tuple of normalized key components. The zero
// value is an empty key; use New to build one.
type Composite struct {
	values []any // each int64 or string, normalized
}

// New builds a key from raw components, normalizing each. Fails on
// components that cannot anchor identity (floats, booleans, NULL).
func New(values ...any) (Composite, error) {
	if len(values) == 0 {
		return Composite{}, fmt.Errorf("key must have at least one component")
	}
	normalized := make([]any, len(values))
	for i, v := range values {
		nv, err := NormalizeValue(v)
		if err != nil {
			return Composite{}, fmt.Errorf("key component %d: %w", i, err)
		}
		normalized[i] = nv
	}
	return Composite{values: normalized}, nil
}

// NormalizeValue coerces a scanned key component to its canonical Go
// representation: int64 for integers, NFC-normalized string for text.
// Database drivers hand back int64, string, or []byte for these column
// types; the Go-native integer widths show up from test fixtures.
func NormalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint:
		return checkedUint(uint64(val))
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return checkedUint(val)
	case string:
		return norm.NFC.String(val), nil
	case []byte:
		return norm.NFC.String(string(val)), nil
	case nil:
		return nil, fmt.Errorf("NULL cannot be a key component")
	case float32, float64:
		return nil, fmt.Errorf("floating-point value %v cannot be a key component", val)
	case bool:
		return nil, fmt.Errorf("boolean value cannot be a key component")
	default:
		return nil, fmt.Errorf("unsupported key component type %T", v)
	}
}

func checkedUint(v uint64) (any, error) {
	if v > 1<<63-1 {
		return nil, fmt.Errorf("unsigned value %d overflows int64", v)
	}
	return int64(v), nil
}

// Len returns the number of components.
func (k Composite) Len() int { return len(k.values) }

// Values returns a copy of the components in order.
func (k Composite) Values() []any {
	out := make([]any, len(k.values))
	copy(out, k.values)
	return out
}

// Equal reports structural equality: same arity, same components in the
// same order.
func (k Composite) Equal(other Composite) bool {
	if len(k.values) != len(other.values) {
		return false
	}
	for i, v := range k.values {
		if v != other.values[i] {
			return false
		}
	}
	return true
}

// Canon returns the canonical string form: a JSON array of the
// components. Integers and strings render distinctly, so ["1"] and [1]
// never collide. The string is what goes into order-restoration maps.
func (k Composite) Canon() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range k.values {
		if i > 0 {
			b.WriteByte(',')
		}
		switch val := v.(type) {
		case int64:
			b.WriteString(strconv.FormatInt(val, 10))
		case string:
			b.Write(canonString(val))
		}
	}
	b.WriteByte(']')
	return b.String()
}

// String implements fmt.Stringer.
func (k Composite) String() string { return k.Canon() }

// canonString JSON-encodes a string without HTML escaping, so "<" and
// "&" read back as themselves. The input is already NFC normalized.
func canonString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		// Strings always encode; keep the signature clean.
		panic(fmt.Sprintf("encode key string: %v", err))
	}
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	return out
}

// ParseCanon is the inverse of Canon. Round-tripping preserves
// structural equality, which is what makes the canonical form safe as a
// map key.
func ParseCanon(s string) (Composite, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return Composite{}, fmt.Errorf("parse key %q: %w", s, err)
	}
	values := make([]any, len(raw))
	for i, v := range raw {
		switch val := v.(type) {
		case json.Number:
			n, err := strconv.ParseInt(val.String(), 10, 64)
			if err != nil {
				return Composite{}, fmt.Errorf("parse key %q: component %d is not an integer", s, i)
			}
			values[i] = n
		case string:
			values[i] = val
		default:
			return Composite{}, fmt.Errorf("parse key %q: component %d has unsupported type %T", s, i, v)
		}
	}
	return New(values...)
}
