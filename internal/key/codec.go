package key

import "fmt"

// Codec extracts and validates keys for one entity's ordered key fields.
// The field order is fixed at construction and every key the codec
// produces follows it, so component i always means field i.
type Codec struct {
	fields []string
}

// NewCodec creates a codec over the ordered key fields.
func NewCodec(fields []string) (*Codec, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("codec needs at least one key field")
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f == "" {
			return nil, fmt.Errorf("key field name must not be empty")
		}
		if seen[f] {
			return nil, fmt.Errorf("duplicate key field %s", f)
		}
		seen[f] = true
	}
	owned := make([]string, len(fields))
	copy(owned, fields)
	return &Codec{fields: owned}, nil
}

// Fields returns the ordered key fields.
func (c *Codec) Fields() []string {
	out := make([]string, len(c.fields))
	copy(out, c.fields)
	return out
}

// Simple reports whether the key is a single field.
func (c *Codec) Simple() bool { return len(c.fields) == 1 }

// FromRow extracts the key from a scanned row keyed by field name.
func (c *Codec) FromRow(row map[string]any) (Composite, error) {
	values := make([]any, len(c.fields))
	for i, f := range c.fields {
		v, ok := row[f]
		if !ok {
			return Composite{}, fmt.Errorf("row is missing key field %s", f)
		}
		values[i] = v
	}
	return New(values...)
}

// FromValues builds a key from positional components, enforcing arity.
func (c *Codec) FromValues(values []any) (Composite, error) {
	if len(values) != len(c.fields) {
		return Composite{}, fmt.Errorf("key arity mismatch: %d fields, %d values", len(c.fields), len(values))
	}
	return New(values...)
}
