package condition

// Order is a single sort criterion.
type Order struct {
	Field     string // dotted path, same resolution rules as Filter.Field
	Ascending bool
}

// Sort is an ordered sequence of criteria; position defines precedence.
// The zero value (nil) means "no ordering requested" - the engine still
// appends primary-key tie-breakers before paging, so results stay
// deterministic.
//
// Sorts follow the same copy-on-write discipline as SearchCondition:
// derive, never mutate in place.
type Sort []Order

// HasField reports whether any criterion references the given field.
func (s Sort) HasField(field string) bool {
	for _, o := range s {
		if o.Field == field {
			return true
		}
	}
	return false
}

// Fields returns the referenced fields in precedence order.
func (s Sort) Fields() []string {
	if len(s) == 0 {
		return nil
	}
	fields := make([]string, len(s))
	for i, o := range s {
		fields[i] = o.Field
	}
	return fields
}

// Clone returns an independent copy of the sort.
func (s Sort) Clone() Sort {
	if s == nil {
		return nil
	}
	out := make(Sort, len(s))
	copy(out, s)
	return out
}

// Asc returns an ascending criterion for field.
func Asc(field string) Order { return Order{Field: field, Ascending: true} }

// Desc returns a descending criterion for field.
func Desc(field string) Order { return Order{Field: field, Ascending: false} }
