package queryplan

import "github.com/roach88/criterium/internal/condition"

// Stabilize makes a sort total by appending the primary-key fields in
// ascending order, unless one of them already appears among the sort
// fields. A sort that includes any key field already breaks every tie
// the key can break, so appending again would be noise.
//
// The input is never mutated: an already-stable sort is returned as is,
// otherwise a fresh slice is built. Running the result through Stabilize
// again returns it unchanged, which is what lets the executor stabilize
// unconditionally.
func Stabilize(sort condition.Sort, keyFields []string) (condition.Sort, bool) {
	if len(keyFields) == 0 {
		return sort, false
	}
	for _, k := range keyFields {
		if sort.HasField(k) {
			return sort, false
		}
	}

	out := make(condition.Sort, 0, len(sort)+len(keyFields))
	out = append(out, sort...)
	for _, k := range keyFields {
		out = append(out, condition.Order{Field: k, Ascending: true})
	}
	return out, true
}
