// Package engine executes search conditions against a relational
// backend.
//
// The engine is the coordination point of the query stack: it compiles a
// condition into a plan (metadata resolution, join planning, predicate
// compilation, sort stabilization) and then runs that plan in one of two
// shapes.
//
// Execution shapes:
//
// Single-phase - no to-many relationship is touched, so one SELECT can
// filter, sort, page, and eager-load without multiplying root rows.
//
// Two-phase - a to-many relationship appears in a filter, sort, or load
// path. Paging over a row-multiplying join is wrong (LIMIT counts join
// rows, not roots), so execution splits:
//
//  1. Key phase: SELECT DISTINCT primary keys with the stabilized order
//     and the page window. An empty result short-circuits the request to
//     an empty page with zero further queries.
//  2. Load phase: the page's keys are loaded back in chunks small enough
//     to stay inside the bind-parameter budget, with every eager-load
//     join attached. Chunk results are folded into records and restored
//     to key-phase order. Any chunk failure aborts the whole page;
//     partial pages are never returned.
//  3. Count phase: a distinct count over the filtered key set, skipped
//     when the key phase came back empty and in the WithoutCount
//     variants.
//
// The engine holds no per-request state: a built plan is immutable and
// every phase carries the caller's context. Independent requests may run
// concurrently against the same Engine; the only shared mutable state is
// the metadata cache behind the schema introspector.
package engine
