// Package relation resolves dotted field paths against entity metadata.
//
// A condition references related entities through dotted paths:
// "author.name" filters books by their author's name, "reviews" asks for
// a book's reviews to be loaded eagerly. This package walks those paths
// segment by segment through a schema.Introspector and answers the two
// questions the planner cares about:
//
//   - What does each segment mean? A segment is either a relationship
//     (extending the walk to the target entity) or, in final position, a
//     field of the entity reached so far. Anything else fails with a
//     schema.ResolutionError naming the path.
//
//   - Does the path multiply rows? A path is to-many as soon as any
//     relationship segment is to-many. Cardinality checks short-circuit
//     there: segments past the first to-many edge are not resolved,
//     because the answer cannot change.
//
// The fetch graph builder combines the explicitly requested load paths
// with the root entity's direct to-one relationships (cheap to join, so
// loaded by default). To-many relationships are never loaded implicitly;
// they multiply rows and must be asked for. Requesting two to-many paths
// on independent branches produces a cartesian product, which the builder
// flags with a warning rather than an error.
//
// Resolution is read-only against immutable metadata, so an Analyzer is
// safe for concurrent use.
package relation
