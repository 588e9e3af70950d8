// Package condition defines the immutable search-condition model.
//
// A SearchCondition is the value handed to the query engine: an ordered
// tree of filter nodes, a sort specification, page bounds, and explicit
// eager-fetch hints. It is built once per request through the value
// builder and never mutated afterward; every adjustment (adding a filter,
// stabilizing a sort) produces a derived copy.
//
// The node tree is a sealed union: a node is either a Filter leaf or a
// Group of nodes. Each node carries a logical tag (AND/OR) that says how
// it combines with the running result built from the nodes before it,
// which is why the first node in any sequence seeds the result and its
// own tag is ignored.
//
// This package is pure data. Compiling a condition into SQL lives in
// querysql; classifying its relationship paths lives in relation.
package condition
