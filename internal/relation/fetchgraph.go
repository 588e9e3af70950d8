package relation

import (
	"fmt"
	"strings"

	"github.com/roach88/criterium/internal/schema"
)

// FetchPath is one relationship chain the loader will join and
// materialize.
type FetchPath struct {
	Path        string // normalized relationship path, e.g. "author.publisher"
	Steps       []Step
	Explicit    bool // requested by the condition, as opposed to auto-included
	Cardinality schema.Cardinality
}

// FetchGraph is the full set of load paths for one query: the explicitly
// requested paths plus the root entity's direct to-one relationships.
type FetchGraph struct {
	Paths    []FetchPath
	Warnings []string
}

// ToMany returns the to-many load paths in graph order.
func (g *FetchGraph) ToMany() []FetchPath {
	var out []FetchPath
	for _, p := range g.Paths {
		if p.Cardinality == schema.ToMany {
			out = append(out, p)
		}
	}
	return out
}

// Has reports whether the graph contains the exact normalized path.
func (g *FetchGraph) Has(path string) bool {
	for _, p := range g.Paths {
		if p.Path == path {
			return true
		}
	}
	return false
}

// BuildFetchGraph combines the requested load paths with the root
// entity's direct to-one relationships.
//
// Explicit paths come first in request order, deduplicated by normalized
// path; auto-included to-one edges follow in declaration order, skipping
// any edge an explicit path already covers. To-many relationships are
// only ever loaded explicitly. Two to-many paths on independent branches
// (neither a prefix of the other) make the load query a cartesian
// product; that is allowed but flagged with a warning.
func (a *Analyzer) BuildFetchGraph(entity string, explicit []string) (*FetchGraph, error) {
	graph := &FetchGraph{}
	seen := make(map[string]bool)

	for _, raw := range explicit {
		steps, err := a.ResolveRelations(entity, raw)
		if err != nil {
			return nil, err
		}
		if len(steps) == 0 {
			// A plain root field: already part of every load.
			continue
		}
		normalized := relationPath(steps)
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		graph.Paths = append(graph.Paths, FetchPath{
			Path:        normalized,
			Steps:       steps,
			Explicit:    true,
			Cardinality: stepsCardinality(steps),
		})
	}

	auto, err := a.DirectToOne(entity)
	if err != nil {
		return nil, err
	}
	root, err := a.intro.Entity(entity)
	if err != nil {
		return nil, err
	}
	for _, rel := range auto {
		if coveredByAny(graph.Paths, rel.Name) {
			continue
		}
		target, err := a.intro.Entity(rel.Target)
		if err != nil {
			return nil, err
		}
		graph.Paths = append(graph.Paths, FetchPath{
			Path:        rel.Name,
			Steps:       []Step{{Relation: rel, Source: root, Target: target}},
			Explicit:    false,
			Cardinality: schema.ToOne,
		})
	}

	if warning := independentToManyWarning(graph.Paths); warning != "" {
		graph.Warnings = append(graph.Warnings, warning)
	}
	return graph, nil
}

// relationPath joins step relation names into the normalized path.
func relationPath(steps []Step) string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Relation.Name
	}
	return strings.Join(names, ".")
}

// pathPrefix reports whether a equals b or is a segment-wise prefix of b.
func pathPrefix(a, b string) bool {
	return a == b || strings.HasPrefix(b, a+".")
}

// coveredByAny reports whether any existing path starts with the edge.
func coveredByAny(paths []FetchPath, edge string) bool {
	for _, p := range paths {
		if pathPrefix(edge, p.Path) {
			return true
		}
	}
	return false
}

// independentToManyWarning flags load graphs whose to-many paths sit on
// independent branches.
func independentToManyWarning(paths []FetchPath) string {
	var tomany []string
	for _, p := range paths {
		if p.Cardinality == schema.ToMany {
			tomany = append(tomany, p.Path)
		}
	}
	if len(tomany) < 2 {
		return ""
	}

	marked := make(map[string]bool)
	var order []string
	for i := 0; i < len(tomany); i++ {
		for j := i + 1; j < len(tomany); j++ {
			if pathPrefix(tomany[i], tomany[j]) || pathPrefix(tomany[j], tomany[i]) {
				continue
			}
			for _, p := range []string{tomany[i], tomany[j]} {
				if !marked[p] {
					marked[p] = true
					order = append(order, p)
				}
			}
		}
	}
	if len(order) == 0 {
		return ""
	}
	return fmt.Sprintf("independent to-many load paths (%s) make the load query a cartesian product",
		strings.Join(order, ", "))
}
