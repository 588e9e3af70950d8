package relation

import (
	"fmt"
	"strings"

	"github.com/roach88/criterium/internal/schema"
)

// Step is one resolved relationship segment of a dotted path.
type Step struct {
	Relation schema.Relationship
	Source   *schema.Entity // entity owning the relationship
	Target   *schema.Entity // entity the relationship leads to
}

// FieldRef is a filter or sort field resolved against the schema: the
// relationship steps leading to the owning entity, then the field itself.
// A root field has no steps.
type FieldRef struct {
	Path   string // the path as written, e.g. "author.name"
	Steps  []Step
	Entity *schema.Entity // entity owning the field
	Field  schema.Field
}

// RelationPath returns the relationship prefix of the path ("author" for
// "author.name"), or "" for a root field.
func (r FieldRef) RelationPath() string {
	if len(r.Steps) == 0 {
		return ""
	}
	names := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		names[i] = s.Relation.Name
	}
	return strings.Join(names, ".")
}

// Cardinality is to-many when any relationship step is to-many.
func (r FieldRef) Cardinality() schema.Cardinality {
	return stepsCardinality(r.Steps)
}

func stepsCardinality(steps []Step) schema.Cardinality {
	for _, s := range steps {
		if s.Relation.Cardinality == schema.ToMany {
			return schema.ToMany
		}
	}
	return schema.ToOne
}

// Analyzer resolves dotted paths through an Introspector. Stateless apart
// from the injected metadata source.
type Analyzer struct {
	intro schema.Introspector
}

// NewAnalyzer creates an Analyzer backed by the given metadata source.
func NewAnalyzer(intro schema.Introspector) *Analyzer {
	return &Analyzer{intro: intro}
}

// SplitPath splits a dotted path, rejecting empty segments.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("path must not be empty")
	}
	segments := strings.Split(path, ".")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("path %q has an empty segment", path)
		}
	}
	return segments, nil
}

// Cardinality classifies a dotted path as to-one or to-many.
//
// Relationship segments are walked in order; the first to-many edge
// decides the answer and stops the walk, so segments past it are not
// resolved. The final segment may be a field, which never affects
// cardinality. An unresolvable segment before a to-many edge fails with
// a schema.ResolutionError.
func (a *Analyzer) Cardinality(entity, path string) (schema.Cardinality, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return "", schema.NewPathResolutionError(entity, path, err.Error())
	}

	current := entity
	for i, seg := range segments {
		rel, err := a.intro.Relationship(current, seg)
		if err == nil {
			if rel.Cardinality == schema.ToMany {
				return schema.ToMany, nil
			}
			current = rel.Target
			continue
		}

		// Not a relationship. In final position a field of the entity
		// reached so far is fine and leaves the path to-one.
		if i == len(segments)-1 {
			e, eerr := a.intro.Entity(current)
			if eerr != nil {
				return "", eerr
			}
			if e.HasField(seg) {
				return schema.ToOne, nil
			}
		}
		return "", schema.NewPathResolutionError(entity, path,
			fmt.Sprintf("segment %q is neither a relationship nor a field of %s", seg, current))
	}
	return schema.ToOne, nil
}

// ResolveField resolves a filter or sort path: every segment but the last
// must be a relationship, the last must be a field of the entity reached.
// Paths through to-many relationships resolve fine; the caller decides
// what row multiplication means for it.
func (a *Analyzer) ResolveField(entity, path string) (*FieldRef, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return nil, schema.NewPathResolutionError(entity, path, err.Error())
	}

	steps, err := a.walk(entity, path, segments[:len(segments)-1])
	if err != nil {
		return nil, err
	}

	owner := entity
	if len(steps) > 0 {
		owner = steps[len(steps)-1].Target.Name
	}
	e, err := a.intro.Entity(owner)
	if err != nil {
		return nil, err
	}

	last := segments[len(segments)-1]
	f, ok := e.Field(last)
	if !ok {
		if _, isRel := e.Relationship(last); isRel {
			return nil, schema.NewPathResolutionError(entity, path,
				fmt.Sprintf("%q is a relationship of %s, not a field; append a field segment", last, owner))
		}
		return nil, schema.NewPathResolutionError(entity, path,
			fmt.Sprintf("entity %s has no field %q", owner, last))
	}

	return &FieldRef{Path: path, Steps: steps, Entity: e, Field: f}, nil
}

// ResolveRelations resolves a load path: a chain of relationship
// segments. A trailing field segment is tolerated and dropped, since the
// loader always materializes every column of a joined entity; asking for
// "author.name" loads the author. A path that is just a root field
// resolves to an empty chain.
func (a *Analyzer) ResolveRelations(entity, path string) ([]Step, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return nil, schema.NewPathResolutionError(entity, path, err.Error())
	}

	steps, err := a.walk(entity, path, segments[:len(segments)-1])
	if err != nil {
		return nil, err
	}

	current := entity
	if len(steps) > 0 {
		current = steps[len(steps)-1].Target.Name
	}

	last := segments[len(segments)-1]
	if rel, rerr := a.intro.Relationship(current, last); rerr == nil {
		source, serr := a.intro.Entity(current)
		if serr != nil {
			return nil, serr
		}
		target, terr := a.intro.Entity(rel.Target)
		if terr != nil {
			return nil, terr
		}
		return append(steps, Step{Relation: *rel, Source: source, Target: target}), nil
	}

	e, eerr := a.intro.Entity(current)
	if eerr != nil {
		return nil, eerr
	}
	if e.HasField(last) {
		return steps, nil
	}
	return nil, schema.NewPathResolutionError(entity, path,
		fmt.Sprintf("segment %q is neither a relationship nor a field of %s", last, current))
}

// walk resolves consecutive relationship segments starting at entity.
func (a *Analyzer) walk(entity, path string, segments []string) ([]Step, error) {
	current := entity
	steps := make([]Step, 0, len(segments))
	for _, seg := range segments {
		source, err := a.intro.Entity(current)
		if err != nil {
			return nil, err
		}
		rel, err := a.intro.Relationship(current, seg)
		if err != nil {
			return nil, schema.NewPathResolutionError(entity, path,
				fmt.Sprintf("segment %q is not a relationship of %s", seg, current))
		}
		target, err := a.intro.Entity(rel.Target)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Relation: *rel, Source: source, Target: target})
		current = rel.Target
	}
	return steps, nil
}

// DirectToOne returns the entity's own to-one relationships in
// declaration order. Only direct edges count: a to-one reachable through
// another relationship is not included, and neither is a to-one hanging
// off a to-many.
func (a *Analyzer) DirectToOne(entity string) ([]schema.Relationship, error) {
	e, err := a.intro.Entity(entity)
	if err != nil {
		return nil, err
	}
	var out []schema.Relationship
	for _, rel := range e.Relationships {
		if rel.Cardinality == schema.ToOne {
			out = append(out, rel)
		}
	}
	return out, nil
}
