// Package schema holds the static entity metadata the query engine plans
// against: table mapping, primary-key fields, and relationship
// cardinality. Metadata is registered once at startup (programmatically
// or compiled from CUE definitions) and is read-only afterward, which is
// what makes concurrent planning safe without locks.
package schema

import "fmt"

// Cardinality classifies a relationship from one entity to another.
type Cardinality string

const (
	// ToOne is a single-valued relationship (a book's author).
	// Joining a to-one path never multiplies result rows.
	ToOne Cardinality = "one"

	// ToMany is a collection-valued relationship (a book's reviews).
	// Joining a to-many path multiplies result rows, which is what the
	// two-phase executor exists to contain.
	ToMany Cardinality = "many"
)

// Valid reports whether c is a known cardinality.
func (c Cardinality) Valid() bool {
	return c == ToOne || c == ToMany
}

// Field is a scalar column on an entity.
type Field struct {
	Name string
	Type string // one of FieldTypes
}

// FieldTypes lists the accepted abstract field types. Backends map these
// to their own column types.
var FieldTypes = map[string]bool{
	"integer": true,
	"text":    true,
	"boolean": true,
	"real":    true,
	"blob":    true,
}

// keyFieldTypes are the field types allowed in a primary key. Keys are
// canonically encoded for order restoration and batching, which rules
// out inexact and binary types.
var keyFieldTypes = map[string]bool{
	"integer": true,
	"text":    true,
}

// Relationship describes a named edge to another entity.
//
// LocalColumn is the join column on the owning entity, ForeignColumn the
// join column on the target. For a to-one edge the local column is
// typically a foreign key ("books.author_id" -> "authors.id"); for a
// to-many edge the roles flip ("books.id" -> "reviews.book_id").
type Relationship struct {
	Name          string
	Target        string // target entity name
	Cardinality   Cardinality
	LocalColumn   string
	ForeignColumn string
}

// Entity is the metadata for one queryable entity type.
//
// Field, key, and relationship order is declaration order and is
// preserved so that generated column lists and key encodings are
// deterministic.
type Entity struct {
	Name          string
	Table         string
	KeyFields     []string // ordered; empty means "no declared key" (resolvers may still find one)
	Fields        []Field
	Relationships []Relationship
}

// Field returns the named field.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether the entity declares the named field.
func (e *Entity) HasField(name string) bool {
	_, ok := e.Field(name)
	return ok
}

// Relationship returns the named relationship.
func (e *Entity) Relationship(name string) (Relationship, bool) {
	for _, r := range e.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// FieldNames returns the field names in declaration order.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks the entity's own consistency. Cross-entity checks
// (relationship targets, foreign columns) belong to Registry.Validate,
// since targets may be registered after this entity.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity name must not be empty")
	}
	if e.Table == "" {
		return fmt.Errorf("entity %s: table must not be empty", e.Name)
	}
	if len(e.Fields) == 0 {
		return fmt.Errorf("entity %s: at least one field is required", e.Name)
	}

	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("entity %s: field name must not be empty", e.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("entity %s: duplicate field %s", e.Name, f.Name)
		}
		seen[f.Name] = true
		if !FieldTypes[f.Type] {
			return fmt.Errorf("entity %s: field %s has unsupported type %q", e.Name, f.Name, f.Type)
		}
	}

	for _, k := range e.KeyFields {
		f, ok := e.Field(k)
		if !ok {
			return fmt.Errorf("entity %s: key field %s is not declared", e.Name, k)
		}
		if !keyFieldTypes[f.Type] {
			return fmt.Errorf("entity %s: key field %s has type %q, keys must be integer or text", e.Name, k, f.Type)
		}
	}

	seenRel := make(map[string]bool, len(e.Relationships))
	for _, r := range e.Relationships {
		if r.Name == "" {
			return fmt.Errorf("entity %s: relationship name must not be empty", e.Name)
		}
		if seenRel[r.Name] {
			return fmt.Errorf("entity %s: duplicate relationship %s", e.Name, r.Name)
		}
		seenRel[r.Name] = true
		if seen[r.Name] {
			return fmt.Errorf("entity %s: relationship %s collides with a field name", e.Name, r.Name)
		}
		if !r.Cardinality.Valid() {
			return fmt.Errorf("entity %s: relationship %s has invalid cardinality %q", e.Name, r.Name, r.Cardinality)
		}
		if r.Target == "" {
			return fmt.Errorf("entity %s: relationship %s has no target", e.Name, r.Name)
		}
		if !e.HasField(r.LocalColumn) {
			return fmt.Errorf("entity %s: relationship %s references unknown local column %s", e.Name, r.Name, r.LocalColumn)
		}
		if r.ForeignColumn == "" {
			return fmt.Errorf("entity %s: relationship %s has no foreign column", e.Name, r.Name)
		}
	}

	return nil
}
