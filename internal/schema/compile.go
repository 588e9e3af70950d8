package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileEntity parses a CUE value into an Entity.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: book: { table: "books", ... }`)
//	e, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.book")))
//
// Expected shape:
//
//	entity: book: {
//	    table: "books"
//	    key: ["id"]
//	    fields: { id: "integer", title: "text", author_id: "integer" }
//	    relations: {
//	        author:  { to: "author", cardinality: "one", local: "author_id", foreign: "id" }
//	        reviews: { to: "review", cardinality: "many", local: "id", foreign: "book_id" }
//	    }
//	}
func CompileEntity(v cue.Value) (*Entity, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	e := &Entity{}

	// Entity name comes from the struct label (the path selector).
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		e.Name = labels[len(labels)-1].String()
	}

	// Parse table (required).
	tableVal := v.LookupPath(cue.ParsePath("table"))
	if !tableVal.Exists() {
		return nil, &CompileError{
			Field:   "table",
			Message: "table is required",
			Pos:     v.Pos(),
		}
	}
	table, err := tableVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	e.Table = table

	// Parse fields (required, at least one).
	e.Fields, err = parseFields(v)
	if err != nil {
		return nil, err
	}
	if len(e.Fields) == 0 {
		return nil, &CompileError{
			Field:   "fields",
			Message: "at least one field is required",
			Pos:     v.Pos(),
		}
	}

	// Parse key (required, non-empty, order preserved).
	e.KeyFields, err = parseKey(v)
	if err != nil {
		return nil, err
	}

	// Parse relations (optional).
	e.Relationships, err = parseRelations(v)
	if err != nil {
		return nil, err
	}

	// Entity-local consistency (key fields declared, column references,
	// cardinality values). Cross-entity checks run in Registry.Validate.
	if err := e.Validate(); err != nil {
		return nil, &CompileError{
			Field:   "entity." + e.Name,
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}

	return e, nil
}

// CompileEntities parses every entity under the "entity" struct of a CUE
// value, preserving declaration order.
func CompileEntities(v cue.Value) ([]Entity, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return nil, &CompileError{
			Field:   "entity",
			Message: "no entity definitions found",
			Pos:     v.Pos(),
		}
	}

	iter, err := entityVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entities []Entity
	for iter.Next() {
		e, err := CompileEntity(iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}

	if len(entities) == 0 {
		return nil, &CompileError{
			Field:   "entity",
			Message: "at least one entity is required",
			Pos:     entityVal.Pos(),
		}
	}

	return entities, nil
}

// parseFields extracts the field name -> type mapping in declaration order.
func parseFields(v cue.Value) ([]Field, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []Field
	for iter.Next() {
		name := iter.Label()
		typ, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if !FieldTypes[typ] {
			return nil, &CompileError{
				Field:   "fields." + name,
				Message: fmt.Sprintf("unsupported field type %q", typ),
				Pos:     iter.Value().Pos(),
			}
		}
		fields = append(fields, Field{Name: name, Type: typ})
	}

	return fields, nil
}

// parseKey extracts the ordered primary-key field list.
func parseKey(v cue.Value) ([]string, error) {
	keyVal := v.LookupPath(cue.ParsePath("key"))
	if !keyVal.Exists() {
		return nil, &CompileError{
			Field:   "key",
			Message: "key is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := keyVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var key []string
	for iter.Next() {
		field, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		key = append(key, field)
	}

	if len(key) == 0 {
		return nil, &CompileError{
			Field:   "key",
			Message: "key must list at least one field",
			Pos:     keyVal.Pos(),
		}
	}

	return key, nil
}

// parseRelations extracts relationship declarations in declaration order.
func parseRelations(v cue.Value) ([]Relationship, error) {
	relVal := v.LookupPath(cue.ParsePath("relations"))
	if !relVal.Exists() {
		return nil, nil
	}

	iter, err := relVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rels []Relationship
	for iter.Next() {
		name := iter.Label()
		rv := iter.Value()

		rel := Relationship{Name: name}

		target, err := requiredString(rv, "to", "relations."+name)
		if err != nil {
			return nil, err
		}
		rel.Target = target

		card, err := requiredString(rv, "cardinality", "relations."+name)
		if err != nil {
			return nil, err
		}
		rel.Cardinality = Cardinality(card)
		if !rel.Cardinality.Valid() {
			return nil, &CompileError{
				Field:   "relations." + name + ".cardinality",
				Message: fmt.Sprintf("cardinality must be %q or %q, got %q", ToOne, ToMany, card),
				Pos:     rv.Pos(),
			}
		}

		rel.LocalColumn, err = requiredString(rv, "local", "relations."+name)
		if err != nil {
			return nil, err
		}

		rel.ForeignColumn, err = requiredString(rv, "foreign", "relations."+name)
		if err != nil {
			return nil, err
		}

		rels = append(rels, rel)
	}

	return rels, nil
}

// requiredString reads a mandatory string attribute of a CUE struct.
func requiredString(v cue.Value, attr, context string) (string, error) {
	av := v.LookupPath(cue.ParsePath(attr))
	if !av.Exists() {
		return "", &CompileError{
			Field:   context + "." + attr,
			Message: attr + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := av.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a schema compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
