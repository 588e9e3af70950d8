package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bookEntity is a fixture with one to-one and one to-many relationship.
func bookEntity() Entity {
	return Entity{
		Name:      "book",
		Table:     "books",
		KeyFields: []string{"id"},
		Fields: []Field{
			{Name: "id", Type: "integer"},
			{Name: "title", Type: "text"},
			{Name: "published_at", Type: "integer"},
			{Name: "author_id", Type: "integer"},
		},
		Relationships: []Relationship{
			{Name: "author", Target: "author", Cardinality: ToOne, LocalColumn: "author_id", ForeignColumn: "id"},
			{Name: "reviews", Target: "review", Cardinality: ToMany, LocalColumn: "id", ForeignColumn: "book_id"},
		},
	}
}

func authorEntity() Entity {
	return Entity{
		Name:      "author",
		Table:     "authors",
		KeyFields: []string{"id"},
		Fields: []Field{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "text"},
			{Name: "publisher_id", Type: "integer"},
		},
		Relationships: []Relationship{
			{Name: "publisher", Target: "publisher", Cardinality: ToOne, LocalColumn: "publisher_id", ForeignColumn: "id"},
		},
	}
}

func TestEntityValidate_OK(t *testing.T) {
	e := bookEntity()
	require.NoError(t, e.Validate())
}

func TestEntityValidate_CompositeKey(t *testing.T) {
	e := Entity{
		Name:      "shipment",
		Table:     "shipments",
		KeyFields: []string{"region", "seq"},
		Fields: []Field{
			{Name: "region", Type: "text"},
			{Name: "seq", Type: "integer"},
			{Name: "status", Type: "text"},
		},
	}
	require.NoError(t, e.Validate())
}

func TestEntityValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Entity)
		wantMsg string
	}{
		{
			name:    "empty name",
			mutate:  func(e *Entity) { e.Name = "" },
			wantMsg: "name must not be empty",
		},
		{
			name:    "empty table",
			mutate:  func(e *Entity) { e.Table = "" },
			wantMsg: "table must not be empty",
		},
		{
			name:    "no fields",
			mutate:  func(e *Entity) { e.Fields = nil },
			wantMsg: "at least one field",
		},
		{
			name: "duplicate field",
			mutate: func(e *Entity) {
				e.Fields = append(e.Fields, Field{Name: "title", Type: "text"})
			},
			wantMsg: "duplicate field title",
		},
		{
			name: "unsupported field type",
			mutate: func(e *Entity) {
				e.Fields[1].Type = "varchar"
			},
			wantMsg: `unsupported type "varchar"`,
		},
		{
			name: "key field not declared",
			mutate: func(e *Entity) {
				e.KeyFields = []string{"isbn"}
			},
			wantMsg: "key field isbn is not declared",
		},
		{
			name: "key field with inexact type",
			mutate: func(e *Entity) {
				e.Fields = append(e.Fields, Field{Name: "weight", Type: "real"})
				e.KeyFields = []string{"weight"}
			},
			wantMsg: "keys must be integer or text",
		},
		{
			name: "duplicate relationship",
			mutate: func(e *Entity) {
				e.Relationships = append(e.Relationships, e.Relationships[0])
			},
			wantMsg: "duplicate relationship author",
		},
		{
			name: "relationship collides with field",
			mutate: func(e *Entity) {
				e.Relationships[0].Name = "title"
			},
			wantMsg: "collides with a field name",
		},
		{
			name: "invalid cardinality",
			mutate: func(e *Entity) {
				e.Relationships[0].Cardinality = "both"
			},
			wantMsg: `invalid cardinality "both"`,
		},
		{
			name: "missing target",
			mutate: func(e *Entity) {
				e.Relationships[0].Target = ""
			},
			wantMsg: "has no target",
		},
		{
			name: "unknown local column",
			mutate: func(e *Entity) {
				e.Relationships[0].LocalColumn = "writer_id"
			},
			wantMsg: "unknown local column writer_id",
		},
		{
			name: "missing foreign column",
			mutate: func(e *Entity) {
				e.Relationships[0].ForeignColumn = ""
			},
			wantMsg: "has no foreign column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := bookEntity()
			tt.mutate(&e)
			err := e.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestEntityField_Lookup(t *testing.T) {
	e := bookEntity()

	f, ok := e.Field("title")
	require.True(t, ok)
	assert.Equal(t, "text", f.Type)

	_, ok = e.Field("isbn")
	assert.False(t, ok)

	assert.True(t, e.HasField("author_id"))
	assert.False(t, e.HasField("author"))
}

func TestEntityRelationship_Lookup(t *testing.T) {
	e := bookEntity()

	rel, ok := e.Relationship("reviews")
	require.True(t, ok)
	assert.Equal(t, ToMany, rel.Cardinality)
	assert.Equal(t, "review", rel.Target)

	_, ok = e.Relationship("title")
	assert.False(t, ok, "field names are not relationships")
}

func TestEntityFieldNames_Order(t *testing.T) {
	e := bookEntity()
	assert.Equal(t, []string{"id", "title", "published_at", "author_id"}, e.FieldNames())
}

func TestCardinality_Valid(t *testing.T) {
	assert.True(t, ToOne.Valid())
	assert.True(t, ToMany.Valid())
	assert.False(t, Cardinality("").Valid())
	assert.False(t, Cardinality("both").Valid())
}
