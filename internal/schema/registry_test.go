package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogRegistry(t *testing.T) *Registry {
	t.Helper()

	reg := NewRegistry()
	require.NoError(t, reg.Register(Entity{
		Name:      "publisher",
		Table:     "publishers",
		KeyFields: []string{"id"},
		Fields: []Field{
			{Name: "id", Type: "integer"},
			{Name: "name", Type: "text"},
		},
	}))
	require.NoError(t, reg.Register(authorEntity()))
	require.NoError(t, reg.Register(bookEntity()))
	require.NoError(t, reg.Register(Entity{
		Name:      "review",
		Table:     "reviews",
		KeyFields: []string{"id"},
		Fields: []Field{
			{Name: "id", Type: "integer"},
			{Name: "book_id", Type: "integer"},
			{Name: "rating", Type: "integer"},
		},
	}))
	require.NoError(t, reg.Validate())
	return reg
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := newCatalogRegistry(t)

	e, err := reg.Entity("book")
	require.NoError(t, err)
	assert.Equal(t, "books", e.Table)
	assert.Len(t, e.Relationships, 2)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(bookEntity()))

	err := reg.Register(bookEntity())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	reg := NewRegistry()

	e := bookEntity()
	e.Table = ""
	err := reg.Register(e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table must not be empty")
}

func TestRegistry_RegisterStoresCopy(t *testing.T) {
	reg := NewRegistry()
	e := bookEntity()
	require.NoError(t, reg.Register(e))

	// Mutating the caller's value after registration must not leak into
	// the registry.
	e.Table = "tampered"

	stored, err := reg.Entity("book")
	require.NoError(t, err)
	assert.Equal(t, "books", stored.Table)
}

func TestRegistry_ValidateUnregisteredTarget(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(bookEntity()))

	err := reg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targets unregistered entity author")
}

func TestRegistry_ValidateUnknownForeignColumn(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(bookEntity()))

	author := authorEntity()
	author.Relationships = nil
	author.Fields = []Field{{Name: "author_key", Type: "integer"}, {Name: "name", Type: "text"}}
	author.KeyFields = []string{"author_key"}
	require.NoError(t, reg.Register(author))

	review := Entity{
		Name:      "review",
		Table:     "reviews",
		KeyFields: []string{"id"},
		Fields: []Field{
			{Name: "id", Type: "integer"},
			{Name: "book_id", Type: "integer"},
		},
	}
	require.NoError(t, reg.Register(review))

	// book.author expects authors.id, which the author entity above does
	// not declare.
	err := reg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column author.id")
}

func TestRegistry_UnknownEntity(t *testing.T) {
	reg := newCatalogRegistry(t)

	_, err := reg.Entity("magazine")
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))
	assert.Contains(t, err.Error(), "magazine")
}

func TestRegistry_PrimaryKey(t *testing.T) {
	reg := newCatalogRegistry(t)

	rk, err := reg.PrimaryKey("book")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, rk.Fields)
	assert.Equal(t, "metadata", rk.Strategy)
}

func TestRegistry_PrimaryKeyByConvention(t *testing.T) {
	reg := NewRegistry()
	e := bookEntity()
	e.KeyFields = nil
	e.Relationships = nil
	require.NoError(t, reg.Register(e))

	rk, err := reg.PrimaryKey("book")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, rk.Fields)
	assert.Equal(t, "convention", rk.Strategy)
}

func TestRegistry_PrimaryKeyUnresolvable(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Entity{
		Name:  "log_line",
		Table: "log_lines",
		Fields: []Field{
			{Name: "message", Type: "text"},
		},
	}))

	_, err := reg.PrimaryKey("log_line")
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))
}

func TestRegistry_CustomResolverChain(t *testing.T) {
	// With only the metadata strategy, the convention fallback must not
	// rescue an undeclared key.
	reg := NewRegistry(MetadataResolver{})
	e := bookEntity()
	e.KeyFields = nil
	e.Relationships = nil
	require.NoError(t, reg.Register(e))

	_, err := reg.PrimaryKey("book")
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))
}

func TestRegistry_Relationship(t *testing.T) {
	reg := newCatalogRegistry(t)

	rel, err := reg.Relationship("book", "author")
	require.NoError(t, err)
	assert.Equal(t, ToOne, rel.Cardinality)
	assert.Equal(t, "author_id", rel.LocalColumn)
	assert.Equal(t, "id", rel.ForeignColumn)

	_, err = reg.Relationship("book", "translator")
	require.Error(t, err)
	assert.True(t, IsResolutionError(err))
	assert.Contains(t, err.Error(), "book.translator")
}

func TestRegistry_EntitiesOrder(t *testing.T) {
	reg := newCatalogRegistry(t)

	var names []string
	for _, e := range reg.Entities() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"publisher", "author", "book", "review"}, names)
}
