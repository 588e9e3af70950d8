// Package testutil provides shared fixtures and deterministic test
// doubles for the query engine packages.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/criterium/internal/schema"
)

// CatalogEntities returns the bookstore metadata used across tests: a
// chain of to-one relationships (book -> author -> publisher), two
// independent to-many branches off book (reviews, tags), a composite-key
// entity (shipment), and one entity with no resolvable key (log_line).
func CatalogEntities() []schema.Entity {
	return []schema.Entity{
		{
			Name:      "publisher",
			Table:     "publishers",
			KeyFields: []string{"id"},
			Fields: []schema.Field{
				{Name: "id", Type: "integer"},
				{Name: "name", Type: "text"},
			},
		},
		{
			Name:      "author",
			Table:     "authors",
			KeyFields: []string{"id"},
			Fields: []schema.Field{
				{Name: "id", Type: "integer"},
				{Name: "name", Type: "text"},
				{Name: "publisher_id", Type: "integer"},
			},
			Relationships: []schema.Relationship{
				{Name: "publisher", Target: "publisher", Cardinality: schema.ToOne, LocalColumn: "publisher_id", ForeignColumn: "id"},
			},
		},
		{
			Name:      "book",
			Table:     "books",
			KeyFields: []string{"id"},
			Fields: []schema.Field{
				{Name: "id", Type: "integer"},
				{Name: "title", Type: "text"},
				{Name: "published_at", Type: "integer"},
				{Name: "author_id", Type: "integer"},
			},
			Relationships: []schema.Relationship{
				{Name: "author", Target: "author", Cardinality: schema.ToOne, LocalColumn: "author_id", ForeignColumn: "id"},
				{Name: "reviews", Target: "review", Cardinality: schema.ToMany, LocalColumn: "id", ForeignColumn: "book_id"},
				{Name: "tags", Target: "tag", Cardinality: schema.ToMany, LocalColumn: "id", ForeignColumn: "book_id"},
			},
		},
		{
			Name:      "review",
			Table:     "reviews",
			KeyFields: []string{"id"},
			Fields: []schema.Field{
				{Name: "id", Type: "integer"},
				{Name: "book_id", Type: "integer"},
				{Name: "rating", Type: "integer"},
				{Name: "body", Type: "text"},
			},
			Relationships: []schema.Relationship{
				{Name: "book", Target: "book", Cardinality: schema.ToOne, LocalColumn: "book_id", ForeignColumn: "id"},
			},
		},
		{
			Name:      "tag",
			Table:     "tags",
			KeyFields: []string{"id"},
			Fields: []schema.Field{
				{Name: "id", Type: "integer"},
				{Name: "book_id", Type: "integer"},
				{Name: "label", Type: "text"},
			},
		},
		{
			Name:      "shipment",
			Table:     "shipments",
			KeyFields: []string{"region", "seq"},
			Fields: []schema.Field{
				{Name: "region", Type: "text"},
				{Name: "seq", Type: "integer"},
				{Name: "status", Type: "text"},
				{Name: "weight", Type: "real"},
			},
		},
		{
			Name:  "log_line",
			Table: "log_lines",
			Fields: []schema.Field{
				{Name: "message", Type: "text"},
				{Name: "at", Type: "integer"},
			},
		},
	}
}

// NewCatalogRegistry builds and cross-validates a registry of the
// catalog entities.
func NewCatalogRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	for _, e := range CatalogEntities() {
		require.NoError(t, reg.Register(e))
	}
	require.NoError(t, reg.Validate())
	return reg
}

// CatalogRows returns deterministic seed rows for the catalog tables.
//
// The books table holds four rows tied at published_at=100 so that
// page-boundary tests can prove tie-breaking: without a stabilized sort,
// paging "published_at desc" over the tie is free to repeat or drop rows.
// Author 4 has no publisher, which exercises left-join retention during
// eager loads.
func CatalogRows() map[string][]map[string]any {
	return map[string][]map[string]any{
		"publishers": {
			{"id": 1, "name": "Abyss Press"},
			{"id": 2, "name": "Borealis Books"},
		},
		"authors": {
			{"id": 1, "name": "Ada Lovelace", "publisher_id": 1},
			{"id": 2, "name": "Brin Selwyn", "publisher_id": 1},
			{"id": 3, "name": "Chen Ning", "publisher_id": 2},
			{"id": 4, "name": "Drew Marsh", "publisher_id": nil},
		},
		"books": {
			{"id": 1, "title": "Ash", "published_at": 100, "author_id": 1},
			{"id": 2, "title": "Bloom", "published_at": 100, "author_id": 1},
			{"id": 3, "title": "Cinder", "published_at": 100, "author_id": 2},
			{"id": 4, "title": "Dawn", "published_at": 100, "author_id": 2},
			{"id": 5, "title": "Ember", "published_at": 200, "author_id": 3},
			{"id": 6, "title": "Fjord", "published_at": 300, "author_id": 3},
			{"id": 7, "title": "Grove", "published_at": 400, "author_id": 4},
			{"id": 8, "title": "Haven", "published_at": 500, "author_id": 4},
		},
		"reviews": {
			{"id": 1, "book_id": 1, "rating": 5, "body": "stark and lovely"},
			{"id": 2, "book_id": 1, "rating": 3, "body": "uneven middle"},
			{"id": 3, "book_id": 2, "rating": 4, "body": "worth the wait"},
			{"id": 4, "book_id": 5, "rating": 5, "body": "burns bright"},
			{"id": 5, "book_id": 5, "rating": 5, "body": "read it twice"},
			{"id": 6, "book_id": 5, "rating": 2, "body": "not for me"},
		},
		"tags": {
			{"id": 1, "book_id": 1, "label": "classic"},
			{"id": 2, "book_id": 1, "label": "epic"},
			{"id": 3, "book_id": 2, "label": "classic"},
			{"id": 4, "book_id": 6, "label": "saga"},
		},
		"shipments": {
			{"region": "east", "seq": 1, "status": "packed", "weight": 1.5},
			{"region": "east", "seq": 2, "status": "shipped", "weight": 0.7},
			{"region": "west", "seq": 1, "status": "packed", "weight": 2.25},
			{"region": "west", "seq": 2, "status": "delivered", "weight": 3.0},
			{"region": "west", "seq": 3, "status": "returned", "weight": 1.1},
		},
	}
}
