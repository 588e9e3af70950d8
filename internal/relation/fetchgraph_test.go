package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/criterium/internal/schema"
)

func TestBuildFetchGraph_AutoToOneOnly(t *testing.T) {
	a := newCatalogAnalyzer(t)

	graph, err := a.BuildFetchGraph("book", nil)
	require.NoError(t, err)

	require.Len(t, graph.Paths, 1)
	assert.Equal(t, "author", graph.Paths[0].Path)
	assert.False(t, graph.Paths[0].Explicit)
	assert.Equal(t, schema.ToOne, graph.Paths[0].Cardinality)
	assert.Empty(t, graph.Warnings)
}

func TestBuildFetchGraph_ToManyNeverImplicit(t *testing.T) {
	a := newCatalogAnalyzer(t)

	graph, err := a.BuildFetchGraph("book", nil)
	require.NoError(t, err)

	assert.False(t, graph.Has("reviews"))
	assert.False(t, graph.Has("tags"))
}

func TestBuildFetchGraph_ExplicitBeforeAuto(t *testing.T) {
	a := newCatalogAnalyzer(t)

	graph, err := a.BuildFetchGraph("book", []string{"reviews"})
	require.NoError(t, err)

	require.Len(t, graph.Paths, 2)
	assert.Equal(t, "reviews", graph.Paths[0].Path)
	assert.True(t, graph.Paths[0].Explicit)
	assert.Equal(t, schema.ToMany, graph.Paths[0].Cardinality)
	assert.Equal(t, "author", graph.Paths[1].Path)
	assert.False(t, graph.Paths[1].Explicit)
	assert.Empty(t, graph.Warnings, "a single to-many branch is fine")
}

func TestBuildFetchGraph_ExplicitCoversAutoEdge(t *testing.T) {
	// "author.publisher" subsumes the automatic "author" edge; adding
	// both would just duplicate the join.
	a := newCatalogAnalyzer(t)

	graph, err := a.BuildFetchGraph("book", []string{"author.publisher"})
	require.NoError(t, err)

	require.Len(t, graph.Paths, 1)
	assert.Equal(t, "author.publisher", graph.Paths[0].Path)
	assert.True(t, graph.Paths[0].Explicit)
}

func TestBuildFetchGraph_DedupesExplicit(t *testing.T) {
	a := newCatalogAnalyzer(t)

	graph, err := a.BuildFetchGraph("book", []string{"author", "author", "author.name"})
	require.NoError(t, err)

	require.Len(t, graph.Paths, 1)
	assert.Equal(t, "author", graph.Paths[0].Path)
	assert.True(t, graph.Paths[0].Explicit)
}

func TestBuildFetchGraph_TrailingFieldNormalizes(t *testing.T) {
	a := newCatalogAnalyzer(t)

	graph, err := a.BuildFetchGraph("book", []string{"reviews.rating"})
	require.NoError(t, err)

	require.Len(t, graph.Paths, 2)
	assert.Equal(t, "reviews", graph.Paths[0].Path)
}

func TestBuildFetchGraph_RootFieldSkipped(t *testing.T) {
	// Root columns are always loaded; naming one is a no-op, not an
	// error.
	a := newCatalogAnalyzer(t)

	graph, err := a.BuildFetchGraph("book", []string{"title"})
	require.NoError(t, err)

	require.Len(t, graph.Paths, 1)
	assert.Equal(t, "author", graph.Paths[0].Path)
}

func TestBuildFetchGraph_IndependentToManyWarns(t *testing.T) {
	a := newCatalogAnalyzer(t)

	graph, err := a.BuildFetchGraph("book", []string{"reviews", "tags"})
	require.NoError(t, err)

	require.Len(t, graph.Warnings, 1)
	assert.Contains(t, graph.Warnings[0], "reviews, tags")
	assert.Contains(t, graph.Warnings[0], "cartesian product")
}

func TestBuildFetchGraph_NestedToManyDoesNotWarn(t *testing.T) {
	// "reviews.book" extends "reviews"; both are to-many but they share
	// a branch, so there is no product between them.
	a := newCatalogAnalyzer(t)

	graph, err := a.BuildFetchGraph("book", []string{"reviews", "reviews.book"})
	require.NoError(t, err)

	assert.Empty(t, graph.Warnings)
}

func TestBuildFetchGraph_UnknownPath(t *testing.T) {
	a := newCatalogAnalyzer(t)

	_, err := a.BuildFetchGraph("book", []string{"translator"})
	require.Error(t, err)
	assert.True(t, schema.IsResolutionError(err))
}

func TestFetchGraph_ToManyAccessor(t *testing.T) {
	a := newCatalogAnalyzer(t)

	graph, err := a.BuildFetchGraph("book", []string{"reviews", "author"})
	require.NoError(t, err)

	tomany := graph.ToMany()
	require.Len(t, tomany, 1)
	assert.Equal(t, "reviews", tomany[0].Path)
	assert.True(t, graph.Has("author"))
	assert.False(t, graph.Has("publisher"))
}
