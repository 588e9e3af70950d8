package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/criterium/internal/condition"
	"github.com/roach88/criterium/internal/queryplan"
	"github.com/roach88/criterium/internal/schema"
	"github.com/roach88/criterium/internal/testutil"
)

func newBuildEngine(t *testing.T) *Engine {
	t.Helper()
	return New(nil, testutil.NewCatalogRegistry(t), WithLogger(testutil.DiscardLogger()))
}

func joinPaths(joins []queryplan.Join) []string {
	paths := make([]string, len(joins))
	for i, j := range joins {
		paths[i] = j.Path
	}
	return paths
}

func TestBuild_SinglePhasePlan(t *testing.T) {
	e := newBuildEngine(t)

	cond := condition.New().
		Where("title", condition.OpEq, "Ash").
		OrderBy("published_at", false).
		WithPage(1, 5)
	plan, err := e.Build("book", cond)
	require.NoError(t, err)

	assert.False(t, plan.TwoPhase())
	assert.Equal(t, "book", plan.Entity)
	assert.Equal(t, "books", plan.Table)
	assert.Equal(t, []string{"id"}, plan.KeyFields)
	assert.Equal(t, "metadata", plan.KeyStrategy)
	assert.False(t, plan.Degraded)
	assert.Equal(t, 1, plan.Page)
	assert.Equal(t, 5, plan.Size)
	assert.Equal(t, uint64(5), plan.Offset())
	assert.NotNil(t, plan.Predicate)
	assert.Empty(t, plan.ToManyPaths)
	assert.Empty(t, plan.Warnings)
}

func TestBuild_StabilizesSort(t *testing.T) {
	e := newBuildEngine(t)

	plan, err := e.Build("book", condition.New().OrderBy("published_at", false))
	require.NoError(t, err)

	require.Len(t, plan.OrderBy, 2)
	assert.Equal(t, queryplan.OrderColumn{Field: "published_at", Column: "books.published_at", Ascending: false}, plan.OrderBy[0])
	assert.Equal(t, queryplan.OrderColumn{Field: "id", Column: "books.id", Ascending: true}, plan.OrderBy[1])
}

func TestBuild_NoSortStillStabilizes(t *testing.T) {
	e := newBuildEngine(t)

	plan, err := e.Build("book", condition.New())
	require.NoError(t, err)

	require.Len(t, plan.OrderBy, 1)
	assert.Equal(t, "books.id", plan.OrderBy[0].Column)
	assert.True(t, plan.OrderBy[0].Ascending)
}

func TestBuild_SortAlreadyOnKeyNotDuplicated(t *testing.T) {
	e := newBuildEngine(t)

	plan, err := e.Build("book", condition.New().OrderBy("id", false))
	require.NoError(t, err)

	require.Len(t, plan.OrderBy, 1)
	assert.Equal(t, "books.id", plan.OrderBy[0].Column)
	assert.False(t, plan.OrderBy[0].Ascending)
}

func TestBuild_CompositeKeyStabilization(t *testing.T) {
	e := newBuildEngine(t)

	plan, err := e.Build("shipment", condition.New().OrderBy("status", true))
	require.NoError(t, err)

	require.Len(t, plan.OrderBy, 3)
	assert.Equal(t, "shipments.status", plan.OrderBy[0].Column)
	assert.Equal(t, "shipments.region", plan.OrderBy[1].Column)
	assert.Equal(t, "shipments.seq", plan.OrderBy[2].Column)
}

func TestBuild_PagingDefaults(t *testing.T) {
	e := newBuildEngine(t)

	plan, err := e.Build("book", condition.SearchCondition{Page: -3})
	require.NoError(t, err)

	assert.Equal(t, 0, plan.Page)
	assert.Equal(t, condition.DefaultSize, plan.Size)
}

func TestBuild_ToManyFilterForcesTwoPhase(t *testing.T) {
	e := newBuildEngine(t)

	plan, err := e.Build("book", condition.New().Where("reviews.rating", condition.OpGte, 4))
	require.NoError(t, err)

	assert.True(t, plan.TwoPhase())
	assert.Equal(t, []string{"reviews"}, plan.ToManyPaths)
}

func TestBuild_ToManyFetchForcesTwoPhase(t *testing.T) {
	e := newBuildEngine(t)

	plan, err := e.Build("book", condition.New().Fetch("reviews"))
	require.NoError(t, err)

	assert.True(t, plan.TwoPhase())
	assert.Equal(t, []string{"reviews"}, plan.ToManyPaths)
}

func TestBuild_ToOneOnlyStaysSinglePhase(t *testing.T) {
	e := newBuildEngine(t)

	cond := condition.New().
		Where("author.name", condition.OpEq, "Ada Lovelace").
		OrderBy("author.publisher.name", true).
		Fetch("author.publisher")
	plan, err := e.Build("book", cond)
	require.NoError(t, err)

	assert.False(t, plan.TwoPhase())
	assert.Empty(t, plan.ToManyPaths)
}

func TestBuild_JoinSetsPerQueryShape(t *testing.T) {
	e := newBuildEngine(t)

	cond := condition.New().
		Where("reviews.rating", condition.OpGte, 4).
		OrderBy("author.name", true).
		Fetch("tags")
	plan, err := e.Build("book", cond)
	require.NoError(t, err)

	// Key query joins filters and sorts, count only filters, load only
	// the fetch graph, page all three merged.
	assert.Equal(t, []string{"reviews", "author"}, joinPaths(plan.KeyJoins))
	assert.Equal(t, []string{"reviews"}, joinPaths(plan.CountJoins))
	assert.Equal(t, []string{"tags", "author"}, joinPaths(plan.LoadJoins))
	assert.Equal(t, []string{"reviews", "author", "tags"}, joinPaths(plan.PageJoins))
}

func TestBuild_JoinKinds(t *testing.T) {
	e := newBuildEngine(t)

	cond := condition.New().
		Where("author.name", condition.OpEq, "Ada Lovelace").
		OrderBy("author.publisher.name", true)
	plan, err := e.Build("book", cond)
	require.NoError(t, err)

	byPath := make(map[string]queryplan.Join)
	for _, j := range plan.KeyJoins {
		byPath[j.Path] = j
	}
	// The filter made author inner; inner wins over the sort's left.
	assert.Equal(t, queryplan.InnerJoin, byPath["author"].Kind)
	assert.Equal(t, queryplan.LeftJoin, byPath["author.publisher"].Kind)
}

func TestBuild_RepeatedPathJoinsOnce(t *testing.T) {
	e := newBuildEngine(t)

	cond := condition.New().
		Where("author.name", condition.OpContains, "Lovelace").
		Where("author.publisher_id", condition.OpNotNull).
		OrderBy("author.name", true)
	plan, err := e.Build("book", cond)
	require.NoError(t, err)

	assert.Equal(t, []string{"author"}, joinPaths(plan.KeyJoins))
	assert.Equal(t, []string{"author"}, joinPaths(plan.CountJoins))
}

func TestBuild_AutoFetchesDirectToOne(t *testing.T) {
	e := newBuildEngine(t)

	plan, err := e.Build("book", condition.New())
	require.NoError(t, err)

	require.Equal(t, []string{"author"}, joinPaths(plan.LoadJoins))
	assert.True(t, plan.LoadJoins[0].Fetch)
	assert.Equal(t, queryplan.LeftJoin, plan.LoadJoins[0].Kind)
}

func TestBuild_DegradedEntityWarns(t *testing.T) {
	e := newBuildEngine(t)

	plan, err := e.Build("log_line", condition.New().OrderBy("at", false))
	require.NoError(t, err)

	assert.True(t, plan.Degraded)
	assert.Empty(t, plan.KeyFields)
	require.Len(t, plan.OrderBy, 1)
	assert.Equal(t, "log_lines.at", plan.OrderBy[0].Column)

	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, queryplan.WarnUnstabilizedSort, plan.Warnings[0].Code)
}

func TestBuild_DegradedTwoPhaseRejected(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(schema.Entity{
		Name:  "event",
		Table: "events",
		Fields: []schema.Field{
			{Name: "label", Type: "text"},
			{Name: "at", Type: "integer"},
		},
		Relationships: []schema.Relationship{
			{Name: "attendees", Target: "attendee", Cardinality: schema.ToMany, LocalColumn: "label", ForeignColumn: "event_label"},
		},
	}))
	require.NoError(t, reg.Register(schema.Entity{
		Name:      "attendee",
		Table:     "attendees",
		KeyFields: []string{"id"},
		Fields: []schema.Field{
			{Name: "id", Type: "integer"},
			{Name: "event_label", Type: "text"},
			{Name: "name", Type: "text"},
		},
	}))
	require.NoError(t, reg.Validate())
	e := New(nil, reg, WithLogger(testutil.DiscardLogger()))

	_, err := e.Build("event", condition.New().Where("attendees.name", condition.OpEq, "Ada"))
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
	assert.Contains(t, err.Error(), "requires a resolved primary key")
}

func TestBuild_UnknownEntity(t *testing.T) {
	e := newBuildEngine(t)

	_, err := e.Build("ghost", condition.New())
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
	assert.Equal(t, ErrCodeSchemaUnresolved, CodeOf(err))
}

func TestBuild_UnknownFilterField(t *testing.T) {
	e := newBuildEngine(t)

	_, err := e.Build("book", condition.New().Where("subtitle", condition.OpEq, "x"))
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
}

func TestBuild_UnknownSortField(t *testing.T) {
	e := newBuildEngine(t)

	_, err := e.Build("book", condition.New().OrderBy("author.fame", true))
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
}

func TestBuild_UnknownOperator(t *testing.T) {
	e := newBuildEngine(t)

	_, err := e.Build("book", condition.New().Where("title", condition.Operator("regex"), "^A"))
	require.Error(t, err)
	assert.True(t, IsOperatorError(err))
	assert.Equal(t, ErrCodeUnsupportedOperator, CodeOf(err))
}

func TestBuild_InvalidConditionRejected(t *testing.T) {
	e := newBuildEngine(t)

	_, err := e.Build("book", condition.New().Where("", condition.OpEq, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field must not be empty")
}

func TestBuild_IndependentToManyFetchWarns(t *testing.T) {
	e := newBuildEngine(t)

	plan, err := e.Build("book", condition.New().Fetch("reviews", "tags"))
	require.NoError(t, err)

	require.True(t, plan.TwoPhase())
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, queryplan.WarnCartesianFetch, plan.Warnings[0].Code)
	assert.Contains(t, plan.Warnings[0].Message, "reviews")
	assert.Contains(t, plan.Warnings[0].Message, "tags")
}

func TestFindWithCursor_RejectsToMany(t *testing.T) {
	e := newBuildEngine(t)

	_, err := e.FindWithCursor(context.Background(), "book", condition.New().Fetch("reviews"))
	require.Error(t, err)
	assert.True(t, IsCursorError(err))
	assert.Contains(t, err.Error(), "reviews")

	_, err = e.FindWithCursorWithoutCount(context.Background(), "book", condition.New().Where("reviews.rating", condition.OpGte, 4))
	require.Error(t, err)
	assert.Equal(t, ErrCodeCursorToMany, CodeOf(err))
}
