package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/criterium/internal/condition"
	"github.com/roach88/criterium/internal/store"
	"github.com/roach88/criterium/internal/testutil"
)

func newSQLiteEngine(t *testing.T, opts ...Option) (*Engine, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.EnsureSchema(testutil.CatalogEntities()))
	require.NoError(t, st.Seed(context.Background(), testutil.CatalogRows()))

	opts = append([]Option{WithLogger(testutil.DiscardLogger())}, opts...)
	return New(st.DB(), testutil.NewCatalogRegistry(t), opts...), st
}

func contentIDs(page *Page) []int64 {
	ids := make([]int64, len(page.Content))
	for i, rec := range page.Content {
		ids[i] = rec["id"].(int64)
	}
	return ids
}

func TestIntegration_PaginationCompleteOverTiedRows(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()

	// Four books share published_at=100; the stabilized sort must walk
	// them across page boundaries without repeats or gaps.
	cond := condition.New().
		OrderBy("published_at", false).
		Fetch("reviews").
		WithPage(0, 2)

	var walked []int64
	for page := 0; page < 4; page++ {
		p, err := e.FindPage(ctx, "book", cond.WithPage(page, 2))
		require.NoError(t, err)
		require.NotNil(t, p.TotalCount)
		assert.Equal(t, int64(8), *p.TotalCount)
		walked = append(walked, contentIDs(p)...)
	}
	assert.Equal(t, []int64{8, 7, 6, 5, 1, 2, 3, 4}, walked)

	// Beyond the last page the identify phase is empty and the count is
	// trivially zero.
	past, err := e.FindPage(ctx, "book", cond.WithPage(4, 2))
	require.NoError(t, err)
	assert.Empty(t, past.Content)
	require.NotNil(t, past.TotalCount)
	assert.Equal(t, int64(0), *past.TotalCount)
}

func TestIntegration_TwoAndSinglePhaseAgree(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()

	base := condition.New().
		Where("published_at", condition.OpGte, 100).
		OrderBy("title", true).
		WithPage(0, 8)

	single, err := e.FindPage(ctx, "book", base)
	require.NoError(t, err)

	double, err := e.FindPage(ctx, "book", base.Fetch("reviews"))
	require.NoError(t, err)

	require.Equal(t, contentIDs(single), contentIDs(double))
	require.Equal(t, *single.TotalCount, *double.TotalCount)
	for i := range single.Content {
		assert.Equal(t, single.Content[i]["title"], double.Content[i]["title"])
		assert.Equal(t, single.Content[i]["author"], double.Content[i]["author"])
	}
}

func TestIntegration_ToManyFilterSelectsDistinctRoots(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()

	// Book 5 matches through two of its three reviews; it must appear
	// once, and its eager load carries all three children, not just the
	// matching ones.
	cond := condition.New().
		Where("reviews.rating", condition.OpGte, 4).
		Fetch("reviews")
	page, err := e.FindPage(ctx, "book", cond)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 5}, contentIDs(page))
	require.NotNil(t, page.TotalCount)
	assert.Equal(t, int64(3), *page.TotalCount)

	ember := page.Content[2]
	reviews, ok := ember["reviews"].([]Record)
	require.True(t, ok)
	assert.Len(t, reviews, 3)
}

func TestIntegration_NestedEagerLoadKeepsNilBranch(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()

	cond := condition.New().
		Where("published_at", condition.OpGte, 400).
		Fetch("author.publisher")
	page, err := e.FindPage(ctx, "book", cond)
	require.NoError(t, err)
	require.Equal(t, []int64{7, 8}, contentIDs(page))

	for _, rec := range page.Content {
		author, ok := rec["author"].(Record)
		require.True(t, ok)
		assert.Equal(t, "Drew Marsh", author["name"])

		publisher, present := author["publisher"]
		require.True(t, present)
		assert.Nil(t, publisher)
	}

	ash, err := e.FindPage(ctx, "book", condition.New().
		Where("title", condition.OpEq, "Ash").
		Fetch("author.publisher"))
	require.NoError(t, err)
	require.Len(t, ash.Content, 1)
	author := ash.Content[0]["author"].(Record)
	publisher, ok := author["publisher"].(Record)
	require.True(t, ok)
	assert.Equal(t, "Abyss Press", publisher["name"])
}

func TestIntegration_EmptyToManyCollection(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()

	page, err := e.FindPage(ctx, "book", condition.New().
		Where("title", condition.OpEq, "Cinder").
		Fetch("reviews"))
	require.NoError(t, err)
	require.Len(t, page.Content, 1)

	reviews, ok := page.Content[0]["reviews"].([]Record)
	require.True(t, ok, "unreviewed book still carries the collection")
	assert.Empty(t, reviews)
}

func TestIntegration_CartesianFetchFoldsBothBranches(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()

	// Book 1 has two reviews and two tags: four join rows, one record.
	page, err := e.FindPage(ctx, "book", condition.New().
		Where("title", condition.OpEq, "Ash").
		Fetch("reviews", "tags"))
	require.NoError(t, err)

	require.Len(t, page.Content, 1)
	assert.True(t, page.HasWarning("CARTESIAN_FETCH"))

	reviews := page.Content[0]["reviews"].([]Record)
	tags := page.Content[0]["tags"].([]Record)
	assert.Len(t, reviews, 2)
	assert.Len(t, tags, 2)
	assert.ElementsMatch(t, []any{"classic", "epic"}, []any{tags[0]["label"], tags[1]["label"]})
}

func TestIntegration_ChunkedLoadAgainstSQLite(t *testing.T) {
	e, _ := newSQLiteEngine(t, WithMaxBatchSize(3))
	ctx := context.Background()

	page, err := e.FindPage(ctx, "book", condition.New().
		OrderBy("id", true).
		Fetch("reviews").
		WithPage(0, 8))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8}, contentIDs(page))
}

func TestIntegration_ParallelChunksAgainstSQLite(t *testing.T) {
	e, _ := newSQLiteEngine(t, WithMaxBatchSize(2), WithParallelChunks(3))
	ctx := context.Background()

	page, err := e.FindPageWithoutCount(ctx, "book", condition.New().
		Fetch("reviews").
		WithPage(0, 8))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8}, contentIDs(page))
}

func TestIntegration_CompositeKeyPaging(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()

	// No sort requested: the stabilizer orders by (region, seq).
	page, err := e.FindPage(ctx, "shipment", condition.New().WithPage(1, 2))
	require.NoError(t, err)

	require.Len(t, page.Content, 2)
	assert.Equal(t, "west", page.Content[0]["region"])
	assert.Equal(t, int64(1), page.Content[0]["seq"])
	assert.Equal(t, "west", page.Content[1]["region"])
	assert.Equal(t, int64(2), page.Content[1]["seq"])
	require.NotNil(t, page.TotalCount)
	assert.Equal(t, int64(5), *page.TotalCount)
}

func TestIntegration_CompositeKeyMembershipFilter(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()

	cond := condition.New().
		Where(condition.PrimaryKeyField, condition.OpIn, []any{"east", 1}, []any{"west", 2})
	page, err := e.FindPage(ctx, "shipment", cond)
	require.NoError(t, err)

	require.Len(t, page.Content, 2)
	assert.Equal(t, "packed", page.Content[0]["status"])
	assert.Equal(t, "delivered", page.Content[1]["status"])
}

func TestIntegration_CursorMatchesPagedResult(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()

	cond := condition.New().Where("author.name", condition.OpEq, "Chen Ning")

	paged, err := e.FindPage(ctx, "book", cond)
	require.NoError(t, err)
	cursor, err := e.FindWithCursor(ctx, "book", cond)
	require.NoError(t, err)

	assert.Equal(t, contentIDs(paged), contentIDs(cursor))
	assert.Equal(t, []int64{5, 6}, contentIDs(cursor))
	require.NotNil(t, cursor.TotalCount)
	assert.Equal(t, int64(2), *cursor.TotalCount)
}

func TestIntegration_OperatorSweep(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		cond condition.SearchCondition
		want []int64
	}{
		{
			name: "between bounds inclusive",
			cond: condition.New().Where("published_at", condition.OpBetween, 200, 400),
			want: []int64{5, 6, 7},
		},
		{
			name: "contains",
			cond: condition.New().Where("title", condition.OpContains, "o"),
			want: []int64{2, 6, 7},
		},
		{
			name: "starts with",
			cond: condition.New().Where("title", condition.OpStartsWith, "A"),
			want: []int64{1},
		},
		{
			name: "in list",
			cond: condition.New().Where("title", condition.OpIn, "Ash", "Dawn", "Zzz"),
			want: []int64{1, 4},
		},
		{
			name: "empty in matches nothing",
			cond: condition.New().Where("title", condition.OpIn),
			want: []int64{},
		},
		{
			name: "or across fields",
			cond: condition.New().
				Where("title", condition.OpEq, "Ash").
				OrWhere("published_at", condition.OpGte, 500),
			want: []int64{1, 8},
		},
		{
			name: "group keeps precedence",
			cond: condition.New().
				Where("author.name", condition.OpEq, "Ada Lovelace").
				WithGroup(condition.LogicAnd,
					condition.Filter{Field: "title", Operator: condition.OpEq, Values: []any{"Ash"}},
					condition.Filter{Field: "title", Operator: condition.OpEq, Values: []any{"Bloom"}, Logic: condition.LogicOr},
				),
			want: []int64{1, 2},
		},
		{
			name: "null check on to-one column",
			cond: condition.New().Where("author.publisher_id", condition.OpIsNull),
			want: []int64{7, 8},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := e.FindPage(ctx, "book", tc.cond)
			require.NoError(t, err)
			assert.Equal(t, tc.want, contentIDs(page))
		})
	}
}

func TestIntegration_CountAndExists(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()

	total, err := e.Count(ctx, "book", condition.New().Where("reviews.rating", condition.OpGte, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	found, err := e.Exists(ctx, "book", condition.New().Where("reviews.rating", condition.OpGte, 5))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = e.Exists(ctx, "book", condition.New().Where("title", condition.OpEq, "Zzz"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIntegration_DegradedEntityStillPages(t *testing.T) {
	e, st := newSQLiteEngine(t)
	ctx := context.Background()

	require.NoError(t, st.Seed(ctx, map[string][]map[string]any{
		"log_lines": {
			{"message": "started", "at": 10},
			{"message": "degraded", "at": 20},
			{"message": "restarted", "at": 30},
		},
	}))

	page, err := e.FindPage(ctx, "log_line", condition.New().OrderBy("at", false))
	require.NoError(t, err)

	assert.True(t, page.HasWarning("UNSTABILIZED_SORT"))
	require.Len(t, page.Content, 3)
	assert.Equal(t, "restarted", page.Content[0]["message"])
	require.NotNil(t, page.TotalCount)
	assert.Equal(t, int64(3), *page.TotalCount)
}

func TestIntegration_RunsInsideTransaction(t *testing.T) {
	_, st := newSQLiteEngine(t)
	ctx := context.Background()

	tx, err := st.DB().BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	e := New(tx, testutil.NewCatalogRegistry(t), WithLogger(testutil.DiscardLogger()))
	page, err := e.FindPage(ctx, "book", condition.New().
		Where("reviews.rating", condition.OpGte, 4).
		Fetch("reviews"))
	require.NoError(t, err)

	// All three phases ran on the one transaction's view.
	assert.Equal(t, []int64{1, 2, 5}, contentIDs(page))
}
