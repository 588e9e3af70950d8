package querysql

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/criterium/internal/condition"
	"github.com/roach88/criterium/internal/key"
	"github.com/roach88/criterium/internal/queryplan"
	"github.com/roach88/criterium/internal/relation"
	"github.com/roach88/criterium/internal/schema"
	"github.com/roach88/criterium/internal/testutil"
)

func newCatalogPlan(t *testing.T, entity string) (*queryplan.Plan, *relation.Analyzer) {
	t.Helper()

	reg := testutil.NewCatalogRegistry(t)
	root, err := reg.Entity(entity)
	require.NoError(t, err)
	rk, err := reg.PrimaryKey(entity)
	require.NoError(t, err)

	plan := &queryplan.Plan{
		Entity:      entity,
		Root:        root,
		Table:       root.Table,
		KeyFields:   rk.Fields,
		KeyStrategy: rk.Strategy,
		Size:        condition.DefaultSize,
	}
	return plan, relation.NewAnalyzer(reg)
}

func ensureJoins(t *testing.T, a *relation.Analyzer, root *schema.Entity, kind queryplan.JoinKind, fetch bool, paths ...string) []queryplan.Join {
	t.Helper()

	p := queryplan.NewPlanner(root)
	for _, path := range paths {
		steps, err := a.ResolveRelations(root.Name, path)
		require.NoError(t, err)
		require.NoError(t, p.Ensure(steps, kind, fetch))
	}
	return p.Joins()
}

func simpleKeys(t *testing.T, values ...any) []key.Composite {
	t.Helper()

	codec, err := key.NewCodec([]string{"id"})
	require.NoError(t, err)
	keys := make([]key.Composite, len(values))
	for i, v := range values {
		k, err := codec.FromValues([]any{v})
		require.NoError(t, err)
		keys[i] = k
	}
	return keys
}

func mustSQL(t *testing.T, b sq.SelectBuilder) (string, []any) {
	t.Helper()

	sql, args, err := b.ToSql()
	require.NoError(t, err)
	return sql, args
}

func TestKeyQuery_TwoPhase(t *testing.T) {
	plan, a := newCatalogPlan(t, "book")
	plan.KeyJoins = ensureJoins(t, a, plan.Root, queryplan.InnerJoin, false, "reviews")
	plan.Predicate = sq.GtOrEq{"reviews.rating": 4}
	plan.OrderBy = []queryplan.OrderColumn{
		{Field: "published_at", Column: "books.published_at", Ascending: false},
		{Field: "id", Column: "books.id", Ascending: true},
	}
	plan.ToManyPaths = []string{"reviews"}
	plan.Size = 2

	b, err := KeyQuery(plan)
	require.NoError(t, err)

	sql, args := mustSQL(t, b)
	assert.Equal(t,
		"SELECT DISTINCT books.id, books.published_at FROM books "+
			"JOIN reviews AS reviews ON books.id = reviews.book_id "+
			"WHERE reviews.rating >= ? "+
			"ORDER BY books.published_at DESC, books.id ASC "+
			"LIMIT 2 OFFSET 0",
		sql)
	assert.Equal(t, []any{4}, args)
}

func TestKeyQuery_SortOnKeyColumnNotDuplicated(t *testing.T) {
	plan, _ := newCatalogPlan(t, "book")
	plan.OrderBy = []queryplan.OrderColumn{
		{Field: "id", Column: "books.id", Ascending: true},
	}
	plan.ToManyPaths = []string{"reviews"}
	plan.Size = 5

	b, err := KeyQuery(plan)
	require.NoError(t, err)

	sql, _ := mustSQL(t, b)
	assert.Equal(t,
		"SELECT DISTINCT books.id FROM books ORDER BY books.id ASC LIMIT 5 OFFSET 0",
		sql)
}

func TestKeyQuery_SecondPageOffset(t *testing.T) {
	plan, _ := newCatalogPlan(t, "book")
	plan.OrderBy = []queryplan.OrderColumn{
		{Field: "id", Column: "books.id", Ascending: true},
	}
	plan.Page = 3
	plan.Size = 10

	b, err := KeyQuery(plan)
	require.NoError(t, err)

	sql, _ := mustSQL(t, b)
	assert.Contains(t, sql, "LIMIT 10 OFFSET 30")
}

func TestKeyQuery_RequiresResolvedKey(t *testing.T) {
	plan, _ := newCatalogPlan(t, "book")
	plan.KeyFields = nil

	_, err := KeyQuery(plan)
	require.ErrorContains(t, err, "requires a resolved primary key")
}

func TestLoadQuery_ToOneFetch(t *testing.T) {
	plan, a := newCatalogPlan(t, "book")
	plan.LoadJoins = ensureJoins(t, a, plan.Root, queryplan.LeftJoin, true, "author")

	b, err := LoadQuery(plan, key.Encoder{RowValues: true}, simpleKeys(t, 1, 2, 3))
	require.NoError(t, err)

	sql, args := mustSQL(t, b)
	assert.Equal(t,
		"SELECT books.id AS id, books.title AS title, books.published_at AS published_at, books.author_id AS author_id, "+
			"author.id AS author__id, author.name AS author__name, author.publisher_id AS author__publisher_id "+
			"FROM books "+
			"LEFT JOIN authors AS author ON books.author_id = author.id "+
			"WHERE books.id IN (?,?,?)",
		sql)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, args)
}

func TestLoadQuery_NestedFetchMaterializesWholeChain(t *testing.T) {
	plan, a := newCatalogPlan(t, "book")
	plan.LoadJoins = ensureJoins(t, a, plan.Root, queryplan.LeftJoin, true, "author.publisher")

	b, err := LoadQuery(plan, key.Encoder{RowValues: true}, simpleKeys(t, 7))
	require.NoError(t, err)

	sql, _ := mustSQL(t, b)
	assert.Contains(t, sql, "author.id AS author__id")
	assert.Contains(t, sql, "author__publisher.name AS author__publisher__name")
	assert.Contains(t, sql, "LEFT JOIN authors AS author ON books.author_id = author.id")
	assert.Contains(t, sql, "LEFT JOIN publishers AS author__publisher ON author.publisher_id = author__publisher.id")
	assert.Contains(t, sql, "WHERE books.id IN (?)")
}

func TestLoadQuery_ToManyFetch(t *testing.T) {
	plan, a := newCatalogPlan(t, "book")
	plan.LoadJoins = ensureJoins(t, a, plan.Root, queryplan.LeftJoin, true, "reviews")

	b, err := LoadQuery(plan, key.Encoder{RowValues: true}, simpleKeys(t, 1, 5))
	require.NoError(t, err)

	sql, _ := mustSQL(t, b)
	assert.Contains(t, sql, "reviews.rating AS reviews__rating")
	assert.Contains(t, sql, "LEFT JOIN reviews AS reviews ON books.id = reviews.book_id")
	assert.NotContains(t, sql, "ORDER BY") // order is restored after folding
}

func TestLoadQuery_BudgetErrorPropagates(t *testing.T) {
	plan, _ := newCatalogPlan(t, "book")

	_, err := LoadQuery(plan, key.Encoder{RowValues: true, ParamBudget: 2}, simpleKeys(t, 1, 2, 3))
	require.Error(t, err)
	assert.True(t, key.IsUnsupportedError(err))
}

func TestCountQuery_TwoPhaseCountsDistinctKeys(t *testing.T) {
	plan, a := newCatalogPlan(t, "book")
	plan.CountJoins = ensureJoins(t, a, plan.Root, queryplan.InnerJoin, false, "reviews")
	plan.Predicate = sq.GtOrEq{"reviews.rating": 4}
	plan.ToManyPaths = []string{"reviews"}

	b, err := CountQuery(plan)
	require.NoError(t, err)

	sql, args := mustSQL(t, b)
	assert.Equal(t,
		"SELECT COUNT(*) FROM "+
			"(SELECT DISTINCT books.id FROM books "+
			"JOIN reviews AS reviews ON books.id = reviews.book_id "+
			"WHERE reviews.rating >= ?) AS keys",
		sql)
	assert.Equal(t, []any{4}, args)
}

func TestCountQuery_SinglePhaseCountsRows(t *testing.T) {
	plan, _ := newCatalogPlan(t, "book")
	plan.Predicate = sq.Eq{"books.title": "Ash"}

	b, err := CountQuery(plan)
	require.NoError(t, err)

	sql, args := mustSQL(t, b)
	assert.Equal(t, "SELECT COUNT(*) FROM books WHERE books.title = ?", sql)
	assert.Equal(t, []any{"Ash"}, args)
}

func TestCountQuery_SinglePhaseKeepsFilterJoins(t *testing.T) {
	plan, a := newCatalogPlan(t, "book")
	plan.CountJoins = ensureJoins(t, a, plan.Root, queryplan.InnerJoin, false, "author")
	plan.Predicate = sq.Eq{"author.name": "Ada Lovelace"}

	b, err := CountQuery(plan)
	require.NoError(t, err)

	sql, _ := mustSQL(t, b)
	assert.Equal(t,
		"SELECT COUNT(*) FROM books JOIN authors AS author ON books.author_id = author.id WHERE author.name = ?",
		sql)
}

func TestPageQuery_SinglePhase(t *testing.T) {
	plan, a := newCatalogPlan(t, "book")
	plan.PageJoins = ensureJoins(t, a, plan.Root, queryplan.LeftJoin, true, "author")
	plan.Predicate = sq.Gt{"books.published_at": 100}
	plan.OrderBy = []queryplan.OrderColumn{
		{Field: "published_at", Column: "books.published_at", Ascending: false},
		{Field: "id", Column: "books.id", Ascending: true},
	}
	plan.Page = 2
	plan.Size = 20

	b, err := PageQuery(plan)
	require.NoError(t, err)

	sql, args := mustSQL(t, b)
	assert.Equal(t,
		"SELECT books.id AS id, books.title AS title, books.published_at AS published_at, books.author_id AS author_id, "+
			"author.id AS author__id, author.name AS author__name, author.publisher_id AS author__publisher_id "+
			"FROM books "+
			"LEFT JOIN authors AS author ON books.author_id = author.id "+
			"WHERE books.published_at > ? "+
			"ORDER BY books.published_at DESC, books.id ASC "+
			"LIMIT 20 OFFSET 40",
		sql)
	assert.Equal(t, []any{100}, args)
}

func TestPageQuery_NoFilterNoOrder(t *testing.T) {
	plan, _ := newCatalogPlan(t, "book")
	plan.Size = 20

	b, err := PageQuery(plan)
	require.NoError(t, err)

	sql, args := mustSQL(t, b)
	assert.Equal(t,
		"SELECT books.id AS id, books.title AS title, books.published_at AS published_at, books.author_id AS author_id "+
			"FROM books LIMIT 20 OFFSET 0",
		sql)
	assert.Empty(t, args)
}

func TestExistsQuery(t *testing.T) {
	plan, _ := newCatalogPlan(t, "book")
	plan.Predicate = sq.Eq{"books.title": "Ash"}

	b, err := ExistsQuery(plan)
	require.NoError(t, err)

	sql, args := mustSQL(t, b)
	assert.Equal(t, "SELECT 1 FROM books WHERE books.title = ? LIMIT 1", sql)
	assert.Equal(t, []any{"Ash"}, args)
}

func TestLoadColumns_Layout(t *testing.T) {
	plan, a := newCatalogPlan(t, "book")
	plan.LoadJoins = ensureJoins(t, a, plan.Root, queryplan.LeftJoin, true, "author")

	cols := LoadColumns(plan)
	require.Len(t, cols, 7)

	assert.Equal(t, Column{Field: "id", Label: "id", Expr: "books.id AS id"}, cols[0])
	assert.Equal(t, Column{Path: "author", Field: "name", Label: "author__name", Expr: "author.name AS author__name"}, cols[5])

	for _, c := range cols[:4] {
		assert.Empty(t, c.Path, "root columns carry no path")
	}
	for _, c := range cols[4:] {
		assert.Equal(t, "author", c.Path)
	}
}

func TestPageColumns_SkipNonFetchJoins(t *testing.T) {
	plan, a := newCatalogPlan(t, "book")

	p := queryplan.NewPlanner(plan.Root)
	steps, err := a.ResolveRelations("book", "author")
	require.NoError(t, err)
	require.NoError(t, p.Ensure(steps, queryplan.InnerJoin, false)) // filter-only join
	plan.PageJoins = p.Joins()

	cols := PageColumns(plan)
	require.Len(t, cols, 4)
	for _, c := range cols {
		assert.Empty(t, c.Path)
	}
}
