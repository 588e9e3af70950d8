package queryplan

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/criterium/internal/condition"
	"github.com/roach88/criterium/internal/relation"
	"github.com/roach88/criterium/internal/schema"
)

func TestPlan_TwoPhase(t *testing.T) {
	single := &Plan{}
	assert.False(t, single.TwoPhase())

	two := &Plan{ToManyPaths: []string{"reviews"}}
	assert.True(t, two.TwoPhase())
}

func TestPlan_Offset(t *testing.T) {
	p := &Plan{Page: 3, Size: 20}
	assert.Equal(t, uint64(60), p.Offset())

	first := &Plan{Page: 0, Size: 20}
	assert.Equal(t, uint64(0), first.Offset())
}

func TestPlan_KeyColumns(t *testing.T) {
	p := &Plan{Table: "shipments", KeyFields: []string{"region", "seq"}}
	assert.Equal(t, []string{"shipments.region", "shipments.seq"}, p.KeyColumns())

	degraded := &Plan{Table: "log_lines", Degraded: true}
	assert.Nil(t, degraded.KeyColumns())
}

func TestPlan_DescribeSinglePhase(t *testing.T) {
	p := &Plan{
		Entity:      "book",
		Table:       "books",
		KeyFields:   []string{"id"},
		KeyStrategy: "metadata",
		Predicate:   sq.Gt{"books.published_at": 100},
		Sort:        condition.Sort{condition.Desc("published_at"), condition.Asc("id")},
		OrderBy: []OrderColumn{
			{Field: "published_at", Column: "books.published_at", Ascending: false},
			{Field: "id", Column: "books.id", Ascending: true},
		},
		Page: 0,
		Size: 20,
		Fetch: &relation.FetchGraph{Paths: []relation.FetchPath{
			{Path: "author", Cardinality: schema.ToOne},
		}},
		PageJoins: []Join{{
			Path: "author", Table: "authors", Alias: "author", ParentAlias: "books",
			LocalColumn: "author_id", ForeignColumn: "id", Kind: LeftJoin, Fetch: true,
		}},
	}

	out := p.Describe()
	assert.Equal(t, `entity: book (books)
key: id [metadata]
mode: single-phase
filter: books.published_at > ? args=[100]
order: published_at desc, id asc
page: 0 size: 20
fetch: author (auto one)
page joins:
  left join authors AS author ON books.author_id = author.id
count joins: (none)
warnings: (none)
`, out)
}

func TestPlan_DescribeTwoPhase(t *testing.T) {
	p := &Plan{
		Entity:      "book",
		Table:       "books",
		KeyFields:   []string{"id"},
		KeyStrategy: "metadata",
		Sort:        condition.Sort{condition.Asc("id")},
		OrderBy:     []OrderColumn{{Field: "id", Column: "books.id", Ascending: true}},
		Size:        10,
		Fetch: &relation.FetchGraph{Paths: []relation.FetchPath{
			{Path: "reviews", Explicit: true, Cardinality: schema.ToMany},
		}},
		LoadJoins: []Join{{
			Path: "reviews", Table: "reviews", Alias: "reviews", ParentAlias: "books",
			LocalColumn: "id", ForeignColumn: "book_id", Kind: LeftJoin, Fetch: true,
			Cardinality: schema.ToMany,
		}},
		ToManyPaths: []string{"reviews"},
		Warnings:    []Warning{{Code: WarnCartesianFetch, Message: "example"}},
	}

	out := p.Describe()
	assert.Contains(t, out, "mode: two-phase (to-many: reviews)")
	assert.Contains(t, out, "filter: (none)")
	assert.Contains(t, out, "key joins: (none)")
	assert.Contains(t, out, "load joins:\n  left join reviews AS reviews ON books.id = reviews.book_id")
	assert.Contains(t, out, "warnings:\n  CARTESIAN_FETCH: example")
}

func TestPlan_DescribeDegraded(t *testing.T) {
	p := &Plan{
		Entity:   "log_line",
		Table:    "log_lines",
		Degraded: true,
		Size:     20,
		Warnings: []Warning{{Code: WarnUnstabilizedSort, Message: "no primary key"}},
	}

	out := p.Describe()
	assert.Contains(t, out, "key: (unresolved)")
	assert.Contains(t, out, "UNSTABILIZED_SORT")
}

func TestPlan_DescribeDeterministic(t *testing.T) {
	p := &Plan{Entity: "book", Table: "books", KeyFields: []string{"id"}, KeyStrategy: "metadata", Size: 20}
	assert.Equal(t, p.Describe(), p.Describe())
}
