package engine

import (
	"github.com/roach88/criterium/internal/condition"
	"github.com/roach88/criterium/internal/queryplan"
	"github.com/roach88/criterium/internal/querysql"
	"github.com/roach88/criterium/internal/relation"
	"github.com/roach88/criterium/internal/schema"
)

// Build compiles a condition into an execution plan without touching
// the database. The plan carries everything the execution phases need:
// the predicate, the stabilized ordering, and one join set per query
// shape. Callers that only want to inspect the generated SQL can stop
// here.
func (e *Engine) Build(entity string, cond condition.SearchCondition) (*queryplan.Plan, error) {
	if cond.Size <= 0 {
		cond.Size = condition.DefaultSize
	}
	if cond.Page < 0 {
		cond.Page = 0
	}
	if err := condition.Validate(cond); err != nil {
		return nil, classify(entity, err)
	}

	root, err := e.intro.Entity(entity)
	if err != nil {
		return nil, classify(entity, err)
	}

	rk, kerr := e.intro.PrimaryKey(entity)
	degraded := false
	if kerr != nil {
		if !schema.IsResolutionError(kerr) {
			return nil, classify(entity, kerr)
		}
		degraded = true
	}

	fetch, err := e.analyzer.BuildFetchGraph(entity, cond.FetchFields)
	if err != nil {
		return nil, classify(entity, err)
	}

	predicate, filterRefs, err := querysql.NewPredicateBuilder(e.analyzer, root, rk.Fields, e.encoder).Build(cond.Nodes)
	if err != nil {
		return nil, classify(entity, err)
	}

	plan := &queryplan.Plan{
		Entity:      entity,
		Root:        root,
		Table:       root.Table,
		KeyFields:   rk.Fields,
		KeyStrategy: rk.Strategy,
		Degraded:    degraded,
		Predicate:   predicate,
		Sort:        cond.Sort,
		Page:        cond.Page,
		Size:        cond.Size,
		Fetch:       fetch,
	}

	if degraded {
		plan.Warnings = append(plan.Warnings, queryplan.Warning{
			Code:    queryplan.WarnUnstabilizedSort,
			Message: "no resolvable primary key; sort order is not stabilized and rows may repeat across pages",
		})
		e.logger.Warn("primary key unresolved, pagination degraded", "entity", entity)
	} else {
		plan.Sort, _ = queryplan.Stabilize(cond.Sort, rk.Fields)
	}

	orderBy, sortRefs, err := e.resolveSort(entity, root, plan.Sort)
	if err != nil {
		return nil, classify(entity, err)
	}
	plan.OrderBy = orderBy

	plan.ToManyPaths = collectToMany(filterRefs, sortRefs, fetch)
	if degraded && len(plan.ToManyPaths) > 0 {
		return nil, &QueryError{
			Code:    ErrCodeSchemaUnresolved,
			Message: "two-phase execution requires a resolved primary key",
			Entity:  entity,
			Batch:   -1,
			Err:     kerr,
		}
	}

	if err := e.planJoins(plan, filterRefs, sortRefs, fetch); err != nil {
		return nil, classify(entity, err)
	}

	for _, w := range fetch.Warnings {
		plan.Warnings = append(plan.Warnings, queryplan.Warning{
			Code:    queryplan.WarnCartesianFetch,
			Message: w,
		})
	}
	return plan, nil
}

// resolveSort maps sort fields to qualified columns and records which
// criteria traverse relationships, so their joins can be planned.
func (e *Engine) resolveSort(entity string, root *schema.Entity, sort condition.Sort) ([]queryplan.OrderColumn, []relation.FieldRef, error) {
	if len(sort) == 0 {
		return nil, nil, nil
	}

	orderBy := make([]queryplan.OrderColumn, 0, len(sort))
	var refs []relation.FieldRef
	for _, o := range sort {
		ref, err := e.analyzer.ResolveField(entity, o.Field)
		if err != nil {
			return nil, nil, err
		}
		column := root.Table + "." + ref.Field.Name
		if len(ref.Steps) > 0 {
			column = queryplan.AliasFor(ref.RelationPath()) + "." + ref.Field.Name
			refs = append(refs, *ref)
		}
		orderBy = append(orderBy, queryplan.OrderColumn{
			Field:     o.Field,
			Column:    column,
			Ascending: o.Ascending,
		})
	}
	return orderBy, refs, nil
}

// collectToMany gathers the distinct to-many relation paths reachable
// from filters, sorts, and the fetch graph, in first-use order. A
// non-empty result forces two-phase execution.
func collectToMany(filterRefs, sortRefs []relation.FieldRef, fetch *relation.FetchGraph) []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}

	for _, ref := range filterRefs {
		if ref.Cardinality() == schema.ToMany {
			add(ref.RelationPath())
		}
	}
	for _, ref := range sortRefs {
		if ref.Cardinality() == schema.ToMany {
			add(ref.RelationPath())
		}
	}
	for _, p := range fetch.ToMany() {
		add(p.Path)
	}
	return paths
}

// planJoins assembles the four join sets: key and count queries join
// only what their clauses reference, the load query joins the fetch
// graph, and the single-phase page query merges all three concerns.
func (e *Engine) planJoins(plan *queryplan.Plan, filterRefs, sortRefs []relation.FieldRef, fetch *relation.FetchGraph) error {
	keys := queryplan.NewPlanner(plan.Root)
	if err := ensureRefs(keys, filterRefs, queryplan.InnerJoin); err != nil {
		return err
	}
	if err := ensureRefs(keys, sortRefs, queryplan.LeftJoin); err != nil {
		return err
	}
	plan.KeyJoins = keys.Joins()

	count := queryplan.NewPlanner(plan.Root)
	if err := ensureRefs(count, filterRefs, queryplan.InnerJoin); err != nil {
		return err
	}
	plan.CountJoins = count.Joins()

	load := queryplan.NewPlanner(plan.Root)
	if err := ensureFetch(load, fetch); err != nil {
		return err
	}
	plan.LoadJoins = load.Joins()

	page := queryplan.NewPlanner(plan.Root)
	if err := ensureRefs(page, filterRefs, queryplan.InnerJoin); err != nil {
		return err
	}
	if err := ensureRefs(page, sortRefs, queryplan.LeftJoin); err != nil {
		return err
	}
	if err := ensureFetch(page, fetch); err != nil {
		return err
	}
	plan.PageJoins = page.Joins()
	return nil
}

func ensureRefs(p *queryplan.Planner, refs []relation.FieldRef, kind queryplan.JoinKind) error {
	for _, ref := range refs {
		if err := p.Ensure(ref.Steps, kind, false); err != nil {
			return err
		}
	}
	return nil
}

func ensureFetch(p *queryplan.Planner, fetch *relation.FetchGraph) error {
	for _, path := range fetch.Paths {
		if err := p.Ensure(path.Steps, queryplan.LeftJoin, true); err != nil {
			return err
		}
	}
	return nil
}
