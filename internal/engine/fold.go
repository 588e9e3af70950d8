package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/criterium/internal/key"
	"github.com/roach88/criterium/internal/queryplan"
	"github.com/roach88/criterium/internal/querysql"
	"github.com/roach88/criterium/internal/schema"
)

// foldRows collapses flat join rows into nested records. Each distinct
// root key yields one record, in first-occurrence order; to-one
// relationships nest a single Record (nil on a join miss), to-many
// relationships collect a []Record deduplicated against the cartesian
// repetition that sibling to-many joins produce.
//
// The returned canons parallel the records: the canonical key of each
// root, used by the two-phase executor to restore identify-phase order.
// When the plan is degraded every row is its own record; a degraded
// plan cannot reach a to-many join, so no folding is lost.
func foldRows(plan *queryplan.Plan, cols []querysql.Column, rows [][]any) ([]Record, []string, error) {
	layout, err := buildLayout(plan, cols)
	if err != nil {
		return nil, nil, err
	}

	var codec *key.Codec
	if len(plan.KeyFields) > 0 && !plan.Degraded {
		codec, err = key.NewCodec(plan.KeyFields)
		if err != nil {
			return nil, nil, err
		}
	}

	var (
		records  []Record
		canons   []string
		rootBy   = make(map[string]int)
		attached = make(map[string]Record)
	)

	for rowNum, vals := range rows {
		if len(vals) != len(cols) {
			return nil, nil, fmt.Errorf("fold: row has %d columns, want %d", len(vals), len(cols))
		}

		canon, err := rootIdentity(layout, codec, vals, rowNum)
		if err != nil {
			return nil, nil, fmt.Errorf("fold row %d: %w", rowNum, err)
		}

		idx, ok := rootBy[canon]
		if !ok {
			rec := make(Record, len(layout.rootIdx)+len(layout.paths))
			for f, ci := range layout.rootIdx {
				rec[f] = normalizeCell(vals[ci])
			}
			idx = len(records)
			rootBy[canon] = idx
			records = append(records, rec)
			canons = append(canons, canon)
		}

		rowRec := map[string]Record{"": records[idx]}
		rowIdent := map[string]string{"": canon}

		for _, p := range layout.paths {
			parent, present := rowRec[p.parent]
			if !present {
				continue
			}
			foldPath(p, vals, parent, rowRec, rowIdent, attached)
		}
	}
	return records, canons, nil
}

// foldPath attaches one path's slice of the current row to its parent
// record, tracking the materialized child so deeper paths and repeated
// rows find it again.
func foldPath(p pathLayout, vals []any, parent Record, rowRec map[string]Record, rowIdent map[string]string, attached map[string]Record) {
	if p.toMany {
		if _, ok := parent[p.name]; !ok {
			parent[p.name] = []Record{}
		}
		if allNil(p, vals) {
			return
		}
		ident := rowIdent[p.parent] + "\x1f" + p.path + "\x1f" + fingerprint(p, vals)
		child, ok := attached[ident]
		if !ok {
			child = childRecord(p, vals)
			attached[ident] = child
			parent[p.name] = append(parent[p.name].([]Record), child)
		}
		rowRec[p.path] = child
		rowIdent[p.path] = ident
		return
	}

	if allNil(p, vals) {
		if _, ok := parent[p.name]; !ok {
			parent[p.name] = nil
		}
		return
	}
	ident := rowIdent[p.parent] + "\x1f" + p.path
	child, ok := attached[ident]
	if !ok {
		child = childRecord(p, vals)
		attached[ident] = child
		parent[p.name] = child
	}
	rowRec[p.path] = child
	rowIdent[p.path] = ident
}

// columnLayout maps select-list positions to the records they fold
// into.
type columnLayout struct {
	rootIdx map[string]int // root field name -> column position
	keyIdx  []int          // root key field positions, in key-field order
	paths   []pathLayout   // joined paths in select order, parents first
}

type pathLayout struct {
	path   string
	parent string // "" is the root
	name   string // relationship name, the field the child nests under
	toMany bool
	fields []string
	cols   []int
}

func buildLayout(plan *queryplan.Plan, cols []querysql.Column) (columnLayout, error) {
	card := make(map[string]schema.Cardinality)
	for _, j := range plan.LoadJoins {
		card[j.Path] = j.Cardinality
	}
	for _, j := range plan.PageJoins {
		card[j.Path] = j.Cardinality
	}

	layout := columnLayout{rootIdx: make(map[string]int)}
	pathIdx := make(map[string]int)
	for i, c := range cols {
		if c.Path == "" {
			layout.rootIdx[c.Field] = i
			continue
		}
		pi, ok := pathIdx[c.Path]
		if !ok {
			parent, name := splitLast(c.Path)
			pi = len(layout.paths)
			pathIdx[c.Path] = pi
			layout.paths = append(layout.paths, pathLayout{
				path:   c.Path,
				parent: parent,
				name:   name,
				toMany: card[c.Path] == schema.ToMany,
			})
		}
		layout.paths[pi].fields = append(layout.paths[pi].fields, c.Field)
		layout.paths[pi].cols = append(layout.paths[pi].cols, i)
	}

	for _, f := range plan.KeyFields {
		ci, ok := layout.rootIdx[f]
		if !ok {
			return layout, fmt.Errorf("key field %s missing from select list", f)
		}
		layout.keyIdx = append(layout.keyIdx, ci)
	}
	return layout, nil
}

func rootIdentity(layout columnLayout, codec *key.Codec, vals []any, rowNum int) (string, error) {
	if codec == nil {
		return "row:" + strconv.Itoa(rowNum), nil
	}
	kv := make([]any, len(layout.keyIdx))
	for i, ci := range layout.keyIdx {
		kv[i] = vals[ci]
	}
	k, err := codec.FromValues(kv)
	if err != nil {
		return "", err
	}
	return k.Canon(), nil
}

func childRecord(p pathLayout, vals []any) Record {
	rec := make(Record, len(p.fields))
	for i, f := range p.fields {
		rec[f] = normalizeCell(vals[p.cols[i]])
	}
	return rec
}

func allNil(p pathLayout, vals []any) bool {
	for _, ci := range p.cols {
		if vals[ci] != nil {
			return false
		}
	}
	return true
}

// fingerprint is an injective row-content identity for one path's
// columns: type, length, then bytes per value, so distinct child rows
// never merge.
func fingerprint(p pathLayout, vals []any) string {
	var b strings.Builder
	for _, ci := range p.cols {
		v := vals[ci]
		s := fmt.Sprintf("%v", v)
		fmt.Fprintf(&b, "%T/%d:%s;", v, len(s), s)
	}
	return b.String()
}

func splitLast(path string) (parent, name string) {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[:i], path[i+1:]
	}
	return "", path
}

// normalizeCell maps driver byte slices to strings so folded records
// compare and marshal as text.
func normalizeCell(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
