package store

import (
	"context"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
)

// Seed inserts fixture rows. Tables are visited in name order and each
// row's columns in sorted order, so the statement stream is
// deterministic for a given fixture map.
func (s *Store) Seed(ctx context.Context, rows map[string][]map[string]any) error {
	tables := make([]string, 0, len(rows))
	for table := range rows {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		for i, row := range rows[table] {
			cols := make([]string, 0, len(row))
			for c := range row {
				cols = append(cols, c)
			}
			sort.Strings(cols)

			vals := make([]any, len(cols))
			for j, c := range cols {
				vals[j] = row[c]
			}

			query, args, err := sq.Insert(table).Columns(cols...).Values(vals...).ToSql()
			if err != nil {
				return fmt.Errorf("seed %s row %d: %w", table, i, err)
			}
			if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("seed %s row %d: %w", table, i, err)
			}
		}
	}
	return nil
}
