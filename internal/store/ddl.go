package store

import (
	"fmt"
	"strings"

	"github.com/roach88/criterium/internal/schema"
)

// EnsureSchema materializes the logical metadata: one table per entity
// plus an index on every column a relationship joins through. Every
// statement is IF NOT EXISTS, so re-running against an existing
// database is a no-op.
func (s *Store) EnsureSchema(entities []schema.Entity) error {
	tables := make(map[string]string, len(entities))
	for _, e := range entities {
		tables[e.Name] = e.Table
	}

	for _, e := range entities {
		if _, err := s.db.Exec(createTableSQL(e)); err != nil {
			return fmt.Errorf("create table %s: %w", e.Table, err)
		}
	}

	seen := make(map[string]bool)
	for _, e := range entities {
		for _, stmt := range indexStatements(e, tables) {
			if seen[stmt] {
				continue
			}
			seen[stmt] = true
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("create index for %s: %w", e.Name, err)
			}
		}
	}
	return nil
}

func createTableSQL(e schema.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", e.Table)
	for i, f := range e.Fields {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "\t%s %s", f.Name, columnType(f.Type))
	}
	if len(e.KeyFields) > 0 {
		fmt.Fprintf(&b, ",\n\tPRIMARY KEY (%s)", strings.Join(e.KeyFields, ", "))
	}
	b.WriteString("\n)")
	return b.String()
}

func columnType(t string) string {
	switch t {
	case "integer":
		return "INTEGER"
	case "real":
		return "REAL"
	case "blob":
		return "BLOB"
	default:
		return "TEXT"
	}
}

// indexStatements covers both join directions: a to-one relationship
// filters this table by its local column, a to-many relationship
// filters the target table by the foreign column.
func indexStatements(e schema.Entity, tables map[string]string) []string {
	var stmts []string
	for _, r := range e.Relationships {
		switch r.Cardinality {
		case schema.ToOne:
			stmts = append(stmts, indexSQL(e.Table, r.LocalColumn))
		case schema.ToMany:
			if target, ok := tables[r.Target]; ok {
				stmts = append(stmts, indexSQL(target, r.ForeignColumn))
			}
		}
	}
	return stmts
}

func indexSQL(table, column string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", table, column, table, column)
}
