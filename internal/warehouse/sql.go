package warehouse

import (
	"fmt"
	"strings"

	"github.com/xtxerr/medallion/internal/schema"
)

// SelectSQL builds the ordered full-table read for t.
func SelectSQL(t schema.Table) string {
	return fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(t.ColumnNames(), ", "), t.Name, OrderByClause(t))
}

// SelectLimitSQL is SelectSQL keeping the first limit rows. limit <= 0 keeps
// every row.
func SelectLimitSQL(t schema.Table, limit int) string {
	if limit <= 0 {
		return SelectSQL(t)
	}
	return fmt.Sprintf("%s LIMIT %d", SelectSQL(t), limit)
}

// OrderByClause renders t.OrderBy, or "" when there is no sort key.
func OrderByClause(t schema.Table) string {
	if len(t.OrderBy) == 0 {
		return ""
	}
	parts := make([]string, len(t.OrderBy))
	for i, o := range t.OrderBy {
		if name, ok := strings.CutPrefix(o, "-"); ok {
			parts[i] = name + " DESC"
		} else {
			parts[i] = o
		}
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// InsertSQL builds a positional INSERT for t. With placeholders=false the
// VALUES clause is omitted, as batch APIs expect.
func InsertSQL(table string, t schema.Table, placeholders bool) string {
	stmt := fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(t.ColumnNames(), ", "))
	if !placeholders {
		return stmt
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	return stmt + " VALUES (" + marks + ")"
}
