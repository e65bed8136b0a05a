package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ntchinda/posync/internal/errs"
)

// ColumnInfo describes one column of a source table, as discovered
// through SQL Server's system catalog views.
type ColumnInfo struct {
	Name     string
	TypeName string
	Nullable bool
}

// introspectColumnsQuery follows the sys.columns/sys.types join pattern
// used to enumerate a table's columns keyed by OBJECT_ID, the standard
// SQL Server introspection idiom for schema tooling.
const introspectColumnsQuery = `
SELECT c.name, t.name AS type_name, c.is_nullable
FROM sys.columns c
JOIN sys.types t ON c.user_type_id = t.user_type_id
WHERE c.object_id = OBJECT_ID(@p1)
ORDER BY c.column_id`

// Columns introspects schema.table and returns its columns in ordinal
// position. It returns a *errs.NotFoundError if the object doesn't exist.
func Columns(ctx context.Context, db *sql.DB, schema, table string) ([]ColumnInfo, error) {
	qualified := schema + "." + table
	if schema == "" {
		qualified = "dbo." + table
	}
	rows, err := db.QueryContext(ctx, introspectColumnsQuery, sql.Named("p1", qualified))
	if err != nil {
		return nil, &errs.TransientError{Scope: "source.introspect", Err: err}
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.TypeName, &c.Nullable); err != nil {
			return nil, fmt.Errorf("scanning column metadata for %s: %w", qualified, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.TransientError{Scope: "source.introspect", Err: err}
	}
	if len(cols) == 0 {
		return nil, &errs.NotFoundError{Table: table}
	}
	return cols, nil
}

// HasTrackingTriplet reports whether the given columns include all three
// columns of the tracking triplet, the eligibility check every table must
// pass before it participates in change detection.
func HasTrackingTriplet(cols []ColumnInfo, transferState, transferTimestamp, rowUpdatedTimestamp string) bool {
	has := map[string]bool{}
	for _, c := range cols {
		has[c.Name] = true
	}
	return has[transferState] && has[transferTimestamp] && has[rowUpdatedTimestamp]
}

// HasColumn reports whether name is present among cols.
func HasColumn(cols []ColumnInfo, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}
