package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ntchinda/posync/internal/errs"
	"github.com/ntchinda/posync/internal/model"
)

// changePredicate is the exact eligibility predicate a row must satisfy to
// be considered changed since it was last delivered: either it has never
// been transferred, or it was transferred but has since been updated.
const changePredicate = "(%s = 0 OR (%s = 2 AND %s > %s))"

// SelectChanges reads every row of table eligible for delivery. When
// siteCol and site are non-empty the read is additionally restricted to
// that site's rows (a site-dependent table); otherwise every row matching
// the change predicate is returned (a generic table).
func SelectChanges(ctx context.Context, db *sql.DB, schema, table string, cols []ColumnInfo, pkCol string, triplet model.TrackingTriplet, siteCol, site string) (model.TableChanges, error) {
	colNames := make([]string, len(cols))
	selectList := make([]string, len(cols))
	for i, c := range cols {
		colNames[i] = c.Name
		selectList[i] = QuoteIdent(c.Name)
	}

	predicate := fmt.Sprintf(changePredicate,
		QuoteIdent(triplet.TransferState), QuoteIdent(triplet.TransferState),
		QuoteIdent(triplet.RowUpdatedTimestamp), QuoteIdent(triplet.TransferTimestamp))

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(selectList, ", "), QuoteQualified(schema, table), predicate)

	args := []any{}
	if siteCol != "" && site != "" {
		query += fmt.Sprintf(" AND %s = @p1", QuoteIdent(siteCol))
		args = append(args, sql.Named("p1", site))
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.TableChanges{}, &errs.TransientError{Scope: "source.select:" + table, Err: err}
	}
	defer rows.Close()

	pkIdx := -1
	for i, name := range colNames {
		if name == pkCol {
			pkIdx = i
		}
	}

	result := model.TableChanges{Table: table, Columns: colNames}
	scanDest := make([]any, len(cols))
	rawValues := make([]sql.RawBytes, len(cols))
	for i := range rawValues {
		scanDest[i] = &rawValues[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanDest...); err != nil {
			return model.TableChanges{}, fmt.Errorf("scanning %s: %w", table, err)
		}
		row, decodeErrors := decodeRow(rawValues, pkIdx)
		result.Rows = append(result.Rows, row)
		result.DecodeErrors += decodeErrors
	}
	if err := rows.Err(); err != nil {
		return model.TableChanges{}, &errs.TransientError{Scope: "source.select:" + table, Err: err}
	}
	return result, nil
}

// decodeRow decodes one scanned row's raw cells under the fixed encoding,
// reporting how many of them failed to decode (and were replaced by the
// substitution marker) rather than discarding that information.
func decodeRow(rawValues []sql.RawBytes, pkIdx int) (model.ChangeRow, int) {
	values := make([]string, len(rawValues))
	decodeErrors := 0
	var pk string
	for i, raw := range rawValues {
		if raw == nil {
			values[i] = ""
			continue
		}
		decoded, decErr := DecodeCell(raw)
		values[i] = decoded
		if decErr != nil {
			decodeErrors++
		}
		if i == pkIdx {
			pk = decoded
		}
	}
	return model.ChangeRow{PrimaryKey: pk, Values: values}, decodeErrors
}
