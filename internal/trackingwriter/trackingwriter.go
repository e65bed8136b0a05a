// Package trackingwriter marks source rows as transferred once they have
// been read, in batches small enough to stay well clear of SQL Server's
// parameter-count ceiling, retrying transient failures per batch.
package trackingwriter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ntchinda/posync/internal/model"
	"github.com/ntchinda/posync/internal/source"
)

// MaxBatchSize caps how many primary keys go into a single UPDATE
// statement/commit. Chosen to stay comfortably under SQL Server's 2100
// parameter limit with headroom for the statement's other parameters.
const MaxBatchSize = 1000

// Writer marks rows as transferred against one source connection pool.
type Writer struct {
	DB      *sql.DB
	DBConf  *source.DBConfig
	Schema  string
	Triplet model.TrackingTriplet
}

// New returns a Writer bound to db.
func New(db *sql.DB, dbc *source.DBConfig, schema string, triplet model.TrackingTriplet) *Writer {
	return &Writer{DB: db, DBConf: dbc, Schema: schema, Triplet: triplet}
}

// MarkTransferred marks every row named by pkValues as transferred
// (transfer_state = 2, transfer_timestamp = now) on table, keyed by
// pkCol. Keys are chunked into batches of at most MaxBatchSize, each
// batch committed independently so a failure partway through only
// re-marks the remaining batches on retry, never the whole table.
func (w *Writer) MarkTransferred(ctx context.Context, table, pkCol string, pkValues []string) (int64, error) {
	var total int64
	for _, batch := range chunk(pkValues, MaxBatchSize) {
		n, err := w.markBatch(ctx, table, pkCol, batch)
		if err != nil {
			return total, fmt.Errorf("marking batch of %d rows in %s: %w", len(batch), table, err)
		}
		total += n
	}
	return total, nil
}

func (w *Writer) markBatch(ctx context.Context, table, pkCol string, batch []string) (int64, error) {
	placeholders := make([]string, len(batch))
	args := make([]any, len(batch))
	for i, v := range batch {
		placeholders[i] = fmt.Sprintf("@p%d", i+1)
		args[i] = sql.Named(fmt.Sprintf("p%d", i+1), v)
	}

	stmt := fmt.Sprintf(
		"UPDATE %s SET %s = 2, %s = GETUTCDATE() WHERE %s IN (%s)",
		source.QuoteQualified(w.Schema, table),
		source.QuoteIdent(w.Triplet.TransferState),
		source.QuoteIdent(w.Triplet.TransferTimestamp),
		source.QuoteIdent(pkCol),
		strings.Join(placeholders, ", "),
	)

	return source.RetryableExec(ctx, w.DB, w.DBConf, stmt, args...)
}

func chunk(values []string, size int) [][]string {
	if len(values) == 0 {
		return nil
	}
	var out [][]string
	for i := 0; i < len(values); i += size {
		end := i + size
		if end > len(values) {
			end = len(values)
		}
		out = append(out, values[i:end])
	}
	return out
}
