// Package changedetect decides which tables are eligible for tracking,
// and reads each one's pending changes — once for a generic table, once
// per site for a site-dependent table.
package changedetect

import (
	"context"
	"database/sql"

	"github.com/ntchinda/posync/internal/errs"
	"github.com/ntchinda/posync/internal/model"
	"github.com/ntchinda/posync/internal/source"
)

// Detector reads pending changes for one table at a time against a single
// source connection pool.
type Detector struct {
	DB      *sql.DB
	Schema  string
	Triplet model.TrackingTriplet
}

// New returns a Detector bound to db.
func New(db *sql.DB, schema string, triplet model.TrackingTriplet) *Detector {
	return &Detector{DB: db, Schema: schema, Triplet: triplet}
}

// GenericTableChanges returns every row of table pending delivery,
// irrespective of site. Returns errs.NotFoundError if the table doesn't
// exist, or errs.IneligibleError if it lacks the tracking triplet.
func (d *Detector) GenericTableChanges(ctx context.Context, table, pkCol string) (model.TableChanges, error) {
	return d.tableChanges(ctx, table, pkCol, "", "")
}

// SiteTableChanges returns the rows of a site-dependent table pending
// delivery to site, restricted by siteCol.
func (d *Detector) SiteTableChanges(ctx context.Context, table, pkCol, siteCol, site string) (model.TableChanges, error) {
	return d.tableChanges(ctx, table, pkCol, siteCol, site)
}

func (d *Detector) tableChanges(ctx context.Context, table, pkCol, siteCol, site string) (model.TableChanges, error) {
	cols, err := source.Columns(ctx, d.DB, d.Schema, table)
	if err != nil {
		return model.TableChanges{}, err
	}
	if err := checkEligible(cols, pkCol, d.Triplet, table); err != nil {
		return model.TableChanges{}, err
	}
	return source.SelectChanges(ctx, d.DB, d.Schema, table, cols, pkCol, d.Triplet, siteCol, site)
}

// checkEligible reports whether table is eligible for delta sync given its
// introspected columns: it must carry the full tracking triplet plus
// whichever column pkCol names (the configured primary key for a generic
// table, or the site-key column for a site-dependent one).
func checkEligible(cols []source.ColumnInfo, pkCol string, triplet model.TrackingTriplet, table string) error {
	if !source.HasTrackingTriplet(cols, triplet.TransferState, triplet.TransferTimestamp, triplet.RowUpdatedTimestamp) {
		return &errs.IneligibleError{Table: table}
	}
	if !source.HasColumn(cols, pkCol) {
		return &errs.IneligibleError{Table: table}
	}
	return nil
}

// PrimaryKeys extracts the primary key of every row in tc, the input the
// tracking writer needs to mark them transferred.
func PrimaryKeys(tc model.TableChanges) []string {
	keys := make([]string, len(tc.Rows))
	for i, r := range tc.Rows {
		keys[i] = r.PrimaryKey
	}
	return keys
}
