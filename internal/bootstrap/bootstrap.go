// Package bootstrap runs posync's first-launch pass: every row still
// pending delivery when it runs is marked transferred, so the regular tick
// never delivers it, and mirrored into a per-site local SQLite file kept
// purely as an audit trail. That mirror is never read again — the
// regular delta path always reads the remote source directly.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ntchinda/posync/internal/changedetect"
	"github.com/ntchinda/posync/internal/model"
	"github.com/ntchinda/posync/internal/trackingwriter"
)

// Loader performs the first-launch mark-then-mirror pass for one site.
type Loader struct {
	Detector *changedetect.Detector
	Writer   *trackingwriter.Writer
	MirrorDB func(site string) (*sql.DB, error)
}

// Run bootstraps table for site: it reads every row currently pending
// delivery (the same change predicate the regular tick uses), marks those
// rows transferred, then mirrors them into the site's local SQLite file.
// Rows are read before they are marked, as in the regular tick; rows
// already transferred and not updated since are neither marked nor
// mirrored.
func (l *Loader) Run(ctx context.Context, site, table, pkCol, siteCol string) error {
	var changes model.TableChanges
	var err error
	if siteCol != "" {
		changes, err = l.Detector.SiteTableChanges(ctx, table, pkCol, siteCol, site)
	} else {
		changes, err = l.Detector.GenericTableChanges(ctx, table, pkCol)
	}
	if err != nil {
		return err
	}

	keys := changedetect.PrimaryKeys(changes)
	if len(keys) > 0 {
		if _, err := l.Writer.MarkTransferred(ctx, table, pkCol, keys); err != nil {
			return fmt.Errorf("bootstrap mark for %s/%s: %w", site, table, err)
		}
	}

	mirror, err := l.MirrorDB(site)
	if err != nil {
		return fmt.Errorf("opening bootstrap mirror for %s: %w", site, err)
	}
	return mirrorTable(ctx, mirror, changes)
}

// mirrorTable drops and recreates table in the local mirror, with every
// column stored as TEXT — the mirror exists only so an operator can
// inspect what bootstrap saw, never to be queried by the delta path, so a
// typed schema buys nothing.
func mirrorTable(ctx context.Context, mirror *sql.DB, changes model.TableChanges) error {
	if _, err := mirror.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteSQLite(changes.Table))); err != nil {
		return err
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteSQLite(changes.Table), columnDefs(changes.Columns))
	if _, err := mirror.ExecContext(ctx, ddl); err != nil {
		return err
	}

	if len(changes.Rows) == 0 {
		return nil
	}

	placeholders := make([]string, len(changes.Columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteSQLite(changes.Table), strings.Join(placeholders, ", "))

	tx, err := mirror.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, row := range changes.Rows {
		args := make([]any, len(row.Values))
		for i, v := range row.Values {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func quoteSQLite(name string) string { return `"` + name + `"` }

func columnDefs(cols []string) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteSQLite(c) + " TEXT"
	}
	return strings.Join(defs, ", ")
}
