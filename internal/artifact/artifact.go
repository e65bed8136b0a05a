// Package artifact builds the per-site delta file delivered by email: a
// UTF-8-with-BOM delimited text file, one section per table, each row
// prefixed with its table name.
package artifact

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ntchinda/posync/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Build writes changeSet to a new file under dir and returns the
// resulting Artifact. The filename follows sync_<site>_<UTCstamp>.csv,
// matching the naming the source system has always used for these files.
func Build(dir string, changeSet model.ChangeSet, builtAt time.Time) (model.Artifact, error) {
	name := fmt.Sprintf("sync_%s_%s.csv", changeSet.Site, builtAt.UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("creating artifact %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := bw.Write(utf8BOM); err != nil {
		return model.Artifact{}, err
	}
	w := csv.NewWriter(bw)

	rowCount := 0
	tableCounts := make([]model.TableRowCount, 0, len(changeSet.Tables))
	for _, table := range changeSet.Tables {
		header := append([]string{"TABLE_NAME"}, table.Columns...)
		if err := w.Write(header); err != nil {
			return model.Artifact{}, fmt.Errorf("writing header for %s: %w", table.Table, err)
		}
		for _, row := range table.Rows {
			record := append([]string{table.Table}, row.Values...)
			if err := w.Write(record); err != nil {
				return model.Artifact{}, fmt.Errorf("writing row for %s: %w", table.Table, err)
			}
			rowCount++
		}
		tableCounts = append(tableCounts, model.TableRowCount{Table: table.Table, Rows: len(table.Rows)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return model.Artifact{}, err
	}
	if err := bw.Flush(); err != nil {
		return model.Artifact{}, err
	}

	return model.Artifact{
		Site:        changeSet.Site,
		Path:        path,
		BuiltAt:     builtAt,
		TableCount:  len(changeSet.Tables),
		RowCount:    rowCount,
		TableCounts: tableCounts,
	}, nil
}
