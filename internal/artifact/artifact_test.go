package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntchinda/posync/internal/model"
)

func TestBuildWritesBOMAndSections(t *testing.T) {
	dir := t.TempDir()
	changeSet := model.ChangeSet{
		Site: "AE011",
		Tables: []model.TableChanges{
			{
				Table:   "ITMMASTER",
				Columns: []string{"AUUID_0", "ITMREF_0"},
				Rows: []model.ChangeRow{
					{PrimaryKey: "1", Values: []string{"1", "WIDGET-A"}},
				},
			},
			{
				Table:   "STOCK",
				Columns: []string{"AUUID_0", "QTY_0"},
				Rows: []model.ChangeRow{
					{PrimaryKey: "2", Values: []string{"2", "40"}},
				},
			},
		},
	}
	builtAt := time.Date(2026, 7, 30, 13, 5, 0, 0, time.UTC)

	art, err := Build(dir, changeSet, builtAt)
	require.NoError(t, err)

	assert.Equal(t, "AE011", art.Site)
	assert.Equal(t, 2, art.TableCount)
	assert.Equal(t, 2, art.RowCount)
	assert.Equal(t, filepath.Join(dir, "sync_AE011_20260730_130500.csv"), art.Path)
	assert.Equal(t, []model.TableRowCount{
		{Table: "ITMMASTER", Rows: 1},
		{Table: "STOCK", Rows: 1},
	}, art.TableCounts)

	raw, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, utf8BOM))
	assert.Contains(t, string(raw), "TABLE_NAME,AUUID_0,ITMREF_0")
	assert.Contains(t, string(raw), "ITMMASTER,1,WIDGET-A")
	assert.Contains(t, string(raw), "STOCK,2,40")
}
