package bootstrap

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/ntchinda/posync/internal/model"
)

func openMirror(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMirrorTableCreatesAllTextColumnsAndInsertsRows(t *testing.T) {
	mirror := openMirror(t)
	changes := model.TableChanges{
		Table:   "ITMMASTER",
		Columns: []string{"AUUID_0", "ITMREF_0"},
		Rows: []model.ChangeRow{
			{PrimaryKey: "1", Values: []string{"1", "WIDGET"}},
			{PrimaryKey: "2", Values: []string{"2", "GADGET"}},
		},
	}

	err := mirrorTable(context.Background(), mirror, changes)
	require.NoError(t, err)

	var count int
	require.NoError(t, mirror.QueryRow(`SELECT COUNT(*) FROM "ITMMASTER"`).Scan(&count))
	require.Equal(t, 2, count)
}

func TestMirrorTableDropsAndRecreatesOnRerun(t *testing.T) {
	mirror := openMirror(t)
	changes := model.TableChanges{
		Table:   "FACILITY",
		Columns: []string{"FCY_0"},
		Rows:    []model.ChangeRow{{PrimaryKey: "A", Values: []string{"A"}}},
	}
	require.NoError(t, mirrorTable(context.Background(), mirror, changes))

	changes.Rows = nil
	require.NoError(t, mirrorTable(context.Background(), mirror, changes))

	var count int
	require.NoError(t, mirror.QueryRow(`SELECT COUNT(*) FROM "FACILITY"`).Scan(&count))
	require.Equal(t, 0, count)
}

func TestColumnDefsQuotesEveryColumnAsText(t *testing.T) {
	require.Equal(t, `"A" TEXT, "B" TEXT`, columnDefs([]string{"A", "B"}))
}
