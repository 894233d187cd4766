package database

import (
	"path/filepath"
	"testing"

	"LabelPrinter/app/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryDB_AppendThenLoadKeepsOrder(t *testing.T) {
	db, err := OpenHistoryDB(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	entries, err := db.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	for _, id := range []string{"A100", "B200", "A100"} {
		require.NoError(t, db.Append(models.HistoryEntry{
			OrderID:   id,
			Customer:  "Nguyen Van A",
			BoxQty:    3,
			Timestamp: "2026-10-15T09:30:00.000000",
		}))
	}

	entries, err = db.Load()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "A100", entries[0].OrderID)
	assert.Equal(t, "B200", entries[1].OrderID)
	assert.Equal(t, "A100", entries[2].OrderID)
	assert.Equal(t, 3, entries[2].BoxQty)
}

func TestHistoryDB_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := OpenHistoryDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Append(models.HistoryEntry{OrderID: "X1", Customer: "C", BoxQty: 1, Timestamp: "t"}))
	require.NoError(t, db.Close())

	db, err = OpenHistoryDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	entries, err := db.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "X1", entries[0].OrderID)
	assert.Equal(t, path, db.Path())
}
