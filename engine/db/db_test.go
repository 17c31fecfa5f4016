package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDB(t *testing.T) {
	file := filepath.Join(t.TempDir(), "test.db")
	db1, err := Open(file)
	require.NoError(t, err)
	db1.Close()

	db2, err := Open(file)
	require.NoError(t, err)
	db2.Close()
}

func TestMustMigrate(t *testing.T) {
	db := OpenTest(t)
	MustMigrate(db, `CREATE TABLE IF NOT EXISTS things (id INTEGER PRIMARY KEY, name TEXT NOT NULL) STRICT;`)
	// Re-applying is a no-op.
	MustMigrate(db, `CREATE TABLE IF NOT EXISTS things (id INTEGER PRIMARY KEY, name TEXT NOT NULL) STRICT;`)

	_, err := db.Exec(`INSERT INTO things (name) VALUES ('a')`)
	require.NoError(t, err)

	require.Panics(t, func() { MustMigrate(db, `NOT VALID SQL`) })
}
