package pruning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planwerk/planwerk/engine/db"
	"github.com/planwerk/planwerk/modules/docs"
	"github.com/planwerk/planwerk/modules/schedule"
)

func TestPrune(t *testing.T) {
	d := db.OpenTest(t)
	schedule.New(d)
	docs.New(d)
	m := New(d, 24*time.Hour)

	insert := func(title string, deleted *int64) {
		_, err := d.Exec(`
			INSERT INTO appointments (owner_id, title, start_time, duration_minutes, deleted)
			VALUES (7, $1, 0, 30, $2)`, title, deleted)
		require.NoError(t, err)
	}
	old := time.Now().Add(-48 * time.Hour).Unix()
	recent := time.Now().Add(-time.Hour).Unix()
	insert("live", nil)
	insert("recently deleted", &recent)
	insert("long gone", &old)

	m.prune(context.Background())

	var titles []string
	rows, err := d.Query(`SELECT title FROM appointments ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var title string
		require.NoError(t, rows.Scan(&title))
		titles = append(titles, title)
	}
	require.NoError(t, rows.Err())

	// Only rows soft-deleted before the ttl are removed.
	assert.Equal(t, []string{"live", "recently deleted"}, titles)
}

func TestPruneMissingTableLogsAndContinues(t *testing.T) {
	d := db.OpenTest(t)
	schedule.New(d) // appointment_docs intentionally not migrated
	m := New(d, time.Hour)

	deleted := time.Now().Add(-2 * time.Hour).Unix()
	_, err := d.Exec(`
		INSERT INTO appointments (owner_id, title, start_time, duration_minutes, deleted)
		VALUES (7, 'gone', 0, 30, $1)`, deleted)
	require.NoError(t, err)

	// The missing docs table must not stop the other tables from pruning.
	m.prune(context.Background())

	var n int64
	require.NoError(t, d.QueryRow(`SELECT COUNT(*) FROM appointments`).Scan(&n))
	assert.Zero(t, n)
}
