// Package pruning hard-deletes soft-deleted rows once they are old enough to
// be useless for auditing. Soft deletes are how series edits retire old
// instances, so without pruning the appointments table grows forever.
package pruning

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/planwerk/planwerk/engine"
)

// tables lists every table carrying a soft-delete timestamp column.
var tables = []string{"appointments", "appointment_series", "appointment_docs"}

type Module struct {
	db  *sql.DB
	ttl time.Duration
}

func New(db *sql.DB, ttl time.Duration) *Module {
	return &Module{db: db, ttl: ttl}
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Hour, m.prune))
}

func (m *Module) prune(ctx context.Context) bool {
	cutoff := time.Now().Add(-m.ttl).Unix()
	for _, table := range tables {
		start := time.Now()
		result, err := m.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE deleted IS NOT NULL AND deleted < $1", cutoff)
		if err != nil {
			slog.Error("failed to prune soft-deleted rows", "table", table, "error", err)
			continue
		}
		if n, _ := result.RowsAffected(); n > 0 {
			slog.Info("pruned soft-deleted rows", "table", table, "rows", n, "latency", time.Since(start).Milliseconds())
		}
	}
	return false
}
