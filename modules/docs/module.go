// Package docs implements the documentation trail on appointments: text
// entries with optional photo references, attached once an appointment is
// done. Photo files themselves live outside this server; only their
// references are stored.
package docs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/planwerk/planwerk/engine"
	"github.com/planwerk/planwerk/engine/db"
	"github.com/planwerk/planwerk/modules/auth"
	"github.com/planwerk/planwerk/modules/schedule"
)

const migration = `
CREATE TABLE IF NOT EXISTS appointment_docs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    appointment_id INTEGER NOT NULL,
    author_id INTEGER,
    body TEXT NOT NULL,
    photo_ref TEXT,
    deleted INTEGER
) STRICT;

CREATE INDEX IF NOT EXISTS appointment_docs_appointment_idx ON appointment_docs(appointment_id);
`

// Entry is one documentation record on an appointment.
type Entry struct {
	ID            int64   `json:"id"`
	Created       int64   `json:"created"`
	AppointmentID int64   `json:"appointmentId"`
	AuthorID      *int64  `json:"authorId,omitempty"`
	Body          string  `json:"body"`
	PhotoRef      *string `json:"photoRef,omitempty"`
}

type Module struct {
	db *sql.DB
}

func New(d *sql.DB) *Module {
	db.MustMigrate(d, migration)
	return &Module{db: d}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("POST", "/api/appointments/{id}/status", router.WithAuthn(m.handleSetStatus))
	router.Handle("POST", "/api/appointments/{id}/docs", router.WithAuthn(m.handleAddEntry))
	router.Handle("GET", "/api/appointments/{id}/docs", router.WithAuthn(m.handleListEntries))
}

// handleSetStatus moves an appointment between planned and done. Documentation
// can only be attached while it is done, so reopening effectively freezes the
// trail again.
func (m *Module) handleSetStatus(r *http.Request) engine.Response {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "appointment id must be a number")
	}

	req := struct {
		Status string `json:"status"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "invalid request body")
	}
	if req.Status != schedule.StatusPlanned && req.Status != schedule.StatusDone {
		return engine.ClientErrorf(http.StatusBadRequest, "status must be %q or %q", schedule.StatusPlanned, schedule.StatusDone)
	}

	result, err := m.db.ExecContext(r.Context(), `
		UPDATE appointments SET status = $1 WHERE id = $2 AND deleted IS NULL`, req.Status, id)
	if err != nil {
		return engine.Error(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return engine.ClientErrorf(http.StatusNotFound, "appointment not found")
	}
	return engine.JSON(map[string]string{"status": req.Status})
}

func (m *Module) handleAddEntry(r *http.Request) engine.Response {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "appointment id must be a number")
	}

	var status string
	err = m.db.QueryRowContext(r.Context(), `
		SELECT status FROM appointments WHERE id = $1 AND deleted IS NULL`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ClientErrorf(http.StatusNotFound, "appointment not found")
	}
	if err != nil {
		return engine.Error(err)
	}
	if status != schedule.StatusDone {
		return engine.ClientErrorf(http.StatusConflict, "appointment must be done before it can be documented")
	}

	req := struct {
		Body     string  `json:"body"`
		PhotoRef *string `json:"photoRef"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "invalid request body")
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" && req.PhotoRef == nil {
		return engine.ClientErrorf(http.StatusBadRequest, "a documentation entry needs text or a photo reference")
	}

	entry := &Entry{AppointmentID: id, Body: req.Body, PhotoRef: req.PhotoRef}
	if user := auth.GetUserMeta(r.Context()); user != nil {
		entry.AuthorID = &user.ID
	}
	err = m.db.QueryRowContext(r.Context(), `
		INSERT INTO appointment_docs (appointment_id, author_id, body, photo_ref)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created`,
		entry.AppointmentID, entry.AuthorID, entry.Body, entry.PhotoRef).
		Scan(&entry.ID, &entry.Created)
	if err != nil {
		return engine.Error(err)
	}
	return engine.JSONStatus(http.StatusCreated, entry)
}

func (m *Module) handleListEntries(r *http.Request) engine.Response {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "appointment id must be a number")
	}

	rows, err := m.db.QueryContext(r.Context(), `
		SELECT id, created, appointment_id, author_id, body, photo_ref
		FROM appointment_docs
		WHERE appointment_id = $1 AND deleted IS NULL
		ORDER BY created, id`, id)
	if err != nil {
		return engine.Error(err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.Created, &e.AppointmentID, &e.AuthorID, &e.Body, &e.PhotoRef); err != nil {
			return engine.Error(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return engine.Error(err)
	}
	return engine.JSON(entries)
}
