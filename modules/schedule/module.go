// Package schedule owns appointments: one-off and recurring, their collision
// checks, and the series lifecycle (a series edit soft-deletes every old
// instance and regenerates fresh ones from the new rule).
package schedule

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/planwerk/planwerk/engine"
	"github.com/planwerk/planwerk/engine/db"
	"github.com/planwerk/planwerk/modules/auth"
)

const migration = `
CREATE TABLE IF NOT EXISTS appointments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    created_by INTEGER,
    owner_id INTEGER NOT NULL,
    title TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    duration_minutes INTEGER NOT NULL DEFAULT 60,
    status TEXT NOT NULL DEFAULT 'planned',
    series_id TEXT,
    series_index INTEGER,
    deleted INTEGER
) STRICT;

CREATE INDEX IF NOT EXISTS appointments_owner_start_idx ON appointments(owner_id, start_time);
CREATE INDEX IF NOT EXISTS appointments_series_idx ON appointments(series_id);

CREATE TABLE IF NOT EXISTS appointment_series (
    id TEXT PRIMARY KEY,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    created_by INTEGER,
    owner_id INTEGER NOT NULL,
    title TEXT NOT NULL,
    rule_json TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    duration_minutes INTEGER NOT NULL,
    instance_count INTEGER NOT NULL,
    first_time INTEGER NOT NULL,
    last_time INTEGER NOT NULL,
    deleted INTEGER
) STRICT;
`

// Appointment lifecycle states. Documentation attaches once an appointment
// is done.
const (
	StatusPlanned = "planned"
	StatusDone    = "done"
)

// Appointment is a single dated instance on an owner's calendar.
// Instances generated from a rule carry their series id and 1-based position.
type Appointment struct {
	ID              int64
	Created         int64
	CreatedBy       *int64
	OwnerID         int64
	Title           string
	StartTime       int64 // epoch seconds
	DurationMinutes int
	Status          string
	SeriesID        *string
	SeriesIndex     *int64
	Deleted         *int64 // soft-delete timestamp
}

func (a *Appointment) Start() time.Time { return time.Unix(a.StartTime, 0) }

func (a *Appointment) End() time.Time {
	return a.Start().Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Series groups the instances generated from one rule application.
// Its id survives edits; the instance rows do not.
type Series struct {
	ID              string
	Created         int64
	CreatedBy       *int64
	OwnerID         int64
	Title           string
	Rule            Rule
	StartTime       int64
	DurationMinutes int
	InstanceCount   int
	FirstTime       int64
	LastTime        int64
	Deleted         *int64
}

type Module struct {
	db      *sql.DB
	planner *Planner
}

func New(d *sql.DB) *Module {
	db.MustMigrate(d, migration)
	m := &Module{db: d}
	m.planner = NewPlanner(m)
	return m
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/appointments", router.WithAuthn(m.handleListAppointments))
	router.Handle("GET", "/api/appointments/{id}", router.WithAuthn(m.handleGetAppointment))
	router.Handle("GET", "/api/owners/{id}/calendar.ics", router.WithAuthn(m.handleICalFeed))

	router.Handle("POST", "/api/appointments", router.WithAdmin(m.handleCreateAppointment))
	router.Handle("POST", "/api/appointments/{id}", router.WithAdmin(m.handleUpdateAppointment))
	router.Handle("POST", "/api/appointments/{id}/delete", router.WithAdmin(m.handleDeleteAppointment))
	router.Handle("POST", "/api/series", router.WithAdmin(m.handleCreateSeries))
	router.Handle("POST", "/api/series/{id}", router.WithAdmin(m.handleReplaceSeries))
	router.Handle("POST", "/api/series/{id}/delete", router.WithAdmin(m.handleDeleteSeries))
}

type appointmentRequest struct {
	OwnerID         int64     `json:"ownerId"`
	Title           string    `json:"title"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"durationMinutes"`
}

type seriesRequest struct {
	OwnerID         int64     `json:"ownerId"`
	Title           string    `json:"title"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"durationMinutes"`
	Rule            Rule      `json:"rule"`
}

type appointmentView struct {
	ID              int64     `json:"id"`
	OwnerID         int64     `json:"ownerId"`
	Title           string    `json:"title"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"durationMinutes"`
	Status          string    `json:"status"`
	SeriesID        *string   `json:"seriesId,omitempty"`
	SeriesIndex     *int64    `json:"seriesIndex,omitempty"`
}

func viewOf(a *Appointment) *appointmentView {
	return &appointmentView{
		ID:              a.ID,
		OwnerID:         a.OwnerID,
		Title:           a.Title,
		Start:           a.Start(),
		End:             a.End(),
		DurationMinutes: a.DurationMinutes,
		Status:          a.Status,
		SeriesID:        a.SeriesID,
		SeriesIndex:     a.SeriesIndex,
	}
}

type seriesView struct {
	ID            string    `json:"id"`
	OwnerID       int64     `json:"ownerId"`
	Title         string    `json:"title"`
	Rule          Rule      `json:"rule"`
	InstanceCount int       `json:"instanceCount"`
	First         time.Time `json:"first"`
	Last          time.Time `json:"last"`
}

func seriesViewOf(s *Series) *seriesView {
	return &seriesView{
		ID:            s.ID,
		OwnerID:       s.OwnerID,
		Title:         s.Title,
		Rule:          s.Rule,
		InstanceCount: s.InstanceCount,
		First:         time.Unix(s.FirstTime, 0),
		Last:          time.Unix(s.LastTime, 0),
	}
}

func (m *Module) handleListAppointments(r *http.Request) engine.Response {
	q := r.URL.Query()
	ownerID, err := strconv.ParseInt(q.Get("owner"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "owner query parameter is required")
	}

	var from, to time.Time
	if s := q.Get("from"); s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			return engine.ClientErrorf(http.StatusBadRequest, "invalid from timestamp")
		}
	}
	if s := q.Get("to"); s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			return engine.ClientErrorf(http.StatusBadRequest, "invalid to timestamp")
		}
	}

	appts, err := m.queryAppointments(r.Context(), ownerID, from, to)
	if err != nil {
		return engine.Error(err)
	}
	views := []*appointmentView{}
	for _, a := range appts {
		views = append(views, viewOf(a))
	}
	return engine.JSON(views)
}

func (m *Module) handleGetAppointment(r *http.Request) engine.Response {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "appointment id must be a number")
	}
	appt, err := m.getAppointment(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ClientErrorf(http.StatusNotFound, "appointment not found")
	}
	if err != nil {
		return engine.Error(err)
	}
	return engine.JSON(viewOf(appt))
}

// handleCreateAppointment creates a one-off appointment. An omitted start
// defaults to the next quarter-hour boundary. The owner's calendar is checked
// for collisions before the insert.
func (m *Module) handleCreateAppointment(r *http.Request) engine.Response {
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "invalid request body")
	}
	if req.OwnerID == 0 || req.Title == "" {
		return engine.ClientErrorf(http.StatusBadRequest, "ownerId and title are required")
	}
	if req.DurationMinutes < 1 {
		req.DurationMinutes = 60
	}
	if req.Start.IsZero() {
		req.Start = CeilToStep(time.Now(), 15)
	}

	end := req.Start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	existing, err := m.ActiveAppointments(r.Context(), req.OwnerID)
	if err != nil {
		return engine.Error(err)
	}
	if conflict := FindConflict(req.OwnerID, req.Start, end, existing, 0); conflict != nil {
		return collisionResponse(&CollisionError{At: req.Start, Conflict: conflict})
	}

	appt := &Appointment{
		CreatedBy:       requestUserID(r),
		OwnerID:         req.OwnerID,
		Title:           req.Title,
		StartTime:       req.Start.Unix(),
		DurationMinutes: req.DurationMinutes,
		Status:          StatusPlanned,
	}
	if err := m.insertAppointment(r.Context(), appt); err != nil {
		return engine.Error(err)
	}
	return engine.JSONStatus(http.StatusCreated, viewOf(appt))
}

// handleUpdateAppointment moves or renames a single appointment. The
// appointment itself is excluded from the collision check so it never
// conflicts with the slot it already holds.
func (m *Module) handleUpdateAppointment(r *http.Request) engine.Response {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "appointment id must be a number")
	}
	appt, err := m.getAppointment(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ClientErrorf(http.StatusNotFound, "appointment not found")
	}
	if err != nil {
		return engine.Error(err)
	}

	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "invalid request body")
	}
	if !req.Start.IsZero() {
		appt.StartTime = req.Start.Unix()
	}
	if req.DurationMinutes > 0 {
		appt.DurationMinutes = req.DurationMinutes
	}
	if req.Title != "" {
		appt.Title = req.Title
	}

	existing, err := m.ActiveAppointments(r.Context(), appt.OwnerID)
	if err != nil {
		return engine.Error(err)
	}
	if conflict := FindConflict(appt.OwnerID, appt.Start(), appt.End(), existing, appt.ID); conflict != nil {
		return collisionResponse(&CollisionError{At: appt.Start(), Conflict: conflict})
	}

	if err := m.updateAppointment(r.Context(), appt); err != nil {
		return engine.Error(err)
	}
	return engine.JSON(viewOf(appt))
}

func (m *Module) handleDeleteAppointment(r *http.Request) engine.Response {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "appointment id must be a number")
	}
	err = m.softDeleteAppointment(r.Context(), id)
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return engine.ClientErrorf(http.StatusNotFound, "appointment not found")
	}
	if err != nil {
		return engine.Error(err)
	}
	return engine.NoContent()
}

func (m *Module) handleCreateSeries(r *http.Request) engine.Response {
	var req seriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "invalid request body")
	}
	change, err := m.planner.CreateSeries(r.Context(), SeriesInput{
		OwnerID:   req.OwnerID,
		CreatedBy: requestUserID(r),
		Title:     req.Title,
		Start:     req.Start,
		Duration:  time.Duration(req.DurationMinutes) * time.Minute,
		Rule:      req.Rule,
	})
	if err != nil {
		return planErrorResponse(err)
	}
	return engine.JSONStatus(http.StatusCreated, seriesViewOf(change.Series))
}

func (m *Module) handleReplaceSeries(r *http.Request) engine.Response {
	var req seriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "invalid request body")
	}
	change, err := m.planner.ReplaceSeries(r.Context(), r.PathValue("id"), SeriesInput{
		OwnerID:   req.OwnerID,
		CreatedBy: requestUserID(r),
		Title:     req.Title,
		Start:     req.Start,
		Duration:  time.Duration(req.DurationMinutes) * time.Minute,
		Rule:      req.Rule,
	})
	if err != nil {
		return planErrorResponse(err)
	}
	return engine.JSON(seriesViewOf(change.Series))
}

func (m *Module) handleDeleteSeries(r *http.Request) engine.Response {
	err := m.planner.DeleteSeries(r.Context(), r.PathValue("id"))
	if err != nil {
		return planErrorResponse(err)
	}
	return engine.NoContent()
}

// planErrorResponse maps planner errors onto HTTP statuses. Partial commits
// get a message distinct from all other failures so operators know writes may
// have landed.
func planErrorResponse(err error) engine.Response {
	var collision *CollisionError
	var notFound *NotFoundError
	var partial *PartialCommitError
	switch {
	case errors.Is(err, ErrInvalidRule), errors.Is(err, ErrEmptyGeneration):
		return engine.ClientErrorf(http.StatusBadRequest, "%s", err)
	case errors.As(err, &collision):
		return collisionResponse(collision)
	case errors.As(err, &notFound):
		return engine.ClientErrorf(http.StatusNotFound, "%s", notFound)
	case errors.As(err, &partial):
		return engine.ClientErrorf(http.StatusConflict,
			"the change may have been partially applied - reload the series and verify its appointments before retrying: %s", partial.Err)
	default:
		return engine.Error(err)
	}
}

func collisionResponse(e *CollisionError) engine.Response {
	return engine.JSONStatus(http.StatusConflict, map[string]any{
		"error": e.Error(),
		"conflict": map[string]any{
			"id":    e.Conflict.ID,
			"title": e.Conflict.Title,
			"start": e.Conflict.Start(),
			"end":   e.Conflict.End(),
		},
		"occurrence": e.At,
	})
}

// requestUserID returns the authenticated member id, or nil when the route
// was attached without authentication (tests).
func requestUserID(r *http.Request) *int64 {
	if user := auth.GetUserMeta(r.Context()); user != nil {
		return &user.ID
	}
	return nil
}
