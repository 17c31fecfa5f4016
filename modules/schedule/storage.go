package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const appointmentColumns = `id, created, created_by, owner_id, title, start_time, duration_minutes, status, series_id, series_index, deleted`

func scanAppointment(row interface{ Scan(...any) error }) (*Appointment, error) {
	a := &Appointment{}
	err := row.Scan(&a.ID, &a.Created, &a.CreatedBy, &a.OwnerID, &a.Title, &a.StartTime,
		&a.DurationMinutes, &a.Status, &a.SeriesID, &a.SeriesIndex, &a.Deleted)
	return a, err
}

// ActiveAppointments returns every non-deleted appointment on the owner's
// calendar ordered by start time then id. The ordering is what makes
// conflict tie-breaks deterministic.
func (m *Module) ActiveAppointments(ctx context.Context, ownerID int64) ([]*Appointment, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1 AND deleted IS NULL
		ORDER BY start_time, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// queryAppointments lists active appointments, optionally bounded to a time
// window (instances starting within [from, to)).
func (m *Module) queryAppointments(ctx context.Context, ownerID int64, from, to time.Time) ([]*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE owner_id = $1 AND deleted IS NULL`
	args := []any{ownerID}
	if !from.IsZero() {
		args = append(args, from.Unix())
		query += fmt.Sprintf(" AND start_time >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to.Unix())
		query += fmt.Sprintf(" AND start_time < $%d", len(args))
	}
	query += " ORDER BY start_time, id"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (m *Module) getAppointment(ctx context.Context, id int64) (*Appointment, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments WHERE id = $1 AND deleted IS NULL`, id)
	return scanAppointment(row)
}

func (m *Module) insertAppointment(ctx context.Context, a *Appointment) error {
	return m.db.QueryRowContext(ctx, `
		INSERT INTO appointments (created_by, owner_id, title, start_time, duration_minutes, status, series_id, series_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created`,
		a.CreatedBy, a.OwnerID, a.Title, a.StartTime, a.DurationMinutes, a.Status, a.SeriesID, a.SeriesIndex).
		Scan(&a.ID, &a.Created)
}

func (m *Module) updateAppointment(ctx context.Context, a *Appointment) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE appointments SET title = $1, start_time = $2, duration_minutes = $3
		WHERE id = $4 AND deleted IS NULL`,
		a.Title, a.StartTime, a.DurationMinutes, a.ID)
	return err
}

func (m *Module) softDeleteAppointment(ctx context.Context, id int64) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE appointments SET deleted = strftime('%s', 'now')
		WHERE id = $1 AND deleted IS NULL`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "appointment", ID: fmt.Sprint(id)}
	}
	return nil
}

// GetSeries loads non-deleted series metadata.
func (m *Module) GetSeries(ctx context.Context, seriesID string) (*Series, error) {
	s := &Series{}
	var ruleJSON string
	err := m.db.QueryRowContext(ctx, `
		SELECT id, created, created_by, owner_id, title, rule_json, start_time, duration_minutes, instance_count, first_time, last_time, deleted
		FROM appointment_series WHERE id = $1 AND deleted IS NULL`, seriesID).
		Scan(&s.ID, &s.Created, &s.CreatedBy, &s.OwnerID, &s.Title, &ruleJSON, &s.StartTime,
			&s.DurationMinutes, &s.InstanceCount, &s.FirstTime, &s.LastTime, &s.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "series", ID: seriesID}
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ruleJSON), &s.Rule); err != nil {
		return nil, fmt.Errorf("decoding stored rule: %w", err)
	}
	return s, nil
}

// SeriesInstanceIDs returns the ids of the series' non-deleted instances.
func (m *Module) SeriesInstanceIDs(ctx context.Context, seriesID string) ([]int64, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id FROM appointments WHERE series_id = $1 AND deleted IS NULL ORDER BY series_index`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ApplySeriesChange applies a planned series mutation in one transaction:
// soft-deletes, inserts, and the series metadata write either all land or
// none do. A rolled back transaction therefore never produces a partial
// commit; PartialCommitError is reserved for stores without this guarantee.
func (m *Module) ApplySeriesChange(ctx context.Context, change *SeriesChange) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range change.Deletes {
		if _, err := tx.ExecContext(ctx, `
			UPDATE appointments SET deleted = strftime('%s', 'now')
			WHERE id = $1 AND deleted IS NULL`, id); err != nil {
			return err
		}
	}

	for _, a := range change.Creates {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO appointments (created_by, owner_id, title, start_time, duration_minutes, status, series_id, series_index)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created`,
			a.CreatedBy, a.OwnerID, a.Title, a.StartTime, a.DurationMinutes, a.Status, a.SeriesID, a.SeriesIndex).
			Scan(&a.ID, &a.Created)
		if err != nil {
			return err
		}
	}

	s := change.Series
	switch {
	case change.DeleteSeries:
		if _, err := tx.ExecContext(ctx, `
			UPDATE appointment_series SET deleted = strftime('%s', 'now')
			WHERE id = $1 AND deleted IS NULL`, s.ID); err != nil {
			return err
		}
	case change.NewSeries:
		ruleJSON, err := json.Marshal(s.Rule)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO appointment_series (id, created_by, owner_id, title, rule_json, start_time, duration_minutes, instance_count, first_time, last_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			s.ID, s.CreatedBy, s.OwnerID, s.Title, string(ruleJSON), s.StartTime,
			s.DurationMinutes, s.InstanceCount, s.FirstTime, s.LastTime); err != nil {
			return err
		}
	default:
		ruleJSON, err := json.Marshal(s.Rule)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE appointment_series SET title = $1, rule_json = $2, start_time = $3,
				duration_minutes = $4, instance_count = $5, first_time = $6, last_time = $7
			WHERE id = $8 AND deleted IS NULL`,
			s.Title, string(ruleJSON), s.StartTime, s.DurationMinutes,
			s.InstanceCount, s.FirstTime, s.LastTime, s.ID); err != nil {
			return err
		}
	}

	return tx.Commit()
}
