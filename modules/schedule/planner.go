package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyGeneration is returned when a rule expands to zero occurrences.
// The generator always emits at least the anchor occurrence, so seeing this
// error means the rule slipped past validation somehow.
var ErrEmptyGeneration = errors.New("rule generated no occurrences")

// CollisionError reports that a candidate occurrence overlaps an existing
// appointment. It is raised before any write happens and requires a user
// decision rather than a retry.
type CollisionError struct {
	At       time.Time    // start of the colliding candidate
	Index    int          // position of the candidate in the generated series (0-based)
	Conflict *Appointment // the pre-existing appointment
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("occurrence at %s overlaps %q (%s - %s)",
		e.At.Format(time.RFC3339), e.Conflict.Title,
		e.Conflict.Start().Format("15:04"), e.Conflict.End().Format("15:04"))
}

// NotFoundError reports that a referenced series or appointment no longer
// exists, e.g. because it was deleted concurrently.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }

// PartialCommitError means a commit failed after some writes may have been
// applied. It only occurs with stores that lack an atomic batch primitive;
// callers must re-fetch the series and reconcile by hand. It is deliberately
// distinct from every pre-commit error so operators know which failures left
// state behind.
type PartialCommitError struct {
	Err error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("commit may have partially applied: %s", e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

// SeriesInput carries everything needed to (re)generate a series.
type SeriesInput struct {
	OwnerID   int64
	CreatedBy *int64
	Title     string
	Start     time.Time
	Duration  time.Duration
	Rule      Rule
}

// SeriesChange is the computed transition for a series mutation: which
// instances to soft-delete and which to create, plus the series metadata to
// write. The store applies it as one atomic batch.
type SeriesChange struct {
	Series  *Series
	Deletes []int64        // appointment ids to soft-delete
	Creates []*Appointment // replacement instances, SeriesIndex 1..n

	// DeleteSeries marks the series row itself for soft deletion.
	DeleteSeries bool
	// NewSeries indicates the series row must be inserted rather than updated.
	NewSeries bool
}

// Store is the persistence collaborator for the planner. Implementations
// must apply a SeriesChange atomically or return PartialCommitError.
type Store interface {
	ActiveAppointments(ctx context.Context, ownerID int64) ([]*Appointment, error)
	GetSeries(ctx context.Context, seriesID string) (*Series, error)
	SeriesInstanceIDs(ctx context.Context, seriesID string) ([]int64, error)
	ApplySeriesChange(ctx context.Context, change *SeriesChange) error
}

// Planner turns series mutations into validated, collision-checked changes
// and commits them through the store. It holds no state between calls.
type Planner struct {
	store Store
	cap   int
	now   func() time.Time
}

func NewPlanner(store Store) *Planner {
	return &Planner{store: store, cap: InstanceCap, now: time.Now}
}

// CreateSeries validates the input, generates the occurrence series, scans
// the owner's full active set for collisions, and commits the new series with
// all instances in one batch.
func (p *Planner) CreateSeries(ctx context.Context, in SeriesInput) (*SeriesChange, error) {
	occurrences, err := p.validateAndExpand(in)
	if err != nil {
		return nil, err
	}

	existing, err := p.store.ActiveAppointments(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if idx, conflict := ScanFirstCollision(in.OwnerID, occurrences, in.Duration, existing, 0); conflict != nil {
		return nil, &CollisionError{At: occurrences[idx], Index: idx, Conflict: conflict}
	}

	change := p.buildChange(uuid.NewString(), in, occurrences)
	change.NewSeries = true
	if err := p.store.ApplySeriesChange(ctx, change); err != nil {
		return nil, err
	}
	return change, nil
}

// ReplaceSeries regenerates an existing series from a new rule. The old
// instances are excluded from the collision scan since they are about to be
// superseded, then soft-deleted and replaced in the same batch as the new
// instances and metadata.
func (p *Planner) ReplaceSeries(ctx context.Context, seriesID string, in SeriesInput) (*SeriesChange, error) {
	series, err := p.store.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if series.OwnerID != in.OwnerID {
		return nil, &NotFoundError{Kind: "series", ID: seriesID}
	}

	occurrences, err := p.validateAndExpand(in)
	if err != nil {
		return nil, err
	}

	existing, err := p.store.ActiveAppointments(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}
	others := existing[:0:0]
	for _, appt := range existing {
		if appt.SeriesID == nil || *appt.SeriesID != seriesID {
			others = append(others, appt)
		}
	}
	if idx, conflict := ScanFirstCollision(in.OwnerID, occurrences, in.Duration, others, 0); conflict != nil {
		return nil, &CollisionError{At: occurrences[idx], Index: idx, Conflict: conflict}
	}

	deletes, err := p.store.SeriesInstanceIDs(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	change := p.buildChange(seriesID, in, occurrences)
	change.Deletes = deletes
	if err := p.store.ApplySeriesChange(ctx, change); err != nil {
		return nil, err
	}
	return change, nil
}

// DeleteSeries soft-deletes every instance of the series plus the series row
// itself. Nothing is regenerated.
func (p *Planner) DeleteSeries(ctx context.Context, seriesID string) error {
	series, err := p.store.GetSeries(ctx, seriesID)
	if err != nil {
		return err
	}
	deletes, err := p.store.SeriesInstanceIDs(ctx, seriesID)
	if err != nil {
		return err
	}
	return p.store.ApplySeriesChange(ctx, &SeriesChange{
		Series:       series,
		Deletes:      deletes,
		DeleteSeries: true,
	})
}

func (p *Planner) validateAndExpand(in SeriesInput) ([]time.Time, error) {
	if in.Title == "" {
		return nil, invalidRulef("title is required")
	}
	if in.Duration < time.Minute {
		return nil, invalidRulef("duration must be at least one minute")
	}
	if err := in.Rule.Validate(); err != nil {
		return nil, err
	}
	occurrences := Expand(in.Start, in.Rule, p.cap)
	if len(occurrences) == 0 {
		return nil, ErrEmptyGeneration
	}
	return occurrences, nil
}

func (p *Planner) buildChange(seriesID string, in SeriesInput, occurrences []time.Time) *SeriesChange {
	minutes := int(in.Duration / time.Minute)
	change := &SeriesChange{
		Series: &Series{
			ID:              seriesID,
			OwnerID:         in.OwnerID,
			CreatedBy:       in.CreatedBy,
			Title:           in.Title,
			Rule:            in.Rule,
			StartTime:       in.Start.Unix(),
			DurationMinutes: minutes,
			InstanceCount:   len(occurrences),
			FirstTime:       occurrences[0].Unix(),
			LastTime:        occurrences[len(occurrences)-1].Unix(),
		},
	}
	for i, occ := range occurrences {
		index := int64(i + 1)
		change.Creates = append(change.Creates, &Appointment{
			OwnerID:         in.OwnerID,
			CreatedBy:       in.CreatedBy,
			Title:           in.Title,
			StartTime:       occ.Unix(),
			DurationMinutes: minutes,
			Status:          StatusPlanned,
			SeriesID:        &change.Series.ID,
			SeriesIndex:     &index,
		})
	}
	return change
}
