package schedule

import "time"

// Overlaps reports whether two time ranges overlap. Ranges are half-open
// [start, end), so back-to-back appointments do not collide.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// FindConflict returns the existing appointment that overlaps the candidate
// range, or nil. Only active appointments on the same owner's calendar are
// considered, and excludeID is skipped so an appointment being edited never
// conflicts with itself.
//
// When several appointments overlap, the one with the earliest start wins.
// Ties on identical starts fall back to the order of the existing slice,
// which storage keeps deterministic (start_time, then id).
func FindConflict(ownerID int64, start, end time.Time, existing []*Appointment, excludeID int64) *Appointment {
	var found *Appointment
	for _, appt := range existing {
		if appt.OwnerID != ownerID || appt.ID == excludeID || appt.Deleted != nil {
			continue
		}
		if !Overlaps(start, end, appt.Start(), appt.End()) {
			continue
		}
		if found == nil || appt.Start().Before(found.Start()) {
			found = appt
		}
	}
	return found
}

// ScanFirstCollision walks candidate start times in order, pairing each with
// the fixed duration, and returns the index of the first candidate that
// collides along with the conflicting appointment. Later candidates are not
// examined once a collision is found. Returns (-1, nil) when every candidate
// is free.
//
// The scan is read-only and advisory: nothing prevents the existing set from
// changing between scan and commit, so callers re-scan inside the commit
// scope when that matters.
func ScanFirstCollision(ownerID int64, starts []time.Time, duration time.Duration, existing []*Appointment, excludeID int64) (int, *Appointment) {
	for i, start := range starts {
		if conflict := FindConflict(ownerID, start, start.Add(duration), existing, excludeID); conflict != nil {
			return i, conflict
		}
	}
	return -1, nil
}
