package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppt(id, ownerID int64, start time.Time, minutes int) *Appointment {
	return &Appointment{
		ID:              id,
		OwnerID:         ownerID,
		Title:           "existing",
		StartTime:       start.Unix(),
		DurationMinutes: minutes,
		Status:          StatusPlanned,
	}
}

func TestOverlaps(t *testing.T) {
	at := func(h, m int) time.Time {
		return time.Date(2024, 4, 1, h, m, 0, 0, time.UTC)
	}

	// Back-to-back ranges share an instant but do not overlap.
	assert.False(t, Overlaps(at(9, 0), at(10, 0), at(10, 0), at(11, 0)))
	assert.False(t, Overlaps(at(10, 0), at(11, 0), at(9, 0), at(10, 0)))

	assert.True(t, Overlaps(at(9, 0), at(10, 0), at(9, 30), at(10, 30)), "partial overlap")
	assert.True(t, Overlaps(at(9, 0), at(12, 0), at(10, 0), at(11, 0)), "containment")
	assert.True(t, Overlaps(at(10, 0), at(11, 0), at(9, 0), at(12, 0)), "contained")
	assert.True(t, Overlaps(at(9, 0), at(10, 0), at(9, 0), at(10, 0)), "identical ranges")
	assert.False(t, Overlaps(at(9, 0), at(10, 0), at(13, 0), at(14, 0)), "disjoint")
}

func TestFindConflictFilters(t *testing.T) {
	start := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	otherOwner := testAppt(1, 99, start, 60)
	deleted := testAppt(2, 7, start, 60)
	now := time.Now().Unix()
	deleted.Deleted = &now
	self := testAppt(3, 7, start, 60)

	existing := []*Appointment{otherOwner, deleted, self}
	assert.Nil(t, FindConflict(7, start, end, existing, 3), "other owners, deleted rows, and the excluded id are all skipped")

	live := testAppt(4, 7, start.Add(30*time.Minute), 60)
	existing = append(existing, live)
	assert.Equal(t, live, FindConflict(7, start, end, existing, 3))
}

func TestFindConflictEarliestWins(t *testing.T) {
	start := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	later := testAppt(1, 7, start.Add(time.Hour), 30)
	earlier := testAppt(2, 7, start.Add(15*time.Minute), 30)
	assert.Equal(t, earlier, FindConflict(7, start, end, []*Appointment{later, earlier}, 0))

	// Identical starts fall back to slice order.
	twinA := testAppt(3, 7, start, 30)
	twinB := testAppt(4, 7, start, 30)
	assert.Equal(t, twinA, FindConflict(7, start, end, []*Appointment{twinA, twinB}, 0))
}

func TestScanFirstCollision(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2024, 4, d, 9, 0, 0, 0, time.UTC)
	}
	starts := []time.Time{day(1), day(2), day(3), day(4)}

	// Collisions exist on candidates #2 and #4; the scan stops at the first.
	second := testAppt(1, 7, day(2).Add(30*time.Minute), 60)
	fourth := testAppt(2, 7, day(4), 15)
	idx, conflict := ScanFirstCollision(7, starts, time.Hour, []*Appointment{fourth, second}, 0)
	require.Equal(t, 1, idx)
	assert.Equal(t, second, conflict)

	idx, conflict = ScanFirstCollision(7, starts, time.Hour, nil, 0)
	assert.Equal(t, -1, idx)
	assert.Nil(t, conflict)

	// Excluding the only colliding appointment clears the scan.
	idx, _ = ScanFirstCollision(7, starts, time.Hour, []*Appointment{second}, second.ID)
	assert.Equal(t, -1, idx)
}
