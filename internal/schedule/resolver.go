package schedule

import (
	"sort"
	"time"

	"github.com/pagercall/backend/internal/models"
)

// Entry is one slice of the resolved on-call timeline. Entries tile the query
// window with no gaps and no overlaps; an empty user set means nobody is on
// call for that span.
type Entry struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Users   []string  `json:"users"`
	ShiftID string    `json:"shift_id,omitempty"`
}

// Resolve merges the occurrences of every attached shift into a
// conflict-resolved timeline covering [windowStart, windowEnd). Overrides win
// over everything in their span; otherwise higher level wins, then the most
// recently created shift. A malformed shift fails the whole resolution rather
// than presenting an incomplete picture as complete.
func Resolve(sched models.Schedule, shifts []models.ShiftDefinition, windowStart, windowEnd time.Time) ([]Entry, error) {
	if !windowStart.Before(windowEnd) {
		return nil, nil
	}

	var occs []ResolvedOccurrence
	for _, shift := range shifts {
		shiftOccs, err := OccurrencesIn(shift, windowStart, windowEnd, sched.TimeZone)
		if err != nil {
			return nil, err
		}
		occs = append(occs, shiftOccs...)
	}

	bounds := boundaries(occs, windowStart, windowEnd)

	var out []Entry
	for i := 0; i+1 < len(bounds); i++ {
		segStart, segEnd := bounds[i], bounds[i+1]
		winner := winnerAt(occs, segStart)

		entry := Entry{Start: segStart, End: segEnd}
		if winner != nil {
			entry.Users = append(entry.Users, winner.Users...)
			entry.ShiftID = winner.ShiftID
		} else {
			entry.Users = []string{}
		}

		if n := len(out); n > 0 && out[n-1].End.Equal(entry.Start) && out[n-1].ShiftID == entry.ShiftID && equalUsers(out[n-1].Users, entry.Users) {
			out[n-1].End = entry.End
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// boundaries collects every instant where the active occurrence set can
// change, clamped to the window.
func boundaries(occs []ResolvedOccurrence, windowStart, windowEnd time.Time) []time.Time {
	points := []time.Time{windowStart, windowEnd}
	for _, occ := range occs {
		for _, t := range []time.Time{occ.Start, occ.End} {
			if t.After(windowStart) && t.Before(windowEnd) {
				points = append(points, t)
			}
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })

	dedup := points[:1]
	for _, t := range points[1:] {
		if !t.Equal(dedup[len(dedup)-1]) {
			dedup = append(dedup, t)
		}
	}
	return dedup
}

// winnerAt picks the occurrence responsible at instant t, or nil when none is
// active.
func winnerAt(occs []ResolvedOccurrence, t time.Time) *ResolvedOccurrence {
	var winner *ResolvedOccurrence
	for i := range occs {
		occ := &occs[i]
		if t.Before(occ.Start) || !t.Before(occ.End) {
			continue
		}
		if winner == nil || beats(occ, winner) {
			winner = occ
		}
	}
	return winner
}

// beats orders overlapping occurrences: override first, then level descending,
// then most recently created shift, then shift id as a final deterministic
// tie-break.
func beats(a, b *ResolvedOccurrence) bool {
	if a.Override != b.Override {
		return a.Override
	}
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	if !a.ShiftCreatedAt.Equal(b.ShiftCreatedAt) {
		return a.ShiftCreatedAt.After(b.ShiftCreatedAt)
	}
	return a.ShiftID > b.ShiftID
}

func equalUsers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
