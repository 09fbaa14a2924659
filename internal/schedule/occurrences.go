package schedule

import (
	"fmt"
	"time"

	"github.com/pagercall/backend/internal/models"
	"github.com/pagercall/backend/internal/recurrence"
)

// ResolvedOccurrence is one concrete span of responsibility derived from a
// shift. It is produced fresh per query window and never persisted.
type ResolvedOccurrence struct {
	Start          time.Time
	End            time.Time
	Users          []string
	ShiftID        string
	Level          int
	Override       bool
	ShiftCreatedAt time.Time
}

// RuleOf maps a shift's recurrence fields onto an evaluator rule. Non-recurring
// kinds become a frequency-none rule so every kind expands through the same
// path.
func RuleOf(shift models.ShiftDefinition) recurrence.Rule {
	rule := recurrence.Rule{
		Start:     shift.Start,
		Duration:  shift.Duration,
		Frequency: models.FrequencyNone,
	}
	if shift.Recurring() {
		rule.Frequency = shift.Frequency
		rule.Interval = shift.Interval
		rule.ByDay = shift.ByDay
		rule.ByMonth = shift.ByMonth
		rule.ByMonthday = shift.ByMonthday
		rule.Until = shift.Until
		rule.WeekStart = shift.WeekStart
	}
	return rule
}

// Location resolves the zone a shift's wall-clock times are interpreted in:
// the shift's own time_zone, then the schedule default, then UTC.
func Location(shift models.ShiftDefinition, defaultTZ string) (*time.Location, error) {
	name := shift.TimeZone
	if name == "" {
		name = defaultTZ
	}
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &recurrence.FieldError{Field: "time_zone", Reason: fmt.Sprintf("unknown time zone %q", name)}
	}
	return loc, nil
}

// OccurrencesIn expands a shift into its occurrences intersecting
// [windowStart, windowEnd). Rotation shifts assign users[index mod N] per
// occurrence; the index counts from the rule start, so assignment does not
// depend on the query window.
func OccurrencesIn(shift models.ShiftDefinition, windowStart, windowEnd time.Time, defaultTZ string) ([]ResolvedOccurrence, error) {
	loc, err := Location(shift, defaultTZ)
	if err != nil {
		return nil, err
	}

	occs, err := recurrence.ExpandAll(RuleOf(shift), windowStart, windowEnd, loc)
	if err != nil {
		return nil, err
	}

	out := make([]ResolvedOccurrence, 0, len(occs))
	for _, occ := range occs {
		resolved := ResolvedOccurrence{
			Start:          occ.Start,
			End:            occ.End,
			ShiftID:        shift.ID,
			Level:          shift.Level,
			ShiftCreatedAt: shift.CreatedAt,
		}
		switch shift.Kind {
		case models.KindSingleEvent, models.KindRecurrentEvent:
			resolved.Users = append(resolved.Users, shift.Users...)
		case models.KindOverride:
			resolved.Override = true
			resolved.Users = append(resolved.Users, shift.Users...)
		case models.KindRotation:
			if len(shift.Users) > 0 {
				resolved.Users = []string{shift.Users[occ.Index%len(shift.Users)]}
			}
		default:
			return nil, fmt.Errorf("unknown shift kind %q", shift.Kind)
		}
		out = append(out, resolved)
	}
	return out, nil
}
