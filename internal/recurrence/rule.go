package recurrence

import (
	"fmt"
	"sort"
	"time"

	"github.com/pagercall/backend/internal/models"
)

// FieldError reports a malformed recurrence field. Validation runs before any
// expansion, so a rule either expands fully or not at all.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var weekdayCodes = map[string]time.Weekday{
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
	"SU": time.Sunday,
}

// DefaultWeekStart matches the stored default when a rule omits week_start.
const DefaultWeekStart = "SU"

// Rule describes how a shift recurs. Start is wall-clock; the location it is
// interpreted in is supplied at expansion time.
type Rule struct {
	Start      time.Time
	Duration   time.Duration
	Frequency  models.Frequency
	Interval   int
	ByDay      []string
	ByMonth    []int
	ByMonthday []int
	Until      *time.Time
	WeekStart  string
}

// Validate checks every field and returns a *FieldError naming the first
// offending one.
func (r Rule) Validate() error {
	if r.Duration <= 0 {
		return &FieldError{Field: "duration", Reason: "must be positive"}
	}
	switch r.Frequency {
	case models.FrequencyNone, models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly:
	default:
		return &FieldError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %q", r.Frequency)}
	}
	if r.Frequency != models.FrequencyNone && r.Interval < 1 {
		return &FieldError{Field: "interval", Reason: "must be at least 1"}
	}
	for _, d := range r.ByDay {
		if _, ok := weekdayCodes[d]; !ok {
			return &FieldError{Field: "by_day", Reason: fmt.Sprintf("unknown weekday code %q", d)}
		}
	}
	for _, m := range r.ByMonth {
		if m < 1 || m > 12 {
			return &FieldError{Field: "by_month", Reason: fmt.Sprintf("month %d out of range 1-12", m)}
		}
	}
	for _, d := range r.ByMonthday {
		if d == 0 || d < -31 || d > 31 {
			return &FieldError{Field: "by_monthday", Reason: fmt.Sprintf("monthday %d out of range", d)}
		}
	}
	if r.Until != nil && r.Until.Before(r.Start) {
		return &FieldError{Field: "until", Reason: "must not be before start"}
	}
	if r.WeekStart != "" {
		if _, ok := weekdayCodes[r.WeekStart]; !ok {
			return &FieldError{Field: "week_start", Reason: fmt.Sprintf("unknown weekday code %q", r.WeekStart)}
		}
	}
	return nil
}

// Occurrence is one concrete expansion of a rule. Index counts occurrences
// from the rule start, independent of the query window, so callers can key
// rotation assignment on it.
type Occurrence struct {
	Start time.Time
	End   time.Time
	Index int
}

// Expand validates the rule and returns a restartable iterator over the
// occurrences intersecting [windowStart, windowEnd). The iterator holds no
// state beyond its cursor; expanding the same inputs twice yields the same
// sequence.
func Expand(rule Rule, windowStart, windowEnd time.Time, loc *time.Location) (*Expander, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	e := &Expander{
		rule:        rule,
		loc:         loc,
		windowStart: windowStart,
		windowEnd:   windowEnd,
	}
	e.anchor = wallClockIn(rule.Start, loc)
	e.limit = windowEnd
	if rule.Until != nil {
		until := wallClockIn(*rule.Until, loc)
		if until.Before(e.limit) {
			e.limit = until
		}
	}
	return e, nil
}

// ExpandAll drains Expand into a slice.
func ExpandAll(rule Rule, windowStart, windowEnd time.Time, loc *time.Location) ([]Occurrence, error) {
	e, err := Expand(rule, windowStart, windowEnd, loc)
	if err != nil {
		return nil, err
	}
	var out []Occurrence
	for {
		occ, ok := e.Next()
		if !ok {
			return out, nil
		}
		out = append(out, occ)
	}
}

// Expander walks a rule block by block (day, week or month) and yields
// occurrences in chronological order.
type Expander struct {
	rule        Rule
	loc         *time.Location
	windowStart time.Time
	windowEnd   time.Time
	anchor      time.Time
	limit       time.Time
	buf         []Occurrence
	block       int
	index       int
	done        bool
}

// Next returns the next occurrence intersecting the window, or false when the
// expansion is exhausted.
func (e *Expander) Next() (Occurrence, bool) {
	for !e.done {
		if len(e.buf) == 0 {
			if !e.fill() {
				e.done = true
				break
			}
			continue
		}
		occ := e.buf[0]
		e.buf = e.buf[1:]
		if occ.Start.After(e.limit) || !occ.Start.Before(e.windowEnd) {
			e.done = true
			break
		}
		if !occ.End.After(e.windowStart) {
			continue
		}
		return occ, true
	}
	return Occurrence{}, false
}

// fill generates the candidates of the current block into the buffer and
// advances the block cursor. Returns false once block anchors pass the limit.
func (e *Expander) fill() bool {
	var starts []time.Time
	switch e.rule.Frequency {
	case models.FrequencyNone:
		if e.block > 0 {
			return false
		}
		starts = []time.Time{e.anchor}
	case models.FrequencyDaily:
		day := addDays(e.anchor, e.block*e.rule.Interval)
		if day.After(e.limit) {
			return false
		}
		if e.matchesByDay(day.Weekday()) && e.matchesByMonth(day.Month()) {
			starts = []time.Time{day}
		}
	case models.FrequencyWeekly:
		weekAnchor := addDays(e.weekStartOfAnchor(), e.block*e.rule.Interval*7)
		if weekAnchor.After(e.limit) {
			return false
		}
		for off := 0; off < 7; off++ {
			day := addDays(weekAnchor, off)
			if day.Before(e.anchor) {
				continue
			}
			if !e.matchesByMonth(day.Month()) {
				continue
			}
			if len(e.rule.ByDay) == 0 {
				if day.Weekday() == e.anchor.Weekday() {
					starts = append(starts, day)
				}
			} else if e.matchesByDay(day.Weekday()) {
				starts = append(starts, day)
			}
		}
	case models.FrequencyMonthly:
		year, month := addMonths(e.anchor.Year(), e.anchor.Month(), e.block*e.rule.Interval)
		first := time.Date(year, month, 1, e.anchor.Hour(), e.anchor.Minute(), e.anchor.Second(), 0, e.loc)
		if first.After(e.limit) {
			return false
		}
		if e.matchesByMonth(month) {
			starts = e.monthCandidates(year, month)
		}
	}

	e.block++
	for _, s := range starts {
		occ := Occurrence{Start: s, End: s.Add(e.rule.Duration), Index: e.index}
		e.index++
		e.buf = append(e.buf, occ)
	}
	return true
}

func (e *Expander) monthCandidates(year int, month time.Month) []time.Time {
	days := daysInMonth(year, month)
	var out []time.Time
	appendDay := func(day int) {
		t := time.Date(year, month, day, e.anchor.Hour(), e.anchor.Minute(), e.anchor.Second(), 0, e.loc)
		if t.Before(e.anchor) {
			return
		}
		out = append(out, t)
	}
	switch {
	case len(e.rule.ByMonthday) > 0:
		picked := make([]int, 0, len(e.rule.ByMonthday))
		for _, d := range e.rule.ByMonthday {
			day := d
			if day < 0 {
				day = days + 1 + day
			}
			if day >= 1 && day <= days {
				picked = append(picked, day)
			}
		}
		sort.Ints(picked)
		for _, day := range picked {
			appendDay(day)
		}
	case len(e.rule.ByDay) > 0:
		for day := 1; day <= days; day++ {
			wd := time.Date(year, month, day, 0, 0, 0, 0, e.loc).Weekday()
			if e.matchesByDay(wd) {
				appendDay(day)
			}
		}
	default:
		if e.anchor.Day() <= days {
			appendDay(e.anchor.Day())
		}
	}
	return out
}

func (e *Expander) matchesByDay(wd time.Weekday) bool {
	if len(e.rule.ByDay) == 0 {
		return true
	}
	for _, code := range e.rule.ByDay {
		if weekdayCodes[code] == wd {
			return true
		}
	}
	return false
}

func (e *Expander) matchesByMonth(m time.Month) bool {
	if len(e.rule.ByMonth) == 0 {
		return true
	}
	for _, bm := range e.rule.ByMonth {
		if time.Month(bm) == m {
			return true
		}
	}
	return false
}

// weekStartOfAnchor returns the start of the week containing the anchor,
// keeping the anchor's time of day.
func (e *Expander) weekStartOfAnchor() time.Time {
	ws := e.rule.WeekStart
	if ws == "" {
		ws = DefaultWeekStart
	}
	wsDay := weekdayCodes[ws]
	back := (int(e.anchor.Weekday()) - int(wsDay) + 7) % 7
	return addDays(e.anchor, -back)
}

// wallClockIn re-anchors the wall-clock fields of t into loc. Stored
// timestamps carry no offset, so only the printed date and time are
// meaningful.
func wallClockIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

// addDays advances by whole calendar days, staying DST-correct.
func addDays(t time.Time, days int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+days, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
}

func addMonths(year int, month time.Month, delta int) (int, time.Month) {
	m := int(month) - 1 + delta
	return year + m/12, time.Month(m%12 + 1)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
