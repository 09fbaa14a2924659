package schedule

import (
	"testing"
	"time"

	"github.com/pagercall/backend/internal/models"
)

func weekdayShift(id string, level int, created time.Time, users ...string) models.ShiftDefinition {
	return models.ShiftDefinition{
		ID:        id,
		Kind:      models.KindRecurrentEvent,
		Start:     anchor, // Monday 09:00
		Duration:  8 * time.Hour,
		Frequency: models.FrequencyWeekly,
		Interval:  1,
		ByDay:     []string{"MO", "TU", "WE", "TH", "FR"},
		Users:     users,
		Level:     level,
		CreatedAt: created,
	}
}

func activeEntries(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if len(e.Users) > 0 {
			out = append(out, e)
		}
	}
	return out
}

func TestResolveOverrideReplacesBaseForItsDay(t *testing.T) {
	created := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	base := weekdayShift("base", 0, created, "u1")
	override := models.ShiftDefinition{
		ID:        "ovr",
		Kind:      models.KindOverride,
		Start:     anchor.AddDate(0, 0, 2), // Wednesday 09:00
		Duration:  8 * time.Hour,
		Users:     []string{"u2"},
		CreatedAt: created.AddDate(0, 0, 1),
	}
	sched := models.Schedule{ID: "s1", TimeZone: "UTC"}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 6)
	entries, err := Resolve(sched, []models.ShiftDefinition{base, override}, from, to)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	active := activeEntries(entries)
	if len(active) != 5 {
		t.Fatalf("expected 5 working-day entries, got %d: %+v", len(active), active)
	}
	want := []string{"u1", "u1", "u2", "u1", "u1"}
	for i, e := range active {
		if len(e.Users) != 1 || e.Users[0] != want[i] {
			t.Fatalf("day %d: expected %s, got %v", i, want[i], e.Users)
		}
	}
	if active[2].ShiftID != "ovr" {
		t.Fatalf("expected Wednesday entry to come from the override, got %s", active[2].ShiftID)
	}
}

func TestResolveOverrideSplitsBaseOccurrence(t *testing.T) {
	created := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	base := weekdayShift("base", 0, created, "u1")
	// Override only the middle of Monday's shift.
	override := models.ShiftDefinition{
		ID:        "ovr",
		Kind:      models.KindOverride,
		Start:     anchor.Add(2 * time.Hour), // 11:00
		Duration:  2 * time.Hour,             // until 13:00
		Users:     []string{"u2"},
		CreatedAt: created,
	}
	sched := models.Schedule{ID: "s1", TimeZone: "UTC"}

	entries, err := Resolve(sched, []models.ShiftDefinition{base, override}, anchor, anchor.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected before/override/after, got %d entries: %+v", len(entries), entries)
	}
	if entries[0].Users[0] != "u1" || entries[1].Users[0] != "u2" || entries[2].Users[0] != "u1" {
		t.Fatalf("unexpected winners: %+v", entries)
	}
	if !entries[1].Start.Equal(anchor.Add(2*time.Hour)) || !entries[1].End.Equal(anchor.Add(4*time.Hour)) {
		t.Fatalf("override span wrong: %+v", entries[1])
	}
}

func TestResolveHigherLevelWins(t *testing.T) {
	created := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	low := weekdayShift("low", 0, created, "u1")
	high := weekdayShift("high", 2, created, "u2")
	sched := models.Schedule{ID: "s1", TimeZone: "UTC"}

	entries, err := Resolve(sched, []models.ShiftDefinition{low, high}, anchor, anchor.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	active := activeEntries(entries)
	if len(active) != 1 || active[0].ShiftID != "high" {
		t.Fatalf("expected the higher level shift to win, got %+v", active)
	}
}

func TestResolveTieBreaksOnMostRecentShift(t *testing.T) {
	older := weekdayShift("older", 1, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), "u1")
	newer := weekdayShift("newer", 1, time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC), "u2")
	sched := models.Schedule{ID: "s1", TimeZone: "UTC"}

	entries, err := Resolve(sched, []models.ShiftDefinition{older, newer}, anchor, anchor.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	active := activeEntries(entries)
	if len(active) != 1 || active[0].ShiftID != "newer" {
		t.Fatalf("expected the most recently created shift to win, got %+v", active)
	}
}

func TestResolveTilesWindowWithoutGapsOrOverlaps(t *testing.T) {
	created := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	base := weekdayShift("base", 0, created, "u1")
	sched := models.Schedule{ID: "s1", TimeZone: "UTC"}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)
	entries, err := Resolve(sched, []models.ShiftDefinition{base}, from, to)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected entries")
	}
	if !entries[0].Start.Equal(from) {
		t.Fatalf("first entry starts at %v, want %v", entries[0].Start, from)
	}
	if !entries[len(entries)-1].End.Equal(to) {
		t.Fatalf("last entry ends at %v, want %v", entries[len(entries)-1].End, to)
	}
	for i := 1; i < len(entries); i++ {
		if !entries[i].Start.Equal(entries[i-1].End) {
			t.Fatalf("entries %d and %d are not contiguous: %v vs %v", i-1, i, entries[i-1].End, entries[i].Start)
		}
	}
	for _, e := range entries {
		if e.Users == nil {
			t.Fatalf("entry %+v has nil users, want empty slice for gaps", e)
		}
	}
}

func TestResolveEmptyScheduleYieldsSingleGap(t *testing.T) {
	sched := models.Schedule{ID: "s1", TimeZone: "UTC"}
	from := anchor
	to := anchor.Add(24 * time.Hour)

	entries, err := Resolve(sched, nil, from, to)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one gap entry, got %d", len(entries))
	}
	if len(entries[0].Users) != 0 || entries[0].ShiftID != "" {
		t.Fatalf("expected empty gap entry, got %+v", entries[0])
	}
	if !entries[0].Start.Equal(from) || !entries[0].End.Equal(to) {
		t.Fatalf("gap does not span the window: %+v", entries[0])
	}
}

func TestResolveFailsOnMalformedShift(t *testing.T) {
	created := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	ok := weekdayShift("ok", 0, created, "u1")
	bad := weekdayShift("bad", 0, created, "u2")
	bad.Interval = 0
	sched := models.Schedule{ID: "s1", TimeZone: "UTC"}

	if _, err := Resolve(sched, []models.ShiftDefinition{ok, bad}, anchor, anchor.AddDate(0, 0, 7)); err == nil {
		t.Fatalf("expected malformed shift to fail the whole resolution")
	}
}
