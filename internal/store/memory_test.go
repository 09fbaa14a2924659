package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pagercall/backend/internal/models"
)

func TestMemoryShiftLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	shift := models.ShiftDefinition{
		ID:       "shift-1",
		Name:     "primary",
		Kind:     models.KindSingleEvent,
		Start:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Duration: 8 * time.Hour,
		Users:    []string{"alice"},
	}
	if err := m.CreateShift(ctx, shift); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := m.GetShift(ctx, "shift-1")
	if err != nil || got.Name != "primary" {
		t.Fatalf("get: %+v, %v", got, err)
	}

	shift.Name = "secondary"
	if err := m.UpdateShift(ctx, shift); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = m.GetShift(ctx, "shift-1")
	if got.Name != "secondary" {
		t.Fatalf("update not visible: %+v", got)
	}

	if err := m.UpdateShift(ctx, models.ShiftDefinition{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.GetShift(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDeleteShiftDetachesFromSchedules(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.CreateShift(ctx, models.ShiftDefinition{ID: "shift-1"})
	_ = m.CreateShift(ctx, models.ShiftDefinition{ID: "shift-2"})
	_ = m.CreateSchedule(ctx, models.Schedule{ID: "sched-1", ShiftIDs: []string{"shift-1", "shift-2"}})

	if err := m.DeleteShift(ctx, "shift-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	sched, err := m.GetSchedule(ctx, "sched-1")
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if len(sched.ShiftIDs) != 1 || sched.ShiftIDs[0] != "shift-2" {
		t.Fatalf("deleted shift still attached: %v", sched.ShiftIDs)
	}

	shifts, err := m.GetShiftsForSchedule(ctx, "sched-1")
	if err != nil || len(shifts) != 1 {
		t.Fatalf("expected one remaining shift, got %v, %v", shifts, err)
	}
}

func TestMemoryAttachShiftIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.CreateSchedule(ctx, models.Schedule{ID: "sched-1"})
	if err := m.AttachShift(ctx, "sched-1", "shift-1"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := m.AttachShift(ctx, "sched-1", "shift-1"); err != nil {
		t.Fatalf("re-attach: %v", err)
	}
	sched, _ := m.GetSchedule(ctx, "sched-1")
	if len(sched.ShiftIDs) != 1 {
		t.Fatalf("duplicate attachment: %v", sched.ShiftIDs)
	}

	if err := m.AttachShift(ctx, "missing", "shift-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryOverrideIsScheduleExclusive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.CreateShift(ctx, models.ShiftDefinition{ID: "ovr-1", Kind: models.KindOverride})
	_ = m.CreateShift(ctx, models.ShiftDefinition{ID: "rot-1", Kind: models.KindRotation})
	_ = m.CreateSchedule(ctx, models.Schedule{ID: "sched-1", ShiftIDs: []string{"ovr-1", "rot-1"}})

	// Re-attaching to the owning schedule stays a no-op.
	if err := m.AttachShift(ctx, "sched-1", "ovr-1"); err != nil {
		t.Fatalf("re-attach to owner: %v", err)
	}

	_ = m.CreateSchedule(ctx, models.Schedule{ID: "sched-2"})
	if err := m.AttachShift(ctx, "sched-2", "ovr-1"); !errors.Is(err, ErrOverrideAttached) {
		t.Fatalf("expected ErrOverrideAttached, got %v", err)
	}
	if err := m.CreateSchedule(ctx, models.Schedule{ID: "sched-3", ShiftIDs: []string{"ovr-1"}}); !errors.Is(err, ErrOverrideAttached) {
		t.Fatalf("expected ErrOverrideAttached on create, got %v", err)
	}
	if _, err := m.GetSchedule(ctx, "sched-3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected schedule was stored: %v", err)
	}

	// Non-override shifts may be shared freely.
	if err := m.AttachShift(ctx, "sched-2", "rot-1"); err != nil {
		t.Fatalf("attach rotation to second schedule: %v", err)
	}
}

func TestMemoryIncidentBindingAndRuns(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	policy := models.EscalationPolicy{
		ID:    "pol-1",
		Name:  "default",
		Steps: []models.EscalationStep{{Kind: models.StepNotifyUser, Target: "alice"}},
	}
	if err := m.CreateEscalationPolicy(ctx, policy); err != nil {
		t.Fatalf("create policy: %v", err)
	}

	if err := m.BindIncident(ctx, "inc-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound binding to missing policy, got %v", err)
	}
	if err := m.BindIncident(ctx, "inc-1", "pol-1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	got, err := m.GetEscalationPolicy(ctx, "inc-1")
	if err != nil || got.ID != "pol-1" {
		t.Fatalf("policy lookup: %+v, %v", got, err)
	}
	if _, err := m.GetEscalationPolicy(ctx, "unbound"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	run := models.EscalationRun{IncidentID: "inc-1", PolicyID: "pol-1", Status: models.RunActive}
	if err := m.SaveEscalationRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	run.Status = models.RunAcknowledged
	if err := m.SaveEscalationRun(ctx, run); err != nil {
		t.Fatalf("resave run: %v", err)
	}

	loaded, err := m.LoadEscalationRun(ctx, "inc-1")
	if err != nil || loaded.Status != models.RunAcknowledged {
		t.Fatalf("load run: %+v, %v", loaded, err)
	}
	if _, err := m.LoadEscalationRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
