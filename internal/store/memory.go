package store

import (
	"context"
	"sync"

	"github.com/pagercall/backend/internal/models"
)

// Memory is an in-process Repository. It backs dev mode when no DATABASE_URL
// is configured, and tests.
type Memory struct {
	mu        sync.RWMutex
	shifts    map[string]models.ShiftDefinition
	schedules map[string]models.Schedule
	policies  map[string]models.EscalationPolicy
	incidents map[string]string
	runs      map[string]models.EscalationRun
}

func NewMemory() *Memory {
	return &Memory{
		shifts:    map[string]models.ShiftDefinition{},
		schedules: map[string]models.Schedule{},
		policies:  map[string]models.EscalationPolicy{},
		incidents: map[string]string{},
		runs:      map[string]models.EscalationRun{},
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() {}

func (m *Memory) CreateShift(ctx context.Context, shift models.ShiftDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shifts[shift.ID] = shift
	return nil
}

func (m *Memory) GetShift(ctx context.Context, id string) (models.ShiftDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	shift, ok := m.shifts[id]
	if !ok {
		return models.ShiftDefinition{}, ErrNotFound
	}
	return shift, nil
}

func (m *Memory) UpdateShift(ctx context.Context, shift models.ShiftDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shifts[shift.ID]; !ok {
		return ErrNotFound
	}
	m.shifts[shift.ID] = shift
	return nil
}

func (m *Memory) DeleteShift(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shifts[id]; !ok {
		return ErrNotFound
	}
	delete(m.shifts, id)
	for schedID, sched := range m.schedules {
		kept := sched.ShiftIDs[:0]
		for _, shiftID := range sched.ShiftIDs {
			if shiftID != id {
				kept = append(kept, shiftID)
			}
		}
		sched.ShiftIDs = kept
		m.schedules[schedID] = sched
	}
	return nil
}

func (m *Memory) CreateSchedule(ctx context.Context, sched models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, shiftID := range sched.ShiftIDs {
		if m.overrideHeldElsewhere(shiftID, sched.ID) {
			return ErrOverrideAttached
		}
	}
	m.schedules[sched.ID] = sched
	return nil
}

func (m *Memory) AttachShift(ctx context.Context, scheduleID, shiftID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sched, ok := m.schedules[scheduleID]
	if !ok {
		return ErrNotFound
	}
	for _, existing := range sched.ShiftIDs {
		if existing == shiftID {
			return nil
		}
	}
	if m.overrideHeldElsewhere(shiftID, scheduleID) {
		return ErrOverrideAttached
	}
	sched.ShiftIDs = append(sched.ShiftIDs, shiftID)
	m.schedules[scheduleID] = sched
	return nil
}

// overrideHeldElsewhere reports whether shiftID is an override shift already
// referenced by a schedule other than scheduleID. Caller holds the lock.
func (m *Memory) overrideHeldElsewhere(shiftID, scheduleID string) bool {
	shift, ok := m.shifts[shiftID]
	if !ok || shift.Kind != models.KindOverride {
		return false
	}
	for otherID, other := range m.schedules {
		if otherID == scheduleID {
			continue
		}
		for _, existing := range other.ShiftIDs {
			if existing == shiftID {
				return true
			}
		}
	}
	return false
}

func (m *Memory) GetSchedule(ctx context.Context, id string) (models.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sched, ok := m.schedules[id]
	if !ok {
		return models.Schedule{}, ErrNotFound
	}
	return sched, nil
}

func (m *Memory) GetShiftsForSchedule(ctx context.Context, scheduleID string) ([]models.ShiftDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sched, ok := m.schedules[scheduleID]
	if !ok {
		return nil, ErrNotFound
	}
	var out []models.ShiftDefinition
	for _, shiftID := range sched.ShiftIDs {
		if shift, ok := m.shifts[shiftID]; ok {
			out = append(out, shift)
		}
	}
	return out, nil
}

func (m *Memory) CreateEscalationPolicy(ctx context.Context, policy models.EscalationPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[policy.ID] = policy
	return nil
}

func (m *Memory) BindIncident(ctx context.Context, incidentID, policyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[policyID]; !ok {
		return ErrNotFound
	}
	m.incidents[incidentID] = policyID
	return nil
}

func (m *Memory) GetEscalationPolicy(ctx context.Context, incidentID string) (models.EscalationPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	policyID, ok := m.incidents[incidentID]
	if !ok {
		return models.EscalationPolicy{}, ErrNotFound
	}
	policy, ok := m.policies[policyID]
	if !ok {
		return models.EscalationPolicy{}, ErrNotFound
	}
	return policy, nil
}

func (m *Memory) SaveEscalationRun(ctx context.Context, run models.EscalationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.IncidentID] = run
	return nil
}

func (m *Memory) LoadEscalationRun(ctx context.Context, incidentID string) (models.EscalationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[incidentID]
	if !ok {
		return models.EscalationRun{}, ErrNotFound
	}
	return run, nil
}
