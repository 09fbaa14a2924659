package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pagercall/backend/internal/models"
	"github.com/pagercall/backend/internal/notify"
	"github.com/pagercall/backend/internal/schedule"
)

var (
	ErrRunNotFound    = errors.New("escalation run not found")
	ErrAlreadyRunning = errors.New("escalation already running for incident")
)

const defaultMaxRepeats = 3

// Repository is the slice of the persistence layer the engine consumes.
type Repository interface {
	GetSchedule(ctx context.Context, scheduleID string) (models.Schedule, error)
	GetShiftsForSchedule(ctx context.Context, scheduleID string) ([]models.ShiftDefinition, error)
	GetEscalationPolicy(ctx context.Context, incidentID string) (models.EscalationPolicy, error)
	SaveEscalationRun(ctx context.Context, run models.EscalationRun) error
	LoadEscalationRun(ctx context.Context, incidentID string) (models.EscalationRun, error)
}

// GroupExpander turns a user-group id into its member user ids.
type GroupExpander interface {
	ExpandGroup(ctx context.Context, groupID string) ([]string, error)
}

// Engine drives one escalation run per incident. All transitions of a run —
// step advancement, timer expiry, ack/resolve signals — are processed by a
// single goroutine per run, so they never interleave.
type Engine struct {
	Repo       Repository
	Dispatcher *notify.Dispatcher
	Groups     GroupExpander
	Logger     zerolog.Logger
	MaxRepeats int

	mu   sync.Mutex
	runs map[string]*run
}

type signalKind int

const (
	sigTimer signalKind = iota
	sigAck
	sigResolve
	sigPause
	sigResume
)

type signal struct {
	kind     signalKind
	userID   string
	timerGen int
}

// run is owned by its loop goroutine: state and timerGen are only touched
// there. The engine map tracks liveness; a run is removed when its loop exits.
type run struct {
	incidentID string
	policy     models.EscalationPolicy
	state      models.EscalationRun
	inbox      chan signal
	done       chan struct{}
	closeOnce  sync.Once
	timerGen   int
}

func (r *run) close() {
	r.closeOnce.Do(func() { close(r.done) })
}

func NewEngine(repo Repository, dispatcher *notify.Dispatcher, groups GroupExpander, logger zerolog.Logger) *Engine {
	return &Engine{
		Repo:       repo,
		Dispatcher: dispatcher,
		Groups:     groups,
		Logger:     logger,
		MaxRepeats: defaultMaxRepeats,
		runs:       map[string]*run{},
	}
}

// Start begins escalating the incident against its bound policy at step 0.
func (e *Engine) Start(ctx context.Context, incidentID string) error {
	policy, err := e.Repo.GetEscalationPolicy(ctx, incidentID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	// Presence in the map means the run loop is still live; terminal runs
	// remove themselves, which allows a later re-escalation.
	if _, ok := e.runs[incidentID]; ok {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	r := &run{
		incidentID: incidentID,
		policy:     policy,
		state: models.EscalationRun{
			IncidentID: incidentID,
			PolicyID:   policy.ID,
			Status:     models.RunActive,
			StartedAt:  time.Now().UTC(),
		},
		inbox: make(chan signal, 16),
		done:  make(chan struct{}),
	}
	e.runs[incidentID] = r
	e.mu.Unlock()

	e.persist(r)
	go e.loop(r)
	return nil
}

// Acknowledge moves the run to ACKNOWLEDGED and cancels pending timers and
// in-flight retries. Safe to call from any notified user or external source.
func (e *Engine) Acknowledge(incidentID, userID string) error {
	return e.signal(incidentID, signal{kind: sigAck, userID: userID})
}

// Resolve moves the run to RESOLVED unconditionally.
func (e *Engine) Resolve(incidentID string) error {
	return e.signal(incidentID, signal{kind: sigResolve})
}

func (e *Engine) Pause(incidentID string) error {
	return e.signal(incidentID, signal{kind: sigPause})
}

func (e *Engine) Resume(incidentID string) error {
	return e.signal(incidentID, signal{kind: sigResume})
}

// Stop shuts down every run goroutine without changing persisted state.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.runs {
		r.close()
	}
}

func (e *Engine) signal(incidentID string, sig signal) error {
	e.mu.Lock()
	r, ok := e.runs[incidentID]
	e.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	select {
	case r.inbox <- sig:
		return nil
	case <-r.done:
		// Terminal runs ignore further signals.
		return nil
	}
}

func (e *Engine) loop(r *run) {
	defer func() {
		r.close()
		e.mu.Lock()
		if e.runs[r.incidentID] == r {
			delete(e.runs, r.incidentID)
		}
		e.mu.Unlock()
	}()
	e.advance(r)
	for !r.state.Status.Terminal() {
		select {
		case sig := <-r.inbox:
			e.handle(r, sig)
		case <-r.done:
			return
		}
	}
}

func (e *Engine) handle(r *run, sig signal) {
	switch sig.kind {
	case sigTimer:
		// A timer from a superseded generation fired late; benign no-op.
		if sig.timerGen != r.timerGen || r.state.Status != models.RunActive {
			return
		}
		r.state.StepIndex++
		e.advance(r)
	case sigAck:
		e.Dispatcher.MarkAcked(r.incidentID, sig.userID)
		e.terminate(r, models.RunAcknowledged)
	case sigResolve:
		e.terminate(r, models.RunResolved)
	case sigPause:
		if r.state.Status != models.RunActive {
			return
		}
		r.timerGen++
		r.state.Status = models.RunPaused
		e.persist(r)
	case sigResume:
		if r.state.Status != models.RunPaused {
			return
		}
		r.state.Status = models.RunActive
		e.advance(r)
	}
}

// advance walks steps until the run parks on a wait timer or reaches a
// terminal state. Notify steps complete immediately; per-user delivery
// failures never halt the walk.
func (e *Engine) advance(r *run) {
	ctx := context.Background()
	for r.state.Status == models.RunActive && r.state.StepIndex < len(r.policy.Steps) {
		step := r.policy.Steps[r.state.StepIndex]
		switch step.Kind {
		case models.StepWait:
			r.timerGen++
			gen := r.timerGen
			time.AfterFunc(step.WaitDelay, func() {
				select {
				case r.inbox <- signal{kind: sigTimer, timerGen: gen}:
				case <-r.done:
				}
			})
			e.persist(r)
			return
		case models.StepNotifyUser:
			e.notifyUsers(ctx, r, []string{step.Target})
			r.state.StepIndex++
		case models.StepNotifySchedule:
			users, err := e.onCallNow(ctx, step.Target)
			if err != nil {
				e.Logger.Error().Err(err).Str("incident_id", r.incidentID).Str("schedule_id", step.Target).Msg("schedule resolution failed")
			}
			e.notifyUsers(ctx, r, users)
			r.state.StepIndex++
		case models.StepNotifyUserGroup:
			users, err := e.expandGroup(ctx, step.Target)
			if err != nil {
				e.Logger.Error().Err(err).Str("incident_id", r.incidentID).Str("group_id", step.Target).Msg("group expansion failed")
			}
			e.notifyUsers(ctx, r, users)
			r.state.StepIndex++
		case models.StepRepeat:
			if r.state.Repeats < e.maxRepeats() {
				r.state.Repeats++
				r.state.StepIndex = 0
			} else {
				e.terminate(r, models.RunExhausted)
				return
			}
		default:
			e.Logger.Error().Str("incident_id", r.incidentID).Str("kind", string(step.Kind)).Msg("unknown escalation step kind")
			r.state.StepIndex++
		}
	}
	if r.state.Status == models.RunActive && r.state.StepIndex >= len(r.policy.Steps) {
		e.terminate(r, models.RunExhausted)
	}
}

// terminate flips status and atomically invalidates outstanding timers and
// retries for the run.
func (e *Engine) terminate(r *run, status models.RunStatus) {
	r.timerGen++
	r.state.Status = status
	e.Dispatcher.CancelIncident(r.incidentID)
	e.persist(r)
}

func (e *Engine) notifyUsers(ctx context.Context, r *run, users []string) {
	msg := notify.Message{
		IncidentID: r.incidentID,
		Title:      fmt.Sprintf("Incident %s needs attention", r.incidentID),
		Body:       fmt.Sprintf("You are being escalated to for incident %s (step %d).", r.incidentID, r.state.StepIndex),
	}
	for _, userID := range users {
		e.Dispatcher.Notify(ctx, userID, msg)
	}
	e.persist(r)
}

// onCallNow resolves who is on call for the schedule at this instant.
func (e *Engine) onCallNow(ctx context.Context, scheduleID string) ([]string, error) {
	sched, err := e.Repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	shifts, err := e.Repo.GetShiftsForSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	entries, err := schedule.Resolve(sched, shifts, now, now.Add(time.Second))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0].Users, nil
}

func (e *Engine) expandGroup(ctx context.Context, groupID string) ([]string, error) {
	if e.Groups == nil {
		return nil, fmt.Errorf("no group expander configured")
	}
	return e.Groups.ExpandGroup(ctx, groupID)
}

func (e *Engine) persist(r *run) {
	r.state.Attempts = e.Dispatcher.AttemptsFor(r.incidentID)
	r.state.UpdatedAt = time.Now().UTC()
	if err := e.Repo.SaveEscalationRun(context.Background(), r.state); err != nil {
		e.Logger.Error().Err(err).Str("incident_id", r.incidentID).Msg("failed to save escalation run")
	}
}

func (e *Engine) maxRepeats() int {
	if e.MaxRepeats > 0 {
		return e.MaxRepeats
	}
	return defaultMaxRepeats
}
