package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pagercall/backend/internal/models"
)

const (
	defaultMaxAttempts = 5
	defaultBaseBackoff = 500 * time.Millisecond
)

// Dispatcher tracks delivery state per user per incident and retries
// transient failures on asynchronous timers. Re-notifying a combination that
// is already DELIVERED or ACKED is a no-op.
type Dispatcher struct {
	Registry    *Registry
	Contacts    ContactResolver
	Logger      zerolog.Logger
	MaxAttempts int
	BaseBackoff time.Duration

	mu        sync.Mutex
	attempts  map[attemptKey]*inflight
	cancelled map[string]bool
}

type attemptKey struct {
	incident string
	user     string
	channel  string
}

type inflight struct {
	attempt models.NotificationAttempt
	backoff backoff.BackOff
	sending bool
}

func NewDispatcher(registry *Registry, contacts ContactResolver, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Registry:    registry,
		Contacts:    contacts,
		Logger:      logger,
		MaxAttempts: defaultMaxAttempts,
		BaseBackoff: defaultBaseBackoff,
		attempts:    map[attemptKey]*inflight{},
		cancelled:   map[string]bool{},
	}
}

// Notify delivers msg to the user over every channel they can be reached on.
// The first attempt per channel runs synchronously; retries are scheduled on
// timers. The returned attempts reflect the state after the first pass.
func (d *Dispatcher) Notify(ctx context.Context, userID string, msg Message) []models.NotificationAttempt {
	channels, err := d.Contacts.ChannelsFor(ctx, userID)
	if err == nil && len(channels) == 0 {
		err = Permanent(errNoContact)
	}
	if err != nil {
		fl := d.track(attemptKey{incident: msg.IncidentID, user: userID}, func(a *models.NotificationAttempt) {
			a.Status = models.AttemptFailed
			a.AttemptCount++
			a.LastAttemptAt = time.Now().UTC()
			a.LastError = err.Error()
		})
		d.Logger.Warn().Str("incident_id", msg.IncidentID).Str("user_id", userID).Err(err).Msg("no contact method")
		return []models.NotificationAttempt{fl}
	}

	out := make([]models.NotificationAttempt, 0, len(channels))
	for _, name := range channels {
		ch, ok := d.Registry.Get(name)
		key := attemptKey{incident: msg.IncidentID, user: userID, channel: name}

		if !ok {
			out = append(out, d.track(key, func(a *models.NotificationAttempt) {
				a.Status = models.AttemptFailed
				a.AttemptCount++
				a.LastAttemptAt = time.Now().UTC()
				a.LastError = "channel not registered: " + name
			}))
			continue
		}

		snap, claimed := d.claim(key)
		if !claimed {
			out = append(out, snap)
			continue
		}
		out = append(out, d.try(ctx, key, ch, userID, msg))
	}
	return out
}

// claim reserves the attempt under key for one send. It reports false when
// the attempt is already delivered, acked or mid-send, returning the current
// snapshot; the claim is released by the track call that records the result.
func (d *Dispatcher) claim(key attemptKey) (models.NotificationAttempt, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fl := d.ensureLocked(key)
	if fl.sending || fl.attempt.Status == models.AttemptDelivered || fl.attempt.Status == models.AttemptAcked {
		return fl.attempt, false
	}
	fl.sending = true
	return fl.attempt, true
}

var errNoContact = &noContactError{}

type noContactError struct{}

func (*noContactError) Error() string { return "user has no valid contact method" }

// try runs one delivery attempt and schedules a retry timer on transient
// failure. The caller must hold the claim on key.
func (d *Dispatcher) try(ctx context.Context, key attemptKey, ch Channel, userID string, msg Message) models.NotificationAttempt {
	sendErr := ch.Send(ctx, userID, msg)

	retry := false
	result := d.track(key, func(a *models.NotificationAttempt) {
		a.AttemptCount++
		a.LastAttemptAt = time.Now().UTC()
		switch {
		case sendErr == nil:
			a.Status = models.AttemptDelivered
			a.LastError = ""
		case IsPermanent(sendErr):
			a.Status = models.AttemptFailed
			a.LastError = sendErr.Error()
		case a.AttemptCount >= d.maxAttempts():
			a.Status = models.AttemptFailed
			a.LastError = sendErr.Error()
			d.Logger.Warn().Str("incident_id", key.incident).Str("user_id", userID).Str("channel", key.channel).Int("attempts", a.AttemptCount).Msg("delivery attempts exhausted")
		default:
			a.Status = models.AttemptSent
			a.LastError = sendErr.Error()
			retry = true
		}
	})
	if retry {
		d.scheduleRetry(key, ch, userID, msg)
	}
	return result
}

func (d *Dispatcher) scheduleRetry(key attemptKey, ch Channel, userID string, msg Message) {
	d.mu.Lock()
	fl := d.attempts[key]
	if fl.backoff == nil {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = d.baseBackoff()
		bo.MaxElapsedTime = 0
		fl.backoff = bo
	}
	delay := fl.backoff.NextBackOff()
	d.mu.Unlock()

	time.AfterFunc(delay, func() {
		d.mu.Lock()
		if d.cancelled[key.incident] {
			d.mu.Unlock()
			return
		}
		fl := d.attempts[key]
		if fl == nil || fl.sending || fl.attempt.Status != models.AttemptSent {
			d.mu.Unlock()
			return
		}
		fl.sending = true
		d.mu.Unlock()
		d.try(context.Background(), key, ch, userID, msg)
	})
}

// track applies fn to the attempt under key, creating it on first use,
// releases any send claim on it, and returns a copy.
func (d *Dispatcher) track(key attemptKey, fn func(*models.NotificationAttempt)) models.NotificationAttempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	fl := d.ensureLocked(key)
	fn(&fl.attempt)
	fl.sending = false
	return fl.attempt
}

// ensureLocked returns the inflight record for key, creating it on first use.
// Caller holds the lock.
func (d *Dispatcher) ensureLocked(key attemptKey) *inflight {
	fl, ok := d.attempts[key]
	if !ok {
		fl = &inflight{attempt: models.NotificationAttempt{
			ID:         uuid.NewString(),
			IncidentID: key.incident,
			UserID:     key.user,
			Channel:    key.channel,
			Status:     models.AttemptPending,
		}}
		d.attempts[key] = fl
	}
	return fl
}

// MarkAcked flips every attempt for the user on the incident to ACKED, which
// also stops their retry timers.
func (d *Dispatcher) MarkAcked(incidentID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, fl := range d.attempts {
		if key.incident == incidentID && key.user == userID {
			fl.attempt.Status = models.AttemptAcked
		}
	}
}

// CancelIncident invalidates all pending retries for the incident. Late
// timers observe the flag and do nothing.
func (d *Dispatcher) CancelIncident(incidentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelled[incidentID] = true
}

// AttemptsFor snapshots the attempts recorded for an incident, ordered
// deterministically.
func (d *Dispatcher) AttemptsFor(incidentID string) []models.NotificationAttempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.NotificationAttempt
	for key, fl := range d.attempts {
		if key.incident == incidentID {
			out = append(out, fl.attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

func (d *Dispatcher) maxAttempts() int {
	if d.MaxAttempts > 0 {
		return d.MaxAttempts
	}
	return defaultMaxAttempts
}

func (d *Dispatcher) baseBackoff() time.Duration {
	if d.BaseBackoff > 0 {
		return d.BaseBackoff
	}
	return defaultBaseBackoff
}
