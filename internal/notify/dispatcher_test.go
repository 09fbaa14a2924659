package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pagercall/backend/internal/models"
)

// flakyChannel fails the first failures sends with a transient error, then
// succeeds.
type flakyChannel struct {
	name     string
	failures int

	mu    sync.Mutex
	calls int
}

func (f *flakyChannel) Name() string { return f.name }

func (f *flakyChannel) Send(ctx context.Context, userID string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("temporarily unavailable")
	}
	return nil
}

func (f *flakyChannel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestDispatcher(contacts ContactResolver, channels ...Channel) *Dispatcher {
	d := NewDispatcher(NewRegistry(channels...), contacts, zerolog.Nop())
	d.BaseBackoff = time.Millisecond
	return d
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestNotifyDelivers(t *testing.T) {
	mock := &MockChannel{ChannelName: "chat"}
	d := newTestDispatcher(StaticContacts{Channels: []string{"chat"}}, mock)

	attempts := d.Notify(context.Background(), "alice", Message{IncidentID: "inc-1", Title: "db down"})
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Status != models.AttemptDelivered {
		t.Fatalf("expected DELIVERED, got %s", attempts[0].Status)
	}
	if sends := mock.Sends(); len(sends) != 1 || sends[0].UserID != "alice" {
		t.Fatalf("unexpected sends: %+v", sends)
	}
}

func TestNotifyRetriesTransientFailure(t *testing.T) {
	ch := &flakyChannel{name: "chat", failures: 2}
	d := newTestDispatcher(StaticContacts{Channels: []string{"chat"}}, ch)

	attempts := d.Notify(context.Background(), "alice", Message{IncidentID: "inc-1"})
	if attempts[0].Status != models.AttemptSent {
		t.Fatalf("expected SENT after transient failure, got %s", attempts[0].Status)
	}

	waitFor(t, 2*time.Second, func() bool {
		got := d.AttemptsFor("inc-1")
		return len(got) == 1 && got[0].Status == models.AttemptDelivered
	})
	got := d.AttemptsFor("inc-1")
	if got[0].AttemptCount != 3 {
		t.Fatalf("expected 3 attempts, got %d", got[0].AttemptCount)
	}
	if ch.callCount() != 3 {
		t.Fatalf("expected 3 channel calls, got %d", ch.callCount())
	}
}

func TestNotifyPermanentFailureDoesNotRetry(t *testing.T) {
	mock := &MockChannel{ChannelName: "chat", Err: Permanent(errors.New("user blocked the bot"))}
	d := newTestDispatcher(StaticContacts{Channels: []string{"chat"}}, mock)

	attempts := d.Notify(context.Background(), "alice", Message{IncidentID: "inc-1"})
	if attempts[0].Status != models.AttemptFailed {
		t.Fatalf("expected FAILED, got %s", attempts[0].Status)
	}
	if attempts[0].AttemptCount != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts[0].AttemptCount)
	}

	time.Sleep(20 * time.Millisecond)
	got := d.AttemptsFor("inc-1")
	if got[0].AttemptCount != 1 {
		t.Fatalf("permanent failure was retried: %d attempts", got[0].AttemptCount)
	}
}

func TestNotifyIsIdempotentPerIncidentUserChannel(t *testing.T) {
	mock := &MockChannel{ChannelName: "chat"}
	d := newTestDispatcher(StaticContacts{Channels: []string{"chat"}}, mock)

	msg := Message{IncidentID: "inc-1"}
	d.Notify(context.Background(), "alice", msg)
	d.Notify(context.Background(), "alice", msg)

	if sends := mock.Sends(); len(sends) != 1 {
		t.Fatalf("expected one delivery, got %d", len(sends))
	}
	got := d.AttemptsFor("inc-1")
	if len(got) != 1 || got[0].AttemptCount != 1 {
		t.Fatalf("expected single recorded attempt, got %+v", got)
	}
}

func TestConcurrentNotifyDeliversOnce(t *testing.T) {
	mock := &MockChannel{ChannelName: "chat"}
	d := newTestDispatcher(StaticContacts{Channels: []string{"chat"}}, mock)

	msg := Message{IncidentID: "inc-1"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Notify(context.Background(), "alice", msg)
		}()
	}
	wg.Wait()

	if sends := mock.Sends(); len(sends) != 1 {
		t.Fatalf("expected exactly one delivery under concurrent notify, got %d", len(sends))
	}
	got := d.AttemptsFor("inc-1")
	if len(got) != 1 || got[0].AttemptCount != 1 {
		t.Fatalf("expected single recorded attempt, got %+v", got)
	}
}

func TestNotifyWithoutContactsFailsPermanently(t *testing.T) {
	d := newTestDispatcher(StaticContacts{})

	attempts := d.Notify(context.Background(), "ghost", Message{IncidentID: "inc-1"})
	if len(attempts) != 1 || attempts[0].Status != models.AttemptFailed {
		t.Fatalf("expected one FAILED attempt, got %+v", attempts)
	}
	if attempts[0].LastError == "" {
		t.Fatalf("expected a recorded error")
	}
}

func TestNotifyUnregisteredChannelFails(t *testing.T) {
	d := newTestDispatcher(StaticContacts{Channels: []string{"sms"}})

	attempts := d.Notify(context.Background(), "alice", Message{IncidentID: "inc-1"})
	if len(attempts) != 1 || attempts[0].Status != models.AttemptFailed {
		t.Fatalf("expected FAILED for unregistered channel, got %+v", attempts)
	}
}

func TestMarkAckedStopsRetries(t *testing.T) {
	ch := &flakyChannel{name: "chat", failures: 100}
	d := newTestDispatcher(StaticContacts{Channels: []string{"chat"}}, ch)

	d.Notify(context.Background(), "alice", Message{IncidentID: "inc-1"})
	d.MarkAcked("inc-1", "alice")

	calls := ch.callCount()
	time.Sleep(50 * time.Millisecond)
	if got := ch.callCount(); got > calls+1 {
		t.Fatalf("retries kept firing after ack: %d calls", got)
	}
	got := d.AttemptsFor("inc-1")
	if got[0].Status != models.AttemptAcked {
		t.Fatalf("expected ACKED, got %s", got[0].Status)
	}
}

func TestCancelIncidentStopsRetries(t *testing.T) {
	ch := &flakyChannel{name: "chat", failures: 100}
	d := newTestDispatcher(StaticContacts{Channels: []string{"chat"}}, ch)

	d.Notify(context.Background(), "alice", Message{IncidentID: "inc-1"})
	d.CancelIncident("inc-1")

	calls := ch.callCount()
	time.Sleep(50 * time.Millisecond)
	if got := ch.callCount(); got > calls+1 {
		t.Fatalf("retries kept firing after cancel: %d calls (was %d)", got, calls)
	}
}
