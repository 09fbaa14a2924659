package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Message is the incident context delivered to a responder.
type Message struct {
	IncidentID string `json:"incident_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// Channel delivers a message to a user over one transport. Implementations
// are external integrations; the core only depends on this interface.
type Channel interface {
	Name() string
	Send(ctx context.Context, userID string, msg Message) error
}

// Registry maps channel names to implementations. Lookups are resolved
// against an explicit, compile-time-wired set of channels.
type Registry struct {
	byName map[string]Channel
}

func NewRegistry(channels ...Channel) *Registry {
	r := &Registry{byName: make(map[string]Channel, len(channels))}
	for _, ch := range channels {
		r.byName[ch.Name()] = ch
	}
	return r
}

func (r *Registry) Get(name string) (Channel, bool) {
	ch, ok := r.byName[name]
	return ch, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContactResolver returns the ordered channel names a user can be reached on.
// An empty result means the user has no valid contact method.
type ContactResolver interface {
	ChannelsFor(ctx context.Context, userID string) ([]string, error)
}

// PermanentError marks a delivery failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent delivery failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the dispatcher reports it as FAILED without retry.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
