package notify

import (
	"context"
	"sync"
)

// MockChannel records sends instead of delivering them. It stands in for real
// integrations in dev mode and in tests.
type MockChannel struct {
	ChannelName string
	Err         error

	mu    sync.Mutex
	sends []MockSend
}

type MockSend struct {
	UserID  string
	Message Message
}

func (m *MockChannel) Name() string {
	if m.ChannelName == "" {
		return "mock"
	}
	return m.ChannelName
}

func (m *MockChannel) Send(ctx context.Context, userID string, msg Message) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, MockSend{UserID: userID, Message: msg})
	return nil
}

// Sends returns a copy of everything delivered so far.
func (m *MockChannel) Sends() []MockSend {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSend, len(m.sends))
	copy(out, m.sends)
	return out
}

// StaticContacts resolves every user to the same fixed channel list. Used when
// no per-user contact store is configured.
type StaticContacts struct {
	Channels []string
}

func (s StaticContacts) ChannelsFor(ctx context.Context, userID string) ([]string, error) {
	return s.Channels, nil
}
