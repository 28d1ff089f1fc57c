package app

import (
	"sync"
	"time"

	"voipms-gateway/internal/domain"
)

// StateNoMessages is the summary state before any message arrives.
const StateNoMessages = "No messages"

// StateStore holds the single most recent inbound message for a line. All
// access goes through the mutex so concurrent webhook deliveries and API
// reads observe consistent snapshots.
type StateStore struct {
	mu         sync.Mutex
	did        string
	webhookURL string
	current    *domain.InboundMessage
	updatedAt  time.Time
}

// NewStateStore creates an empty store for the line.
func NewStateStore(did, webhookURL string) *StateStore {
	return &StateStore{did: did, webhookURL: webhookURL}
}

// Apply records msg as the most recent message and reports whether the store
// changed. Applying a message whose MessageID matches the current one is a
// no-op, which makes redelivered webhooks harmless.
func (s *StateStore) Apply(msg domain.InboundMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.MessageID == msg.MessageID {
		return false
	}
	m := msg
	s.current = &m
	s.updatedAt = time.Now().UTC()
	return true
}

// Hydrate seeds the store from persisted state. The message's own receive
// time becomes the last-updated stamp.
func (s *StateStore) Hydrate(msg domain.InboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := msg
	s.current = &m
	s.updatedAt = msg.ReceivedAt
}

// Snapshot returns a consistent copy of the line state.
func (s *StateStore) Snapshot() domain.LineState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.LineState{
		State:       StateNoMessages,
		PhoneNumber: s.did,
		WebhookURL:  s.webhookURL,
	}
	if s.current == nil {
		return st
	}
	updated := s.updatedAt
	st.State = "Message from " + s.current.From
	st.From = s.current.From
	st.Message = s.current.Body
	st.MessageID = s.current.MessageID
	st.LastUpdated = &updated
	return st
}
