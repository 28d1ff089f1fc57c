// Package memory provides an in-process StateRepository for tests and
// database-less development runs.
package memory

import (
	"context"
	"sync"

	"voipms-gateway/internal/domain"
	"voipms-gateway/internal/token"
)

// Store implements ports.StateRepository entirely in memory. Contents do not
// survive a restart; webhook tokens therefore rotate on every start.
type Store struct {
	mu     sync.Mutex
	secret string
	latest map[string]domain.InboundMessage
}

func New() *Store {
	return &Store{latest: make(map[string]domain.InboundMessage)}
}

// EnsureInstallSecret returns the process-lifetime install secret,
// generating it on first use.
func (s *Store) EnsureInstallSecret(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.secret == "" {
		secret, err := token.NewInstallSecret()
		if err != nil {
			return "", err
		}
		s.secret = secret
	}
	return s.secret, nil
}

// LoadLatest returns the most recent inbound message stored for the line,
// or nil when none has been received yet.
func (s *Store) LoadLatest(_ context.Context, did string) (*domain.InboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.latest[did]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// SaveLatest stores msg as the line's most recent inbound message.
func (s *Store) SaveLatest(_ context.Context, did string, msg domain.InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest[did] = msg
	return nil
}
