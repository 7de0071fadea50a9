// Package session maps opaque tokens to the identity that logged in with them.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownToken is returned for tokens that were never issued, were
// revoked, or have expired.
var ErrUnknownToken = errors.New("unknown or expired session token")

// Store issues, resolves and revokes session tokens.
type Store interface {
	Create(ctx context.Context, subject string) (string, error)
	Resolve(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

type entry struct {
	subject string
	expires time.Time
}

// MemoryStore keeps sessions in process memory. A zero TTL never expires.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]entry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, sessions: make(map[string]entry)}
}

func (s *MemoryStore) Create(_ context.Context, subject string) (string, error) {
	token := uuid.NewString()
	e := entry{subject: subject}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.sessions[token] = e
	s.mu.Unlock()
	return token, nil
}

func (s *MemoryStore) Resolve(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok {
		return "", ErrUnknownToken
	}
	if !e.expires.IsZero() && s.now().After(e.expires) {
		delete(s.sessions, token)
		return "", ErrUnknownToken
	}
	return e.subject, nil
}

func (s *MemoryStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}
