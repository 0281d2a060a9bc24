package nonce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"giro/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this error pattern:
// - Return ErrNotFound when the nonce does not exist
// - Return ErrAlreadyUsed when the nonce was already consumed
// - Return ErrExpired when the nonce is past its TTL
// - Return wrapped errors with context for infrastructure failures

// InMemoryStore keeps challenges in memory for tests/dev and as the default
// backend when Redis is not configured.
type InMemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	nonces map[string]*Challenge
}

// NewInMemoryStore constructs an empty in-memory nonce store.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		ttl:    ttl,
		nonces: make(map[string]*Challenge),
	}
}

// Issue mints a fresh single-use challenge bound to subject in the given domain.
func (s *InMemoryStore) Issue(_ context.Context, subject string, domain Domain) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(time.Now())

	c := &Challenge{
		Value:     NewValue(domain),
		Subject:   subject,
		Domain:    domain,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	s.nonces[c.Value] = c
	return *c, nil
}

// Consume spends a nonce. It is an atomic check-and-set: under concurrent
// consumption attempts for the same value, exactly one caller succeeds.
func (s *InMemoryStore) Consume(_ context.Context, value string) (Consumed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.nonces[value]
	if !ok {
		return Consumed{}, fmt.Errorf("nonce not found: %w", sentinel.ErrNotFound)
	}
	if c.Consumed {
		return Consumed{}, fmt.Errorf("nonce already consumed: %w", sentinel.ErrAlreadyUsed)
	}
	if time.Now().After(c.ExpiresAt) {
		delete(s.nonces, value)
		return Consumed{}, fmt.Errorf("nonce expired: %w", sentinel.ErrExpired)
	}
	c.Consumed = true
	return Consumed{Subject: c.Subject, Domain: c.Domain}, nil
}

// sweepLocked drops expired entries; spent entries are kept until expiry so a
// replayed value still reports "already used" rather than "not found".
func (s *InMemoryStore) sweepLocked(now time.Time) {
	for value, c := range s.nonces {
		if now.After(c.ExpiresAt) {
			delete(s.nonces, value)
		}
	}
}
