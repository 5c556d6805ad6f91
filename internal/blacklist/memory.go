package blacklist

import (
	"context"
	"sync"
	"time"
)

type userEntry struct {
	at      time.Time
	expires time.Time
}

// Memory is a process-local Store used when redis is disabled.
type Memory struct {
	tokens map[string]time.Time
	users  map[uint]userEntry
	now    func() time.Time
	mu     sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		tokens: make(map[string]time.Time),
		users:  make(map[uint]userEntry),
		now:    time.Now,
	}
}

func (m *Memory) RevokeToken(_ context.Context, tokenID string, expiresAt time.Time) error {
	if !expiresAt.After(m.now()) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[tokenID] = expiresAt
	m.pruneLocked()
	return nil
}

func (m *Memory) IsTokenRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.tokens[tokenID]
	return ok && exp.After(m.now()), nil
}

func (m *Memory) RevokeUser(_ context.Context, userID uint, at time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[userID] = userEntry{at: at, expires: m.now().Add(ttl)}
	return nil
}

func (m *Memory) UserRevokedAt(_ context.Context, userID uint) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.users[userID]
	if !ok || !e.expires.After(m.now()) {
		return time.Time{}, false, nil
	}
	return e.at, true, nil
}

// pruneLocked drops entries whose tokens have expired anyway.
func (m *Memory) pruneLocked() {
	now := m.now()
	for id, exp := range m.tokens {
		if !exp.After(now) {
			delete(m.tokens, id)
		}
	}
	for id, e := range m.users {
		if !e.expires.After(now) {
			delete(m.users, id)
		}
	}
}
