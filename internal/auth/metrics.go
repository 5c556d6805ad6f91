package auth

import "sync"

const (
	outcomeLoginSuccess       = "login_success"
	outcomeLoginInvalid       = "login_invalid_credentials"
	outcomeLoginLocked        = "login_locked"
	outcomeLockoutTriggered   = "lockout_triggered"
	outcomeRotateSuccess      = "rotate_success"
	outcomeRotateInvalid      = "rotate_invalid_session"
	outcomeAuthenticateFailed = "authenticate_failed"
)

// Stats counts authentication outcomes since process start.
type Stats struct {
	counters map[string]int64
	mu       sync.RWMutex
}

func NewStats() *Stats {
	return &Stats{
		counters: make(map[string]int64),
	}
}

func (s *Stats) Inc(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[outcome]++
}

func (s *Stats) Get(outcome string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.counters[outcome]
}

// Snapshot returns a copy safe to serialize.
func (s *Stats) Snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}
