package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

type mockRepository struct {
	users     map[uint]*User
	sessions  map[uint]*Session
	nextUser  uint
	nextSess  uint
	createErr error
	mu        sync.RWMutex
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:    make(map[uint]*User),
		sessions: make(map[uint]*Session),
	}
}

func cloneUser(u *User) *User {
	c := *u
	return &c
}

func cloneSession(s *Session) *Session {
	c := *s
	return &c
}

func (r *mockRepository) CreateUser(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrUserExists
		}
	}

	r.nextUser++
	user.ID = r.nextUser
	if user.Role == "" {
		user.Role = RoleCustomer
	}
	user.CreatedAt = time.Now()
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *mockRepository) findUser(match func(*User) bool) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *mockRepository) GetUserByID(_ context.Context, id uint) (*User, error) {
	return r.findUser(func(u *User) bool { return u.ID == id })
}

func (r *mockRepository) GetUserByEmail(_ context.Context, email string) (*User, error) {
	return r.findUser(func(u *User) bool { return u.Email == email })
}

func (r *mockRepository) GetUserByVerificationToken(_ context.Context, token string) (*User, error) {
	return r.findUser(func(u *User) bool {
		return u.EmailVerificationToken != nil && *u.EmailVerificationToken == token
	})
}

func (r *mockRepository) GetUserByResetToken(_ context.Context, token string, now time.Time) (*User, error) {
	return r.findUser(func(u *User) bool {
		return u.PasswordResetToken != nil && *u.PasswordResetToken == token &&
			u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now)
	})
}

func (r *mockRepository) mutateUser(userID uint, fn func(*User)) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	fn(user)
	return cloneUser(user), nil
}

func (r *mockRepository) RecordFailedLogin(_ context.Context, userID uint, threshold int, lockUntil time.Time) (*User, error) {
	return r.mutateUser(userID, func(u *User) {
		u.LoginAttempts++
		if u.LoginAttempts >= threshold {
			until := lockUntil
			u.LockedUntil = &until
		}
	})
}

func (r *mockRepository) ResetLoginState(_ context.Context, userID uint, lastLogin *time.Time) error {
	_, err := r.mutateUser(userID, func(u *User) {
		u.LoginAttempts = 0
		u.LockedUntil = nil
		if lastLogin != nil {
			t := *lastLogin
			u.LastLogin = &t
		}
	})
	return err
}

func (r *mockRepository) MarkEmailVerified(_ context.Context, userID uint) error {
	_, err := r.mutateUser(userID, func(u *User) {
		u.EmailVerified = true
		u.EmailVerificationToken = nil
	})
	return err
}

func (r *mockRepository) SetPasswordResetToken(_ context.Context, userID uint, token string, expires time.Time) error {
	_, err := r.mutateUser(userID, func(u *User) {
		u.PasswordResetToken = &token
		u.PasswordResetExpires = &expires
	})
	return err
}

func (r *mockRepository) UpdatePassword(_ context.Context, userID uint, hash string) error {
	_, err := r.mutateUser(userID, func(u *User) {
		u.PasswordHash = hash
		u.PasswordResetToken = nil
		u.PasswordResetExpires = nil
		u.LoginAttempts = 0
		u.LockedUntil = nil
	})
	return err
}

func (r *mockRepository) CreateSession(_ context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertSessionLocked(session)
	return nil
}

func (r *mockRepository) insertSessionLocked(session *Session) {
	r.nextSess++
	session.ID = r.nextSess
	r.sessions[session.ID] = cloneSession(session)
}

func (r *mockRepository) GetSessionByRefreshToken(_ context.Context, digest string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.RefreshToken == digest {
			return cloneSession(s), nil
		}
	}
	return nil, ErrInvalidSession
}

func (r *mockRepository) RotateSession(_ context.Context, id uint, digest string, next *Session, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.sessions[id]
	if !ok || old.RefreshToken != digest || !old.Usable(now) {
		return ErrInvalidSession
	}
	old.IsActive = false
	old.LastActivity = now
	r.insertSessionLocked(next)
	return nil
}

func (r *mockRepository) TouchSession(_ context.Context, sessionDigest string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.SessionToken == sessionDigest && s.Usable(now) {
			s.LastActivity = now
			return nil
		}
	}
	return ErrInvalidSession
}

func (r *mockRepository) deactivateWhere(now time.Time, match func(*Session) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, s := range r.sessions {
		if s.IsActive && match(s) {
			s.IsActive = false
			s.LastActivity = now
			n++
		}
	}
	return n
}

func (r *mockRepository) DeactivateSession(_ context.Context, refreshDigest string, now time.Time) error {
	r.deactivateWhere(now, func(s *Session) bool { return s.RefreshToken == refreshDigest })
	return nil
}

func (r *mockRepository) DeactivateSessionByToken(_ context.Context, sessionDigest string, now time.Time) error {
	r.deactivateWhere(now, func(s *Session) bool { return s.SessionToken == sessionDigest })
	return nil
}

func (r *mockRepository) DeactivateUserSessions(_ context.Context, userID uint, now time.Time) (int64, error) {
	return r.deactivateWhere(now, func(s *Session) bool { return s.UserID == userID }), nil
}

func (r *mockRepository) ListActiveSessions(_ context.Context, userID uint, now time.Time) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.Usable(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (r *mockRepository) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// expireSession moves a session's expiry into the past for tests.
func (r *mockRepository) expireSession(refreshDigest string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.RefreshToken == refreshDigest {
			s.ExpiresAt = at
		}
	}
}
