package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id uint) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (*User, error)
	GetUserByResetToken(ctx context.Context, token string, now time.Time) (*User, error)

	// RecordFailedLogin increments the failure counter and sets lockUntil once
	// the counter reaches threshold. It returns the user as stored afterwards.
	RecordFailedLogin(ctx context.Context, userID uint, threshold int, lockUntil time.Time) (*User, error)
	// ResetLoginState zeroes the counter and clears the lock. lastLogin is
	// written when non-nil.
	ResetLoginState(ctx context.Context, userID uint, lastLogin *time.Time) error
	MarkEmailVerified(ctx context.Context, userID uint) error
	SetPasswordResetToken(ctx context.Context, userID uint, token string, expires time.Time) error
	// UpdatePassword stores hash and clears any reset token and lockout.
	UpdatePassword(ctx context.Context, userID uint, hash string) error

	CreateSession(ctx context.Context, session *Session) error
	GetSessionByRefreshToken(ctx context.Context, digest string) (*Session, error)
	// RotateSession deactivates the session identified by id and refresh digest
	// and inserts next in one transaction. It returns ErrInvalidSession when
	// the old session was no longer active and unexpired at now.
	RotateSession(ctx context.Context, id uint, digest string, next *Session, now time.Time) error
	TouchSession(ctx context.Context, sessionDigest string, now time.Time) error
	DeactivateSession(ctx context.Context, refreshDigest string, now time.Time) error
	DeactivateSessionByToken(ctx context.Context, sessionDigest string, now time.Time) error
	DeactivateUserSessions(ctx context.Context, userID uint, now time.Time) (int64, error)
	ListActiveSessions(ctx context.Context, userID uint, now time.Time) ([]Session, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateUser(ctx context.Context, user *User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

func (r *repository) GetUserByID(ctx context.Context, id uint) (*User, error) {
	return r.firstUser(ctx, "id = ?", id)
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.firstUser(ctx, "email = ?", email)
}

func (r *repository) GetUserByVerificationToken(ctx context.Context, token string) (*User, error) {
	return r.firstUser(ctx, "email_verification_token = ?", token)
}

func (r *repository) GetUserByResetToken(ctx context.Context, token string, now time.Time) (*User, error) {
	return r.firstUser(ctx, "password_reset_token = ? AND password_reset_expires > ?", token, now)
}

func (r *repository) firstUser(ctx context.Context, query string, args ...any) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) RecordFailedLogin(ctx context.Context, userID uint, threshold int, lockUntil time.Time) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&User{}).
			Where("id = ?", userID).
			Update("login_attempts", gorm.Expr("login_attempts + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}

		if err := tx.Model(&User{}).
			Where("id = ? AND login_attempts >= ?", userID, threshold).
			Update("locked_until", lockUntil).Error; err != nil {
			return err
		}

		return tx.First(&user, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) ResetLoginState(ctx context.Context, userID uint, lastLogin *time.Time) error {
	fields := map[string]any{
		"login_attempts": 0,
		"locked_until":   nil,
	}
	if lastLogin != nil {
		fields["last_login"] = *lastLogin
	}
	return r.updateUser(ctx, userID, fields)
}

func (r *repository) MarkEmailVerified(ctx context.Context, userID uint) error {
	return r.updateUser(ctx, userID, map[string]any{
		"email_verified":           true,
		"email_verification_token": nil,
	})
}

func (r *repository) SetPasswordResetToken(ctx context.Context, userID uint, token string, expires time.Time) error {
	return r.updateUser(ctx, userID, map[string]any{
		"password_reset_token":   token,
		"password_reset_expires": expires,
	})
}

func (r *repository) UpdatePassword(ctx context.Context, userID uint, hash string) error {
	return r.updateUser(ctx, userID, map[string]any{
		"password":               hash,
		"password_reset_token":   nil,
		"password_reset_expires": nil,
		"login_attempts":         0,
		"locked_until":           nil,
	})
}

func (r *repository) updateUser(ctx context.Context, userID uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *repository) CreateSession(ctx context.Context, session *Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) GetSessionByRefreshToken(ctx context.Context, digest string) (*Session, error) {
	var session Session
	if err := r.db.WithContext(ctx).Where("refresh_token = ?", digest).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return &session, nil
}

func (r *repository) RotateSession(ctx context.Context, id uint, digest string, next *Session, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Session{}).
			Where("id = ? AND refresh_token = ? AND is_active = ? AND expires_at > ?", id, digest, true, now).
			Updates(map[string]any{
				"is_active":     false,
				"last_activity": now,
			})
		if res.Error != nil {
			return res.Error
		}
		// Another rotation of the same token won the row.
		if res.RowsAffected == 0 {
			return ErrInvalidSession
		}

		return tx.Create(next).Error
	})
}

func (r *repository) TouchSession(ctx context.Context, sessionDigest string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("session_token = ? AND is_active = ? AND expires_at > ?", sessionDigest, true, now).
		Update("last_activity", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidSession
	}
	return nil
}

func (r *repository) DeactivateSession(ctx context.Context, refreshDigest string, now time.Time) error {
	return r.deactivate(ctx, "refresh_token = ?", refreshDigest, now)
}

func (r *repository) DeactivateSessionByToken(ctx context.Context, sessionDigest string, now time.Time) error {
	return r.deactivate(ctx, "session_token = ?", sessionDigest, now)
}

func (r *repository) deactivate(ctx context.Context, query string, arg any, now time.Time) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where(query, arg).
		Where("is_active = ?", true).
		Updates(map[string]any{
			"is_active":     false,
			"last_activity": now,
		}).Error
}

func (r *repository) DeactivateUserSessions(ctx context.Context, userID uint, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]any{
			"is_active":     false,
			"last_activity": now,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListActiveSessions(ctx context.Context, userID uint, now time.Time) ([]Session, error) {
	var sessions []Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, now).
		Order("last_activity DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&Session{})
	return res.RowsAffected, res.Error
}
