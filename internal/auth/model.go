package auth

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ExternalPasswordHash marks users provisioned by the hosted identity
// provider. It never matches a bcrypt comparison.
const ExternalPasswordHash = "$external$"

const RoleCustomer = "customer"

type User struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	Email                  string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash           string     `gorm:"column:password;not null" json:"-"`
	FirstName              string     `gorm:"size:100" json:"firstName"`
	LastName               string     `gorm:"size:100" json:"lastName"`
	Phone                  *string    `gorm:"size:20" json:"phone,omitempty"`
	Role                   string     `gorm:"size:32;not null;default:customer" json:"role"`
	EmailVerified          bool       `gorm:"not null;default:false" json:"emailVerified"`
	EmailVerificationToken *string    `json:"-"`
	PasswordResetToken     *string    `json:"-"`
	PasswordResetExpires   *time.Time `json:"-"`
	LoginAttempts          int        `gorm:"not null;default:0" json:"-"`
	LockedUntil            *time.Time `json:"-"`
	LastLogin              *time.Time `json:"lastLogin,omitempty"`
	TwoFactorEnabled       bool       `gorm:"not null;default:false" json:"twoFactorEnabled"`
	TwoFactorSecret        *string    `json:"-"`
	ProfileImageURL        *string    `json:"profileImageUrl,omitempty"`
	MarketingConsent       bool       `gorm:"not null;default:false" json:"marketingConsent"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"-"`
}

func (User) TableName() string {
	return "users"
}

// IsLocked reports whether a lockout window is still open at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Session is one signed-in device. SessionToken and RefreshToken hold SHA-256
// digests; the raw values only ever exist on the client.
type Session struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index" json:"-"`
	User         *User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	SessionToken string     `gorm:"size:255;uniqueIndex;not null" json:"-"`
	RefreshToken string     `gorm:"size:255;uniqueIndex;not null" json:"-"`
	DeviceInfo   DeviceInfo `gorm:"type:jsonb" json:"deviceInfo"`
	IPAddress    string     `gorm:"size:45" json:"ipAddress"`
	UserAgent    string     `json:"userAgent"`
	IsActive     bool       `gorm:"not null;default:true" json:"isActive"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expiresAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActivity time.Time  `json:"lastActivity"`
}

func (Session) TableName() string {
	return "user_sessions"
}

// Usable reports whether the session may still authenticate at now.
func (s *Session) Usable(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}

// DeviceInfo is free-form client metadata stored as jsonb.
type DeviceInfo map[string]any

func (d DeviceInfo) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

func (d *DeviceInfo) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = DeviceInfo{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("device_info: unsupported column type")
	}
	return json.Unmarshal(raw, d)
}

// ClientMeta describes the caller of a login or rotation.
type ClientMeta struct {
	IPAddress  string
	UserAgent  string
	DeviceInfo DeviceInfo
}

// TokenPair is handed to the client and never persisted as-is.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
