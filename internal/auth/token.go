package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/betterbeing/session-auth/internal/config"
)

const (
	minSecretLength = 32
	opaqueTokenSize = 64
)

type Claims struct {
	UserID    uint   `json:"uid"`
	Role      string `json:"role"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer mints access tokens and the opaque secrets that back a Session.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(cfg *config.AuthConfig) (*TokenIssuer, error) {
	if cfg.JWTSecret == "" {
		return nil, &SigningError{Reason: "jwt secret is not set"}
	}
	if len(cfg.JWTSecret) < minSecretLength {
		return nil, &SigningError{Reason: fmt.Sprintf("jwt secret must be at least %d bytes", minSecretLength)}
	}
	if cfg.AccessTokenDuration <= 0 || cfg.RefreshTokenDuration <= 0 {
		return nil, &SigningError{Reason: "token durations must be positive"}
	}

	return &TokenIssuer{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenDuration,
		refreshTTL: cfg.RefreshTokenDuration,
		now:        time.Now,
	}, nil
}

// NewSession builds an unsaved Session for user together with the token pair
// the client receives for it.
func (i *TokenIssuer) NewSession(user *User, meta ClientMeta, now time.Time) (*Session, TokenPair, error) {
	sessionToken, err := generateOpaqueToken()
	if err != nil {
		return nil, TokenPair{}, err
	}
	refreshToken, err := generateOpaqueToken()
	if err != nil {
		return nil, TokenPair{}, err
	}

	access, err := i.Sign(user, sessionToken, now)
	if err != nil {
		return nil, TokenPair{}, err
	}

	device := meta.DeviceInfo
	if device == nil {
		device = DeviceInfo{}
	}

	session := &Session{
		UserID:       user.ID,
		SessionToken: HashToken(sessionToken),
		RefreshToken: HashToken(refreshToken),
		DeviceInfo:   device,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		IsActive:     true,
		ExpiresAt:    now.Add(i.refreshTTL),
		CreatedAt:    now,
		LastActivity: now,
	}

	return session, TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// Sign produces an HS256 access token for user bound to sessionToken.
func (i *TokenIssuer) Sign(user *User, sessionToken string, now time.Time) (string, error) {
	claims := &Claims{
		UserID:    user.ID,
		Role:      user.Role,
		SessionID: sessionToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Parse validates signature, algorithm, expiry and issuer.
func (i *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (i *TokenIssuer) AccessTTL() time.Duration {
	return i.accessTTL
}

func generateOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken returns the digest under which an opaque token is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
