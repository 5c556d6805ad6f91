package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/betterbeing/session-auth/internal/config"
)

type Service struct {
	config   *config.AuthConfig
	log      *zap.Logger
	repo     Repository
	issuer   *TokenIssuer
	provider IdentityProvider
	revoker  Revoker
	mailer   Mailer
	stats    *Stats

	// dummyHash is compared against when the email is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
	compare   func(hash, password []byte) error
	now       func() time.Time
}

type RegisterRequest struct {
	Email            string
	Password         string
	FirstName        string
	LastName         string
	Phone            string
	MarketingConsent bool
}

type LoginRequest struct {
	Email    string
	Password string
	Meta     ClientMeta
}

func NewService(
	cfg *config.AuthConfig,
	log *zap.Logger,
	repo Repository,
	issuer *TokenIssuer,
	provider IdentityProvider,
	revoker Revoker,
	mailer Mailer,
	stats *Stats,
) (*Service, error) {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &Service{
		config:    cfg,
		log:       log,
		repo:      repo,
		issuer:    issuer,
		provider:  provider,
		revoker:   revoker,
		mailer:    mailer,
		stats:     stats,
		dummyHash: dummy,
		compare:   bcrypt.CompareHashAndPassword,
		now:       time.Now,
	}, nil
}

func (s *Service) Stats() *Stats {
	return s.stats
}

func (s *Service) bcryptCost() int {
	if s.config.BcryptCost == 0 {
		return bcrypt.DefaultCost
	}
	return s.config.BcryptCost
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password, s.bcryptCost())
	if err != nil {
		return nil, err
	}

	verification, err := generateOpaqueToken()
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:                  normalizeEmail(req.Email),
		PasswordHash:           hash,
		FirstName:              req.FirstName,
		LastName:               req.LastName,
		Role:                   RoleCustomer,
		EmailVerificationToken: &verification,
		MarketingConsent:       req.MarketingConsent,
	}
	if req.Phone != "" {
		phone := req.Phone
		user.Phone = &phone
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	if err := s.mailer.SendVerification(ctx, user.Email, verification); err != nil {
		s.log.Warn("failed to send verification email",
			zap.Uint("user_id", user.ID),
			zap.Error(err))
	}

	s.log.Info("user registered", zap.Uint("user_id", user.ID))
	return user, nil
}

// Login runs the lockout state machine. The error return is reserved for
// storage or signing failures; credential outcomes are LoginResult values.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	now := s.now()

	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = s.compare(s.dummyHash, []byte(req.Password))
			s.stats.Inc(outcomeLoginInvalid)
			return LoginInvalidCredentials{}, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.IsLocked(now) {
		s.stats.Inc(outcomeLoginLocked)
		return LoginAccountLocked{Until: *user.LockedUntil}, nil
	}

	if user.LockedUntil != nil {
		// Lockout window has passed; unlock before judging this attempt.
		if err := s.repo.ResetLoginState(ctx, user.ID, nil); err != nil {
			return nil, fmt.Errorf("failed to unlock account: %w", err)
		}
		user.LoginAttempts = 0
		user.LockedUntil = nil
	}

	if user.PasswordHash == ExternalPasswordHash || s.compare([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return s.recordFailure(ctx, user, now)
	}

	if err := s.repo.ResetLoginState(ctx, user.ID, &now); err != nil {
		return nil, fmt.Errorf("failed to reset login attempts: %w", err)
	}
	user.LoginAttempts = 0
	user.LastLogin = &now

	tokens, err := s.issue(ctx, user, req.Meta, now)
	if err != nil {
		return nil, err
	}

	s.stats.Inc(outcomeLoginSuccess)
	s.log.Info("login succeeded", zap.Uint("user_id", user.ID), zap.String("ip", req.Meta.IPAddress))

	return LoginSuccess{
		Tokens:                    tokens,
		User:                      user,
		RequiresEmailVerification: !user.EmailVerified,
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, user *User, now time.Time) (LoginResult, error) {
	updated, err := s.repo.RecordFailedLogin(ctx, user.ID, s.config.MaxLoginAttempts, now.Add(s.config.LockoutDuration))
	if err != nil {
		return nil, fmt.Errorf("failed to record login attempt: %w", err)
	}

	if updated.IsLocked(now) {
		s.stats.Inc(outcomeLockoutTriggered)
		s.log.Warn("account locked after repeated failures",
			zap.Uint("user_id", user.ID),
			zap.Int("attempts", updated.LoginAttempts),
			zap.Time("locked_until", *updated.LockedUntil))
		return LoginAccountLocked{Until: *updated.LockedUntil}, nil
	}

	s.stats.Inc(outcomeLoginInvalid)
	return LoginInvalidCredentials{}, nil
}

// issue mints a token pair and persists its Session.
func (s *Service) issue(ctx context.Context, user *User, meta ClientMeta, now time.Time) (TokenPair, error) {
	session, tokens, err := s.issuer.NewSession(user, meta, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return TokenPair{}, fmt.Errorf("failed to create session: %w", err)
	}
	return tokens, nil
}

// Rotate exchanges a refresh token for a new pair. A refresh token succeeds
// at most once; concurrent callers with the same token see ErrInvalidSession.
func (s *Service) Rotate(ctx context.Context, refreshToken string, meta ClientMeta) (TokenPair, *User, error) {
	if refreshToken == "" {
		s.stats.Inc(outcomeRotateInvalid)
		return TokenPair{}, nil, ErrInvalidSession
	}

	now := s.now()
	digest := HashToken(refreshToken)

	current, err := s.repo.GetSessionByRefreshToken(ctx, digest)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			s.stats.Inc(outcomeRotateInvalid)
		}
		return TokenPair{}, nil, err
	}

	if !current.Usable(now) {
		if current.IsActive {
			if err := s.repo.DeactivateSession(ctx, digest, now); err != nil {
				s.log.Warn("failed to deactivate expired session",
					zap.Uint("session_id", current.ID),
					zap.Error(err))
			}
		}
		s.stats.Inc(outcomeRotateInvalid)
		return TokenPair{}, nil, ErrInvalidSession
	}

	user, err := s.repo.GetUserByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.stats.Inc(outcomeRotateInvalid)
			return TokenPair{}, nil, ErrInvalidSession
		}
		return TokenPair{}, nil, err
	}

	if meta.DeviceInfo == nil {
		meta.DeviceInfo = current.DeviceInfo
	}
	next, tokens, err := s.issuer.NewSession(user, meta, now)
	if err != nil {
		return TokenPair{}, nil, err
	}

	if err := s.repo.RotateSession(ctx, current.ID, digest, next, now); err != nil {
		if errors.Is(err, ErrInvalidSession) {
			s.stats.Inc(outcomeRotateInvalid)
			s.log.Warn("refresh token replayed",
				zap.Uint("session_id", current.ID),
				zap.Uint("user_id", user.ID))
		}
		return TokenPair{}, nil, err
	}

	s.stats.Inc(outcomeRotateSuccess)
	return tokens, user, nil
}

// Authenticate resolves an access token into an Identity, rejecting revoked
// tokens and tokens whose session has ended.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	id, err := s.provider.Verify(ctx, accessToken)
	if err != nil {
		s.stats.Inc(outcomeAuthenticateFailed)
		return nil, err
	}

	if id.TokenID != "" {
		revoked, err := s.revoker.IsTokenRevoked(ctx, id.TokenID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token revocation: %w", err)
		}
		if revoked {
			s.stats.Inc(outcomeAuthenticateFailed)
			return nil, ErrTokenRevoked
		}
	}

	revokedAt, ok, err := s.revoker.UserRevokedAt(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check user revocation: %w", err)
	}
	if ok && id.IssuedAt.Before(revokedAt) {
		s.stats.Inc(outcomeAuthenticateFailed)
		return nil, ErrTokenRevoked
	}

	user, err := s.repo.GetUserByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.stats.Inc(outcomeAuthenticateFailed)
			return nil, fmt.Errorf("%w: user no longer exists", ErrInvalidToken)
		}
		return nil, err
	}
	// A lockout also shuts out sessions opened before it.
	if user.IsLocked(s.now()) {
		s.stats.Inc(outcomeAuthenticateFailed)
		return nil, ErrAccountLocked
	}

	if id.SessionToken != "" && s.config.TrackSessionActivity {
		if err := s.repo.TouchSession(ctx, HashToken(id.SessionToken), s.now()); err != nil {
			s.stats.Inc(outcomeAuthenticateFailed)
			return nil, err
		}
	}

	return id, nil
}

func (s *Service) Me(ctx context.Context, id *Identity) (*User, error) {
	return s.repo.GetUserByID(ctx, id.UserID)
}

// Logout ends the session behind refreshToken and, when the caller also
// presented an access token, revokes it. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string, id *Identity) error {
	now := s.now()

	if refreshToken != "" {
		if err := s.repo.DeactivateSession(ctx, HashToken(refreshToken), now); err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}
	}

	if id == nil {
		return nil
	}
	if id.SessionToken != "" {
		if err := s.repo.DeactivateSessionByToken(ctx, HashToken(id.SessionToken), now); err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}
	}
	if id.TokenID != "" {
		if err := s.revoker.RevokeToken(ctx, id.TokenID, id.ExpiresAt); err != nil {
			return fmt.Errorf("failed to revoke access token: %w", err)
		}
	}
	return nil
}

// LogoutAll ends every session of the user and invalidates access tokens
// issued so far.
func (s *Service) LogoutAll(ctx context.Context, userID uint) (int64, error) {
	now := s.now()

	n, err := s.repo.DeactivateUserSessions(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to end sessions: %w", err)
	}
	if err := s.revoker.RevokeUser(ctx, userID, now.Truncate(time.Second), s.issuer.AccessTTL()); err != nil {
		return 0, fmt.Errorf("failed to revoke access tokens: %w", err)
	}

	s.log.Info("all sessions ended", zap.Uint("user_id", userID), zap.Int64("sessions", n))
	return n, nil
}

func (s *Service) ActiveSessions(ctx context.Context, userID uint) ([]Session, error) {
	return s.repo.ListActiveSessions(ctx, userID, s.now())
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	user, err := s.repo.GetUserByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return s.repo.MarkEmailVerified(ctx, user.ID)
}

// RequestPasswordReset mails a reset token when the email is known. The
// outcome is never reported to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	if user.PasswordHash == ExternalPasswordHash {
		return nil
	}

	token, err := generateOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.repo.SetPasswordResetToken(ctx, user.ID, token, s.now().Add(s.config.PasswordResetDuration)); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.log.Warn("failed to send password reset email",
			zap.Uint("user_id", user.ID),
			zap.Error(err))
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" {
		return ErrInvalidToken
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}

	user, err := s.repo.GetUserByResetToken(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidToken
		}
		return err
	}

	return s.replacePassword(ctx, user.ID, password)
}

func (s *Service) ChangePassword(ctx context.Context, userID uint, current, password string) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash == ExternalPasswordHash || s.compare([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}

	return s.replacePassword(ctx, user.ID, password)
}

func (s *Service) replacePassword(ctx context.Context, userID uint, password string) error {
	hash, err := HashPassword(password, s.bcryptCost())
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if _, err := s.LogoutAll(ctx, userID); err != nil {
		return err
	}
	return nil
}

// CleanupExpiredSessions removes sessions whose expiry has passed.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, s.now())
}
