package guard

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	LoginPath       = "/login"
	VerifyEmailPath = "/verify-email"
)

type DecisionKind int

const (
	Render DecisionKind = iota
	RedirectLogin
	RedirectVerifyEmail
)

func (k DecisionKind) String() string {
	switch k {
	case Render:
		return "render"
	case RedirectLogin:
		return "redirect-login"
	case RedirectVerifyEmail:
		return "redirect-verify-email"
	default:
		return "unknown"
	}
}

// Decision is what a protected view should do. User is set for Render and
// RedirectVerifyEmail. From is the requested path on either redirect.
type Decision struct {
	Kind DecisionKind
	User *User
	From string
}

// Location is the path to navigate to, or "" when the view should render.
func (d Decision) Location() string {
	switch d.Kind {
	case RedirectLogin:
		return withFrom(LoginPath, d.From)
	case RedirectVerifyEmail:
		return withFrom(VerifyEmailPath, d.From)
	default:
		return ""
	}
}

func withFrom(location, from string) string {
	if from == "" {
		return location
	}
	return location + "?from=" + url.QueryEscape(from)
}

// DefaultTimeout bounds one shared verification when New is given none.
const DefaultTimeout = 10 * time.Second

type verified struct {
	user  *User
	token string
	at    time.Time
}

// Guard decides whether a protected view may render. It fails closed: any
// failed verification clears the stored session and redirects to login.
type Guard struct {
	store    SessionStore
	api      API
	log      *zap.Logger
	debounce time.Duration
	timeout  time.Duration
	now      func() time.Time

	group singleflight.Group
	mu    sync.Mutex
	last  *verified
}

func New(store SessionStore, api API, debounce time.Duration, log *zap.Logger) *Guard {
	return &Guard{
		store:    store,
		api:      api,
		log:      log,
		debounce: debounce,
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
}

// WithTimeout sets the bound on one shared verification round trip.
func (g *Guard) WithTimeout(d time.Duration) *Guard {
	if d > 0 {
		g.timeout = d
	}
	return g
}

func (g *Guard) Check(ctx context.Context, path string, requireVerified bool) Decision {
	user, err := g.verify(ctx)
	if err != nil {
		// An abandoned navigation proves nothing about the session.
		if ctx.Err() != nil {
			g.log.Debug("auth check abandoned", zap.String("path", path), zap.Error(err))
			return Decision{Kind: RedirectLogin, From: path}
		}
		g.failClosed(ctx, path, err)
		return Decision{Kind: RedirectLogin, From: path}
	}

	if requireVerified && !user.EmailVerified {
		return Decision{Kind: RedirectVerifyEmail, User: user, From: path}
	}
	return Decision{Kind: Render, User: user}
}

func (g *Guard) verify(ctx context.Context) (*User, error) {
	sess, err := g.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if user := g.cached(sess.AccessToken); user != nil {
		return user, nil
	}

	// Rapid navigations share one round trip. The session is reloaded inside
	// the flight so a late caller never replays a rotated refresh token. The
	// flight outlives any single caller; each caller only stops waiting.
	ch := g.group.DoChan("verify", func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		current, err := g.store.Load(shared)
		if err != nil {
			return nil, err
		}
		if user := g.cached(current.AccessToken); user != nil {
			return user, nil
		}
		return g.verifySession(shared, current)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*User), nil
	}
}

func (g *Guard) verifySession(ctx context.Context, sess Session) (*User, error) {
	if sess.AccessToken == "" || sess.User == nil {
		return g.rotate(ctx, sess)
	}

	user, err := g.api.Me(ctx, sess.AccessToken)
	switch {
	case err == nil:
		g.remember(user, sess.AccessToken)
		return user, nil
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrMalformedResponse):
		return g.rotate(ctx, sess)
	default:
		return nil, err
	}
}

// rotate makes the single refresh attempt allowed per verification.
func (g *Guard) rotate(ctx context.Context, sess Session) (*User, error) {
	if sess.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	next, err := g.api.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		return nil, err
	}
	if err := g.store.Save(ctx, next); err != nil {
		return nil, err
	}

	g.remember(next.User, next.AccessToken)
	return next.User, nil
}

func (g *Guard) cached(token string) *User {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.last == nil || token == "" || g.last.token != token {
		return nil
	}
	if g.now().Sub(g.last.at) >= g.debounce {
		return nil
	}
	return g.last.user
}

func (g *Guard) remember(user *User, token string) {
	if g.debounce <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = &verified{user: user, token: token, at: g.now()}
}

// Invalidate drops the debounce cache, e.g. after logout.
func (g *Guard) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = nil
}

func (g *Guard) failClosed(ctx context.Context, path string, cause error) {
	g.Invalidate()

	var netErr *NetworkError
	if errors.As(cause, &netErr) {
		g.log.Warn("auth check failed on network error", zap.String("path", path), zap.Error(cause))
	} else {
		g.log.Info("auth check failed", zap.String("path", path), zap.Error(cause))
	}

	if err := g.store.Clear(ctx); err != nil {
		g.log.Error("failed to clear session", zap.Error(err))
	}
}
