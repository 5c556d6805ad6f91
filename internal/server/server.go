package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/betterbeing/session-auth/internal/api"
	"github.com/betterbeing/session-auth/internal/auth"
	"github.com/betterbeing/session-auth/internal/config"
	"github.com/betterbeing/session-auth/internal/ratelimit"
)

type Server struct {
	config     *config.AppConfig
	log        *zap.Logger
	engine     *gin.Engine
	httpServer *http.Server
	stats      *auth.Stats
}

type Params struct {
	fx.In

	Config         *config.AppConfig
	Logger         *zap.Logger
	AuthHandler    *auth.Handler
	AuthMiddleware *auth.AuthMiddleware
	Stats          *auth.Stats
}

type route struct {
	method  string
	path    string
	handler gin.HandlerFunc
}

func isProtectedEndpoint(path string) bool {
	return !api.IsPublic(path)
}

func NewServer(p Params) (*Server, error) {
	gin.SetMode(p.Config.HTTP.Mode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(p.Logger.Named("http")))

	if err := engine.SetTrustedProxies(p.Config.HTTP.TrustedProxies); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	if len(p.Config.HTTP.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins: p.Config.HTTP.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Content-Type", "Authorization", "X-Device-Fingerprint"},
			ExposeHeaders: []string{
				"X-RateLimit-Limit",
				"X-RateLimit-Remaining",
				"X-RateLimit-Reset",
			},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	limiter, err := ratelimit.New(p.Config.HTTP.AuthRateLimit, p.Logger.Named("ratelimit"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		config: p.Config,
		log:    p.Logger,
		engine: engine,
		stats:  p.Stats,
	}

	h := p.AuthHandler
	routes := []route{
		{http.MethodPost, api.AuthRegister, h.Register},
		{http.MethodPost, api.AuthLogin, h.Login},
		{http.MethodPost, api.AuthRefresh, h.Refresh},
		{http.MethodGet, api.AuthMe, h.Me},
		{http.MethodPost, api.AuthLogout, h.Logout},
		{http.MethodPost, api.AuthLogoutAll, h.LogoutAll},
		{http.MethodGet, api.AuthSessions, h.Sessions},
		{http.MethodPost, api.AuthVerifyEmail, h.VerifyEmail},
		{http.MethodPost, api.AuthForgotPassword, h.ForgotPassword},
		{http.MethodPost, api.AuthResetPassword, h.ResetPassword},
		{http.MethodPost, api.AuthChangePassword, h.ChangePassword},
		{http.MethodGet, api.Health, s.health},
	}

	for _, rt := range routes {
		var chain []gin.HandlerFunc
		if api.IsRateLimited(rt.path) {
			chain = append(chain, limiter.Middleware())
		}
		switch {
		case isProtectedEndpoint(rt.path):
			chain = append(chain, p.AuthMiddleware.Required())
		case rt.path == api.AuthLogout:
			chain = append(chain, p.AuthMiddleware.Optional())
		}
		chain = append(chain, rt.handler)
		engine.Handle(rt.method, rt.path, chain...)
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(p.Config.Server.Host, p.Config.Server.Port),
		Handler:      engine,
		ReadTimeout:  p.Config.HTTP.ReadTimeout,
		WriteTimeout: p.Config.HTTP.WriteTimeout,
	}

	return s, nil
}

// Handler exposes the router for in-process use.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"stats":  s.stats.Snapshot(),
	})
}

// Listen binds the configured address so bind errors surface during startup.
func (s *Server) Listen() (net.Listener, error) {
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return lis, nil
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("Starting HTTP server",
		zap.String("address", lis.Addr().String()),
		zap.Object("config", serverConfigToField(s.config)),
	)

	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

func serverConfigToField(config *config.AppConfig) zapcore.ObjectMarshaler {
	return zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString("environment", os.Getenv("APP_ENV"))
		enc.AddString("gin_mode", config.HTTP.Mode)
		enc.AddString("identity_provider", config.Provider.Mode)
		enc.AddString("auth_rate_limit", config.HTTP.AuthRateLimit)
		enc.AddDuration("access_token_ttl", config.Auth.AccessTokenDuration)
		enc.AddDuration("refresh_token_ttl", config.Auth.RefreshTokenDuration)
		enc.AddBool("redis_enabled", config.Redis.Enabled)
		return nil
	})
}

func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")

	timeout := s.config.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
