package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type contextKey string

const (
	// IdentityContextKey stores the caller's *Identity in the request context
	IdentityContextKey contextKey = "identity"

	bearerPrefix = "Bearer "
)

type AuthMiddleware struct {
	service *Service
	log     *zap.Logger
	handler *Handler
}

func NewAuthMiddleware(service *Service, handler *Handler, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		service: service,
		handler: handler,
		log:     log,
	}
}

// Required rejects requests without a valid bearer token.
func (m *AuthMiddleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error: "Access token required",
				Code:  "MISSING_TOKEN",
			})
			return
		}

		id, err := m.service.Authenticate(c.Request.Context(), token)
		if err != nil {
			m.log.Debug("authentication failed",
				zap.String("path", c.FullPath()),
				zap.Error(err))
			m.handler.writeError(c, err)
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// Optional attaches an identity when a valid bearer token is present and
// carries on either way.
func (m *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if id, err := m.service.Authenticate(c.Request.Context(), token); err == nil {
				c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
			}
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	return token, token != ""
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, id)
}

// IdentityFromContext returns the identity placed by the auth middleware.
func IdentityFromContext(ctx context.Context) (*Identity, error) {
	id, ok := ctx.Value(IdentityContextKey).(*Identity)
	if !ok || id == nil {
		return nil, errors.New("identity not found in context")
	}
	return id, nil
}
