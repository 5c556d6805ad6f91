package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter(t *testing.T, rate string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	l, err := New(rate, zap.NewNop())
	require.NoError(t, err)

	r := gin.New()
	r.POST("/auth/login", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/auth/refresh", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func do(r *gin.Engine, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLimiter_Middleware(t *testing.T) {
	r := newRouter(t, "2-M")

	assert.Equal(t, http.StatusOK, do(r, "/auth/login", "10.0.0.1").Code)

	w := do(r, "/auth/login", "10.0.0.1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusTooManyRequests, do(r, "/auth/login", "10.0.0.1").Code)

	// Separate buckets per client and per route
	assert.Equal(t, http.StatusOK, do(r, "/auth/login", "10.0.0.2").Code)
	assert.Equal(t, http.StatusOK, do(r, "/auth/refresh", "10.0.0.1").Code)
}

func TestNew_InvalidRate(t *testing.T) {
	_, err := New("ten per minute", zap.NewNop())
	assert.Error(t, err)
}
