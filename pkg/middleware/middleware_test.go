package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirumala-karthikeya/chat-pro/pkg/errors"
	"github.com/tirumala-karthikeya/chat-pro/pkg/jwt"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func engine(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.GET("/x", mw, func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func get(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(logger.Discard(), RateLimiterOptions{Limit: 1, Burst: 2})
	r := engine(rl.Middleware())

	assert.Equal(t, http.StatusOK, get(r, "").Code)
	assert.Equal(t, http.StatusOK, get(r, "").Code)

	w := get(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(logger.Discard(), RateLimiterOptions{ExpiryDuration: time.Minute})
	rl.getLimiter("a")
	rl.sweep(time.Now())
	assert.Len(t, rl.clients, 1)
	rl.sweep(time.Now().Add(2 * time.Minute))
	assert.Empty(t, rl.clients)
}

func TestRequireAdmin(t *testing.T) {
	svc, err := jwt.NewService("k", time.Hour)
	require.NoError(t, err)
	r := engine(RequireAdmin(svc, logger.Discard()))

	admin, err := svc.GenerateToken("ops", jwt.RoleAdmin)
	require.NoError(t, err)
	viewer, err := svc.GenerateToken("bob", "viewer")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer nope").Code)
	assert.Equal(t, http.StatusForbidden, get(r, "Bearer "+viewer).Code)
	assert.Equal(t, http.StatusOK, get(r, "Bearer "+admin).Code)
}
