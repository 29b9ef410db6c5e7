package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

func TestCheckerCriticalComponents(t *testing.T) {
	c := NewChecker(logger.Discard(), 0)
	storage := StatusUp
	c.RegisterCheck("storage", true, func(context.Context) (Status, string, error) {
		if storage == StatusDown {
			return StatusDown, "gone", errors.New("refused")
		}
		return storage, "fine", nil
	})
	c.RegisterCheck("extra", false, func(context.Context) (Status, string, error) {
		return StatusDown, "optional", nil
	})

	var seen []bool
	c.OnChange(func(healthy bool) { seen = append(seen, healthy) })

	c.RunChecks(context.Background())
	assert.True(t, c.IsSystemHealthy())

	storage = StatusDown
	c.RunChecks(context.Background())
	assert.False(t, c.IsSystemHealthy())
	assert.Equal(t, "refused", c.GetStatus()["storage"].Error)
	assert.Equal(t, []bool{true, false}, seen)
}

func TestHTTPHandler(t *testing.T) {
	c := NewChecker(logger.Discard(), 0)
	c.RegisterCheck("storage", true, func(context.Context) (Status, string, error) {
		return StatusDown, "", errors.New("x")
	})

	w := httptest.NewRecorder()
	c.HTTPHandler()(w, httptest.NewRequest(http.MethodGet, "/health/components", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "unchecked critical component counts as down")

	c.RunChecks(context.Background())
	w = httptest.NewRecorder()
	c.HTTPHandler()(w, httptest.NewRequest(http.MethodGet, "/health/components", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status     string               `json:"status"`
		Components map[string]Component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, StatusDown, body.Components["storage"].Status)
}

func TestAPICheck(t *testing.T) {
	var code atomic.Int32
	code.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(code.Load()))
	}))
	defer srv.Close()

	c := NewChecker(logger.Discard(), 0)
	c.RegisterAPICheck("upstream", srv.URL, srv.Client())

	c.RunChecks(context.Background())
	assert.Equal(t, StatusUp, c.GetStatus()["api-upstream"].Status)

	code.Store(http.StatusBadGateway)
	c.RunChecks(context.Background())
	assert.Equal(t, StatusDegraded, c.GetStatus()["api-upstream"].Status)
	assert.True(t, c.IsSystemHealthy())
}
