package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Component is the last observed state of one checked dependency.
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check probes one component.
type Check func(ctx context.Context) (Status, string, error)

type registered struct {
	check    Check
	critical bool
}

// Checker runs registered checks and keeps their latest results.
type Checker struct {
	mu         sync.RWMutex
	checks     map[string]registered
	components map[string]*Component
	timeout    time.Duration
	log        *logger.Logger
	onChange   func(healthy bool)
}

func NewChecker(log *logger.Logger, timeout time.Duration) *Checker {
	if log == nil {
		log = logger.GetGlobal()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:     make(map[string]registered),
		components: make(map[string]*Component),
		timeout:    timeout,
		log:        log,
	}
}

// OnChange is called after every run with the overall result.
func (c *Checker) OnChange(fn func(healthy bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// RegisterCheck adds a check. A critical component that is down makes the
// whole system unhealthy.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = registered{check: check, critical: critical}
	c.components[name] = &Component{Name: name, Status: StatusDown, Description: "Not checked yet"}
}

// RunChecks executes every check once.
func (c *Checker) RunChecks(ctx context.Context) {
	c.mu.RLock()
	checks := make(map[string]registered, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()

	results := make(map[string]*Component, len(checks))
	for name, r := range checks {
		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		status, description, err := r.check(cctx)
		cancel()

		comp := &Component{Name: name, Status: status, Description: description, LastChecked: time.Now()}
		if err != nil {
			comp.Error = err.Error()
			c.log.Warn("Health check failed", "component", name, "status", string(status), "error", err.Error())
		}
		results[name] = comp
	}

	c.mu.Lock()
	for name, comp := range results {
		c.components[name] = comp
	}
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(c.IsSystemHealthy())
	}
}

// Start runs the checks now and then every period until ctx is done.
func (c *Checker) Start(ctx context.Context, period time.Duration) {
	go func() {
		c.RunChecks(ctx)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunChecks(ctx)
			}
		}
	}()
}

// GetStatus returns a copy of the latest results.
func (c *Checker) GetStatus() map[string]Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Component, len(c.components))
	for k, v := range c.components {
		out[k] = *v
	}
	return out
}

// IsSystemHealthy reports whether no critical component is down.
func (c *Checker) IsSystemHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, comp := range c.components {
		if comp.Status == StatusDown && c.checks[name].critical {
			return false
		}
	}
	return true
}

// HTTPHandler serves the component report, 503 when unhealthy.
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		healthy := c.IsSystemHealthy()
		status := "ok"
		code := http.StatusOK
		if !healthy {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		err := json.NewEncoder(w).Encode(map[string]any{
			"status":     status,
			"timestamp":  time.Now(),
			"components": c.GetStatus(),
		})
		if err != nil {
			c.log.Error("Failed to encode health check response", "error", err.Error())
		}
	}
}

// RegisterAPICheck probes endpoint with GET. Any answer below 500 means
// the API is reachable.
func (c *Checker) RegisterAPICheck(name, endpoint string, client *http.Client) {
	if client == nil {
		client = http.DefaultClient
	}
	c.RegisterCheck(fmt.Sprintf("api-%s", name), false, func(ctx context.Context) (Status, string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return StatusDown, "Bad endpoint", err
		}
		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return StatusDown, "API request failed", err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return StatusDegraded, fmt.Sprintf("API returned status %d", resp.StatusCode),
				fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return StatusUp, fmt.Sprintf("API is responding (latency: %s)", time.Since(start).Round(time.Millisecond)), nil
	})
}
