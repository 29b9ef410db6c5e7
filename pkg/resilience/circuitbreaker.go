package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

// State is the breaker position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds breaker tuning.
type Config struct {
	Name string
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint
	// SuccessThreshold trial successes in half-open close it again.
	SuccessThreshold uint
	// RetryTimeout is how long the circuit stays open before a trial call.
	RetryTimeout time.Duration
	// IsFailure decides whether an error counts against the circuit.
	// Nil means every non-nil error counts.
	IsFailure func(error) bool
	// OnStateChange, when set, is called after each transition with the
	// breaker lock released.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a breaker that opens after five failures and
// retries after a minute.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RetryTimeout:     60 * time.Second,
	}
}

// CircuitBreaker guards calls to a dependency that may be unavailable.
type CircuitBreaker struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu              sync.Mutex
	state           State
	failures        uint
	successes       uint
	inFlightTrials  uint
	lastFailure     time.Time
	nextAttempt     time.Time
	totalRequests   uint64
	totalFailures   uint64
	totalRejections uint64
	timesOpened     uint64
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg Config, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &CircuitBreaker{cfg: cfg, log: log, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the circuit is open. Errors that IsFailure
// rejects are returned unchanged but count as successes.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	if err != nil && cb.countsAsFailure(err) {
		cb.record(false)
		return err
	}
	cb.record(true)
	return err
}

func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	if cb.cfg.IsFailure == nil {
		return true
	}
	return cb.cfg.IsFailure(err)
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	from := cb.state
	ok := false

	switch cb.state {
	case StateClosed:
		ok = true
	case StateOpen:
		if !cb.now().Before(cb.nextAttempt) {
			cb.state = StateHalfOpen
			cb.successes = 0
			cb.inFlightTrials = 1
			ok = true
		}
	case StateHalfOpen:
		if cb.successes+cb.inFlightTrials < cb.cfg.SuccessThreshold {
			cb.inFlightTrials++
			ok = true
		}
	}
	if ok {
		cb.totalRequests++
	} else {
		cb.totalRejections++
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return ok
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	from := cb.state

	if cb.state == StateHalfOpen && cb.inFlightTrials > 0 {
		cb.inFlightTrials--
	}
	if success {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.state = StateClosed
				cb.failures = 0
				cb.successes = 0
			}
		}
	} else {
		cb.totalFailures++
		cb.lastFailure = cb.now()
		switch cb.state {
		case StateClosed:
			cb.failures++
			if cb.failures >= cb.cfg.FailureThreshold {
				cb.open()
			}
		case StateHalfOpen:
			cb.open()
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// open must be called with mu held.
func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.timesOpened++
	cb.inFlightTrials = 0
	cb.nextAttempt = cb.now().Add(cb.cfg.RetryTimeout)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to {
		return
	}
	cb.log.Info("circuit breaker state changed", "name", cb.cfg.Name, "from", string(from), "to", string(to))
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current position. An open breaker whose retry timeout
// elapsed still reports open until the next call is attempted.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot is a point-in-time view of the breaker counters.
type Snapshot struct {
	Name                string     `json:"name"`
	State               State      `json:"state"`
	ConsecutiveFailures uint       `json:"consecutive_failures"`
	TotalRequests       uint64     `json:"total_requests"`
	TotalFailures       uint64     `json:"total_failures"`
	TotalRejections     uint64     `json:"total_rejections"`
	TimesOpened         uint64     `json:"times_opened"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
	NextAttempt         *time.Time `json:"next_attempt,omitempty"`
}

// Snapshot returns the current counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	snap := Snapshot{
		Name:                cb.cfg.Name,
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		TotalRequests:       cb.totalRequests,
		TotalFailures:       cb.totalFailures,
		TotalRejections:     cb.totalRejections,
		TimesOpened:         cb.timesOpened,
	}
	if !cb.lastFailure.IsZero() {
		t := cb.lastFailure
		snap.LastFailure = &t
	}
	if cb.state == StateOpen {
		t := cb.nextAttempt
		snap.NextAttempt = &t
	}
	return snap
}
