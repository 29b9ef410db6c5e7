package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
)

var errDown = errors.New("connection refused")

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(cfg, logger.Discard())
	cb.now = clock.now
	return cb, clock
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "db", FailureThreshold: 2, RetryTimeout: time.Minute})

	assert.ErrorIs(t, cb.Execute(func() error { return errDown }), errDown)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return errDown }), errDown)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	snap := cb.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	assert.EqualValues(t, 2, snap.TotalRequests)
	assert.EqualValues(t, 1, snap.TotalRejections)
	assert.EqualValues(t, 2, snap.ConsecutiveFailures)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	var transitions []State
	cb, clock := newTestBreaker(Config{
		Name:             "db",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		RetryTimeout:     30 * time.Second,
		OnStateChange:    func(_ string, _, to State) { transitions = append(transitions, to) },
	})

	require.Error(t, cb.Execute(func() error { return errDown }))
	clock.advance(31 * time.Second)

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(Config{Name: "db", FailureThreshold: 1, RetryTimeout: time.Second})

	require.Error(t, cb.Execute(func() error { return errDown }))
	clock.advance(2 * time.Second)
	require.Error(t, cb.Execute(func() error { return errDown }))

	assert.Equal(t, StateOpen, cb.State())
	snap := cb.Snapshot()
	assert.EqualValues(t, 2, snap.TimesOpened)
	assert.EqualValues(t, 2, snap.TotalFailures)
	require.NotNil(t, snap.NextAttempt)
	require.NotNil(t, snap.LastFailure)
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	errMissing := errors.New("not found")
	cb, _ := newTestBreaker(Config{
		Name:             "db",
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, errMissing) },
	})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errMissing }), errMissing)
	}
	assert.Equal(t, StateClosed, cb.State())
}
