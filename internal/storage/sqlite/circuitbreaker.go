package sqlite

import (
	"errors"
	"sync"
	"time"
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops hammering a failing database. Only errors for which
// countsAsFailure returns true move it toward OPEN; domain errors such as a
// missing request pass straight through.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           BreakerState
	failures        int
	threshold       int
	resetTimeout    time.Duration
	openedAt        time.Time
	nowFunc         func() time.Time
	countsAsFailure func(error) bool
	onChange        func(from, to BreakerState)
	pending         []func()
}

func NewCircuitBreaker(threshold int, resetTimeout time.Duration, countsAsFailure func(error) bool) *CircuitBreaker {
	if countsAsFailure == nil {
		countsAsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		threshold:       threshold,
		resetTimeout:    resetTimeout,
		nowFunc:         time.Now,
		countsAsFailure: countsAsFailure,
	}
}

// OnStateChange registers a callback invoked (outside the lock) on every
// transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to BreakerState)) {
	cb.mu.Lock()
	cb.onChange = fn
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if cb.nowFunc().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
	case StateHalfOpen:
		// one probe at a time
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	probing := cb.state == StateHalfOpen
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	failed := err != nil && cb.countsAsFailure(err)
	switch {
	case probing && failed:
		cb.openedAt = cb.nowFunc()
		cb.setState(StateOpen)
	case probing:
		cb.failures = 0
		cb.setState(StateClosed)
	case failed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.openedAt = cb.nowFunc()
			cb.setState(StateOpen)
		}
	default:
		cb.failures = 0
	}
	notify := cb.pending
	cb.pending = nil
	cb.mu.Unlock()

	for _, n := range notify {
		n()
	}
	return err
}

// setState must be called with mu held; callbacks are queued and run by
// Execute after unlocking.
func (cb *CircuitBreaker) setState(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if fn := cb.onChange; fn != nil {
		cb.pending = append(cb.pending, func() { fn(from, to) })
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
