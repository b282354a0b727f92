package notify

import (
	"sync"
	"sync/atomic"
	"time"
)

type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerOpen
	CircuitBreakerHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after threshold consecutive failures and lets a single
// trial call through once cooldown has passed.
type CircuitBreaker struct {
	threshold int64
	cooldown  time.Duration
	now       func() time.Time

	failures atomic.Int64

	mu       sync.Mutex
	state    CircuitBreakerState
	openedAt time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &CircuitBreaker{threshold: int64(threshold), cooldown: cooldown, now: time.Now}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = CircuitBreakerHalfOpen
		return true
	case CircuitBreakerHalfOpen:
		// one trial call at a time
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.failures.Store(0)
	cb.mu.Lock()
	cb.state = CircuitBreakerClosed
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) RecordFailure() {
	n := cb.failures.Add(1)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitBreakerHalfOpen || n >= cb.threshold {
		cb.state = CircuitBreakerOpen
		cb.openedAt = cb.now()
	}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
