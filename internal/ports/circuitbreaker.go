package ports

import (
	"context"
	"sync"
	"time"

	"github.com/ipiton-systems/autodev-engine/internal/domain"
)

// BreakerState is the current state of a CircuitBreaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a CircuitBreaker.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// CircuitBreaker wraps an LlmPort call with failure tracking, so a
// misbehaving or unreachable LLM backend is given time to recover
// instead of being hammered by every RequiresLLM decision.
type CircuitBreaker struct {
	mu              sync.RWMutex
	config          BreakerConfig
	state           BreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	name            string
}

// NewCircuitBreaker creates a breaker named name (used only for
// logging/metrics by callers) with the given config.
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config, state: BreakerClosed, name: name}
}

// CanAttempt reports whether a call may proceed right now.
func (cb *CircuitBreaker) CanAttempt() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	switch cb.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		return time.Since(cb.lastFailureTime) > cb.config.Timeout
	default:
		return false
	}
}

// RecordSuccess reports a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failureCount = 0
	case BreakerHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = BreakerClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	case BreakerOpen:
		if time.Since(cb.lastFailureTime) > cb.config.Timeout {
			cb.state = BreakerHalfOpen
			cb.successCount = 1
			cb.failureCount = 0
		}
	}
}

// RecordFailure reports a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case BreakerClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = BreakerOpen
		}
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.successCount = 0
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// BreakerLlmPort wraps an LlmPort with a CircuitBreaker, refusing to
// call through when the breaker is open.
type BreakerLlmPort struct {
	inner   LlmPort
	breaker *CircuitBreaker
}

// NewBreakerLlmPort wraps inner with a circuit breaker using config.
func NewBreakerLlmPort(inner LlmPort, config BreakerConfig) *BreakerLlmPort {
	return &BreakerLlmPort{inner: inner, breaker: NewCircuitBreaker("llm", config)}
}

// ErrBreakerOpen is returned by Complete when the breaker is open.
var ErrBreakerOpen = breakerOpenError{}

type breakerOpenError struct{}

func (breakerOpenError) Error() string { return "circuit breaker open: LLM backend unavailable" }

// Complete proxies to the wrapped LlmPort, short-circuiting with
// ErrBreakerOpen while the breaker is tripped.
func (p *BreakerLlmPort) Complete(ctx context.Context, req domain.LLMRequest) (string, error) {
	if !p.breaker.CanAttempt() {
		return "", ErrBreakerOpen
	}
	resp, err := p.inner.Complete(ctx, req)
	if err != nil {
		p.breaker.RecordFailure()
		return "", err
	}
	p.breaker.RecordSuccess()
	return resp, nil
}
