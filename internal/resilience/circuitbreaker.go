// Package resilience keeps a failing upstream provider from taking every
// request down with it.
//
// [CircuitBreaker] stops calling a provider after repeated failures and
// probes it again once a cool-down has passed. [FallbackGroup] chains several
// providers of the same kind, each behind its own breaker, and tries them in
// order. [SpeakerFallback] and [LLMFallback] apply this to the speech and
// LLM provider interfaces.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the protected function while a
// breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the mode a [CircuitBreaker] is in.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout has elapsed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Defaults for zero [CircuitBreakerConfig] fields.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the provider. The
	// default ignores cancelled and expired contexts, which say nothing about
	// the provider's health.
	IsFailure func(error) bool
}

// CircuitBreaker is a three-state breaker.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	isFailure    func(error) bool
	now          func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeWins int
}

// NewCircuitBreaker returns a closed breaker. Zero config fields take the
// package defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		isFailure:    cfg.IsFailure,
		now:          time.Now,
	}
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute calls fn unless the breaker is open, in which case it returns
// [ErrCircuitOpen].
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes, cb.probeWins = 0, 0
		slog.Info("circuit half-open, probing provider", "name", cb.name)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && cb.isFailure(err)
	switch {
	case failed && probe:
		cb.trip()
		slog.Warn("circuit re-opened after failed probe", "name", cb.name, "err", err)
	case failed:
		cb.failures++
		if cb.failures >= cb.maxFailures && cb.state == StateClosed {
			cb.trip()
			slog.Warn("circuit opened", "name", cb.name, "failures", cb.failures, "err", err)
		}
	case probe:
		if err != nil {
			// Ignored errors neither close nor re-open; hand the slot back.
			cb.probes--
			return
		}
		cb.probeWins++
		if cb.probeWins >= cb.halfOpenMax {
			cb.closeLocked()
			slog.Info("circuit closed after successful probes", "name", cb.name)
		}
	case err == nil:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.failures = cb.maxFailures
}

func (cb *CircuitBreaker) closeLocked() {
	cb.state = StateClosed
	cb.failures = 0
	cb.probes, cb.probeWins = 0, 0
}

// State reports the current state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.closeLocked()
	cb.mu.Unlock()
	slog.Info("circuit reset", "name", cb.name)
}
