package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no member of a [FallbackGroup] produced a
// result. The last member's error is wrapped alongside it.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig is the breaker template applied to every group member. Name
// is overwritten with the member name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds providers of one kind in preference order, each guarded
// by its own [CircuitBreaker].
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup creates a group whose first member is primary.
func NewFallbackGroup[T any](primary T, name string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(name, primary)
	return g
}

// AddFallback appends a member tried after all existing ones. It must not be
// called concurrently with [FallbackGroup.Execute] or [Call].
func (g *FallbackGroup[T]) AddFallback(name string, value T) {
	bc := g.cfg.CircuitBreaker
	bc.Name = name
	g.members = append(g.members, member[T]{value: value, breaker: NewCircuitBreaker(bc)})
}

// Names returns the member names in the order they are tried.
func (g *FallbackGroup[T]) Names() []string {
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.breaker.Name()
	}
	return names
}

// Breaker returns the breaker guarding the named member, or nil.
func (g *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for _, m := range g.members {
		if m.breaker.Name() == name {
			return m.breaker
		}
	}
	return nil
}

// Execute runs fn against each member until one succeeds.
func (g *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := Call(ctx, g, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// Call runs fn against each member of g until one succeeds and returns its
// result. Members with an open breaker are skipped. It stops early when ctx
// is done.
func Call[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, m := range g.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var out R
		err := m.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(ctx, m.value)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("provider skipped, circuit open", "provider", m.breaker.Name())
			continue
		}
		slog.Warn("provider failed, trying next", "provider", m.breaker.Name(), "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
