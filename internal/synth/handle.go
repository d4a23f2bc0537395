package synth

import (
	"fmt"
	"sync"
)

// Handle is a provider that is built on first use and reused afterwards.
// The build function runs at most once; its error is cached as well, so a
// misconfigured provider fails every call the same way without retrying the
// construction.
//
// A nil *Handle is valid and reports [ErrNotConfigured].
type Handle[T any] struct {
	once  sync.Once
	build func() (T, error)
	value T
	err   error
}

// NewHandle returns a Handle that calls build on first use.
func NewHandle[T any](build func() (T, error)) *Handle[T] {
	return &Handle[T]{build: build}
}

// Ready returns a Handle that already holds v.
func Ready[T any](v T) *Handle[T] {
	h := &Handle[T]{value: v}
	h.once.Do(func() {})
	return h
}

// Get returns the provider, building it if needed.
func (h *Handle[T]) Get() (T, error) {
	if h == nil {
		var zero T
		return zero, ErrNotConfigured
	}
	h.once.Do(func() {
		if h.build == nil {
			h.err = ErrNotConfigured
			return
		}
		h.value, h.err = h.build()
		if h.err != nil {
			h.err = fmt.Errorf("%w: %w", ErrNotConfigured, h.err)
		}
	})
	return h.value, h.err
}
