package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	llm      map[string]func(ProviderEntry) (llm.Provider, error)
	tts      map[string]func(ProviderEntry) (tts.Provider, error)
	speakers map[string]func(ProviderEntry) (tts.Speaker, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:      make(map[string]func(ProviderEntry) (llm.Provider, error)),
		tts:      make(map[string]func(ProviderEntry) (tts.Provider, error)),
		speakers: make(map[string]func(ProviderEntry) (tts.Speaker, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a full speech provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterSpeaker registers a single-utterance speaker factory under name.
// Speakers serve as pronunciation fallbacks.
func (r *Registry) RegisterSpeaker(name string, factory func(ProviderEntry) (tts.Speaker, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speakers[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateTTS instantiates a speech provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry)
}

// CreateSpeaker instantiates a speaker. Names registered only as full
// providers are accepted too.
func (r *Registry) CreateSpeaker(entry ProviderEntry) (tts.Speaker, error) {
	s, err := create(r, r.speakers, "speaker", entry)
	if !errors.Is(err, ErrProviderNotRegistered) {
		return s, err
	}
	p, perr := r.CreateTTS(entry)
	if perr != nil {
		if errors.Is(perr, ErrProviderNotRegistered) {
			return nil, err
		}
		return nil, perr
	}
	return p, nil
}

// LLMNames returns the registered LLM provider names, sorted.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.llm))
}

func create[T any](r *Registry, m map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}
