package resilience

import (
	"context"

	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
)

var _ llm.Provider = (*LLMFallback)(nil)

// LLMFallback is an [llm.Provider] that fails over between backends. Only
// opening a stream is covered; errors reported inside a running stream reach
// the caller as error chunks.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// NewLLMFallback returns a fallback chain starting with primary.
func NewLLMFallback(primary llm.Provider, name string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, name, cfg)}
}

// AddFallback appends p to the chain.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.AddFallback(name, p)
}

// Names returns the backend names in the order they are tried.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// StreamCompletion implements [llm.Provider].
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Call(ctx, f.group, func(ctx context.Context, p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
