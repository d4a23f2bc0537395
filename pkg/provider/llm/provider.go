// Package llm defines the Provider interface for Large Language Model backends.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance, ...) and exposes the two calls the dialogue and translation
// services need: a streamed completion and a blocking one.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"
	"strings"
)

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishReasonError marks a chunk that carries a mid-stream backend error in
// its Text field. It is always the last chunk of a stream.
const FinishReasonError = "error"

// Message is one turn of a chat conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the plain-text body of the message.
	Content string

	// Name optionally identifies the author of an assistant or user message.
	Name string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is usually from
	// the user and drives the response.
	Messages []Message

	// SystemPrompt is prepended as a system message when non-empty.
	SystemPrompt string

	// Temperature controls sampling randomness. Zero leaves the backend default.
	Temperature float64

	// MaxTokens caps the response length. Zero leaves the backend default.
	MaxTokens int
}

// Chunk is one incremental piece of a streamed completion.
type Chunk struct {
	// Text is the content delta. For an error chunk it holds the error message.
	Text string

	// FinishReason is set on the final chunk ("stop", "length", or
	// FinishReasonError).
	FinishReason string
}

// Err returns the backend error carried by an error chunk, or nil.
func (c Chunk) Err() error {
	if c.FinishReason != FinishReasonError {
		return nil
	}
	return &StreamError{Message: c.Text}
}

// StreamError is a backend failure reported after a stream has started.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "llm: stream: " + e.Message
}

// CompletionResponse is the result of a blocking completion.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion sends req and returns a channel of incremental chunks.
	// A backend failure after the stream has started is delivered as a final
	// chunk with FinishReason == FinishReasonError.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and blocks until the full response is available.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Collect drains a completion stream into a single string. It returns the
// text received so far together with the first error chunk, if any.
func Collect(ctx context.Context, ch <-chan Chunk) (string, error) {
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return b.String(), ctx.Err()
		case c, ok := <-ch:
			if !ok {
				return b.String(), nil
			}
			if err := c.Err(); err != nil {
				return b.String(), err
			}
			b.WriteString(c.Text)
		}
	}
}
