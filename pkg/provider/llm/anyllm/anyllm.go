// Package anyllm serves every non-OpenAI chat backend through
// github.com/mozilla-ai/any-llm-go, which speaks each vendor's API behind one
// completion interface.
//
//	p, err := anyllm.New("anthropic", "claude-haiku-4-5", anyllmlib.WithAPIKey(key))
//
// Hosted backends fall back to their usual environment variable
// (ANTHROPIC_API_KEY, GEMINI_API_KEY, ...) when no key option is given.
// Local backends ([Local]) take a base URL instead.
package anyllm

import (
	"context"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

type backendFactory func(...anyllmlib.Option) (anyllmlib.Provider, error)

// backends maps a lower-case backend name to its constructor. The
// constructors are generic over their concrete return type, so each is
// adapted to the shared interface.
var backends = map[string]backendFactory{
	"anthropic": adapt(anthropic.New),
	"deepseek":  adapt(deepseek.New),
	"gemini":    adapt(gemini.New),
	"groq":      adapt(groq.New),
	"llamacpp":  adapt(llamacpp.New),
	"llamafile": adapt(llamafile.New),
	"mistral":   adapt(mistral.New),
	"ollama":    adapt(ollama.New),
	"openai":    adapt(anyllmoai.New),
}

// local backends run next to the service and need no API key.
var local = map[string]bool{"ollama": true, "llamacpp": true, "llamafile": true}

func adapt[P anyllmlib.Provider](fn func(...anyllmlib.Option) (P, error)) backendFactory {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		return fn(opts...)
	}
}

// Names returns the supported backend names in sorted order.
func Names() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Local reports whether name is a locally hosted backend that is addressed by
// base URL and takes no API key.
func Local(name string) bool { return local[strings.ToLower(name)] }

// Provider implements [llm.Provider] over one any-llm backend and model.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New returns a Provider for the named backend. opts are passed through to
// the backend (anyllmlib.WithAPIKey, anyllmlib.WithBaseURL, ...).
func New(name, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: %q: model must not be empty", name)
	}
	factory, ok := backends[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	backend, err := factory(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", name, err)
	}
	return &Provider{backend: backend, name: strings.ToLower(name), model: model}, nil
}

// NewOllama returns a Provider for a local Ollama server, by default at
// http://localhost:11434.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

// Name returns the backend name.
func (p *Provider) Name() string { return p.name }

// Model returns the model name requests are sent to.
func (p *Provider) Model() string { return p.model }

// StreamCompletion implements [llm.Provider]. Only content deltas and the
// finish reason are forwarded; a backend error becomes the final chunk.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	chunks, errs := p.backend.CompletionStream(ctx, p.params(req))

	out := make(chan llm.Chunk, 32)
	go func() {
		defer close(out)
		send := func(c llm.Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for chunk := range chunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			c := chunk.Choices[0]
			if c.Delta.Content == "" && c.FinishReason == "" {
				continue
			}
			if !send(llm.Chunk{Text: c.Delta.Content, FinishReason: c.FinishReason}) {
				return
			}
		}
		if err := <-errs; err != nil {
			send(llm.Chunk{FinishReason: llm.FinishReasonError, Text: err.Error()})
		}
	}()
	return out, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.name)
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content, Name: m.Name})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	// Zero means "backend default" for both knobs.
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}
