// Package translate streams LLM translations between two languages.
package translate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MrWong99/dialoguelab/internal/observe"
	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
)

const (
	DefaultModel       = "gpt-4.1-nano"
	DefaultTemperature = 0.2
	DefaultMaxChars    = 5000

	// UnknownLanguageLabel names a language that has neither a label nor a code.
	UnknownLanguageLabel = "the original language"
)

// ErrInvalidRequest is matched by every request validation error. The message
// of such an error is safe to show to end users.
var ErrInvalidRequest = errors.New("invalid translation request")

// ErrNotConfigured is returned when no LLM provider is available.
var ErrNotConfigured = errors.New("translate: no LLM provider configured")

var (
	ErrTextRequired      error = invalidError("Text is required for translation.")
	ErrLanguagesRequired error = invalidError("Source and target languages are required.")
)

type invalidError string

func (e invalidError) Error() string        { return string(e) }
func (e invalidError) Is(target error) bool { return target == ErrInvalidRequest }

// Request is the client payload for a translation.
type Request struct {
	Text                string `json:"text"`
	SourceLanguage      string `json:"sourceLanguage"`
	TargetLanguage      string `json:"targetLanguage"`
	SourceLanguageLabel string `json:"sourceLanguageLabel,omitempty"`
	TargetLanguageLabel string `json:"targetLanguageLabel,omitempty"`
}

// Validate trims req in place and checks it. Text must hold between 1 and
// maxChars runes; both languages are required.
func (r *Request) Validate(maxChars int) error {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	r.Text = strings.TrimSpace(r.Text)
	r.SourceLanguage = strings.TrimSpace(r.SourceLanguage)
	r.TargetLanguage = strings.TrimSpace(r.TargetLanguage)

	if r.Text == "" {
		return ErrTextRequired
	}
	if len([]rune(r.Text)) > maxChars {
		return invalidError(fmt.Sprintf("Text exceeds the %d character limit.", maxChars))
	}
	if r.SourceLanguage == "" || r.TargetLanguage == "" {
		return ErrLanguagesRequired
	}
	return nil
}

// Label returns how a language is named in the prompt: the explicit label
// when given, else the upper-cased code, else [UnknownLanguageLabel].
func Label(code, label string) string {
	if l := strings.TrimSpace(label); l != "" {
		return l
	}
	if c := strings.TrimSpace(code); c != "" {
		return strings.ToUpper(c)
	}
	return UnknownLanguageLabel
}

// DisplayLabel is like [Label] but names well-formed BCP 47 codes in English
// ("fr" becomes "French") before falling back to the upper-cased code.
func DisplayLabel(code, label string) string {
	if l := strings.TrimSpace(label); l != "" {
		return l
	}
	c := strings.TrimSpace(code)
	if tag, err := language.Parse(c); err == nil && c != "" {
		if name := display.English.Tags().Name(tag); name != "" {
			return name
		}
	}
	return Label(c, "")
}

// SystemPrompt renders the interpreter instructions.
func SystemPrompt(sourceLabel, targetLabel string) string {
	return strings.Join([]string{
		"You are a professional interpreter.",
		fmt.Sprintf("Translate from %s into %s.", sourceLabel, targetLabel),
		"Preserve tone and formatting, keep proper nouns intact, and respond with translation only.",
	}, " ")
}

// UserMessage renders the message carrying the text to translate.
func UserMessage(text string) string {
	return "Translate the following text:\n\n" + text
}

// Option is a functional option for [Service].
type Option func(*Service)

// WithTemperature overrides [DefaultTemperature].
func WithTemperature(t float64) Option {
	return func(s *Service) { s.SetTemperature(t) }
}

// WithMaxChars overrides the text length limit.
func WithMaxChars(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxChars = n
		}
	}
}

// WithDisplayNames makes the service name languages by their English display
// name when the client sent no label.
func WithDisplayNames(enabled bool) Option {
	return func(s *Service) { s.displayNames = enabled }
}

// WithMetrics records LLM latency and outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithProviderName sets the provider name used in metrics. Default "llm".
func WithProviderName(name string) Option {
	return func(s *Service) { s.providerName = name }
}

// Service translates text. It is safe for concurrent use.
type Service struct {
	provider     llm.Provider
	providerName string
	temperature  atomic.Uint64 // math.Float64bits
	maxChars     int
	displayNames bool
	metrics      *observe.Metrics
}

// New returns a Service backed by p. A nil p yields a Service whose calls
// fail with [ErrNotConfigured].
func New(p llm.Provider, opts ...Option) *Service {
	s := &Service{
		provider:     p,
		providerName: "llm",
		maxChars:     DefaultMaxChars,
	}
	s.SetTemperature(DefaultTemperature)
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetTemperature changes the sampling temperature for subsequent requests.
func (s *Service) SetTemperature(t float64) { s.temperature.Store(math.Float64bits(t)) }

// Temperature returns the current sampling temperature.
func (s *Service) Temperature() float64 { return math.Float64frombits(s.temperature.Load()) }

// CompletionRequest validates req and builds the request sent to the model.
func (s *Service) CompletionRequest(req Request) (llm.CompletionRequest, error) {
	if err := req.Validate(s.maxChars); err != nil {
		return llm.CompletionRequest{}, err
	}
	label := Label
	if s.displayNames {
		label = DisplayLabel
	}
	return llm.CompletionRequest{
		SystemPrompt: SystemPrompt(
			label(req.SourceLanguage, req.SourceLanguageLabel),
			label(req.TargetLanguage, req.TargetLanguageLabel),
		),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: UserMessage(req.Text)}},
		Temperature: s.Temperature(),
	}, nil
}

// Stream validates req and starts the translation. Validation errors match
// [ErrInvalidRequest].
func (s *Service) Stream(ctx context.Context, req Request) (<-chan llm.Chunk, error) {
	creq, err := s.CompletionRequest(req)
	if err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, ErrNotConfigured
	}

	ctx, call := observe.StartCall(ctx, s.metrics, "llm", s.providerName, "translate")
	ch, err := s.provider.StreamCompletion(ctx, creq)
	if err != nil {
		call.End(err)
		return nil, fmt.Errorf("translate: start completion: %w", err)
	}

	out := make(chan llm.Chunk, cap(ch))
	go func() {
		defer close(out)
		var streamErr error
		defer func() { call.End(streamErr) }()
		for c := range ch {
			if err := c.Err(); err != nil {
				streamErr = err
				observe.Logger(ctx).Warn("translate: stream failed", "err", err)
			}
			select {
			case out <- c:
			case <-ctx.Done():
				streamErr = ctx.Err()
				return
			}
		}
	}()
	return out, nil
}

// Translate runs a translation to completion and returns the trimmed result.
func (s *Service) Translate(ctx context.Context, req Request) (string, error) {
	ch, err := s.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	text, err := llm.Collect(ctx, ch)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return strings.TrimSpace(text), nil
}
