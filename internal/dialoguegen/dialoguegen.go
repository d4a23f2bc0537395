// Package dialoguegen writes two-speaker practice dialogues with an LLM.
//
// A [Request] is normalized into a [Plan] (sanitized speakers, clamped turn
// count, resolved languages), which renders the system prompt and user
// message sent to the model. [Service.Stream] relays the model output as it
// is produced.
package dialoguegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MrWong99/dialoguelab/internal/observe"
	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
)

const (
	DefaultModel       = "gpt-4.1-mini"
	DefaultTemperature = 0.7
	DefaultMaxChars    = 5000

	DefaultTurns = 6
	MinTurns     = 2
	MaxTurns     = 16

	DefaultSpeakerA = "Speaker A"
	DefaultSpeakerB = "Speaker B"

	maxSpeakerRunes = 48
	defaultLanguage = "en"
)

// supportedLanguages are the languages a speaker may be asked to use.
var supportedLanguages = map[string]language.Tag{
	"en": language.English,
	"fr": language.French,
	"de": language.German,
	"pt": language.Portuguese,
}

// ErrInvalidRequest is matched by every request validation error. The message
// of such an error is safe to show to end users.
var ErrInvalidRequest = errors.New("invalid dialogue request")

// ErrNotConfigured is returned when no LLM provider is available.
var ErrNotConfigured = errors.New("dialoguegen: no LLM provider configured")

// ErrPromptRequired is returned for a blank prompt.
var ErrPromptRequired error = invalidError("Prompt is required.")

type invalidError string

func (e invalidError) Error() string        { return string(e) }
func (e invalidError) Is(target error) bool { return target == ErrInvalidRequest }

// Request is the client payload for a dialogue. TurnCount is a JSON number and
// may be fractional; nil selects [DefaultTurns].
type Request struct {
	Prompt           string   `json:"prompt"`
	SpeakerA         string   `json:"speakerA,omitempty"`
	SpeakerB         string   `json:"speakerB,omitempty"`
	TurnCount        *float64 `json:"turnCount,omitempty"`
	SpeakerALanguage string   `json:"speakerALanguage,omitempty"`
	SpeakerBLanguage string   `json:"speakerBLanguage,omitempty"`
}

// Plan is a validated, normalized dialogue request.
type Plan struct {
	Prompt    string
	SpeakerA  string
	SpeakerB  string
	Turns     int
	LanguageA string
	LanguageB string
}

// Normalize validates req and fills in defaults. The prompt is trimmed and
// must hold between 1 and maxChars runes.
func Normalize(req Request, maxChars int) (Plan, error) {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Plan{}, ErrPromptRequired
	}
	if n := len([]rune(prompt)); n > maxChars {
		return Plan{}, invalidError(fmt.Sprintf("Prompt exceeds the %d character limit.", maxChars))
	}
	return Plan{
		Prompt:    prompt,
		SpeakerA:  sanitizeSpeaker(req.SpeakerA, DefaultSpeakerA),
		SpeakerB:  sanitizeSpeaker(req.SpeakerB, DefaultSpeakerB),
		Turns:     turns(req.TurnCount),
		LanguageA: resolveLanguage(req.SpeakerALanguage),
		LanguageB: resolveLanguage(req.SpeakerBLanguage),
	}, nil
}

func sanitizeSpeaker(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	if r := []rune(name); len(r) > maxSpeakerRunes {
		return string(r[:maxSpeakerRunes])
	}
	return name
}

func turns(v *float64) int {
	if v == nil || math.IsNaN(*v) {
		return DefaultTurns
	}
	f := math.Floor(*v)
	switch {
	case f < MinTurns:
		return MinTurns
	case f > MaxTurns:
		return MaxTurns
	}
	return int(f)
}

func resolveLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if _, ok := supportedLanguages[code]; ok {
		return code
	}
	return defaultLanguage
}

// LanguageName returns the English display name of a supported language code.
func LanguageName(code string) string {
	return display.English.Tags().Name(supportedLanguages[resolveLanguage(code)])
}

// SupportedLanguages returns the language codes speakers can use.
func SupportedLanguages() []string {
	return []string{"de", "en", "fr", "pt"}
}

// SystemPrompt renders the instructions for the model.
func (p Plan) SystemPrompt() string {
	return strings.Join([]string{
		"You are an expert dialogue writer.",
		fmt.Sprintf("Write a realistic conversation with exactly %d turns (each speaker counts as one turn).", p.Turns),
		fmt.Sprintf("Alternate strictly between %s and %s.", p.SpeakerA, p.SpeakerB),
		fmt.Sprintf(`Format each turn as "%s: ..." or "%s: ...".`, p.SpeakerA, p.SpeakerB),
		p.languageInstruction(),
		"Keep each line concise (1-2 sentences) and avoid stage directions unless requested.",
	}, " ")
}

func (p Plan) languageInstruction() string {
	if p.LanguageA == p.LanguageB {
		return fmt.Sprintf("Both %s and %s should speak in %s.", p.SpeakerA, p.SpeakerB, LanguageName(p.LanguageA))
	}
	return fmt.Sprintf("%s should speak in %s, while %s should speak in %s.",
		p.SpeakerA, LanguageName(p.LanguageA), p.SpeakerB, LanguageName(p.LanguageB))
}

// UserMessage renders the scenario message for the model.
func (p Plan) UserMessage() string {
	return strings.Join([]string{
		"Scenario / guidance for the conversation:",
		p.Prompt,
		"",
		"Remember to alternate speakers and keep the conversation tight.",
	}, "\n")
}

// Option is a functional option for [Service].
type Option func(*Service)

// WithTemperature overrides [DefaultTemperature].
func WithTemperature(t float64) Option {
	return func(s *Service) { s.SetTemperature(t) }
}

// WithMaxChars overrides the prompt length limit.
func WithMaxChars(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxChars = n
		}
	}
}

// WithMetrics records LLM latency and outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithProviderName sets the provider name used in metrics. Default "llm".
func WithProviderName(name string) Option {
	return func(s *Service) { s.providerName = name }
}

// Service generates dialogues. It is safe for concurrent use.
type Service struct {
	provider     llm.Provider
	providerName string
	temperature  atomic.Uint64 // math.Float64bits
	maxChars     int
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

// Stream validates req and starts the completion. Validation errors match
// [ErrInvalidRequest]. The returned channel follows the [llm.Provider]
// contract: a failure after the stream started arrives as an error chunk.
func (s *Service) Stream(ctx context.Context, req Request) (<-chan llm.Chunk, error) {
	plan, err := Normalize(req, s.maxChars)
	if err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, ErrNotConfigured
	}

	log := observe.Logger(ctx)
	log.Debug("dialoguegen: generating", "turns", plan.Turns, "language_a", plan.LanguageA, "language_b", plan.LanguageB)

	ctx, call := observe.StartCall(ctx, s.metrics, "llm", s.providerName, "generate")
	ch, err := s.provider.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: plan.SystemPrompt(),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: plan.UserMessage()}},
		Temperature:  s.Temperature(),
	})
	if err != nil {
		call.End(err)
		return nil, fmt.Errorf("dialoguegen: start completion: %w", err)
	}
	return observeStream(ctx, ch, call, log), nil
}

// observeStream forwards ch and records the completion once it ends.
func observeStream(ctx context.Context, ch <-chan llm.Chunk, call *observe.Call, log *slog.Logger) <-chan llm.Chunk {
	out := make(chan llm.Chunk, cap(ch))
	go func() {
		defer close(out)
		var streamErr error
		defer func() { call.End(streamErr) }()
		for c := range ch {
			if err := c.Err(); err != nil {
				streamErr = err
				log.Warn("dialoguegen: stream failed", "err", err)
			}
			select {
			case out <- c:
			case <-ctx.Done():
				streamErr = ctx.Err()
				return
			}
		}
	}()
	return out
}
