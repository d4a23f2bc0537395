package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/dialoguelab/internal/voices"
	"github.com/MrWong99/dialoguelab/pkg/alignment"
)

// Format is the encoding of a config file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from the file extension. Anything other than
// .toml is read as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":                {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"translate":          {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":                {"elevenlabs"},
	"pronounce_fallback": {"coqui", "elevenlabs"},
}

// Load reads the configuration file at path and returns a validated [Config].
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := Decode(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// Decode parses data in the given format and validates the result.
func Decode(data []byte, format Format) (*Config, error) {
	if format == FormatTOML {
		return LoadTOMLFromReader(bytes.NewReader(data))
	}
	return LoadFromReader(bytes.NewReader(data))
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown keys are rejected. An empty document yields the zero Config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOMLFromReader decodes a TOML config from r and validates the result.
// Unknown keys are rejected.
func LoadTOMLFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("config: decode toml: %s", strict.String())
		}
		return nil, fmt.Errorf("config: decode toml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("translate", cfg.Providers.Translate.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("pronounce_fallback", cfg.Providers.PronounceFallback.Name)

	if cfg.Providers.PronounceFallback.Configured() && !cfg.Providers.TTS.Configured() {
		slog.Warn("providers.pronounce_fallback is set but providers.tts is not; the fallback will serve every pronunciation")
	}
	if !cfg.Providers.LLM.Configured() && !cfg.Providers.Translate.Configured() {
		slog.Warn("no LLM provider configured; dialogue generation and translation are disabled")
	}

	// Generation and translation
	errs = append(errs, validateTemperature("generation.temperature", cfg.Generation.Temperature)...)
	errs = append(errs, validateTemperature("translation.temperature", cfg.Translation.Temperature)...)
	if cfg.Generation.MaxPromptChars < 0 {
		errs = append(errs, fmt.Errorf("generation.max_prompt_chars %d must not be negative", cfg.Generation.MaxPromptChars))
	}
	if cfg.Translation.MaxChars < 0 {
		errs = append(errs, fmt.Errorf("translation.max_chars %d must not be negative", cfg.Translation.MaxChars))
	}

	// Synthesis
	if cfg.Synthesis.MaxScriptChars < 0 {
		errs = append(errs, fmt.Errorf("synthesis.max_script_chars %d must not be negative", cfg.Synthesis.MaxScriptChars))
	}
	if _, err := voices.ParseAssigner(cfg.Synthesis.VoiceStrategy); err != nil {
		errs = append(errs, fmt.Errorf("synthesis.voice_strategy %q is invalid; valid values: %s, %s, %s",
			cfg.Synthesis.VoiceStrategy, voices.StrategyHeuristic, voices.StrategyAlternating, voices.StrategyCast))
	}
	if _, err := alignment.ParseSegmenter(cfg.Synthesis.Segmenter); err != nil {
		errs = append(errs, fmt.Errorf("synthesis.segmenter %q is invalid; valid values: manual, uax29", cfg.Synthesis.Segmenter))
	}

	// Stores
	switch cfg.Store.Driver {
	case "", StoreMemory, StoreSQLite:
	case StorePostgres:
		if cfg.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required when driver is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: memory, sqlite, postgres", cfg.Store.Driver))
	}
	switch cfg.AudioStore.Driver {
	case "", AudioInline:
	case AudioNATS:
		if cfg.AudioStore.URL == "" {
			errs = append(errs, errors.New("audio_store.url is required when driver is nats"))
		}
	default:
		errs = append(errs, fmt.Errorf("audio_store.driver %q is invalid; valid values: inline, nats", cfg.AudioStore.Driver))
	}

	return errors.Join(errs...)
}

func validateTemperature(field string, t *float64) []error {
	if t == nil || (*t >= 0 && *t <= 2) {
		return nil
	}
	return []error{fmt.Errorf("%s %.2f is out of range [0, 2]", field, *t)}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
