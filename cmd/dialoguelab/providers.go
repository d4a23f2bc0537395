package main

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/dialoguelab/internal/app"
	"github.com/MrWong99/dialoguelab/internal/config"
	"github.com/MrWong99/dialoguelab/internal/synth"
	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
	"github.com/MrWong99/dialoguelab/pkg/provider/llm/anyllm"
	"github.com/MrWong99/dialoguelab/pkg/provider/llm/openai"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts/coqui"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts/elevenlabs"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.StringOption("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other vendor goes through any-llm. Local servers are addressed by
	// BaseURL only.
	for _, name := range anyllm.Names() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && !anyllm.Local(name) {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── Speech ────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if m := entry.StringOption("dialogue_model"); m != "" {
			opts = append(opts, elevenlabs.WithDialogueModel(m))
		}
		if f := entry.StringOption("output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// Coqui only speaks single utterances, so it is a speaker, never the
	// dialogue provider.
	reg.RegisterSpeaker("coqui", func(entry config.ProviderEntry) (tts.Speaker, error) {
		var opts []coqui.Option
		if lang := entry.StringOption("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.StringOption("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. The speech provider is only built on first use.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	gen := withModel(cfg.Providers.LLM, cfg.Generation.Model, config.DefaultGenerationModel)
	p, err := create("llm", gen, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	ps.LLM = p

	// Translation runs on its own entry when configured, otherwise on the
	// generation entry with the translation model.
	trEntry := cfg.Providers.Translate
	if !trEntry.Configured() {
		trEntry = cfg.Providers.LLM
	}
	tr := withModel(trEntry, cfg.Translation.Model, config.DefaultTranslationModel)
	if tr.Name != gen.Name || tr.Model != gen.Model || tr.BaseURL != gen.BaseURL {
		p, err := create("translate", tr, reg.CreateLLM)
		if err != nil {
			return nil, err
		}
		ps.Translate = p
	}

	if entry := cfg.Providers.TTS; entry.Configured() {
		ps.TTS = synth.NewHandle(func() (tts.Provider, error) {
			p, err := reg.CreateTTS(entry)
			if err != nil {
				slog.Error("speech provider unavailable", "name", entry.Name, "err", err)
				return nil, err
			}
			slog.Info("provider created", "kind", "tts", "name", entry.Name)
			return p, nil
		})
	}

	s, err := create("pronounce_fallback", cfg.Providers.PronounceFallback, reg.CreateSpeaker)
	if err != nil {
		return nil, err
	}
	ps.PronounceFallback = s

	return ps, nil
}

// create builds one provider. An empty or unregistered name leaves the slot
// empty.
func create[T any](kind string, entry config.ProviderEntry, factory func(config.ProviderEntry) (T, error)) (T, error) {
	var zero T
	if !entry.Configured() {
		return zero, nil
	}
	p, err := factory(entry)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not registered, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	case err != nil:
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
	return p, nil
}

// withModel applies a service-specific model override. The default only
// applies to OpenAI, whose model names it is.
func withModel(entry config.ProviderEntry, override, def string) config.ProviderEntry {
	entry = entry.WithModel(override)
	if entry.Model == "" && entry.Name == "openai" {
		entry.Model = def
	}
	return entry
}
