package config

import (
	"fmt"
	"slices"
)

// ConfigDiff describes what changed between two configs. Hot-reloadable
// fields are reported individually; everything else is summarised in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	GenerationTemperatureChanged bool
	NewGenerationTemperature     float64

	TranslationTemperatureChanged bool
	NewTranslationTemperature     float64

	// VoiceStrategyChanged is set when the strategy name or the cast roster
	// changed.
	VoiceStrategyChanged bool
	NewVoiceStrategy     string

	// RestartRequired lists the config sections that changed but are only
	// read at startup.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.GenerationTemperatureChanged ||
		d.TranslationTemperatureChanged || d.VoiceStrategyChanged ||
		len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if t := new.Generation.TemperatureOrDefault(); t != old.Generation.TemperatureOrDefault() {
		d.GenerationTemperatureChanged = true
		d.NewGenerationTemperature = t
	}
	if t := new.Translation.TemperatureOrDefault(); t != old.Translation.TemperatureOrDefault() {
		d.TranslationTemperatureChanged = true
		d.NewTranslationTemperature = t
	}

	if old.Synthesis.VoiceStrategy != new.Synthesis.VoiceStrategy ||
		!slices.Equal(old.Synthesis.Cast.SpeakerA, new.Synthesis.Cast.SpeakerA) ||
		!slices.Equal(old.Synthesis.Cast.SpeakerB, new.Synthesis.Cast.SpeakerB) {
		d.VoiceStrategyChanged = true
		d.NewVoiceStrategy = new.Synthesis.VoiceStrategy
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !tlsEqual(old.Server.TLS, new.Server.TLS) ||
		old.Server.ReadTimeout != new.Server.ReadTimeout || old.Server.WriteTimeout != new.Server.WriteTimeout {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Generation.Model != new.Generation.Model || old.Generation.MaxPromptChars != new.Generation.MaxPromptChars {
		d.RestartRequired = append(d.RestartRequired, "generation")
	}
	if old.Translation.Model != new.Translation.Model || old.Translation.MaxChars != new.Translation.MaxChars ||
		old.Translation.DisplayNames != new.Translation.DisplayNames {
		d.RestartRequired = append(d.RestartRequired, "translation")
	}
	if old.Synthesis.MaxScriptChars != new.Synthesis.MaxScriptChars || old.Synthesis.Segmenter != new.Synthesis.Segmenter ||
		old.Synthesis.PronunciationModel != new.Synthesis.PronunciationModel {
		d.RestartRequired = append(d.RestartRequired, "synthesis")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.AudioStore != new.AudioStore {
		d.RestartRequired = append(d.RestartRequired, "audio_store")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	if old.Observe.Name() != new.Observe.Name() || old.Observe.MetricsEnabled() != new.Observe.MetricsEnabled() {
		d.RestartRequired = append(d.RestartRequired, "observe")
	}
	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) && entryEqual(a.Translate, b.Translate) &&
		entryEqual(a.TTS, b.TTS) && entryEqual(a.PronounceFallback, b.PronounceFallback)
}

// entryEqual compares options by their printed form; decoded option values
// are scalars, slices and maps of those.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}
