// Package secrets resolves provider API keys that are not written into the
// config file.
//
// Keys are looked up in this order: the config value itself, the environment
// (optionally seeded from a .env file), then the OS keyring under the
// service name [KeyringService] with the provider name as the user.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"

	"github.com/MrWong99/dialoguelab/internal/config"
)

// KeyringService is the keyring service name keys are stored under.
const KeyringService = "dialoguelab"

// ErrNotFound is returned by [Resolver.Lookup] when no source has a key.
var ErrNotFound = errors.New("secrets: key not found")

// keyless providers never need an API key.
var keyless = map[string]bool{
	"ollama":    true,
	"llamacpp":  true,
	"llamafile": true,
	"coqui":     true,
}

// LoadEnvFile loads variables from a .env file into the process environment
// without overriding variables that are already set. An empty path loads
// ./.env when it exists.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("secrets: load %s: %w", path, err)
	}
	slog.Debug("secrets: loaded env file", "path", path)
	return nil
}

// EnvVars returns the environment variables consulted for a provider used in
// the given config slot, most specific first: DIALOGUELAB_<SLOT>_API_KEY and
// then <PROVIDER>_API_KEY.
func EnvVars(slot, provider string) []string {
	return []string{
		"DIALOGUELAB_" + envName(slot) + "_API_KEY",
		envName(provider) + "_API_KEY",
	}
}

func envName(s string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(s))
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(r *Resolver) { r.lookupEnv = fn }
}

// WithKeyring enables or disables the keyring source. It is enabled by
// default.
func WithKeyring(enabled bool) Option {
	return func(r *Resolver) { r.keyring = enabled }
}

// WithService sets the keyring service name.
func WithService(name string) Option {
	return func(r *Resolver) { r.service = name }
}

// Resolver finds API keys.
type Resolver struct {
	lookupEnv func(string) (string, bool)
	keyring   bool
	service   string
}

// NewResolver returns a Resolver reading the process environment and the OS
// keyring.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		lookupEnv: os.LookupEnv,
		keyring:   true,
		service:   KeyringService,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Lookup returns the key for provider in slot, or [ErrNotFound].
func (r *Resolver) Lookup(slot, provider string) (string, error) {
	for _, name := range EnvVars(slot, provider) {
		if v, ok := r.lookupEnv(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	if !r.keyring {
		return "", ErrNotFound
	}
	v, err := keyring.Get(r.service, provider)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", ErrNotFound
	case err != nil:
		return "", fmt.Errorf("secrets: keyring %s/%s: %w", r.service, provider, err)
	}
	return v, nil
}

// Resolve fills the empty api_key of every configured provider in cfg.
// Providers without a key are left alone; their factories report the
// problem when they are built. Keyring failures are logged, not returned.
func (r *Resolver) Resolve(cfg *config.Config) {
	slots := []struct {
		name  string
		entry *config.ProviderEntry
	}{
		{"llm", &cfg.Providers.LLM},
		{"translate", &cfg.Providers.Translate},
		{"tts", &cfg.Providers.TTS},
		{"pronounce_fallback", &cfg.Providers.PronounceFallback},
	}
	for _, s := range slots {
		if !s.entry.Configured() || s.entry.APIKey != "" || keyless[s.entry.Name] {
			continue
		}
		key, err := r.Lookup(s.name, s.entry.Name)
		switch {
		case errors.Is(err, ErrNotFound):
			slog.Debug("secrets: no api key found", "slot", s.name, "provider", s.entry.Name)
		case err != nil:
			slog.Warn("secrets: api key lookup failed", "slot", s.name, "provider", s.entry.Name, "err", err)
		default:
			s.entry.APIKey = key
		}
	}
}

// Store saves key for provider in the OS keyring.
func (r *Resolver) Store(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("secrets: empty key")
	}
	if err := keyring.Set(r.service, provider, key); err != nil {
		return fmt.Errorf("secrets: keyring %s/%s: %w", r.service, provider, err)
	}
	return nil
}

// Delete removes the key for provider from the OS keyring. A missing key is
// not an error.
func (r *Resolver) Delete(provider string) error {
	if err := keyring.Delete(r.service, provider); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("secrets: keyring %s/%s: %w", r.service, provider, err)
	}
	return nil
}
