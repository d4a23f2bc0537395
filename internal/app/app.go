// Package app wires the dialoguelab services into a running HTTP server.
//
// The App struct owns the full lifecycle: New builds stores, services and the
// router from the config, Run serves until the context is cancelled, and
// Shutdown releases everything in order.
//
// For testing, inject stores and metrics via functional options
// (WithTakeStore, WithAudioStore, ...). When an option is not provided, New
// opens real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/dialoguelab/internal/audiostore"
	"github.com/MrWong99/dialoguelab/internal/config"
	"github.com/MrWong99/dialoguelab/internal/dialoguegen"
	"github.com/MrWong99/dialoguelab/internal/health"
	"github.com/MrWong99/dialoguelab/internal/mcpserver"
	"github.com/MrWong99/dialoguelab/internal/observe"
	"github.com/MrWong99/dialoguelab/internal/resilience"
	"github.com/MrWong99/dialoguelab/internal/server"
	"github.com/MrWong99/dialoguelab/internal/synth"
	"github.com/MrWong99/dialoguelab/internal/takestore"
	"github.com/MrWong99/dialoguelab/internal/translate"
	"github.com/MrWong99/dialoguelab/internal/voices"
	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

// ShutdownTimeout bounds the graceful HTTP shutdown started when the Run
// context is cancelled.
const ShutdownTimeout = 15 * time.Second

// Providers holds one value per provider slot. Nil means the slot is not
// configured. Populated by main.go via the config registry.
type Providers struct {
	// LLM backs generation, and translation when Translate is nil.
	LLM llm.Provider

	// Translate is an optional separate translation model.
	Translate llm.Provider

	// TTS is built on first use so that a missing API key only fails the
	// audio routes.
	TTS *synth.Handle[tts.Provider]

	// PronounceFallback takes over pronunciation when TTS fails.
	PronounceFallback tts.Speaker
}

// App owns all service lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	level          *slog.LevelVar
	metrics        *observe.Metrics
	metricsHandler http.Handler
	watcher        *config.Watcher

	takes takestore.Store
	audio audiostore.Store

	generator  *dialoguegen.Service
	translator *translate.Service
	dialogue   *synth.DialogueService
	pronounce  *synth.PronunciationService
	health     *health.Handler
	handler    http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTakeStore injects a take store instead of opening one from config.
// The App does not close injected stores.
func WithTakeStore(s takestore.Store) Option {
	return func(a *App) { a.takes = s }
}

// WithAudioStore injects an audio store instead of opening one from config.
func WithAudioStore(s audiostore.Store) Option {
	return func(a *App) { a.audio = s }
}

// WithMetrics injects metrics instead of installing the OpenTelemetry SDK.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the log level of the handler
// built around v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithWatcher runs w next to the server. Its callback should call
// [App.Reload].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithVersion sets the version reported in telemetry and over MCP.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all services together. The providers struct
// comes from main.go (populated via the config registry).
//
// New opens the stores synchronously so that a bad DSN fails at startup
// rather than on the first request. On error every resource opened so far is
// released.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (_ *App, err error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initMetrics(ctx); err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}

	// ── 2. Stores ────────────────────────────────────────────────────────
	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}

	// ── 3. Services ──────────────────────────────────────────────────────
	seg, err := alignment.ParseSegmenter(cfg.Synthesis.Segmenter)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	assigner, err := a.assigner(cfg.Synthesis.VoiceStrategy, cfg.Synthesis.Cast)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.initText()
	a.initSpeech(seg, assigner)

	// ── 4. Router ────────────────────────────────────────────────────────
	a.health = health.New([]health.Checker{
		health.Ping("takes", a.takes),
		health.Ping("audio", a.audio),
	})

	srvOpts := []server.Option{
		server.WithGenerator(a.generator),
		server.WithTranslator(a.translator),
		server.WithDialogueAudio(a.dialogue),
		server.WithPronunciation(a.pronounce),
		server.WithHealth(a.health),
		server.WithSegmenter(seg),
	}
	if a.metrics != nil {
		srvOpts = append(srvOpts, server.WithMetrics(a.metrics))
	}
	if a.metricsHandler != nil {
		srvOpts = append(srvOpts, server.WithMetricsHandler(a.metricsHandler))
	}
	if cfg.MCP.Enabled {
		ms := mcpserver.New(mcpserver.WithVersion(a.version), mcpserver.WithSegmenter(seg))
		srvOpts = append(srvOpts, server.WithMCP(mcpserver.Handler(ms)))
	}
	a.handler = server.New(srvOpts...).Handler()

	return a, nil
}

// initMetrics installs the OpenTelemetry SDK with its Prometheus bridge
// unless metrics were injected or disabled.
func (a *App) initMetrics(ctx context.Context) error {
	if a.metrics != nil || !a.cfg.Observe.MetricsEnabled() {
		return nil
	}
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    a.cfg.Observe.Name(),
		ServiceVersion: a.version,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Shutdown(sctx)
	})
	a.metricsHandler = tel.Handler
	a.metrics, err = observe.NewMetrics(tel.MeterProvider)
	return err
}

// initStores opens the take and audio stores named in the config.
func (a *App) initStores(ctx context.Context) error {
	if a.takes == nil {
		s, err := takestore.Open(ctx, a.cfg.Store.Driver, a.cfg.Store.Source())
		if err != nil {
			return err
		}
		a.takes = s
		a.closers = append(a.closers, s.Close)
		slog.Info("take store opened", "driver", driverName(a.cfg.Store.Driver, config.StoreMemory))
	}
	if a.audio == nil {
		ac := a.cfg.AudioStore
		s, err := audiostore.Open(ctx, ac.Driver, ac.URL, ac.Bucket)
		if err != nil {
			return err
		}
		a.audio = s
		a.closers = append(a.closers, s.Close)
		slog.Info("audio store opened", "driver", driverName(ac.Driver, config.AudioInline))
	}
	return nil
}

// initText builds the generation and translation services. Translation uses
// its own model when configured and falls back to the generation model.
func (a *App) initText() {
	p := a.providers
	llmName := a.cfg.Providers.LLM.Name

	a.generator = dialoguegen.New(p.LLM,
		dialoguegen.WithTemperature(a.cfg.Generation.TemperatureOrDefault()),
		dialoguegen.WithMaxChars(a.cfg.Generation.MaxPromptChars),
		dialoguegen.WithMetrics(a.metrics),
		dialoguegen.WithProviderName(llmName),
	)

	var (
		tr     llm.Provider
		trName = llmName
	)
	switch {
	case p.Translate != nil && p.LLM != nil:
		fb := resilience.NewLLMFallback(p.Translate, a.cfg.Providers.Translate.Name, resilience.FallbackConfig{})
		fb.AddFallback(llmName, p.LLM)
		tr, trName = fb, a.cfg.Providers.Translate.Name
	case p.Translate != nil:
		tr, trName = p.Translate, a.cfg.Providers.Translate.Name
	case p.LLM != nil:
		tr = p.LLM
	}
	a.translator = translate.New(tr,
		translate.WithTemperature(a.cfg.Translation.TemperatureOrDefault()),
		translate.WithMaxChars(a.cfg.Translation.MaxChars),
		translate.WithDisplayNames(a.cfg.Translation.DisplayNames),
		translate.WithMetrics(a.metrics),
		translate.WithProviderName(trName),
	)
}

// initSpeech builds the dialogue audio and pronunciation services on top of
// the lazily built speech provider.
func (a *App) initSpeech(seg alignment.Segmenter, assigner voices.Assigner) {
	ttsEntry := a.cfg.Providers.TTS
	ttsName := ttsEntry.Name
	format := ttsEntry.StringOption("output_format")

	a.dialogue = synth.NewDialogueService(narrow(a.providers.TTS, asDialogue),
		synth.WithTakeStore(a.takes),
		synth.WithAudioStore(a.audio),
		synth.WithAssigner(assigner),
		synth.WithMaxChars(a.cfg.Synthesis.MaxScriptChars),
		synth.WithDialogueModel(ttsEntry.StringOption("dialogue_model")),
		synth.WithOutputFormat(format),
		synth.WithSegmenter(seg),
		synth.WithDialogueMetrics(a.metrics),
		synth.WithDialogueProviderName(ttsName),
	)

	a.pronounce = synth.NewPronunciationService(a.speaker(),
		synth.WithStreamer(narrow(a.providers.TTS, asStreamer)),
		synth.WithPronunciationMaxChars(a.cfg.Synthesis.MaxScriptChars),
		synth.WithPronunciationFormat(format),
		synth.WithPronunciationModel(a.cfg.Synthesis.PronunciationModel),
		synth.WithPronunciationSegmenter(seg),
		synth.WithPronunciationMetrics(a.metrics, ttsName),
	)
}

// speaker returns the pronunciation speaker: the speech provider, chained to
// the fallback speaker when one is configured.
func (a *App) speaker() *synth.Handle[tts.Speaker] {
	primary := narrow(a.providers.TTS, asSpeaker)
	fallback := a.providers.PronounceFallback
	if fallback == nil {
		return primary
	}
	fbName := a.cfg.Providers.PronounceFallback.Name
	voice := a.cfg.Providers.PronounceFallback.StringOption("voice")
	voiceFor := func(req tts.SpeechRequest) tts.VoiceProfile {
		return tts.VoiceProfile{ID: voice, Provider: fbName, Language: req.LanguageCode}
	}

	return synth.NewHandle(func() (tts.Speaker, error) {
		s, err := primary.Get()
		if err != nil {
			slog.Warn("speech provider unavailable, pronunciation uses fallback only", "fallback", fbName, "err", err)
			return fallback, nil
		}
		chain := resilience.NewSpeakerFallback(s, a.cfg.Providers.TTS.Name, resilience.FallbackConfig{})
		chain.AddFallback(fbName, fallback, voiceFor)
		chain.OnServed(func(name string) {
			if name == fbName {
				slog.Info("pronunciation served by fallback", "provider", name)
			}
		})
		return chain, nil
	})
}

func (a *App) assigner(strategy string, cast config.CastConfig) (voices.Assigner, error) {
	return voices.ParseAssigner(strategy, voices.WithRoster(cast.SpeakerA, cast.SpeakerB))
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts the HTTP server down
// gracefully. The config watcher, if any, runs for the same lifetime.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	read, write := a.cfg.Server.Timeouts()
	srv := &http.Server{
		Handler:           a.handler,
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      write,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	return g.Wait()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable changes between old and new. Sections
// that are only read at startup are logged.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.GenerationTemperatureChanged {
		a.generator.SetTemperature(d.NewGenerationTemperature)
		slog.Info("generation temperature changed", "temperature", d.NewGenerationTemperature)
	}
	if d.TranslationTemperatureChanged {
		a.translator.SetTemperature(d.NewTranslationTemperature)
		slog.Info("translation temperature changed", "temperature", d.NewTranslationTemperature)
	}
	if d.VoiceStrategyChanged {
		as, err := a.assigner(d.NewVoiceStrategy, new.Synthesis.Cast)
		if err != nil {
			slog.Warn("voice strategy not changed", "strategy", d.NewVoiceStrategy, "err", err)
		} else {
			a.dialogue.SetAssigner(as)
			slog.Info("voice strategy changed", "strategy", driverName(d.NewVoiceStrategy, voices.StrategyHeuristic))
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases the stores and telemetry in init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// close runs the closers of a partially built App.
func (a *App) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
	a.closers = nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func asDialogue(p tts.Provider) tts.DialogueSynthesizer { return p }
func asSpeaker(p tts.Provider) tts.Speaker             { return p }
func asStreamer(p tts.Provider) tts.Streamer           { return p }

// narrow derives a handle for one capability of the speech provider. A nil
// handle stays nil, which the services report as not configured.
func narrow[T any](h *synth.Handle[tts.Provider], pick func(tts.Provider) T) *synth.Handle[T] {
	if h == nil {
		return nil
	}
	return synth.NewHandle(func() (T, error) {
		p, err := h.Get()
		if err != nil {
			var zero T
			return zero, err
		}
		return pick(p), nil
	})
}

func driverName(driver, def string) string {
	if driver == "" {
		return def
	}
	return driver
}
