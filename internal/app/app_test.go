package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/dialoguelab/internal/app"
	"github.com/MrWong99/dialoguelab/internal/audiostore"
	"github.com/MrWong99/dialoguelab/internal/config"
	"github.com/MrWong99/dialoguelab/internal/synth"
	"github.com/MrWong99/dialoguelab/internal/takestore"
	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
	llmmock "github.com/MrWong99/dialoguelab/pkg/provider/llm/mock"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
	ttsmock "github.com/MrWong99/dialoguelab/pkg/provider/tts/mock"
)

func ptr[T any](v T) *T { return &v }

// testConfig returns a config with in-memory stores and no global telemetry.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Providers: config.ProvidersConfig{
			LLM:               config.ProviderEntry{Name: "openai"},
			TTS:               config.ProviderEntry{Name: "elevenlabs"},
			PronounceFallback: config.ProviderEntry{Name: "coqui", Options: map[string]any{"voice": "tts_models/en/vctk"}},
		},
		MCP:     config.MCPConfig{Enabled: true},
		Observe: config.ObserveConfig{Metrics: ptr(false)},
	}
}

func newApp(t *testing.T, cfg *config.Config, p *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithTakeStore(takestore.NewMemoryStore()),
		app.WithAudioStore(audiostore.NewMemoryStore()),
	}, opts...)
	a, err := app.New(context.Background(), cfg, p, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	speech := &ttsmock.Provider{}
	a := newApp(t, testConfig(), &app.Providers{
		LLM: &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "A: Hi"}, {Text: "\nB: Hello", FinishReason: "stop"}}},
		TTS: synth.Ready[tts.Provider](speech),
	})
	h := a.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		want   string
	}{
		{"voices", http.MethodGet, "/api/voices", "", http.StatusOK, `"generationLanguages"`},
		{"healthz", http.MethodGet, "/healthz", "", http.StatusOK, `"ok"`},
		{"readyz", http.MethodGet, "/readyz", "", http.StatusOK, `"takes":"ok"`},
		{"dialogue", http.MethodPost, "/api/dialogue", `{"prompt":"At the bakery"}`, http.StatusOK, "A: Hi\nB: Hello"},
		{"audio", http.MethodPost, "/api/dialogue/audio", `{"script":"A: Hi\nB: Hello"}`, http.StatusOK, `"inSync":true`},
		{"highlight", http.MethodPost, "/api/highlight", `{"script":"A: Hi","alignment":{"characters":["H","i"],"characterStartTimesSeconds":[0,0.1],"characterEndTimesSeconds":[0.1,0.2]}}`, http.StatusOK, `"transcript":"Hi"`},
		{"metrics disabled", http.MethodGet, "/metrics", "", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body = %s, want it to contain %s", rec.Body, tt.want)
			}
		})
	}

	if n := len(speech.DialogueCalls); n != 1 {
		t.Errorf("dialogue calls = %d, want 1", n)
	}
}

func TestNew_NoProviders(t *testing.T) {
	t.Parallel()

	h := newApp(t, testConfig(), nil).Handler()

	tests := []struct {
		path string
		body string
		want string
	}{
		{"/api/dialogue", `{"prompt":"x"}`, "Dialogue generation is not configured."},
		{"/api/translate", `{"text":"x","sourceLanguage":"en","targetLanguage":"de"}`, "Translation service is not configured."},
		{"/api/dialogue/audio", `{"script":"A: Hi"}`, "Dialogue audio generation is not configured."},
		{"/api/pronounce", `{"text":"Moien"}`, "Pronunciation service is not configured."},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500 (body %s)", rec.Code, rec.Body)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body = %s, want %q", rec.Body, tt.want)
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"segmenter", func(c *config.Config) { c.Synthesis.Segmenter = "sentences" }},
		{"voice strategy", func(c *config.Config) { c.Synthesis.VoiceStrategy = "random" }},
		{"store driver", func(c *config.Config) { c.Store.Driver = "mongo" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tt.mutate(cfg)
			opts := []app.Option{app.WithAudioStore(audiostore.NewMemoryStore())}
			if cfg.Store.Driver == "" {
				opts = append(opts, app.WithTakeStore(takestore.NewMemoryStore()))
			}
			if _, err := app.New(context.Background(), cfg, nil, opts...); err == nil {
				t.Error("New() accepted an invalid config")
			}
		})
	}
}

func TestTranslateFallsBackToGenerationModel(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Providers.Translate = config.ProviderEntry{Name: "anthropic"}
	primary := &llmmock.Provider{StreamErr: errors.New("overloaded")}
	backup := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "Hallo", FinishReason: "stop"}}}

	h := newApp(t, cfg, &app.Providers{LLM: backup, Translate: primary}).Handler()
	rec := do(t, h, http.MethodPost, "/api/translate", `{"text":"Hello","sourceLanguage":"en","targetLanguage":"de"}`)
	if rec.Code != http.StatusOK || rec.Body.String() != "Hallo" {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body)
	}
	if len(primary.StreamCalls) != 1 || len(backup.StreamCalls) != 1 {
		t.Errorf("calls: primary=%d backup=%d, want 1 each", len(primary.StreamCalls), len(backup.StreamCalls))
	}
}

func TestPronunciationFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tts  *synth.Handle[tts.Provider]
	}{
		{"primary fails", synth.Ready[tts.Provider](&ttsmock.Provider{SpeechErr: &tts.StatusError{StatusCode: 503}})},
		{"primary unbuildable", synth.NewHandle(func() (tts.Provider, error) { return nil, errors.New("no api key") })},
		{"primary missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fallback := &ttsmock.Provider{}
			h := newApp(t, testConfig(), &app.Providers{TTS: tt.tts, PronounceFallback: fallback}).Handler()

			rec := do(t, h, http.MethodPost, "/api/pronounce", `{"text":"Moien","languageCode":"lb"}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
			}
			if rec.Body.String() != "Moien" {
				t.Errorf("audio = %q", rec.Body)
			}
			if got := rec.Header().Get("X-Pronunciation-Voice"); got != "tts_models/en/vctk" {
				t.Errorf("voice header = %q", got)
			}
			if len(fallback.SynthesizeCalls) != 1 || fallback.SynthesizeCalls[0].Request.Voice.Language != "lb" {
				t.Errorf("fallback calls = %+v", fallback.SynthesizeCalls)
			}
		})
	}
}

func TestReload(t *testing.T) {
	t.Parallel()

	gen := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "A: Hi", FinishReason: "stop"}}}
	level := new(slog.LevelVar)
	cfg := testConfig()
	a := newApp(t, cfg, &app.Providers{LLM: gen}, app.WithLevelVar(level))

	next := *cfg
	next.Server.LogLevel = config.LogDebug
	next.Generation.Temperature = ptr(0.3)
	next.Synthesis.VoiceStrategy = "bogus"
	next.Store.Driver = config.StoreSQLite
	a.Reload(cfg, &next)

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	if rec := do(t, a.Handler(), http.MethodPost, "/api/dialogue", `{"prompt":"x"}`); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	req, ok := gen.LastStreamRequest()
	if !ok || req.Temperature != 0.3 {
		t.Errorf("temperature = %v (called %v), want 0.3", req.Temperature, ok)
	}
}

func TestServe(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, body %s", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	a, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	for i := range 2 {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown #%d = %v", i+1, err)
		}
	}
}
