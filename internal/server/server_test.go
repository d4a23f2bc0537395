package server_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/dialoguelab/internal/audiostore"
	"github.com/MrWong99/dialoguelab/internal/dialoguegen"
	"github.com/MrWong99/dialoguelab/internal/health"
	"github.com/MrWong99/dialoguelab/internal/observe"
	"github.com/MrWong99/dialoguelab/internal/server"
	"github.com/MrWong99/dialoguelab/internal/synth"
	"github.com/MrWong99/dialoguelab/internal/takestore"
	"github.com/MrWong99/dialoguelab/internal/translate"
	"github.com/MrWong99/dialoguelab/internal/voices"
	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
	llmmock "github.com/MrWong99/dialoguelab/pkg/provider/llm/mock"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
	ttsmock "github.com/MrWong99/dialoguelab/pkg/provider/tts/mock"
)

const exampleScript = "Speaker A:   Hello   world!\nSpeaker B:Hi   there."

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

// ── Not configured ──────────────────────────────────────────────────────────

func TestNotConfigured(t *testing.T) {
	t.Parallel()
	h := server.New().Handler()

	tests := []struct {
		method, path, body string
		want               string
	}{
		{http.MethodPost, "/api/dialogue", `{"prompt":"x"}`, "Dialogue generation is not configured."},
		{http.MethodPost, "/api/translate", `{}`, "Translation service is not configured."},
		{http.MethodPost, "/api/dialogue/audio", `not json`, "Dialogue audio generation is not configured."},
		{http.MethodGet, "/api/takes/abc", "", "Take storage is not configured."},
		{http.MethodGet, "/api/takes/abc/audio", "", "Take storage is not configured."},
		{http.MethodPost, "/api/pronounce", `{"text":"hi"}`, "Pronunciation service is not configured."},
		{http.MethodPost, "/api/pronounce/aligned", `{"text":"hi"}`, "Pronunciation service is not configured."},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			rec := do(t, h, tt.method, tt.path, tt.body)
			if rec.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", rec.Code)
			}
			if got := errorOf(t, rec); got != tt.want {
				t.Errorf("error = %q, want %q", got, tt.want)
			}
		})
	}
}

// ── Dialogue generation ─────────────────────────────────────────────────────

func TestDialogue_Streams(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "Ana: Olá!"},
		{Text: ""},
		{Text: "\nBen: Hello!", FinishReason: "stop"},
	}}
	h := server.New(
		server.WithGenerator(dialoguegen.New(p)),
		server.WithMetrics(testMetrics(t)),
	).Handler()

	rec := do(t, h, http.MethodPost, "/api/dialogue",
		`{"prompt":"  meeting at the market ","speakerA":"Ana","speakerB":"Ben","turnCount":40,"speakerALanguage":"PT"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "Ana: Olá!\nBen: Hello!" {
		t.Errorf("body = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !rec.Flushed {
		t.Error("stream was never flushed")
	}

	req, ok := p.LastStreamRequest()
	if !ok {
		t.Fatal("provider not called")
	}
	for _, want := range []string{"exactly 16 turns", "Ana should speak in Portuguese, while Ben should speak in English."} {
		if !strings.Contains(req.SystemPrompt, want) {
			t.Errorf("system prompt %q lacks %q", req.SystemPrompt, want)
		}
	}
	if !strings.Contains(req.Messages[0].Content, "meeting at the market") {
		t.Errorf("user message = %q", req.Messages[0].Content)
	}
}

func TestDialogue_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		provider   *llmmock.Provider
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "invalid json",
			provider:   &llmmock.Provider{},
			body:       `{"prompt":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid JSON payload.",
		},
		{
			name:       "blank prompt",
			provider:   &llmmock.Provider{},
			body:       `{"prompt":"   "}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Prompt is required.",
		},
		{
			name:       "prompt too long",
			provider:   &llmmock.Provider{},
			body:       `{"prompt":"` + strings.Repeat("é", 5001) + `"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Prompt exceeds the 5000 character limit.",
		},
		{
			name:       "provider rejects",
			provider:   &llmmock.Provider{StreamErr: errors.New("rate limited")},
			body:       `{"prompt":"hi"}`,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Unable to generate dialogue at the moment.",
		},
		{
			name:       "stream fails before text",
			provider:   &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "boom", FinishReason: llm.FinishReasonError}}},
			body:       `{"prompt":"hi"}`,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Unable to generate dialogue at the moment.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := server.New(server.WithGenerator(dialoguegen.New(tt.provider))).Handler()
			rec := do(t, h, http.MethodPost, "/api/dialogue", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := errorOf(t, rec); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}

func TestDialogue_StreamFailureAbortsConnection(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "A: Hi"},
		{Text: "upstream reset", FinishReason: llm.FinishReasonError},
	}}
	srv := httptest.NewServer(server.New(server.WithGenerator(dialoguegen.New(p))).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/api/dialogue", "application/json", strings.NewReader(`{"prompt":"hi"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, err := io.ReadAll(resp.Body); err == nil {
		t.Error("body ended cleanly, want a truncated stream")
	}
}

func TestDialogue_BodyTooLarge(t *testing.T) {
	t.Parallel()
	h := server.New(
		server.WithGenerator(dialoguegen.New(&llmmock.Provider{})),
		server.WithMaxBodyBytes(16),
	).Handler()
	rec := do(t, h, http.MethodPost, "/api/dialogue", `{"prompt":"`+strings.Repeat("x", 64)+`"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

// ── Translation ─────────────────────────────────────────────────────────────

func TestTranslate(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "Bonjour"}, {Text: " le monde", FinishReason: "stop"}}}
	h := server.New(server.WithTranslator(translate.New(p))).Handler()

	rec := do(t, h, http.MethodPost, "/api/translate",
		`{"text":"Hello world","sourceLanguage":"en","targetLanguage":"fr","targetLanguageLabel":"French"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "Bonjour le monde" {
		t.Errorf("body = %q", got)
	}
	req, _ := p.LastStreamRequest()
	if !strings.Contains(req.SystemPrompt, "Translate from EN into French.") {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
}

func TestTranslate_Validation(t *testing.T) {
	t.Parallel()
	h := server.New(server.WithTranslator(translate.New(&llmmock.Provider{}))).Handler()

	tests := []struct {
		body string
		want string
	}{
		{`{"text":" ","sourceLanguage":"en","targetLanguage":"fr"}`, "Text is required for translation."},
		{`{"text":"hi","sourceLanguage":"en"}`, "Source and target languages are required."},
		{`[1,2]`, "Invalid JSON payload."},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodPost, "/api/translate", tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", tt.body, rec.Code)
		}
		if got := errorOf(t, rec); got != tt.want {
			t.Errorf("%s: error = %q, want %q", tt.body, got, tt.want)
		}
	}
}

// ── Dialogue audio and takes ────────────────────────────────────────────────

type audioResponse struct {
	TakeID      string `json:"takeId"`
	Cached      bool   `json:"cached"`
	AudioBase64 string `json:"audioBase64"`
	MIMEType    string `json:"mimeType"`
	Transcript  string `json:"transcript"`
	InSync      bool   `json:"inSync"`
	Ranges      []struct {
		Start, End, WordIndex int
	} `json:"ranges"`
	Timings       []alignment.WordTiming `json:"timings"`
	VoiceSegments []tts.VoiceSegment     `json:"voiceSegments"`
	Alignment     *alignment.Payload     `json:"alignment"`
}

func newAudioServer(t *testing.T, p *ttsmock.Provider) http.Handler {
	t.Helper()
	svc := synth.NewDialogueService(synth.Ready[tts.DialogueSynthesizer](p),
		synth.WithTakeStore(takestore.NewMemoryStore()),
		synth.WithAudioStore(audiostore.NewMemoryStore()),
	)
	return server.New(server.WithDialogueAudio(svc)).Handler()
}

func TestDialogueAudio_RenderAndReuse(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{}
	h := newAudioServer(t, p)
	body, _ := json.Marshal(map[string]string{"script": exampleScript, "language": "FR"})

	rec := do(t, h, http.MethodPost, "/api/dialogue/audio", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	var first audioResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}
	audio, err := base64.StdEncoding.DecodeString(first.AudioBase64)
	if err != nil || string(audio) != "mock-audio:Hello world!Hi there." {
		t.Errorf("audio = %q, %v", audio, err)
	}
	if first.TakeID == "" || first.Cached {
		t.Errorf("take = %q cached = %v", first.TakeID, first.Cached)
	}
	if first.MIMEType != "audio/mpeg" || !first.InSync || first.Transcript != "Hello world!Hi there." {
		t.Errorf("response = %+v", first)
	}
	if len(first.Ranges) != 4 || len(first.Timings) != 4 || len(first.VoiceSegments) != 2 || first.Alignment == nil {
		t.Errorf("ranges = %d timings = %d segments = %d", len(first.Ranges), len(first.Timings), len(first.VoiceSegments))
	}
	if got := p.DialogueCalls[0].Request.LanguageCode; got != "fr" {
		t.Errorf("language = %q", got)
	}

	rec = do(t, h, http.MethodPost, "/api/dialogue/audio", string(body))
	var second audioResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.TakeID != first.TakeID || p.DialogueCallCount() != 1 {
		t.Errorf("second render: cached = %v take = %q calls = %d", second.Cached, second.TakeID, p.DialogueCallCount())
	}

	rec = do(t, h, http.MethodGet, "/api/takes/"+first.TakeID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("take status = %d", rec.Code)
	}
	var take struct {
		Take      takestore.Take `json:"take"`
		Highlight audioResponse  `json:"highlight"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &take); err != nil {
		t.Fatal(err)
	}
	if take.Take.Script != exampleScript || take.Take.Language != "fr" || len(take.Highlight.Ranges) != 4 {
		t.Errorf("take = %+v", take)
	}

	rec = do(t, h, http.MethodGet, "/api/takes/"+first.TakeID+"/audio", "")
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), audio) {
		t.Errorf("audio status = %d body = %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestDialogueAudio_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		provider   *ttsmock.Provider
		body       string
		wantStatus int
		wantError  string
	}{
		{"blank script", &ttsmock.Provider{}, `{"script":"  \n "}`, http.StatusBadRequest, "Dialogue text is required."},
		{"labels only", &ttsmock.Provider{}, `{"script":"A:\nB:   "}`, http.StatusBadRequest, "Unable to find dialogue lines to convert."},
		{
			name:       "too long",
			provider:   &ttsmock.Provider{},
			body:       `{"script":"A: ` + strings.Repeat("a", 5000) + `"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Dialogue text exceeds the 5000 character limit.",
		},
		{
			name:       "upstream status",
			provider:   &ttsmock.Provider{DialogueErr: &tts.StatusError{Provider: "elevenlabs", Op: "dialogue", StatusCode: 429}},
			body:       `{"script":"A: hi"}`,
			wantStatus: http.StatusBadGateway,
			wantError:  "Unable to generate dialogue audio right now.",
		},
		{
			name:       "no audio",
			provider:   &ttsmock.Provider{DialogueResult: &tts.DialogueResult{}},
			body:       `{"script":"A: hi"}`,
			wantStatus: http.StatusBadGateway,
			wantError:  "The audio service did not return any audio data.",
		},
		{
			name:       "other failure",
			provider:   &ttsmock.Provider{DialogueErr: errors.New("dial tcp: refused")},
			body:       `{"script":"A: hi"}`,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Unable to generate dialogue audio right now.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, newAudioServer(t, tt.provider), http.MethodPost, "/api/dialogue/audio", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := errorOf(t, rec); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}

func TestDialogueAudio_UnbuildableProvider(t *testing.T) {
	t.Parallel()
	svc := synth.NewDialogueService(synth.NewHandle(func() (tts.DialogueSynthesizer, error) {
		return nil, errors.New("missing api key")
	}))
	h := server.New(server.WithDialogueAudio(svc)).Handler()

	rec := do(t, h, http.MethodPost, "/api/dialogue/audio", `{"script":"A: hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if got := errorOf(t, rec); got != "Dialogue audio generation is not configured." {
		t.Errorf("error = %q", got)
	}
}

func TestTake_NotFound(t *testing.T) {
	t.Parallel()
	h := newAudioServer(t, &ttsmock.Provider{})
	for _, path := range []string{"/api/takes/00000000-0000-0000-0000-000000000000", "/api/takes/nope/audio"} {
		rec := do(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
		if got := errorOf(t, rec); got != "Take not found." {
			t.Errorf("%s: error = %q", path, got)
		}
	}
}

// ── Highlight ───────────────────────────────────────────────────────────────

func TestHighlight(t *testing.T) {
	t.Parallel()
	h := server.New(server.WithMetrics(testMetrics(t))).Handler()
	payload, err := json.Marshal(ttsmock.Uniform("Hello world!Hi there."))
	if err != nil {
		t.Fatal(err)
	}
	script, _ := json.Marshal(exampleScript)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantRanges int
		wantSync   bool
		wantError  string
	}{
		{
			name:       "in sync",
			body:       `{"script":` + string(script) + `,"alignment":` + string(payload) + `}`,
			wantStatus: http.StatusOK,
			wantRanges: 4,
			wantSync:   true,
		},
		{
			name:       "edited script",
			body:       `{"script":"Speaker A: Hello there","alignment":` + string(payload) + `}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "snake case payload",
			body:       `{"script":"A: Hi","alignment":{"characters":["H","i"],"character_start_times_seconds":[0,0.1],"character_end_times_seconds":[0.1,null]}}`,
			wantStatus: http.StatusOK,
			wantSync:   true,
		},
		{name: "no script", body: `{"alignment":{}}`, wantStatus: http.StatusBadRequest, wantError: "Script is required."},
		{name: "no alignment", body: `{"script":"A: Hi"}`, wantStatus: http.StatusBadRequest, wantError: "Alignment is required."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, h, http.MethodPost, "/api/highlight", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
			}
			if tt.wantError != "" {
				if got := errorOf(t, rec); got != tt.wantError {
					t.Errorf("error = %q, want %q", got, tt.wantError)
				}
				return
			}
			var got audioResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if len(got.Ranges) != tt.wantRanges || got.InSync != tt.wantSync {
				t.Errorf("ranges = %d inSync = %v, want %d %v", len(got.Ranges), got.InSync, tt.wantRanges, tt.wantSync)
			}
		})
	}
}

// ── Pronunciation ───────────────────────────────────────────────────────────

func TestPronounce(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{}
	svc := synth.NewPronunciationService(synth.Ready[tts.Speaker](p))
	h := server.New(server.WithPronunciation(svc)).Handler()

	rec := do(t, h, http.MethodPost, "/api/pronounce", `{"text":"  Moien ","languageCode":"LB"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "Moien" {
		t.Errorf("body = %q", rec.Body.String())
	}
	lb, _ := voices.PronunciationVoice("lb")
	checks := map[string]string{
		"Content-Type":           "audio/mpeg",
		"Content-Length":         "5",
		"Cache-Control":          "no-store",
		"X-Pronunciation-Voice":  lb.ID,
		"X-Pronunciation-Format": "mp3_44100_128",
	}
	for k, want := range checks {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestPronounce_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		provider   *ttsmock.Provider
		body       string
		wantStatus int
		wantError  string
	}{
		{"blank", &ttsmock.Provider{}, `{"text":" "}`, http.StatusBadRequest, "Text is required for pronunciation."},
		{"language", &ttsmock.Provider{}, `{"text":"hi","languageCode":" JA "}`, http.StatusBadRequest, "Pronunciation for ja is not supported."},
		{"invalid json", &ttsmock.Provider{}, `text=hi`, http.StatusBadRequest, "Invalid JSON payload."},
		{"provider", &ttsmock.Provider{SpeechErr: errors.New("boom")}, `{"text":"hi"}`, http.StatusInternalServerError, "Unable to generate audio."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := synth.NewPronunciationService(synth.Ready[tts.Speaker](tt.provider))
			rec := do(t, server.New(server.WithPronunciation(svc)).Handler(), http.MethodPost, "/api/pronounce", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := errorOf(t, rec); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
			if len(tt.provider.SynthesizeCalls) > 0 && tt.wantStatus == http.StatusBadRequest {
				t.Error("provider called for an invalid request")
			}
		})
	}
}

func TestPronounceAligned(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{StreamChunks: []tts.StreamChunk{{
		Audio: []byte("pcm"),
		Alignment: &alignment.Stream{
			Chars:            []string{"O", "i", " ", "t", "u"},
			CharStartTimesMs: []int{0, 50, 100, 150, 200},
			CharDurationsMs:  []int{50, 50, 50, 50, 50},
		},
	}}}
	svc := synth.NewPronunciationService(nil, synth.WithStreamer(synth.Ready[tts.Streamer](p)))
	h := server.New(server.WithPronunciation(svc)).Handler()

	rec := do(t, h, http.MethodPost, "/api/pronounce/aligned", `{"text":"Oi tu","languageCode":"pt"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	var got struct {
		AudioBase64 string                 `json:"audioBase64"`
		VoiceID     string                 `json:"voiceId"`
		Transcript  string                 `json:"transcript"`
		Timings     []alignment.WordTiming `json:"timings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	pt, _ := voices.PronunciationVoice("pt")
	if got.AudioBase64 != base64.StdEncoding.EncodeToString([]byte("pcm")) || got.VoiceID != pt.ID {
		t.Errorf("response = %+v", got)
	}
	if got.Transcript != "Oi tu" || len(got.Timings) != 2 || got.Timings[1].Word != "tu" {
		t.Errorf("transcript = %q timings = %+v", got.Transcript, got.Timings)
	}
}

func TestPronounceAligned_NoStreamer(t *testing.T) {
	t.Parallel()
	svc := synth.NewPronunciationService(synth.Ready[tts.Speaker](&ttsmock.Provider{}))
	rec := do(t, server.New(server.WithPronunciation(svc)).Handler(), http.MethodPost, "/api/pronounce/aligned", `{"text":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if got := errorOf(t, rec); got != "Pronunciation service is not configured." {
		t.Errorf("error = %q", got)
	}
}

// ── Catalog and mounts ──────────────────────────────────────────────────────

func TestVoices(t *testing.T) {
	t.Parallel()
	rec := do(t, server.New().Handler(), http.MethodGet, "/api/voices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Dialogue            map[string]voices.Pair  `json:"dialogue"`
		Pronunciation       map[string]voices.Voice `json:"pronunciation"`
		GenerationLanguages []string                `json:"generationLanguages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Dialogue) != 4 || got.Dialogue["fr"].A.Label != "Alice" || got.Dialogue["pt"].B.Label != "River" {
		t.Errorf("dialogue = %+v", got.Dialogue)
	}
	if len(got.Pronunciation) != 10 || got.Pronunciation["lb"].ID == "" {
		t.Errorf("pronunciation = %+v", got.Pronunciation)
	}
	if len(got.GenerationLanguages) != 4 {
		t.Errorf("generation languages = %v", got.GenerationLanguages)
	}
}

func TestMounts(t *testing.T) {
	t.Parallel()
	mcp := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { io.WriteString(w, "# metrics") })
	h := server.New(
		server.WithHealth(health.New(nil)),
		server.WithMCP(mcp),
		server.WithMetricsHandler(metrics),
	).Handler()

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("/readyz = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/mcp", `{}`); rec.Code != http.StatusTeapot {
		t.Errorf("/mcp = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/metrics", ""); rec.Body.String() != "# metrics" {
		t.Errorf("/metrics = %q", rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/api/dialogue", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/dialogue = %d, want 405", rec.Code)
	}
}
