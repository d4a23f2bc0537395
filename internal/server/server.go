// Package server exposes the dialogue services over HTTP.
//
// Routes:
//
//	POST /api/dialogue          generate a dialogue script, streamed as text
//	POST /api/translate         translate text, streamed as text
//	POST /api/dialogue/audio    render a script and return audio with highlight ranges
//	GET  /api/takes/{id}        stored take metadata and its alignment
//	GET  /api/takes/{id}/audio  stored take audio
//	POST /api/highlight         align a script with caller-supplied timing data
//	POST /api/pronounce         render a pronunciation snippet
//	POST /api/pronounce/aligned render a snippet with word timings
//	GET  /api/voices            voice catalog
//
// Errors are JSON objects with a single "error" key. Every service is
// optional; a route whose service is missing answers 500 with a "... is not
// configured." message.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrWong99/dialoguelab/internal/audiostore"
	"github.com/MrWong99/dialoguelab/internal/dialoguegen"
	"github.com/MrWong99/dialoguelab/internal/health"
	"github.com/MrWong99/dialoguelab/internal/observe"
	"github.com/MrWong99/dialoguelab/internal/synth"
	"github.com/MrWong99/dialoguelab/internal/takestore"
	"github.com/MrWong99/dialoguelab/internal/translate"
	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 4 << 20

// Option configures a [Server].
type Option func(*Server)

// WithGenerator serves /api/dialogue.
func WithGenerator(g *dialoguegen.Service) Option {
	return func(s *Server) { s.generator = g }
}

// WithTranslator serves /api/translate.
func WithTranslator(t *translate.Service) Option {
	return func(s *Server) { s.translator = t }
}

// WithDialogueAudio serves /api/dialogue/audio and the take routes.
func WithDialogueAudio(d *synth.DialogueService) Option {
	return func(s *Server) { s.dialogue = d }
}

// WithPronunciation serves the /api/pronounce routes.
func WithPronunciation(p *synth.PronunciationService) Option {
	return func(s *Server) { s.pronounce = p }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMCP mounts an MCP handler at /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// WithMetrics enables request metrics and the active stream gauge.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithSegmenter selects the word segmenter for /api/highlight.
func WithSegmenter(seg alignment.Segmenter) Option {
	return func(s *Server) { s.segmenter = seg }
}

// WithMaxBodyBytes overrides [DefaultMaxBodyBytes].
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server routes HTTP requests to the services it was built with.
type Server struct {
	generator  *dialoguegen.Service
	translator *translate.Service
	dialogue   *synth.DialogueService
	pronounce  *synth.PronunciationService

	health         *health.Handler
	mcp            http.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler

	segmenter alignment.Segmenter
	maxBody   int64
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{maxBody: DefaultMaxBodyBytes}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed handler, wrapped in the observability
// middleware when metrics are enabled.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/dialogue", s.handleDialogue)
	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.HandleFunc("POST /api/dialogue/audio", s.handleDialogueAudio)
	mux.HandleFunc("GET /api/takes/{id}", s.handleTake)
	mux.HandleFunc("GET /api/takes/{id}/audio", s.handleTakeAudio)
	mux.HandleFunc("POST /api/highlight", s.handleHighlight)
	mux.HandleFunc("POST /api/pronounce", s.handlePronounce)
	mux.HandleFunc("POST /api/pronounce/aligned", s.handlePronounceAligned)
	mux.HandleFunc("GET /api/voices", s.handleVoices)

	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.mcp != nil {
		mux.Handle("/mcp", s.mcp)
		mux.Handle("/mcp/", s.mcp)
	}

	if s.metrics == nil {
		return mux
	}
	return observe.Middleware(s.metrics)(mux)
}

// ── Errors ──────────────────────────────────────────────────────────────────

// endpoint holds the client-facing messages of one route.
type endpoint struct {
	name          string
	notConfigured string
	failure       string
}

var (
	dialogueEndpoint = endpoint{
		name:          "dialogue",
		notConfigured: "Dialogue generation is not configured.",
		failure:       "Unable to generate dialogue at the moment.",
	}
	translateEndpoint = endpoint{
		name:          "translate",
		notConfigured: "Translation service is not configured.",
		failure:       "Unable to complete translation at the moment.",
	}
	dialogueAudioEndpoint = endpoint{
		name:          "dialogue audio",
		notConfigured: "Dialogue audio generation is not configured.",
		failure:       "Unable to generate dialogue audio right now.",
	}
	takesEndpoint = endpoint{
		name:          "takes",
		notConfigured: "Take storage is not configured.",
		failure:       "Unable to load the take.",
	}
	highlightEndpoint = endpoint{
		name:    "highlight",
		failure: "Unable to align the script.",
	}
	pronounceEndpoint = endpoint{
		name:          "pronounce",
		notConfigured: "Pronunciation service is not configured.",
		failure:       "Unable to generate audio.",
	}
)

const (
	msgInvalidJSON   = "Invalid JSON payload."
	msgBodyTooLarge  = "Request body is too large."
	msgTakeNotFound  = "Take not found."
	msgNoAudio       = "The audio service did not return any audio data."
	msgScriptMissing = "Script is required."
	msgNoAlignment   = "Alignment is required."
)

type errorResponse struct {
	Error string `json:"error"`
}

// status maps a service error to an HTTP status and a client-safe message.
func status(ep endpoint, err error) (int, string) {
	var (
		maxBytes *http.MaxBytesError
		upstream *tts.StatusError
	)
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, msgBodyTooLarge
	case errors.Is(err, errInvalidJSON):
		return http.StatusBadRequest, msgInvalidJSON
	case errors.Is(err, dialoguegen.ErrInvalidRequest),
		errors.Is(err, translate.ErrInvalidRequest),
		errors.Is(err, synth.ErrInvalidRequest),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, userMessage(err)
	case errors.Is(err, dialoguegen.ErrNotConfigured),
		errors.Is(err, translate.ErrNotConfigured),
		errors.Is(err, synth.ErrNotConfigured):
		return http.StatusInternalServerError, ep.notConfigured
	case errors.Is(err, takestore.ErrNotFound), errors.Is(err, audiostore.ErrNotFound):
		return http.StatusNotFound, msgTakeNotFound
	case errors.Is(err, tts.ErrNoAudio):
		return http.StatusBadGateway, msgNoAudio
	case errors.As(err, &upstream):
		return http.StatusBadGateway, ep.failure
	default:
		return http.StatusInternalServerError, ep.failure
	}
}

// userMessage unwraps err down to the validation error whose text is meant
// for end users.
func userMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// fail logs err and writes the mapped JSON error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, ep endpoint, err error) {
	code, msg := status(ep, err)
	log := observe.Logger(r.Context())
	if code >= http.StatusInternalServerError {
		log.Error("server: request failed", "endpoint", ep.name, "status", code, "err", err)
	} else {
		log.Debug("server: request rejected", "endpoint", ep.name, "status", code, "err", err)
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

// notConfigured writes the 500 answer for a route without a service.
func (s *Server) notConfigured(w http.ResponseWriter, r *http.Request, ep endpoint) {
	observe.Logger(r.Context()).Error("server: service not configured", "endpoint", ep.name)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: ep.notConfigured})
}

// ── JSON ────────────────────────────────────────────────────────────────────

var (
	errInvalidJSON = errors.New("server: invalid JSON payload")
	errBadRequest  = errors.New("server: bad request")
)

// badRequest is a client error with a user-facing message.
type badRequest string

func (e badRequest) Error() string        { return string(e) }
func (e badRequest) Is(target error) bool { return target == errBadRequest }

// decode reads a JSON request body into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: %w", errInvalidJSON, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("server: encode response", "err", err)
	}
}
