package server

import (
	"io"
	"net/http"

	"github.com/MrWong99/dialoguelab/internal/dialoguegen"
	"github.com/MrWong99/dialoguelab/internal/observe"
	"github.com/MrWong99/dialoguelab/internal/translate"
	"github.com/MrWong99/dialoguelab/pkg/provider/llm"
)

// handleDialogue handles POST /api/dialogue.
func (s *Server) handleDialogue(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		s.notConfigured(w, r, dialogueEndpoint)
		return
	}
	var req dialoguegen.Request
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, dialogueEndpoint, err)
		return
	}
	ch, err := s.generator.Stream(r.Context(), req)
	if err != nil {
		s.fail(w, r, dialogueEndpoint, err)
		return
	}
	s.relay(w, r, dialogueEndpoint, ch)
}

// handleTranslate handles POST /api/translate.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if s.translator == nil {
		s.notConfigured(w, r, translateEndpoint)
		return
	}
	var req translate.Request
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, translateEndpoint, err)
		return
	}
	ch, err := s.translator.Stream(r.Context(), req)
	if err != nil {
		s.fail(w, r, translateEndpoint, err)
		return
	}
	s.relay(w, r, translateEndpoint, ch)
}

// relay writes the text of every chunk to w as it arrives. The response
// status is committed with the first non-empty chunk, so an error before any
// text becomes a regular JSON error. An error after that aborts the
// connection, which the client observes as a truncated body.
func (s *Server) relay(w http.ResponseWriter, r *http.Request, ep endpoint, ch <-chan llm.Chunk) {
	ctx := r.Context()
	if s.metrics != nil {
		s.metrics.ActiveStreams.Add(ctx, 1)
		defer s.metrics.ActiveStreams.Add(ctx, -1)
	}
	rc := http.NewResponseController(w)
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
	}

	for c := range ch {
		if err := c.Err(); err != nil {
			for range ch {
			}
			if !started {
				s.fail(w, r, ep, err)
				return
			}
			observe.Logger(ctx).Error("server: stream failed", "endpoint", ep.name, "err", err)
			panic(http.ErrAbortHandler)
		}
		if c.Text == "" {
			continue
		}
		start()
		if _, err := io.WriteString(w, c.Text); err != nil {
			observe.Logger(ctx).Debug("server: client went away", "endpoint", ep.name, "err", err)
			return
		}
		_ = rc.Flush()
	}
	start()
}
