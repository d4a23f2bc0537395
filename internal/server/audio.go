package server

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/dialoguelab/internal/observe"
	"github.com/MrWong99/dialoguelab/internal/synth"
	"github.com/MrWong99/dialoguelab/internal/takestore"
	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/highlight"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

type dialogueAudioResponse struct {
	TakeID       string `json:"takeId,omitempty"`
	Cached       bool   `json:"cached"`
	AudioBase64  string `json:"audioBase64"`
	MIMEType     string `json:"mimeType"`
	OutputFormat string `json:"outputFormat"`

	Alignment           *alignment.Payload `json:"alignment"`
	NormalizedAlignment *alignment.Payload `json:"normalizedAlignment"`
	VoiceSegments       []tts.VoiceSegment `json:"voiceSegments"`

	highlightResponse
}

// highlightResponse is the alignment of a script with spoken timing data.
type highlightResponse struct {
	Transcript string                 `json:"transcript"`
	Timings    []alignment.WordTiming `json:"timings"`
	Ranges     []highlight.Range      `json:"ranges"`
	InSync     bool                   `json:"inSync"`
}

func newHighlightResponse(a highlight.Alignment) highlightResponse {
	resp := highlightResponse{
		Transcript: a.Transcript,
		Timings:    a.Timings,
		Ranges:     a.Ranges,
		InSync:     a.InSync,
	}
	if resp.Timings == nil {
		resp.Timings = []alignment.WordTiming{}
	}
	if resp.Ranges == nil {
		resp.Ranges = []highlight.Range{}
	}
	return resp
}

// handleDialogueAudio handles POST /api/dialogue/audio.
func (s *Server) handleDialogueAudio(w http.ResponseWriter, r *http.Request) {
	if s.dialogue == nil {
		s.notConfigured(w, r, dialogueAudioEndpoint)
		return
	}
	var req synth.DialogueRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, dialogueAudioEndpoint, err)
		return
	}
	take, err := s.dialogue.Synthesize(r.Context(), req)
	if err != nil {
		s.fail(w, r, dialogueAudioEndpoint, err)
		return
	}

	observe.Logger(r.Context()).Info("server: dialogue audio ready",
		"take_id", take.Take.ID,
		"cached", take.Cached,
		"bytes", len(take.Audio),
		"ranges", len(take.Alignment.Ranges),
		"in_sync", take.Alignment.InSync,
	)
	writeJSON(w, http.StatusOK, dialogueAudioResponse{
		TakeID:              take.Take.ID,
		Cached:              take.Cached,
		AudioBase64:         base64.StdEncoding.EncodeToString(take.Audio),
		MIMEType:            take.Take.MIMEType,
		OutputFormat:        take.Take.OutputFormat,
		Alignment:           take.Take.Alignment,
		NormalizedAlignment: take.Take.NormalizedAlignment,
		VoiceSegments:       take.Take.VoiceSegments,
		highlightResponse:   newHighlightResponse(take.Alignment),
	})
}

type takeResponse struct {
	Take      *takestore.Take   `json:"take"`
	Highlight highlightResponse `json:"highlight"`
}

// handleTake handles GET /api/takes/{id}.
func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	if s.dialogue == nil {
		s.notConfigured(w, r, takesEndpoint)
		return
	}
	take, a, err := s.dialogue.TakeAlignment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, takesEndpoint, err)
		return
	}
	writeJSON(w, http.StatusOK, takeResponse{Take: take, Highlight: newHighlightResponse(a)})
}

// handleTakeAudio handles GET /api/takes/{id}/audio.
func (s *Server) handleTakeAudio(w http.ResponseWriter, r *http.Request) {
	if s.dialogue == nil {
		s.notConfigured(w, r, takesEndpoint)
		return
	}
	obj, err := s.dialogue.TakeAudio(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, takesEndpoint, err)
		return
	}
	// Takes never change once stored.
	w.Header().Set("Content-Type", obj.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(int((24*time.Hour).Seconds())))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(obj.Data); err != nil {
		observe.Logger(r.Context()).Debug("server: write take audio", "err", err)
	}
}

type highlightRequest struct {
	Script    string             `json:"script"`
	Alignment *alignment.Payload `json:"alignment"`
}

// handleHighlight handles POST /api/highlight. It needs no provider.
func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, highlightEndpoint, err)
		return
	}
	switch {
	case strings.TrimSpace(req.Script) == "":
		s.fail(w, r, highlightEndpoint, badRequest(msgScriptMissing))
		return
	case req.Alignment == nil:
		s.fail(w, r, highlightEndpoint, badRequest(msgNoAlignment))
		return
	}

	start := time.Now()
	a := highlight.Align(req.Script, req.Alignment,
		alignment.WithSegmenter(s.segmenter),
		alignment.WithLogger(observe.Logger(r.Context())),
	)
	if s.metrics != nil {
		s.metrics.AlignmentDuration.Record(r.Context(), time.Since(start).Seconds())
		s.metrics.RecordHighlight(r.Context(), len(a.Ranges), a.InSync)
	}
	writeJSON(w, http.StatusOK, newHighlightResponse(a))
}
