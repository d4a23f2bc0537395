package server

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/MrWong99/dialoguelab/internal/dialoguegen"
	"github.com/MrWong99/dialoguelab/internal/observe"
	"github.com/MrWong99/dialoguelab/internal/synth"
	"github.com/MrWong99/dialoguelab/internal/voices"
	"github.com/MrWong99/dialoguelab/pkg/alignment"
)

// preparePronunciation decodes and validates a pronunciation request. It
// writes the error response and returns false when the request must not
// proceed.
func (s *Server) preparePronunciation(w http.ResponseWriter, r *http.Request) (synth.PronunciationRequest, bool) {
	var req synth.PronunciationRequest
	if s.pronounce == nil {
		s.notConfigured(w, r, pronounceEndpoint)
		return req, false
	}
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, pronounceEndpoint, err)
		return req, false
	}
	if err := s.pronounce.Validate(req); err != nil {
		s.fail(w, r, pronounceEndpoint, err)
		return req, false
	}
	lang := voices.NormalizeLanguage(req.LanguageCode)
	if lang == "" {
		lang = "default"
	}
	observe.Logger(r.Context()).Info("server: generating pronunciation",
		"text_runes", len([]rune(req.Text)),
		"language", lang,
		"voice_override", req.VoiceID != "",
	)
	return req, true
}

// handlePronounce handles POST /api/pronounce. The body is the encoded audio.
func (s *Server) handlePronounce(w http.ResponseWriter, r *http.Request) {
	req, ok := s.preparePronunciation(w, r)
	if !ok {
		return
	}
	p, err := s.pronounce.Synthesize(r.Context(), req)
	if err != nil {
		s.fail(w, r, pronounceEndpoint, err)
		return
	}
	h := w.Header()
	h.Set("Content-Type", p.MIMEType)
	h.Set("Content-Length", strconv.Itoa(len(p.Audio)))
	h.Set("Cache-Control", "no-store")
	h.Set("X-Pronunciation-Voice", p.VoiceID)
	h.Set("X-Pronunciation-Format", p.OutputFormat)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(p.Audio); err != nil {
		observe.Logger(r.Context()).Debug("server: write pronunciation", "err", err)
	}
}

type alignedPronunciationResponse struct {
	AudioBase64  string                 `json:"audioBase64"`
	MIMEType     string                 `json:"mimeType"`
	VoiceID      string                 `json:"voiceId"`
	OutputFormat string                 `json:"outputFormat"`
	Alignment    *alignment.Payload     `json:"alignment"`
	Transcript   string                 `json:"transcript"`
	Timings      []alignment.WordTiming `json:"timings"`
}

// handlePronounceAligned handles POST /api/pronounce/aligned.
func (s *Server) handlePronounceAligned(w http.ResponseWriter, r *http.Request) {
	req, ok := s.preparePronunciation(w, r)
	if !ok {
		return
	}
	p, err := s.pronounce.SynthesizeAligned(r.Context(), req)
	if err != nil {
		s.fail(w, r, pronounceEndpoint, err)
		return
	}
	resp := alignedPronunciationResponse{
		AudioBase64:  base64.StdEncoding.EncodeToString(p.Audio),
		MIMEType:     p.MIMEType,
		VoiceID:      p.VoiceID,
		OutputFormat: p.OutputFormat,
		Alignment:    p.Alignment,
		Transcript:   p.Transcript,
		Timings:      p.Timings,
	}
	if resp.Timings == nil {
		resp.Timings = []alignment.WordTiming{}
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

type voicesResponse struct {
	Dialogue            map[string]voices.Pair  `json:"dialogue"`
	Pronunciation       map[string]voices.Voice `json:"pronunciation"`
	GenerationLanguages []string                `json:"generationLanguages"`
}

// handleVoices handles GET /api/voices.
func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	resp := voicesResponse{
		Dialogue:            make(map[string]voices.Pair),
		Pronunciation:       make(map[string]voices.Voice),
		GenerationLanguages: dialoguegen.SupportedLanguages(),
	}
	for _, lang := range voices.DialogueLanguages() {
		resp.Dialogue[lang], _ = voices.DialoguePair(lang)
	}
	for _, lang := range voices.PronunciationLanguages() {
		resp.Pronunciation[lang], _ = voices.PronunciationVoice(lang)
	}
	writeJSON(w, http.StatusOK, resp)
}
