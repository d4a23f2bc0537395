package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/dialoguelab/internal/observe"
	"github.com/MrWong99/dialoguelab/internal/voices"
	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

const (
	PronunciationModel   = "eleven_multilingual_v2"
	PronunciationLatency = 1
)

// PronunciationRequest is the client payload for a pronunciation snippet.
type PronunciationRequest struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
	VoiceID      string `json:"voiceId,omitempty"`
}

// Pronunciation is a rendered snippet.
type Pronunciation struct {
	Audio        []byte
	MIMEType     string
	VoiceID      string
	OutputFormat string
}

// AlignedPronunciation is a snippet rendered over the streaming API together
// with its word timings.
type AlignedPronunciation struct {
	Pronunciation
	Alignment  *alignment.Payload
	Transcript string
	Timings    []alignment.WordTiming
}

type pronunciationPlan struct {
	text     string
	language string
	voice    tts.VoiceProfile
}

// PronunciationOption configures a [PronunciationService].
type PronunciationOption func(*PronunciationService)

// WithStreamer enables [PronunciationService.SynthesizeAligned].
func WithStreamer(h *Handle[tts.Streamer]) PronunciationOption {
	return func(s *PronunciationService) { s.streamer = h }
}

// WithPronunciationMaxChars sets the text length limit in runes.
func WithPronunciationMaxChars(n int) PronunciationOption {
	return func(s *PronunciationService) {
		if n > 0 {
			s.maxChars = n
		}
	}
}

// WithPronunciationFormat sets the audio format requested from the provider.
func WithPronunciationFormat(format string) PronunciationOption {
	return func(s *PronunciationService) {
		if format != "" {
			s.format = format
		}
	}
}

// WithPronunciationModel overrides [PronunciationModel].
func WithPronunciationModel(model string) PronunciationOption {
	return func(s *PronunciationService) {
		if model != "" {
			s.model = model
		}
	}
}

// WithPronunciationSegmenter selects the word segmenter for aligned snippets.
func WithPronunciationSegmenter(seg alignment.Segmenter) PronunciationOption {
	return func(s *PronunciationService) { s.segmenter = seg }
}

// WithPronunciationMetrics records provider latency.
func WithPronunciationMetrics(m *observe.Metrics, provider string) PronunciationOption {
	return func(s *PronunciationService) {
		s.metrics = m
		if provider != "" {
			s.providerName = provider
		}
	}
}

// PronunciationService renders single utterances for pronunciation practice.
type PronunciationService struct {
	speaker      *Handle[tts.Speaker]
	streamer     *Handle[tts.Streamer]
	maxChars     int
	format       string
	model        string
	segmenter    alignment.Segmenter
	metrics      *observe.Metrics
	providerName string
}

// NewPronunciationService creates a service using speaker, which may itself
// be a fallback chain.
func NewPronunciationService(speaker *Handle[tts.Speaker], opts ...PronunciationOption) *PronunciationService {
	s := &PronunciationService{
		speaker:      speaker,
		maxChars:     DefaultMaxChars,
		format:       DefaultOutputFormat,
		model:        PronunciationModel,
		providerName: "tts",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *PronunciationService) plan(req PronunciationRequest) (pronunciationPlan, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return pronunciationPlan{}, ErrTextRequired
	}
	if len([]rune(text)) > s.maxChars {
		return pronunciationPlan{}, &limitError{subject: "Text", limit: s.maxChars, kind: ErrTextTooLong}
	}
	lang := voices.NormalizeLanguage(req.LanguageCode)
	if _, ok := voices.PronunciationVoice(lang); !ok {
		return pronunciationPlan{}, &languageError{code: lang}
	}
	v := voices.ResolvePronunciation(lang, req.VoiceID)
	return pronunciationPlan{
		text:     text,
		language: lang,
		voice:    tts.VoiceProfile{ID: v.ID, Name: v.Label, Language: lang},
	}, nil
}

// Validate reports the error [PronunciationService.Synthesize] would return
// for req before contacting a provider.
func (s *PronunciationService) Validate(req PronunciationRequest) error {
	_, err := s.plan(req)
	return err
}

// Synthesize renders req.Text with the catalog voice for req.LanguageCode or
// with req.VoiceID when given.
func (s *PronunciationService) Synthesize(ctx context.Context, req PronunciationRequest) (*Pronunciation, error) {
	p, err := s.plan(req)
	if err != nil {
		return nil, err
	}
	speaker, err := s.speaker.Get()
	if err != nil {
		return nil, err
	}

	ctx, call := observe.StartCall(ctx, s.metrics, "tts", s.providerName, "pronounce")
	speech, err := speaker.Synthesize(ctx, tts.SpeechRequest{
		Text:                     p.text,
		Voice:                    p.voice,
		ModelID:                  s.model,
		OutputFormat:             s.format,
		LanguageCode:             p.language,
		OptimizeStreamingLatency: PronunciationLatency,
	})
	call.End(err)
	if err != nil {
		return nil, fmt.Errorf("synth: pronounce: %w", err)
	}
	if speech == nil || len(speech.Audio) == 0 {
		return nil, fmt.Errorf("synth: pronounce: %w", tts.ErrNoAudio)
	}

	out := &Pronunciation{
		Audio:        speech.Audio,
		MIMEType:     speech.MIMEType,
		VoiceID:      speech.Voice.ID,
		OutputFormat: speech.OutputFormat,
	}
	if out.VoiceID == "" {
		out.VoiceID = p.voice.ID
	}
	if out.OutputFormat == "" {
		out.OutputFormat = s.format
	}
	if out.MIMEType == "" {
		out.MIMEType = tts.MIMEType(out.OutputFormat)
	}
	return out, nil
}

// SynthesizeAligned renders req over the streaming provider and returns the
// audio with per-word timing.
func (s *PronunciationService) SynthesizeAligned(ctx context.Context, req PronunciationRequest) (*AlignedPronunciation, error) {
	p, err := s.plan(req)
	if err != nil {
		return nil, err
	}
	streamer, err := s.streamer.Get()
	if err != nil {
		return nil, err
	}

	text := make(chan string, 1)
	text <- p.text
	close(text)

	ctx, call := observe.StartCall(ctx, s.metrics, "tts", s.providerName, "pronounce_stream")
	chunks, err := streamer.SynthesizeStream(ctx, text, p.voice)
	if err != nil {
		call.End(err)
		return nil, fmt.Errorf("synth: pronounce stream: %w", err)
	}

	var (
		audio     []byte
		acc       alignment.StreamAccumulator
		streamErr error
	)
	for c := range chunks {
		if c.Err != nil {
			if streamErr == nil {
				streamErr = c.Err
			}
			continue
		}
		audio = append(audio, c.Audio...)
		acc.Add(c.Alignment)
	}
	if streamErr == nil {
		streamErr = ctx.Err()
	}
	if streamErr != nil {
		call.End(streamErr)
		return nil, fmt.Errorf("synth: pronounce stream: %w", streamErr)
	}
	if len(audio) == 0 {
		err := fmt.Errorf("synth: pronounce stream: %w", tts.ErrNoAudio)
		call.End(err)
		return nil, err
	}
	call.End(nil)

	payload := acc.Payload()
	res := alignment.Build(payload, alignment.WithSegmenter(s.segmenter))
	return &AlignedPronunciation{
		Pronunciation: Pronunciation{
			Audio:        audio,
			MIMEType:     tts.MIMEType(s.format),
			VoiceID:      p.voice.ID,
			OutputFormat: s.format,
		},
		Alignment:  payload,
		Transcript: res.Transcript,
		Timings:    res.Timings,
	}, nil
}
