package tts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/dialoguelab/pkg/alignment"
)

// ErrNoAudio is returned when a provider answers successfully but without any
// audio data.
var ErrNoAudio = errors.New("tts: provider returned no audio")

// VoiceProfile identifies a provider voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Provider identifies which TTS provider this voice belongs to.
	Provider string `json:"provider,omitempty"`

	// Language is the language code the voice is intended for, if known.
	Language string `json:"language,omitempty"`

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DialogueInput is one line of a dialogue request.
type DialogueInput struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// DialogueRequest asks a [DialogueSynthesizer] to render a dialogue.
type DialogueRequest struct {
	Inputs []DialogueInput

	// ModelID selects the provider model. Empty uses the provider default.
	ModelID string

	// OutputFormat is the provider audio format (e.g. "mp3_44100_128").
	// Empty uses the provider default.
	OutputFormat string

	// LanguageCode hints the spoken language (ISO 639-1).
	LanguageCode string
}

// VoiceSegment reports which input occupies which part of the audio.
type VoiceSegment struct {
	VoiceID        string  `json:"voiceId"`
	Start          float64 `json:"startTimeSeconds"`
	End            float64 `json:"endTimeSeconds"`
	CharacterStart int     `json:"characterStartIndex"`
	CharacterEnd   int     `json:"characterEndIndex"`
	InputIndex     int     `json:"dialogueInputIndex"`
}

// DialogueResult is the output of [DialogueSynthesizer.SynthesizeDialogue].
type DialogueResult struct {
	Audio        []byte
	MIMEType     string
	OutputFormat string

	// Alignment covers the transcript as submitted. NormalizedAlignment, when
	// present, covers the provider's internally normalised text.
	Alignment           *alignment.Payload
	NormalizedAlignment *alignment.Payload

	VoiceSegments []VoiceSegment
}

// SpeechRequest asks a [Speaker] to render one utterance.
type SpeechRequest struct {
	Text  string
	Voice VoiceProfile

	// ModelID and OutputFormat override the provider defaults when non-empty.
	ModelID      string
	OutputFormat string

	// LanguageCode hints the spoken language (ISO 639-1).
	LanguageCode string

	// OptimizeStreamingLatency trades quality for latency (0 = off).
	OptimizeStreamingLatency int
}

// Speech is a rendered utterance.
type Speech struct {
	Audio        []byte
	MIMEType     string
	OutputFormat string
	Voice        VoiceProfile
}

// StreamChunk is one message of a streaming synthesis session. Audio or
// Alignment may be empty. Alignment timestamps are relative to the chunk.
//
// A chunk with a non-nil Err is the last one: the provider failed after the
// stream started and everything received so far is incomplete.
type StreamChunk struct {
	Audio     []byte
	Alignment *alignment.Stream
	Err       error
}

// MIMEType returns the content type of a provider output format such as
// "mp3_44100_128" or "pcm_16000". Unknown formats map to audio/mpeg.
func MIMEType(outputFormat string) string {
	format := strings.ToLower(outputFormat)
	switch {
	case strings.HasPrefix(format, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "pcm"), strings.HasPrefix(format, "wav"):
		return "audio/wav"
	case strings.HasPrefix(format, "opus"):
		return "audio/ogg"
	case strings.HasPrefix(format, "ulaw"), strings.HasPrefix(format, "alaw"):
		return "audio/basic"
	default:
		return "audio/mpeg"
	}
}

// StatusError reports a non-success HTTP response from a provider.
type StatusError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %s: unexpected status %d", e.Provider, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: unexpected status %d: %s", e.Provider, e.Op, e.StatusCode, e.Body)
}
