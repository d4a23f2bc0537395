// Package tts defines the interfaces for speech synthesis backends.
//
// Three capabilities are modelled separately because providers rarely offer
// all of them:
//
//   - [DialogueSynthesizer] renders a multi-voice dialogue in one request and
//     returns per-character timing for the whole transcript.
//   - [Speaker] renders a single utterance (pronunciation practice).
//   - [Streamer] renders text fragments over a persistent connection and
//     reports per-character timing alongside each audio chunk.
//
// Timing data is always returned in the shapes defined by package alignment so
// that callers never see provider wire formats.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// DialogueSynthesizer renders a dialogue with one voice per input.
type DialogueSynthesizer interface {
	// SynthesizeDialogue renders all inputs in order as a single audio file.
	// The returned alignment covers the concatenation of every input's text
	// without separators.
	//
	// Returns an error if the request is rejected or the provider returns no
	// audio.
	SynthesizeDialogue(ctx context.Context, req DialogueRequest) (*DialogueResult, error)
}

// Speaker renders single utterances.
type Speaker interface {
	// Synthesize renders req.Text with req.Voice and returns the encoded audio.
	Synthesize(ctx context.Context, req SpeechRequest) (*Speech, error)

	// ListVoices returns the voices available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

// Streamer renders a stream of text fragments with timing information.
type Streamer interface {
	// SynthesizeStream consumes text fragments until text is closed and emits
	// audio chunks as they arrive. The returned channel is closed when all
	// audio has been received or ctx is cancelled; callers must drain it.
	//
	// Returns a non-nil error only if the stream cannot be started.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan StreamChunk, error)
}

// Provider offers every synthesis capability. Backends that only implement a
// subset are wired through the narrower interfaces.
type Provider interface {
	DialogueSynthesizer
	Speaker
	Streamer
}
