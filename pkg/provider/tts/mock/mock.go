// Package mock provides a test double for the tts interfaces.
//
// Provider implements [tts.DialogueSynthesizer], [tts.Speaker] and
// [tts.Streamer]. When DialogueResult is nil, SynthesizeDialogue fabricates a
// result whose alignment speaks the concatenated input texts one character
// every 100ms, which is what most alignment tests need.
//
// Example:
//
//	p := &mock.Provider{
//	    SpeechResult:     &tts.Speech{Audio: []byte("mp3"), MIMEType: "audio/mpeg"},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
//	res, _ := p.SynthesizeDialogue(ctx, req)
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

var (
	_ tts.DialogueSynthesizer = (*Provider)(nil)
	_ tts.Speaker             = (*Provider)(nil)
	_ tts.Streamer            = (*Provider)(nil)
)

// CharDuration is the per-character duration of fabricated alignments, in
// seconds.
const CharDuration = 0.1

// DialogueCall records a single invocation of SynthesizeDialogue.
type DialogueCall struct {
	Ctx     context.Context
	Request tts.DialogueRequest
}

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Ctx     context.Context
	Request tts.SpeechRequest
}

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	Ctx   context.Context
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of the tts interfaces.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// DialogueResult is returned by SynthesizeDialogue. When nil a result is
	// fabricated from the request.
	DialogueResult *tts.DialogueResult

	// DialogueErr, if non-nil, is returned by SynthesizeDialogue.
	DialogueErr error

	// SpeechResult is returned by Synthesize. When nil a result echoing the
	// request text as audio is returned.
	SpeechResult *tts.Speech

	// SpeechErr, if non-nil, is returned by Synthesize.
	SpeechErr error

	// StreamChunks is emitted by SynthesizeStream.
	StreamChunks []tts.StreamChunk

	// StreamErr, if non-nil, is returned by SynthesizeStream.
	StreamErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	// --- Call records ---

	DialogueCalls         []DialogueCall
	SynthesizeCalls       []SynthesizeCall
	SynthesizeStreamCalls []SynthesizeStreamCall
	ListVoicesCalls       int
}

// SynthesizeDialogue records the call and returns DialogueResult or a
// fabricated result.
func (p *Provider) SynthesizeDialogue(ctx context.Context, req tts.DialogueRequest) (*tts.DialogueResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DialogueCalls = append(p.DialogueCalls, DialogueCall{Ctx: ctx, Request: req})
	if p.DialogueErr != nil {
		return nil, p.DialogueErr
	}
	if p.DialogueResult != nil {
		return p.DialogueResult, nil
	}
	return Fabricate(req), nil
}

// Fabricate builds a dialogue result that speaks every input text in order,
// one character per [CharDuration].
func Fabricate(req tts.DialogueRequest) *tts.DialogueResult {
	var (
		b        strings.Builder
		segments []tts.VoiceSegment
	)
	for i, in := range req.Inputs {
		start := len([]rune(b.String()))
		b.WriteString(in.Text)
		end := len([]rune(b.String()))
		segments = append(segments, tts.VoiceSegment{
			VoiceID:        in.VoiceID,
			Start:          float64(start) * CharDuration,
			End:            float64(end) * CharDuration,
			CharacterStart: start,
			CharacterEnd:   end,
			InputIndex:     i,
		})
	}

	format := req.OutputFormat
	if format == "" {
		format = "mp3_44100_128"
	}
	return &tts.DialogueResult{
		Audio:         []byte("mock-audio:" + b.String()),
		MIMEType:      tts.MIMEType(format),
		OutputFormat:  format,
		Alignment:     Uniform(b.String()),
		VoiceSegments: segments,
	}
}

// Uniform returns an alignment payload that speaks text one character per
// [CharDuration].
func Uniform(text string) *alignment.Payload {
	p := &alignment.Payload{}
	for i, r := range []rune(text) {
		p.Characters = append(p.Characters, string(r))
		p.StartTimes = append(p.StartTimes, float64(i)*CharDuration)
		p.EndTimes = append(p.EndTimes, float64(i+1)*CharDuration)
	}
	return p
}

// Synthesize records the call and returns SpeechResult, SpeechErr.
func (p *Provider) Synthesize(ctx context.Context, req tts.SpeechRequest) (*tts.Speech, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Request: req})
	if p.SpeechErr != nil {
		return nil, p.SpeechErr
	}
	if p.SpeechResult != nil {
		return p.SpeechResult, nil
	}
	format := req.OutputFormat
	if format == "" {
		format = "mp3_44100_128"
	}
	return &tts.Speech{
		Audio:        []byte(req.Text),
		MIMEType:     tts.MIMEType(format),
		OutputFormat: format,
		Voice:        req.Voice,
	}, nil
}

// SynthesizeStream records the call and, if StreamErr is nil, returns a
// channel that emits StreamChunks after text is closed.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan tts.StreamChunk, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Ctx: ctx, Voice: voice})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]tts.StreamChunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	p.mu.Unlock()

	ch := make(chan tts.StreamChunk, len(chunks))
	go func() {
		defer close(ch)
		for range text {
		}
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// DialogueCallCount returns the number of SynthesizeDialogue calls. Thread-safe.
func (p *Provider) DialogueCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.DialogueCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DialogueCalls = nil
	p.SynthesizeCalls = nil
	p.SynthesizeStreamCalls = nil
	p.ListVoicesCalls = 0
}
