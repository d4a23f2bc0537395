package resilience

import (
	"context"

	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

var _ tts.Speaker = (*SpeakerFallback)(nil)

// SpeakerFallback is a [tts.Speaker] that fails over between single-utterance
// backends.
//
// Voice IDs are provider specific, so a request is handed to a fallback with
// the voice chosen by that fallback's VoiceFor function instead of the
// primary's voice.
type SpeakerFallback struct {
	group  *FallbackGroup[speakerMember]
	served func(name string)
}

type speakerMember struct {
	name     string
	speaker  tts.Speaker
	voiceFor func(tts.SpeechRequest) tts.VoiceProfile
}

// NewSpeakerFallback returns a fallback chain starting with primary, which
// receives requests unchanged.
func NewSpeakerFallback(primary tts.Speaker, name string, cfg FallbackConfig) *SpeakerFallback {
	return &SpeakerFallback{
		group: NewFallbackGroup(speakerMember{name: name, speaker: primary}, name, cfg),
	}
}

// AddFallback appends s to the chain. voiceFor maps a request to a voice s
// understands; nil keeps the request's voice.
func (f *SpeakerFallback) AddFallback(name string, s tts.Speaker, voiceFor func(tts.SpeechRequest) tts.VoiceProfile) {
	f.group.AddFallback(name, speakerMember{name: name, speaker: s, voiceFor: voiceFor})
}

// OnServed registers fn to be told which backend produced each successful
// synthesis.
func (f *SpeakerFallback) OnServed(fn func(name string)) { f.served = fn }

// Synthesize implements [tts.Speaker].
func (f *SpeakerFallback) Synthesize(ctx context.Context, req tts.SpeechRequest) (*tts.Speech, error) {
	return Call(ctx, f.group, func(ctx context.Context, m speakerMember) (*tts.Speech, error) {
		r := req
		if m.voiceFor != nil {
			r.Voice = m.voiceFor(req)
		}
		speech, err := m.speaker.Synthesize(ctx, r)
		if err == nil && f.served != nil {
			f.served(m.name)
		}
		return speech, err
	})
}

// ListVoices implements [tts.Speaker] with the voices of the first healthy
// backend.
func (f *SpeakerFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return Call(ctx, f.group, func(ctx context.Context, m speakerMember) ([]tts.VoiceProfile, error) {
		return m.speaker.ListVoices(ctx)
	})
}
