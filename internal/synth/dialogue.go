// Package synth renders dialogue scripts and pronunciation snippets to audio
// and aligns the returned timing data with the submitted text.
//
// Providers are reached through [Handle] values so that an unconfigured or
// broken provider surfaces as [ErrNotConfigured] on use instead of failing
// startup. Rendered dialogues are kept as takes: a second request for the
// same transcript, voices, language and format is served from the take store
// without calling the provider.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/dialoguelab/internal/audiostore"
	"github.com/MrWong99/dialoguelab/internal/observe"
	"github.com/MrWong99/dialoguelab/internal/takestore"
	"github.com/MrWong99/dialoguelab/internal/voices"
	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/dialogue"
	"github.com/MrWong99/dialoguelab/pkg/highlight"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

const (
	DefaultMaxChars     = 5000
	DefaultOutputFormat = "mp3_44100_128"
)

// DialogueRequest is the client payload for dialogue audio.
type DialogueRequest struct {
	Script   string `json:"script"`
	Language string `json:"language,omitempty"`
}

// DialoguePlan is a validated dialogue request ready for synthesis.
type DialoguePlan struct {
	// Script is the script as submitted. Highlight ranges index into it.
	Script     string
	Entries    []dialogue.Entry
	Transcript string

	// Language is the lower-cased language code sent to the provider; Voices
	// were chosen for VoiceLanguage.
	Language      string
	VoiceLanguage string

	Slots  []voices.Slot
	Inputs []tts.DialogueInput
	Key    string
}

// VoiceIDs returns the voice of every input in order.
func (p *DialoguePlan) VoiceIDs() []string {
	ids := make([]string, len(p.Inputs))
	for i, in := range p.Inputs {
		ids[i] = in.VoiceID
	}
	return ids
}

// DialogueTake is a rendered dialogue together with its alignment against the
// submitted script.
type DialogueTake struct {
	Take      *takestore.Take
	Audio     []byte
	Alignment highlight.Alignment

	// Cached is true when the audio came from the take store.
	Cached bool
}

// DialogueOption configures a [DialogueService].
type DialogueOption func(*DialogueService)

// WithTakeStore enables take caching and lookup.
func WithTakeStore(s takestore.Store) DialogueOption {
	return func(d *DialogueService) { d.takes = s }
}

// WithAudioStore sets where rendered audio is kept. Without one, takes are
// stored without audio and cannot be served from cache.
func WithAudioStore(s audiostore.Store) DialogueOption {
	return func(d *DialogueService) { d.audio = s }
}

// WithAssigner sets the speaker to voice policy. The default is
// [voices.HeuristicStrategy].
func WithAssigner(a voices.Assigner) DialogueOption {
	return func(d *DialogueService) { d.SetAssigner(a) }
}

// WithMaxChars sets the script length limit in runes.
func WithMaxChars(n int) DialogueOption {
	return func(d *DialogueService) {
		if n > 0 {
			d.maxChars = n
		}
	}
}

// WithDialogueModel selects the provider's dialogue model.
func WithDialogueModel(model string) DialogueOption {
	return func(d *DialogueService) { d.model = model }
}

// WithOutputFormat sets the audio format requested from the provider.
func WithOutputFormat(format string) DialogueOption {
	return func(d *DialogueService) {
		if format != "" {
			d.format = format
		}
	}
}

// WithSegmenter selects the word segmenter used for alignment.
func WithSegmenter(s alignment.Segmenter) DialogueOption {
	return func(d *DialogueService) { d.segmenter = s }
}

// WithDialogueMetrics records provider latency, take lookups and alignment
// statistics.
func WithDialogueMetrics(m *observe.Metrics) DialogueOption {
	return func(d *DialogueService) { d.metrics = m }
}

// WithDialogueProviderName labels metrics for the provider.
func WithDialogueProviderName(name string) DialogueOption {
	return func(d *DialogueService) { d.providerName = name }
}

// DialogueService renders dialogue scripts with one voice per speaker.
type DialogueService struct {
	provider     *Handle[tts.DialogueSynthesizer]
	takes        takestore.Store
	audio        audiostore.Store
	assigner     atomic.Pointer[voices.Assigner]
	maxChars     int
	model        string
	format       string
	segmenter    alignment.Segmenter
	metrics      *observe.Metrics
	providerName string
}

// NewDialogueService creates a service using provider. A nil provider is
// allowed; synthesis then fails with [ErrNotConfigured].
func NewDialogueService(provider *Handle[tts.DialogueSynthesizer], opts ...DialogueOption) *DialogueService {
	d := &DialogueService{
		provider:     provider,
		maxChars:     DefaultMaxChars,
		format:       DefaultOutputFormat,
		providerName: "tts",
	}
	d.SetAssigner(voices.Fixed(voices.HeuristicStrategy))
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetAssigner swaps the voice policy. It is safe to call while requests are
// in flight.
func (d *DialogueService) SetAssigner(a voices.Assigner) {
	if a == nil {
		a = voices.Fixed(voices.HeuristicStrategy)
	}
	d.assigner.Store(&a)
}

// Plan validates req and decides the provider inputs without calling the
// provider.
func (d *DialogueService) Plan(req DialogueRequest) (*DialoguePlan, error) {
	trimmed := strings.TrimSpace(req.Script)
	if trimmed == "" {
		return nil, ErrEmptyScript
	}
	if len([]rune(trimmed)) > d.maxChars {
		return nil, &limitError{subject: "Dialogue text", limit: d.maxChars, kind: ErrScriptTooLong}
	}
	entries := dialogue.Parse(req.Script)
	if len(entries) == 0 {
		return nil, ErrNoLines
	}

	pair, voiceLang := voices.DialoguePair(req.Language)
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.SpeakerLabel
	}
	slots := voices.Assign(*d.assigner.Load(), labels)

	inputs := make([]tts.DialogueInput, len(entries))
	for i, e := range entries {
		inputs[i] = tts.DialogueInput{Text: e.NormalizedText, VoiceID: pair.Voice(slots[i]).ID}
	}

	p := &DialoguePlan{
		Script:        req.Script,
		Entries:       entries,
		Transcript:    dialogue.BuildTranscript(entries),
		Language:      voices.NormalizeLanguage(req.Language),
		VoiceLanguage: voiceLang,
		Slots:         slots,
		Inputs:        inputs,
	}
	p.Key = takestore.Key(p.Transcript, p.VoiceIDs(), p.Language, d.model, d.format)
	return p, nil
}

// Synthesize renders req, reusing a stored take when one matches.
func (d *DialogueService) Synthesize(ctx context.Context, req DialogueRequest) (*DialogueTake, error) {
	plan, err := d.Plan(req)
	if err != nil {
		return nil, err
	}

	if cached := d.lookup(ctx, plan); cached != nil {
		return cached, nil
	}

	provider, err := d.provider.Get()
	if err != nil {
		return nil, err
	}

	ctx, call := observe.StartCall(ctx, d.metrics, "tts", d.providerName, "dialogue")
	res, err := provider.SynthesizeDialogue(ctx, tts.DialogueRequest{
		Inputs:       plan.Inputs,
		ModelID:      d.model,
		OutputFormat: d.format,
		LanguageCode: plan.Language,
	})
	call.End(err)
	if err != nil {
		return nil, fmt.Errorf("synth: dialogue: %w", err)
	}
	if res == nil || len(res.Audio) == 0 {
		return nil, fmt.Errorf("synth: dialogue: %w", tts.ErrNoAudio)
	}

	payload := res.Alignment
	if payload == nil {
		payload = res.NormalizedAlignment
	}
	take := &takestore.Take{
		Key:                 plan.Key,
		Language:            plan.Language,
		Script:              plan.Script,
		Transcript:          plan.Transcript,
		MIMEType:            res.MIMEType,
		OutputFormat:        res.OutputFormat,
		Alignment:           res.Alignment,
		NormalizedAlignment: res.NormalizedAlignment,
		VoiceSegments:       res.VoiceSegments,
		Voices:              plan.VoiceIDs(),
	}
	if take.OutputFormat == "" {
		take.OutputFormat = d.format
	}
	if take.MIMEType == "" {
		take.MIMEType = tts.MIMEType(take.OutputFormat)
	}

	out := &DialogueTake{
		Take:      take,
		Audio:     res.Audio,
		Alignment: d.align(ctx, plan.Script, payload),
	}
	if !out.Alignment.InSync {
		slog.Warn("synth: provider transcript differs from script",
			"script_runes", len([]rune(plan.Transcript)),
			"provider_runes", len([]rune(out.Alignment.Transcript)))
	}
	d.store(ctx, take, res.Audio)
	return out, nil
}

// lookup returns a cached take for plan, or nil.
func (d *DialogueService) lookup(ctx context.Context, plan *DialoguePlan) *DialogueTake {
	if d.takes == nil || d.audio == nil {
		return nil
	}
	take, err := d.takes.FindByKey(ctx, plan.Key)
	if err == nil && take.AudioKey != "" {
		var obj *audiostore.Object
		obj, err = d.audio.Get(ctx, take.AudioKey)
		if err == nil {
			d.recordLookup(ctx, true)
			payload := take.Alignment
			if payload == nil {
				payload = take.NormalizedAlignment
			}
			return &DialogueTake{
				Take:      take,
				Audio:     obj.Data,
				Alignment: d.align(ctx, plan.Script, payload),
				Cached:    true,
			}
		}
	}
	if err != nil && !errors.Is(err, takestore.ErrNotFound) && !errors.Is(err, audiostore.ErrNotFound) {
		slog.Warn("synth: take lookup failed", "key", plan.Key, "err", err)
	}
	d.recordLookup(ctx, false)
	return nil
}

// store persists a freshly rendered take. Failures are logged; the caller
// still gets the audio, just without a take ID.
func (d *DialogueService) store(ctx context.Context, take *takestore.Take, audio []byte) {
	if d.takes == nil || d.audio == nil {
		return
	}
	key := audiostore.NewKey(take.MIMEType)
	if err := d.audio.Put(ctx, key, audiostore.Object{Data: audio, MIMEType: take.MIMEType}); err != nil {
		slog.Warn("synth: store audio failed", "err", err)
		return
	}
	take.AudioKey = key
	if err := d.takes.Put(ctx, take); err != nil {
		slog.Warn("synth: store take failed", "err", err)
		take.ID = ""
		if delErr := d.audio.Delete(ctx, key); delErr != nil {
			slog.Warn("synth: remove orphaned audio failed", "key", key, "err", delErr)
		}
		return
	}
	slog.Debug("synth: stored take", "take_id", take.ID, "audio_key", key)
}

func (d *DialogueService) align(ctx context.Context, script string, p *alignment.Payload) highlight.Alignment {
	start := time.Now()
	a := highlight.Align(script, p, alignment.WithSegmenter(d.segmenter))
	if d.metrics != nil {
		d.metrics.AlignmentDuration.Record(ctx, time.Since(start).Seconds())
		d.metrics.RecordHighlight(ctx, len(a.Ranges), a.InSync)
	}
	return a
}

func (d *DialogueService) recordLookup(ctx context.Context, hit bool) {
	if d.metrics != nil {
		d.metrics.RecordTakeLookup(ctx, hit)
	}
}

// Take returns a stored take.
func (d *DialogueService) Take(ctx context.Context, id string) (*takestore.Take, error) {
	if d.takes == nil {
		return nil, takestore.ErrNotFound
	}
	return d.takes.Get(ctx, id)
}

// TakeAlignment returns a stored take aligned against its own script.
func (d *DialogueService) TakeAlignment(ctx context.Context, id string) (*takestore.Take, highlight.Alignment, error) {
	take, err := d.Take(ctx, id)
	if err != nil {
		return nil, highlight.Alignment{}, err
	}
	payload := take.Alignment
	if payload == nil {
		payload = take.NormalizedAlignment
	}
	return take, d.align(ctx, take.Script, payload), nil
}

// TakeAudio returns the audio of a stored take.
func (d *DialogueService) TakeAudio(ctx context.Context, id string) (*audiostore.Object, error) {
	take, err := d.Take(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.audio == nil || take.AudioKey == "" {
		return nil, audiostore.ErrNotFound
	}
	obj, err := d.audio.Get(ctx, take.AudioKey)
	if err != nil {
		return nil, err
	}
	if obj.MIMEType == "" {
		obj.MIMEType = take.MIMEType
	}
	return obj, nil
}
