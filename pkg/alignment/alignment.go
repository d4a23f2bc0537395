// Package alignment turns per-character timing data returned by a speech
// synthesis provider into timed words.
//
// A provider reports one element per spoken character together with the
// moment that character starts and ends in the audio. [Build] reconstructs
// the transcript the provider actually spoke, splits it into words with a
// configurable [Segmenter], and attaches a start and end time to each word.
//
// Provider payloads are untrusted: arrays may have different lengths and
// individual timestamps may be missing. Missing timestamps are represented as
// NaN inside a [Payload]; see [FromSeconds] and [FromStream] for the
// conversion from provider wire shapes.
package alignment

import (
	"log/slog"
	"math"
	"strings"
)

// Payload is per-character alignment data in seconds. The three slices are
// parallel; a NaN time marks a missing timestamp.
type Payload struct {
	Characters []string
	StartTimes []float64
	EndTimes   []float64
}

// Len returns the number of usable positions, the minimum of the three slice
// lengths. A nil payload has length zero.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return min(len(p.Characters), len(p.StartTimes), len(p.EndTimes))
}

// Transcript returns the concatenation of the first Len characters.
func (p *Payload) Transcript() string {
	n := p.Len()
	if n == 0 {
		return ""
	}
	return strings.Join(p.Characters[:n], "")
}

// WordTiming is one timed word of the spoken transcript.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"startTime"`
	End   float64 `json:"endTime"`

	// TranscriptStart and TranscriptEnd are a half-open rune range into the
	// transcript returned alongside this timing.
	TranscriptStart int `json:"transcriptStartIndex"`
	TranscriptEnd   int `json:"transcriptEndIndex"`

	// WordIndex is the position of this timing in the emitted sequence.
	WordIndex int `json:"wordIndex"`
}

// Duration returns End - Start in seconds.
func (w WordTiming) Duration() float64 {
	return w.End - w.Start
}

// Result is the output of [Build].
type Result struct {
	Transcript string       `json:"transcript"`
	Timings    []WordTiming `json:"timings"`
}

// Option configures [Build].
type Option func(*options)

type options struct {
	segmenter Segmenter
	logger    *slog.Logger
}

// WithSegmenter selects the word segmentation strategy. Default: [SegmentManual].
func WithSegmenter(s Segmenter) Option {
	return func(o *options) {
		o.segmenter = s
	}
}

// WithLogger sets the logger used for data-quality warnings. Default:
// [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Build derives the spoken transcript and its word timings from p.
//
// A nil or empty payload yields an empty result. When the slices differ in
// length they are truncated to the shortest and a warning is logged. Words
// whose first start time or last end time is missing are dropped; the
// remaining words keep consecutive WordIndex values. A word whose end time
// precedes its start time is clamped to zero duration.
func Build(p *Payload, opts ...Option) Result {
	o := options{segmenter: SegmentManual, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if p == nil || len(p.Characters) == 0 {
		o.logger.Debug("alignment: no alignment data", "nil_payload", p == nil)
		return Result{}
	}

	n := p.Len()
	if n != len(p.Characters) || n != len(p.StartTimes) || n != len(p.EndTimes) {
		o.logger.Warn("alignment: mismatched array lengths",
			"characters", len(p.Characters),
			"start_times", len(p.StartTimes),
			"end_times", len(p.EndTimes),
			"usable", n,
		)
	}
	if n == 0 {
		return Result{}
	}

	transcript := p.Transcript()
	runes := []rune(transcript)

	var spans []span
	switch o.segmenter {
	case SegmentUAX29:
		spans = segmentUAX29(transcript)
	default:
		spans = segmentManual(runes)
	}

	timings := make([]WordTiming, 0, len(spans))
	for _, sp := range spans {
		if sp.end <= sp.start {
			continue
		}
		if sp.start < 0 || sp.end > len(runes) || sp.end > n {
			o.logger.Warn("alignment: ignoring out-of-bounds segment", "start", sp.start, "end", sp.end)
			continue
		}

		start := p.StartTimes[sp.start]
		end := p.EndTimes[sp.end-1]
		if missing(start) || missing(end) {
			o.logger.Debug("alignment: missing timing for segment", "start", sp.start, "end", sp.end)
			continue
		}
		if end < start {
			end = start
		}

		timings = append(timings, WordTiming{
			Word:            string(runes[sp.start:sp.end]),
			Start:           start,
			End:             end,
			TranscriptStart: sp.start,
			TranscriptEnd:   sp.end,
			WordIndex:       len(timings),
		})
	}

	return Result{Transcript: transcript, Timings: timings}
}

// WordAt returns the index of the timing being spoken at time t (seconds), or
// -1 when t falls before the first word, after the last, or in a pause
// between words.
func WordAt(timings []WordTiming, t float64) int {
	lo, hi := 0, len(timings)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case t < timings[mid].Start:
			hi = mid
		case t > timings[mid].End:
			lo = mid + 1
		default:
			return mid
		}
	}
	return -1
}

func missing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
