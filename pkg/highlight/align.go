package highlight

import (
	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/dialogue"
)

// Alignment is the combined result of aligning a script with provider timing
// data.
type Alignment struct {
	Entries    []dialogue.Entry       `json:"entries"`
	Transcript string                 `json:"transcript"`
	Timings    []alignment.WordTiming `json:"timings"`
	Ranges     []Range                `json:"ranges"`

	// InSync reports whether the spoken transcript equals the transcript
	// derived from the script. When false, Ranges is empty.
	InSync bool `json:"inSync"`
}

// InSync reports whether transcript is exactly the transcript built from
// entries. A script edited after synthesis is out of sync with its audio and
// must not be highlighted.
func InSync(entries []dialogue.Entry, transcript string) bool {
	return dialogue.BuildTranscript(entries) == transcript
}

// Align parses script, derives word timings from p, and maps them onto the
// script. Highlighting is suppressed when the script no longer matches the
// spoken transcript.
func Align(script string, p *alignment.Payload, opts ...alignment.Option) Alignment {
	entries := dialogue.Parse(script)
	res := alignment.Build(p, opts...)

	a := Alignment{
		Entries:    entries,
		Transcript: res.Transcript,
		Timings:    res.Timings,
		InSync:     len(entries) > 0 && InSync(entries, res.Transcript),
	}
	if a.InSync {
		a.Ranges = Build(script, entries, res.Timings)
	}
	return a
}

// Active returns the ranges of the word being spoken at time t (seconds), or
// nil between words.
func (a Alignment) Active(t float64) []Range {
	idx := alignment.WordAt(a.Timings, t)
	if idx < 0 {
		return nil
	}
	wordIndex := a.Timings[idx].WordIndex
	var out []Range
	for _, r := range a.Ranges {
		if r.WordIndex == wordIndex {
			out = append(out, r)
		}
	}
	return out
}
