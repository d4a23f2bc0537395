// Package highlight maps timed words of a synthesised transcript back onto
// the dialogue script the user wrote.
//
// The transcript spoken by a provider is the concatenation of each entry's
// normalised text (see [dialogue.BuildTranscript]). A word timing therefore
// names a range in that transcript; [Build] resolves it through the entries'
// index maps to a character range in the raw script, so a UI can highlight
// the word in place while the audio plays.
package highlight

import (
	"sort"

	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/dialogue"
)

// Range is a half-open rune range of the script to highlight while the word
// with WordIndex is spoken.
type Range struct {
	Start     int `json:"start"`
	End       int `json:"end"`
	WordIndex int `json:"wordIndex"`
}

// Build maps every word timing onto the script. A word that spans two
// entries yields one range per entry, all carrying the same WordIndex. The
// result is sorted by Start; ranges with equal Start keep timing order.
//
// Empty script, entries or timings yield an empty result. Timings that fall
// outside every entry are dropped.
func Build(script string, entries []dialogue.Entry, timings []alignment.WordTiming) []Range {
	if script == "" || len(entries) == 0 || len(timings) == 0 {
		return nil
	}

	scriptLen := len([]rune(script))
	ranges := make([]Range, 0, len(timings))
	cursor := 0

	for _, t := range timings {
		if t.TranscriptEnd <= t.TranscriptStart {
			continue
		}

		// Timings normally arrive in transcript order; fall back to a search
		// when one points behind the cursor.
		if cursor >= len(entries) || t.TranscriptStart < entries[cursor].TranscriptStart {
			cursor = firstOverlapping(entries, t.TranscriptStart)
		}
		for cursor < len(entries) && entries[cursor].TranscriptEnd <= t.TranscriptStart {
			cursor++
		}

		for i := cursor; i < len(entries); i++ {
			e := entries[i]
			if e.TranscriptStart >= t.TranscriptEnd {
				break
			}
			r, ok := mapOnto(e, t, scriptLen)
			if !ok {
				continue
			}
			ranges = append(ranges, r)
		}
	}

	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].Start < ranges[j].Start
	})
	return ranges
}

// mapOnto resolves the part of t that overlaps e.
func mapOnto(e dialogue.Entry, t alignment.WordTiming, scriptLen int) (Range, bool) {
	m := e.NormalizedToOriginal
	if len(m) == 0 {
		return Range{}, false
	}

	from := max(0, t.TranscriptStart-e.TranscriptStart)
	to := min(t.TranscriptEnd, e.TranscriptEnd) - e.TranscriptStart
	if to <= from || to > len(m) {
		return Range{}, false
	}

	start := clamp(m[from], 0, scriptLen)
	end := clamp(m[to-1]+1, start, scriptLen)
	return Range{Start: start, End: end, WordIndex: t.WordIndex}, true
}

// firstOverlapping returns the index of the first entry whose transcript
// range ends after pos.
func firstOverlapping(entries []dialogue.Entry, pos int) int {
	return sort.Search(len(entries), func(i int) bool {
		return entries[i].TranscriptEnd > pos
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Slice returns the script text covered by r. Out-of-range bounds are clamped.
func Slice(script string, r Range) string {
	runes := []rune(script)
	start := clamp(r.Start, 0, len(runes))
	end := clamp(r.End, start, len(runes))
	return string(runes[start:end])
}
