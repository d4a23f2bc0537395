// Package dialogue parses free-form dialogue scripts into spoken entries.
//
// A script is plain text with one utterance per line, optionally prefixed by a
// speaker label ("Speaker A: Hello"). [Parse] turns each non-empty line into an
// [Entry] that carries three coordinate systems:
//
//   - the raw script (LineStart, SpokenStart, ...),
//   - the entry's own whitespace-normalised text, and
//   - the flat transcript produced by [BuildTranscript] (TranscriptStart/End).
//
// NormalizedToOriginal links the second back to the first, so a character
// position in the transcript can always be traced to a character in the
// script the user typed.
//
// All offsets are rune offsets. A character outside the Basic Multilingual
// Plane counts as one position, the same way a speech provider reports one
// alignment element per character.
package dialogue

import (
	"strings"
	"unicode"
)

// MaxLabelOffset bounds how far into a line the speaker separator may appear.
// A colon further right is treated as part of the spoken text.
const MaxLabelOffset = 80

// Entry is one spoken line of a dialogue script.
type Entry struct {
	// LineIndex is the ordinal of the line among all lines of the script,
	// including blank and skipped lines.
	LineIndex int `json:"lineIndex"`

	// SpeakerLabel is the trimmed text before the speaker separator, or empty
	// when the line has no label.
	SpeakerLabel string `json:"speakerLabel"`

	// DisplayLabel is SpeakerLabel followed by ":" when a label exists.
	DisplayLabel string `json:"displayLabel"`

	// SpokenText is the raw text after the label and the spaces following it.
	SpokenText string `json:"spokenText"`

	// NormalizedText is SpokenText with whitespace runs collapsed to a single
	// space and trimmed. Never empty.
	NormalizedText string `json:"normalizedText"`

	LineStart   int `json:"lineStart"`
	LineEnd     int `json:"lineEnd"`
	SpokenStart int `json:"spokenStart"`
	SpokenEnd   int `json:"spokenEnd"`

	TranscriptStart int `json:"transcriptStart"`
	TranscriptEnd   int `json:"transcriptEnd"`

	// NormalizedToOriginal holds, for every rune of NormalizedText, the
	// absolute rune offset of the corresponding character in the script.
	NormalizedToOriginal []int `json:"normalizedToOriginal"`
}

// Len returns the number of runes in the entry's normalised text, which is
// also its length in the transcript.
func (e Entry) Len() int {
	return e.TranscriptEnd - e.TranscriptStart
}

// Parse splits script into dialogue entries. Lines are separated by "\n" with
// an optional preceding "\r". Lines that are empty, whitespace-only, or carry a
// label but no spoken text are skipped. Parse never fails.
func Parse(script string) []Entry {
	if script == "" {
		return nil
	}

	var (
		entries    []Entry
		offset     int
		cursor     int
		lineNumber int
	)

	lines := strings.Split(script, "\n")
	for i, raw := range lines {
		// The line feed itself occupies one rune, except after the last line.
		sepLen := 1
		if i == len(lines)-1 {
			sepLen = 0
		}
		line := []rune(strings.TrimSuffix(raw, "\r"))
		rawLen := len([]rune(raw))

		lineStart := offset
		lineEnd := offset + len(line)
		offset += rawLen + sepLen
		index := lineNumber
		lineNumber++

		if isBlank(line) {
			continue
		}

		label, spokenFrom := splitLabel(line)
		spoken := line[spokenFrom:]
		normalized := []rune(Normalize(string(spoken)))
		if len(normalized) == 0 {
			continue
		}

		spokenStart := lineStart + spokenFrom
		e := Entry{
			LineIndex:            index,
			SpeakerLabel:         label,
			SpokenText:           string(spoken),
			NormalizedText:       string(normalized),
			LineStart:            lineStart,
			LineEnd:              lineEnd,
			SpokenStart:          spokenStart,
			SpokenEnd:            lineEnd,
			TranscriptStart:      cursor,
			TranscriptEnd:        cursor + len(normalized),
			NormalizedToOriginal: indexMap(spoken, normalized, spokenStart),
		}
		if label != "" {
			e.DisplayLabel = label + ":"
		}
		cursor = e.TranscriptEnd
		entries = append(entries, e)
	}
	return entries
}

// BuildTranscript concatenates the normalised text of entries in order,
// without any delimiter. This is the text submitted for speech synthesis.
func BuildTranscript(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.NormalizedText)
	}
	return b.String()
}

// Normalize collapses every run of Unicode whitespace to a single space and
// trims the result.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitLabel finds the speaker separator in line. It returns the trimmed
// label and the rune offset at which the spoken text begins. Only spaces
// directly after the colon are skipped; tabs remain part of the spoken text
// and disappear during normalisation.
func splitLabel(line []rune) (label string, spokenFrom int) {
	colon := -1
	for i, r := range line {
		if i >= MaxLabelOffset {
			break
		}
		if r == ':' {
			colon = i
			break
		}
	}
	if colon < 0 {
		return "", 0
	}

	spokenFrom = colon + 1
	for spokenFrom < len(line) && line[spokenFrom] == ' ' {
		spokenFrom++
	}
	return strings.TrimSpace(string(line[:colon])), spokenFrom
}

// indexMap builds the normalised-to-original index map for one entry.
//
// A normalised space maps to the first whitespace rune of the run it
// replaced. Every other rune maps to the next case-insensitively equal rune
// in original. When a run or rune cannot be found the last spoken rune is
// used, which keeps every value inside the entry's spoken range.
func indexMap(original, normalized []rune, absStart int) []int {
	out := make([]int, 0, len(normalized))
	last := len(original) - 1
	idx := 0

	for _, target := range normalized {
		if target == ' ' {
			for idx < len(original) && !unicode.IsSpace(original[idx]) {
				idx++
			}
			if idx >= len(original) {
				out = append(out, absStart+last)
				continue
			}
			out = append(out, absStart+idx)
			for idx < len(original) && unicode.IsSpace(original[idx]) {
				idx++
			}
			continue
		}

		for idx < len(original) && unicode.IsSpace(original[idx]) {
			idx++
		}
		for idx < len(original) && !sameLetter(original[idx], target) {
			idx++
		}
		mapped := idx
		if mapped >= len(original) {
			mapped = last
		}
		out = append(out, absStart+mapped)
		idx = mapped + 1
	}
	return out
}

func sameLetter(a, b rune) bool {
	return a == b || unicode.ToLower(a) == unicode.ToLower(b)
}

func isBlank(line []rune) bool {
	for _, r := range line {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
