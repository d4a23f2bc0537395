package alignment

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// Segmenter selects the word segmentation strategy used by [Build].
type Segmenter int

const (
	// SegmentManual splits on whitespace and after sentence punctuation that
	// is glued to the following word ("Hi.Bye" → "Hi.", "Bye"). It is the
	// default.
	SegmentManual Segmenter = iota

	// SegmentUAX29 uses Unicode word boundaries (UAX #29). Punctuation
	// clusters that are not word-like are split into single characters.
	SegmentUAX29
)

// String returns the configuration name of the segmenter.
func (s Segmenter) String() string {
	switch s {
	case SegmentManual:
		return "manual"
	case SegmentUAX29:
		return "uax29"
	default:
		return fmt.Sprintf("Segmenter(%d)", int(s))
	}
}

// ParseSegmenter maps a configuration name to a [Segmenter]. The empty string
// selects [SegmentManual].
func ParseSegmenter(name string) (Segmenter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "manual":
		return SegmentManual, nil
	case "uax29", "unicode":
		return SegmentUAX29, nil
	default:
		return SegmentManual, fmt.Errorf("alignment: unknown segmenter %q", name)
	}
}

// span is a half-open rune range into the transcript.
type span struct {
	start, end int
}

func isBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':':
		return true
	}
	return false
}

func segmentManual(text []rune) []span {
	var spans []span
	i := 0
	for i < len(text) {
		if unicode.IsSpace(text[i]) {
			i++
			continue
		}

		wordStart := i
		for i < len(text) && !unicode.IsSpace(text[i]) {
			i++
		}
		wordEnd := i

		from := wordStart
		for c := wordStart; c < wordEnd-1; c++ {
			next := text[c+1]
			if isBoundary(text[c]) && !isBoundary(next) {
				spans = append(spans, span{from, c + 1})
				from = c + 1
			}
		}
		if from < wordEnd {
			spans = append(spans, span{from, wordEnd})
		}
	}
	return spans
}

func segmentUAX29(text string) []span {
	var (
		spans []span
		state = -1
		pos   int
		word  string
	)
	for len(text) > 0 {
		word, text, state = uniseg.FirstWordInString(text, state)
		runes := []rune(word)
		start := pos
		pos += len(runes)

		if strings.TrimSpace(word) == "" {
			continue
		}
		if len(runes) == 1 || wordLike(runes) {
			spans = append(spans, span{start, pos})
			continue
		}
		for i, r := range runes {
			if unicode.IsSpace(r) {
				continue
			}
			spans = append(spans, span{start + i, start + i + 1})
		}
	}
	return spans
}

func wordLike(runes []rune) bool {
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}
