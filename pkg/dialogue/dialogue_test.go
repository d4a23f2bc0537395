package dialogue_test

import (
	"slices"
	"strings"
	"testing"
	"unicode"

	"github.com/MrWong99/dialoguelab/pkg/dialogue"
)

const exampleScript = "Speaker A:   Hello   world!\nSpeaker B:Hi   there."

func TestParse_ExampleScript(t *testing.T) {
	t.Parallel()

	entries := dialogue.Parse(exampleScript)
	if len(entries) != 2 {
		t.Fatalf("Parse: got %d entries, want 2", len(entries))
	}

	a, b := entries[0], entries[1]

	if a.SpeakerLabel != "Speaker A" || a.DisplayLabel != "Speaker A:" {
		t.Errorf("entry 0 label = %q / %q, want %q / %q", a.SpeakerLabel, a.DisplayLabel, "Speaker A", "Speaker A:")
	}
	if a.SpokenText != "Hello   world!" {
		t.Errorf("entry 0 SpokenText = %q, want %q", a.SpokenText, "Hello   world!")
	}
	if a.NormalizedText != "Hello world!" {
		t.Errorf("entry 0 NormalizedText = %q, want %q", a.NormalizedText, "Hello world!")
	}
	if a.LineStart != 0 || a.LineEnd != 27 || a.SpokenStart != 13 || a.SpokenEnd != 27 {
		t.Errorf("entry 0 offsets = line [%d,%d) spoken [%d,%d), want line [0,27) spoken [13,27)",
			a.LineStart, a.LineEnd, a.SpokenStart, a.SpokenEnd)
	}
	if a.TranscriptStart != 0 || a.TranscriptEnd != 12 {
		t.Errorf("entry 0 transcript = [%d,%d), want [0,12)", a.TranscriptStart, a.TranscriptEnd)
	}
	wantMapA := []int{13, 14, 15, 16, 17, 18, 21, 22, 23, 24, 25, 26}
	if !slices.Equal(a.NormalizedToOriginal, wantMapA) {
		t.Errorf("entry 0 map = %v, want %v", a.NormalizedToOriginal, wantMapA)
	}

	if b.LineIndex != 1 {
		t.Errorf("entry 1 LineIndex = %d, want 1", b.LineIndex)
	}
	if b.NormalizedText != "Hi there." {
		t.Errorf("entry 1 NormalizedText = %q, want %q", b.NormalizedText, "Hi there.")
	}
	if b.LineStart != 28 || b.SpokenStart != 38 || b.LineEnd != 49 {
		t.Errorf("entry 1 offsets = line [%d,%d) spoken start %d, want line [28,49) spoken start 38",
			b.LineStart, b.LineEnd, b.SpokenStart)
	}
	if b.TranscriptStart != 12 || b.TranscriptEnd != 21 {
		t.Errorf("entry 1 transcript = [%d,%d), want [12,21)", b.TranscriptStart, b.TranscriptEnd)
	}
	wantMapB := []int{38, 39, 40, 43, 44, 45, 46, 47, 48}
	if !slices.Equal(b.NormalizedToOriginal, wantMapB) {
		t.Errorf("entry 1 map = %v, want %v", b.NormalizedToOriginal, wantMapB)
	}

	if got := dialogue.BuildTranscript(entries); got != "Hello world!Hi there." {
		t.Errorf("BuildTranscript = %q, want %q", got, "Hello world!Hi there.")
	}
}

func TestParse_Skipping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		script     string
		wantTexts  []string
		wantLines  []int
		wantLabels []string
	}{
		{
			name:   "empty script",
			script: "",
		},
		{
			name:   "whitespace only",
			script: " \n\t\n   ",
		},
		{
			name:   "label without text",
			script: "Speaker A:   \nSpeaker B: ok",
			wantTexts:  []string{"ok"},
			wantLines:  []int{1},
			wantLabels: []string{"Speaker B"},
		},
		{
			name:       "blank lines still count",
			script:     "A: one\n\n\nB: two\n",
			wantTexts:  []string{"one", "two"},
			wantLines:  []int{0, 3},
			wantLabels: []string{"A", "B"},
		},
		{
			name:       "CRLF line endings",
			script:     "A: one\r\nB: two\r\n",
			wantTexts:  []string{"one", "two"},
			wantLines:  []int{0, 1},
			wantLabels: []string{"A", "B"},
		},
		{
			name:       "no label",
			script:     "just words here",
			wantTexts:  []string{"just words here"},
			wantLines:  []int{0},
			wantLabels: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			entries := dialogue.Parse(tt.script)
			if len(entries) != len(tt.wantTexts) {
				t.Fatalf("Parse(%q): got %d entries, want %d", tt.script, len(entries), len(tt.wantTexts))
			}
			for i, e := range entries {
				if e.NormalizedText != tt.wantTexts[i] {
					t.Errorf("entry %d NormalizedText = %q, want %q", i, e.NormalizedText, tt.wantTexts[i])
				}
				if e.LineIndex != tt.wantLines[i] {
					t.Errorf("entry %d LineIndex = %d, want %d", i, e.LineIndex, tt.wantLines[i])
				}
				if e.SpeakerLabel != tt.wantLabels[i] {
					t.Errorf("entry %d SpeakerLabel = %q, want %q", i, e.SpeakerLabel, tt.wantLabels[i])
				}
			}
		})
	}
}

func TestParse_LabelOffsetLimit(t *testing.T) {
	t.Parallel()

	long := ""
	for range dialogue.MaxLabelOffset {
		long += "x"
	}
	entries := dialogue.Parse(long + ": not a label")
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].SpeakerLabel != "" {
		t.Errorf("SpeakerLabel = %q, want empty for colon at offset %d", entries[0].SpeakerLabel, dialogue.MaxLabelOffset)
	}
	if entries[0].SpokenStart != 0 {
		t.Errorf("SpokenStart = %d, want 0", entries[0].SpokenStart)
	}
}

func TestParse_CRLFOffsets(t *testing.T) {
	t.Parallel()

	script := "A: hi\r\nB: yo"
	entries := dialogue.Parse(script)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	runes := []rune(script)
	for _, e := range entries {
		got := string(runes[e.SpokenStart:e.SpokenEnd])
		if got != e.SpokenText {
			t.Errorf("script[%d:%d] = %q, want SpokenText %q", e.SpokenStart, e.SpokenEnd, got, e.SpokenText)
		}
	}
	if entries[1].LineStart != 7 {
		t.Errorf("entry 1 LineStart = %d, want 7", entries[1].LineStart)
	}
}

func TestParse_MultiByteOffsets(t *testing.T) {
	t.Parallel()

	script := "Zoë:  Ça   va?\nÉmile: très bien 🙂"
	entries := dialogue.Parse(script)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	runes := []rune(script)
	for _, e := range entries {
		norm := []rune(e.NormalizedText)
		if len(e.NormalizedToOriginal) != len(norm) {
			t.Fatalf("map length %d, want %d", len(e.NormalizedToOriginal), len(norm))
		}
		for i, r := range norm {
			if r == ' ' {
				continue
			}
			if got := runes[e.NormalizedToOriginal[i]]; got != r {
				t.Errorf("entry %q rune %d maps to %q, want %q", e.NormalizedText, i, got, r)
			}
		}
	}
	if entries[1].NormalizedText != "très bien 🙂" {
		t.Errorf("NormalizedText = %q", entries[1].NormalizedText)
	}
}

// Every map value must stay inside the entry's spoken range, be
// non-decreasing and point back at the character it was derived from.
// Transcript offsets must match the concatenation built by BuildTranscript.
func TestParse_MapInvariants(t *testing.T) {
	t.Parallel()

	scripts := []string{
		exampleScript,
		"A:\tTabbed   text\t\there\nB:   trailing spaces   ",
		"Narrator: a  b  c  d\n\n\nC: ok!ok?ok;ok",
		"no label line\nX: Über  straße",
		"A: Olá\u00a0\u00a0mundo\r\nB:  ÉCOLE  été 🙂\r\n",
		"Speaker A: it's 5:30, OK?\nSpeaker B:\u2003Ça   va",
	}
	for _, script := range scripts {
		runes := []rune(script)
		entries := dialogue.Parse(script)
		transcript := []rune(dialogue.BuildTranscript(entries))
		cursor := 0

		for _, e := range entries {
			text := []rune(e.NormalizedText)
			if e.TranscriptStart != cursor || e.TranscriptEnd != cursor+len(text) {
				t.Errorf("%q: transcript range [%d,%d), want [%d,%d)", e.NormalizedText, e.TranscriptStart, e.TranscriptEnd, cursor, cursor+len(text))
			}
			if e.TranscriptEnd <= len(transcript) && string(transcript[e.TranscriptStart:e.TranscriptEnd]) != e.NormalizedText {
				t.Errorf("%q: transcript slice = %q", e.NormalizedText, string(transcript[e.TranscriptStart:e.TranscriptEnd]))
			}
			cursor += len(text)

			if len(e.NormalizedToOriginal) != e.Len() {
				t.Errorf("%q: map length %d != transcript length %d", e.NormalizedText, len(e.NormalizedToOriginal), e.Len())
				continue
			}
			prev := -1
			for i, v := range e.NormalizedToOriginal {
				if v < e.SpokenStart || v >= e.SpokenEnd {
					t.Errorf("%q: map[%d]=%d outside spoken range [%d,%d)", e.NormalizedText, i, v, e.SpokenStart, e.SpokenEnd)
					continue
				}
				if v < prev {
					t.Errorf("%q: map[%d]=%d decreases from %d", e.NormalizedText, i, v, prev)
				}
				prev = v

				want, got := text[i], runes[v]
				if want == ' ' {
					if !unicode.IsSpace(got) {
						t.Errorf("%q: space %d maps to %q", e.NormalizedText, i, got)
					}
					continue
				}
				if !strings.EqualFold(string(got), string(want)) {
					t.Errorf("%q: rune %d %q maps to %q", e.NormalizedText, i, want, got)
				}
			}
		}
		if cursor != len(transcript) {
			t.Errorf("%q: entries cover %d transcript runes, want %d", script, cursor, len(transcript))
		}
	}
}

func TestParse_Idempotent(t *testing.T) {
	t.Parallel()

	first := dialogue.Parse(exampleScript)
	second := dialogue.Parse(exampleScript)
	if len(first) != len(second) {
		t.Fatalf("entry count differs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].NormalizedText != second[i].NormalizedText ||
			!slices.Equal(first[i].NormalizedToOriginal, second[i].NormalizedToOriginal) {
			t.Errorf("entry %d differs between runs", i)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"a", "a"},
		{"  a \t b\n\nc  ", "a b c"},
		{"\u00a0x\u2003y", "x y"},
	}
	for _, tt := range tests {
		if got := dialogue.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
