// Package voices holds the per-language voice catalogs and the strategies
// that assign a dialogue speaker to one of the two voices of a pair.
package voices

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLanguage is used whenever a requested language has no catalog entry.
const DefaultLanguage = "en"

// CustomVoiceLabel names a voice ID supplied by the caller instead of the
// catalog.
const CustomVoiceLabel = "Custom voice"

// Voice is one catalog voice of the speech provider.
type Voice struct {
	ID    string `json:"voiceId"`
	Label string `json:"label"`
}

// Pair is the two voices used to render a two-speaker dialogue.
type Pair struct {
	A Voice `json:"speakerA"`
	B Voice `json:"speakerB"`
}

// Voice returns the voice for slot s.
func (p Pair) Voice(s Slot) Voice {
	if s == SlotB {
		return p.B
	}
	return p.A
}

// Voices chosen from the provider's premade catalog where the voice lists the
// target locale as verified.
var dialoguePairs = map[string]Pair{
	"en": {A: Voice{"JBFqnCBsd6RMkjVDRZzb", "George"}, B: Voice{"ErXwobaYiN019PkySvjV", "Antoni"}},
	"fr": {A: Voice{"Xb7hH8MSUJpSbSDYk0k2", "Alice"}, B: Voice{"CwhRBWXzGAHq8TQ4Fs17", "Roger"}},
	"de": {A: Voice{"onwK4e9ZLuTAKqWW03F9", "Daniel"}, B: Voice{"cgSgspJ2msm6clMCkdW9", "Jessica"}},
	"pt": {A: Voice{"cjVigY5qzO86Huf0OWal", "Eric"}, B: Voice{"SAz9YHcvj6GT2YYXdXww", "River"}},
}

// lb has no native voice yet; Rachel is the closest fit.
var pronunciationVoices = map[string]Voice{
	"en": {"JBFqnCBsd6RMkjVDRZzb", "Matilda"},
	"fr": {"EXAVITQu4vr4xnSDxMaL", "Bella"},
	"lb": {"21m00Tcm4TlvDq8ikWAM", "Rachel"},
	"de": {"VR6AewLTigWG4xSOukaG", "Arnold"},
	"es": {"ErXwobaYiN019PkySvjV", "Antoni"},
	"pt": {"TxGEqnHWrfWFTfGW9XjX", "Josh"},
	"it": {"AZnzlk1XvdvUeBnXmlld", "Domi"},
	"nl": {"pNInz6obpgDQGcFmaJgB", "Adam"},
	"pl": {"yoZ06aMxZJJ28mfd3POQ", "Sam"},
	"ro": {"MF3mGyEYCl7XYWbV9V6O", "Elli"},
}

// NormalizeLanguage trims and lower-cases a language code and reduces a
// regional BCP 47 tag ("pt-BR", "de_DE") to its base language. Codes that do
// not parse are returned lower-cased so that catalog lookups reject them.
func NormalizeLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return code
	}
	base, _ := tag.Base()
	return base.String()
}

// DialoguePair returns the voice pair for language and the language it was
// resolved to. Unknown or empty languages resolve to [DefaultLanguage].
func DialoguePair(language string) (Pair, string) {
	lang := NormalizeLanguage(language)
	if p, ok := dialoguePairs[lang]; ok {
		return p, lang
	}
	return dialoguePairs[DefaultLanguage], DefaultLanguage
}

// PronunciationVoice returns the single pronunciation voice for language.
// ok is false when language is non-empty and not in the catalog; an empty
// language yields the default voice.
func PronunciationVoice(language string) (v Voice, ok bool) {
	lang := NormalizeLanguage(language)
	if lang == "" {
		return pronunciationVoices[DefaultLanguage], true
	}
	v, ok = pronunciationVoices[lang]
	return v, ok
}

// ResolvePronunciation picks the voice for a pronunciation request. A
// non-blank customID wins over the catalog. Unknown languages fall back to
// the default voice.
func ResolvePronunciation(language, customID string) Voice {
	if id := strings.TrimSpace(customID); id != "" {
		return Voice{ID: id, Label: CustomVoiceLabel}
	}
	if v, ok := PronunciationVoice(language); ok {
		return v
	}
	return pronunciationVoices[DefaultLanguage]
}

// DialogueLanguages returns the languages with a dialogue pair, sorted.
func DialogueLanguages() []string {
	return sortedKeys(dialoguePairs)
}

// PronunciationLanguages returns the languages with a pronunciation voice,
// sorted.
func PronunciationLanguages() []string {
	return sortedKeys(pronunciationVoices)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
