package voices

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// CastOption configures a [Caster].
type CastOption func(*Caster)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a label whose
// Double Metaphone code overlaps a cast member. Default: 0.70.
func WithPhoneticThreshold(threshold float64) CastOption {
	return func(c *Caster) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// overlap exists. Default: 0.85.
func WithFuzzyThreshold(threshold float64) CastOption {
	return func(c *Caster) {
		c.fuzzyThreshold = threshold
	}
}

// WithRoster pins known speaker names to voices. A label that sounds like one
// of a (or b) is cast on voice A (or B) before any other rule applies.
func WithRoster(a, b []string) CastOption {
	return func(c *Caster) {
		c.rosterA = append([]string(nil), a...)
		c.rosterB = append([]string(nil), b...)
	}
}

// Caster assigns voices by recognizing speakers. Labels that are spelled
// differently but sound alike ("Marie", "Mari", "MARIE") are treated as the
// same speaker, so a typo in a hand-edited script does not swap voices
// mid-dialogue.
//
// Speakers are cast in order of first appearance: the first distinct speaker
// gets voice A, the second voice B, and further speakers alternate. Unlabelled
// lines alternate by index. A Caster is read-only after construction and safe
// for concurrent use.
type Caster struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	rosterA, rosterB  []string
}

// NewCaster returns a Caster configured with opts.
func NewCaster(opts ...CastOption) *Caster {
	c := &Caster{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Assigner returns an [Assigner] backed by c.
func (c *Caster) Assigner() Assigner {
	return c.Cast
}

// Cast builds the Strategy for a script whose entries carry labels.
func (c *Caster) Cast(labels []string) Strategy {
	var (
		members []string
		slots   = map[string]Slot{}
	)
	for _, name := range c.rosterA {
		if key := castKey(name); key != "" {
			members = append(members, key)
			slots[key] = SlotA
		}
	}
	for _, name := range c.rosterB {
		if key := castKey(name); key != "" {
			members = append(members, key)
			slots[key] = SlotB
		}
	}
	pinned := len(members)

	resolved := make(map[string]Slot, len(labels))
	for _, label := range labels {
		key := castKey(label)
		if key == "" {
			continue
		}
		if _, ok := resolved[key]; ok {
			continue
		}
		if m, _, ok := c.Match(key, members); ok {
			resolved[key] = slots[m]
			continue
		}
		// New speaker: voice A, then B, then alternating.
		s := alternate(len(members) - pinned)
		members = append(members, key)
		slots[key] = s
		resolved[key] = s
	}

	return func(label string, index int) Slot {
		if s, ok := resolved[castKey(label)]; ok {
			return s
		}
		return alternate(index)
	}
}

func castKey(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

// Match finds the cast member that sounds most like name. Double Metaphone
// codes of the space-stripped strings are compared first and candidates with
// overlapping codes are ranked by Jaro-Winkler similarity; without any overlap
// a pure Jaro-Winkler match above the fuzzy threshold is accepted.
//
// Short tokens and tokens with digits ("A", "2", "b1") are markers that
// distinguish otherwise identical labels, so "Speaker A" never matches
// "Speaker B". They must agree exactly for a match.
//
// When matched is false, member is empty and confidence is 0.
func (c *Caster) Match(name string, members []string) (member string, confidence float64, matched bool) {
	nameKey := castKey(name)
	if len(members) == 0 || nameKey == "" {
		return "", 0, false
	}
	nameTokens := strings.Fields(nameKey)
	nameJoined := strings.Join(nameTokens, "")
	nameCodes := codes(nameJoined)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, m := range members {
		mKey := castKey(m)
		if mKey == "" {
			continue
		}
		if mKey == nameKey {
			return m, 1, true
		}
		mTokens := strings.Fields(mKey)
		if markers(nameTokens) != markers(mTokens) {
			continue
		}
		mJoined := strings.Join(mTokens, "")
		phonetic := codesOverlap(nameCodes, codes(mJoined))
		score := max(
			matchr.JaroWinkler(nameKey, mKey, false),
			matchr.JaroWinkler(nameJoined, mJoined, false),
		)

		switch {
		case phonetic && score >= c.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = m, score, true
			}
		case !phonetic && !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore:
			best, bestScore = m, score
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// markers joins the distinguishing tokens of a label.
func markers(tokens []string) string {
	var out []string
	for _, t := range tokens {
		if len([]rune(t)) <= 2 || strings.ContainsAny(t, "0123456789") {
			out = append(out, t)
		}
	}
	return strings.Join(out, " ")
}

// codes returns the non-empty Double Metaphone codes of s.
func codes(s string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, alt := matchr.DoubleMetaphone(s)
	if p != "" {
		out[p] = struct{}{}
	}
	if alt != "" {
		out[alt] = struct{}{}
	}
	return out
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
