package voices

import (
	"fmt"
	"strings"
)

// Slot selects one of the two voices of a [Pair].
type Slot int

const (
	SlotA Slot = iota
	SlotB
)

func (s Slot) String() string {
	if s == SlotB {
		return "B"
	}
	return "A"
}

// Strategy maps the speaker label of the entry at index to a voice slot.
// label is empty for lines without a speaker label.
type Strategy func(label string, index int) Slot

// Assigner builds the Strategy for one script. labels holds the speaker label
// of every entry in script order.
type Assigner func(labels []string) Strategy

// Fixed returns an Assigner that always uses s.
func Fixed(s Strategy) Assigner {
	return func([]string) Strategy { return s }
}

// Assign resolves a slot for every label using a.
func Assign(a Assigner, labels []string) []Slot {
	s := a(labels)
	out := make([]Slot, len(labels))
	for i, l := range labels {
		out[i] = s(l, i)
	}
	return out
}

// bMarkers are the label substrings that route a speaker to voice B.
var bMarkers = []string{"b", "customer", "listener", "speaker 2"}

// HeuristicStrategy routes labels containing "b", "customer", "listener" or
// "speaker 2" (case-insensitive) to voice B and every other label to voice A.
// Unlabelled lines alternate A, B by index.
// Any name containing the letter b ("Bob", "Abigail") lands on voice B.
func HeuristicStrategy(label string, index int) Slot {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return alternate(index)
	}
	for _, m := range bMarkers {
		if strings.Contains(l, m) {
			return SlotB
		}
	}
	return SlotA
}

// AlternatingStrategy ignores labels and alternates A, B by index.
func AlternatingStrategy(_ string, index int) Slot {
	return alternate(index)
}

func alternate(index int) Slot {
	if index%2 == 0 {
		return SlotA
	}
	return SlotB
}

// Strategy names accepted by [ParseAssigner].
const (
	StrategyHeuristic   = "heuristic"
	StrategyAlternating = "alternating"
	StrategyCast        = "cast"
)

// ParseAssigner returns the Assigner registered under name. An empty name
// selects the heuristic strategy.
func ParseAssigner(name string, opts ...CastOption) (Assigner, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyHeuristic:
		return Fixed(HeuristicStrategy), nil
	case StrategyAlternating:
		return Fixed(AlternatingStrategy), nil
	case StrategyCast:
		return NewCaster(opts...).Assigner(), nil
	default:
		return nil, fmt.Errorf("voices: unknown strategy %q (want %s, %s or %s)",
			name, StrategyHeuristic, StrategyAlternating, StrategyCast)
	}
}
