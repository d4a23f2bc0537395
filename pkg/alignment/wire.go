package alignment

import (
	"encoding/json"
	"math"
)

// Seconds is the REST wire shape used by speech providers that report
// character timings in seconds. Timestamps are nullable.
type Seconds struct {
	Characters []string   `json:"characters"`
	StartTimes []*float64 `json:"character_start_times_seconds"`
	EndTimes   []*float64 `json:"character_end_times_seconds"`
}

// FromSeconds converts the REST wire shape into a [Payload]. Null
// timestamps become NaN. A nil argument yields nil.
func FromSeconds(s *Seconds) *Payload {
	if s == nil {
		return nil
	}
	return &Payload{
		Characters: append([]string(nil), s.Characters...),
		StartTimes: fromNullable(s.StartTimes),
		EndTimes:   fromNullable(s.EndTimes),
	}
}

// Stream is the per-message alignment shape of a streaming speech session:
// millisecond start offsets and durations relative to the message's audio.
type Stream struct {
	Chars            []string `json:"chars"`
	CharStartTimesMs []int    `json:"charStartTimesMs"`
	CharDurationsMs  []int    `json:"charDurationsMs"`
}

// FromStream converts one streaming alignment message into a [Payload],
// shifting every timestamp by offset seconds.
func FromStream(s *Stream, offset float64) *Payload {
	if s == nil {
		return nil
	}
	n := min(len(s.Chars), len(s.CharStartTimesMs), len(s.CharDurationsMs))
	p := &Payload{
		Characters: append([]string(nil), s.Chars[:n]...),
		StartTimes: make([]float64, n),
		EndTimes:   make([]float64, n),
	}
	for i := range n {
		start := float64(s.CharStartTimesMs[i]) / 1000
		p.StartTimes[i] = offset + start
		p.EndTimes[i] = offset + start + float64(s.CharDurationsMs[i])/1000
	}
	return p
}

// StreamAccumulator stitches consecutive streaming alignment messages into a
// single [Payload]. Each message is shifted so that it starts where the
// latest end time of the previous messages left off. Silence between
// messages that the provider does not report is therefore not represented.
//
// A StreamAccumulator is not safe for concurrent use.
type StreamAccumulator struct {
	payload Payload
	offset  float64
}

// Add appends one streaming alignment message.
func (a *StreamAccumulator) Add(s *Stream) {
	p := FromStream(s, a.offset)
	if p == nil {
		return
	}
	a.payload = *Concat(&a.payload, p)
	for _, end := range p.EndTimes {
		if end > a.offset {
			a.offset = end
		}
	}
}

// Payload returns the accumulated alignment.
func (a *StreamAccumulator) Payload() *Payload {
	p := a.payload
	return &p
}

// Concat joins payloads in order. Each payload contributes only its usable
// prefix (see [Payload.Len]); nil payloads are ignored.
func Concat(ps ...*Payload) *Payload {
	out := &Payload{}
	for _, p := range ps {
		n := p.Len()
		if n == 0 {
			continue
		}
		out.Characters = append(out.Characters, p.Characters[:n]...)
		out.StartTimes = append(out.StartTimes, p.StartTimes[:n]...)
		out.EndTimes = append(out.EndTimes, p.EndTimes[:n]...)
	}
	return out
}

// payloadJSON is the JSON form of a Payload. Missing times encode as null.
type payloadJSON struct {
	Characters []string   `json:"characters"`
	StartTimes []*float64 `json:"characterStartTimesSeconds"`
	EndTimes   []*float64 `json:"characterEndTimesSeconds"`
}

// MarshalJSON encodes the payload with camel-case keys and null for missing
// timestamps.
func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(payloadJSON{
		Characters: nonNil(p.Characters),
		StartTimes: toNullable(p.StartTimes),
		EndTimes:   toNullable(p.EndTimes),
	})
}

// UnmarshalJSON accepts both the camel-case form produced by MarshalJSON and
// the snake-case REST form of [Seconds].
func (p *Payload) UnmarshalJSON(data []byte) error {
	var w struct {
		Characters []string   `json:"characters"`
		StartCamel []*float64 `json:"characterStartTimesSeconds"`
		EndCamel   []*float64 `json:"characterEndTimesSeconds"`
		StartSnake []*float64 `json:"character_start_times_seconds"`
		EndSnake   []*float64 `json:"character_end_times_seconds"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Characters = w.Characters
	p.StartTimes = fromNullable(pick(w.StartCamel, w.StartSnake))
	p.EndTimes = fromNullable(pick(w.EndCamel, w.EndSnake))
	return nil
}

func pick(a, b []*float64) []*float64 {
	if a != nil {
		return a
	}
	return b
}

func fromNullable(in []*float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}

func toNullable(in []float64) []*float64 {
	out := make([]*float64, len(in))
	for i, v := range in {
		if missing(v) {
			continue
		}
		out[i] = &v
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
