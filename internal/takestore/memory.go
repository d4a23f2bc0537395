package takestore

import (
	"context"
	"sync"

	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps takes in process memory. Stored takes are copied on the
// way in and out so callers cannot mutate the store through shared slices.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Take
	byKey map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Take),
		byKey: make(map[string]string),
	}
}

// Put implements [Store].
func (s *MemoryStore) Put(_ context.Context, t *Take) error {
	if err := prepare(t); err != nil {
		return err
	}
	cp := clone(t)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[cp.ID] = cp
	if cp.Key != "" {
		if prev, ok := s.byID[s.byKey[cp.Key]]; !ok || !prev.CreatedAt.After(cp.CreatedAt) {
			s.byKey[cp.Key] = cp.ID
		}
	}
	return nil
}

// Get implements [Store].
func (s *MemoryStore) Get(_ context.Context, id string) (*Take, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(t), nil
}

// FindByKey implements [Store].
func (s *MemoryStore) FindByKey(_ context.Context, key string) (*Take, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[s.byKey[key]]
	if !ok || key == "" {
		return nil, ErrNotFound
	}
	return clone(t), nil
}

// Ping implements [Store]. It always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements [Store]. It is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored takes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func clone(t *Take) *Take {
	cp := *t
	cp.VoiceSegments = append([]tts.VoiceSegment(nil), t.VoiceSegments...)
	cp.Voices = append([]string(nil), t.Voices...)
	cp.Alignment = clonePayload(t.Alignment)
	cp.NormalizedAlignment = clonePayload(t.NormalizedAlignment)
	return &cp
}

func clonePayload(p *alignment.Payload) *alignment.Payload {
	if p == nil {
		return nil
	}
	return &alignment.Payload{
		Characters: append([]string(nil), p.Characters...),
		StartTimes: append([]float64(nil), p.StartTimes...),
		EndTimes:   append([]float64(nil), p.EndTimes...),
	}
}
