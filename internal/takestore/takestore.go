// Package takestore persists rendered dialogue audio ("takes") together with
// the timing data needed to highlight them later.
//
// A take is looked up either by its ID, which is handed to clients, or by its
// cache key, which the synthesis service derives from everything that
// influences the rendered audio. Audio bytes themselves live in an
// audiostore; a take only carries the key under which they were stored.
//
// Three backends are provided: [MemoryStore] for tests and single-process
// deployments, [SQLiteStore] for a local file, and [PostgresStore] for shared
// deployments. All of them are safe for concurrent use.
package takestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

// Drivers accepted by [Open].
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when no take matches an ID or cache key.
var ErrNotFound = errors.New("takestore: take not found")

// Take is one rendered dialogue.
type Take struct {
	ID  string `json:"id"`
	Key string `json:"-"`

	Language     string `json:"language"`
	Script       string `json:"script"`
	Transcript   string `json:"transcript"`
	MIMEType     string `json:"mimeType"`
	OutputFormat string `json:"outputFormat"`

	// AudioKey names the object holding the audio in the audio store.
	AudioKey string `json:"audioKey"`

	Alignment           *alignment.Payload `json:"alignment,omitempty"`
	NormalizedAlignment *alignment.Payload `json:"normalizedAlignment,omitempty"`
	VoiceSegments       []tts.VoiceSegment `json:"voiceSegments,omitempty"`
	Voices              []string           `json:"voices,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Store persists takes.
type Store interface {
	// Put stores t. An empty ID is replaced with a fresh UUID and a zero
	// CreatedAt with the current time; both are written back into t.
	Put(ctx context.Context, t *Take) error

	// Get returns the take with the given ID or [ErrNotFound].
	Get(ctx context.Context, id string) (*Take, error)

	// FindByKey returns the most recent take with the given cache key or
	// [ErrNotFound].
	FindByKey(ctx context.Context, key string) (*Take, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Key derives the cache key of a take from everything that changes the
// rendered audio. An empty model stands for the provider default.
func Key(transcript string, voices []string, language, model, outputFormat string) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(transcript)
	for _, v := range voices {
		write(v)
	}
	write(language)
	write(model)
	write(outputFormat)
	return hex.EncodeToString(h.Sum(nil))
}

// Open creates a store for driver. source is the DSN for postgres and the
// database file path for sqlite; it is ignored for memory.
func Open(ctx context.Context, driver, source string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, source)
	case DriverPostgres:
		return OpenPostgres(ctx, source)
	default:
		return nil, fmt.Errorf("takestore: unknown driver %q", driver)
	}
}

// prepare fills the generated fields of t.
func prepare(t *Take) error {
	if t == nil {
		return errors.New("takestore: nil take")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	} else if _, err := uuid.Parse(t.ID); err != nil {
		return fmt.Errorf("takestore: invalid id %q: %w", t.ID, err)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return nil
}

// encode serialises the columns that are not indexed.
func encode(t *Take) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("takestore: marshal take: %w", err)
	}
	return data, nil
}

// decode restores a take from its indexed columns and data blob.
func decode(id, key string, createdAt time.Time, data []byte) (*Take, error) {
	var t Take
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("takestore: unmarshal take %s: %w", id, err)
	}
	t.ID = id
	t.Key = key
	t.CreatedAt = createdAt.UTC()
	return &t, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
