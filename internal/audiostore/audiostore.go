// Package audiostore holds rendered audio blobs addressed by key.
//
// The default "inline" driver keeps audio in process memory; the "nats"
// driver stores it in a NATS JetStream object store bucket so that several
// server instances can serve the same takes.
package audiostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Drivers accepted by [Open].
const (
	DriverInline = "inline"
	DriverNATS   = "nats"
)

// ErrNotFound is returned when no object exists under a key.
var ErrNotFound = errors.New("audiostore: object not found")

// Object is a stored audio blob.
type Object struct {
	Data     []byte
	MIMEType string
}

// Store persists audio blobs. Implementations are safe for concurrent use.
type Store interface {
	Put(ctx context.Context, key string, obj Object) error

	// Get returns the object stored under key or [ErrNotFound].
	Get(ctx context.Context, key string) (*Object, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// NewKey returns a fresh object key for audio of the given MIME type.
func NewKey(mimeType string) string {
	return "audio/" + uuid.NewString() + extension(mimeType)
}

func extension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/basic":
		return ".au"
	default:
		return ""
	}
}

// Open creates the store selected by driver. url and bucket are only used by
// the nats driver.
func Open(ctx context.Context, driver, url, bucket string) (Store, error) {
	switch driver {
	case "", DriverInline:
		return NewMemoryStore(), nil
	case DriverNATS:
		return DialNATS(ctx, url, bucket)
	default:
		return nil, fmt.Errorf("audiostore: unknown driver %q", driver)
	}
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps objects in a map.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

// Put implements [Store].
func (m *MemoryStore) Put(_ context.Context, key string, obj Object) error {
	if key == "" {
		return errors.New("audiostore: empty key")
	}
	obj.Data = append([]byte(nil), obj.Data...)
	m.mu.Lock()
	m.objects[key] = obj
	m.mu.Unlock()
	return nil
}

// Get implements [Store].
func (m *MemoryStore) Get(_ context.Context, key string) (*Object, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return &obj, nil
}

// Delete implements [Store].
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Ping implements [Store].
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements [Store].
func (m *MemoryStore) Close() error { return nil }
