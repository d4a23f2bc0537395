package takestore

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/dialoguelab/pkg/alignment"
	"github.com/MrWong99/dialoguelab/pkg/provider/tts"
)

func sampleTake(key string) *Take {
	return &Take{
		Key:          key,
		Language:     "fr",
		Script:       "A: Salut.\nB: Ça va?",
		Transcript:   "Salut. Ça va?",
		MIMEType:     "audio/mpeg",
		OutputFormat: "mp3_44100_128",
		AudioKey:     "audio/abc",
		Alignment: &alignment.Payload{
			Characters: []string{"S", "a"},
			StartTimes: []float64{0, math.NaN()},
			EndTimes:   []float64{0.1, 0.2},
		},
		VoiceSegments: []tts.VoiceSegment{{VoiceID: "v1", Start: 0, End: 0.5, CharacterEnd: 6}},
		Voices:        []string{"v1", "v2"},
	}
}

// runStoreSuite checks the behaviour every backend must share.
func runStoreSuite(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("put assigns id and time", func(t *testing.T) {
		take := sampleTake("k-assign")
		if err := s.Put(ctx, take); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if !validID(take.ID) {
			t.Errorf("ID = %q, want a UUID", take.ID)
		}
		if take.CreatedAt.IsZero() {
			t.Error("CreatedAt not set")
		}
	})

	t.Run("get round trip", func(t *testing.T) {
		take := sampleTake("k-get")
		if err := s.Put(ctx, take); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := s.Get(ctx, take.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ID != take.ID || got.Key != "k-get" {
			t.Errorf("ID/Key = %q/%q, want %q/k-get", got.ID, got.Key, take.ID)
		}
		if got.Script != take.Script || got.Transcript != take.Transcript || got.Language != "fr" {
			t.Errorf("text fields differ: %+v", got)
		}
		if got.AudioKey != "audio/abc" || got.MIMEType != "audio/mpeg" {
			t.Errorf("audio fields differ: %+v", got)
		}
		if !got.CreatedAt.Equal(take.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, take.CreatedAt)
		}
		if got.Alignment == nil || len(got.Alignment.Characters) != 2 {
			t.Fatalf("Alignment = %+v", got.Alignment)
		}
		if !math.IsNaN(got.Alignment.StartTimes[1]) {
			t.Errorf("missing start time = %v, want NaN", got.Alignment.StartTimes[1])
		}
		if len(got.VoiceSegments) != 1 || got.VoiceSegments[0].CharacterEnd != 6 {
			t.Errorf("VoiceSegments = %+v", got.VoiceSegments)
		}
		if len(got.Voices) != 2 || got.Voices[1] != "v2" {
			t.Errorf("Voices = %v", got.Voices)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		if _, err := s.Get(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("find by key returns newest", func(t *testing.T) {
		older := sampleTake("k-find")
		older.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		newer := sampleTake("k-find")
		newer.CreatedAt = older.CreatedAt.Add(time.Hour)
		for _, take := range []*Take{newer, older} {
			if err := s.Put(ctx, take); err != nil {
				t.Fatalf("Put: %v", err)
			}
		}
		got, err := s.FindByKey(ctx, "k-find")
		if err != nil {
			t.Fatalf("FindByKey: %v", err)
		}
		if got.ID != newer.ID {
			t.Errorf("ID = %q, want newest %q", got.ID, newer.ID)
		}
	})

	t.Run("find by missing or empty key", func(t *testing.T) {
		for _, key := range []string{"", "no-such-key"} {
			if _, err := s.FindByKey(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Errorf("FindByKey(%q) err = %v, want ErrNotFound", key, err)
			}
		}
	})

	t.Run("invalid id rejected", func(t *testing.T) {
		take := sampleTake("k-bad")
		take.ID = "not-a-uuid"
		if err := s.Put(ctx, take); err == nil {
			t.Error("expected error for non-UUID id")
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, NewMemoryStore())
}

func TestMemoryStore_CopiesOnReadAndWrite(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	take := sampleTake("k")
	if err := s.Put(ctx, take); err != nil {
		t.Fatal(err)
	}
	take.Voices[0] = "mutated"

	got, err := s.Get(ctx, take.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Voices[0] != "v1" {
		t.Errorf("stored take mutated through caller slice: %v", got.Voices)
	}
	got.Alignment.Characters[0] = "X"
	again, _ := s.Get(ctx, take.ID)
	if again.Alignment.Characters[0] != "S" {
		t.Error("stored take mutated through returned payload")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "takes.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	runStoreSuite(t, s)
}

func TestSQLiteStore_SingleWriterLock(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "takes.db")
	ctx := context.Background()

	first, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := OpenSQLite(ctx, path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second open err = %v, want ErrLocked", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	defer second.Close()
	if second.Path() != path {
		t.Errorf("Path = %q, want %q", second.Path(), path)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "takes.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	take := sampleTake("persist")
	if err := s.Put(ctx, take); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.FindByKey(ctx, "persist")
	if err != nil {
		t.Fatalf("FindByKey after reopen: %v", err)
	}
	if got.ID != take.ID {
		t.Errorf("ID = %q, want %q", got.ID, take.ID)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := Open(ctx, "", "")
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("default driver = %T, want *MemoryStore", s)
	}

	s, err = Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "t.db"))
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("sqlite driver = %T, want *SQLiteStore", s)
	}

	if _, err := Open(ctx, "mongo", ""); err == nil {
		t.Error("expected error for unknown driver")
	}
	if _, err := Open(ctx, DriverSQLite, ""); err == nil {
		t.Error("expected error for empty sqlite path")
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	base := Key("Hi. Bye.", []string{"a", "b"}, "en", "eleven_v3", "mp3_44100_128")
	if len(base) != 64 {
		t.Fatalf("len(Key) = %d, want 64 hex chars", len(base))
	}
	if again := Key("Hi. Bye.", []string{"a", "b"}, "en", "eleven_v3", "mp3_44100_128"); again != base {
		t.Error("Key is not deterministic")
	}

	variants := []struct {
		name string
		key  string
	}{
		{"transcript", Key("Hi. Bye!", []string{"a", "b"}, "en", "eleven_v3", "mp3_44100_128")},
		{"voices", Key("Hi. Bye.", []string{"b", "a"}, "en", "eleven_v3", "mp3_44100_128")},
		{"language", Key("Hi. Bye.", []string{"a", "b"}, "fr", "eleven_v3", "mp3_44100_128")},
		{"format", Key("Hi. Bye.", []string{"a", "b"}, "en", "eleven_v3", "pcm_16000")},
		{"model", Key("Hi. Bye.", []string{"a", "b"}, "en", "eleven_multilingual_v2", "mp3_44100_128")},
		{"default model", Key("Hi. Bye.", []string{"a", "b"}, "en", "", "mp3_44100_128")},
		{"boundary shift", Key("Hi. Bye.", []string{"ab"}, "en", "eleven_v3", "mp3_44100_128")},
	}
	for _, v := range variants {
		if v.key == base {
			t.Errorf("changing %s did not change the key", v.name)
		}
	}
}

// TestPostgresStore_Integration runs the shared suite against a real
// database when DIALOGUELAB_TEST_POSTGRES_DSN is set.
func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("DIALOGUELAB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DIALOGUELAB_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, err := s.db.Exec(ctx, "TRUNCATE takes"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	runStoreSuite(t, s)
}
