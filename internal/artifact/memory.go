package artifact

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"
	"time"

	"modq-go/internal/modq"
)

// MemoryArchive keeps artifacts in memory, for tests and dry runs.
type MemoryArchive struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data     []byte
	storedAt time.Time
}

var _ modq.ArtifactStore = (*MemoryArchive)(nil)

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetNow overrides the clock used to timestamp stored artifacts, for tests.
func (a *MemoryArchive) SetNow(now func() time.Time) { a.now = now }

func (a *MemoryArchive) Put(key string, img image.Image) error {
	if key == "" {
		return fmt.Errorf("invalid artifact key: %q", key)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encoding artifact %s: %w", key, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[key] = memoryEntry{data: buf.Bytes(), storedAt: a.now()}
	return nil
}

func (a *MemoryArchive) Open(key string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.entries[key]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(entry.data)), nil
}

func (a *MemoryArchive) Cleanup(cutoff time.Time) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for key, entry := range a.entries {
		if entry.storedAt.Before(cutoff) {
			delete(a.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored artifacts.
func (a *MemoryArchive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
