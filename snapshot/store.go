// Package snapshot keeps compressed copies of document text and fetches the
// historic counterparts a buffer can be compared against: its last-saved
// on-disk content and its git HEAD version.
package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
)

// Store holds brotli-compressed document snapshots keyed by an arbitrary
// caller-chosen key (typically the buffer path).
type Store struct {
	mu    sync.Mutex
	byKey map[string][]byte
}

func NewStore() *Store {
	return &Store{byKey: map[string][]byte{}}
}

// Put compresses and stores text under key, replacing any previous snapshot.
func (s *Store) Put(key, text string) error {
	var buf bytes.Buffer

	// Quality 1 favors speed; snapshots are written on every save.
	w := brotli.NewWriterLevel(&buf, 1)
	if _, err := w.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close brotli writer: %w", err)
	}

	s.mu.Lock()
	s.byKey[key] = buf.Bytes()
	s.mu.Unlock()

	return nil
}

// Get returns the decompressed snapshot for key, with ok false when none is
// stored.
func (s *Store) Get(key string) (text string, ok bool, err error) {
	s.mu.Lock()
	compressed, ok := s.byKey[key]
	s.mu.Unlock()

	if !ok {
		return "", false, nil
	}

	raw, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		return "", false, fmt.Errorf("failed to decompress snapshot: %w", err)
	}

	return string(raw), true, nil
}

// Delete drops the snapshot for key, if any.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.byKey, key)
	s.mu.Unlock()
}

// Len returns the number of stored snapshots.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}
