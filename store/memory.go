package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// entry is one stored document. The value is owned by the store and never handed out.
type entry struct {
	value     []byte
	revision  Revision
	updatedAt time.Time
}

// MemoryStore is a threadsafe in-memory Backend.
type MemoryStore struct {
	mu     deadlock.RWMutex
	data   map[string]entry
	closed bool
}

var _ Backend = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]entry)}
}

// Get returns a copy of the record stored under key.
func (s *MemoryStore) Get(ctx context.Context, key string) (Record, error) {
	if err := validateKey(key); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Record{}, ErrClosed
	}
	e, ok := s.data[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return Record{Value: cloneBytes(e.value), Revision: e.revision}, nil
}

// Put stores a copy of value under key.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, expected Revision) (Revision, error) {
	if err := validateKey(key); err != nil {
		return NoRevision, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NoRevision, ErrClosed
	}

	current := s.data[key].revision
	if err := checkRevision(key, current, expected); err != nil {
		return current, err
	}

	next := current + 1
	s.data[key] = entry{value: cloneBytes(value), revision: next, updatedAt: time.Now()}
	return next, nil
}

// Keys lists the stored keys with the given prefix.
func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	out := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Count returns the number of stored keys.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Clone creates a new MemoryStore with a deep copy of all entries, revisions included.
// The returned store shares no memory with the original.
func (s *MemoryStore) Clone() *MemoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := NewMemoryStore()
	for key, e := range s.data {
		clone.data[key] = entry{value: cloneBytes(e.value), revision: e.revision, updatedAt: e.updatedAt}
	}
	return clone
}

// Close marks the store closed. Further calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
