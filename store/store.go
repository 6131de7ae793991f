package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a key holds no value.
	ErrNotFound = errors.New("key not found")
	// ErrConflict is returned when a write names a revision that is no longer current.
	ErrConflict = errors.New("revision conflict")
	// ErrCorrupt is returned when a stored document cannot be decoded.
	ErrCorrupt = errors.New("corrupt document")
	// ErrClosed is returned by backends used after Close.
	ErrClosed = errors.New("store closed")
)

// Revision identifies one written state of a key.
type Revision int64

const (
	// AnyRevision disables the revision check on write (last write wins).
	AnyRevision Revision = -1
	// NoRevision is the revision of a key that has never been written.
	NoRevision Revision = 0
)

// Record is a stored value together with its revision.
type Record struct {
	Value    []byte
	Revision Revision
}

// Backend is a flat key-value namespace with per-key revisions.
type Backend interface {
	// Get returns the record stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)

	// Put stores value under key. When expected is not AnyRevision the write only succeeds
	// if the stored revision equals expected (NoRevision meaning the key must be absent);
	// otherwise it fails with ErrConflict. It returns the new revision.
	Put(ctx context.Context, key string, value []byte, expected Revision) (Revision, error)

	// Keys lists the keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the backend's resources.
	Close() error
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("key cannot be empty")
	}
	return nil
}

func checkRevision(key string, current, expected Revision) error {
	if expected == AnyRevision || current == expected {
		return nil
	}
	return fmt.Errorf("%w: key %q is at revision %d, expected %d", ErrConflict, key, current, expected)
}

// GetJSON reads key and decodes it into a value of type T.
//
// A missing key yields ErrNotFound with NoRevision. A value that does not decode yields an
// error wrapping ErrCorrupt, and the stored revision is still returned so the caller can
// replace the document.
func GetJSON[T any](ctx context.Context, b Backend, key string) (T, Revision, error) {
	var zero T
	rec, err := b.Get(ctx, key)
	if err != nil {
		return zero, NoRevision, err
	}

	var out T
	if err := json.Unmarshal(rec.Value, &out); err != nil {
		return zero, rec.Revision, fmt.Errorf("%w: key %q: %v", ErrCorrupt, key, err)
	}
	return out, rec.Revision, nil
}

// GetJSONOrDefault is GetJSON with a fallback for missing keys.
func GetJSONOrDefault[T any](ctx context.Context, b Backend, key string, defaultValue T) (T, Revision, error) {
	value, rev, err := GetJSON[T](ctx, b, key)
	if errors.Is(err, ErrNotFound) {
		return defaultValue, NoRevision, nil
	}
	return value, rev, err
}

// PutJSON encodes value and stores it under key with the given expected revision.
func PutJSON[T any](ctx context.Context, b Backend, key string, value T, expected Revision) (Revision, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return NoRevision, fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	return b.Put(ctx, key, data, expected)
}
