package store

import (
	"context"
	"strconv"
	"sync"
)

type memoryEntry struct {
	data     []byte
	revision uint64
}

// MemoryStore keeps documents in process memory. Versions are a
// per-key revision counter.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{
		Key:     key,
		Data:    append([]byte(nil), e.data...),
		Version: strconv.FormatUint(e.revision, 10),
	}, nil
}

func (s *MemoryStore) PutIfVersion(ctx context.Context, key string, data []byte, expected string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	switch {
	case !ok && expected != "":
		return "", ErrVersionMismatch
	case ok && expected != strconv.FormatUint(e.revision, 10):
		return "", ErrVersionMismatch
	}

	next := memoryEntry{data: append([]byte(nil), data...), revision: e.revision + 1}
	s.entries[key] = next
	return strconv.FormatUint(next.revision, 10), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ DocumentStore = (*MemoryStore)(nil)
