package media

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore holds objects in process memory and serves them under
// baseURL.
type MemoryStore struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]memoryObject),
	}
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	s.mu.Unlock()

	return s.baseURL + "/" + key, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.contentType, nil
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var (
	_ ObjectStore  = (*MemoryStore)(nil)
	_ ObjectReader = (*MemoryStore)(nil)
)
