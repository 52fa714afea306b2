package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runDocumentStoreTests exercises the conditional-write contract every
// backend must honor.
func runDocumentStoreTests(t *testing.T, s DocumentStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create then update", func(t *testing.T) {
		v1, err := s.PutIfVersion(ctx, "doc", []byte(`{"n":1}`), "")
		require.NoError(t, err)
		require.NotEmpty(t, v1)

		doc, err := s.Get(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, `{"n":1}`, string(doc.Data))
		assert.Equal(t, v1, doc.Version)

		v2, err := s.PutIfVersion(ctx, "doc", []byte(`{"n":2}`), v1)
		require.NoError(t, err)
		assert.NotEqual(t, v1, v2)

		doc, err = s.Get(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, `{"n":2}`, string(doc.Data))
		assert.Equal(t, v2, doc.Version)
	})

	t.Run("create on existing key conflicts", func(t *testing.T) {
		_, err := s.PutIfVersion(ctx, "doc", []byte(`{"n":3}`), "")
		assert.ErrorIs(t, err, ErrVersionMismatch)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		doc, err := s.Get(ctx, "doc")
		require.NoError(t, err)

		_, err = s.PutIfVersion(ctx, "doc", []byte(`{"n":4}`), doc.Version)
		require.NoError(t, err)

		_, err = s.PutIfVersion(ctx, "doc", []byte(`{"n":5}`), doc.Version)
		assert.ErrorIs(t, err, ErrVersionMismatch)

		current, err := s.Get(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, `{"n":4}`, string(current.Data))
	})

	t.Run("update of absent key conflicts", func(t *testing.T) {
		doc, err := s.Get(ctx, "doc")
		require.NoError(t, err)

		_, err = s.PutIfVersion(ctx, "other", []byte(`{}`), doc.Version)
		assert.ErrorIs(t, err, ErrVersionMismatch)
	})

	t.Run("concurrent writers from the same version", func(t *testing.T) {
		_, err := s.PutIfVersion(ctx, "race", []byte(`start`), "")
		require.NoError(t, err)
		base, err := s.Get(ctx, "race")
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.PutIfVersion(ctx, "race", []byte(fmt.Sprintf("writer-%d", i)), base.Version)
				if err == nil {
					wins.Add(1)
				} else {
					assert.ErrorIs(t, err, ErrVersionMismatch)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load(), "exactly one writer may win a version")
	})
}

func TestMemoryStore(t *testing.T) {
	runDocumentStoreTests(t, NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	data := []byte("abc")
	_, err := s.PutIfVersion(ctx, "k", data, "")
	require.NoError(t, err)
	data[0] = 'x'

	doc, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(doc.Data))

	doc.Data[0] = 'y'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again.Data))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.PutIfVersion(ctx, "k", nil, "")
	assert.ErrorIs(t, err, context.Canceled)
}
