package feed

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/storywall/internal/retry"
	"github.com/alphabot-ai/storywall/internal/store"
)

func sqliteDocs(t *testing.T) store.DocumentStore {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "storywall-feed-*.db")
	require.NoError(t, err)
	tmpFile.Close()

	s, err := store.NewSQLiteStore(tmpFile.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		os.Remove(tmpFile.Name())
		os.Remove(tmpFile.Name() + "-wal")
		os.Remove(tmpFile.Name() + "-shm")
	})
	return s
}

func backends(t *testing.T) map[string]func() store.DocumentStore {
	return map[string]func() store.DocumentStore{
		"memory": func() store.DocumentStore { return store.NewMemoryStore() },
		"sqlite": func() store.DocumentStore { return sqliteDocs(t) },
	}
}

func TestConcurrentCreatesOnEmptyCollection(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, open())
			ctx := context.Background()

			var wg sync.WaitGroup
			results := make([]*Story, 2)
			errs := make([]error, 2)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = f.svc.Create(ctx, StoryDraft{Text: fmt.Sprintf("story %d", i)})
				}(i)
			}
			wg.Wait()

			require.NoError(t, errs[0])
			require.NoError(t, errs[1])
			assert.NotEqual(t, results[0].ID, results[1].ID)

			page, err := f.svc.List(ctx, public, 1, 10)
			require.NoError(t, err)
			assert.Len(t, page.Stories, 2)
		})
	}
}

func TestConcurrentCommentsAreNeverLost(t *testing.T) {
	const writers = 20

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, open())
			ctx := context.Background()
			target := f.create(t, "busy story")

			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := f.svc.AddComment(ctx, public, target.ID, CommentDraft{Text: fmt.Sprintf("comment %d", i)})
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				require.NoError(t, err)
			}

			got, err := f.svc.Get(ctx, public, target.ID)
			require.NoError(t, err)
			require.Len(t, got.Comments, writers)

			texts := make(map[string]bool)
			ids := make(map[string]bool)
			for _, c := range got.Comments {
				texts[c.Text] = true
				ids[c.ID] = true
			}
			assert.Len(t, texts, writers)
			assert.Len(t, ids, writers)
		})
	}
}

// With the production retry budget a writer may give up with
// ErrConflict, but a comment is stored exactly when AddComment succeeds.
func TestConcurrentCommentsWithDefaultRetry(t *testing.T) {
	const writers = 20

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			f := newFixtureWithRetry(t, open(), retry.DefaultConfig())
			ctx := context.Background()
			target := f.create(t, "busy story")

			var wg sync.WaitGroup
			var mu sync.Mutex
			committed := make(map[string]bool)
			errs := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					c, err := f.svc.AddComment(ctx, public, target.ID, CommentDraft{Text: fmt.Sprintf("comment %d", i)})
					if err != nil {
						errs <- err
						return
					}
					mu.Lock()
					committed[c.ID] = true
					mu.Unlock()
				}(i)
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				require.ErrorIs(t, err, ErrConflict)
			}
			require.NotEmpty(t, committed)

			got, err := f.svc.Get(ctx, public, target.ID)
			require.NoError(t, err)
			require.Len(t, got.Comments, len(committed))
			for _, c := range got.Comments {
				assert.True(t, committed[c.ID], "comment %s stored but not reported", c.ID)
			}
		})
	}
}

func TestConcurrentMixedMutations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.create(t, "a")
	b := f.create(t, "b")
	doomed := f.create(t, "doomed")

	var wg sync.WaitGroup
	run := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, fn())
		}()
	}

	for i := 0; i < 5; i++ {
		run(func() error {
			_, err := f.svc.AddComment(ctx, public, a.ID, CommentDraft{Text: "on a"})
			return err
		})
		run(func() error {
			_, err := f.svc.AddComment(ctx, admin, b.ID, CommentDraft{Text: "on b"})
			return err
		})
		run(func() error {
			_, err := f.svc.Create(ctx, StoryDraft{Text: "new"})
			return err
		})
	}
	yes := true
	run(func() error {
		_, err := f.svc.SetHidden(ctx, b.ID, &yes, adminSecret)
		return err
	})
	run(func() error {
		return f.svc.Delete(ctx, doomed.ID, adminSecret, "")
	})
	wg.Wait()

	gotA, err := f.svc.Get(ctx, admin, a.ID)
	require.NoError(t, err)
	assert.Len(t, gotA.Comments, 5)

	gotB, err := f.svc.Get(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Len(t, gotB.Comments, 5)
	assert.True(t, gotB.Hidden)

	_, err = f.svc.Get(ctx, admin, doomed.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := f.svc.List(ctx, admin, 1, 100)
	require.NoError(t, err)
	assert.Len(t, all.Stories, 2+5)
}
