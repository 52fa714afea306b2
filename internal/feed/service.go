// Package feed implements the story collection: reading, paginating and
// mutating the single versioned document that holds every story and its
// comments, together with the moderation and ownership rules.
//
// Every mutation is a read-modify-write of the whole document. The write
// is conditional on the version that was read; when another writer got
// there first the mutation is reapplied to the fresh document, up to the
// configured attempt budget.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alphabot-ai/storywall/internal/media"
	"github.com/alphabot-ai/storywall/internal/metrics"
	"github.com/alphabot-ai/storywall/internal/retry"
	"github.com/alphabot-ai/storywall/internal/store"
)

// DefaultKey is the document key holding the story collection.
const DefaultKey = "stories"

// MediaLifecycle stores uploads and deletes them with their story.
type MediaLifecycle interface {
	Attach(ctx context.Context, up *media.Upload) (*media.Ref, error)
	Release(ctx context.Context, ref *media.Ref)
}

// Config tunes a Service. Zero values select the defaults.
type Config struct {
	Key      string
	PageSize int
	Retry    retry.Config
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Service is the story collection engine.
type Service struct {
	docs    store.DocumentStore
	media   MediaLifecycle
	policy  Policy
	key     string
	size    int
	retry   retry.Config
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewService creates a story service on top of a document store.
func NewService(docs store.DocumentStore, mediaLifecycle MediaLifecycle, policy Policy, cfg Config) *Service {
	s := &Service{
		docs:    docs,
		media:   mediaLifecycle,
		policy:  policy,
		key:     cfg.Key,
		size:    cfg.PageSize,
		retry:   cfg.Retry,
		now:     cfg.Now,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.size <= 0 {
		s.size = DefaultPageSize
	}
	if s.retry.MaxAttempts <= 0 {
		s.retry = retry.DefaultConfig()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Policy returns the authorization policy the service enforces.
func (s *Service) Policy() Policy {
	return s.policy
}

// List returns one page of the stories v may see, newest first.
func (s *Service) List(ctx context.Context, v Viewer, page, pageSize int) (p *Page, err error) {
	defer s.record("list", &err)

	c, _, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	result := paginate(c.visible(s.policy, v), page, pageSize, s.size)
	return &result, nil
}

// Get returns a single story. A hidden story is reported as not found to
// anyone but an admin.
func (s *Service) Get(ctx context.Context, v Viewer, id string) (story *Story, err error) {
	defer s.record("get", &err)

	c, _, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	i := c.index(id)
	if i < 0 || !s.policy.Permits(OpView, &c.Stories[i], v) {
		return nil, ErrNotFound
	}
	found := c.Stories[i]
	return &found, nil
}

// Create validates a draft, stores its media if any, and appends the new
// story to the collection.
func (s *Service) Create(ctx context.Context, draft StoryDraft) (story *Story, err error) {
	defer s.record("create", &err)

	text := strings.TrimSpace(draft.Text)
	if text == "" {
		return nil, invalid("text", "story text is required")
	}

	created := Story{
		ID:         uuid.NewString(),
		AuthorName: defaultString(draft.AuthorName, DefaultAuthor),
		OwnerToken: draft.OwnerToken,
		Text:       text,
		Category:   defaultString(draft.Category, DefaultCategory),
		Title:      strings.TrimSpace(draft.Title),
		CreatedAt:  s.now(),
		Comments:   []Comment{},
	}

	if draft.Upload != nil {
		if s.media == nil {
			return nil, &ValidationError{Field: "file", Message: "media uploads are disabled", Err: media.ErrUnsupported}
		}
		ref, err := s.media.Attach(ctx, draft.Upload)
		if err != nil {
			if errors.Is(err, media.ErrUnsupported) || errors.Is(err, media.ErrTooLarge) {
				return nil, &ValidationError{Field: "file", Message: err.Error(), Err: err}
			}
			return nil, unavailable(fmt.Errorf("upload media: %w", err))
		}
		created.Media = ref
	}

	err = s.mutate(ctx, "create", func(c *collection) error {
		for c.index(created.ID) >= 0 {
			created.ID = uuid.NewString()
		}
		c.Stories = append(c.Stories, created)
		return nil
	})
	if err != nil {
		if created.Media != nil {
			s.media.Release(context.WithoutCancel(ctx), created.Media)
		}
		return nil, err
	}

	s.logger.Info("story created", "id", created.ID, "media", created.Media != nil)
	return &created, nil
}

// SetHidden sets the hidden flag, or toggles it when hidden is nil, and
// returns the resulting value. Only an admin may do this.
func (s *Service) SetHidden(ctx context.Context, id string, hidden *bool, credential string) (result bool, err error) {
	defer s.record("hide", &err)

	if !s.policy.Authorize(OpHide, nil, credential, "") {
		return false, ErrUnauthorized
	}

	err = s.mutate(ctx, "hide", func(c *collection) error {
		i := c.index(id)
		if i < 0 {
			return ErrNotFound
		}
		if hidden != nil {
			c.Stories[i].Hidden = *hidden
		} else {
			c.Stories[i].Hidden = !c.Stories[i].Hidden
		}
		result = c.Stories[i].Hidden
		return nil
	})
	if err != nil {
		return false, err
	}

	s.logger.Info("story visibility changed", "id", id, "hidden", result)
	return result, nil
}

// Delete removes a story. The admin and the session that created the
// story may delete it. The story's media is released afterwards on a
// best-effort basis.
func (s *Service) Delete(ctx context.Context, id, credential, sessionToken string) (err error) {
	defer s.record("delete", &err)

	var removed Story
	err = s.mutate(ctx, "delete", func(c *collection) error {
		i := c.index(id)
		if i < 0 {
			return ErrNotFound
		}
		target := &c.Stories[i]
		if !s.policy.Authorize(OpDelete, target, credential, sessionToken) {
			if target.Hidden {
				return ErrNotFound
			}
			return ErrUnauthorized
		}
		removed = *target
		c.Stories = append(c.Stories[:i], c.Stories[i+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	if removed.Media != nil && s.media != nil {
		s.media.Release(context.WithoutCancel(ctx), removed.Media)
	}

	s.logger.Info("story deleted", "id", id, "by_admin", s.policy.IsAdmin(credential))
	return nil
}

// load reads and decodes the current document. An absent document is an
// empty collection with an empty version.
func (s *Service) load(ctx context.Context) (*collection, string, error) {
	doc, err := s.docs.Get(ctx, s.key)
	if errors.Is(err, store.ErrNotFound) {
		return &collection{Stories: []Story{}}, "", nil
	}
	if err != nil {
		return nil, "", unavailable(err)
	}

	c, err := decodeCollection(doc.Data)
	if err != nil {
		return nil, "", err
	}
	return c, doc.Version, nil
}

// mutate runs the read-modify-write loop. apply receives a freshly
// decoded collection on every attempt and must be safe to run again; an
// error from apply aborts the loop without writing.
func (s *Service) mutate(ctx context.Context, op string, apply func(*collection) error) error {
	attempts := 0
	err := retry.Do(ctx, s.retry, func(attempt int) error {
		attempts = attempt

		c, version, err := s.load(ctx)
		if err != nil {
			return retry.NonRetryable(err)
		}
		if err := apply(c); err != nil {
			return retry.NonRetryable(err)
		}

		data, err := c.encode()
		if err != nil {
			return retry.NonRetryable(fmt.Errorf("encode collection: %w", err))
		}

		if _, err := s.docs.PutIfVersion(ctx, s.key, data, version); err != nil {
			if errors.Is(err, store.ErrVersionMismatch) {
				s.metrics.Conflict(op)
				s.logger.Debug("document write conflict", "operation", op, "attempt", attempt)
				return err
			}
			return retry.NonRetryable(unavailable(err))
		}
		return nil
	})
	s.metrics.WriteAttempts(op, attempts)

	if errors.Is(err, retry.ErrExhausted) && errors.Is(err, store.ErrVersionMismatch) {
		s.logger.Warn("document write budget exhausted", "operation", op, "attempts", attempts)
		return ErrConflict
	}
	return err
}

func (s *Service) record(op string, err *error) {
	s.metrics.Operation(op, resultLabel(*err))
}
