package feed

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// AddComment appends a comment to a story. Anyone who can see the story
// may comment; comments are never reordered or edited.
func (s *Service) AddComment(ctx context.Context, v Viewer, storyID string, draft CommentDraft) (comment *Comment, err error) {
	defer s.record("comment", &err)

	text := strings.TrimSpace(draft.Text)
	if text == "" {
		return nil, invalid("text", "comment text is required")
	}

	created := Comment{
		ID:         uuid.NewString(),
		AuthorName: defaultString(draft.AuthorName, DefaultAuthor),
		Text:       text,
		CreatedAt:  s.now(),
	}

	err = s.mutate(ctx, "comment", func(c *collection) error {
		i := c.index(storyID)
		if i < 0 || !s.policy.Permits(OpComment, &c.Stories[i], v) {
			return ErrNotFound
		}
		c.Stories[i].Comments = append(c.Stories[i].Comments, created)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &created, nil
}
