package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alphabot-ai/storywall/internal/media"
)

// collection is the decoded story document.
type collection struct {
	Stories []Story `json:"stories"`
}

// legacyStory is an entry of the bare-array document the feed was first
// stored as, with millisecond timestamps and flat media fields.
type legacyStory struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Text      string          `json:"text"`
	MediaURL  *string         `json:"mediaUrl"`
	MediaType *string         `json:"mediaType"`
	CreatedAt int64           `json:"createdAt"`
	Hidden    bool            `json:"hidden"`
	Comments  []legacyComment `json:"comments"`
}

type legacyComment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

func decodeCollection(data []byte) (*collection, error) {
	c := &collection{}

	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '[':
		var legacy []legacyStory
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		c.Stories = make([]Story, 0, len(legacy))
		for _, ls := range legacy {
			c.Stories = append(c.Stories, ls.story())
		}
	default:
		if err := json.Unmarshal(trimmed, c); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}

	for i := range c.Stories {
		if c.Stories[i].Comments == nil {
			c.Stories[i].Comments = []Comment{}
		}
	}
	return c, nil
}

func (ls legacyStory) story() Story {
	s := Story{
		ID:         ls.ID,
		AuthorName: defaultString(ls.Name, DefaultAuthor),
		Text:       ls.Text,
		Category:   DefaultCategory,
		CreatedAt:  time.UnixMilli(ls.CreatedAt).UTC(),
		Hidden:     ls.Hidden,
		Comments:   make([]Comment, 0, len(ls.Comments)),
	}
	if ls.MediaURL != nil && *ls.MediaURL != "" {
		s.Media = &media.Ref{URL: *ls.MediaURL}
		if ls.MediaType != nil {
			s.Media.ContentType = *ls.MediaType
		}
	}
	for _, lc := range ls.Comments {
		s.Comments = append(s.Comments, Comment{
			ID:         lc.ID,
			AuthorName: defaultString(lc.Name, DefaultAuthor),
			Text:       lc.Text,
			CreatedAt:  time.UnixMilli(lc.CreatedAt).UTC(),
		})
	}
	return s
}

func (c *collection) encode() ([]byte, error) {
	if c.Stories == nil {
		c.Stories = []Story{}
	}
	return json.Marshal(c)
}

func (c *collection) index(id string) int {
	for i := range c.Stories {
		if c.Stories[i].ID == id {
			return i
		}
	}
	return -1
}

// visible returns copies of the stories p lets v view, newest first.
// Stories with equal timestamps keep reverse insertion order.
func (c *collection) visible(p Policy, v Viewer) []Story {
	out := make([]Story, 0, len(c.Stories))
	for i := len(c.Stories) - 1; i >= 0; i-- {
		if p.Permits(OpView, &c.Stories[i], v) {
			out = append(out, c.Stories[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// paginate slices stories for a 1-based page, normalizing the arguments.
func paginate(stories []Story, page, pageSize, defaultSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	start := len(stories)
	if page-1 < len(stories)/pageSize+1 {
		start = min((page-1)*pageSize, len(stories))
	}
	end := start + pageSize
	if end > len(stories) {
		end = len(stories)
	}

	return Page{
		Stories:  stories[start:end],
		HasMore:  end < len(stories),
		Page:     page,
		PageSize: pageSize,
	}
}

func defaultString(s, fallback string) string {
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}
