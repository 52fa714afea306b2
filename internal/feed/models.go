package feed

import (
	"crypto/subtle"
	"time"

	"github.com/alphabot-ai/storywall/internal/media"
)

const (
	// DefaultAuthor replaces a blank author name.
	DefaultAuthor = "Anonymous"

	// DefaultCategory replaces a blank category.
	DefaultCategory = "general"

	// DefaultPageSize is used when a list request names no page size.
	DefaultPageSize = 10

	// MaxPageSize bounds a single list page.
	MaxPageSize = 100
)

type Story struct {
	ID         string     `json:"id"`
	AuthorName string     `json:"authorName"`
	OwnerToken string     `json:"ownerToken,omitempty"`
	Text       string     `json:"text"`
	Media      *media.Ref `json:"media,omitempty"`
	Category   string     `json:"category,omitempty"`
	Title      string     `json:"title,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	Hidden     bool       `json:"hidden"`
	Comments   []Comment  `json:"comments"`
}

// OwnedBy reports whether sessionToken is the token the story was
// created with.
func (s *Story) OwnedBy(sessionToken string) bool {
	if s.OwnerToken == "" || sessionToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.OwnerToken), []byte(sessionToken)) == 1
}

type Comment struct {
	ID         string    `json:"id"`
	AuthorName string    `json:"authorName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// StoryDraft is the caller-supplied part of a new story.
type StoryDraft struct {
	AuthorName string
	Text       string
	Category   string
	Title      string
	OwnerToken string
	Upload     *media.Upload
}

// CommentDraft is the caller-supplied part of a new comment.
type CommentDraft struct {
	AuthorName string
	Text       string
}

// Viewer identifies who is reading.
type Viewer struct {
	Admin        bool
	SessionToken string
}

// Page is one slice of the newest-first story list.
type Page struct {
	Stories  []Story `json:"stories"`
	HasMore  bool    `json:"hasMore"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
}
