// Package media stores files attached to stories and ties their lifetime
// to the story that references them.
package media

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrUnsupported is returned for content types outside the allow-list,
	// for bodies whose bytes do not match the declared type, and when no
	// media backend is configured.
	ErrUnsupported = errors.New("unsupported media type")

	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("media too large")

	// ErrNotFound is returned by ObjectReader.Open for unknown keys.
	ErrNotFound = errors.New("media object not found")
)

// Ref points at a stored media object.
type Ref struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}

// Upload is a file received with a new story.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ObjectStore is a bucket of opaque objects addressed by key.
type ObjectStore interface {
	// Put stores data under key and returns the public URL of the object.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// ObjectReader is implemented by stores whose objects are served by this
// process rather than by a public bucket endpoint.
type ObjectReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}
