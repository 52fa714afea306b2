// Package store persists versioned documents. The feed keeps its whole
// story collection under a single key, so every backend only needs a
// read with a version token and a write that is accepted only when that
// token is still current.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key holds no document.
	ErrNotFound = errors.New("document not found")

	// ErrVersionMismatch is returned by PutIfVersion when the stored
	// version is not the expected one, or when a create finds the key
	// already present.
	ErrVersionMismatch = errors.New("document version mismatch")
)

// Document is a serialized value together with the version it was read at.
type Document struct {
	Key     string
	Data    []byte
	Version string
}

// DocumentStore defines the interface for document persistence
type DocumentStore interface {
	// Get returns the current document or ErrNotFound.
	Get(ctx context.Context, key string) (*Document, error)

	// PutIfVersion writes data only if the stored version equals
	// expected. An empty expected version means the key must not exist
	// yet. It returns the new version token.
	PutIfVersion(ctx context.Context, key string, data []byte, expected string) (string, error)

	// Close releases backend resources.
	Close() error
}
