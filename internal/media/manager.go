package media

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/alphabot-ai/storywall/internal/metrics"
)

// DefaultMaxSize is the upload limit used when none is configured.
const DefaultMaxSize = 10 << 20

// DefaultTypes maps each accepted content type to the extension used for
// its object key.
var DefaultTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
	"audio/mpeg": ".mp3",
}

// Manager validates uploads, stores them and deletes them again when
// their story goes away. A Manager without a store rejects every upload.
type Manager struct {
	store   ObjectStore
	types   map[string]string
	maxSize int64
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// ManagerConfig configures a Manager. Zero values select the defaults.
type ManagerConfig struct {
	AllowedTypes map[string]string
	MaxSize      int64
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

func NewManager(store ObjectStore, cfg ManagerConfig) *Manager {
	m := &Manager{
		store:   store,
		types:   cfg.AllowedTypes,
		maxSize: cfg.MaxSize,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if len(m.types) == 0 {
		m.types = DefaultTypes
	}
	if m.maxSize <= 0 {
		m.maxSize = DefaultMaxSize
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// MaxSize returns the upload limit in bytes.
func (m *Manager) MaxSize() int64 {
	return m.maxSize
}

// Validate checks an upload against the allow-list and size limit and
// returns the normalized content type and the key extension.
func (m *Manager) Validate(up *Upload) (string, string, error) {
	if m.store == nil {
		return "", "", fmt.Errorf("%w: media uploads are disabled", ErrUnsupported)
	}
	if int64(len(up.Data)) > m.maxSize {
		return "", "", fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, len(up.Data), m.maxSize)
	}

	declared, _, err := mime.ParseMediaType(up.ContentType)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupported, up.ContentType)
	}
	declared = strings.ToLower(declared)

	ext, ok := m.types[declared]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupported, declared)
	}
	if !mimetype.Detect(up.Data).Is(declared) {
		return "", "", fmt.Errorf("%w: content does not match %s", ErrUnsupported, declared)
	}

	return declared, ext, nil
}

// Attach validates and stores an upload under a fresh key. The client
// filename never contributes to the key.
func (m *Manager) Attach(ctx context.Context, up *Upload) (*Ref, error) {
	contentType, ext, err := m.Validate(up)
	if err != nil {
		return nil, err
	}

	key := uuid.NewString() + ext
	publicURL, err := m.store.Put(ctx, key, up.Data, contentType)
	if err != nil {
		return nil, err
	}

	m.metrics.MediaUploaded(len(up.Data))
	m.logger.Debug("media stored", "key", key, "content_type", contentType, "size", len(up.Data))

	return &Ref{URL: publicURL, ContentType: contentType}, nil
}

// Release deletes the object behind ref. Failures are logged and counted
// but never returned: the story removal is what the caller asked for.
func (m *Manager) Release(ctx context.Context, ref *Ref) {
	if ref == nil || m.store == nil {
		return
	}

	key, ok := KeyFromURL(ref.URL)
	if !ok {
		m.metrics.MediaReleaseFailed()
		m.logger.Warn("media release skipped: no key in url", "url", ref.URL)
		return
	}

	if err := m.store.Delete(ctx, key); err != nil {
		m.metrics.MediaReleaseFailed()
		m.logger.Warn("media release failed", "key", key, "error", err)
		return
	}
	m.logger.Debug("media released", "key", key)
}

// KeyFromURL recovers the object key from a public media URL. Keys are
// flat, so the key is the last path segment.
func KeyFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	key := path.Base(u.Path)
	if key == "" || key == "." || key == "/" {
		return "", false
	}
	return key, true
}

// ValidKey reports whether key has the shape Attach generates, which is
// what the media route accepts.
func ValidKey(key string) bool {
	ext := path.Ext(key)
	if ext == "" {
		return false
	}
	_, err := uuid.Parse(strings.TrimSuffix(key, ext))
	return err == nil
}
