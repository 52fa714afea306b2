package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/storywall/internal/metrics"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
	gifBytes  = append([]byte("GIF89a"), make([]byte, 32)...)
)

type failingStore struct {
	putErr    error
	deleteErr error
	deleted   []string
}

func (s *failingStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	return "https://cdn.example.com/" + key, nil
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return s.deleteErr
}

func TestManager_Validate(t *testing.T) {
	m := NewManager(NewMemoryStore("/media"), ManagerConfig{MaxSize: 1024})

	tests := []struct {
		name    string
		upload  Upload
		wantErr error
		wantExt string
	}{
		{name: "png", upload: Upload{ContentType: "image/png", Data: pngBytes}, wantExt: ".png"},
		{name: "jpeg with params", upload: Upload{ContentType: "image/jpeg; charset=binary", Data: jpegBytes}, wantExt: ".jpg"},
		{name: "upper case type", upload: Upload{ContentType: "IMAGE/GIF", Data: gifBytes}, wantExt: ".gif"},
		{name: "not allowed", upload: Upload{ContentType: "application/pdf", Data: []byte("%PDF-1.4")}, wantErr: ErrUnsupported},
		{name: "malformed type", upload: Upload{ContentType: "", Data: pngBytes}, wantErr: ErrUnsupported},
		{name: "declared png but gif bytes", upload: Upload{ContentType: "image/png", Data: gifBytes}, wantErr: ErrUnsupported},
		{name: "too large", upload: Upload{ContentType: "image/png", Data: append(pngBytes, make([]byte, 2048)...)}, wantErr: ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ext, err := m.Validate(&tt.upload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestManager_NoStoreRejectsUploads(t *testing.T) {
	m := NewManager(nil, ManagerConfig{})

	_, err := m.Attach(context.Background(), &Upload{ContentType: "image/png", Data: pngBytes})
	assert.ErrorIs(t, err, ErrUnsupported)

	assert.NotPanics(t, func() {
		m.Release(context.Background(), &Ref{URL: "/media/x.png"})
	})
}

func TestManager_AttachIgnoresFilename(t *testing.T) {
	store := NewMemoryStore("http://localhost:8080/media/")
	m := NewManager(store, ManagerConfig{Metrics: metrics.New()})

	ref, err := m.Attach(context.Background(), &Upload{
		Filename:    "../../etc/passwd.png",
		ContentType: "image/png",
		Data:        pngBytes,
	})
	require.NoError(t, err)

	assert.Equal(t, "image/png", ref.ContentType)
	assert.True(t, strings.HasPrefix(ref.URL, "http://localhost:8080/media/"))
	assert.NotContains(t, ref.URL, "passwd")

	key, ok := KeyFromURL(ref.URL)
	require.True(t, ok)
	assert.True(t, ValidKey(key))
	assert.Equal(t, ".png", path.Ext(key))

	rc, contentType, err := store.Open(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.True(t, bytes.Equal(pngBytes, data))
}

func TestManager_AttachKeysAreUnique(t *testing.T) {
	m := NewManager(NewMemoryStore("/media"), ManagerConfig{})
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		ref, err := m.Attach(context.Background(), &Upload{Filename: "same.png", ContentType: "image/png", Data: pngBytes})
		require.NoError(t, err)
		assert.False(t, seen[ref.URL], "duplicate key %s", ref.URL)
		seen[ref.URL] = true
	}
}

func TestManager_AttachStoreFailure(t *testing.T) {
	m := NewManager(&failingStore{putErr: errors.New("bucket offline")}, ManagerConfig{})

	_, err := m.Attach(context.Background(), &Upload{ContentType: "image/png", Data: pngBytes})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupported)
}

func TestManager_Release(t *testing.T) {
	store := NewMemoryStore("/media")
	m := NewManager(store, ManagerConfig{})
	ctx := context.Background()

	ref, err := m.Attach(ctx, &Upload{ContentType: "image/png", Data: pngBytes})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	m.Release(ctx, ref)
	assert.Equal(t, 0, store.Len())

	// Releasing twice is harmless.
	m.Release(ctx, ref)
	m.Release(ctx, nil)
}

func TestManager_ReleaseFailureIsSwallowed(t *testing.T) {
	store := &failingStore{deleteErr: errors.New("denied")}
	reg := metrics.New()
	m := NewManager(store, ManagerConfig{Metrics: reg})

	m.Release(context.Background(), &Ref{URL: "https://cdn.example.com/abc.png", ContentType: "image/png"})

	assert.Equal(t, []string{"abc.png"}, store.deleted)
}

func TestKeyFromURL(t *testing.T) {
	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{"https://pub.r2.dev/1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed.png", "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed.png", true},
		{"/media/abc.jpg", "abc.jpg", true},
		{"https://cdn.example.com/", "", false},
		{"", "", false},
		{"://bad", "", false},
	}

	for _, tt := range tests {
		got, ok := KeyFromURL(tt.url)
		assert.Equal(t, tt.wantOK, ok, tt.url)
		if tt.wantOK {
			assert.Equal(t, tt.want, got, tt.url)
		}
	}
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed.png"))
	assert.False(t, ValidKey("1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed"))
	assert.False(t, ValidKey("../secret.png"))
	assert.False(t, ValidKey("photo.png"))
}
