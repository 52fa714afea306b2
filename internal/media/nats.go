package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

const contentTypeMeta = "content-type"

// NATSStore keeps media in a JetStream object store bucket. The bucket
// is not publicly reachable, so objects are served by this process under
// baseURL.
type NATSStore struct {
	objects jetstream.ObjectStore
	baseURL string
}

// NewNATSStore opens (creating if needed) the object store bucket.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, bucket, baseURL string) (*NATSStore, error) {
	objects, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "storywall media",
	})
	if err != nil {
		return nil, fmt.Errorf("open object store %s: %w", bucket, err)
	}
	return &NATSStore{objects: objects, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *NATSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.objects.Put(ctx, jetstream.ObjectMeta{
		Name:     key,
		Metadata: map[string]string{contentTypeMeta: contentType},
	}, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("object put %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *NATSStore) Delete(ctx context.Context, key string) error {
	err := s.objects.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("object delete %s: %w", key, err)
	}
	return nil
}

func (s *NATSStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	result, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("object get %s: %w", key, err)
	}

	info, err := result.Info()
	if err != nil {
		result.Close()
		return nil, "", fmt.Errorf("object info %s: %w", key, err)
	}
	return result, info.Metadata[contentTypeMeta], nil
}

var (
	_ ObjectStore  = (*NATSStore)(nil)
	_ ObjectReader = (*NATSStore)(nil)
)
