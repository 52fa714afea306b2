package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore keeps documents in a JetStream key-value bucket. The entry
// revision is the version token, and writes go through kv.Create /
// kv.Update so JetStream itself rejects stale writers.
type NATSStore struct {
	kv      jetstream.KeyValue
	timeout time.Duration
}

// NewNATSStore opens (creating if needed) the KV bucket.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, bucket string) (*NATSStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "storywall documents",
		History:     5,
	})
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %s: %w", bucket, err)
	}
	return &NATSStore{kv: kv, timeout: 5 * time.Second}, nil
}

func (s *NATSStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

func (s *NATSStore) Get(ctx context.Context, key string) (*Document, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}

	return &Document{
		Key:     key,
		Data:    entry.Value(),
		Version: strconv.FormatUint(entry.Revision(), 10),
	}, nil
}

func (s *NATSStore) PutIfVersion(ctx context.Context, key string, data []byte, expected string) (string, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	var (
		rev uint64
		err error
	)
	if expected == "" {
		rev, err = s.kv.Create(ctx, key, data)
	} else {
		want, perr := strconv.ParseUint(expected, 10, 64)
		if perr != nil {
			return "", fmt.Errorf("kv update %s: bad version %q: %w", key, expected, perr)
		}
		rev, err = s.kv.Update(ctx, key, data, want)
	}
	if err != nil {
		if isKVConflict(err) {
			return "", ErrVersionMismatch
		}
		return "", fmt.Errorf("kv put %s: %w", key, err)
	}
	return strconv.FormatUint(rev, 10), nil
}

// Close is a no-op; the owner of the NATS connection drains it.
func (s *NATSStore) Close() error {
	return nil
}

// isKVConflict reports a key-exists or wrong-last-sequence rejection.
func isKVConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") || strings.Contains(msg, "key exists")
}

var _ DocumentStore = (*NATSStore)(nil)
