package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/alphabot-ai/storywall/internal/config"
	"github.com/alphabot-ai/storywall/internal/media"
	"github.com/alphabot-ai/storywall/internal/store"
)

// backends owns the connections behind the configured stores.
type backends struct {
	docs    store.DocumentStore
	objects media.ObjectStore
	reader  media.ObjectReader

	nc *nats.Conn
}

func (b *backends) Close() {
	if b.docs != nil {
		b.docs.Close()
	}
	if b.nc != nil {
		b.nc.Close()
	}
}

// jetStream connects to NATS on first use; the KV document store and the
// object media store share one connection.
func (b *backends) jetStream(cfg *config.Config, logger *slog.Logger) (jetstream.JetStream, error) {
	if b.nc == nil {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name("storywall"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("nats disconnected", "error", err)
				}
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("connect to nats at %s: %w", cfg.NATSURL, err)
		}
		b.nc = nc
	}
	return jetstream.New(b.nc)
}

func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{}

	if err := b.openDocuments(ctx, cfg, logger); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openMedia(ctx, cfg, logger); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) openDocuments(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	switch cfg.DocumentBackend {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		b.docs = s
	case "nats":
		js, err := b.jetStream(cfg, logger)
		if err != nil {
			return err
		}
		s, err := store.NewNATSStore(ctx, js, cfg.NATSKVBucket)
		if err != nil {
			return err
		}
		b.docs = s
	case "mongo":
		s, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		b.docs = s
	case "memory":
		logger.Warn("memory document backend: stories are lost on restart")
		b.docs = store.NewMemoryStore()
	default:
		return fmt.Errorf("unknown DOCUMENT_BACKEND %q", cfg.DocumentBackend)
	}

	logger.Info("document store ready", "backend", cfg.DocumentBackend, "key", cfg.DocumentKey)
	return nil
}

func (b *backends) openMedia(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	switch cfg.MediaBackend {
	case "s3":
		s, err := media.NewS3Store(media.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.MediaPublicURL,
		})
		if err != nil {
			return err
		}
		b.objects = s
	case "nats":
		js, err := b.jetStream(cfg, logger)
		if err != nil {
			return err
		}
		s, err := media.NewNATSStore(ctx, js, cfg.NATSObjectBucket, cfg.MediaPublicURL)
		if err != nil {
			return err
		}
		b.objects, b.reader = s, s
	case "memory":
		s := media.NewMemoryStore(cfg.MediaPublicURL)
		b.objects, b.reader = s, s
	case "none":
		logger.Info("media uploads disabled")
		return nil
	default:
		return fmt.Errorf("unknown MEDIA_BACKEND %q", cfg.MediaBackend)
	}

	logger.Info("media store ready", "backend", cfg.MediaBackend, "public_url", cfg.MediaPublicURL)
	return nil
}
