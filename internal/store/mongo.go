package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoDocument struct {
	Key       string    `bson:"_id"`
	Body      []byte    `bson:"body"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps documents in a MongoDB collection with an integer
// version field. Updates are filtered on the version read, so a stale
// writer matches nothing.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to uri and uses database.documents.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection("documents"),
	}, nil
}

func (s *MongoStore) Get(ctx context.Context, key string) (*Document, error) {
	var doc mongoDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get %s: %w", key, err)
	}

	return &Document{
		Key:     key,
		Data:    doc.Body,
		Version: strconv.FormatInt(doc.Version, 10),
	}, nil
}

func (s *MongoStore) PutIfVersion(ctx context.Context, key string, data []byte, expected string) (string, error) {
	now := time.Now().UTC()

	if expected == "" {
		_, err := s.collection.InsertOne(ctx, mongoDocument{
			Key:       key,
			Body:      data,
			Version:   1,
			UpdatedAt: now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrVersionMismatch
		}
		if err != nil {
			return "", fmt.Errorf("mongo insert %s: %w", key, err)
		}
		return "1", nil
	}

	current, err := strconv.ParseInt(expected, 10, 64)
	if err != nil {
		return "", fmt.Errorf("mongo update %s: bad version %q: %w", key, expected, err)
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": key, "version": current},
		bson.M{"$set": bson.M{
			"body":       data,
			"version":    current + 1,
			"updated_at": now,
		}},
	)
	if err != nil {
		return "", fmt.Errorf("mongo update %s: %w", key, err)
	}
	if res.MatchedCount == 0 {
		return "", ErrVersionMismatch
	}
	return strconv.FormatInt(current+1, 10), nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ DocumentStore = (*MongoStore)(nil)
