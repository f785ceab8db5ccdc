package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/CertGoat/internal/certificate"
)

// MongoStorage upserts certificates into a MongoDB collection keyed by ISIN.
// Run metadata goes to a sibling "<collection>_runs" collection.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	runs       *mongo.Collection
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStorage creates a new MongoDB storage backend.
func NewMongoStorage(uri, database, collection string, logger *slog.Logger) (*MongoStorage, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb: storage.mongo_uri is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(database)
	coll := db.Collection(collection)

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "isin", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb index: %w", err)
	}

	return &MongoStorage{
		client:     client,
		collection: coll,
		runs:       db.Collection(collection + "_runs"),
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

func (s *MongoStorage) Store(out *certificate.Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if len(out.Certificates) > 0 {
		models := make([]mongo.WriteModel, 0, len(out.Certificates))
		for _, rec := range out.Certificates {
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"isin": rec.ISIN}).
				SetReplacement(rec).
				SetUpsert(true))
		}

		res, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		if err != nil {
			return fmt.Errorf("mongodb bulk upsert: %w", err)
		}
		s.logger.Debug("certificates upserted in mongodb",
			"matched", res.MatchedCount,
			"upserted", res.UpsertedCount,
		)
	}

	if _, err := s.runs.InsertOne(ctx, out.Metadata); err != nil {
		return fmt.Errorf("mongodb insert run: %w", err)
	}

	s.count += len(out.Certificates)
	return nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_certificates", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes the batch to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

// Store writes to every backend and returns the first failure. A failing
// backend does not stop the others.
func (s *MultiStorage) Store(out *certificate.Output) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(out); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
