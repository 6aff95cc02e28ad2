// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package mongo provides the Azure Cosmos DB for MongoDB vCore memory backend.
package mongo

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jllopis/telos/pkg/memory"
)

// VectorIndexName is the name of the cosmosSearch index on the embedding field.
const VectorIndexName = "vector_index"

// Backend is a memory.Backend on a MongoDB vCore collection.
type Backend struct {
	client     *mongo.Client
	collection *mongo.Collection
	dimensions int
	log        *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.log = logger
		}
	}
}

// Open connects with cfg.ConnectionString and makes sure the vector index
// exists. Index creation failures are logged, not returned: similarity
// queries then fall back to in-process ranking.
func Open(ctx context.Context, cfg memory.Config, opts ...Option) (*Backend, error) {
	cfg = cfg.WithDefaults()
	b := &Backend{dimensions: cfg.Dimensions, log: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.ConnectionString))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	b.client = client
	b.collection = client.Database(cfg.Database).Collection(cfg.Collection)

	if err := b.ensureVectorIndex(ctx); err != nil {
		b.log.Warn("memory.backend.vector_index_unavailable", slog.String("error", err.Error()))
	}

	b.log.Info("memory.backend.connected",
		slog.String("backend", string(memory.ClientTypeMongo)),
		slog.String("database", cfg.Database),
		slog.String("collection", cfg.Collection),
	)
	return b, nil
}

func (b *Backend) ensureVectorIndex(ctx context.Context) error {
	cursor, err := b.collection.Indexes().List(ctx)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	var indexes []bson.M
	if err := cursor.All(ctx, &indexes); err != nil {
		return fmt.Errorf("decode indexes: %w", err)
	}
	for _, idx := range indexes {
		if idx["name"] == VectorIndexName {
			return nil
		}
	}

	cmd := vectorIndexCommand(b.collection.Name(), b.dimensions)
	if err := b.collection.Database().RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	b.log.Info("memory.backend.vector_index_created", slog.Int("dimensions", b.dimensions))
	return nil
}

// ClientType implements memory.Backend.
func (b *Backend) ClientType() memory.ClientType { return memory.ClientTypeMongo }

// Insert stores rec as a new document.
func (b *Backend) Insert(ctx context.Context, rec memory.Record) error {
	_, err := b.collection.InsertOne(ctx, newDocument(rec))
	return err
}

// QueryBySession returns the newest records of one session.
func (b *Backend) QueryBySession(ctx context.Context, sessionID string, limit int) ([]memory.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.D{{Key: "embedding", Value: 0}})
	return b.find(ctx, bson.D{{Key: "session_id", Value: sessionID}}, opts)
}

// QuerySimilar runs a cosmosSearch k-NN aggregation and keeps results whose
// similarity is at least minScore. Servers without $search support report
// memory.ErrNativeSearchUnavailable.
func (b *Backend) QuerySimilar(ctx context.Context, vector []float32, limit int, minScore float64) ([]memory.Record, error) {
	cursor, err := b.collection.Aggregate(ctx, similarityPipeline(vector, limit))
	if err != nil {
		var cmdErr mongo.CommandError
		if stderrors.As(err, &cmdErr) {
			return nil, fmt.Errorf("%w: %v", memory.ErrNativeSearchUnavailable, err)
		}
		return nil, err
	}
	var hits []searchHit
	if err := cursor.All(ctx, &hits); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	return hitsToRecords(hits, minScore), nil
}

// QueryAll returns every document.
func (b *Backend) QueryAll(ctx context.Context) ([]memory.Record, error) {
	return b.find(ctx, bson.D{}, options.Find())
}

// QueryRecent returns the newest records across sessions.
func (b *Backend) QueryRecent(ctx context.Context, limit int) ([]memory.Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.D{{Key: "embedding", Value: 0}})
	return b.find(ctx, bson.D{}, opts)
}

// Close disconnects the client once.
func (b *Backend) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.closeErr = b.client.Disconnect(ctx)
	})
	return b.closeErr
}

func (b *Backend) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]memory.Record, error) {
	cursor, err := b.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	out := make([]memory.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	return out, nil
}
