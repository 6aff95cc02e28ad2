// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package chromem provides an embedded memory backend on chromem-go.
//
// chromem-go is a pure Go, in-process vector database. It serves native
// similarity queries; listing queries (session history, recent records, full
// scans) are served from an ordered in-process log because chromem has no
// listing API.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/jllopis/telos/pkg/memory"
)

// Backend is an embedded memory.Backend.
type Backend struct {
	*memory.InMemory

	col *chromem.Collection
	mu  sync.Mutex
	seq int
}

// New creates an in-process backend with the given collection name.
func New(collection string) (*Backend, error) {
	if collection == "" {
		collection = memory.DefaultCollection
	}
	db := chromem.NewDB()
	// No embedding func: vectors are always supplied by the caller.
	col, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Backend{InMemory: memory.NewInMemory(), col: col}, nil
}

// ClientType implements memory.Backend.
func (b *Backend) ClientType() memory.ClientType { return memory.ClientTypeEmbedded }

// Insert adds rec to the vector collection and the listing log. Records
// without an embedding are only kept in the log.
func (b *Backend) Insert(ctx context.Context, rec memory.Record) error {
	if len(rec.Embedding) > 0 {
		content, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("serialize record: %w", err)
		}
		b.mu.Lock()
		b.seq++
		id := strconv.Itoa(b.seq)
		b.mu.Unlock()

		doc := chromem.Document{
			ID:        id,
			Content:   string(content),
			Embedding: append([]float32(nil), rec.Embedding...),
			Metadata: map[string]string{
				"session_id": rec.SessionID,
				"timestamp":  rec.Timestamp,
			},
		}
		if err := b.col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
			return fmt.Errorf("add document: %w", err)
		}
	}
	return b.InMemory.Insert(ctx, rec)
}

// QuerySimilar returns up to limit records whose cosine similarity to vector
// is at least minScore, most similar first.
func (b *Backend) QuerySimilar(ctx context.Context, vector []float32, limit int, minScore float64) ([]memory.Record, error) {
	// chromem-go requires nResults <= collection size.
	n := limit
	if count := b.col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return []memory.Record{}, nil
	}

	results, err := b.col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]memory.Record, 0, len(results))
	for _, res := range results {
		if float64(res.Similarity) < minScore {
			continue
		}
		var rec memory.Record
		if err := json.Unmarshal([]byte(res.Content), &rec); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", res.ID, err)
		}
		rec.Score = float64(res.Similarity)
		out = append(out, rec)
	}
	return out, nil
}
