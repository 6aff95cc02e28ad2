// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package cosmos provides the Azure Cosmos DB for NoSQL memory backend.
//
// Items are partitioned by /session_id. Session history is a single-partition
// query; similarity and full scans are cross-partition. The SDK sends
// cross-partition queries through the gateway, which serves only plain
// projections and filters, so the TOP/ORDER BY VectorDistance query is
// rejected with 400 and callers fall back to in-process ranking.
package cosmos

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/jllopis/telos/pkg/memory"
)

// Backend is a memory.Backend on a Cosmos DB container.
type Backend struct {
	container *azcosmos.ContainerClient
	log       *slog.Logger
	now       func() time.Time
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

// Open connects with endpoint and key, creating the database and the
// container when they do not exist.
func Open(ctx context.Context, cfg memory.Config, opts ...Option) (*Backend, error) {
	cfg = cfg.WithDefaults()
	b := &Backend{log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}

	cred, err := azcosmos.NewKeyCredential(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("cosmos credential: %w", err)
	}
	client, err := azcosmos.NewClientWithKey(cfg.Endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("cosmos client: %w", err)
	}

	if _, err := client.CreateDatabase(ctx, azcosmos.DatabaseProperties{ID: cfg.Database}, nil); err != nil && !isConflict(err) {
		return nil, fmt.Errorf("create database %s: %w", cfg.Database, err)
	}
	db, err := client.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database %s: %w", cfg.Database, err)
	}

	props := azcosmos.ContainerProperties{
		ID: cfg.Collection,
		PartitionKeyDefinition: azcosmos.PartitionKeyDefinition{
			Paths: []string{"/session_id"},
		},
	}
	if _, err := db.CreateContainer(ctx, props, nil); err != nil && !isConflict(err) {
		return nil, fmt.Errorf("create container %s: %w", cfg.Collection, err)
	}
	container, err := db.NewContainer(cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("container %s: %w", cfg.Collection, err)
	}
	b.container = container

	b.log.Info("memory.backend.connected",
		slog.String("backend", string(memory.ClientTypeSQL)),
		slog.String("database", cfg.Database),
		slog.String("container", cfg.Collection),
	)
	return b, nil
}

// ClientType implements memory.Backend.
func (b *Backend) ClientType() memory.ClientType { return memory.ClientTypeSQL }

// Insert creates a new item. The item id is synthesized from the session id
// and the insertion time.
func (b *Backend) Insert(ctx context.Context, rec memory.Record) error {
	data, err := json.Marshal(newItem(rec, b.now()))
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	_, err = b.container.CreateItem(ctx, azcosmos.NewPartitionKeyString(rec.SessionID), data, nil)
	return err
}

// QueryBySession returns the newest records of one session partition.
func (b *Backend) QueryBySession(ctx context.Context, sessionID string, limit int) ([]memory.Record, error) {
	return b.query(ctx, sessionQuery, azcosmos.NewPartitionKeyString(sessionID), []azcosmos.QueryParameter{
		{Name: "@limit", Value: limit},
		{Name: "@session_id", Value: sessionID},
	})
}

// QuerySimilar runs a VectorDistance query. A rejected query is reported as
// memory.ErrNativeSearchUnavailable.
func (b *Backend) QuerySimilar(ctx context.Context, vector []float32, limit int, minScore float64) ([]memory.Record, error) {
	recs, err := b.query(ctx, similarQuery, azcosmos.NewPartitionKey(), []azcosmos.QueryParameter{
		{Name: "@limit", Value: limit},
		{Name: "@embedding", Value: vector},
		{Name: "@min_score", Value: minScore},
	})
	if err != nil {
		if isBadRequest(err) {
			return nil, fmt.Errorf("%w: %v", memory.ErrNativeSearchUnavailable, err)
		}
		return nil, err
	}
	return recs, nil
}

// QueryAll scans every partition.
func (b *Backend) QueryAll(ctx context.Context) ([]memory.Record, error) {
	return b.query(ctx, allQuery, azcosmos.NewPartitionKey(), nil)
}

// QueryRecent returns the newest records across sessions. Cross-partition
// ORDER BY is not served by the gateway, so ordering happens in process.
func (b *Backend) QueryRecent(ctx context.Context, limit int) ([]memory.Record, error) {
	recs, err := b.query(ctx, recentQuery, azcosmos.NewPartitionKey(), nil)
	if err != nil {
		return nil, err
	}
	memory.SortNewestFirst(recs)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Close is a no-op: the client holds no connection handle.
func (b *Backend) Close(context.Context) error { return nil }

func (b *Backend) query(ctx context.Context, query string, pk azcosmos.PartitionKey, params []azcosmos.QueryParameter) ([]memory.Record, error) {
	pager := b.container.NewQueryItemsPager(query, pk, &azcosmos.QueryOptions{QueryParameters: params})

	var out []memory.Record
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		recs, err := decodeItems(resp.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	if out == nil {
		out = []memory.Record{}
	}
	return out, nil
}

func isConflict(err error) bool {
	var re *azcore.ResponseError
	return stderrors.As(err, &re) && re.StatusCode == http.StatusConflict
}

func isBadRequest(err error) bool {
	var re *azcore.ResponseError
	return stderrors.As(err, &re) && re.StatusCode == http.StatusBadRequest
}
