// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/jllopis/telos/pkg/errors"
)

// ClientType identifies the kind of backend behind a Store.
type ClientType string

const (
	// ClientTypeSQL is Azure Cosmos DB for NoSQL, addressed by endpoint and key.
	ClientTypeSQL ClientType = "sql"
	// ClientTypeMongo is Azure Cosmos DB for MongoDB vCore, addressed by a connection string.
	ClientTypeMongo ClientType = "mongodb"
	// ClientTypeEmbedded is the in-process vector store.
	ClientTypeEmbedded ClientType = "embedded"
	// ClientTypeInMemory is the plain in-process store with no vector index.
	ClientTypeInMemory ClientType = "inmemory"
)

// Default retrieval parameters.
const (
	DefaultHistoryLimit = 5
	DefaultSimilarLimit = 3
	DefaultMinScore     = 0.7
	DefaultDatabase     = "agent_memory"
	DefaultCollection   = "conversations"
	DefaultDimensions   = 1536
)

// ErrNativeSearchUnavailable is returned by Backend.QuerySimilar when the
// backend has no usable vector index.
var ErrNativeSearchUnavailable = stderrors.New("memory: native vector search unavailable")

// Backend is a persistence engine for interaction records.
//
// QueryBySession and QueryRecent return records newest first. QueryAll
// returns every record with its embedding. Close must be safe to call more
// than once.
type Backend interface {
	ClientType() ClientType
	Insert(ctx context.Context, rec Record) error
	QueryBySession(ctx context.Context, sessionID string, limit int) ([]Record, error)
	QuerySimilar(ctx context.Context, vector []float32, limit int, minScore float64) ([]Record, error)
	QueryAll(ctx context.Context) ([]Record, error)
	QueryRecent(ctx context.Context, limit int) ([]Record, error)
	Close(ctx context.Context) error
}

// Credentials are the connection parameters a backend is chosen from.
type Credentials struct {
	Endpoint         string
	Key              string
	ConnectionString string
}

// Config describes how to open a memory backend.
type Config struct {
	Credentials
	Database   string
	Collection string
	Dimensions int
}

// WithDefaults fills unset fields with package defaults.
func (c Config) WithDefaults() Config {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	return c
}

// SelectClientType picks the backend for creds. Endpoint plus key wins over
// a connection string; a connection string is only accepted when it is a
// MongoDB URI.
func SelectClientType(creds Credentials) (ClientType, error) {
	if creds.Endpoint != "" && creds.Key != "" {
		return ClientTypeSQL, nil
	}
	if strings.HasPrefix(creds.ConnectionString, "mongodb") {
		return ClientTypeMongo, nil
	}
	return "", errors.New(errors.CodeConfiguration,
		"missing memory credentials: provide an endpoint and key, or a connection string starting with mongodb:// or mongodb+srv://",
		nil)
}
