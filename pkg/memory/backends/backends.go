// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package backends selects and dials a memory backend from credentials.
package backends

import (
	"context"
	"log/slog"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/memory/chromem"
	"github.com/jllopis/telos/pkg/memory/cosmos"
	"github.com/jllopis/telos/pkg/memory/mongo"
)

// Open selects the backend for cfg.Credentials and connects to it. Missing
// credentials yield a CONFIGURATION_ERROR; connection failures a
// PERSISTENCE_ERROR.
func Open(ctx context.Context, cfg memory.Config, logger *slog.Logger) (memory.Backend, error) {
	kind, err := memory.SelectClientType(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var backend memory.Backend
	switch kind {
	case memory.ClientTypeSQL:
		backend, err = cosmos.Open(ctx, cfg, cosmos.WithLogger(logger))
	case memory.ClientTypeMongo:
		backend, err = mongo.Open(ctx, cfg, mongo.WithLogger(logger))
	}
	if err != nil {
		return nil, errors.New(errors.CodePersistence, "connect memory backend", err).
			WithContext("backend", string(kind))
	}
	return backend, nil
}

// Opener returns a function that opens a fresh Store per call, as the
// orchestrator scopes memory to a single run.
func Opener(cfg memory.Config, embedder memory.Embedder, logger *slog.Logger, opts ...memory.Option) func(ctx context.Context) (*memory.Store, error) {
	return func(ctx context.Context) (*memory.Store, error) {
		backend, err := Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return memory.New(backend, embedder, append([]memory.Option{memory.WithLogger(logger)}, opts...)...), nil
	}
}

// OpenLocal creates an in-process backend of the given kind. Local backends
// ignore credentials and live as long as the process.
func OpenLocal(kind memory.ClientType, collection string) (memory.Backend, error) {
	switch kind {
	case memory.ClientTypeEmbedded:
		return chromem.New(collection)
	case memory.ClientTypeInMemory:
		return memory.NewInMemory(), nil
	}
	return nil, errors.New(errors.CodeConfiguration, "unknown local memory backend", nil).
		WithContext("backend", string(kind))
}

// Shared returns an opener that wraps one long-lived backend. Closing a Store
// built on a local backend leaves its records in place, so consecutive runs
// see each other's interactions.
func Shared(backend memory.Backend, embedder memory.Embedder, logger *slog.Logger, opts ...memory.Option) func(ctx context.Context) (*memory.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(context.Context) (*memory.Store, error) {
		return memory.New(backend, embedder, append([]memory.Option{memory.WithLogger(logger)}, opts...)...), nil
	}
}
