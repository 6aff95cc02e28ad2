// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai provides a memory.Embedder backed by the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = openai.EmbeddingModelTextEmbedding3Small

// Embedder implements memory.Embedder using OpenAI.
type Embedder struct {
	client     openai.Client
	model      openai.EmbeddingModel
	dimensions int
	clientOpts []option.RequestOption
}

// Option configures the Embedder.
type Option func(*Embedder)

// WithModel sets the embedding model.
func WithModel(model string) Option {
	return func(e *Embedder) {
		if model != "" {
			e.model = openai.EmbeddingModel(model)
		}
	}
}

// WithAPIKey sets the API key. By default OPENAI_API_KEY is used.
func WithAPIKey(apiKey string) Option {
	return func(e *Embedder) {
		if apiKey != "" {
			e.clientOpts = append(e.clientOpts, option.WithAPIKey(apiKey))
		}
	}
}

// WithBaseURL sets a custom base URL (for Azure OpenAI or proxies).
func WithBaseURL(url string) Option {
	return func(e *Embedder) {
		if url != "" {
			e.clientOpts = append(e.clientOpts, option.WithBaseURL(url))
		}
	}
}

// WithDimensions asks the service to shorten vectors to n dimensions.
// Only text-embedding-3 models honour it.
func WithDimensions(n int) Option {
	return func(e *Embedder) { e.dimensions = n }
}

// NewEmbedder creates a new OpenAI embedder.
func NewEmbedder(opts ...Option) *Embedder {
	e := &Embedder{model: DefaultModel}
	for _, opt := range opts {
		opt(e)
	}
	e.client = openai.NewClient(e.clientOpts...)
	return e
}

// Embed converts a text string into a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.model,
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embedding returned no data")
	}

	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	return vec, nil
}
