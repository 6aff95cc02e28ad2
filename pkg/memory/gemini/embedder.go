// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini provides a memory.Embedder backed by the Gemini API.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	llmgemini "github.com/jllopis/telos/pkg/llm/gemini"
)

// DefaultModel supports output dimensionality, so it can match the
// 1536-dimension vector indexes the backends create.
const DefaultModel = "gemini-embedding-001"

// Embedder calls Models.EmbedContent.
type Embedder struct {
	client     *genai.Client
	model      string
	apiKey     string
	baseURL    string
	dimensions int32
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithModel sets the embedding model.
func WithModel(model string) Option {
	return func(e *Embedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithAPIKey sets the API key. By default GOOGLE_API_KEY or GEMINI_API_KEY
// is used.
func WithAPIKey(key string) Option {
	return func(e *Embedder) { e.apiKey = key }
}

// WithBaseURL points the client at a proxy or test server.
func WithBaseURL(url string) Option {
	return func(e *Embedder) { e.baseURL = url }
}

// WithDimensions requests vectors of n dimensions. Zero keeps the model
// default.
func WithDimensions(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.dimensions = int32(n)
		}
	}
}

// NewEmbedder creates an Embedder.
func NewEmbedder(ctx context.Context, opts ...Option) (*Embedder, error) {
	e := &Embedder{model: DefaultModel}
	for _, opt := range opts {
		opt(e)
	}
	client, err := llmgemini.NewClient(ctx, e.apiKey, e.baseURL)
	if err != nil {
		return nil, err
	}
	e.client = client
	return e, nil
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, e.config())
	if err != nil {
		return nil, fmt.Errorf("gemini embed content failed: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini returned an empty embedding for model %s", e.model)
	}
	return resp.Embeddings[0].Values, nil
}

func (e *Embedder) config() *genai.EmbedContentConfig {
	if e.dimensions == 0 {
		return nil
	}
	dims := e.dimensions
	return &genai.EmbedContentConfig{OutputDimensionality: &dims}
}
