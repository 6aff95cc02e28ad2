// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedderSendsModelAndDecodesVector(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],
			"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	}))
	defer server.Close()

	e := NewEmbedder(WithAPIKey("test"), WithBaseURL(server.URL))
	vec, err := e.Embed(context.Background(), "weather in Madrid")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if gotModel != string(DefaultModel) {
		t.Errorf("expected model %s, got %s", DefaultModel, gotModel)
	}
	if len(vec) != 3 || vec[0] != 0.25 || vec[1] != -0.5 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestEmbedderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"m","usage":{"prompt_tokens":0,"total_tokens":0}}`))
	}))
	defer server.Close()

	e := NewEmbedder(WithAPIKey("test"), WithBaseURL(server.URL))
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Error("expected error for empty data")
	}
}
