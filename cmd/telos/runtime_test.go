// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jllopis/telos/pkg/audit"
	"github.com/jllopis/telos/pkg/config"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/memory"
)

func testConfig(t *testing.T, overrides ...string) *config.Config {
	t.Helper()
	base := []string{"memory.backend=inmemory", "mcp.servers=[]", "log.level=error"}
	cfg, err := config.Load("", append(base, overrides...)...)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	return cfg
}

func constantEmbedder() memory.Embedder {
	return memory.EmbedderFunc(func(context.Context, string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	})
}

func TestNewProviderSelection(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"openai", "anthropic", "gemini", "ollama"} {
		p, err := newProvider(ctx, testConfig(t, "llm.provider="+name, "llm.api_key=test"))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got := llm.ProviderName(p); got != name {
			t.Errorf("provider name = %q, want %q", got, name)
		}
	}

	cfg := testConfig(t)
	cfg.LLM.Provider = "bard"
	if _, err := newProvider(ctx, cfg); !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
}

func TestNewEmbedderCache(t *testing.T) {
	ctx := context.Background()
	emb, release, err := newEmbedder(ctx, testConfig(t, "embedder.provider=ollama"))
	if err != nil {
		t.Fatalf("embedder: %v", err)
	}
	if _, cached := emb.(*memory.CachedEmbedder); cached {
		t.Fatal("cache_size 0 must not cache")
	}
	_ = release(ctx)

	emb, release, err = newEmbedder(ctx, testConfig(t, "embedder.provider=gemini", "embedder.api_key=test", "embedder.cache_size=128"))
	if err != nil {
		t.Fatalf("embedder: %v", err)
	}
	defer release(ctx)
	if _, cached := emb.(*memory.CachedEmbedder); !cached {
		t.Fatalf("expected a cached embedder, got %T", emb)
	}
}

func TestMemoryOpenerSharesLocalBackend(t *testing.T) {
	ctx := context.Background()
	open, err := newMemoryOpener(testConfig(t), constantEmbedder(), nil, nil)
	if err != nil || open == nil {
		t.Fatalf("opener: %v", err)
	}

	first, err := open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.StoreInteraction(ctx, memory.Interaction{SessionID: "s", Goal: "g", Result: "r"}); err != nil {
		t.Fatalf("store: %v", err)
	}
	_ = first.Close(ctx)

	second, err := open(ctx)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close(ctx)
	if got := second.GetRecentHistory(ctx, "s", 5).Records; len(got) != 1 {
		t.Fatalf("expected the record to survive across stores, got %d", len(got))
	}
}

func TestMemoryOpenerDisabled(t *testing.T) {
	open, err := newMemoryOpener(testConfig(t, "memory.enabled=false"), constantEmbedder(), nil, nil)
	if err != nil {
		t.Fatalf("opener: %v", err)
	}
	if open != nil {
		t.Fatal("disabled memory must yield no opener")
	}
}

func TestOpenAuditSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	store, release, err := openAudit(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Record(ctx, audit.Event{RunID: "r1", Phase: "PLANNING", Status: audit.StatusStarted}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, release, err = openAudit(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer release(ctx)
	events, err := store.List(ctx, audit.Filter{RunID: "r1"})
	if err != nil || len(events) != 1 {
		t.Fatalf("expected the event to persist, got %v (%v)", events, err)
	}
}

func TestRuntimeSolvesWithinSession(t *testing.T) {
	ctx := context.Background()
	provider := llm.NewScriptedMockProvider(
		`{"steps": ["look it up"]}`, "It is sunny.", "CONTINUE",
		`{"steps": ["compare"]}`, "Warmer than yesterday.", "CONTINUE",
	)
	rt, err := newRuntime(ctx, testConfig(t), &bytes.Buffer{}, runtimeOptions{
		agent:    true,
		provider: provider,
		embedder: constantEmbedder(),
	})
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	defer rt.Close(ctx)

	out, err := rt.Solve(ctx, "weather in Madrid", "chat-1")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if out.Result != "It is sunny." || out.Decision != "CONTINUE" || !out.Persisted {
		t.Fatalf("unexpected outcome %+v", out)
	}

	if _, err := rt.Solve(ctx, "is it warmer?", "chat-1"); err != nil {
		t.Fatalf("second solve: %v", err)
	}
	planPrompt := provider.Requests[3].Messages[0].Content
	if !strings.Contains(planPrompt, "weather in Madrid") {
		t.Fatalf("second plan prompt lacks the session history:\n%s", planPrompt)
	}

	events, err := rt.audit.List(ctx, audit.Filter{RunID: out.RunID, Status: audit.StatusCompleted})
	if err != nil || len(events) == 0 {
		t.Fatalf("expected completed audit events, got %v (%v)", events, err)
	}
}

func TestRuntimeReconfigure(t *testing.T) {
	ctx := context.Background()
	provider := llm.NewScriptedMockProvider(`{"steps": ["a", "b", "c"]}`, "1", "2", "CONTINUE")
	rt, err := newRuntime(ctx, testConfig(t), &bytes.Buffer{}, runtimeOptions{
		agent:    true,
		provider: provider,
		embedder: constantEmbedder(),
	})
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	defer rt.Close(ctx)

	if err := rt.Reconfigure(ctx, testConfig(t, "agent.max_steps=2")); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	out, err := rt.Solve(ctx, "count", "")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if len(out.Observations) != 2 || out.Result != "2" {
		t.Fatalf("expected the new step bound to apply, got %+v", out)
	}

	bad := testConfig(t)
	bad.Prompts.File = filepath.Join(t.TempDir(), "missing.yaml")
	if err := rt.Reconfigure(ctx, bad); !errors.HasCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
}
