// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jllopis/telos/pkg/agent"
	"github.com/jllopis/telos/pkg/audit"
	"github.com/jllopis/telos/pkg/config"
	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/llm/anthropic"
	"github.com/jllopis/telos/pkg/llm/gemini"
	"github.com/jllopis/telos/pkg/llm/openai"
	"github.com/jllopis/telos/pkg/mcp"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/memory/backends"
	memgemini "github.com/jllopis/telos/pkg/memory/gemini"
	"github.com/jllopis/telos/pkg/memory/ollama"
	memopenai "github.com/jllopis/telos/pkg/memory/openai"
	"github.com/jllopis/telos/pkg/prompts"
	"github.com/jllopis/telos/pkg/telemetry"
)

const persistRetryDelay = 500 * time.Millisecond

// runtime holds everything a command needs to run goals.
type runtime struct {
	cfg      *config.Config
	log      *slog.Logger
	runs     *telemetry.RunMetrics
	errs     *telemetry.ErrorMetrics
	embedder memory.Embedder
	openMem  agent.MemoryOpener
	audit    audit.Store
	tools    *mcp.Toolset
	provider llm.Provider

	mu   sync.RWMutex
	orch *agent.Orchestrator

	closers []func(context.Context) error
}

// runtimeOptions select what newRuntime builds. Memory commands skip the
// model and its tools.
type runtimeOptions struct {
	agent bool
	// provider replaces the configured LLM provider.
	provider llm.Provider
	// embedder replaces the configured embedder.
	embedder memory.Embedder
}

func newRuntime(ctx context.Context, cfg *config.Config, logOut io.Writer, opts runtimeOptions) (rt *runtime, err error) {
	logger := telemetry.ConfigureSlog(logOut, cfg.Log.Level, cfg.Log.Format,
		telemetry.ContextAttr{Key: "run_id", Value: core.RunID},
		telemetry.ContextAttr{Key: "session_id", Value: core.SessionID},
	)
	rt = &runtime{cfg: cfg, log: logger}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	settings := cfg.TelemetrySettings()
	settings.Writer = logOut
	shutdown, err := telemetry.InitWithConfig("telos", version, settings)
	if err != nil {
		return rt, errors.New(errors.CodeConfiguration, "init telemetry", err).
			WithContext("exporter", cfg.Telemetry.Exporter)
	}
	rt.closers = append(rt.closers, shutdown)

	if runs, merr := telemetry.NewRunMetrics(); merr == nil {
		rt.runs = runs
	} else {
		logger.Warn("telemetry.metrics.disabled", slog.String("error", merr.Error()))
	}
	if errs, merr := telemetry.NewErrorMetrics(ctx); merr == nil {
		rt.errs = errs
	} else {
		logger.Warn("telemetry.metrics.disabled", slog.String("error", merr.Error()))
	}

	rt.embedder = opts.embedder
	if rt.embedder == nil {
		embedder, release, err := newEmbedder(ctx, cfg)
		if err != nil {
			return rt, err
		}
		rt.embedder = embedder
		rt.closers = append(rt.closers, release)
	}

	if rt.openMem, err = newMemoryOpener(cfg, rt.embedder, logger, rt.runs); err != nil {
		return rt, err
	}

	store, release, err := openAudit(cfg.Audit.Path)
	if err != nil {
		return rt, err
	}
	rt.audit = store
	rt.closers = append(rt.closers, release)

	if !opts.agent {
		return rt, nil
	}

	rt.provider = opts.provider
	rt.tools = connectTools(ctx, cfg, logger)
	rt.closers = append(rt.closers, func(context.Context) error { return rt.tools.Close() })

	if rt.orch, err = rt.buildAgent(ctx, cfg); err != nil {
		return rt, err
	}
	return rt, nil
}

// buildAgent creates the model and orchestrator for cfg on top of the
// runtime's memory, audit trail and tools.
func (r *runtime) buildAgent(ctx context.Context, cfg *config.Config) (*agent.Orchestrator, error) {
	set, err := prompts.Load(cfg.Prompts.File)
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "load prompts", err).
			WithContext("path", cfg.Prompts.File)
	}

	provider := r.provider
	if provider == nil {
		if provider, err = newProvider(ctx, cfg); err != nil {
			return nil, err
		}
	}

	model := agent.NewModel(provider, cfg.LLM.Model,
		agent.WithTools(r.tools),
		agent.WithMaxToolRounds(cfg.LLM.MaxToolRounds),
		agent.WithModelLogger(telemetry.Component(r.log, "model")),
		agent.WithModelErrorMetrics(r.errs),
	)
	return agent.New(model,
		agent.WithMemory(r.openMem),
		agent.WithPrompts(set),
		agent.WithAudit(r.audit),
		agent.WithMaxSteps(cfg.Agent.MaxSteps),
		agent.WithRetrievalLimits(cfg.Memory.HistoryLimit, cfg.Memory.SimilarLimit),
		agent.WithPersistAttempts(cfg.Memory.PersistAttempts, persistRetryDelay),
		agent.WithLogger(telemetry.Component(r.log, "orchestrator")),
		agent.WithMetrics(r.runs, r.errs),
	), nil
}

// Reconfigure swaps in an orchestrator built from cfg. Only the llm, agent,
// prompts and memory limit settings take effect; backends, the embedder,
// tools and telemetry keep the values the runtime started with.
func (r *runtime) Reconfigure(ctx context.Context, cfg *config.Config) error {
	orch, err := r.buildAgent(ctx, cfg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg = cfg
	r.orch = orch
	r.mu.Unlock()
	return nil
}

// Solve runs goal in session with the current orchestrator.
func (r *runtime) Solve(ctx context.Context, goal, sessionID string) (*agent.Outcome, error) {
	r.mu.RLock()
	orch := r.orch
	r.mu.RUnlock()
	return orch.Run(ctx, agent.Request{Goal: goal, SessionID: sessionID})
}

// Close releases resources in reverse order of acquisition.
func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return stderrors.Join(errs...)
}

func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return openai.New(
			openai.WithModel(cfg.LLM.Model),
			openai.WithAPIKey(cfg.LLM.APIKey),
			openai.WithBaseURL(cfg.LLM.BaseURL),
		), nil
	case "anthropic":
		return anthropic.New(
			anthropic.WithModel(cfg.LLM.Model),
			anthropic.WithAPIKey(cfg.LLM.APIKey),
			anthropic.WithBaseURL(cfg.LLM.BaseURL),
		), nil
	case "gemini":
		p, err := gemini.New(ctx,
			gemini.WithModel(cfg.LLM.Model),
			gemini.WithAPIKey(cfg.LLM.APIKey),
			gemini.WithBaseURL(cfg.LLM.BaseURL),
		)
		if err != nil {
			return nil, errors.New(errors.CodeConfiguration, "create gemini client", err)
		}
		return p, nil
	case "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL, cfg.LLM.Model), nil
	}
	return nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("unknown LLM provider %q", cfg.LLM.Provider), nil)
}

// newEmbedder builds the configured embedder, cached when embedder.cache_size
// is positive. The returned func releases the cache.
func newEmbedder(ctx context.Context, cfg *config.Config) (memory.Embedder, func(context.Context) error, error) {
	var base memory.Embedder
	switch cfg.Embedder.Provider {
	case "openai":
		base = memopenai.NewEmbedder(
			memopenai.WithModel(cfg.Embedder.Model),
			memopenai.WithAPIKey(cfg.Embedder.APIKey),
			memopenai.WithBaseURL(cfg.Embedder.BaseURL),
			memopenai.WithDimensions(cfg.Memory.Dimensions),
		)
	case "gemini":
		emb, err := memgemini.NewEmbedder(ctx,
			memgemini.WithModel(cfg.Embedder.Model),
			memgemini.WithAPIKey(cfg.Embedder.APIKey),
			memgemini.WithBaseURL(cfg.Embedder.BaseURL),
			memgemini.WithDimensions(cfg.Memory.Dimensions),
		)
		if err != nil {
			return nil, nil, errors.New(errors.CodeConfiguration, "create gemini embedder", err)
		}
		base = emb
	case "ollama":
		base = ollama.NewEmbedder(cfg.Embedder.BaseURL, cfg.Embedder.Model)
	default:
		return nil, nil, errors.New(errors.CodeConfiguration, fmt.Sprintf("unknown embedder provider %q", cfg.Embedder.Provider), nil)
	}

	noop := func(context.Context) error { return nil }
	if cfg.Embedder.CacheSize <= 0 {
		return base, noop, nil
	}
	cached, err := memory.NewCachedEmbedder(base, cfg.Embedder.CacheSize)
	if err != nil {
		return nil, nil, errors.New(errors.CodeConfiguration, "embedding cache", err)
	}
	return cached, func(context.Context) error {
		cached.Close()
		return nil
	}, nil
}

// newMemoryOpener returns nil when memory is disabled. Local backends are
// created once and shared by every run of the process.
func newMemoryOpener(cfg *config.Config, embedder memory.Embedder, logger *slog.Logger, runs *telemetry.RunMetrics) (agent.MemoryOpener, error) {
	if !cfg.Memory.Enabled {
		return nil, nil
	}
	logger = telemetry.Component(logger, "memory")
	opts := []memory.Option{
		memory.WithMinScore(cfg.Memory.MinScore),
		memory.WithMetrics(runs),
	}

	switch cfg.Memory.Backend {
	case config.BackendEmbedded, config.BackendInMemory:
		backend, err := backends.OpenLocal(memory.ClientType(cfg.Memory.Backend), cfg.Memory.Collection)
		if err != nil {
			return nil, err
		}
		return backends.Shared(backend, embedder, logger, opts...), nil
	default:
		return backends.Opener(cfg.MemoryBackend(), embedder, logger, opts...), nil
	}
}

// openAudit opens the SQLite trail at path, or an in-memory one when path is
// empty.
func openAudit(path string) (audit.Store, func(context.Context) error, error) {
	if path == "" {
		return audit.NewMemoryStore(), func(context.Context) error { return nil }, nil
	}
	store, err := audit.OpenSQLite(path)
	if err != nil {
		return nil, nil, errors.New(errors.CodePersistence, "open audit trail", err).
			WithContext("path", path)
	}
	return store, func(context.Context) error { return store.Close() }, nil
}

// connectTools dials the configured MCP servers. Runs go on without tools
// when none is reachable.
func connectTools(ctx context.Context, cfg *config.Config, logger *slog.Logger) *mcp.Toolset {
	if len(cfg.MCP.Servers) == 0 {
		return nil
	}
	logger = telemetry.Component(logger, "mcp")
	tools, err := mcp.Connect(ctx, cfg.MCP.Servers, logger, mcp.WithTimeout(cfg.MCP.Timeout))
	if err != nil {
		logger.Warn("mcp.connect.failed",
			slog.Any("servers", cfg.MCP.Servers),
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Info("mcp.connect.done", slog.Int("tools", tools.Len()))
	return tools
}
