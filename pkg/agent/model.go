// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/mcp"
	"github.com/jllopis/telos/pkg/telemetry"
)

// DefaultMaxToolRounds bounds the tool calls resolved for a single prompt.
const DefaultMaxToolRounds = 5

// Model is a core.Invoker backed by a chat provider and, optionally, the
// tools of connected MCP servers. Each Invoke sends the prompt as a single
// user message and resolves tool calls until the model answers with text.
type Model struct {
	provider  llm.Provider
	model     string
	tools     *mcp.Toolset
	maxRounds int
	log       *slog.Logger
	tracer    trace.Tracer
	errors    *telemetry.ErrorMetrics
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithTools exposes the toolset to the model.
func WithTools(tools *mcp.Toolset) ModelOption {
	return func(m *Model) { m.tools = tools }
}

// WithMaxToolRounds sets how many tool rounds one prompt may take.
func WithMaxToolRounds(n int) ModelOption {
	return func(m *Model) {
		if n > 0 {
			m.maxRounds = n
		}
	}
}

// WithModelLogger sets the logger.
func WithModelLogger(logger *slog.Logger) ModelOption {
	return func(m *Model) {
		if logger != nil {
			m.log = logger
		}
	}
}

// WithModelErrorMetrics records LLM and tool failures.
func WithModelErrorMetrics(em *telemetry.ErrorMetrics) ModelOption {
	return func(m *Model) { m.errors = em }
}

// NewModel wraps provider. model is passed through on every request.
func NewModel(provider llm.Provider, model string, opts ...ModelOption) *Model {
	m := &Model{
		provider:  provider,
		model:     model,
		maxRounds: DefaultMaxToolRounds,
		log:       slog.Default(),
		tracer:    otel.Tracer("telos/agent"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Invoke implements core.Invoker.
func (m *Model) Invoke(ctx context.Context, prompt string) (core.Result, error) {
	messages := []llm.Message{{Role: llm.RoleUser, Content: prompt}}
	defs := m.tools.Definitions()
	providerName := llm.ProviderName(m.provider)

	for round := 0; ; round++ {
		resp, err := m.chat(ctx, providerName, messages, defs)
		if err != nil {
			return core.Result{}, err
		}
		if len(resp.ToolCalls) == 0 {
			return core.Result{Output: resp.Content}, nil
		}
		if round >= m.maxRounds {
			m.log.WarnContext(ctx, "agent.tools.exhausted", slog.Int("max_rounds", m.maxRounds))
			return core.Result{}, WrapTimeoutError(nil, "tool resolution", m.maxRounds)
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    m.callTool(ctx, call, round),
				ToolCallID: call.ID,
			})
		}
	}
}

func (m *Model) chat(ctx context.Context, providerName string, messages []llm.Message, defs []llm.Tool) (*llm.ChatResponse, error) {
	ctx, span := m.tracer.Start(ctx, "Agent.LLM.Chat")
	defer span.End()
	span.SetAttributes(telemetry.LLMAttributes(m.model, providerName, len(messages), 0)...)

	resp, err := m.provider.Chat(ctx, llm.ChatRequest{
		Model:    m.model,
		Messages: messages,
		Tools:    defs,
	})
	if err != nil {
		wrapped := WrapLLMError(err, m.model)
		span.RecordError(wrapped)
		m.errors.RecordErrorMetric(ctx, wrapped, "agent-llm")
		m.log.ErrorContext(ctx, "agent.llm.error",
			slog.String("model", m.model),
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		return nil, wrapped
	}
	span.SetAttributes(telemetry.LLMAttributes(m.model, providerName, len(messages), len(resp.ToolCalls))...)
	span.SetAttributes(telemetry.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	return resp, nil
}

// callTool runs one requested tool and returns the text fed back to the
// model. Failures are reported to the model rather than aborting the step.
func (m *Model) callTool(ctx context.Context, call llm.ToolCall, round int) string {
	name := call.Function.Name
	tool, ok := m.tools.Lookup(name)
	if !ok {
		err := NewNotFoundError("tool", name)
		m.log.WarnContext(ctx, "agent.tool.unknown", slog.String("tool", name))
		return "error: " + err.Error()
	}

	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "Agent.Tool.Call", trace.WithAttributes(
		attribute.String("tool.call_id", call.ID),
	))
	out, err := tool.Call(ctx, call.Function.Arguments)
	durationMs := time.Since(start).Seconds() * 1000
	span.SetAttributes(telemetry.ToolCallAttributes(name, round, durationMs, err == nil)...)
	span.End()

	if err != nil {
		wrapped := WrapToolError(err, name, call.ID)
		m.errors.RecordErrorMetric(ctx, wrapped, "agent-tool")
		m.log.WarnContext(ctx, "agent.tool.error",
			slog.String("tool", name),
			slog.String("tool_call_id", call.ID),
			slog.String("error", err.Error()),
		)
		return "error: " + err.Error()
	}

	m.log.DebugContext(ctx, "agent.tool.complete",
		slog.String("tool", name),
		slog.Int("round", round),
		slog.Float64("duration_ms", durationMs),
	)
	return strings.TrimSpace(mcp.OutputText(out))
}
