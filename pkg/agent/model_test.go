// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/mcp"
)

type weatherServer struct {
	calls []map[string]any
}

func (s *weatherServer) ListTools(context.Context) ([]mcpgo.Tool, error) {
	return []mcpgo.Tool{
		mcpgo.NewTool("get_weather",
			mcpgo.WithDescription("Gets current weather temperature for a city."),
			mcpgo.WithString("city", mcpgo.Required()),
		),
	}, nil
}

func (s *weatherServer) CallTool(_ context.Context, _ string, args map[string]any) (*mcpgo.CallToolResult, error) {
	s.calls = append(s.calls, args)
	if args["city"] == "Atlantis" {
		return mcpgo.NewToolResultError("City 'Atlantis' not found."), nil
	}
	return mcpgo.NewToolResultText("The current temperature in " + args["city"].(string) + " is 21°C"), nil
}

func weatherTools(t *testing.T) (*mcp.Toolset, *weatherServer) {
	t.Helper()
	srv := &weatherServer{}
	ts, err := mcp.NewToolset(context.Background(), nil, srv)
	if err != nil {
		t.Fatalf("toolset: %v", err)
	}
	return ts, srv
}

func weatherCall(id, city string) llm.ToolCall {
	return llm.ToolCall{
		ID:   id,
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionCall{
			Name:      "get_weather",
			Arguments: `{"city": "` + city + `"}`,
		},
	}
}

func TestModelPlainAnswer(t *testing.T) {
	provider := llm.NewScriptedMockProvider("hello")
	out, err := NewModel(provider, "gpt-4o-mini").Invoke(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.Output != "hello" {
		t.Fatalf("unexpected output %q", out.Output)
	}
	req := provider.Requests[0]
	if req.Model != "gpt-4o-mini" || len(req.Messages) != 1 || req.Messages[0].Content != "say hello" {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(req.Tools) != 0 {
		t.Fatal("no tools were configured")
	}
}

func TestModelResolvesToolCalls(t *testing.T) {
	tools, srv := weatherTools(t)
	provider := llm.NewScriptedMockProvider()
	provider.AddToolCalls(weatherCall("call_1", "Madrid"))
	provider.AddResponse("It is 21°C in Madrid.")

	out, err := NewModel(provider, "m", WithTools(tools)).Invoke(context.Background(), "weather in Madrid")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.Output != "It is 21°C in Madrid." {
		t.Fatalf("unexpected output %q", out.Output)
	}
	if len(srv.calls) != 1 || srv.calls[0]["city"] != "Madrid" {
		t.Fatalf("unexpected tool calls %v", srv.calls)
	}

	first := provider.Requests[0]
	if len(first.Tools) != 1 || first.Tools[0].Function.Name != "get_weather" {
		t.Fatalf("tool definitions not sent: %+v", first.Tools)
	}
	second := provider.Requests[1].Messages
	if len(second) != 3 {
		t.Fatalf("expected user, assistant and tool messages, got %d", len(second))
	}
	toolMsg := second[2]
	if toolMsg.Role != llm.RoleTool || toolMsg.ToolCallID != "call_1" || !strings.Contains(toolMsg.Content, "21°C") {
		t.Fatalf("unexpected tool message %+v", toolMsg)
	}
}

func TestModelReportsToolFailuresToTheModel(t *testing.T) {
	tools, _ := weatherTools(t)
	provider := llm.NewScriptedMockProvider()
	provider.AddToolCalls(
		weatherCall("call_1", "Atlantis"),
		llm.ToolCall{ID: "call_2", Type: llm.ToolTypeFunction, Function: llm.FunctionCall{Name: "launch_rocket"}},
	)
	provider.AddResponse("I could not find that city.")

	out, err := NewModel(provider, "m", WithTools(tools)).Invoke(context.Background(), "weather in Atlantis")
	if err != nil {
		t.Fatalf("tool failures must not fail the invocation: %v", err)
	}
	if out.Output != "I could not find that city." {
		t.Fatalf("unexpected output %q", out.Output)
	}
	msgs := provider.Requests[1].Messages
	if !strings.HasPrefix(msgs[2].Content, "error: ") || !strings.Contains(msgs[2].Content, "TOOL_FAILURE") {
		t.Fatalf("expected tool failure text, got %q", msgs[2].Content)
	}
	if !strings.Contains(msgs[3].Content, "NOT_FOUND") {
		t.Fatalf("expected unknown tool text, got %q", msgs[3].Content)
	}
}

func TestModelToolRoundLimit(t *testing.T) {
	tools, srv := weatherTools(t)
	provider := llm.NewScriptedMockProvider()
	for i := 0; i < 3; i++ {
		provider.AddToolCalls(weatherCall("call", "Madrid"))
	}

	_, err := NewModel(provider, "m", WithTools(tools), WithMaxToolRounds(2)).Invoke(context.Background(), "loop")
	if !errors.HasCode(err, errors.CodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if len(srv.calls) != 2 {
		t.Fatalf("expected two resolved rounds, got %d", len(srv.calls))
	}
}

func TestModelProviderFailure(t *testing.T) {
	provider := llm.NewScriptedMockProvider()
	provider.Err = stderrors.New("rate limited")

	_, err := NewModel(provider, "m").Invoke(context.Background(), "hi")
	if !errors.HasCode(err, errors.CodeLLMError) || !stderrors.Is(err, provider.Err) {
		t.Fatalf("expected LLM_ERROR wrapping the cause, got %v", err)
	}
	if te := errors.As(err); te.Context["model"] != "m" || !te.Recoverable {
		t.Fatalf("unexpected error context %+v", te)
	}
}

func TestModelDrivesOrchestrator(t *testing.T) {
	tools, srv := weatherTools(t)
	provider := llm.NewScriptedMockProvider(`{"steps": ["get the weather in Madrid"]}`)
	provider.AddToolCalls(weatherCall("call_1", "Madrid"))
	provider.AddResponse("The current temperature in Madrid is 21°C")
	provider.AddResponse("CONTINUE")

	out, err := New(NewModel(provider, "m", WithTools(tools))).Run(context.Background(), Request{Goal: "weather in Madrid"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Result != "The current temperature in Madrid is 21°C" {
		t.Fatalf("unexpected result %q", out.Result)
	}
	if len(srv.calls) != 1 || provider.Remaining() != 0 {
		t.Fatalf("expected one tool call and every response consumed, got %d/%d", len(srv.calls), provider.Remaining())
	}
}
