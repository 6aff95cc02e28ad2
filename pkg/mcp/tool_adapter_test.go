package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/llm"
)

type stubCaller struct {
	lastName string
	lastArgs map[string]any
	result   *mcp.CallToolResult
	err      error
}

func (s *stubCaller) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.lastName = name
	s.lastArgs = args
	return s.result, s.err
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}}}
}

func TestToolAdapter_Call_MapsStringInput(t *testing.T) {
	tool := mcp.Tool{
		Name:        "echo",
		InputSchema: mcp.ToolInputSchema{Type: "object", Required: []string{"input"}},
	}
	caller := &stubCaller{result: textResult("ok")}

	adapter, err := NewToolAdapter(tool, caller)
	if err != nil {
		t.Fatalf("NewToolAdapter error: %v", err)
	}
	output, err := adapter.Call(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if output != "ok" {
		t.Fatalf("Expected output 'ok', got %v", output)
	}
	if caller.lastName != "echo" || caller.lastArgs["input"] != "hello" {
		t.Fatalf("unexpected call %q %v", caller.lastName, caller.lastArgs)
	}
}

func TestToolAdapter_Call_ParsesJSONInput(t *testing.T) {
	tool := mcp.Tool{
		Name:        "calculate",
		InputSchema: mcp.ToolInputSchema{Type: "object", Required: []string{"expression"}},
	}
	caller := &stubCaller{result: textResult("The result of 2 + 2 is 4")}

	adapter, _ := NewToolAdapter(tool, caller)
	output, err := adapter.Call(context.Background(), json.RawMessage(`{"expression":"2 + 2"}`))
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if output != "The result of 2 + 2 is 4" || caller.lastArgs["expression"] != "2 + 2" {
		t.Fatalf("unexpected output %v args %v", output, caller.lastArgs)
	}
}

func TestToolAdapter_Call_ValidatesRequiredArgs(t *testing.T) {
	tool := mcp.Tool{
		Name:        "needs-foo",
		InputSchema: mcp.ToolInputSchema{Type: "object", Required: []string{"foo"}},
	}
	adapter, _ := NewToolAdapter(tool, &stubCaller{result: textResult("ok")})

	_, err := adapter.Call(context.Background(), map[string]any{"bar": "baz"})
	if !errors.HasCode(err, errors.CodeToolFailure) || !strings.Contains(err.Error(), "missing required field") {
		t.Fatalf("Expected TOOL_FAILURE for missing field, got %v", err)
	}
}

func TestToolAdapter_Call_Failures(t *testing.T) {
	adapter, _ := NewToolAdapter(mcp.Tool{Name: "weather"}, &stubCaller{err: stderrors.New("connection reset")})
	_, err := adapter.Call(context.Background(), nil)
	if te := errors.As(err); te.Code != errors.CodeToolFailure || !te.Recoverable {
		t.Fatalf("expected recoverable TOOL_FAILURE, got %v", err)
	}

	reported := &mcp.CallToolResult{IsError: true, Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "city not found"}}}
	adapter, _ = NewToolAdapter(mcp.Tool{Name: "weather"}, &stubCaller{result: reported})
	_, err = adapter.Call(context.Background(), nil)
	if !errors.HasCode(err, errors.CodeToolFailure) || !strings.Contains(err.Error(), "city not found") {
		t.Fatalf("expected tool-reported error, got %v", err)
	}
}

func TestToolAdapter_Call_ReturnsStructuredContent(t *testing.T) {
	caller := &stubCaller{result: &mcp.CallToolResult{StructuredContent: map[string]any{"ok": true}}}
	adapter, _ := NewToolAdapter(mcp.Tool{Name: "structured"}, caller)

	output, err := adapter.Call(context.Background(), nil)
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if OutputText(output) != `{"ok":true}` {
		t.Fatalf("unexpected rendered output %q", OutputText(output))
	}
}

func TestToolDefinition_UsesRawSchema(t *testing.T) {
	raw := json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)
	def := ToolDefinition(mcp.Tool{Name: "search", Description: "Search tool", RawInputSchema: raw})
	if def.Type != llm.ToolTypeFunction {
		t.Fatalf("Expected function tool, got %v", def.Type)
	}
	rawParams, ok := def.Function.Parameters.(json.RawMessage)
	if !ok || string(rawParams) != string(raw) {
		t.Fatalf("Expected raw schema parameters, got %v", def.Function.Parameters)
	}
}

func TestNewToolAdapterValidation(t *testing.T) {
	if _, err := NewToolAdapter(mcp.Tool{}, &stubCaller{}); err == nil {
		t.Fatal("expected error for unnamed tool")
	}
	if _, err := NewToolAdapter(mcp.Tool{Name: "x"}, nil); err == nil {
		t.Fatal("expected error for nil caller")
	}
}
