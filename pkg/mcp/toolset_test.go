package mcp

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

type stubServer struct {
	stubCaller
	tools   []mcpgo.Tool
	listErr error
	closed  int
}

func (s *stubServer) ListTools(context.Context) ([]mcpgo.Tool, error) {
	return s.tools, s.listErr
}

func (s *stubServer) Close() error {
	s.closed++
	return nil
}

func TestToolsetMergesServers(t *testing.T) {
	a := &stubServer{tools: []mcpgo.Tool{{Name: "calculate"}, {Name: "get_weather"}}}
	b := &stubServer{tools: []mcpgo.Tool{{Name: "get_weather"}, {Name: "query_db"}}}

	ts, err := NewToolset(context.Background(), nil, a, b)
	if err != nil {
		t.Fatalf("new toolset: %v", err)
	}
	if ts.Len() != 3 {
		t.Fatalf("expected 3 tools, got %d", ts.Len())
	}
	defs := ts.Definitions()
	if defs[0].Function.Name != "calculate" || defs[2].Function.Name != "query_db" {
		t.Fatalf("unexpected order %+v", defs)
	}

	weather, _ := ts.Lookup("get_weather")
	a.result = textResult("from a")
	if out, _ := weather.Call(context.Background(), nil); out != "from a" {
		t.Fatalf("first server should own duplicate tools, got %v", out)
	}

	if err := ts.Close(); err != nil || a.closed != 1 || b.closed != 1 {
		t.Fatalf("expected every server closed once, got %d %d (%v)", a.closed, b.closed, err)
	}
}

func TestToolsetListFailure(t *testing.T) {
	bad := &stubServer{listErr: stderrors.New("boom")}
	if _, err := NewToolset(context.Background(), nil, bad); err == nil {
		t.Fatal("expected list failure")
	}
}

func TestNilToolset(t *testing.T) {
	var ts *Toolset
	if ts.Len() != 0 || ts.Definitions() != nil || ts.Close() != nil {
		t.Fatal("nil toolset must behave as empty")
	}
	if _, ok := ts.Lookup("x"); ok {
		t.Fatal("nil toolset has no tools")
	}
}

func TestConnectOverSSE(t *testing.T) {
	srv := mcpserver.NewMCPServer("weather", "1.0.0", mcpserver.WithToolCapabilities(true))
	srv.AddTool(
		mcpgo.NewTool("get_weather",
			mcpgo.WithDescription("Gets current weather temperature for a city."),
			mcpgo.WithString("city", mcpgo.Required()),
		),
		func(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			return mcpgo.NewToolResultText("18C in " + req.GetString("city", "")), nil
		},
	)
	httpServer := mcpserver.NewTestServer(srv)
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ts, err := Connect(ctx, []string{httpServer.URL + "/sse"}, nil, WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ts.Close()

	tool, ok := ts.Lookup("get_weather")
	if !ok {
		t.Fatalf("expected get_weather, got %+v", ts.Definitions())
	}
	out, err := tool.Call(ctx, `{"city":"Madrid"}`)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out != "18C in Madrid" {
		t.Fatalf("unexpected output %v", out)
	}
}
