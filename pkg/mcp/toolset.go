// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/telos/pkg/llm"
)

// Server is a connected MCP server.
type Server interface {
	ToolCaller
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

// Toolset merges the tools of several servers under one namespace. When two
// servers expose the same tool name the first server wins.
type Toolset struct {
	servers []Server
	tools   map[string]*ToolAdapter
	order   []string
	log     *slog.Logger
}

// Connect dials every SSE url and gathers their tools. A failure closes the
// servers already connected.
func Connect(ctx context.Context, urls []string, logger *slog.Logger, opts ...ClientOption) (*Toolset, error) {
	servers := make([]Server, 0, len(urls))
	for _, url := range urls {
		c, err := NewClientWithSSE(ctx, url, opts...)
		if err != nil {
			closeAll(servers)
			return nil, err
		}
		servers = append(servers, c)
	}
	ts, err := NewToolset(ctx, logger, servers...)
	if err != nil {
		closeAll(servers)
		return nil, err
	}
	return ts, nil
}

// NewToolset lists the tools of servers.
func NewToolset(ctx context.Context, logger *slog.Logger, servers ...Server) (*Toolset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ts := &Toolset{servers: servers, tools: map[string]*ToolAdapter{}, log: logger}
	for i, srv := range servers {
		tools, err := srv.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tools of server %d: %w", i, err)
		}
		for _, tool := range tools {
			if _, dup := ts.tools[tool.Name]; dup {
				logger.Warn("mcp.tool.duplicate", "tool", tool.Name, "server", i)
				continue
			}
			adapter, err := NewToolAdapter(tool, srv)
			if err != nil {
				return nil, err
			}
			ts.tools[tool.Name] = adapter
			ts.order = append(ts.order, tool.Name)
		}
	}
	logger.Debug("mcp.toolset.ready", "servers", len(servers), "tools", len(ts.order))
	return ts, nil
}

// Definitions returns the LLM definitions of every tool, in discovery order.
func (t *Toolset) Definitions() []llm.Tool {
	if t == nil {
		return nil
	}
	defs := make([]llm.Tool, 0, len(t.order))
	for _, name := range t.order {
		defs = append(defs, t.tools[name].ToolDefinition())
	}
	return defs
}

// Lookup returns the tool named name.
func (t *Toolset) Lookup(name string) (*ToolAdapter, bool) {
	if t == nil {
		return nil, false
	}
	tool, ok := t.tools[name]
	return tool, ok
}

// Len returns the number of tools.
func (t *Toolset) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Close closes every server that holds a connection.
func (t *Toolset) Close() error {
	if t == nil {
		return nil
	}
	return closeAll(t.servers)
}

func closeAll(servers []Server) error {
	var errs []error
	for _, srv := range servers {
		if c, ok := srv.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}
