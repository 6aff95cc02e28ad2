// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the types shared by every phase of an agent run: the
// model invocation contract, the run state and the phase graph.
package core

import "context"

// Result is the text produced by one model invocation.
type Result struct {
	Output string
}

// Invoker turns a prompt into text. Implementations may resolve tool calls
// before returning; callers only ever see the final output.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (Result, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, prompt string) (Result, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, prompt string) (Result, error) {
	return f(ctx, prompt)
}

// Tool is a concrete capability the model can call, typically backed by MCP.
type Tool interface {
	Name() string
	Call(ctx context.Context, input any) (any, error)
}
