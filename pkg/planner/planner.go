// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package planner turns a goal into an ordered list of steps with a single
// model invocation.
package planner

import (
	"context"
	"log/slog"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/prompts"
)

// Planner generates plans.
type Planner struct {
	prompts *prompts.Set
	log     *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithPrompts overrides the prompt templates.
func WithPrompts(set *prompts.Set) Option {
	return func(p *Planner) {
		if set != nil {
			p.prompts = set
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.log = logger
		}
	}
}

// New returns a Planner with the default prompts.
func New(opts ...Option) *Planner {
	p := &Planner{prompts: prompts.Default(), log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GeneratePlan asks the model for a plan toward state.Goal, using the memory
// context when present. It does not modify state.
//
// A failed invocation yields an EXECUTION_ERROR; unusable output yields a
// PLAN_PARSE_ERROR carrying the raw output.
func (p *Planner) GeneratePlan(ctx context.Context, invoker core.Invoker, state *core.State) ([]string, error) {
	prompt, err := p.prompts.Planner(prompts.PlannerData{
		Goal:           state.Goal,
		ContextSummary: state.ContextSummary(),
	})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "render planner prompt", err)
	}

	result, err := invoker.Invoke(ctx, prompt)
	if err != nil {
		return nil, errors.New(errors.CodeExecution, "planner invocation failed", err).
			WithRecoverable(true)
	}

	steps, err := ParsePlan(result.Output)
	if err != nil {
		p.log.Warn("planner.parse.failed", "error", err)
		return nil, err
	}
	p.log.Debug("planner.plan.generated", "steps", len(steps))
	return steps, nil
}
