// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package reflector judges an executed plan and returns a core.Decision.
package reflector

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/prompts"
)

// Reflector reviews executed plans.
type Reflector struct {
	prompts *prompts.Set
	log     *slog.Logger
}

// Option configures a Reflector.
type Option func(*Reflector)

// WithPrompts overrides the prompt templates.
func WithPrompts(set *prompts.Set) Option {
	return func(r *Reflector) {
		if set != nil {
			r.prompts = set
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reflector) {
		if logger != nil {
			r.log = logger
		}
	}
}

// New returns a Reflector with the default prompts.
func New(opts ...Option) *Reflector {
	r := &Reflector{prompts: prompts.Default(), log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reflect asks the model for a verdict on the executed plan.
func (r *Reflector) Reflect(ctx context.Context, invoker core.Invoker, state *core.State) (core.Decision, error) {
	prompt, err := r.prompts.Reflector(prompts.ReflectorData{
		Goal:         state.Goal,
		Plan:         state.Plan,
		Observations: state.Observations,
		HasSimilar:   state.HasSimilarInteractions(),
	})
	if err != nil {
		return "", errors.New(errors.CodeInternal, "render reflector prompt", err)
	}

	result, err := invoker.Invoke(ctx, prompt)
	if err != nil {
		return "", errors.New(errors.CodeExecution, "reflector invocation failed", err).
			WithRecoverable(true)
	}

	decision := Normalize(result.Output)
	r.log.Debug("reflector.decision", "decision", string(decision))
	return decision, nil
}

// Normalize maps free text to a decision: an exact token after trimming and
// upper-casing wins, then the first token found as a substring in
// CONTINUE, RETRY, FAIL order, else CONTINUE.
func Normalize(output string) core.Decision {
	text := strings.ToUpper(strings.TrimSpace(output))
	for _, d := range core.Decisions {
		if text == string(d) {
			return d
		}
	}
	for _, d := range core.Decisions {
		if strings.Contains(text, string(d)) {
			return d
		}
	}
	return core.DecisionContinue
}
