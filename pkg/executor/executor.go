// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor runs a plan one step at a time, one model invocation per
// step.
package executor

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/prompts"
	"github.com/jllopis/telos/pkg/telemetry"
)

// DefaultMaxSteps caps the number of steps executed per run.
const DefaultMaxSteps = 10

// Executor executes plans.
type Executor struct {
	prompts *prompts.Set
	log     *slog.Logger
	tracer  trace.Tracer
}

// Option configures an Executor.
type Option func(*Executor)

// WithPrompts overrides the prompt templates.
func WithPrompts(set *prompts.Set) Option {
	return func(e *Executor) {
		if set != nil {
			e.prompts = set
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.log = logger
		}
	}
}

// New returns an Executor with the default prompts.
func New(opts ...Option) *Executor {
	e := &Executor{
		prompts: prompts.Default(),
		log:     slog.Default(),
		tracer:  otel.Tracer("telos/executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutePlan runs pending steps of state.Plan until the plan is exhausted,
// maxSteps steps have run or the state is already completed. maxSteps <= 0
// means DefaultMaxSteps. Each output is recorded verbatim as the step's
// observation. Completed is set once the loop stops; stopping at maxSteps is
// not an error.
//
// A failed invocation returns an EXECUTION_ERROR carrying the step index and
// leaves the state as it was before that step.
func (e *Executor) ExecutePlan(ctx context.Context, invoker core.Invoker, state *core.State, maxSteps int) error {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	total := len(state.Plan)

	for !state.Completed && state.CurrentStep < total && state.CurrentStep < maxSteps {
		index := state.CurrentStep
		step, _ := state.PendingStep()

		data := prompts.ExecutorData{
			Goal:         state.Goal,
			Step:         step,
			StepNumber:   index + 1,
			TotalSteps:   total,
			Observations: state.Observations,
		}
		if index == 0 {
			data.ContextSummary = state.ContextSummary()
		}
		prompt, err := e.prompts.Executor(data)
		if err != nil {
			return errors.New(errors.CodeInternal, "render executor prompt", err).
				WithContext("step_index", index)
		}

		stepCtx, span := e.tracer.Start(ctx, "Executor.Step",
			trace.WithAttributes(
				attribute.Int(telemetry.AttrStepIndex, index),
				attribute.Int(telemetry.AttrPlanLength, total),
			),
		)
		result, err := invoker.Invoke(stepCtx, prompt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "step failed")
			span.End()
			e.log.Warn("executor.step.failed", "step_index", index, "error", err)
			return errors.New(errors.CodeExecution, "step execution failed", err).
				WithContext("step_index", index).
				WithContext("step", step).
				WithRecoverable(true)
		}
		span.End()

		if err := state.Record(result.Output); err != nil {
			return err
		}
		e.log.Debug("executor.step.done", "step_index", index, "steps_total", total)
	}

	state.Complete()
	return nil
}
