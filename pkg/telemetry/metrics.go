// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/telos/pkg/errors"
)

// ErrorMetrics tracks error rates and recovery patterns by code and component.
type ErrorMetrics struct {
	// errorCounter tracks total errors by code and component
	errorCounter metric.Int64Counter

	// recoveryCounter tracks errors that were degraded instead of surfaced
	recoveryCounter metric.Int64Counter
}

// NewErrorMetrics creates a new error metrics tracker with OTEL meters.
func NewErrorMetrics(ctx context.Context) (*ErrorMetrics, error) {
	meter := otel.Meter("telos/errors")

	errorCounter, err := meter.Int64Counter(
		"telos.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	recoveryCounter, err := meter.Int64Counter(
		"telos.errors.recovered",
		metric.WithDescription("Errors absorbed by a degraded path, by code"),
	)
	if err != nil {
		return nil, err
	}

	return &ErrorMetrics{
		errorCounter:    errorCounter,
		recoveryCounter: recoveryCounter,
	}, nil
}

// RecordErrorMetric increments the error counter for the given error and component.
func (em *ErrorMetrics) RecordErrorMetric(ctx context.Context, err error, component string) {
	if em == nil || err == nil {
		return
	}

	code, recoverable := "UNKNOWN", "unknown"
	if te := errors.As(err); te != nil && errors.CodeOf(err) != "" {
		code = string(te.Code)
		recoverable = te.RecoverableString()
	}
	em.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", code),
			attribute.String("component", component),
			attribute.String("recoverable", recoverable),
		),
	)
}

// RecordRecovery increments the recovery counter for the given error code.
func (em *ErrorMetrics) RecordRecovery(ctx context.Context, errorCode errors.ErrorCode) {
	if em == nil {
		return
	}
	em.recoveryCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", string(errorCode)),
		),
	)
}

// RunMetrics tracks orchestrator outcomes.
type RunMetrics struct {
	runs      metric.Int64Counter
	decisions metric.Int64Counter
	steps     metric.Int64Histogram
	degraded  metric.Int64Counter
}

// NewRunMetrics creates the run instruments on the global meter provider.
func NewRunMetrics() (*RunMetrics, error) {
	meter := otel.Meter("telos/orchestrator")

	runs, err := meter.Int64Counter(
		"telos.runs.total",
		metric.WithDescription("Orchestrator runs by final status"),
	)
	if err != nil {
		return nil, err
	}
	decisions, err := meter.Int64Counter(
		"telos.runs.decisions",
		metric.WithDescription("Reflection decisions"),
	)
	if err != nil {
		return nil, err
	}
	steps, err := meter.Int64Histogram(
		"telos.steps.executed",
		metric.WithDescription("Plan steps executed per run"),
	)
	if err != nil {
		return nil, err
	}
	degraded, err := meter.Int64Counter(
		"telos.memory.degraded",
		metric.WithDescription("Memory operations that fell back or failed, by operation"),
	)
	if err != nil {
		return nil, err
	}

	return &RunMetrics{runs: runs, decisions: decisions, steps: steps, degraded: degraded}, nil
}

// RecordRun records a finished run. status is "ok" or "error".
func (rm *RunMetrics) RecordRun(ctx context.Context, status string, stepsExecuted int) {
	if rm == nil {
		return
	}
	rm.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	rm.steps.Record(ctx, int64(stepsExecuted))
}

// RecordDecision records a reflection decision.
func (rm *RunMetrics) RecordDecision(ctx context.Context, decision string) {
	if rm == nil {
		return
	}
	rm.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrDecision, decision)))
}

// RecordMemoryDegraded records a memory operation that did not get its best answer.
func (rm *RunMetrics) RecordMemoryDegraded(ctx context.Context, operation string) {
	if rm == nil {
		return
	}
	rm.degraded.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrMemoryOperation, operation)))
}
