// SPDX-License-Identifier: Apache-2.0
// Package resilience provides fallback chains and retry helpers for Telos.
package resilience

import (
	"context"

	"github.com/jllopis/telos/pkg/errors"
)

// Stage is one link of a fallback chain. Stages are tried in order and the
// next one only runs when the previous returned an error.
type Stage[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// ChainResult reports the value produced by a chain and which stage served it.
type ChainResult[T any] struct {
	Value T
	// Stage is the name of the stage that succeeded.
	Stage string
	// Failures holds the errors of the stages tried before Stage, in order.
	Failures []error
}

// Degraded reports whether the value came from a stage other than the first.
func (r ChainResult[T]) Degraded() bool {
	return len(r.Failures) > 0
}

// Chain runs stages until one succeeds. An empty but successful result stops
// the chain. When every stage fails the last error is returned wrapped with
// the names of the stages tried.
func Chain[T any](ctx context.Context, stages ...Stage[T]) (ChainResult[T], error) {
	var result ChainResult[T]
	if len(stages) == 0 {
		return result, errors.New(errors.CodeInvalidInput, "fallback chain has no stages", nil)
	}

	tried := make([]string, 0, len(stages))
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return result, errors.New(errors.CodeContextLost, "context canceled during fallback chain", err).
				WithContext("stages_tried", tried)
		}
		tried = append(tried, stage.Name)

		value, err := stage.Run(ctx)
		if err == nil {
			result.Value = value
			result.Stage = stage.Name
			return result, nil
		}
		result.Failures = append(result.Failures, err)
	}

	last := result.Failures[len(result.Failures)-1]
	return result, errors.New(errors.CodeInternal, "all fallback stages failed", last).
		WithContext("stages_tried", tried).
		WithRecoverable(false)
}
