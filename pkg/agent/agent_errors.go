// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
)

// WrapLLMError wraps a provider failure with the model name.
func WrapLLMError(err error, model string) *errors.Error {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeLLMError, "LLM call failed", err).
		WithContext("model", model).
		WithAttribute("gen_ai.request.model", model).
		WithRecoverable(true)
}

// WrapToolError wraps a tool execution error with appropriate context.
func WrapToolError(err error, toolName, toolCallID string) *errors.Error {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeToolFailure, "tool execution failed", err).
		WithContext("tool_name", toolName).
		WithContext("tool_call_id", toolCallID).
		WithAttribute("telos.tool.name", toolName).
		WithRecoverable(true)
}

// WrapMemoryError wraps a memory failure. Typed memory errors keep their
// code; anything else becomes a PERSISTENCE_ERROR.
func WrapMemoryError(err error, operation string) *errors.Error {
	if err == nil {
		return nil
	}
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.CodePersistence
	}
	return errors.New(code, "memory operation failed", err).
		WithContext("operation", operation).
		WithAttribute("telos.memory.operation", operation).
		WithRecoverable(true)
}

// WrapTimeoutError reports an operation that ran out of rounds.
func WrapTimeoutError(err error, operation string, maxRounds int) *errors.Error {
	return errors.New(errors.CodeTimeout, "operation exceeded max rounds", err).
		WithContext("operation", operation).
		WithContext("max_rounds", maxRounds).
		WithRecoverable(false)
}

// WrapPhaseError tags err with the phase it escaped from. Typed errors are
// returned as they are so callers see the original code.
func WrapPhaseError(err error, phase core.Phase) error {
	if err == nil {
		return nil
	}
	if errors.CodeOf(err) != "" {
		return err
	}
	return errors.New(errors.CodeInternal, "phase "+string(phase)+" failed", err).
		WithContext("phase", string(phase))
}

// NewInvalidInputError creates a new invalid input error.
func NewInvalidInputError(msg string) *errors.Error {
	return errors.New(errors.CodeInvalidInput, msg, nil).
		WithRecoverable(false)
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, name string) *errors.Error {
	return errors.New(errors.CodeNotFound, resource+" not found", nil).
		WithContext("resource", resource).
		WithContext("name", name).
		WithRecoverable(false)
}

// newTransitionError reports an illegal state machine move.
func newTransitionError(from, to core.Phase) *errors.Error {
	return errors.New(errors.CodeInternal, "illegal phase transition", nil).
		WithContext("from", string(from)).
		WithContext("to", string(to))
}
