// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/jllopis/telos/pkg/errors"
)

// CLIError wraps a typed error with a hint for the user.
type CLIError struct {
	Err  *errors.Error
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(te *errors.Error, hint string) *CLIError {
	return &CLIError{Err: te, Hint: hint}
}

// Error returns the message followed by the hint, if any.
func (e *CLIError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	msg := e.Err.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the typed error to errors.Is and errors.As.
func (e *CLIError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	te := errors.New(errors.CodeInvalidInput, "invalid argument: "+reason, nil).
		WithContext("argument", arg).
		WithRecoverable(false)
	return NewCLIError(te, "run 'telos help' for usage information")
}

// NewConfigError attaches a hint to a configuration load or validation
// failure. Untyped causes become CONFIGURATION_ERROR.
func NewConfigError(err error, configPath string) *CLIError {
	te := errors.New(errors.CodeConfiguration, "configuration error", err)
	if errors.CodeOf(err) != "" {
		te = errors.As(err)
	}
	te = te.WithContext("config_path", configPath)

	hint := "check the TELOS_* environment and --set overrides"
	if configPath != "" {
		hint = fmt.Sprintf("check %s and the TELOS_* environment", configPath)
	}
	return NewCLIError(te, hint)
}

// hintFor suggests a next step for errors that carry no CLI hint.
func hintFor(code errors.ErrorCode) string {
	switch code {
	case errors.CodeConfiguration:
		return "set COSMOS_ENDPOINT and COSMOS_KEY, or AZURE_COSMOS_CONNECTION_STRING, or use --set memory.backend=embedded"
	case errors.CodeEmbedding:
		return "check embedder.provider and its API key (OPENAI_API_KEY)"
	case errors.CodeLLMError:
		return "check llm.provider, llm.model and the provider API key"
	case errors.CodePlanParse:
		return "the model did not answer with a JSON plan; try a more capable llm.model"
	case errors.CodeTimeout:
		return "raise llm.max_tool_rounds or mcp.timeout"
	case errors.CodeInvalidInput:
		return "run 'telos help' for usage information"
	}
	return ""
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeConfiguration:
		return "Configuration Error"
	case errors.CodeEmbedding:
		return "Embedding Error"
	case errors.CodePersistence:
		return "Persistence Error"
	case errors.CodePlanParse:
		return "Plan Parse Error"
	case errors.CodeExecution:
		return "Execution Error"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeTimeout:
		return "Timeout"
	case errors.CodeToolFailure:
		return "Tool Failure"
	case errors.CodeLLMError:
		return "LLM Error"
	case errors.CodeContextLost:
		return "Context Lost"
	default:
		return string(code)
	}
}

type errorPayload struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// printError writes err to w in the selected output format. Errors without
// a code, such as cobra usage errors, are printed as they are.
func printError(w io.Writer, err error, format string) {
	var cliErr *CLIError
	if !stderrors.As(err, &cliErr) {
		if errors.CodeOf(err) == "" {
			printSimpleError(w, err, format)
			return
		}
		te := errors.As(err)
		cliErr = NewCLIError(te, hintFor(te.Code))
	}

	te := cliErr.Err
	if format == outputJSON {
		writeErrorJSON(w, errorPayload{Code: te.Code, Message: describe(te), Hint: cliErr.Hint})
		return
	}

	fmt.Fprintf(w, "Error [%s]: %s\n", FormatErrorCode(te.Code), describe(te))
	if cliErr.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", cliErr.Hint)
	}
}

func printSimpleError(w io.Writer, err error, format string) {
	if format == outputJSON {
		writeErrorJSON(w, errorPayload{Code: "UNKNOWN", Message: err.Error()})
		return
	}
	fmt.Fprintf(w, "Error: %s\n", err.Error())
}

func writeErrorJSON(w io.Writer, payload errorPayload) {
	data, _ := json.Marshal(map[string]errorPayload{"error": payload})
	fmt.Fprintln(w, string(data))
}

// describe renders a typed error without its code prefix.
func describe(te *errors.Error) string {
	if te.Err != nil {
		return te.Message + ": " + te.Err.Error()
	}
	return te.Message
}
