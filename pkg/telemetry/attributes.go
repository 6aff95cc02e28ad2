// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration with rich attributes
// for orchestrator, memory and tool observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Telos telemetry.
const (
	// Run attributes
	AttrRunID      = "telos.run.id"
	AttrSessionID  = "telos.session.id"
	AttrGoal       = "telos.goal"
	AttrPhase      = "telos.phase"
	AttrDecision   = "telos.decision"
	AttrPlanLength = "telos.plan.length"
	AttrStepIndex  = "telos.step.index"
	AttrStepsTotal = "telos.steps.executed"

	// Memory attributes
	AttrMemoryBackend   = "telos.memory.backend"
	AttrMemoryTier      = "telos.memory.tier"
	AttrMemoryOperation = "telos.memory.operation"
	AttrMemoryRetrieved = "telos.memory.retrieved_count"
	AttrMemoryDegraded  = "telos.memory.degraded"

	// Tool attributes
	AttrToolName       = "telos.tool.name"
	AttrToolRound      = "telos.tool.round"
	AttrToolDurationMs = "telos.tool.duration_ms"
	AttrToolSuccess    = "telos.tool.success"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
)

const maxGoalLen = 200

// RunAttributes returns common attributes for orchestrator spans.
func RunAttributes(runID, sessionID, goal string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(AttrSessionID, sessionID))
	}
	if goal != "" {
		if len(goal) > maxGoalLen {
			goal = goal[:maxGoalLen] + "..."
		}
		attrs = append(attrs, attribute.String(AttrGoal, goal))
	}
	return attrs
}

// PhaseAttributes returns attributes for a phase span.
func PhaseAttributes(phase string, planLength, stepsExecuted int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrPhase, phase),
	}
	if planLength > 0 {
		attrs = append(attrs, attribute.Int(AttrPlanLength, planLength))
	}
	if stepsExecuted > 0 {
		attrs = append(attrs, attribute.Int(AttrStepsTotal, stepsExecuted))
	}
	return attrs
}

// MemoryAttributes returns attributes for memory operations.
func MemoryAttributes(backend, operation, tier string, retrieved int, degraded bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrMemoryOperation, operation),
		attribute.Bool(AttrMemoryDegraded, degraded),
	}
	if backend != "" {
		attrs = append(attrs, attribute.String(AttrMemoryBackend, backend))
	}
	if tier != "" {
		attrs = append(attrs, attribute.String(AttrMemoryTier, tier))
	}
	if retrieved > 0 {
		attrs = append(attrs, attribute.Int(AttrMemoryRetrieved, retrieved))
	}
	return attrs
}

// ToolCallAttributes returns attributes for a tool call span.
func ToolCallAttributes(name string, round int, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.Int(AttrToolRound, round),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// LLMAttributes returns attributes for model call spans.
func LLMAttributes(model, provider string, msgCount, toolCallCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if toolCallCount > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMToolCalls, toolCallCount))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	return attrs
}
