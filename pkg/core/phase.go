// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package core

// Phase is a step of the orchestration state machine.
type Phase string

const (
	PhaseInit             Phase = "INIT"
	PhaseContextRetrieval Phase = "CONTEXT_RETRIEVAL"
	PhasePlanning         Phase = "PLANNING"
	PhaseExecution        Phase = "EXECUTION"
	PhaseReflection       Phase = "REFLECTION"
	PhaseSuccess          Phase = "SUCCESS"
	PhaseRetryNeeded      Phase = "RETRY_NEEDED"
	PhaseFailed           Phase = "FAILED"
	PhasePersist          Phase = "PERSIST"
	PhaseErrorPersist     Phase = "ERROR_PERSIST"
	PhaseDone             Phase = "DONE"
)

var transitions = map[Phase][]Phase{
	PhaseInit:             {PhaseContextRetrieval},
	PhaseContextRetrieval: {PhasePlanning},
	PhasePlanning:         {PhaseExecution},
	PhaseExecution:        {PhaseReflection},
	PhaseReflection:       {PhaseSuccess, PhaseRetryNeeded, PhaseFailed},
	PhaseSuccess:          {PhasePersist},
	PhaseRetryNeeded:      {PhasePersist},
	PhaseFailed:           {PhasePersist},
	PhasePersist:          {PhaseDone},
	PhaseErrorPersist:     {PhaseDone},
}

// CanTransition reports whether the machine may move from p to next.
// Every phase before DONE may divert to ERROR_PERSIST.
func (p Phase) CanTransition(next Phase) bool {
	if next == PhaseErrorPersist {
		return p != PhaseDone && p != PhaseErrorPersist
	}
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseDone
}

// Decision is the reflector's verdict on an executed plan.
type Decision string

const (
	DecisionContinue Decision = "CONTINUE"
	DecisionRetry    Decision = "RETRY"
	DecisionFail     Decision = "FAIL"
)

// Decisions lists the verdicts in matching priority order.
var Decisions = []Decision{DecisionContinue, DecisionRetry, DecisionFail}

// Phase maps a decision to the classification phase that follows reflection.
func (d Decision) Phase() Phase {
	switch d {
	case DecisionFail:
		return PhaseFailed
	case DecisionRetry:
		return PhaseRetryNeeded
	default:
		return PhaseSuccess
	}
}
