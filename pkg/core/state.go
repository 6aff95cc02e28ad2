// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"fmt"
	"strings"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/memory"
)

// State is the mutable state of one run. It is owned by the orchestrator and
// lent to one phase at a time; it is not safe for concurrent use.
//
// Plan is written once by the planner. CurrentStep and Observations only move
// together through Record, so len(Observations) == CurrentStep <= len(Plan)
// holds for the whole run.
type State struct {
	Goal         string
	SessionID    string
	Plan         []string
	CurrentStep  int
	Observations []string
	Completed    bool
	Context      *memory.Context
	Metadata     map[string]any

	planSet    bool
	contextSet bool
}

// NewState returns a fresh state for goal. An empty sessionID is replaced by
// a generated one.
func NewState(goal, sessionID string) *State {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	return &State{
		Goal:         goal,
		SessionID:    sessionID,
		Observations: []string{},
		Metadata:     map[string]any{},
	}
}

// SetPlan stores the plan. It fails when a plan was already set.
func (s *State) SetPlan(steps []string) error {
	if s.planSet {
		return errors.New(errors.CodeInternal, "plan already set", nil)
	}
	s.Plan = append([]string{}, steps...)
	s.planSet = true
	return nil
}

// SetContext stores the memory context retrieved before planning. It fails
// when a context was already set.
func (s *State) SetContext(c *memory.Context) error {
	if s.contextSet {
		return errors.New(errors.CodeInternal, "context already set", nil)
	}
	s.Context = c
	s.contextSet = true
	return nil
}

// Record appends the observation for the current step and advances the
// cursor. It refuses once every step of the plan has an observation.
func (s *State) Record(observation string) error {
	if s.CurrentStep >= len(s.Plan) {
		return errors.New(errors.CodeInternal, "no pending step to record", nil).
			WithContext("current_step", s.CurrentStep).
			WithContext("plan_length", len(s.Plan))
	}
	s.Observations = append(s.Observations, observation)
	s.CurrentStep++
	return nil
}

// Complete marks the run as completed. It is idempotent.
func (s *State) Complete() {
	s.Completed = true
}

// PendingStep returns the text of the next step to execute.
func (s *State) PendingStep() (string, bool) {
	if s.CurrentStep >= len(s.Plan) {
		return "", false
	}
	return s.Plan[s.CurrentStep], true
}

// LastObservation returns the most recent observation.
func (s *State) LastObservation() (string, bool) {
	if len(s.Observations) == 0 {
		return "", false
	}
	return s.Observations[len(s.Observations)-1], true
}

// HasSimilarInteractions reports whether the context carries at least one
// similar past interaction.
func (s *State) HasSimilarInteractions() bool {
	return s.Context != nil && len(s.Context.SimilarInteractions) > 0
}

// ContextSummary renders the memory context as "goal → result" lines, or
// returns "" when there is nothing to render.
func (s *State) ContextSummary() string {
	if s.Context.Empty() {
		return ""
	}
	var b strings.Builder
	if len(s.Context.RecentHistory) > 0 {
		b.WriteString("Recent conversation history:\n")
		for _, r := range s.Context.RecentHistory {
			fmt.Fprintf(&b, "- %s → %s\n", r.Goal, r.Result)
		}
	}
	if len(s.Context.SimilarInteractions) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Similar past interactions:\n")
		for _, r := range s.Context.SimilarInteractions {
			if r.Score > 0 {
				fmt.Fprintf(&b, "- %s → %s (similarity %.2f)\n", r.Goal, r.Result, r.Score)
				continue
			}
			fmt.Fprintf(&b, "- %s → %s\n", r.Goal, r.Result)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// CheckInvariants returns an INTERNAL_ERROR describing the first broken
// invariant, or nil.
func (s *State) CheckInvariants() error {
	switch {
	case s.CurrentStep < 0 || s.CurrentStep > len(s.Plan):
		return errors.New(errors.CodeInternal, "current step out of range", nil).
			WithContext("current_step", s.CurrentStep).
			WithContext("plan_length", len(s.Plan))
	case len(s.Observations) != s.CurrentStep:
		return errors.New(errors.CodeInternal, "observations out of step with cursor", nil).
			WithContext("current_step", s.CurrentStep).
			WithContext("observations", len(s.Observations))
	}
	return nil
}
