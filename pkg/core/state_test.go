package core

import (
	"context"
	"strings"
	"testing"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/memory"
)

func TestNewStateGeneratesSession(t *testing.T) {
	s := NewState("goal", "")
	if s.SessionID == "" {
		t.Fatal("expected generated session id")
	}
	if other := NewState("goal", ""); other.SessionID == s.SessionID {
		t.Fatal("expected distinct session ids")
	}
	if kept := NewState("goal", "abc"); kept.SessionID != "abc" {
		t.Fatalf("expected caller session, got %q", kept.SessionID)
	}
}

func TestStateSetPlanOnce(t *testing.T) {
	s := NewState("goal", "s1")
	steps := []string{"a", "b"}
	if err := s.SetPlan(steps); err != nil {
		t.Fatalf("set plan: %v", err)
	}
	steps[0] = "mutated"
	if s.Plan[0] != "a" {
		t.Fatal("plan must not alias the caller slice")
	}
	if err := s.SetPlan([]string{"c"}); !errors.HasCode(err, errors.CodeInternal) {
		t.Fatalf("expected INTERNAL_ERROR on second plan, got %v", err)
	}
}

func TestStateSetContextOnce(t *testing.T) {
	s := NewState("goal", "s1")
	if err := s.SetContext(nil); err != nil {
		t.Fatalf("set context: %v", err)
	}
	if err := s.SetContext(&memory.Context{}); err == nil {
		t.Fatal("expected error on second context")
	}
}

func TestStateRecordKeepsInvariants(t *testing.T) {
	s := NewState("goal", "s1")
	if err := s.Record("too early"); err == nil {
		t.Fatal("expected error recording without a plan")
	}
	_ = s.SetPlan([]string{"one", "two"})
	for i, obs := range []string{"first", "second"} {
		step, ok := s.PendingStep()
		if !ok || step != s.Plan[i] {
			t.Fatalf("step %d: unexpected pending step %q", i, step)
		}
		if err := s.Record(obs); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if err := s.CheckInvariants(); err != nil {
			t.Fatalf("invariants after step %d: %v", i, err)
		}
		if len(s.Observations) != s.CurrentStep {
			t.Fatalf("observations %d != current step %d", len(s.Observations), s.CurrentStep)
		}
	}
	if err := s.Record("extra"); err == nil {
		t.Fatal("expected error once the plan is exhausted")
	}
	if last, _ := s.LastObservation(); last != "second" {
		t.Fatalf("unexpected last observation %q", last)
	}
}

func TestStateCheckInvariantsDetectsDrift(t *testing.T) {
	s := NewState("goal", "s1")
	_ = s.SetPlan([]string{"one"})
	s.Observations = append(s.Observations, "stray")
	if err := s.CheckInvariants(); err == nil {
		t.Fatal("expected drift to be reported")
	}
	s.Observations = nil
	s.CurrentStep = 2
	if err := s.CheckInvariants(); err == nil {
		t.Fatal("expected out of range cursor to be reported")
	}
}

func TestStateCompleteIsMonotonic(t *testing.T) {
	s := NewState("goal", "s1")
	s.Complete()
	s.Complete()
	if !s.Completed {
		t.Fatal("expected completed")
	}
}

func TestContextSummary(t *testing.T) {
	s := NewState("goal", "s1")
	if got := s.ContextSummary(); got != "" {
		t.Fatalf("expected empty summary, got %q", got)
	}

	_ = s.SetContext(&memory.Context{
		RecentHistory:       []memory.Record{{Goal: "weather in Paris", Result: "18C"}},
		SimilarInteractions: []memory.Record{{Goal: "weather in Rome", Result: "25C", Score: 0.91}},
	})
	got := s.ContextSummary()
	for _, want := range []string{
		"Recent conversation history:",
		"- weather in Paris → 18C",
		"Similar past interactions:",
		"- weather in Rome → 25C (similarity 0.91)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if !s.HasSimilarInteractions() {
		t.Error("expected similar interactions")
	}
}

func TestRunIDHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := RunID(ctx); ok {
		t.Fatal("expected no run id")
	}
	ctx, id := EnsureRunID(ctx)
	if !strings.HasPrefix(id, "run-") {
		t.Fatalf("unexpected run id %q", id)
	}
	if _, again := EnsureRunID(ctx); again != id {
		t.Fatalf("expected stable run id, got %q and %q", id, again)
	}
	ctx = WithSessionID(ctx, "s1")
	if sid, ok := SessionID(ctx); !ok || sid != "s1" {
		t.Fatalf("unexpected session id %q", sid)
	}
}
