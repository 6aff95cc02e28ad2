// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/jllopis/telos/pkg/audit"
	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/memory"
)

// fakeModel answers planner, executor and reflector prompts by recognising
// their templates.
type fakeModel struct {
	mu       sync.Mutex
	plan     string
	step     func(prompt string) string
	decision string
	failOn   string // "plan", "execute" or "reflect"
	prompts  map[string][]string
}

func newFakeModel(plan, decision string) *fakeModel {
	return &fakeModel{
		plan:     plan,
		decision: decision,
		step: func(prompt string) string {
			_, after, _ := strings.Cut(prompt, "Current Step:\n")
			step, _, _ := strings.Cut(after, "\n")
			return "done: " + step
		},
		prompts: map[string][]string{},
	}
}

func (f *fakeModel) Invoke(_ context.Context, prompt string) (core.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var kind string
	switch {
	case strings.Contains(prompt, "autonomous planning agent"):
		kind = "plan"
	case strings.Contains(prompt, "You are executing step"):
		kind = "execute"
	case strings.Contains(prompt, "Respond with ONLY one word"):
		kind = "reflect"
	default:
		return core.Result{}, stderrors.New("unexpected prompt")
	}
	f.prompts[kind] = append(f.prompts[kind], prompt)
	if f.failOn == kind {
		return core.Result{}, stderrors.New(kind + " backend down")
	}
	switch kind {
	case "plan":
		return core.Result{Output: f.plan}, nil
	case "execute":
		return core.Result{Output: f.step(prompt)}, nil
	}
	return core.Result{Output: f.decision}, nil
}

// countingBackend wraps InMemory to count closes and fail inserts.
type countingBackend struct {
	*memory.InMemory
	mu          sync.Mutex
	closes      int
	insertFails int
	inserts     int
}

func (b *countingBackend) Insert(ctx context.Context, rec memory.Record) error {
	b.mu.Lock()
	b.inserts++
	fail := b.insertFails > 0
	if fail {
		b.insertFails--
	}
	b.mu.Unlock()
	if fail {
		return stderrors.New("insert refused")
	}
	return b.InMemory.Insert(ctx, rec)
}

func (b *countingBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closes++
	b.mu.Unlock()
	return b.InMemory.Close(ctx)
}

func constEmbedder() memory.Embedder {
	return memory.EmbedderFunc(func(context.Context, string) ([]float32, error) {
		return []float32{1, 0.5}, nil
	})
}

func sharedMemory(b memory.Backend) MemoryOpener {
	return func(context.Context) (*memory.Store, error) {
		return memory.New(b, constEmbedder()), nil
	}
}

func history(t *testing.T, b memory.Backend, sessionID string) []memory.Record {
	t.Helper()
	records, err := b.QueryBySession(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	return records
}

func TestRunContinueReturnsLastObservation(t *testing.T) {
	backend := &countingBackend{InMemory: memory.NewInMemory()}
	auditStore := audit.NewMemoryStore()
	model := newFakeModel(`{"steps": ["find city", "report temperature"]}`, "CONTINUE")

	o := New(model, WithMemory(sharedMemory(backend)), WithAudit(auditStore))
	out, err := o.Run(context.Background(), Request{Goal: "weather in Madrid", SessionID: "s1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if out.Result != "done: report temperature" {
		t.Fatalf("expected last observation, got %q", out.Result)
	}
	if out.Decision != core.DecisionContinue || out.Phase != core.PhaseSuccess {
		t.Fatalf("unexpected classification %s/%s", out.Decision, out.Phase)
	}
	if !out.Memory || !out.Persisted || out.SessionID != "s1" || out.RunID == "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(out.Observations) != 2 || len(out.Plan) != 2 {
		t.Fatalf("expected two steps executed, got %+v", out)
	}
	if backend.closes != 1 {
		t.Fatalf("memory must be closed exactly once, got %d", backend.closes)
	}

	records := history(t, backend, "s1")
	if len(records) != 1 {
		t.Fatalf("expected one stored interaction, got %d", len(records))
	}
	md := records[0].Metadata
	if md["decision"] != "CONTINUE" || md["steps_executed"] != 2 || md["plan_length"] != 2 || md["run_id"] != out.RunID {
		t.Fatalf("unexpected metadata %v", md)
	}
	if records[0].Result != out.Result {
		t.Fatalf("stored result %q differs from outcome", records[0].Result)
	}

	events, _ := auditStore.List(context.Background(), audit.Filter{RunID: out.RunID, Status: audit.StatusStarted})
	var phases []string
	for _, ev := range events {
		phases = append(phases, ev.Phase)
	}
	want := "INIT CONTEXT_RETRIEVAL PLANNING EXECUTION REFLECTION SUCCESS PERSIST DONE"
	if strings.Join(phases, " ") != want {
		t.Fatalf("unexpected phase trail %v", phases)
	}

	done, _ := auditStore.List(context.Background(), audit.Filter{RunID: out.RunID, Phase: "DONE", Status: audit.StatusCompleted})
	if len(done) != 1 {
		t.Fatalf("expected DONE to be completed once, got %v", done)
	}
}

func TestRunDecisionResults(t *testing.T) {
	cases := []struct {
		decision string
		plan     string
		want     string
		phase    core.Phase
	}{
		{"FAIL", `{"steps": ["a"]}`, ResultFailed, core.PhaseFailed},
		{"I think we should RETRY this", `{"steps": ["a"]}`, ResultNeedsRetry, core.PhaseRetryNeeded},
		{"  continue  ", `{"steps": []}`, ResultNoObservations, core.PhaseSuccess},
	}
	for _, tc := range cases {
		t.Run(tc.decision, func(t *testing.T) {
			model := newFakeModel(tc.plan, tc.decision)
			out, err := New(model).Run(context.Background(), Request{Goal: "g"})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if out.Result != tc.want || out.Phase != tc.phase {
				t.Fatalf("got %q in %s", out.Result, out.Phase)
			}
			if out.Memory || out.Persisted {
				t.Fatal("memory was not configured")
			}
			if len(model.prompts["plan"]) != 1 {
				t.Fatalf("RETRY must not loop back into planning, planned %d times", len(model.prompts["plan"]))
			}
		})
	}
}

func TestRunPlanParseFailurePersistsError(t *testing.T) {
	backend := &countingBackend{InMemory: memory.NewInMemory()}
	model := newFakeModel("I cannot produce a plan", "CONTINUE")

	out, err := New(model, WithMemory(sharedMemory(backend))).Run(context.Background(), Request{Goal: "g", SessionID: "s"})
	if !errors.HasCode(err, errors.CodePlanParse) {
		t.Fatalf("expected the planner error to propagate, got %v", err)
	}
	if out == nil || !strings.HasPrefix(out.Result, "Error: ") || out.Phase != core.PhaseErrorPersist {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(model.prompts["execute"]) != 0 || len(model.prompts["reflect"]) != 0 {
		t.Fatal("nothing may run after a planning failure")
	}
	if backend.closes != 1 {
		t.Fatalf("memory must be closed exactly once, got %d", backend.closes)
	}

	records := history(t, backend, "s")
	if len(records) != 1 {
		t.Fatalf("expected the error interaction to be stored, got %d", len(records))
	}
	md := records[0].Metadata
	if md["error"] != true || md["phase"] != "PLANNING" || md["error_message"] != err.Error() {
		t.Fatalf("unexpected error metadata %v", md)
	}
}

func TestRunExecutionFailure(t *testing.T) {
	model := newFakeModel(`{"steps": ["a", "b"]}`, "CONTINUE")
	model.failOn = "execute"
	backend := &countingBackend{InMemory: memory.NewInMemory()}

	out, err := New(model, WithMemory(sharedMemory(backend))).Run(context.Background(), Request{Goal: "g", SessionID: "s"})
	if !errors.HasCode(err, errors.CodeExecution) {
		t.Fatalf("expected EXECUTION_ERROR, got %v", err)
	}
	if len(out.Observations) != 0 || len(out.Plan) != 2 {
		t.Fatalf("unexpected partial outcome %+v", out)
	}
	if md := history(t, backend, "s")[0].Metadata; md["phase"] != "EXECUTION" {
		t.Fatalf("expected failure recorded in EXECUTION, got %v", md)
	}
}

func TestRunReflectionFailureWithoutMemory(t *testing.T) {
	model := newFakeModel(`{"steps": ["a"]}`, "CONTINUE")
	model.failOn = "reflect"
	out, err := New(model).Run(context.Background(), Request{Goal: "g"})
	if !errors.HasCode(err, errors.CodeExecution) {
		t.Fatalf("expected EXECUTION_ERROR, got %v", err)
	}
	if out.Persisted {
		t.Fatal("nothing can be persisted without memory")
	}
}

func TestRunMemoryOpenFailureDisablesMemory(t *testing.T) {
	model := newFakeModel(`{"steps": ["a"]}`, "CONTINUE")
	opener := func(context.Context) (*memory.Store, error) {
		return nil, errors.New(errors.CodeConfiguration, "missing memory credentials", nil)
	}
	out, err := New(model, WithMemory(opener)).Run(context.Background(), Request{Goal: "g"})
	if err != nil {
		t.Fatalf("configuration errors must not fail the run: %v", err)
	}
	if out.Memory || out.Persisted || out.Result != "done: a" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestRunPersistRetries(t *testing.T) {
	model := newFakeModel(`{"steps": ["a"]}`, "CONTINUE")

	backend := &countingBackend{InMemory: memory.NewInMemory(), insertFails: 2}
	out, err := New(model, WithMemory(sharedMemory(backend)), WithPersistAttempts(3, 0)).
		Run(context.Background(), Request{Goal: "g", SessionID: "s"})
	if err != nil || !out.Persisted || backend.inserts != 3 {
		t.Fatalf("expected success on the third attempt, got persisted=%v inserts=%d err=%v", out.Persisted, backend.inserts, err)
	}

	backend = &countingBackend{InMemory: memory.NewInMemory(), insertFails: 5}
	out, err = New(model, WithMemory(sharedMemory(backend))).Run(context.Background(), Request{Goal: "g", SessionID: "s"})
	if err != nil {
		t.Fatalf("persist failures must be swallowed: %v", err)
	}
	if out.Persisted || backend.inserts != 1 || out.Result != "done: a" {
		t.Fatalf("expected a single failed attempt, got persisted=%v inserts=%d", out.Persisted, backend.inserts)
	}
}

func TestRunUsesSessionHistory(t *testing.T) {
	backend := &countingBackend{InMemory: memory.NewInMemory()}
	model := newFakeModel(`{"steps": ["look up"]}`, "CONTINUE")
	o := New(model, WithMemory(sharedMemory(backend)))

	if _, err := o.Run(context.Background(), Request{Goal: "weather in Paris", SessionID: "chat"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := o.Run(context.Background(), Request{Goal: "and in Rome?", SessionID: "chat"}); err != nil {
		t.Fatalf("second run: %v", err)
	}

	second := model.prompts["plan"][1]
	if !strings.Contains(second, "RELEVANT CONTEXT") || !strings.Contains(second, "weather in Paris → done: look up") {
		t.Fatalf("second plan prompt lacks history:\n%s", second)
	}
	if strings.Contains(model.prompts["plan"][0], "RELEVANT CONTEXT") {
		t.Fatal("first run has no history to show")
	}
}

func TestRunStepBound(t *testing.T) {
	model := newFakeModel(`{"steps": ["1", "2", "3", "4"]}`, "CONTINUE")
	out, err := New(model, WithMaxSteps(2)).Run(context.Background(), Request{Goal: "g"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Observations) != 2 || out.Result != "done: 2" {
		t.Fatalf("expected two bounded steps, got %+v", out)
	}
}

func TestRunRejectsEmptyGoal(t *testing.T) {
	_, err := New(newFakeModel("", "")).Run(context.Background(), Request{Goal: "  "})
	if !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestRunKeepsCallerRunID(t *testing.T) {
	ctx := core.WithRunID(context.Background(), "run-fixed")
	out, err := New(newFakeModel(`{"steps": []}`, "CONTINUE")).Run(ctx, Request{Goal: "g"})
	if err != nil || out.RunID != "run-fixed" {
		t.Fatalf("expected caller run id, got %v %v", out, err)
	}
}
