package reflector

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/memory"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want core.Decision
	}{
		{"  continue  ", core.DecisionContinue},
		{"I think we should RETRY this", core.DecisionRetry},
		{"fail\n", core.DecisionFail},
		{"Retry", core.DecisionRetry},
		{"the task will FAIL unless we RETRY", core.DecisionRetry},
		{"CONTINUE, do not FAIL", core.DecisionContinue},
		{"no idea", core.DecisionContinue},
		{"", core.DecisionContinue},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestReflectPrompt(t *testing.T) {
	var prompt string
	inv := core.InvokerFunc(func(_ context.Context, p string) (core.Result, error) {
		prompt = p
		return core.Result{Output: "  continue  "}, nil
	})

	state := core.NewState("weather in Madrid", "s1")
	_ = state.SetPlan([]string{"find city", "report temp"})
	_ = state.Record("Madrid")
	_ = state.SetContext(&memory.Context{SimilarInteractions: []memory.Record{{Goal: "weather in Rome"}}})

	decision, err := New().Reflect(context.Background(), inv, state)
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if decision != core.DecisionContinue {
		t.Fatalf("unexpected decision %s", decision)
	}
	for _, want := range []string{"weather in Madrid", "1. find city", "1. Madrid", "HISTORICAL CONTEXT"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestReflectWithoutSimilarInteractions(t *testing.T) {
	var prompt string
	inv := core.InvokerFunc(func(_ context.Context, p string) (core.Result, error) {
		prompt = p
		return core.Result{Output: "FAIL"}, nil
	})
	decision, _ := New().Reflect(context.Background(), inv, core.NewState("g", "s"))
	if decision != core.DecisionFail {
		t.Fatalf("unexpected decision %s", decision)
	}
	if strings.Contains(prompt, "HISTORICAL CONTEXT") {
		t.Fatal("historical note must be omitted without similar interactions")
	}
}

func TestReflectInvocationFailure(t *testing.T) {
	inv := core.InvokerFunc(func(context.Context, string) (core.Result, error) {
		return core.Result{}, stderrors.New("timeout")
	})
	if _, err := New().Reflect(context.Background(), inv, core.NewState("g", "s")); !errors.HasCode(err, errors.CodeExecution) {
		t.Fatalf("expected EXECUTION_ERROR, got %v", err)
	}
}
