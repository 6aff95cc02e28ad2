package planner

import (
	"context"
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/memory"
)

func fixed(output string, prompts *[]string) core.Invoker {
	return core.InvokerFunc(func(_ context.Context, prompt string) (core.Result, error) {
		if prompts != nil {
			*prompts = append(*prompts, prompt)
		}
		return core.Result{Output: output}, nil
	})
}

func TestGeneratePlanExtractsEmbeddedObject(t *testing.T) {
	var seen []string
	out := `Some text {"steps": ["find city", "report temp"]} trailing`
	steps, err := New().GeneratePlan(context.Background(), fixed(out, &seen), core.NewState("weather", "s1"))
	if err != nil {
		t.Fatalf("generate plan: %v", err)
	}
	if !reflect.DeepEqual(steps, []string{"find city", "report temp"}) {
		t.Fatalf("unexpected steps %v", steps)
	}
	if len(seen) != 1 {
		t.Fatalf("expected exactly one invocation, got %d", len(seen))
	}
	if !strings.Contains(seen[0], "Goal: weather") {
		t.Fatalf("prompt missing goal:\n%s", seen[0])
	}
}

func TestGeneratePlanIncludesContext(t *testing.T) {
	var seen []string
	state := core.NewState("weather in Rome", "s1")
	_ = state.SetContext(&memory.Context{
		RecentHistory: []memory.Record{{Goal: "weather in Paris", Result: "18C"}},
	})
	if _, err := New().GeneratePlan(context.Background(), fixed(`{"steps":[]}`, &seen), state); err != nil {
		t.Fatalf("generate plan: %v", err)
	}
	if !strings.Contains(seen[0], "weather in Paris → 18C") || !strings.Contains(seen[0], "avoid repeating failures") {
		t.Fatalf("prompt missing context:\n%s", seen[0])
	}
}

func TestGeneratePlanParseFailures(t *testing.T) {
	cases := map[string]string{
		"no object":     "I cannot plan this",
		"invalid json":  "{steps: [a, b]}",
		"missing steps": `{"plan": ["a"]}`,
		"mistyped":      `{"steps": "a then b"}`,
		"mixed items":   `{"steps": ["a", 2]}`,
		"null steps":    `{"steps": null}`,
		"reversed":      "} nothing {",
		"unterminated":  `{"steps": ["a"`,
	}
	for name, out := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New().GeneratePlan(context.Background(), fixed(out, nil), core.NewState("g", "s"))
			if !errors.HasCode(err, errors.CodePlanParse) {
				t.Fatalf("expected PLAN_PARSE_ERROR, got %v", err)
			}
			if te := errors.As(err); te.Context["output"] != out {
				t.Fatalf("expected raw output in context, got %v", te.Context["output"])
			}
		})
	}
}

func TestGeneratePlanInvocationFailure(t *testing.T) {
	boom := stderrors.New("model down")
	inv := core.InvokerFunc(func(context.Context, string) (core.Result, error) {
		return core.Result{}, boom
	})
	_, err := New().GeneratePlan(context.Background(), inv, core.NewState("g", "s"))
	if !errors.HasCode(err, errors.CodeExecution) || !stderrors.Is(err, boom) {
		t.Fatalf("expected EXECUTION_ERROR wrapping the cause, got %v", err)
	}
}

func TestParsePlanReadsWholeObject(t *testing.T) {
	steps, err := ParsePlan("```json\n{\"steps\": [\"use {braces}\"]}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(steps) != 1 || steps[0] != "use {braces}" {
		t.Fatalf("unexpected steps %v", steps)
	}
}

func TestParsePlanIgnoresTextAfterObject(t *testing.T) {
	cases := map[string]string{
		"prose braces":  `Plan: {"steps": ["a", "b"]} (note: replace {city} later)`,
		"closing brace": "{\"steps\": [\"a\", \"b\"]}\n\nDone }",
		"second object": `{"steps": ["a", "b"]} {"extra": true}`,
	}
	for name, out := range cases {
		t.Run(name, func(t *testing.T) {
			steps, err := ParsePlan(out)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !reflect.DeepEqual(steps, []string{"a", "b"}) {
				t.Fatalf("unexpected steps %v", steps)
			}
		})
	}
}
