// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent runs goals end to end: it retrieves memory, plans, executes,
// reflects and persists the outcome of every run.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/audit"
	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/executor"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/planner"
	"github.com/jllopis/telos/pkg/prompts"
	"github.com/jllopis/telos/pkg/reflector"
	"github.com/jllopis/telos/pkg/resilience"
	"github.com/jllopis/telos/pkg/telemetry"
)

// Fixed results for decisions that do not surface an observation.
const (
	ResultFailed         = "Agent failed to complete the task."
	ResultNeedsRetry     = "Agent needs to refine its approach to complete the task."
	ResultNoObservations = "Agent completed the plan without producing any observations."
)

// MemoryOpener opens the memory store for one run.
type MemoryOpener func(ctx context.Context) (*memory.Store, error)

// Request is the input of Run.
type Request struct {
	Goal string
	// SessionID groups runs of one conversation. Empty starts a new session.
	SessionID string
}

// Outcome describes a finished run.
type Outcome struct {
	RunID        string        `json:"run_id" yaml:"run_id"`
	SessionID    string        `json:"session_id" yaml:"session_id"`
	Goal         string        `json:"goal" yaml:"goal"`
	Result       string        `json:"result" yaml:"result"`
	Decision     core.Decision `json:"decision,omitempty" yaml:"decision,omitempty"`
	Phase        core.Phase    `json:"phase" yaml:"phase"`
	Plan         []string      `json:"plan" yaml:"plan"`
	Observations []string      `json:"observations" yaml:"observations"`
	Memory       bool          `json:"memory" yaml:"memory"`
	Persisted    bool          `json:"persisted" yaml:"persisted"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}

// Orchestrator drives runs through the phase machine. It holds no per-run
// state and may serve concurrent runs.
type Orchestrator struct {
	invoker   core.Invoker
	openMem   MemoryOpener
	planner   *planner.Planner
	executor  *executor.Executor
	reflector *reflector.Reflector
	audit     audit.Store

	maxSteps        int
	historyLimit    int
	similarLimit    int
	persistAttempts int
	persistDelay    time.Duration

	log        *slog.Logger
	tracer     trace.Tracer
	runMetrics *telemetry.RunMetrics
	errMetrics *telemetry.ErrorMetrics

	prompts *prompts.Set
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMemory enables long-term memory. A nil opener disables it.
func WithMemory(open MemoryOpener) Option {
	return func(o *Orchestrator) { o.openMem = open }
}

// WithPrompts sets the templates used by the planner, executor and reflector.
func WithPrompts(set *prompts.Set) Option {
	return func(o *Orchestrator) { o.prompts = set }
}

// WithAudit records every phase transition in store.
func WithAudit(store audit.Store) Option {
	return func(o *Orchestrator) { o.audit = store }
}

// WithMaxSteps bounds the executed steps per run.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithRetrievalLimits sets how many history and similar records feed the planner.
func WithRetrievalLimits(history, similar int) Option {
	return func(o *Orchestrator) {
		if history > 0 {
			o.historyLimit = history
		}
		if similar > 0 {
			o.similarLimit = similar
		}
	}
}

// WithPersistAttempts sets how many times storing an interaction is tried.
func WithPersistAttempts(n int, delay time.Duration) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.persistAttempts = n
		}
		if delay >= 0 {
			o.persistDelay = delay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.log = logger
		}
	}
}

// WithMetrics records run and error metrics.
func WithMetrics(runs *telemetry.RunMetrics, errs *telemetry.ErrorMetrics) Option {
	return func(o *Orchestrator) {
		o.runMetrics = runs
		o.errMetrics = errs
	}
}

// New returns an Orchestrator that sends every prompt to invoker.
func New(invoker core.Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		invoker:         invoker,
		maxSteps:        executor.DefaultMaxSteps,
		historyLimit:    memory.DefaultHistoryLimit,
		similarLimit:    memory.DefaultSimilarLimit,
		persistAttempts: 1,
		persistDelay:    200 * time.Millisecond,
		log:             slog.Default(),
		tracer:          otel.Tracer("telos/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.planner = planner.New(planner.WithPrompts(o.prompts), planner.WithLogger(o.log))
	o.executor = executor.New(executor.WithPrompts(o.prompts), executor.WithLogger(o.log))
	o.reflector = reflector.New(reflector.WithPrompts(o.prompts), reflector.WithLogger(o.log))
	return o
}

// run carries the mutable state of one Run call.
type run struct {
	o        *Orchestrator
	state    *core.State
	phase    core.Phase
	store    *memory.Store
	audit    *audit.Recorder
	log      *slog.Logger
	decision core.Decision
}

// Run solves req.Goal.
//
// Planning, execution and reflection failures end the run: the error result
// "Error: <err>" is persisted on a best-effort basis and the original error
// is returned together with the partial Outcome. Memory failures never end a
// run.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.Goal) == "" {
		return nil, NewInvalidInputError("goal is required")
	}
	start := time.Now()
	ctx, runID := core.EnsureRunID(ctx)
	state := core.NewState(req.Goal, req.SessionID)
	ctx = core.WithSessionID(ctx, state.SessionID)

	ctx, span := o.tracer.Start(ctx, "Orchestrator.Run",
		trace.WithAttributes(telemetry.RunAttributes(runID, state.SessionID, state.Goal)...))
	defer span.End()

	r := &run{
		o:     o,
		state: state,
		phase: core.PhaseInit,
		audit: audit.NewRecorder(o.audit, runID, state.SessionID, o.log),
		log:   o.log.With(slog.String("run_id", runID), slog.String("session_id", state.SessionID)),
	}
	r.log.InfoContext(ctx, "orchestrator.run.start", slog.String("goal", state.Goal))
	r.audit.Record(ctx, string(core.PhaseInit), audit.StatusStarted, state.Goal)

	r.openMemory(ctx)
	defer r.closeMemory(ctx)

	out := &Outcome{RunID: runID, SessionID: state.SessionID, Goal: state.Goal, Memory: r.store != nil}
	result, err := r.solve(ctx)
	out.Plan = append([]string{}, state.Plan...)
	out.Observations = append([]string{}, state.Observations...)
	out.Decision = r.decision

	if err != nil {
		failedIn := r.phase
		out.Result = "Error: " + err.Error()
		out.Phase = core.PhaseErrorPersist
		out.Persisted = r.finish(ctx, core.PhaseErrorPersist, out.Result, map[string]any{
			"error":         true,
			"error_message": err.Error(),
			"phase":         string(failedIn),
		})
		out.Duration = time.Since(start)

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(telemetry.AttrPhase, string(failedIn)))
		o.errMetrics.RecordErrorMetric(ctx, err, "orchestrator")
		o.runMetrics.RecordRun(ctx, "error", len(state.Observations))
		r.log.ErrorContext(ctx, "orchestrator.run.error",
			slog.String("phase", string(failedIn)),
			slog.String("error", err.Error()),
		)
		return out, err
	}

	out.Result = result
	out.Phase = r.phase
	out.Persisted = r.finish(ctx, core.PhasePersist, result, map[string]any{
		"decision":       string(r.decision),
		"steps_executed": len(state.Observations),
		"plan_length":    len(state.Plan),
		"run_id":         runID,
	})
	out.Duration = time.Since(start)

	span.SetAttributes(telemetry.PhaseAttributes(string(out.Phase), len(state.Plan), len(state.Observations))...)
	span.SetAttributes(attribute.String(telemetry.AttrDecision, string(r.decision)))
	span.SetStatus(codes.Ok, "")
	o.runMetrics.RecordRun(ctx, "ok", len(state.Observations))
	r.log.InfoContext(ctx, "orchestrator.run.complete",
		slog.String("decision", string(r.decision)),
		slog.Int("steps_executed", len(state.Observations)),
		slog.Duration("duration", out.Duration),
	)
	return out, nil
}

// solve runs the fatal phases and maps the decision to the run result.
func (r *run) solve(ctx context.Context) (string, error) {
	if err := r.enter(ctx, core.PhaseContextRetrieval); err != nil {
		return "", err
	}
	r.retrieveContext(ctx)

	if err := r.enter(ctx, core.PhasePlanning); err != nil {
		return "", err
	}
	if err := r.phaseSpan(ctx, func(ctx context.Context) error {
		steps, err := r.o.planner.GeneratePlan(ctx, r.o.invoker, r.state)
		if err != nil {
			return err
		}
		return r.state.SetPlan(steps)
	}); err != nil {
		return "", err
	}
	r.complete(ctx, strings.Join(r.state.Plan, " | "))

	if err := r.enter(ctx, core.PhaseExecution); err != nil {
		return "", err
	}
	if err := r.phaseSpan(ctx, func(ctx context.Context) error {
		return r.o.executor.ExecutePlan(ctx, r.o.invoker, r.state, r.o.maxSteps)
	}); err != nil {
		return "", err
	}
	if err := r.state.CheckInvariants(); err != nil {
		return "", err
	}
	r.complete(ctx, "")

	if err := r.enter(ctx, core.PhaseReflection); err != nil {
		return "", err
	}
	if err := r.phaseSpan(ctx, func(ctx context.Context) error {
		decision, err := r.o.reflector.Reflect(ctx, r.o.invoker, r.state)
		r.decision = decision
		return err
	}); err != nil {
		return "", err
	}
	r.o.runMetrics.RecordDecision(ctx, string(r.decision))
	r.complete(ctx, string(r.decision))

	if err := r.enter(ctx, r.decision.Phase()); err != nil {
		return "", err
	}
	switch r.decision {
	case core.DecisionFail:
		return ResultFailed, nil
	case core.DecisionRetry:
		return ResultNeedsRetry, nil
	}
	if last, ok := r.state.LastObservation(); ok {
		return last, nil
	}
	return ResultNoObservations, nil
}

// openMemory opens the store. Any failure disables memory for the run.
func (r *run) openMemory(ctx context.Context) {
	if r.o.openMem == nil {
		return
	}
	store, err := r.o.openMem(ctx)
	if err != nil {
		wrapped := WrapMemoryError(err, "open")
		r.o.errMetrics.RecordErrorMetric(ctx, wrapped, "memory")
		r.log.WarnContext(ctx, "orchestrator.memory.disabled", slog.String("error", err.Error()))
		r.audit.Record(ctx, string(core.PhaseInit), audit.StatusDegraded, "memory disabled: "+err.Error())
		return
	}
	r.store = store
}

func (r *run) closeMemory(ctx context.Context) {
	if r.store == nil {
		return
	}
	if err := r.store.Close(context.WithoutCancel(ctx)); err != nil {
		r.log.WarnContext(ctx, "orchestrator.memory.close_failed", slog.String("error", err.Error()))
	}
}

func (r *run) retrieveContext(ctx context.Context) {
	if r.store == nil {
		r.complete(ctx, "memory disabled")
		return
	}
	mc, errs := r.store.GetRelevantContext(ctx, r.state.Goal, r.state.SessionID, r.o.historyLimit, r.o.similarLimit)
	for _, err := range errs {
		r.log.WarnContext(ctx, "orchestrator.context.degraded", slog.String("error", err.Error()))
	}
	if !mc.Empty() {
		// The state is fresh, so the context cannot have been set before.
		_ = r.state.SetContext(mc)
	}
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		r.audit.Record(ctx, string(core.PhaseContextRetrieval), audit.StatusDegraded, strings.Join(msgs, "; "))
		return
	}
	var history, similar int
	if mc != nil {
		history, similar = len(mc.RecentHistory), len(mc.SimilarInteractions)
	}
	r.complete(ctx, fmt.Sprintf("history=%d similar=%d", history, similar))
}

// finish moves to persistPhase, stores the interaction and ends the run. It
// reports whether the interaction was stored.
func (r *run) finish(ctx context.Context, persistPhase core.Phase, result string, metadata map[string]any) bool {
	if err := r.enter(ctx, persistPhase); err != nil {
		r.log.ErrorContext(ctx, "orchestrator.transition.failed", slog.String("error", err.Error()))
	}
	stored := r.persist(ctx, result, metadata)
	if err := r.enter(ctx, core.PhaseDone); err != nil {
		r.log.ErrorContext(ctx, "orchestrator.transition.failed", slog.String("error", err.Error()))
	}
	return stored
}

// persist stores the interaction. Failures are logged and swallowed.
func (r *run) persist(ctx context.Context, result string, metadata map[string]any) bool {
	if r.store == nil {
		r.complete(ctx, "memory disabled")
		return false
	}
	ctx = context.WithoutCancel(ctx)
	in := memory.Interaction{
		SessionID:    r.state.SessionID,
		Goal:         r.state.Goal,
		Plan:         r.state.Plan,
		Observations: r.state.Observations,
		Result:       result,
		Metadata:     metadata,
	}
	retry := resilience.DefaultRetryConfig().
		WithMaxAttempts(r.o.persistAttempts).
		WithInitialDelay(r.o.persistDelay).
		WithIsRecoverable(func(error) bool { return true }).
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			r.log.DebugContext(ctx, "orchestrator.persist.retry",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
		})
	res, err := retry.Run(ctx, func() error {
		return r.store.StoreInteraction(ctx, in)
	})
	if err != nil {
		wrapped := WrapMemoryError(err, "store")
		r.o.errMetrics.RecordErrorMetric(ctx, wrapped, "memory")
		r.log.WarnContext(ctx, "orchestrator.persist.failed",
			slog.Int("attempts", res.Attempts),
			slog.String("error", err.Error()),
		)
		r.audit.Record(ctx, string(r.phase), audit.StatusDegraded, err.Error())
		return false
	}
	if res.Recovered() {
		r.o.errMetrics.RecordRecovery(ctx, errors.CodeOf(res.Errors[len(res.Errors)-1]))
	}
	r.complete(ctx, "stored")
	return true
}

// enter moves the machine to next. A terminal phase is completed on entry.
func (r *run) enter(ctx context.Context, next core.Phase) error {
	if !r.phase.CanTransition(next) {
		return newTransitionError(r.phase, next)
	}
	r.log.DebugContext(ctx, "orchestrator.phase", slog.String("from", string(r.phase)), slog.String("to", string(next)))
	r.phase = next
	r.audit.Record(ctx, string(next), audit.StatusStarted, "")
	if next.Terminal() {
		r.complete(ctx, "run ended")
	}
	return nil
}

func (r *run) complete(ctx context.Context, detail string) {
	r.audit.Record(ctx, string(r.phase), audit.StatusCompleted, detail)
}

// phaseSpan runs fn in a child span named after the current phase.
func (r *run) phaseSpan(ctx context.Context, fn func(context.Context) error) error {
	ctx, span := r.o.tracer.Start(ctx, "Orchestrator."+phaseSpanName(r.phase),
		trace.WithAttributes(attribute.String(telemetry.AttrPhase, string(r.phase))))
	defer span.End()

	err := fn(ctx)
	span.SetAttributes(telemetry.PhaseAttributes(string(r.phase), len(r.state.Plan), len(r.state.Observations))...)
	if err != nil {
		err = WrapPhaseError(err, r.phase)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.audit.Record(ctx, string(r.phase), audit.StatusFailed, err.Error())
	}
	return err
}

func phaseSpanName(p core.Phase) string {
	switch p {
	case core.PhasePlanning:
		return "Plan"
	case core.PhaseExecution:
		return "Execute"
	case core.PhaseReflection:
		return "Reflect"
	}
	return string(p)
}
