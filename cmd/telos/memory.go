// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jllopis/telos/pkg/agent"
	"github.com/jllopis/telos/pkg/config"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/memory"
)

func newMemoryCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect the long-term memory",
	}
	cmd.AddCommand(newMemoryCheckCmd(flags), newMemorySearchCmd(flags))
	return cmd
}

func newMemoryCheckCmd(flags *globalFlags) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Exercise every memory operation against the configured backend",
		Long: `Embed, store and read back a test interaction, reporting each step.

The test record is written to the configured collection under its own
session id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			rt, err := newRuntime(ctx, cfg, cmd.ErrOrStderr(), runtimeOptions{})
			if err != nil {
				return err
			}
			defer closeRuntime(cmd.ErrOrStderr(), rt)

			if sessionID == "" {
				sessionID = "memory-check-" + uuid.NewString()
			}
			report := checkMemory(ctx, rt.openMem, cfg, sessionID)
			report.Environment = config.Environ()

			if err := writeOutput(cmd.OutOrStdout(), flags.Output, report, report.print); err != nil {
				return err
			}
			return report.failure()
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id for the test record")
	return cmd
}

func newMemorySearchCmd(flags *globalFlags) *cobra.Command {
	var limit int
	var minScore float64

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "List the stored interactions most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Memory.SimilarLimit
			}
			if !cmd.Flags().Changed("min-score") {
				minScore = cfg.Memory.MinScore
			}
			if limit <= 0 {
				return NewInvalidArgumentError("limit", "--limit must be positive")
			}

			rt, err := newRuntime(ctx, cfg, cmd.ErrOrStderr(), runtimeOptions{})
			if err != nil {
				return err
			}
			defer closeRuntime(cmd.ErrOrStderr(), rt)

			res, err := searchMemory(ctx, rt.openMem, strings.Join(args, " "), limit, minScore)
			if err != nil {
				return err
			}
			if res.Degraded != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s tier: %v\n", res.Tier, res.Degraded)
			}
			return writeOutput(cmd.OutOrStdout(), flags.Output, res.Records, func(w io.Writer) {
				printRecords(w, res.Records)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", memory.DefaultSimilarLimit, "Maximum records to return, memory.similar_limit when unset")
	cmd.Flags().Float64Var(&minScore, "min-score", memory.DefaultMinScore, "Lowest similarity to accept, memory.min_score when unset")
	return cmd
}

// checkStep is one operation of a memory check.
type checkStep struct {
	Step   string `json:"step" yaml:"step"`
	OK     bool   `json:"ok" yaml:"ok"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
	err    error
}

type checkReport struct {
	Backend     string          `json:"backend" yaml:"backend"`
	SessionID   string          `json:"session_id" yaml:"session_id"`
	Environment map[string]bool `json:"environment" yaml:"environment"`
	Steps       []checkStep     `json:"steps" yaml:"steps"`
	OK          bool            `json:"ok" yaml:"ok"`
}

const checkGoal = "Test goal for memory check"

// checkMemory runs open, embed, store, history, similar, context and close in
// order. A failed open, embed or store ends the check. Read failures are
// reported and the check goes on.
func checkMemory(ctx context.Context, open agent.MemoryOpener, cfg *config.Config, sessionID string) *checkReport {
	report := &checkReport{Backend: cfg.Memory.Backend, SessionID: sessionID}
	step := func(name string, err error, detail string) bool {
		s := checkStep{Step: name, OK: err == nil, Detail: detail, err: err}
		if err != nil {
			s.Detail = err.Error()
		}
		report.Steps = append(report.Steps, s)
		return err == nil
	}
	defer func() {
		report.OK = true
		for _, s := range report.Steps {
			report.OK = report.OK && s.OK
		}
	}()

	if open == nil {
		step("open", errors.New(errors.CodeConfiguration, "memory is disabled", nil), "")
		return report
	}
	store, err := open(ctx)
	if !step("open", err, "") {
		return report
	}
	report.Backend = string(store.ClientType())

	vec, err := store.GenerateEmbedding(ctx, checkGoal)
	if !step("embed", err, fmt.Sprintf("%d dimensions", len(vec))) {
		_ = store.Close(ctx)
		return report
	}

	err = store.StoreInteraction(ctx, memory.Interaction{
		SessionID:    sessionID,
		Goal:         checkGoal,
		Plan:         []string{"Step 1: Test", "Step 2: Verify"},
		Observations: []string{"Observation 1", "Observation 2"},
		Result:       "Memory check completed successfully",
		Metadata:     map[string]any{"test": true},
	})
	if !step("store", err, "1 record") {
		_ = store.Close(ctx)
		return report
	}

	history := store.GetRecentHistory(ctx, sessionID, cfg.Memory.HistoryLimit)
	step("history", history.Degraded, fmt.Sprintf("%d records", len(history.Records)))

	similar := store.RetrieveSimilarInteractions(ctx, checkGoal, cfg.Memory.SimilarLimit, cfg.Memory.MinScore)
	var similarErr error
	if similar.Tier == memory.TierNone {
		similarErr = similar.Degraded
	}
	detail := fmt.Sprintf("%d records via %s", len(similar.Records), similar.Tier)
	if similar.Degraded != nil && similarErr == nil {
		detail += " (fallback: " + similar.Degraded.Error() + ")"
	}
	step("similar", similarErr, detail)

	mc, errs := store.GetRelevantContext(ctx, checkGoal, sessionID, cfg.Memory.HistoryLimit, cfg.Memory.SimilarLimit)
	detail = fmt.Sprintf("%d history, %d similar", len(mc.RecentHistory), len(mc.SimilarInteractions))
	if len(errs) > 0 {
		detail += fmt.Sprintf(" (%d degraded)", len(errs))
	}
	step("context", nil, detail)

	step("close", store.Close(ctx), "")
	return report
}

func (r *checkReport) print(w io.Writer) {
	fmt.Fprintf(w, "Backend: %s\n", r.Backend)
	fmt.Fprintf(w, "Session: %s\n", r.SessionID)

	names := make([]string, 0, len(r.Environment))
	for name := range r.Environment {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "Environment:")
	for _, name := range names {
		state := "not set"
		if r.Environment[name] {
			state = "set"
		}
		fmt.Fprintf(w, "  %s: %s\n", name, state)
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tDETAIL")
	for _, s := range r.Steps {
		status := "ok"
		if !s.OK {
			status = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Step, status, s.Detail)
	}
	tw.Flush()
}

// failure returns the error of the first failed step.
func (r *checkReport) failure() error {
	for _, s := range r.Steps {
		if s.OK {
			continue
		}
		code := errors.CodeOf(s.err)
		if code == "" {
			code = errors.CodePersistence
		}
		return errors.New(code, "memory check failed at "+s.Step, s.err)
	}
	return nil
}

func searchMemory(ctx context.Context, open agent.MemoryOpener, query string, limit int, minScore float64) (memory.Retrieval, error) {
	if open == nil {
		return memory.Retrieval{}, errors.New(errors.CodeConfiguration, "memory is disabled", nil).
			WithContext("key", "memory.enabled")
	}
	store, err := open(ctx)
	if err != nil {
		return memory.Retrieval{}, err
	}
	defer store.Close(ctx)
	return store.RetrieveSimilarInteractions(ctx, query, limit, minScore), nil
}

func printRecords(w io.Writer, records []memory.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No interactions found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tSESSION\tTIMESTAMP\tGOAL\tRESULT")
	for _, rec := range records {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\t%s\n", rec.Score, rec.SessionID, rec.Timestamp, truncate(rec.Goal, 40), truncate(rec.Result, 50))
	}
	tw.Flush()
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}
