// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jllopis/telos/pkg/agent"
	"github.com/jllopis/telos/pkg/config"
)

// solveFunc runs one goal within a session.
type solveFunc func(ctx context.Context, goal, sessionID string) (*agent.Outcome, error)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var sessionID string
	var details bool

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Solve a single goal",
		Long: `Solve a single goal. Words after the command are joined into the goal.

Runs sharing --session see each other in their recent history.`,
		Example: `  telos run "What is the weather in Madrid?"
  telos run --session demo -o json "Summarise yesterday's findings"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg, cmd.ErrOrStderr(), runtimeOptions{agent: true})
			if err != nil {
				return err
			}
			defer closeRuntime(cmd.ErrOrStderr(), rt)

			goal := strings.Join(args, " ")
			out, runErr := rt.Solve(cmd.Context(), goal, sessionID)
			if out != nil && (runErr == nil || flags.Output != outputText) {
				if err := printOutcome(cmd.OutOrStdout(), flags.Output, out, details); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to continue (default: a new session)")
	cmd.Flags().BoolVar(&details, "details", false, "Show the plan, observations and decision")
	return cmd
}

func newChatCmd(flags *globalFlags) *cobra.Command {
	var sessionID string
	var watch bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Solve goals interactively, sharing one session",
		Long: `Read goals line by line and solve each one. Type 'exit' or 'quit' to leave.

Every goal of the conversation belongs to the same session, so later goals
are planned with the earlier ones in their recent history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			rt, err := newRuntime(ctx, cfg, cmd.ErrOrStderr(), runtimeOptions{agent: true})
			if err != nil {
				return err
			}
			defer closeRuntime(cmd.ErrOrStderr(), rt)

			if watch {
				stop, err := watchConfig(ctx, flags, rt, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer stop()
			}

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			r := &repl{
				in:          cmd.InOrStdin(),
				out:         cmd.OutOrStdout(),
				errOut:      cmd.ErrOrStderr(),
				format:      flags.Output,
				sessionID:   sessionID,
				interactive: flags.Output == outputText && stdinIsTerminal(),
				solve:       rt.Solve,
			}
			return r.loop(ctx)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to continue (default: a new session)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the config file when it changes")
	return cmd
}

// repl solves one goal per input line until exit, quit or end of input.
type repl struct {
	in          io.Reader
	out         io.Writer
	errOut      io.Writer
	format      string
	sessionID   string
	interactive bool
	solve       solveFunc
}

func (r *repl) loop(ctx context.Context) error {
	if r.interactive {
		fmt.Fprintf(r.out, "Session %s. Type 'exit' or Ctrl+C to quit.\n", r.sessionID)
		fmt.Fprintln(r.out, "---")
	}

	scanner := bufio.NewScanner(r.in)
	for {
		if r.interactive {
			fmt.Fprint(r.out, "\n> ")
		}

		select {
		case <-ctx.Done():
			if r.interactive {
				fmt.Fprintln(r.out, "\nGoodbye!")
			}
			return nil
		default:
		}

		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if cmd := strings.ToLower(input); cmd == "exit" || cmd == "quit" {
			if r.interactive {
				fmt.Fprintln(r.out, "Goodbye!")
			}
			return nil
		}

		out, err := r.solve(ctx, input, r.sessionID)
		if err != nil {
			printError(r.errOut, err, r.format)
			if r.format == outputText || out == nil {
				continue
			}
		}
		if err := printOutcome(r.out, r.format, out, false); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// watchConfig reloads the runtime whenever the config file or its profile
// variant changes. The returned func stops watching.
func watchConfig(ctx context.Context, flags *globalFlags, rt *runtime, errOut io.Writer) (func(), error) {
	if flags.ConfigPath == "" {
		return nil, NewInvalidArgumentError("watch", "--watch needs --config")
	}
	w, err := config.NewWatcher(flags.ConfigPath, flags.Profile, flags.Overrides,
		config.WithWatchInterval(time.Second),
		config.WithWatchLogger(rt.log),
	)
	if err != nil {
		return nil, NewConfigError(err, flags.ConfigPath)
	}
	w.OnChange(func(cfg *config.Config) {
		if err := rt.Reconfigure(ctx, cfg); err != nil {
			printError(errOut, err, flags.Output)
			return
		}
		fmt.Fprintln(errOut, "[config reloaded]")
	})
	w.Start(ctx)
	return w.Stop, nil
}

func printOutcome(w io.Writer, format string, out *agent.Outcome, details bool) error {
	return writeOutput(w, format, out, func(w io.Writer) {
		fmt.Fprintln(w, out.Result)
		if !details {
			return
		}
		fmt.Fprintf(w, "\nRun:      %s\n", out.RunID)
		fmt.Fprintf(w, "Session:  %s\n", out.SessionID)
		fmt.Fprintf(w, "Decision: %s\n", out.Decision)
		fmt.Fprintf(w, "Duration: %s\n", out.Duration.Round(time.Millisecond))
		fmt.Fprintln(w, "Plan:")
		for i, step := range out.Plan {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step)
		}
		fmt.Fprintln(w, "Observations:")
		for i, obs := range out.Observations {
			fmt.Fprintf(w, "  %d. %s\n", i+1, obs)
		}
		if !out.Memory {
			fmt.Fprintln(w, "Memory:   unavailable")
		}
	})
}

func closeRuntime(w io.Writer, rt *runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Close(ctx); err != nil {
		fmt.Fprintf(w, "shutdown: %v\n", err)
	}
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
