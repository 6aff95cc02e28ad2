// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/telos/pkg/audit"
)

func newAuditCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List the phase transitions of past runs",
		Long: `List the phase transitions recorded by previous runs.

The trail outlives a process only when audit.path names a SQLite file.`,
	}
	cmd.AddCommand(newAuditListCmd(flags))
	return cmd
}

func newAuditListCmd(flags *globalFlags) *cobra.Command {
	var filter audit.Filter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit events",
		Example: `  telos audit list --run 3f2a...
  telos --set audit.path=telos.db audit list --session demo --status failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cfg.Audit.Path == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: audit.path is not set, the trail only covers this process")
			}
			store, release, err := openAudit(cfg.Audit.Path)
			if err != nil {
				return err
			}
			defer release(cmd.Context())

			events, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), flags.Output, events, func(w io.Writer) {
				printEvents(w, events)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.RunID, "run", "", "Only events of this run")
	f.StringVar(&filter.SessionID, "session", "", "Only events of this session")
	f.StringVar(&filter.Phase, "phase", "", "Only events of this phase (PLANNING, EXECUTION, ...)")
	f.StringVar(&filter.Status, "status", "", "Only events with this status (started, completed, degraded, failed)")
	f.IntVar(&filter.Limit, "limit", 0, "Maximum events to list (0 lists all)")
	return cmd
}

func printEvents(w io.Writer, events []audit.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No audit events found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tRUN\tPHASE\tSTATUS\tDETAIL")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ev.At.Format(time.RFC3339), shortID(ev.RunID), ev.Phase, ev.Status, truncate(ev.Detail, 60))
	}
	tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
