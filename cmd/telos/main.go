// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the telos CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/telos/pkg/config"
)

var version = "v0.1.0"

// Output formats accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

type globalFlags struct {
	ConfigPath string
	Profile    string
	Overrides  []string
	Output     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := &globalFlags{}
	root := newRootCmd(flags)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(root.ErrOrStderr(), err, flags.Output)
		os.Exit(1)
	}
}

func newRootCmd(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "telos",
		Short: "Autonomous goal-solving agent with long-term memory",
		Long: `telos plans, executes and reflects on a goal, then remembers the outcome.

Every run retrieves recent history and similar past interactions from memory,
asks the model for a plan, executes it step by step and persists the result.

Commands:
  run       Solve a single goal
  chat      Solve goals interactively, sharing one session
  memory    Inspect the long-term memory
  audit     List the phase transitions of past runs
  adapters  List the supported providers and backends`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch flags.Output {
			case outputText, outputJSON, outputYAML:
				return nil
			}
			return NewInvalidArgumentError("output", fmt.Sprintf("unknown output format %q", flags.Output))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.ConfigPath, "config", "c", "", "Config file (YAML)")
	pf.StringVar(&flags.Profile, "profile", "", "Config profile to layer over the file (dev, prod)")
	pf.StringArrayVar(&flags.Overrides, "set", nil, "Override a config key (key=value), repeatable")
	pf.StringVarP(&flags.Output, "output", "o", outputText, "Output format (text, json, yaml)")

	root.AddCommand(
		newRunCmd(flags),
		newChatCmd(flags),
		newMemoryCmd(flags),
		newAuditCmd(flags),
		newAdaptersCmd(flags),
		newVersionCmd(flags),
	)
	return root
}

func newVersionCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOutput(cmd.OutOrStdout(), flags.Output, map[string]string{"version": version}, func(w io.Writer) {
				fmt.Fprintf(w, "telos %s\n", version)
			})
		},
	}
}

// loadConfig reads and validates the configuration selected by the global flags.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadWithProfile(flags.ConfigPath, flags.Profile, flags.Overrides...)
	if err != nil {
		return nil, NewConfigError(err, flags.ConfigPath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigError(err, flags.ConfigPath)
	}
	return cfg, nil
}

// writeOutput renders value as JSON or YAML, or calls text for the default
// human readable format.
func writeOutput(w io.Writer, format string, value any, text func(io.Writer)) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}
