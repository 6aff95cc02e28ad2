// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/telos/pkg/errors"
)

// Adapter describes a provider or backend telos can be configured with.
type Adapter struct {
	Name        string   `json:"name" yaml:"name"`
	Type        string   `json:"type" yaml:"type"`
	Description string   `json:"description" yaml:"description"`
	ConfigKeys  []string `json:"config_keys,omitempty" yaml:"config_keys,omitempty"`
	Docs        string   `json:"docs,omitempty" yaml:"docs,omitempty"`
}

// adaptersRegistry is the catalog of known adapters.
var adaptersRegistry = []Adapter{
	// LLM Providers
	{
		Name:        "openai",
		Type:        "llm",
		Description: "OpenAI chat models (gpt-4o, gpt-4o-mini)",
		ConfigKeys:  []string{"llm.provider=openai", "llm.model", "llm.api_key", "llm.base_url"},
		Docs:        "https://platform.openai.com/docs",
	},
	{
		Name:        "anthropic",
		Type:        "llm",
		Description: "Anthropic Claude models",
		ConfigKeys:  []string{"llm.provider=anthropic", "llm.model", "llm.api_key", "llm.base_url"},
		Docs:        "https://docs.anthropic.com",
	},
	{
		Name:        "gemini",
		Type:        "llm",
		Description: "Google Gemini models",
		ConfigKeys:  []string{"llm.provider=gemini", "llm.model", "llm.api_key", "llm.base_url"},
		Docs:        "https://ai.google.dev/gemini-api/docs",
	},
	{
		Name:        "ollama",
		Type:        "llm",
		Description: "Local LLM inference with Ollama",
		ConfigKeys:  []string{"llm.provider=ollama", "llm.model", "llm.base_url"},
		Docs:        "https://ollama.ai",
	},

	// Embedders
	{
		Name:        "openai-embeddings",
		Type:        "embedder",
		Description: "OpenAI embeddings (text-embedding-3-small)",
		ConfigKeys:  []string{"embedder.provider=openai", "embedder.model", "embedder.api_key", "memory.dimensions"},
		Docs:        "https://platform.openai.com/docs/guides/embeddings",
	},
	{
		Name:        "gemini-embeddings",
		Type:        "embedder",
		Description: "Gemini embeddings (gemini-embedding-001)",
		ConfigKeys:  []string{"embedder.provider=gemini", "embedder.model", "embedder.api_key", "memory.dimensions"},
		Docs:        "https://ai.google.dev/gemini-api/docs/embeddings",
	},
	{
		Name:        "ollama-embeddings",
		Type:        "embedder",
		Description: "Local embeddings with Ollama",
		ConfigKeys:  []string{"embedder.provider=ollama", "embedder.model", "embedder.base_url"},
		Docs:        "https://ollama.ai",
	},

	// Memory Backends
	{
		Name:        "cosmos-nosql",
		Type:        "memory",
		Description: "Azure Cosmos DB for NoSQL with VectorDistance search",
		ConfigKeys:  []string{"memory.backend=auto", "memory.cosmos.endpoint", "memory.cosmos.key", "memory.database", "memory.collection"},
		Docs:        "pkg/memory/cosmos",
	},
	{
		Name:        "cosmos-mongo",
		Type:        "memory",
		Description: "Azure Cosmos DB for MongoDB vCore with cosmosSearch",
		ConfigKeys:  []string{"memory.backend=auto", "memory.connection_string", "memory.database", "memory.collection"},
		Docs:        "pkg/memory/mongo",
	},
	{
		Name:        "embedded",
		Type:        "memory",
		Description: "In-process vector store (chromem), lives as long as the process",
		ConfigKeys:  []string{"memory.backend=embedded", "memory.collection"},
		Docs:        "pkg/memory/chromem",
	},
	{
		Name:        "inmemory",
		Type:        "memory",
		Description: "In-process storage with brute-force similarity",
		ConfigKeys:  []string{"memory.backend=inmemory"},
		Docs:        "pkg/memory/inmemory.go",
	},

	// MCP Transports
	{
		Name:        "mcp-sse",
		Type:        "mcp",
		Description: "MCP tool servers over SSE",
		ConfigKeys:  []string{"mcp.servers", "mcp.timeout"},
		Docs:        "https://modelcontextprotocol.io",
	},

	// Audit
	{
		Name:        "audit-sqlite",
		Type:        "audit",
		Description: "Phase transitions of every run stored in SQLite",
		ConfigKeys:  []string{"audit.path"},
		Docs:        "pkg/audit",
	},

	// Telemetry
	{
		Name:        "otel-stdout",
		Type:        "telemetry",
		Description: "OpenTelemetry export to stdout",
		ConfigKeys:  []string{"telemetry.exporter=stdout"},
	},
	{
		Name:        "otel-otlp",
		Type:        "telemetry",
		Description: "OpenTelemetry export via OTLP gRPC",
		ConfigKeys:  []string{"telemetry.exporter=otlp", "telemetry.otlp_endpoint", "telemetry.otlp_insecure"},
	},
}

type adaptersListResult struct {
	Adapters []Adapter `json:"adapters" yaml:"adapters"`
	Total    int       `json:"total" yaml:"total"`
}

func newAdaptersCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapters",
		Short: "List the supported providers and backends",
	}

	var filterType string
	list := &cobra.Command{
		Use:   "list",
		Short: "List adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			adapters := filterAdapters(filterType)
			result := adaptersListResult{Adapters: adapters, Total: len(adapters)}
			return writeOutput(cmd.OutOrStdout(), flags.Output, result, func(w io.Writer) {
				printAdapters(w, adapters)
			})
		},
	}
	list.Flags().StringVar(&filterType, "type", "", "Filter by type: llm, embedder, memory, mcp, audit, telemetry")

	info := &cobra.Command{
		Use:   "info <name>",
		Short: "Show how to configure an adapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok := findAdapter(args[0])
			if !ok {
				te := errors.New(errors.CodeNotFound, fmt.Sprintf("adapter '%s' not found", args[0]), nil).
					WithContext("name", args[0])
				return NewCLIError(te, "run 'telos adapters list' to see the available adapters")
			}
			return writeOutput(cmd.OutOrStdout(), flags.Output, a, func(w io.Writer) {
				printAdapterInfo(w, a)
			})
		},
	}

	cmd.AddCommand(list, info)
	return cmd
}

func filterAdapters(adapterType string) []Adapter {
	if adapterType == "" {
		return adaptersRegistry
	}
	filtered := make([]Adapter, 0)
	for _, a := range adaptersRegistry {
		if a.Type == adapterType {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func findAdapter(name string) (Adapter, bool) {
	for _, a := range adaptersRegistry {
		if a.Name == name {
			return a, true
		}
	}
	return Adapter{}, false
}

func printAdapters(w io.Writer, adapters []Adapter) {
	if len(adapters) == 0 {
		fmt.Fprintln(w, "No adapters found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tDESCRIPTION")
	fmt.Fprintln(tw, "----\t----\t-----------")
	for _, a := range adapters {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Name, a.Type, a.Description)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nTotal: %d adapters\n", len(adapters))
	fmt.Fprintln(w, "\nUse 'telos adapters info <name>' for configuration details.")
}

func printAdapterInfo(w io.Writer, a Adapter) {
	fmt.Fprintf(w, "Name:        %s\n", a.Name)
	fmt.Fprintf(w, "Type:        %s\n", a.Type)
	fmt.Fprintf(w, "Description: %s\n", a.Description)
	if len(a.ConfigKeys) > 0 {
		fmt.Fprintln(w, "\nConfiguration:")
		for _, key := range a.ConfigKeys {
			fmt.Fprintf(w, "  %s\n", key)
		}
	}
	if a.Docs != "" {
		fmt.Fprintf(w, "\nDocs: %s\n", a.Docs)
	}
}
