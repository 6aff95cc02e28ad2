// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads telos settings with koanf.
//
// Sources are applied in order: built-in defaults, an optional YAML file, the
// legacy environment names of the memory deployment, TELOS_* environment
// variables and finally key=value overrides from the command line.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/telemetry"
)

// EnvPrefix prefixes environment overrides: TELOS_MEMORY_DATABASE sets
// memory.database.
const EnvPrefix = "TELOS_"

// Memory backend selectors.
const (
	BackendAuto     = "auto"
	BackendEmbedded = "embedded"
	BackendInMemory = "inmemory"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Memory    MemoryConfig    `koanf:"memory"`
	Embedder  EmbedderConfig  `koanf:"embedder"`
	Agent     AgentConfig     `koanf:"agent"`
	MCP       MCPConfig       `koanf:"mcp"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Audit     AuditConfig     `koanf:"audit"`
	Prompts   PromptsConfig   `koanf:"prompts"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider      string `koanf:"provider"` // openai, anthropic, gemini, ollama
	Model         string `koanf:"model"`
	BaseURL       string `koanf:"base_url"`
	APIKey        string `koanf:"api_key"`
	MaxToolRounds int    `koanf:"max_tool_rounds"`
}

type MemoryConfig struct {
	Enabled          bool         `koanf:"enabled"`
	Backend          string       `koanf:"backend"` // auto, embedded, inmemory
	Cosmos           CosmosConfig `koanf:"cosmos"`
	ConnectionString string       `koanf:"connection_string"`
	Database         string       `koanf:"database"`
	Collection       string       `koanf:"collection"`
	Dimensions       int          `koanf:"dimensions"`
	HistoryLimit     int          `koanf:"history_limit"`
	SimilarLimit     int          `koanf:"similar_limit"`
	MinScore         float64      `koanf:"min_score"`
	PersistAttempts  int          `koanf:"persist_attempts"`
}

type CosmosConfig struct {
	Endpoint string `koanf:"endpoint"`
	Key      string `koanf:"key"`
}

type EmbedderConfig struct {
	Provider  string `koanf:"provider"` // openai, gemini, ollama
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    string `koanf:"api_key"`
	CacheSize int64  `koanf:"cache_size"`
}

type AgentConfig struct {
	MaxSteps int `koanf:"max_steps"`
}

type MCPConfig struct {
	Servers []string      `koanf:"servers"`
	Timeout time.Duration `koanf:"timeout"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type AuditConfig struct {
	Path string `koanf:"path"` // empty keeps events in memory
}

type PromptsConfig struct {
	File string `koanf:"file"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"llm.provider":        "openai",
	"llm.model":           "",
	"llm.base_url":        "",
	"llm.api_key":         "",
	"llm.max_tool_rounds": 5,

	"memory.enabled":           true,
	"memory.backend":           BackendAuto,
	"memory.cosmos.endpoint":   "",
	"memory.cosmos.key":        "",
	"memory.connection_string": "",
	"memory.database":          memory.DefaultDatabase,
	"memory.collection":        memory.DefaultCollection,
	"memory.dimensions":        memory.DefaultDimensions,
	"memory.history_limit":     memory.DefaultHistoryLimit,
	"memory.similar_limit":     memory.DefaultSimilarLimit,
	"memory.min_score":         memory.DefaultMinScore,
	"memory.persist_attempts":  1,

	"embedder.provider":   "openai",
	"embedder.model":      "",
	"embedder.base_url":   "",
	"embedder.api_key":    "",
	"embedder.cache_size": 0,

	"agent.max_steps": 10,

	"mcp.servers": []string{"http://localhost:8000/sse"},
	"mcp.timeout": 30 * time.Second,

	"telemetry.exporter":      telemetry.ExporterNone,
	"telemetry.otlp_endpoint": "localhost:4317",
	"telemetry.otlp_insecure": true,

	"audit.path":   "",
	"prompts.file": "",
}

// legacyEnv maps the environment names used by existing memory deployments.
// The OpenAI SDKs read OPENAI_API_KEY on their own when llm.api_key is empty.
var legacyEnv = map[string]string{
	"COSMOS_ENDPOINT":                "memory.cosmos.endpoint",
	"COSMOS_KEY":                     "memory.cosmos.key",
	"AZURE_COSMOS_CONNECTION_STRING": "memory.connection_string",
	"OPENAI_API_KEY":                 "embedder.api_key",
}

// Load reads the configuration. path may be empty; overrides are key=value
// pairs whose values are decoded as YAML scalars or flow collections.
func Load(path string, overrides ...string) (*Config, error) {
	return LoadWithProfile(path, "", overrides...)
}

// LoadWithProfile is Load with a profile file layered over path: profile
// "dev" with path config.yaml also reads config.dev.yaml when it exists.
func LoadWithProfile(path, profile string, overrides ...string) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, errors.New(errors.CodeConfiguration, "set default", err).WithContext("key", key)
		}
	}

	for _, p := range []string{path, profileConfigPath(path, profile)} {
		if p == "" {
			continue
		}
		if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeConfiguration, "load config file", err).WithContext("path", p)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", func(name, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return legacyEnv[name], value
	}), nil); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "load legacy environment", err)
	}

	known := envKeys(k.Keys())
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, any) {
		key, ok := known[strings.TrimPrefix(name, EnvPrefix)]
		if !ok {
			return "", nil
		}
		switch k.Get(key).(type) {
		case []string, []any:
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "load environment", err)
	}

	for _, raw := range overrides {
		key, value, err := ParseOverride(raw)
		if err != nil {
			return nil, err
		}
		if err := k.Set(key, value); err != nil {
			return nil, errors.New(errors.CodeConfiguration, "apply override", err).WithContext("key", key)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeConfiguration, "decode config", err)
	}
	return &cfg, nil
}

// ParseOverride splits "key=value" and decodes value as YAML, so
// "memory.enabled=false" yields a bool and "mcp.servers=[a, b]" a list.
func ParseOverride(raw string) (string, any, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, errors.New(errors.CodeInvalidInput, "override must be key=value", nil).
			WithContext("override", raw)
	}
	var decoded any
	if err := yamlv3.Unmarshal([]byte(value), &decoded); err != nil || decoded == nil {
		return key, value, nil
	}
	return key, decoded, nil
}

// profileConfigPath returns the profile variant of base if it exists.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

// envKeys indexes koanf keys by their environment spelling without prefix:
// memory.cosmos.endpoint becomes MEMORY_COSMOS_ENDPOINT.
func envKeys(keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		out[strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}
	return out
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate rejects unknown providers and non-positive limits.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(oneOf(c.Log.Format, "text", "json"), "log.format %q must be text or json", c.Log.Format)
	check(oneOf(c.LLM.Provider, "openai", "anthropic", "gemini", "ollama"), "llm.provider %q is not supported", c.LLM.Provider)
	check(c.LLM.MaxToolRounds > 0, "llm.max_tool_rounds must be positive")
	check(oneOf(c.Memory.Backend, BackendAuto, BackendEmbedded, BackendInMemory), "memory.backend %q is not supported", c.Memory.Backend)
	check(c.Memory.Dimensions > 0, "memory.dimensions must be positive")
	check(c.Memory.HistoryLimit > 0, "memory.history_limit must be positive")
	check(c.Memory.SimilarLimit > 0, "memory.similar_limit must be positive")
	check(c.Memory.MinScore >= 0 && c.Memory.MinScore <= 1, "memory.min_score must be within [0, 1]")
	check(c.Memory.PersistAttempts > 0, "memory.persist_attempts must be positive")
	check(oneOf(c.Embedder.Provider, "openai", "gemini", "ollama"), "embedder.provider %q is not supported", c.Embedder.Provider)
	check(c.Embedder.CacheSize >= 0, "embedder.cache_size must not be negative")
	check(c.Agent.MaxSteps > 0, "agent.max_steps must be positive")
	check(c.MCP.Timeout >= 0, "mcp.timeout must not be negative")
	check(oneOf(c.Telemetry.Exporter, telemetry.ExporterNone, telemetry.ExporterStdout, telemetry.ExporterOTLP),
		"telemetry.exporter %q is not supported", c.Telemetry.Exporter)

	if len(problems) > 0 {
		return errors.New(errors.CodeInvalidInput, "invalid configuration: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

// MemoryBackend returns the backend settings in the form memory expects.
func (c *Config) MemoryBackend() memory.Config {
	return memory.Config{
		Credentials: memory.Credentials{
			Endpoint:         c.Memory.Cosmos.Endpoint,
			Key:              c.Memory.Cosmos.Key,
			ConnectionString: c.Memory.ConnectionString,
		},
		Database:   c.Memory.Database,
		Collection: c.Memory.Collection,
		Dimensions: c.Memory.Dimensions,
	}.WithDefaults()
}

// TelemetrySettings converts the telemetry section.
func (c *Config) TelemetrySettings() telemetry.Config {
	return telemetry.Config{
		Exporter:     c.Telemetry.Exporter,
		OTLPEndpoint: c.Telemetry.OTLPEndpoint,
		OTLPInsecure: c.Telemetry.OTLPInsecure,
	}
}

// Environ reports which credential variables are set, without their values.
func Environ() map[string]bool {
	out := make(map[string]bool, len(legacyEnv))
	for name := range legacyEnv {
		out[name] = os.Getenv(name) != ""
	}
	return out
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
