// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompts renders the planner, executor and reflector prompts.
//
// Templates use text/template with the sprig function map. Defaults are
// embedded; a YAML file with any of the keys planner, executor and reflector
// overrides the matching template.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Names of the templates in a Set.
const (
	Planner   = "planner"
	Executor  = "executor"
	Reflector = "reflector"
)

// PlannerData feeds the planner template.
type PlannerData struct {
	Goal           string
	ContextSummary string
}

// ExecutorData feeds the executor template. StepNumber is 1-based.
type ExecutorData struct {
	Goal           string
	Step           string
	StepNumber     int
	TotalSteps     int
	Observations   []string
	ContextSummary string
}

// ReflectorData feeds the reflector template.
type ReflectorData struct {
	Goal         string
	Plan         []string
	Observations []string
	HasSimilar   bool
}

// Set holds the parsed prompt templates.
type Set struct {
	templates map[string]*template.Template
}

type sources struct {
	Planner   string `yaml:"planner"`
	Executor  string `yaml:"executor"`
	Reflector string `yaml:"reflector"`
}

// Default returns the embedded templates. It panics if they do not parse,
// which only a broken build can cause.
func Default() *Set {
	set, err := Parse(defaultsYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("prompts: embedded defaults: %v", err))
	}
	return set
}

// Load reads a YAML override file. An empty path returns the defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	return Parse(data, Default())
}

// Parse builds a Set from YAML. Keys missing from data are taken from base;
// with a nil base every key is required.
func Parse(data []byte, base *Set) (*Set, error) {
	var src sources
	if err := yaml.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	set := &Set{templates: make(map[string]*template.Template, 3)}
	for name, text := range map[string]string{
		Planner:   src.Planner,
		Executor:  src.Executor,
		Reflector: src.Reflector,
	} {
		if text == "" {
			if base == nil {
				return nil, fmt.Errorf("prompt %q is missing", name)
			}
			set.templates[name] = base.templates[name]
			continue
		}
		tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %q: %w", name, err)
		}
		set.templates[name] = tmpl
	}
	return set, nil
}

// Planner renders the planning prompt.
func (s *Set) Planner(data PlannerData) (string, error) {
	return s.render(Planner, data)
}

// Executor renders the prompt for a single step.
func (s *Set) Executor(data ExecutorData) (string, error) {
	return s.render(Executor, data)
}

// Reflector renders the reflection prompt.
func (s *Set) Reflector(data ReflectorData) (string, error) {
	return s.render(Reflector, data)
}

func (s *Set) render(name string, data any) (string, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt %q is not defined", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return buf.String(), nil
}
