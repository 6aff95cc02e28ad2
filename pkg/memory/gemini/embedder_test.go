// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package gemini

import (
	"context"
	"testing"
)

func TestNewEmbedderOptions(t *testing.T) {
	e, err := NewEmbedder(context.Background(), WithAPIKey("test"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if e.model != DefaultModel || e.config() != nil {
		t.Fatalf("unexpected defaults: model %s config %+v", e.model, e.config())
	}

	e, err = NewEmbedder(context.Background(), WithAPIKey("test"), WithModel("text-embedding-004"), WithDimensions(768))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cfg := e.config()
	if e.model != "text-embedding-004" || cfg == nil || cfg.OutputDimensionality == nil || *cfg.OutputDimensionality != 768 {
		t.Fatalf("options not applied: %s %+v", e.model, cfg)
	}
}
