// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/jllopis/telos/pkg/errors"
)

func TestNewErrorMetrics(t *testing.T) {
	em, err := NewErrorMetrics(context.Background())
	if err != nil {
		t.Fatalf("failed to create error metrics: %v", err)
	}
	if em == nil {
		t.Fatal("expected non-nil ErrorMetrics")
	}
}

func TestRecordErrorMetric(t *testing.T) {
	em, _ := NewErrorMetrics(context.Background())
	ctx := context.Background()

	te := errors.New(errors.CodePersistence, "insert failed", nil)
	em.RecordErrorMetric(ctx, te, "memory")
	em.RecordErrorMetric(ctx, stderrors.New("plain"), "planner")

	// Should not panic with nil error or metrics
	em.RecordErrorMetric(ctx, nil, "memory")
	var nilMetrics *ErrorMetrics
	nilMetrics.RecordErrorMetric(ctx, te, "memory")
	nilMetrics.RecordRecovery(ctx, errors.CodeEmbedding)
}

func TestRunMetrics(t *testing.T) {
	rm, err := NewRunMetrics()
	if err != nil {
		t.Fatalf("failed to create run metrics: %v", err)
	}
	ctx := context.Background()
	rm.RecordRun(ctx, "ok", 3)
	rm.RecordDecision(ctx, "CONTINUE")
	rm.RecordMemoryDegraded(ctx, "retrieve_similar")

	var nilMetrics *RunMetrics
	nilMetrics.RecordRun(ctx, "error", 0)
	nilMetrics.RecordDecision(ctx, "FAIL")
	nilMetrics.RecordMemoryDegraded(ctx, "store")
}
