package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitStdoutWritesToConfiguredWriter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: ExporterStdout, Writer: &buf})
	if err != nil {
		t.Fatalf("InitWithConfig failed: %v", err)
	}

	_, span := otel.Tracer("telos/test").Start(context.Background(), "Orchestrator.Run")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Orchestrator.Run") {
		t.Errorf("expected the span in the configured writer, got %q", buf.String())
	}
}

func TestInitWithConfigNone(t *testing.T) {
	shutdown, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: ExporterNone})
	if err != nil {
		t.Fatalf("InitWithConfig failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitWithConfigErrors(t *testing.T) {
	if _, err := InitWithConfig("svc", "v0", Config{Exporter: ExporterOTLP}); err == nil {
		t.Error("expected error for otlp without endpoint")
	}
	if _, err := InitWithConfig("svc", "v0", Config{Exporter: "zipkin"}); err == nil {
		t.Error("expected error for unknown exporter")
	}
}

func TestConfigureSlogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "json")
	logger.Info("memory.retrieve.start")
	logger.Warn("memory.retrieve.degraded", "tier", "recent")

	out := buf.String()
	if strings.Contains(out, "memory.retrieve.start") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"tier":"recent"`) {
		t.Errorf("expected json attributes in output: %s", out)
	}
}

type ctxKey struct{}

func TestLoggerAddsContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	lookup := func(ctx context.Context) (string, bool) {
		v, ok := ctx.Value(ctxKey{}).(string)
		return v, ok
	}
	logger := NewLogger(&buf, "info", "json", ContextAttr{Key: "run_id", Value: lookup})
	ctx := context.WithValue(context.Background(), ctxKey{}, "run-1")

	logger.InfoContext(ctx, "agent.tool.complete")
	if !strings.Contains(buf.String(), `"run_id":"run-1"`) {
		t.Fatalf("expected run_id from context: %s", buf.String())
	}

	buf.Reset()
	logger.With("run_id", "run-2").InfoContext(ctx, "orchestrator.run.start")
	if strings.Contains(buf.String(), "run-1") || strings.Count(buf.String(), "run_id") != 1 {
		t.Fatalf("bound run_id must win over the context: %s", buf.String())
	}

	buf.Reset()
	logger.Info("config.reload.done")
	if strings.Contains(buf.String(), "run_id") {
		t.Fatalf("no context, no run_id: %s", buf.String())
	}
}
