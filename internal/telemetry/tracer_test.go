// internal/telemetry/tracer_test.go
package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracerExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	var buf bytes.Buffer
	shutdown, err := InitTracer("thickness-service-test", "0.0.0", &buf)
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "unit-span")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "unit-span") {
		t.Errorf("Expected exported span in output, got %q", out)
	}
	if !strings.Contains(out, "thickness-service-test") {
		t.Errorf("Expected service name in exported resource, got %q", out)
	}
}
