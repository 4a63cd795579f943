package telemetry_test

import (
	"context"
	"testing"

	"github.com/san-kum/stemsim/internal/telemetry"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("STEMSIM_OTEL_ENDPOINT", "")
	t.Setenv("STEMSIM_OTEL_ENABLED", "")

	shutdown, err := telemetry.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("STEMSIM_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("STEMSIM_OTEL_ENABLED", "false")

	shutdown, err := telemetry.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// non-routable, nothing is exported
	t.Setenv("STEMSIM_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("STEMSIM_OTEL_ENABLED", "")

	shutdown, err := telemetry.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestTracerWithoutSetup(t *testing.T) {
	_, span := telemetry.Tracer().Start(context.Background(), "noop")
	span.End()
}
