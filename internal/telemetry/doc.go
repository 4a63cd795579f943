// Package telemetry wires opt-in OpenTelemetry tracing. Multislice runs and
// probe scans open spans on [Tracer]; they are exported only after [Setup]
// found STEMSIM_OTEL_ENDPOINT.
package telemetry
