// Package otel publishes gate metrics as OpenTelemetry observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per gate counter and one
// Int64ObservableGauge per latency bucket. A single callback reads the gate's
// snapshot on each collection cycle. Callers own the MeterProvider.
package otel
