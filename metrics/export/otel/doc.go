// Package otel publishes authcore engine metrics as OpenTelemetry
// observable instruments. Callers own the MeterProvider and pass a Meter to
// [New].
package otel
