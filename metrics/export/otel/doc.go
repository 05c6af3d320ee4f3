// Package otel publishes shelfauth metrics through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one observable counter per metric family, with
// the family label carried as an attribute, and a cumulative bucket gauge with
// an le attribute for the sign-in latency histogram. A single callback reads
// [shelfauth.Engine.MetricsSnapshot] on each collection. Callers own the
// MeterProvider.
package otel
