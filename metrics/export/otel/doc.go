// Package otel exposes shopauth engine metrics through an OpenTelemetry
// Meter supplied by the caller. A single callback reads the engine snapshot
// on each collection.
package otel
