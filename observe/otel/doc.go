// Package otel provides an OpenTelemetry observer plugin for the coro
// runtime. It emits span events (launch, suspend, resume, cancel, finish)
// with low overhead.
package otel
