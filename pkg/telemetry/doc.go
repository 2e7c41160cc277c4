// Package telemetry provides logging, metrics, tracing, and event publishing
// for the Gantry orchestrator. Logging is structured via zerolog, metrics are
// exposed through a Prometheus registry, and traces are emitted with
// OpenTelemetry. The event publisher fans run and unit lifecycle events out
// to in-process subscribers.
package telemetry
