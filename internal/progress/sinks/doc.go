// Package sinks implements concrete progress consumers: Prometheus
// collectors, structured logging, and a bounded in-memory ring. Each sink
// satisfies the progress.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
