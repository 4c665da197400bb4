// Package sinks holds the progress consumers wired behind the hub: a zap
// logging sink, a Prometheus sink exporting fetch and batch counters, and a
// store sink that aggregates events into batch runs and per-site stats.
package sinks
