// Package metrics exposes run-time Prometheus metrics for bastion: queue
// depth, task outcomes, per-tool durations, container concurrency, and
// routing/budget counters. Metrics are updated inline where the event
// happens, in pkg/scheduler and pkg/planner; the container-start, scheduling
// latency and budget metrics are registered but nothing updates them.
// Collector samples a StatsSource into the ContainersRunning gauge on an
// interval. Handler exposes the registry over HTTP for
// an optional --metrics-addr listener.
package metrics
