// Package metrics defines and registers every Prometheus metric the
// cluster exposes: raft role/peer/log-index/applied-index gauges, per-method RPC
// counters, and notifier/client-runtime counters, plus a small Timer
// helper for histogram observations.
package metrics
