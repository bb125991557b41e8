// Package metrics exposes Prometheus instrumentation for the VibeVault
// core: unlock outcomes, active sessions, entry operations, and sync
// session counters. The registry is served over promhttp when the metrics
// listener is enabled.
package metrics
