// Package metrics exposes the server's Prometheus metrics on a per-instance
// registry, so tests and multiple servers in one process never share state.
//
// Metrics implements the observer interfaces of the store, encoder and
// ingest packages; wiring is done in main.
package metrics
