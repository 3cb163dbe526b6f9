// Package daemon coordinates the long-running feedrelay process.
//
// It wires the engine to the chat update source under a flock-based
// single-instance lock, serves Prometheus metrics when a listen address is
// configured, and prunes expired action records on a timer. The daemon also
// exposes the record and operation helpers used by the IPC control plane.
//
// Keep orchestration here: delivery and action semantics live in the engine
// and its collaborators while the daemon owns startup, shutdown, and polling.
package daemon
