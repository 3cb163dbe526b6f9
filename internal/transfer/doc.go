// Package transfer holds the in-memory side of media transfers: the
// cooperative Control token (running, paused, cancelled), the Operation that
// tracks phase and byte counters, and the Registry through which UI callbacks
// reach a live operation.
//
// Pipelines call Control.Checkpoint at every chunk and file boundary.
// Cancellation is observed there and only there, so an operation blocked in
// a single long write finishes that write before it stops.
package transfer
