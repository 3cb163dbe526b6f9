// Package main hosts the feedrelay CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the relay daemon in the foreground and
// translates terminal invocations into IPC calls against it: manual
// deliveries, follow-up action triggers, transfer control, and action record
// maintenance. Configuration resolution and socket discovery live here so
// subcommands stay focused on presentation.
//
// Add new functionality to the internal packages first, then surface it
// through dedicated commands or flags here.
package main
