// Package ipc exposes daemon control over JSON-RPC on a Unix domain socket.
//
// The server registers the "FeedRelay" service backed by a running daemon;
// the client wraps each method for the CLI. Request and response types are
// plain JSON structs so other tools can speak the protocol directly.
package ipc
