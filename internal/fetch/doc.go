// Package fetch downloads media referenced by a content manifest.
//
// A Downloader probes the expected size with a HEAD request, then streams the
// body in fixed-size chunks. Between chunks it consults a Checkpointer so a
// paused operation stops pulling bytes and a cancelled one stops immediately.
// Each attempt has its own timeout; attempts that time out are retried a
// bounded number of times and then reported as a failed transfer. User
// cancellation is never retried.
//
// Content type is sniffed from the downloaded bytes with mimetype so uploads
// carry a usable file name even when the source URL has no extension.
package fetch
