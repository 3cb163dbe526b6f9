// Package ffprobe reads container and stream metadata for downloaded videos.
//
// Inspect runs the ffprobe binary and decodes its JSON output. Video reduces
// that output to the handful of fields a chat upload needs (dimensions,
// duration, codec, bitrate). Callers treat probe failures as non-fatal.
package ffprobe
